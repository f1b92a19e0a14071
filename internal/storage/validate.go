package storage

import "netbuy-ranker/internal/domain"

// ValidateRecord checks the fields every backend relies on.
func ValidateRecord(r *domain.TransferRecord) error {
	if r == nil || r.ID == "" {
		return ErrInvalidInput
	}
	return nil
}

// ValidateSnapshot checks the fields every backend relies on.
func ValidateSnapshot(s *domain.RankingSnapshot) error {
	if s == nil || s.ID == "" || s.LastUpdated.IsZero() {
		return ErrInvalidInput
	}
	return nil
}
