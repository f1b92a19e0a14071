package storage

import (
	"sort"

	"netbuy-ranker/internal/domain"
)

// SortRecords orders records by block_number DESC, id ASC, the order All returns.
func SortRecords(records []*domain.TransferRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].BlockNumber != records[j].BlockNumber {
			return records[i].BlockNumber > records[j].BlockNumber
		}
		return records[i].ID < records[j].ID
	})
}
