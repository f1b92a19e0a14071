package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"netbuy-ranker/internal/domain"
	"netbuy-ranker/internal/orchestrator"
	"netbuy-ranker/internal/pricing"
	"netbuy-ranker/internal/reporting"
	"netbuy-ranker/internal/storage"
)

const maxLimit = 1000

// rankingResponse is the JSON form of a snapshot with a truncated ranking.
type rankingResponse struct {
	ID           string               `json:"id"`
	TokenAddress string               `json:"token_address"`
	StartBlock   int64                `json:"start_block"`
	LastUpdated  time.Time            `json:"last_updated"`
	LedgerSize   int                  `json:"ledger_size"`
	NewRecords   int                  `json:"new_records"`
	Wallets      int                  `json:"wallets"`
	Rankings     []domain.WalletStats `json:"rankings"`
}

func newRankingResponse(snap *domain.RankingSnapshot, limit int) rankingResponse {
	return rankingResponse{
		ID:           snap.ID,
		TokenAddress: snap.TokenAddress,
		StartBlock:   snap.StartBlock,
		LastUpdated:  snap.LastUpdated,
		LedgerSize:   snap.LedgerSize,
		NewRecords:   snap.NewRecords,
		Wallets:      len(snap.Rankings),
		Rankings:     snap.Top(limit),
	}
}

type refreshResponse struct {
	rankingResponse
	Stop       string `json:"stop"`
	Pages      int    `json:"pages"`
	Duplicates int    `json:"duplicates"`
	Shared     bool   `json:"shared"`
	TookMs     int64  `json:"took_ms"`
}

func handleGetRankings(ranker Ranker, defaultLimit int, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, defaultLimit)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		snap, err := ranker.LatestSnapshot(r.Context())
		if err != nil {
			writeSnapshotError(w, err, logger)
			return
		}

		writeJSON(w, newRankingResponse(snap, limit), http.StatusOK)
	})
}

func handleRankingHistory(ranker Ranker, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit, err := parseLimit(r, 10)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		history, err := ranker.History(r.Context(), limit)
		if err != nil {
			logger.Error().Err(err).Msg("failed to load snapshot history")
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		// History entries carry no ranking rows; use /rankings for those.
		resp := make([]rankingResponse, len(history))
		for i, snap := range history {
			resp[i] = newRankingResponse(snap, 0)
			resp[i].Rankings = nil
		}
		writeJSON(w, resp, http.StatusOK)
	})
}

func handleRefresh(ranker Ranker, defaultLimit int, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The run outlives a disconnecting client so that its work is persisted.
		res, err := ranker.RunIngestionAndRank(context.WithoutCancel(r.Context()))
		if err != nil {
			logger.Warn().Err(err).Msg("refresh failed")
			writeError(w, orchestrator.ErrRankingUnavailable.Error(), http.StatusServiceUnavailable)
			return
		}

		writeJSON(w, refreshResponse{
			rankingResponse: newRankingResponse(res.Snapshot, defaultLimit),
			Stop:            string(res.Ingest.Stop),
			Pages:           res.Ingest.Pages,
			Duplicates:      res.Ingest.Duplicates,
			Shared:          res.Shared,
			TookMs:          res.Duration.Milliseconds(),
		}, http.StatusOK)
	})
}

func handleRankingMessage(ranker Ranker, topN int, opts reporting.MessageOptions, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap, err := ranker.LatestSnapshot(r.Context())
		if err != nil {
			writeSnapshotError(w, err, logger)
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(reporting.RenderRankingMessage(snap, topN, opts)))
	})
}

func handlePrice(quoter Quoter, opts reporting.MessageOptions, logger zerolog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q, err := quoter.Quote(r.Context())
		if err != nil {
			logger.Warn().Err(err).Msg("price lookup failed")
			if errors.Is(err, pricing.ErrPriceNotFound) {
				writeError(w, "price not found", http.StatusNotFound)
				return
			}
			writeError(w, "price unavailable", http.StatusBadGateway)
			return
		}

		if r.URL.Query().Get("format") == "json" {
			writeJSON(w, q, http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(reporting.RenderQuote(q, opts)))
	})
}

func parseLimit(r *http.Request, fallback int) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 || n > maxLimit {
		return 0, errors.New("limit must be an integer between 1 and 1000")
	}
	return n, nil
}

func writeSnapshotError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, "no ranking computed yet", http.StatusNotFound)
		return
	}
	logger.Error().Err(err).Msg("failed to load latest snapshot")
	writeError(w, "internal server error", http.StatusInternalServerError)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, map[string]string{"error": message}, statusCode)
}
