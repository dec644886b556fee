package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/service"
	"github.com/folio-tracker/internal/types"
)

// handleUpdatePrices handles GET /cron/update-prices
func (s *Server) handleUpdatePrices(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Scheduler.Authorize(r.Header.Get("Authorization")) {
		respondServiceError(w, r, apperrors.NewUnauthorizedError())
		return
	}

	req, err := parseBatchRequest(r.URL.Query())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	// The batch outlives a caller that hangs up; chained batches depend on it.
	result, err := s.deps.Scheduler.RunBatch(context.WithoutCancel(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleCleanup handles GET /cron/cleanup
func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	if !s.deps.Scheduler.Authorize(r.Header.Get("Authorization")) {
		respondServiceError(w, r, apperrors.NewUnauthorizedError())
		return
	}

	result, err := s.deps.Scheduler.Cleanup(context.WithoutCancel(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"deleted": result.Deleted,
	})
}

// parseBatchRequest reads the chaining parameters of a batch call
func parseBatchRequest(q url.Values) (service.BatchRequest, error) {
	var req service.BatchRequest

	if raw := q.Get("batch"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return req, apperrors.NewInvalidParameterError("batch", "must be a non-negative integer")
		}
		req.Batch = n
	}

	if raw := q.Get("prevTime"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return req, apperrors.NewInvalidParameterError("prevTime", "must be a non-negative integer")
		}
		req.PrevTimeMs = n
	}

	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return req, apperrors.NewInvalidParameterError("offset", "must be a non-negative integer")
		}
		req.Offset = &n
	}

	if raw := q.Get("tick"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 {
			return req, apperrors.NewInvalidParameterError("tick", "must be a unix timestamp in seconds")
		}
		req.Tick = time.Unix(n, 0).UTC()
	}

	if raw := q.Get("force"); raw != "" {
		p, err := types.ParsePeriod(raw)
		if err != nil || p == types.PeriodCurrent {
			return req, apperrors.NewInvalidPeriodError(raw)
		}
		req.Force = p
	}

	return req, nil
}
