package api

import (
	"context"
	"net/http"
	"strconv"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/service"
	"github.com/folio-tracker/internal/types"
	"github.com/gorilla/mux"
)

// defaultHistoryDays is the history window when days is omitted
const defaultHistoryDays = 30

// maxHistoryDays caps the window; longer requests are clamped
const maxHistoryDays = 3650

// valueRequest is the body of POST /portfolio/{id}/current-value
type valueRequest struct {
	TotalValue *float64 `json:"totalValue"`
}

// historyRequest is the body of POST /portfolio/{id}/history
type historyRequest struct {
	TotalValue *float64 `json:"totalValue"`
	Period     string   `json:"period"`
}

// parsePortfolioRef resolves the {id} path segment
func parsePortfolioRef(r *http.Request) (types.PortfolioRef, error) {
	raw := mux.Vars(r)["id"]
	ref, err := types.ParsePortfolioRef(raw)
	if err != nil {
		return ref, apperrors.NewInvalidParameterError("id", "must be a positive integer or \"demo\"")
	}
	return ref, nil
}

// writableID resolves a persisted portfolio that exists
func (s *Server) writableID(ctx context.Context, ref types.PortfolioRef) (int64, error) {
	id, ok := ref.ID()
	if !ok {
		return 0, apperrors.NewDemoReadOnlyError()
	}

	exists, err := s.deps.Portfolios.Exists(ctx, id)
	if err != nil {
		return 0, apperrors.NewDatabaseError("portfolio lookup", err)
	}
	if !exists {
		return 0, apperrors.NewNotFoundError("portfolio", ref.String())
	}
	return id, nil
}

// handlePostCurrentValue handles POST /portfolio/{id}/current-value
func (s *Server) handlePostCurrentValue(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var body valueRequest
	if err := parseJSONBody(r, &body); err != nil || body.TotalValue == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("totalValue", "must be a number"))
		return
	}

	id, err := s.writableID(r.Context(), ref)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	err = s.deps.History.SaveSnapshot(r.Context(), service.SaveSnapshotInput{
		PortfolioID: id,
		TotalValue:  *body.TotalValue,
		Period:      types.PeriodCurrent,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handlePostHistory handles POST /portfolio/{id}/history
func (s *Server) handlePostHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var body historyRequest
	if err := parseJSONBody(r, &body); err != nil || body.TotalValue == nil {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("totalValue", "must be a number"))
		return
	}
	period, err := types.ParsePeriod(body.Period)
	if err != nil {
		respondServiceError(w, r, apperrors.NewInvalidPeriodError(body.Period))
		return
	}

	id, err := s.writableID(r.Context(), ref)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	err = s.deps.History.SaveSnapshot(r.Context(), service.SaveSnapshotInput{
		PortfolioID: id,
		TotalValue:  *body.TotalValue,
		Period:      period,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// handleGetHistory handles GET /portfolio/{id}/history
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	query := r.URL.Query()
	period, err := types.ParsePeriod(query.Get("period"))
	if err != nil {
		respondServiceError(w, r, apperrors.NewInvalidPeriodError(query.Get("period")))
		return
	}

	days := defaultHistoryDays
	if raw := query.Get("days"); raw != "" {
		days, err = strconv.Atoi(raw)
		if err != nil || days <= 0 {
			respondServiceError(w, r, apperrors.NewInvalidParameterError("days", "must be a positive integer"))
			return
		}
	}
	if days > maxHistoryDays {
		days = maxHistoryDays
	}

	now := s.now()
	start := now.AddDate(0, 0, -days)

	var rows []*models.HistorySnapshot
	if id, ok := ref.ID(); ok {
		rows, err = s.deps.History.Query(r.Context(), id, period, start)
	} else {
		rows, err = s.deps.Demo.History(period, start, now)
	}
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if rows == nil {
		rows = []*models.HistorySnapshot{}
	}

	respondJSON(w, http.StatusOK, rows)
}

// handleGetBalances handles GET /portfolio/{id}/balances
func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	id, ok := ref.ID()
	if !ok {
		respondJSON(w, http.StatusOK, s.deps.Demo.Balances(s.now()))
		return
	}

	view, err := s.deps.Balances.GetBalances(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}

// handleGetValue handles GET /portfolio/{id}/value
func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var value float64
	if id, ok := ref.ID(); ok {
		value, err = s.deps.Valuation.ValuePortfolio(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
	} else {
		value = s.deps.Demo.Value()
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"portfolioId": ref.String(),
		"totalValue":  value,
	})
}

// handleGetChart handles GET /portfolio/{id}/chart
func (s *Server) handleGetChart(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	var rng types.ChartRange
	if raw := r.URL.Query().Get("range"); raw != "" {
		rng, err = types.ParseChartRange(raw)
		if err != nil {
			respondServiceError(w, r, apperrors.NewInvalidParameterError("range", "must be one of 24H, 1W, 1M, 3M, 6M, 1Y, ALL"))
			return
		}
	}

	view, err := s.deps.Charts.Chart(r.Context(), ref, rng)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, view)
}
