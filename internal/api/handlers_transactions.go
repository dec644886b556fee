package api

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/service"
	"github.com/folio-tracker/internal/types"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
)

// transactionRequest is the body of POST /portfolio/{id}/transactions
type transactionRequest struct {
	Type              string           `json:"type"`
	Ticker            string           `json:"ticker"`
	Amount            decimal.Decimal  `json:"amount"`
	Price             *decimal.Decimal `json:"price"`
	Total             *decimal.Decimal `json:"total"`
	PaymentTicker     string           `json:"paymentTicker"`
	TargetPortfolioID *int64           `json:"targetPortfolioId"`
	Notes             *string          `json:"notes"`
	ExecutedAt        *time.Time       `json:"executedAt"`
}

// correctableFields are the only fields PATCH /transactions/{txid} accepts
var correctableFields = map[string]bool{
	"amount": true,
	"price":  true,
	"total":  true,
	"notes":  true,
}

// handleCreateTransaction handles POST /portfolio/{id}/transactions
func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	id, ok := ref.ID()
	if !ok {
		respondServiceError(w, r, apperrors.NewDemoReadOnlyError())
		return
	}

	var body transactionRequest
	if err := parseJSONBody(r, &body); err != nil {
		respondServiceError(w, r, apperrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	in := service.RecordTransactionInput{
		PortfolioID:       id,
		Type:              types.TransactionType(body.Type),
		Ticker:            body.Ticker,
		Amount:            body.Amount,
		Price:             body.Price,
		Total:             body.Total,
		PaymentTicker:     body.PaymentTicker,
		TargetPortfolioID: body.TargetPortfolioID,
		Notes:             body.Notes,
	}
	if body.ExecutedAt != nil {
		in.ExecutedAt = *body.ExecutedAt
	}

	tx, err := s.deps.Ledger.RecordTransaction(r.Context(), in)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, tx)
}

// handleListTransactions handles GET /portfolio/{id}/transactions
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ref, err := parsePortfolioRef(r)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	txs := []*models.Transaction{}
	if id, ok := ref.ID(); ok {
		txs, err = s.deps.Ledger.ListTransactions(r.Context(), id)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		if txs == nil {
			txs = []*models.Transaction{}
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": txs,
		"count":        len(txs),
	})
}

// handleCorrectTransaction handles PATCH /transactions/{txid}
func (s *Server) handleCorrectTransaction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["txid"], 10, 64)
	if err != nil || id <= 0 {
		respondServiceError(w, r, apperrors.NewInvalidParameterError("txid", "must be a positive integer"))
		return
	}

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		respondServiceError(w, r, apperrors.NewValidationError("invalid request body: "+err.Error()))
		return
	}

	correction, err := parseCorrection(raw)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	tx, err := s.deps.Ledger.CorrectTransaction(r.Context(), id, correction)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, tx)
}

// parseCorrection rejects fields outside the whitelist before decoding the rest
func parseCorrection(raw map[string]json.RawMessage) (models.TransactionCorrection, error) {
	var c models.TransactionCorrection

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !correctableFields[k] {
			return c, apperrors.NewImmutableFieldError(k)
		}
	}

	decode := func(field string, dst interface{}) error {
		msg, ok := raw[field]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(msg, dst); err != nil {
			return apperrors.NewInvalidParameterError(field, err.Error())
		}
		return nil
	}

	if err := decode("amount", &c.Amount); err != nil {
		return c, err
	}
	if err := decode("price", &c.Price); err != nil {
		return c, err
	}
	if err := decode("total", &c.Total); err != nil {
		return c, err
	}
	if err := decode("notes", &c.Notes); err != nil {
		return c, err
	}
	return c, nil
}
