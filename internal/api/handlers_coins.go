package api

import (
	"net/http"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/gorilla/mux"
)

// handleListCoins handles GET /coins
func (s *Server) handleListCoins(w http.ResponseWriter, r *http.Request) {
	coins, err := s.deps.Coins.ListMetadata(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"coins": coins,
		"count": len(coins),
	})
}

// handleGetCoin handles GET /coins/{ticker}
func (s *Server) handleGetCoin(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]

	coin, err := s.deps.Coins.GetMetadata(r.Context(), ticker)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if coin == nil {
		respondServiceError(w, r, apperrors.NewNotFoundError("coin", ticker))
		return
	}

	respondJSON(w, http.StatusOK, coin)
}
