package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/folio-tracker/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestCategorize(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unauthorized",
			err:        NewUnauthorizedError(),
			wantStatus: http.StatusUnauthorized,
			wantCode:   CodeUnauthorized,
		},
		{
			name:       "wrapped invalid period",
			err:        fmt.Errorf("query history: %w", NewInvalidPeriodError("HOUR_2")),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeInvalidPeriod,
		},
		{
			name:       "service error not found",
			err:        &types.ServiceError{Code: "PORTFOLIO_NOT_FOUND", Message: "portfolio not found"},
			wantStatus: http.StatusNotFound,
			wantCode:   "PORTFOLIO_NOT_FOUND",
		},
		{
			name:       "database error",
			err:        NewDatabaseError("insert snapshot", stderrors.New("connection reset")),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeDatabase,
		},
		{
			name:       "oversell",
			err:        NewInsufficientBalanceError("BTC", "0.5", "0.6"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeOversell,
		},
		{
			name:       "immutable field",
			err:        NewImmutableFieldError("ticker"),
			wantStatus: http.StatusBadRequest,
			wantCode:   CodeImmutableField,
		},
		{
			name:       "plain error becomes internal",
			err:        stderrors.New("something odd"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Categorize(tt.err)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantStatus, GetHTTPStatusCode(tt.err))
		})
	}

	assert.Nil(t, Categorize(nil))
}

func TestErrorPredicates(t *testing.T) {
	assert.True(t, IsUserError(NewValidationError("bad body")))
	assert.True(t, IsUserError(NewDemoReadOnlyError()))
	assert.False(t, IsUserError(NewProviderError("coingecko", stderrors.New("502"))))

	assert.True(t, IsUpstream(NewProviderError("coingecko", stderrors.New("502"))))
	assert.True(t, IsUpstream(fmt.Errorf("refresh: %w", NewDatabaseError("update coins", stderrors.New("x")))))
	assert.False(t, IsUpstream(NewNotFoundError("portfolio", "9")))
}

func TestCategorizedError_Unwrap(t *testing.T) {
	cause := stderrors.New("timeout")
	err := NewProviderError("coingecko", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "caused by: timeout")
	assert.Equal(t, CodeProvider, err.ToServiceError().Code)
}
