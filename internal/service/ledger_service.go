package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	apperrors "github.com/folio-tracker/internal/errors"
	"github.com/folio-tracker/internal/logging"
	"github.com/folio-tracker/internal/models"
	"github.com/folio-tracker/internal/storage"
	"github.com/folio-tracker/internal/types"
	"github.com/shopspring/decimal"
)

// RecordTransactionInput is a new ledger entry
type RecordTransactionInput struct {
	PortfolioID       int64
	Type              types.TransactionType
	Ticker            string
	Amount            decimal.Decimal
	Price             *decimal.Decimal
	Total             *decimal.Decimal
	PaymentTicker     string
	TargetPortfolioID *int64
	Notes             *string
	ExecutedAt        time.Time
}

// LedgerService records transactions, the only writer of balances
type LedgerService struct {
	transactions TransactionRepository
	portfolios   PortfolioRepository
	now          func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(transactions TransactionRepository, portfolios PortfolioRepository) *LedgerService {
	return &LedgerService{
		transactions: transactions,
		portfolios:   portfolios,
		now:          time.Now,
	}
}

// RecordTransaction validates and stores a transaction together with its
// balance effects
func (s *LedgerService) RecordTransaction(ctx context.Context, in RecordTransactionInput) (*models.Transaction, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	t := &models.Transaction{
		PortfolioID:       in.PortfolioID,
		Type:              in.Type,
		Ticker:            models.NormalizeTicker(in.Ticker),
		Amount:            in.Amount,
		TargetPortfolioID: in.TargetPortfolioID,
		Notes:             in.Notes,
		ExecutedAt:        in.ExecutedAt,
	}
	if t.ExecutedAt.IsZero() {
		t.ExecutedAt = s.now().UTC()
	}
	if in.Price != nil {
		t.Price = decimal.NewNullDecimal(*in.Price)
	}
	switch {
	case in.Total != nil:
		t.Total = decimal.NewNullDecimal(*in.Total)
	case in.Price != nil:
		t.Total = decimal.NewNullDecimal(in.Amount.Mul(*in.Price))
	}
	if in.PaymentTicker != "" {
		payment := models.NormalizeTicker(in.PaymentTicker)
		t.PaymentTicker = &payment
	}

	if err := s.transactions.Create(ctx, t, balanceEffects(t)); err != nil {
		return nil, mapLedgerError(err, "create transaction")
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"transaction_id": t.ID,
		"portfolio_id":   t.PortfolioID,
		"type":           t.Type,
		"ticker":         t.Ticker,
		"amount":         t.Amount.String(),
	}).Info("transaction recorded")

	return t, nil
}

func (s *LedgerService) validate(ctx context.Context, in RecordTransactionInput) error {
	if !in.Type.IsValid() {
		return apperrors.NewInvalidParameterError("type", "must be BUY, SELL or TRANSFER")
	}
	if models.NormalizeTicker(in.Ticker) == "" {
		return apperrors.NewInvalidParameterError("ticker", "is required")
	}
	if !in.Amount.IsPositive() {
		return apperrors.NewInvalidParameterError("amount", "must be positive")
	}
	if in.Price != nil && in.Price.IsNegative() {
		return apperrors.NewInvalidParameterError("price", "must not be negative")
	}
	if in.Total != nil && in.Total.IsNegative() {
		return apperrors.NewInvalidParameterError("total", "must not be negative")
	}

	if in.Type == types.TxTransfer {
		if in.TargetPortfolioID == nil {
			return apperrors.NewInvalidParameterError("targetPortfolioId", "is required for transfers")
		}
		if *in.TargetPortfolioID == in.PortfolioID {
			return apperrors.NewInvalidParameterError("targetPortfolioId", "must differ from the source portfolio")
		}
	} else if in.TargetPortfolioID != nil {
		return apperrors.NewInvalidParameterError("targetPortfolioId", "is only allowed for transfers")
	}

	if err := s.requirePortfolio(ctx, in.PortfolioID); err != nil {
		return err
	}
	if in.TargetPortfolioID != nil {
		return s.requirePortfolio(ctx, *in.TargetPortfolioID)
	}
	return nil
}

func (s *LedgerService) requirePortfolio(ctx context.Context, id int64) error {
	ok, err := s.portfolios.Exists(ctx, id)
	if err != nil {
		return apperrors.NewDatabaseError("check portfolio", err)
	}
	if !ok {
		return apperrors.NewNotFoundError("portfolio", strconv.FormatInt(id, 10))
	}
	return nil
}

// ListTransactions returns a portfolio's transactions, newest first
func (s *LedgerService) ListTransactions(ctx context.Context, portfolioID int64) ([]*models.Transaction, error) {
	if err := s.requirePortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}

	txs, err := s.transactions.ListByPortfolio(ctx, portfolioID)
	if err != nil {
		return nil, apperrors.NewDatabaseError("list transactions", err)
	}
	return txs, nil
}

// CorrectTransaction edits the correctable fields of a transaction and
// moves balances by the difference between its old and new effects
func (s *LedgerService) CorrectTransaction(ctx context.Context, id int64, c models.TransactionCorrection) (*models.Transaction, error) {
	if c.IsEmpty() {
		return nil, apperrors.NewValidationError("correction changes nothing")
	}
	if c.Amount != nil && !c.Amount.IsPositive() {
		return nil, apperrors.NewInvalidParameterError("amount", "must be positive")
	}
	if c.Price != nil && c.Price.IsNegative() {
		return nil, apperrors.NewInvalidParameterError("price", "must not be negative")
	}
	if c.Total != nil && c.Total.IsNegative() {
		return nil, apperrors.NewInvalidParameterError("total", "must not be negative")
	}

	t, err := s.transactions.Correct(ctx, id, func(t *models.Transaction) ([]storage.BalanceDelta, error) {
		before := balanceEffects(t)
		applyCorrection(t, c)
		return diffEffects(before, balanceEffects(t)), nil
	})
	if errors.Is(err, storage.ErrTransactionNotFound) {
		return nil, apperrors.NewNotFoundError("transaction", strconv.FormatInt(id, 10))
	}
	if err != nil {
		return nil, mapLedgerError(err, "correct transaction")
	}
	return t, nil
}

// applyCorrection writes c into t. When amount or price change without an
// explicit total, a priced transaction's total is recomputed.
func applyCorrection(t *models.Transaction, c models.TransactionCorrection) {
	if c.Amount != nil {
		t.Amount = *c.Amount
	}
	if c.Price != nil {
		t.Price = decimal.NewNullDecimal(*c.Price)
	}
	if c.Notes != nil {
		t.Notes = c.Notes
	}

	switch {
	case c.Total != nil:
		t.Total = decimal.NewNullDecimal(*c.Total)
	case (c.Amount != nil || c.Price != nil) && t.Price.Valid:
		t.Total = decimal.NewNullDecimal(t.Amount.Mul(t.Price.Decimal))
	}
}

// balanceEffects lists the balance changes a transaction implies.
// BUY adds the coin and spends the payment ticker, SELL does the reverse,
// TRANSFER moves the coin between portfolios.
func balanceEffects(t *models.Transaction) []storage.BalanceDelta {
	var deltas []storage.BalanceDelta

	switch t.Type {
	case types.TxBuy, types.TxSell:
		sign := decimal.NewFromInt(1)
		if t.Type == types.TxSell {
			sign = sign.Neg()
		}
		deltas = append(deltas, storage.BalanceDelta{
			PortfolioID: t.PortfolioID,
			Ticker:      t.Ticker,
			Amount:      t.Amount.Mul(sign),
		})
		if t.PaymentTicker != nil && *t.PaymentTicker != "" && t.Total.Valid && !t.Total.Decimal.IsZero() {
			deltas = append(deltas, storage.BalanceDelta{
				PortfolioID: t.PortfolioID,
				Ticker:      *t.PaymentTicker,
				Amount:      t.Total.Decimal.Mul(sign).Neg(),
			})
		}

	case types.TxTransfer:
		deltas = append(deltas, storage.BalanceDelta{
			PortfolioID: t.PortfolioID,
			Ticker:      t.Ticker,
			Amount:      t.Amount.Neg(),
		})
		if t.TargetPortfolioID != nil {
			deltas = append(deltas, storage.BalanceDelta{
				PortfolioID: *t.TargetPortfolioID,
				Ticker:      t.Ticker,
				Amount:      t.Amount,
			})
		}
	}

	return deltas
}

type balanceKey struct {
	portfolioID int64
	ticker      string
}

// diffEffects returns after − before per (portfolio, ticker), dropping
// zero entries. Credits come before debits.
func diffEffects(before, after []storage.BalanceDelta) []storage.BalanceDelta {
	sums := make(map[balanceKey]decimal.Decimal)
	var order []balanceKey

	add := func(d storage.BalanceDelta, sign int64) {
		k := balanceKey{d.PortfolioID, models.NormalizeTicker(d.Ticker)}
		if _, ok := sums[k]; !ok {
			order = append(order, k)
		}
		sums[k] = sums[k].Add(d.Amount.Mul(decimal.NewFromInt(sign)))
	}
	for _, d := range before {
		add(d, -1)
	}
	for _, d := range after {
		add(d, 1)
	}

	var credits, debits []storage.BalanceDelta
	for _, k := range order {
		amount := sums[k]
		if amount.IsZero() {
			continue
		}
		d := storage.BalanceDelta{PortfolioID: k.portfolioID, Ticker: k.ticker, Amount: amount}
		if amount.IsPositive() {
			credits = append(credits, d)
		} else {
			debits = append(debits, d)
		}
	}
	return append(credits, debits...)
}

func mapLedgerError(err error, operation string) error {
	var insufficient *storage.InsufficientBalanceError
	if errors.As(err, &insufficient) {
		return apperrors.NewInsufficientBalanceError(insufficient.Ticker,
			insufficient.Available.String(), insufficient.Requested.String())
	}

	var catErr *apperrors.CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}
	return apperrors.NewDatabaseError(operation, err)
}
