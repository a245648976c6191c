package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/internal/cardnum"
	"github.com/velopay/cardledger/ledger/models"
)

// Clock stamps transactions at authorize time. nil means time.Now.
type Clock func() time.Time

// Service is the authorization engine: it owns the authorize/capture state
// machine and the invariants over each card's available limit. All mutation
// of a card goes through the repository's per-card critical section.
type Service struct {
	repo   *Repository
	cfg    *Config
	logger *slog.Logger
	now    Clock
}

func NewService(repo *Repository, cfg *Config, logger *slog.Logger, clock Clock) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if clock == nil {
		clock = time.Now
	}

	return &Service{
		repo:   repo,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ledger")),
		now:    clock,
	}
}

// CreateCard provisions a card with the given credit limit; the available
// limit starts equal to it. An empty number gets a generated Luhn-valid one
// under the configured BIN.
func (s *Service) CreateCard(ctx context.Context, number string, creditLimit decimal.Decimal) (*models.Card, error) {
	if !creditLimit.IsPositive() {
		return nil, fmt.Errorf("credit limit: %w", models.ErrInvalidAmount)
	}

	if number == "" {
		generated, err := cardnum.Generate(s.cfg.BINPrefix)
		if err != nil {
			return nil, fmt.Errorf("generating card number: %w", err)
		}
		number = generated
	} else {
		number = cardnum.Normalize(number)
		if err := cardnum.Validate(number); err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrInvalidCardNumber, err)
		}
	}

	card := &models.Card{
		Number:         number,
		CreditLimit:    creditLimit,
		AvailableLimit: creditLimit,
	}

	if err := s.repo.CreateCard(ctx, card); err != nil {
		return nil, fmt.Errorf("creating card: %w", err)
	}

	s.logger.Info("card created",
		slog.Int64("card_id", card.ID),
		slog.String("card_number", cardnum.Mask(card.Number)),
		slog.String("credit_limit", creditLimit.String()))

	return card, nil
}

// Authorize reserves amount against the card's available limit and records an
// AUTHORIZED transaction. The read of the limit, the sufficiency check and
// the decrement run as one critical section per card, so concurrent
// authorizations can never overbook.
func (s *Service) Authorize(ctx context.Context, cardID int64, amount decimal.Decimal) (*models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, models.ErrInvalidAmount
	}

	transaction, err := s.repo.WithCardForUpdate(ctx, cardID, func(card *models.Card) (*models.Transaction, error) {
		if err := card.Reserve(amount); err != nil {
			return nil, err
		}

		return &models.Transaction{
			CardID:    card.ID,
			Amount:    amount,
			Status:    models.TransactionStatusAuthorized,
			CreatedAt: s.now(),
		}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, models.ErrInsufficientFunds):
			s.logger.Warn("authorization declined",
				slog.Int64("card_id", cardID),
				slog.String("amount", amount.String()))
		case errors.Is(err, ErrInconsistent):
			s.logger.Error("ledger inconsistency during authorize",
				slog.Int64("card_id", cardID),
				slog.String("amount", amount.String()),
				slog.Any("err", err))
		}
		return nil, fmt.Errorf("authorizing transaction: %w", err)
	}

	s.logger.Info("transaction authorized",
		slog.Int64("transaction_id", transaction.ID),
		slog.Int64("card_id", cardID),
		slog.String("amount", amount.String()))

	return transaction, nil
}

// AuthorizeByNumber resolves the card by its number and authorizes against
// it. The network authorization interface uses this path.
func (s *Service) AuthorizeByNumber(ctx context.Context, number string, amount decimal.Decimal) (*models.Transaction, error) {
	card, err := s.repo.FindCardByNumber(ctx, cardnum.Normalize(number))
	if err != nil {
		return nil, fmt.Errorf("finding card: %w", err)
	}

	return s.Authorize(ctx, card.ID, amount)
}

// Capture finalizes a previously authorized transaction. The available limit
// was already reserved at authorize time, so only the transaction row is
// touched; a compare-and-set on the status rejects the loser of a concurrent
// double capture.
func (s *Service) Capture(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	transaction, err := s.repo.FindTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("finding transaction: %w", err)
	}

	if transaction.Status != models.TransactionStatusAuthorized {
		s.logger.Warn("capture rejected",
			slog.Int64("transaction_id", transactionID),
			slog.String("status", string(transaction.Status)))
		return nil, models.ErrInvalidState
	}

	captured, err := s.repo.TransitionTransaction(ctx, transactionID,
		models.TransactionStatusAuthorized, models.TransactionStatusCaptured)
	if err != nil {
		return nil, fmt.Errorf("capturing transaction: %w", err)
	}

	s.logger.Info("transaction captured",
		slog.Int64("transaction_id", captured.ID),
		slog.Int64("card_id", captured.CardID),
		slog.String("amount", captured.Amount.String()))

	return captured, nil
}

// TotalCaptured sums the captured amounts for a card; zero when none exist.
func (s *Service) TotalCaptured(ctx context.Context, cardID int64) (decimal.Decimal, error) {
	total, err := s.repo.SumAmountByStatus(ctx, cardID, models.TransactionStatusCaptured)
	if err != nil {
		return decimal.Zero, fmt.Errorf("summing captured transactions: %w", err)
	}
	return total, nil
}

// GetCard returns the card identified by cardID.
func (s *Service) GetCard(ctx context.Context, cardID int64) (*models.Card, error) {
	card, err := s.repo.FindCard(ctx, cardID)
	if err != nil {
		return nil, fmt.Errorf("finding card: %w", err)
	}
	return card, nil
}

// CardSummary composes the card with its captured total, masking the card
// number for display.
func (s *Service) CardSummary(ctx context.Context, cardID int64) (*models.CardSummary, error) {
	card, err := s.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}

	total, err := s.TotalCaptured(ctx, cardID)
	if err != nil {
		return nil, err
	}

	return &models.CardSummary{
		CardID:              card.ID,
		CardNumber:          cardnum.Mask(card.Number),
		CreditLimit:         card.CreditLimit,
		AvailableLimit:      card.AvailableLimit,
		TotalCapturedAmount: total,
	}, nil
}
