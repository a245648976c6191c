package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/internal/cardnum"
	"github.com/velopay/cardledger/ledger/models"
)

const demoCardNumber = "4532015112830366"

var demoCardLimit = decimal.RequireFromString("10000.00")

// SeedDemoCard provisions the demo credit card when the ledger is empty.
// Startup calls it so a fresh instance is usable immediately.
func SeedDemoCard(ctx context.Context, repo *Repository, logger *slog.Logger) error {
	n, err := repo.CountCards(ctx)
	if err != nil {
		return fmt.Errorf("counting cards: %w", err)
	}
	if n > 0 {
		logger.Info("cards already provisioned, skipping seed")
		return nil
	}

	card := &models.Card{
		Number:         demoCardNumber,
		CreditLimit:    demoCardLimit,
		AvailableLimit: demoCardLimit,
	}
	if err := repo.CreateCard(ctx, card); err != nil {
		return fmt.Errorf("creating demo card: %w", err)
	}

	logger.Info("demo card created",
		slog.Int64("card_id", card.ID),
		slog.String("card_number", cardnum.Mask(card.Number)))

	return nil
}
