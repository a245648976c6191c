package ledger_test

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/ledger"
)

func TestSeedDemoCard(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard))

	require.NoError(t, ledger.SeedDemoCard(ctx, repo, logger))

	card, err := repo.FindCardByNumber(ctx, "4532015112830366")
	require.NoError(t, err)
	require.True(t, card.AvailableLimit.Equal(card.CreditLimit))

	// A second run against a non-empty ledger is a no-op.
	require.NoError(t, ledger.SeedDemoCard(ctx, repo, logger))

	n, err := repo.CountCards(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
