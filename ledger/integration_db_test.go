package ledger_test

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/internal/cardnum"
	"github.com/velopay/cardledger/ledger"
	"github.com/velopay/cardledger/ledger/models"
)

// TestAuthorizeCaptureOnPostgres runs the authorize/capture lifecycle against
// a real database. Skips unless DB_DSN is provided and REPO_BACKEND=pg; the
// schema from schema.sql must already be applied.
func TestAuthorizeCaptureOnPostgres(t *testing.T) {
	if os.Getenv("REPO_BACKEND") != "pg" {
		t.Skip("REPO_BACKEND != pg; skipping DB integration test")
	}
	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		t.Skip("DB_DSN not set; skipping DB integration test")
	}

	db, err := sql.Open("postgres", dsn)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Ping())

	ctx := context.Background()
	repo := ledger.NewPGRepository(db, []byte("test-card-hash-key"))
	logger := slog.New(slog.NewTextHandler(io.Discard))
	svc := ledger.NewService(repo, ledger.DefaultConfig(), logger, nil)

	// A generated number keeps reruns from colliding on the hash index.
	number, err := cardnum.Generate("453201")
	require.NoError(t, err)

	card, err := svc.CreateCard(ctx, number, decimal.RequireFromString("1000.00"))
	require.NoError(t, err)
	require.NotZero(t, card.ID)

	transaction, err := svc.Authorize(ctx, card.ID, decimal.RequireFromString("100.00"))
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusAuthorized, transaction.Status)
	require.WithinDuration(t, time.Now(), transaction.CreatedAt, time.Minute)

	updated, err := svc.GetCard(ctx, card.ID)
	require.NoError(t, err)
	require.True(t, updated.AvailableLimit.Equal(decimal.RequireFromString("900.00")))

	captured, err := svc.Capture(ctx, transaction.ID)
	require.NoError(t, err)
	require.Equal(t, models.TransactionStatusCaptured, captured.Status)

	_, err = svc.Capture(ctx, transaction.ID)
	require.ErrorIs(t, err, models.ErrInvalidState)

	total, err := svc.TotalCaptured(ctx, card.ID)
	require.NoError(t, err)
	require.True(t, total.Equal(decimal.RequireFromString("100.00")))
}
