package ledger_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	"github.com/velopay/cardledger/ledger"
	"github.com/velopay/cardledger/ledger/models"
)

func newTestRouter(t *testing.T) (chi.Router, *ledger.Service) {
	t.Helper()

	repo := ledger.NewRepository()
	logger := slog.New(slog.NewTextHandler(io.Discard))
	svc := ledger.NewService(repo, ledger.DefaultConfig(), logger, nil)

	router := chi.NewRouter()
	ledger.NewAPI(svc).AppendRoutes(router)

	return router, svc
}

func doJSON(t *testing.T, router chi.Router, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func TestAPICreateCard(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/cards", `{"card_number":"4532015112830366","credit_limit":"10000.00"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var card models.Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))
	require.NotZero(t, card.ID)
	require.Equal(t, "4532015112830366", card.Number)
	require.True(t, card.AvailableLimit.Equal(decimal.RequireFromString("10000.00")))

	t.Run("duplicate number conflicts", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/cards", `{"card_number":"4532015112830366","credit_limit":"10000.00"}`)
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("generated number when omitted", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/cards", `{"credit_limit":"500.00"}`)
		require.Equal(t, http.StatusCreated, w.Code)

		var generated models.Card
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &generated))
		require.Len(t, generated.Number, 16)
	})
}

func TestAPIAuthorize(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/cards", `{"card_number":"4532015112830366","credit_limit":"10000.00"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var card models.Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))

	t.Run("authorizes and returns the transaction", func(t *testing.T) {
		body := fmt.Sprintf(`{"card_id":%d,"amount":"100.00"}`, card.ID)
		w := doJSON(t, router, http.MethodPost, "/transactions/authorize", body)
		require.Equal(t, http.StatusCreated, w.Code)

		var transaction models.Transaction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transaction))
		require.NotZero(t, transaction.ID)
		require.Equal(t, card.ID, transaction.CardID)
		require.Equal(t, models.TransactionStatusAuthorized, transaction.Status)
		require.True(t, transaction.Amount.Equal(decimal.RequireFromString("100.00")))
		require.False(t, transaction.CreatedAt.IsZero())
	})

	t.Run("rejects malformed requests", func(t *testing.T) {
		for name, body := range map[string]string{
			"non-positive card id":    `{"card_id":0,"amount":"10.00"}`,
			"zero amount":             fmt.Sprintf(`{"card_id":%d,"amount":"0"}`, card.ID),
			"below minimum amount":    fmt.Sprintf(`{"card_id":%d,"amount":"0.001"}`, card.ID),
			"too many decimal places": fmt.Sprintf(`{"card_id":%d,"amount":"10.123"}`, card.ID),
			"negative amount":         fmt.Sprintf(`{"card_id":%d,"amount":"-10.00"}`, card.ID),
			"not json":                `{"card_id":`,
		} {
			w := doJSON(t, router, http.MethodPost, "/transactions/authorize", body)
			require.Equal(t, http.StatusBadRequest, w.Code, name)
		}
	})

	t.Run("unknown card", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/transactions/authorize", `{"card_id":4242,"amount":"10.00"}`)
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("insufficient funds", func(t *testing.T) {
		body := fmt.Sprintf(`{"card_id":%d,"amount":"999999.00"}`, card.ID)
		w := doJSON(t, router, http.MethodPost, "/transactions/authorize", body)
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestAPICapture(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/cards", `{"card_number":"4532015112830366","credit_limit":"10000.00"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var card models.Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))

	body := fmt.Sprintf(`{"card_id":%d,"amount":"100.00"}`, card.ID)
	w = doJSON(t, router, http.MethodPost, "/transactions/authorize", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var transaction models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transaction))

	t.Run("captures once", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/transactions/capture/%d", transaction.ID), "")
		require.Equal(t, http.StatusOK, w.Code)

		var captured models.Transaction
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &captured))
		require.Equal(t, models.TransactionStatusCaptured, captured.Status)
	})

	t.Run("second capture conflicts", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, fmt.Sprintf("/transactions/capture/%d", transaction.ID), "")
		require.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown transaction", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/transactions/capture/4242", "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/transactions/capture/abc", "")
		require.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAPICardSummary(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(t, router, http.MethodPost, "/cards", `{"card_number":"4532015112830366","credit_limit":"10000.00"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var card models.Card
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &card))

	body := fmt.Sprintf(`{"card_id":%d,"amount":"100.00"}`, card.ID)
	w = doJSON(t, router, http.MethodPost, "/transactions/authorize", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var transaction models.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &transaction))

	w = doJSON(t, router, http.MethodPost, fmt.Sprintf("/transactions/capture/%d", transaction.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, router, http.MethodGet, fmt.Sprintf("/cards/%d/summary", card.ID), "")
	require.Equal(t, http.StatusOK, w.Code)

	var summary models.CardSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	require.Equal(t, card.ID, summary.CardID)
	require.Equal(t, "4532****0366", summary.CardNumber)
	require.True(t, summary.CreditLimit.Equal(decimal.RequireFromString("10000.00")))
	require.True(t, summary.AvailableLimit.Equal(decimal.RequireFromString("9900.00")))
	require.True(t, summary.TotalCapturedAmount.Equal(decimal.RequireFromString("100.00")))

	t.Run("unknown card", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/cards/4242/summary", "")
		require.Equal(t, http.StatusNotFound, w.Code)
	})
}
