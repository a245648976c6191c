package ledger

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/velopay/cardledger/ledger/models"
)

var minAmount = decimal.RequireFromString("0.01")

// API is the HTTP surface over the authorization engine. Request validation
// (positive ids, minimum amount, two-decimal granularity) lives here; the
// engine re-checks only what protects its own invariants.
type API struct {
	ledger *Service
}

func NewAPI(ledger *Service) *API {
	return &API{
		ledger: ledger,
	}
}

func (a *API) AppendRoutes(r chi.Router) {
	r.Route("/cards", func(r chi.Router) {
		r.Post("/", a.createCard)
		r.Get("/{cardID}/summary", a.getCardSummary)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/authorize", a.authorize)
		r.Post("/capture/{transactionID}", a.capture)
	})
}

type createCardRequest struct {
	CardNumber  string          `json:"card_number"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
}

func (a *API) createCard(w http.ResponseWriter, r *http.Request) {
	var req createCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	card, err := a.ledger.CreateCard(r.Context(), req.CardNumber, req.CreditLimit)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(card)
}

func (a *API) getCardSummary(w http.ResponseWriter, r *http.Request) {
	cardID, ok := parseID(w, chi.URLParam(r, "cardID"))
	if !ok {
		return
	}

	summary, err := a.ledger.CardSummary(r.Context(), cardID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(summary)
}

type authorizeRequest struct {
	CardID int64           `json:"card_id"`
	Amount decimal.Decimal `json:"amount"`
}

func (a *API) authorize(w http.ResponseWriter, r *http.Request) {
	var req authorizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.CardID <= 0 {
		http.Error(w, "card_id must be positive", http.StatusBadRequest)
		return
	}
	if req.Amount.Cmp(minAmount) < 0 {
		http.Error(w, "amount must be at least 0.01", http.StatusBadRequest)
		return
	}
	if req.Amount.Exponent() < -2 {
		http.Error(w, "amount must have at most two decimal places", http.StatusBadRequest)
		return
	}

	transaction, err := a.ledger.Authorize(r.Context(), req.CardID, req.Amount)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(transaction)
}

func (a *API) capture(w http.ResponseWriter, r *http.Request) {
	transactionID, ok := parseID(w, chi.URLParam(r, "transactionID"))
	if !ok {
		return
	}

	transaction, err := a.ledger.Capture(r.Context(), transactionID)
	if err != nil {
		a.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(transaction)
}

func parseID(w http.ResponseWriter, raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "id must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, models.ErrInsufficientFunds):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, models.ErrInvalidState), errors.Is(err, ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, models.ErrInvalidCardNumber):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
