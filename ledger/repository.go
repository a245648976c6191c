package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/velopay/cardledger/internal/cardnum"
	"github.com/velopay/cardledger/ledger/models"
)

var ErrNotFound = models.ErrNotFound
var ErrConflict = fmt.Errorf("conflict")

// ErrInconsistent marks a failure inside the authorize critical section after
// the balance write. The enclosing transaction is rolled back where the
// backend supports it; the service logs card id and amount for manual
// reconciliation either way.
var ErrInconsistent = fmt.Errorf("ledger state inconsistent")

// Repository owns Card and Transaction records. It runs either fully
// in-memory (tests and local development) or against Postgres; the zero db
// selects the memory backend.
//
// Authorize serialization: the memory backend keys a mutex per card id, so
// authorizations on different cards never contend. The Postgres backend takes
// a row-level lock (SELECT ... FOR UPDATE) inside one transaction instead.
type Repository struct {
	mu           sync.RWMutex
	cards        map[int64]*models.Card
	transactions map[int64]*models.Transaction
	numberIndex  map[string]int64
	nextCardID   int64
	nextTxID     int64

	lockMu    sync.Mutex
	cardLocks map[int64]*sync.Mutex

	db      *sql.DB
	hashKey []byte
}

func NewRepository() *Repository {
	return &Repository{
		cards:        make(map[int64]*models.Card),
		transactions: make(map[int64]*models.Transaction),
		numberIndex:  make(map[string]int64),
		cardLocks:    make(map[int64]*sync.Mutex),
	}
}

// NewPGRepository constructs a db-backed repository. hashKey peppers the
// card-number lookup hash.
func NewPGRepository(db *sql.DB, hashKey []byte) *Repository {
	return &Repository{db: db, hashKey: hashKey}
}

func (r *Repository) cardLock(cardID int64) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	l, ok := r.cardLocks[cardID]
	if !ok {
		l = &sync.Mutex{}
		r.cardLocks[cardID] = l
	}
	return l
}

// CreateCard persists a new card and assigns its id. A duplicate card number
// returns ErrConflict.
func (r *Repository) CreateCard(ctx context.Context, card *models.Card) error {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()

		if _, ok := r.numberIndex[card.Number]; ok {
			return fmt.Errorf("card number exists: %w", ErrConflict)
		}

		r.nextCardID++
		card.ID = r.nextCardID
		stored := *card
		r.cards[card.ID] = &stored
		r.numberIndex[card.Number] = card.ID
		return nil
	}

	hash := cardnum.HashHMAC(card.Number, r.hashKey)
	err := r.db.QueryRowContext(ctx, `
        INSERT INTO ledger.cards(card_number, card_number_hash, credit_limit, available_limit)
        VALUES ($1, $2, $3, $4)
        RETURNING card_id
    `, card.Number, hash, card.CreditLimit, card.AvailableLimit).Scan(&card.ID)
	if isUniqueViolation(err) {
		return fmt.Errorf("card number exists: %w", ErrConflict)
	}
	return err
}

// FindCard returns a copy of the card; the caller cannot mutate ledger state
// through it.
func (r *Repository) FindCard(ctx context.Context, cardID int64) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()

		c, ok := r.cards[cardID]
		if !ok {
			return nil, ErrNotFound
		}
		card := *c
		return &card, nil
	}

	row := r.db.QueryRowContext(ctx, `
        SELECT card_id, card_number, credit_limit, available_limit
        FROM ledger.cards WHERE card_id = $1
    `, cardID)

	var card models.Card
	if err := row.Scan(&card.ID, &card.Number, &card.CreditLimit, &card.AvailableLimit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &card, nil
}

// FindCardByNumber resolves a card by its (normalized) number. The Postgres
// backend looks up by HMAC hash so the raw number never appears in a query.
func (r *Repository) FindCardByNumber(ctx context.Context, number string) (*models.Card, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()

		id, ok := r.numberIndex[number]
		if !ok {
			return nil, ErrNotFound
		}
		card := *r.cards[id]
		return &card, nil
	}

	hash := cardnum.HashHMAC(number, r.hashKey)
	row := r.db.QueryRowContext(ctx, `
        SELECT card_id, card_number, credit_limit, available_limit
        FROM ledger.cards WHERE card_number_hash = $1
    `, hash)

	var card models.Card
	if err := row.Scan(&card.ID, &card.Number, &card.CreditLimit, &card.AvailableLimit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &card, nil
}

// WithCardForUpdate runs authorize inside the card's exclusive critical
// section: the card is loaded under lock, authorize decides (mutating the
// card and returning the transaction to persist, or an error), and the
// balance write plus the transaction insert commit as one unit. No reader
// can observe one without the other.
func (r *Repository) WithCardForUpdate(ctx context.Context, cardID int64, authorize func(card *models.Card) (*models.Transaction, error)) (*models.Transaction, error) {
	if r.db == nil {
		lock := r.cardLock(cardID)
		lock.Lock()
		defer lock.Unlock()

		r.mu.RLock()
		stored, ok := r.cards[cardID]
		var card models.Card
		if ok {
			card = *stored
		}
		r.mu.RUnlock()
		if !ok {
			return nil, ErrNotFound
		}

		transaction, err := authorize(&card)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		defer r.mu.Unlock()

		r.nextTxID++
		transaction.ID = r.nextTxID
		*r.cards[cardID] = card
		stored2 := *transaction
		r.transactions[transaction.ID] = &stored2
		return transaction, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `set local statement_timeout = '3s'`); err != nil {
		return nil, err
	}

	row := tx.QueryRowContext(ctx, `
        SELECT card_id, card_number, credit_limit, available_limit
        FROM ledger.cards WHERE card_id = $1 FOR UPDATE
    `, cardID)

	var card models.Card
	if err := row.Scan(&card.ID, &card.Number, &card.CreditLimit, &card.AvailableLimit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	transaction, err := authorize(&card)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `
        UPDATE ledger.cards SET available_limit = $2 WHERE card_id = $1
    `, cardID, card.AvailableLimit); err != nil {
		return nil, fmt.Errorf("updating available limit: %w", err)
	}

	err = tx.QueryRowContext(ctx, `
        INSERT INTO ledger.transactions(card_id, amount, status, created_at)
        VALUES ($1, $2, $3, $4)
        RETURNING transaction_id
    `, transaction.CardID, transaction.Amount, string(transaction.Status), transaction.CreatedAt).Scan(&transaction.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: persisting transaction after balance update (card %d, amount %s): %v",
			ErrInconsistent, cardID, transaction.Amount, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: committing authorization (card %d, amount %s): %v",
			ErrInconsistent, cardID, transaction.Amount, err)
	}
	return transaction, nil
}

func (r *Repository) FindTransaction(ctx context.Context, transactionID int64) (*models.Transaction, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()

		t, ok := r.transactions[transactionID]
		if !ok {
			return nil, ErrNotFound
		}
		transaction := *t
		return &transaction, nil
	}

	return r.scanTransaction(r.db.QueryRowContext(ctx, `
        SELECT transaction_id, card_id, amount, status, created_at
        FROM ledger.transactions WHERE transaction_id = $1
    `, transactionID))
}

// TransitionTransaction flips the transaction status from one state to
// another as a compare-and-set: a concurrent caller that already moved the
// row out of the expected state gets ErrInvalidState, never a double write.
func (r *Repository) TransitionTransaction(ctx context.Context, transactionID int64, from, to models.TransactionStatus) (*models.Transaction, error) {
	if r.db == nil {
		r.mu.Lock()
		defer r.mu.Unlock()

		t, ok := r.transactions[transactionID]
		if !ok {
			return nil, ErrNotFound
		}
		if t.Status != from {
			return nil, models.ErrInvalidState
		}
		t.Status = to
		transaction := *t
		return &transaction, nil
	}

	res, err := r.db.ExecContext(ctx, `
        UPDATE ledger.transactions SET status = $3
        WHERE transaction_id = $1 AND status = $2
    `, transactionID, string(from), string(to))
	if err != nil {
		return nil, err
	}

	if rows, _ := res.RowsAffected(); rows == 0 {
		// Distinguish a missing row from a lost race.
		if _, err := r.FindTransaction(ctx, transactionID); err != nil {
			return nil, err
		}
		return nil, models.ErrInvalidState
	}

	return r.FindTransaction(ctx, transactionID)
}

// SumAmountByStatus sums transaction amounts for a card in the given status;
// zero when there are none.
func (r *Repository) SumAmountByStatus(ctx context.Context, cardID int64, status models.TransactionStatus) (decimal.Decimal, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()

		total := decimal.Zero
		for _, t := range r.transactions {
			if t.CardID == cardID && t.Status == status {
				total = total.Add(t.Amount)
			}
		}
		return total, nil
	}

	var total decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
        SELECT COALESCE(SUM(amount), 0)
        FROM ledger.transactions WHERE card_id = $1 AND status = $2
    `, cardID, string(status)).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// CountCards reports how many cards exist; the seed step uses it to run only
// against an empty ledger.
func (r *Repository) CountCards(ctx context.Context) (int64, error) {
	if r.db == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		return int64(len(r.cards)), nil
	}

	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger.cards`).Scan(&n)
	return n, err
}

// Ping reports store readiness.
func (r *Repository) Ping(ctx context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.PingContext(ctx)
}

func (r *Repository) scanTransaction(row *sql.Row) (*models.Transaction, error) {
	var transaction models.Transaction
	var status string
	if err := row.Scan(&transaction.ID, &transaction.CardID, &transaction.Amount, &status, &transaction.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	transaction.Status = models.TransactionStatus(status)
	return &transaction, nil
}

func isUniqueViolation(err error) bool {
	var pe *pq.Error
	if errors.As(err, &pe) && pe.Code == "23505" {
		return true
	}
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		return true
	}
	return false
}
