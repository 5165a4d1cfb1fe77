package services

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/novelia/backend/internal/models"
)

// LedgerService is the only code path allowed to change a user's Silver
// or Gold balance. Every mutation locks the account row, enforces
// non-negativity and appends a ledger entry in the same transaction.
type LedgerService struct {
	db *sql.DB
}

func NewLedgerService(db *sql.DB) *LedgerService {
	return &LedgerService{db: db}
}

// Mutate applies a single signed balance change in its own transaction.
func (s *LedgerService) Mutate(userID, currency string, delta int64, kind, referenceID string) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	newBalance, err := s.MutateTx(tx, userID, currency, delta, kind, referenceID)
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return newBalance, nil
}

// MutateTx applies a balance change inside a caller-owned transaction so
// that multi-leg operations (conversion, chapter unlock) commit as one
// unit. Returns the balance after the change.
func (s *LedgerService) MutateTx(tx *sql.Tx, userID, currency string, delta int64, kind, referenceID string) (int64, error) {
	account, err := s.lockAccount(tx, userID)
	if err != nil {
		return 0, err
	}

	balance := account.SilverBalance
	if currency == models.CurrencyGold {
		balance = account.GoldBalance
	}

	newBalance := balance + delta
	if newBalance < 0 {
		return 0, fmt.Errorf("%w: %s %s balance %d, delta %d", ErrInsufficientBalance, userID, currency, balance, delta)
	}

	if err := s.createEntry(tx, userID, currency, delta, kind, referenceID, newBalance); err != nil {
		return 0, err
	}

	if err := s.updateBalance(tx, userID, currency, newBalance, account.Version); err != nil {
		return 0, err
	}

	return newBalance, nil
}

// RecordEntryTx appends an informational ledger entry (withdrawal hold or
// release) without touching the balance. The recorded balance is the
// current one.
func (s *LedgerService) RecordEntryTx(tx *sql.Tx, userID, currency string, amount int64, kind, referenceID string) error {
	account, err := s.lockAccount(tx, userID)
	if err != nil {
		return err
	}

	balance := account.SilverBalance
	if currency == models.CurrencyGold {
		balance = account.GoldBalance
	}

	return s.createEntry(tx, userID, currency, amount, kind, referenceID, balance)
}

// CreateAccount inserts a zero-balance account at user registration.
// Inserting an existing user is a no-op.
func (s *LedgerService) CreateAccount(userID string) error {
	_, err := s.db.Exec(`
		INSERT INTO accounts (user_id, silver_balance, gold_balance, version, updated_at)
		VALUES ($1, 0, 0, 1, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, time.Now())
	return err
}

func (s *LedgerService) GetAccount(userID string) (*models.Account, error) {
	var account models.Account
	err := s.db.QueryRow(`
		SELECT user_id, silver_balance, gold_balance, version, updated_at
		FROM accounts
		WHERE user_id = $1`, userID).
		Scan(&account.UserID, &account.SilverBalance, &account.GoldBalance, &account.Version, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// ListEntries returns the most recent ledger entries for a user, newest
// first, optionally filtered by currency.
func (s *LedgerService) ListEntries(userID, currency string, limit int) ([]models.LedgerEntry, error) {
	query := `
		SELECT id, user_id, currency, amount, kind, reference_id, balance, created_at
		FROM ledger_entries
		WHERE user_id = $1`
	args := []interface{}{userID}
	if currency != "" {
		query += ` AND currency = $2`
		args = append(args, currency)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []models.LedgerEntry{}
	for rows.Next() {
		var e models.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.Currency, &e.Amount, &e.Kind, &e.ReferenceID, &e.Balance, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// SumEntries totals the balance-affecting entries for one user/currency.
// Used by reconciliation only, never for hot-path balance reads.
func (s *LedgerService) SumEntries(userID, currency string) (int64, error) {
	var sum int64
	err := s.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0)
		FROM ledger_entries
		WHERE user_id = $1 AND currency = $2
		  AND kind NOT IN ($3, $4)`,
		userID, currency, models.KindWithdrawalHold, models.KindWithdrawalRelease).Scan(&sum)
	return sum, err
}

// Reconcile checks that both stored balances match their ledger sums.
func (s *LedgerService) Reconcile(userID string) error {
	account, err := s.GetAccount(userID)
	if err != nil {
		return err
	}

	for _, check := range []struct {
		currency string
		balance  int64
	}{
		{models.CurrencySilver, account.SilverBalance},
		{models.CurrencyGold, account.GoldBalance},
	} {
		sum, err := s.SumEntries(userID, check.currency)
		if err != nil {
			return err
		}
		if sum != check.balance {
			return fmt.Errorf("reconciliation drift for %s/%s: balance %d, ledger sum %d", userID, check.currency, check.balance, sum)
		}
	}
	return nil
}

func (s *LedgerService) lockAccount(tx *sql.Tx, userID string) (*models.Account, error) {
	var account models.Account
	err := tx.QueryRow(`
		SELECT user_id, silver_balance, gold_balance, version, updated_at
		FROM accounts
		WHERE user_id = $1
		FOR UPDATE`, userID).
		Scan(&account.UserID, &account.SilverBalance, &account.GoldBalance, &account.Version, &account.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (s *LedgerService) createEntry(tx *sql.Tx, userID, currency string, amount int64, kind, referenceID string, balance int64) error {
	_, err := tx.Exec(`
		INSERT INTO ledger_entries (user_id, currency, amount, kind, reference_id, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		userID, currency, amount, kind, referenceID, balance, time.Now())
	return err
}

func (s *LedgerService) updateBalance(tx *sql.Tx, userID, currency string, newBalance int64, version int) error {
	column := "silver_balance"
	if currency == models.CurrencyGold {
		column = "gold_balance"
	}

	result, err := tx.Exec(fmt.Sprintf(`
		UPDATE accounts
		SET %s = $1, version = version + 1, updated_at = $2
		WHERE user_id = $3 AND version = $4`, column),
		newBalance, time.Now(), userID, version)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("optimistic lock failed for account %s", userID)
	}
	return nil
}
