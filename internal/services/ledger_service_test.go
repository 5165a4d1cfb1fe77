package services

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/novelia/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func accountRows(userID string, silver, gold int64, version int) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "silver_balance", "gold_balance", "version", "updated_at"}).
		AddRow(userID, silver, gold, version, time.Now())
}

func expectLockAccount(mock sqlmock.Sqlmock, userID string, silver, gold int64, version int) {
	mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
		WithArgs(userID).
		WillReturnRows(accountRows(userID, silver, gold, version))
}

func TestLedgerService_Mutate(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	t.Run("gold credit", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, "user1", 0, 2000, 1)

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("user1", models.CurrencyGold, int64(500), models.KindPurchase, "token-1", int64(2500), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET gold_balance = \\$1, version = version \\+ 1, updated_at = \\$2 WHERE user_id = \\$3 AND version = \\$4").
			WithArgs(int64(2500), sqlmock.AnyArg(), "user1", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		newBalance, err := service.Mutate("user1", models.CurrencyGold, 500, models.KindPurchase, "token-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(2500), newBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("silver debit", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, "user1", 5000, 0, 3)

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("user1", models.CurrencySilver, int64(-1000), models.KindConversionDebit, "batch-1", int64(4000), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET silver_balance = \\$1").
			WithArgs(int64(4000), sqlmock.AnyArg(), "user1", 3).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		newBalance, err := service.Mutate("user1", models.CurrencySilver, -1000, models.KindConversionDebit, "batch-1")
		assert.NoError(t, err)
		assert.Equal(t, int64(4000), newBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient balance", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, "user1", 0, 300, 1)
		mock.ExpectRollback()

		_, err := service.Mutate("user1", models.CurrencyGold, -500, models.KindChapterSpend, "ch-1")
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account not found", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "silver_balance", "gold_balance", "version", "updated_at"}))
		mock.ExpectRollback()

		_, err := service.Mutate("ghost", models.CurrencyGold, 100, models.KindPurchase, "t")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("optimistic lock failure", func(t *testing.T) {
		mock.ExpectBegin()
		expectLockAccount(mock, "user1", 0, 2000, 1)

		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET gold_balance = \\$1").
			WillReturnResult(sqlmock.NewResult(1, 0)) // No rows affected

		mock.ExpectRollback()

		_, err := service.Mutate("user1", models.CurrencyGold, 500, models.KindPurchase, "token-2")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "optimistic lock failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Reconcile(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	sumQuery := "SELECT COALESCE\\(SUM\\(amount\\), 0\\) FROM ledger_entries"

	t.Run("balances match ledger sums", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1").
			WithArgs("user1").
			WillReturnRows(accountRows("user1", 1500, 700, 4))

		mock.ExpectQuery(sumQuery).
			WithArgs("user1", models.CurrencySilver, models.KindWithdrawalHold, models.KindWithdrawalRelease).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1500))
		mock.ExpectQuery(sumQuery).
			WithArgs("user1", models.CurrencyGold, models.KindWithdrawalHold, models.KindWithdrawalRelease).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(700))

		err := service.Reconcile("user1")
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("drift detected", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1").
			WithArgs("user1").
			WillReturnRows(accountRows("user1", 1500, 700, 4))

		mock.ExpectQuery(sumQuery).
			WithArgs("user1", models.CurrencySilver, models.KindWithdrawalHold, models.KindWithdrawalRelease).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(1200))

		err := service.Reconcile("user1")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "reconciliation drift")
	})
}

func TestLedgerService_CreateAccount(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs("new-user", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	assert.NoError(t, service.CreateAccount("new-user"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLedgerService_Mutate_StoreError(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db)

	mock.ExpectBegin()
	expectLockAccount(mock, "user1", 0, 2000, 1)
	mock.ExpectExec("INSERT INTO ledger_entries").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err = service.Mutate("user1", models.CurrencyGold, 100, models.KindPurchase, "t")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
