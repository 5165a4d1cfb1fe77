package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/novelia/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func expectHeldGold(mock sqlmock.Sqlmock, userID string, held int64) {
	mock.ExpectQuery("SELECT COALESCE\\(SUM\\(gold_amount\\), 0\\) FROM gold_withdrawal_requests").
		WithArgs(userID, models.WithdrawalPending, models.WithdrawalProcessing, models.WithdrawalApproved).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(held))
}

func TestEarningsService_UnlockChapter(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewEarningsService(db)

	t.Run("splits a 10 gold chapter 7 to the author", func(t *testing.T) {
		mock.ExpectBegin()

		// Pre-locks in sorted order: "author1" before "reader1".
		expectLockAccount(mock, "author1", 0, 50, 1)
		expectLockAccount(mock, "reader1", 0, 100, 1)
		expectHeldGold(mock, "reader1", 0)

		// Reader debit.
		expectLockAccount(mock, "reader1", 0, 100, 1)
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("reader1", models.CurrencyGold, int64(-10), models.KindChapterSpend, "ch-42", int64(90), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts SET gold_balance = \\$1").
			WithArgs(int64(90), sqlmock.AnyArg(), "reader1", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		// Author credit: floor(10 * 70 / 100) = 7.
		expectLockAccount(mock, "author1", 0, 50, 1)
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("author1", models.CurrencyGold, int64(7), models.KindWriterEarning, "ch-42", int64(57), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(2, 1))
		mock.ExpectExec("UPDATE accounts SET gold_balance = \\$1").
			WithArgs(int64(57), sqlmock.AnyArg(), "author1", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		result, err := service.UnlockChapter("reader1", "ch-42", "author1", 10)
		assert.NoError(t, err)
		assert.Equal(t, int64(10), result.ReaderDebited)
		assert.Equal(t, int64(7), result.WriterEarned)
		assert.Equal(t, int64(90), result.GoldBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("share rounds down and can be zero", func(t *testing.T) {
		mock.ExpectBegin()

		expectLockAccount(mock, "author1", 0, 50, 1)
		expectLockAccount(mock, "reader1", 0, 100, 1)
		expectHeldGold(mock, "reader1", 0)

		// Price 1: floor(1 * 70 / 100) = 0, no author leg at all.
		expectLockAccount(mock, "reader1", 0, 100, 1)
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("reader1", models.CurrencyGold, int64(-1), models.KindChapterSpend, "ch-7", int64(99), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("UPDATE accounts SET gold_balance = \\$1").
			WithArgs(int64(99), sqlmock.AnyArg(), "reader1", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		result, err := service.UnlockChapter("reader1", "ch-7", "author1", 1)
		assert.NoError(t, err)
		assert.Equal(t, int64(0), result.WriterEarned)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("withdrawal holds are not spendable on chapters", func(t *testing.T) {
		mock.ExpectBegin()

		// Balance 5000 but 3000 reserved by an open withdrawal: only
		// 2000 is spendable, so a 4000 chapter must fail untouched.
		expectLockAccount(mock, "author1", 0, 50, 1)
		expectLockAccount(mock, "reader1", 0, 5000, 1)
		expectHeldGold(mock, "reader1", 3000)

		mock.ExpectRollback()

		_, err := service.UnlockChapter("reader1", "ch-42", "author1", 4000)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient reader gold rolls everything back", func(t *testing.T) {
		mock.ExpectBegin()

		expectLockAccount(mock, "author1", 0, 50, 1)
		expectLockAccount(mock, "reader1", 0, 5, 1)
		expectHeldGold(mock, "reader1", 0)

		mock.ExpectRollback()

		_, err := service.UnlockChapter("reader1", "ch-42", "author1", 10)
		assert.ErrorIs(t, err, ErrInsufficientBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive price", func(t *testing.T) {
		_, err := service.UnlockChapter("reader1", "ch-42", "author1", 0)
		assert.Error(t, err)
	})
}
