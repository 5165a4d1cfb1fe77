package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/novelia/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func TestPurchaseService_CreditPurchase(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewPurchaseService(db, redisClient)

	t.Run("first delivery credits gold", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO processed_purchases").
			WithArgs("token-abc", "user1", "gold_500", int64(525), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		expectLockAccount(mock, "user1", 0, 1000, 1)

		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs("user1", models.CurrencyGold, int64(525), models.KindPurchase, "token-abc", int64(1525), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectExec("UPDATE accounts SET gold_balance = \\$1").
			WithArgs(int64(1525), sqlmock.AnyArg(), "user1", 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectCommit()

		redisMock.ExpectRPush(purchaseAckQueue, "token-abc").SetVal(1)

		result, err := service.CreditPurchase("token-abc", "user1", "gold_500")
		assert.NoError(t, err)
		assert.True(t, result.Credited)
		assert.Equal(t, int64(525), result.TotalCoins)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("duplicate token credits nothing", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO processed_purchases").
			WithArgs("token-abc", "user1", "gold_500", int64(525), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: uniqueViolation})

		mock.ExpectQuery("SELECT credited_coins FROM processed_purchases WHERE purchase_token = \\$1").
			WithArgs("token-abc").
			WillReturnRows(sqlmock.NewRows([]string{"credited_coins"}).AddRow(525))

		mock.ExpectRollback()

		// The duplicate still re-queues the acknowledgement: redelivery
		// means the first ack was lost.
		redisMock.ExpectRPush(purchaseAckQueue, "token-abc").SetVal(1)

		result, err := service.CreditPurchase("token-abc", "user1", "gold_500")
		assert.NoError(t, err)
		assert.False(t, result.Credited)
		assert.Equal(t, int64(525), result.TotalCoins)
		assert.NoError(t, mock.ExpectationsWereMet())
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("unknown product rejected before any write", func(t *testing.T) {
		_, err := service.CreditPurchase("token-xyz", "user1", "gold_999")
		assert.ErrorIs(t, err, ErrUnknownProduct)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit failure rolls back dedup row", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("INSERT INTO processed_purchases").
			WithArgs("token-ghost", "ghost", "gold_100", int64(100), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))

		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1 FOR UPDATE").
			WithArgs("ghost").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "silver_balance", "gold_balance", "version", "updated_at"}))

		mock.ExpectRollback()

		_, err := service.CreditPurchase("token-ghost", "ghost", "gold_100")
		assert.ErrorIs(t, err, ErrAccountNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
