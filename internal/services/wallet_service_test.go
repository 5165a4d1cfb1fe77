package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/novelia/backend/internal/models"
	"github.com/stretchr/testify/assert"
)

func authedRequest(method, target, userID string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	return r.WithContext(context.WithValue(r.Context(), "userID", userID))
}

func TestWalletService_HandleBalance(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db, NewWithdrawalService(db, nil))

	t.Run("returns balances with spendable gold", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1").
			WithArgs("user1").
			WillReturnRows(accountRows("user1", 1200, 5000, 4))

		// SpendableGold re-reads the account, then sums the holds.
		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1").
			WithArgs("user1").
			WillReturnRows(accountRows("user1", 1200, 5000, 4))
		mock.ExpectQuery("SELECT COALESCE\\(SUM\\(gold_amount\\), 0\\) FROM gold_withdrawal_requests").
			WithArgs("user1", models.WithdrawalPending, models.WithdrawalProcessing, models.WithdrawalApproved).
			WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3000))

		w := httptest.NewRecorder()
		service.HandleBalance(w, authedRequest("GET", "/wallet/balance", "user1"))

		assert.Equal(t, http.StatusOK, w.Code)
		var result BalanceResult
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
		assert.Equal(t, int64(1200), result.SilverBalance)
		assert.Equal(t, int64(5000), result.GoldBalance)
		assert.Equal(t, int64(2000), result.SpendableGold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown account", func(t *testing.T) {
		mock.ExpectQuery("SELECT user_id, silver_balance, gold_balance, version, updated_at FROM accounts WHERE user_id = \\$1").
			WithArgs("ghost").
			WillReturnError(sql.ErrNoRows)

		w := httptest.NewRecorder()
		service.HandleBalance(w, authedRequest("GET", "/wallet/balance", "ghost"))

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("missing user context", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.HandleBalance(w, httptest.NewRequest("GET", "/wallet/balance", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestWalletService_HandleLedger(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewWalletService(db, NewWithdrawalService(db, nil))

	t.Run("lists entries", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "user_id", "currency", "amount", "kind", "reference_id", "balance", "created_at"}).
			AddRow(2, "user1", models.CurrencyGold, 525, models.KindPurchase, "token-abc", 525, time.Now()).
			AddRow(1, "user1", models.CurrencySilver, 40, models.KindAdReward, "reward-1", 40, time.Now())

		mock.ExpectQuery("FROM ledger_entries WHERE user_id = \\$1").
			WithArgs("user1", 50).
			WillReturnRows(rows)

		w := httptest.NewRecorder()
		service.HandleLedger(w, authedRequest("GET", "/wallet/ledger", "user1"))

		assert.Equal(t, http.StatusOK, w.Code)
		var response struct {
			Entries []models.LedgerEntry `json:"entries"`
			Count   int                  `json:"count"`
		}
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, 2, response.Count)
		assert.Equal(t, models.KindPurchase, response.Entries[0].Kind)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects an unknown currency filter", func(t *testing.T) {
		w := httptest.NewRecorder()
		service.HandleLedger(w, authedRequest("GET", "/wallet/ledger?currency=bronze", "user1"))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestBankService_GetAllBanks(t *testing.T) {
	service := NewBankService()

	w := httptest.NewRecorder()
	service.GetAllBanks(w, httptest.NewRequest("GET", "/banks", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var banks []Bank
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &banks))
	assert.NotEmpty(t, banks)

	name, ok := BankNameByCode("014")
	assert.True(t, ok)
	assert.Equal(t, "Bank Central Asia", name)

	_, ok = BankNameByCode("999")
	assert.False(t, ok)
}
