package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/novelia/backend/internal/models"
)

// WalletService exposes the read-side of the ledger: balances, entry
// history and the reconciliation check.
type WalletService struct {
	db         *sql.DB
	ledger     *LedgerService
	withdrawal *WithdrawalService
}

type BalanceResult struct {
	UserID        string `json:"userId"`
	SilverBalance int64  `json:"silverBalance"`
	GoldBalance   int64  `json:"goldBalance"`
	SpendableGold int64  `json:"spendableGold"`
}

func NewWalletService(db *sql.DB, withdrawal *WithdrawalService) *WalletService {
	return &WalletService{
		db:         db,
		ledger:     NewLedgerService(db),
		withdrawal: withdrawal,
	}
}

// HandleBalance returns the caller's balances
// @Summary Get wallet balance
// @Description Get Silver and Gold balances plus the Gold spendable after holds
// @Tags wallet
// @Produce json
// @Success 200 {object} BalanceResult
// @Failure 404 {object} ErrorResponse
// @Router /wallet/balance [get]
func (wl *WalletService) HandleBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	account, err := wl.ledger.GetAccount(userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	spendable, err := wl.withdrawal.SpendableGold(userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BalanceResult{
		UserID:        account.UserID,
		SilverBalance: account.SilverBalance,
		GoldBalance:   account.GoldBalance,
		SpendableGold: spendable,
	})
}

// HandleLedger returns recent ledger entries
// @Summary Get ledger history
// @Description List the caller's recent ledger entries, newest first
// @Tags wallet
// @Produce json
// @Param currency query string false "Filter by currency (silver|gold)"
// @Param limit query int false "Number of entries (default 50, max 200)"
// @Success 200 {object} object{entries=[]models.LedgerEntry,count=int}
// @Router /wallet/ledger [get]
func (wl *WalletService) HandleLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	currency := r.URL.Query().Get("currency")
	if currency != "" && currency != models.CurrencySilver && currency != models.CurrencyGold {
		SendErrorResponse(w, "Invalid currency", http.StatusBadRequest, nil)
		return
	}

	limit := 50
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	entries, err := wl.ledger.ListEntries(userID, currency, limit)
	if err != nil {
		log.Printf("[WALLET] Failed to fetch ledger for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch ledger", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// HandleReconcile checks a user's balances against the ledger (admin)
// @Summary Reconcile an account (admin)
// @Description Verify that stored balances equal the ledger entry sums
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /admin/accounts/{userId}/reconcile [get]
func (wl *WalletService) HandleReconcile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")

	if err := wl.ledger.Reconcile(userID); err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[WALLET] Reconciliation failed for %s: %v", userID, err)
		SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"userId": userID, "status": "consistent"})
}
