package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/novelia/backend/internal/models"
)

// payoutQueue receives the ISO 20022 disbursement documents for paid
// withdrawals; an external worker delivers them to the bank rail.
const payoutQueue = "payout_queue"

// WithdrawalService manages bank accounts and the Gold withdrawal state
// machine. Gold is reserved at request time through the spendable-balance
// computation and only debited on the approved to paid transition.
type WithdrawalService struct {
	db            *sql.DB
	redis         *redis.Client
	ledger        *LedgerService
	audit         *AuditLogger
	validator     *ValidationHelper
	disbursement  *DisbursementService
	minWithdrawal int64 // gold
	feeRupiah     int64 // fixed fee per request, frozen at creation
	rupiahPerGold int64
}

func NewWithdrawalService(db *sql.DB, redisClient *redis.Client) *WithdrawalService {
	minWithdrawal := int64(1000)
	feeRupiah := int64(5000)
	rupiahPerGold := int64(100)
	if env := os.Getenv("MIN_WITHDRAWAL_GOLD"); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			minWithdrawal = val
		}
	}
	if env := os.Getenv("WITHDRAWAL_FEE_RUPIAH"); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			feeRupiah = val
		}
	}
	if env := os.Getenv("RUPIAH_PER_GOLD"); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			rupiahPerGold = val
		}
	}
	return &WithdrawalService{
		db:            db,
		redis:         redisClient,
		ledger:        NewLedgerService(db),
		audit:         NewAuditLogger(),
		validator:     NewValidationHelper(),
		disbursement:  NewDisbursementService(),
		minWithdrawal: minWithdrawal,
		feeRupiah:     feeRupiah,
		rupiahPerGold: rupiahPerGold,
	}
}

// SpendableGold is the Gold balance minus the amounts already held by
// the user's non-terminal withdrawal requests. Computed as a query-time
// aggregate so there is no second counter to drift.
func (ws *WithdrawalService) SpendableGold(userID string) (int64, error) {
	account, err := ws.ledger.GetAccount(userID)
	if err != nil {
		return 0, err
	}
	held, err := heldGold(ws.db.QueryRow, userID)
	if err != nil {
		return 0, err
	}
	return account.GoldBalance - held, nil
}

type rowQuerier func(query string, args ...interface{}) *sql.Row

// heldGold sums the amounts reserved by a user's non-terminal withdrawal
// requests. Every Gold spend path checks against it, not just withdrawal
// creation.
func heldGold(queryRow rowQuerier, userID string) (int64, error) {
	var held int64
	err := queryRow(`
		SELECT COALESCE(SUM(gold_amount), 0)
		FROM gold_withdrawal_requests
		WHERE user_id = $1 AND status IN ($2, $3, $4)`,
		userID, models.WithdrawalPending, models.WithdrawalProcessing, models.WithdrawalApproved).Scan(&held)
	return held, err
}

// CreateWithdrawal validates the amount against the minimum and the
// spendable balance, freezes the fee, exchange rate and bank details
// into the request and writes the informational hold entry, all in one
// transaction.
func (ws *WithdrawalService) CreateWithdrawal(userID string, bankAccountID int, goldAmount int64) (*models.GoldWithdrawalRequest, error) {
	if goldAmount < ws.minWithdrawal {
		return nil, fmt.Errorf("%w: minimum is %d gold", ErrBelowMinimum, ws.minWithdrawal)
	}

	tx, err := ws.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	account, err := ws.ledger.lockAccount(tx, userID)
	if err != nil {
		return nil, err
	}

	var bank models.BankAccount
	err = tx.QueryRow(`
		SELECT user_id, bank_name, bank_code, account_number, account_holder_name
		FROM bank_accounts WHERE id = $1`, bankAccountID).
		Scan(&bank.UserID, &bank.BankName, &bank.BankCode, &bank.AccountNumber, &bank.AccountHolderName)
	if err == sql.ErrNoRows || (err == nil && bank.UserID != userID) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	held, err := heldGold(tx.QueryRow, userID)
	if err != nil {
		return nil, err
	}
	if goldAmount > account.GoldBalance-held {
		return nil, fmt.Errorf("%w: spendable gold %d, requested %d", ErrInsufficientBalance, account.GoldBalance-held, goldAmount)
	}

	now := time.Now()
	request := &models.GoldWithdrawalRequest{
		ID:                uuid.New().String(),
		UserID:            userID,
		BankAccountID:     bankAccountID,
		BankName:          bank.BankName,
		BankCode:          bank.BankCode,
		AccountNumber:     bank.AccountNumber,
		AccountHolderName: bank.AccountHolderName,
		GoldAmount:        goldAmount,
		RupiahAmount:      goldAmount * ws.rupiahPerGold,
		FeeAmount:         ws.feeRupiah,
		Status:            models.WithdrawalPending,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	request.NetAmount = request.RupiahAmount - request.FeeAmount

	_, err = tx.Exec(`
		INSERT INTO gold_withdrawal_requests
		(id, user_id, bank_account_id, bank_name, bank_code, account_number, account_holder_name,
		 gold_amount, rupiah_amount, fee_amount, net_amount, status, admin_note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, '', $13, $14)`,
		request.ID, request.UserID, request.BankAccountID, request.BankName, request.BankCode,
		request.AccountNumber, request.AccountHolderName, request.GoldAmount,
		request.RupiahAmount, request.FeeAmount, request.NetAmount, request.Status,
		request.CreatedAt, request.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := ws.ledger.RecordEntryTx(tx, userID, models.CurrencyGold, -goldAmount, models.KindWithdrawalHold, request.ID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ws.audit.LogWithdrawal(request.ID, userID, "", models.WithdrawalPending, goldAmount)
	return request, nil
}

// CancelWithdrawal is the owner-initiated transition, legal only from
// pending. The hold releases through the spendable computation once the
// status is terminal.
func (ws *WithdrawalService) CancelWithdrawal(userID, requestID string) error {
	tx, err := ws.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	request, err := ws.lockRequest(tx, requestID)
	if err != nil {
		return err
	}
	if request.UserID != userID {
		return ErrNotFound
	}
	if request.Status != models.WithdrawalPending {
		return fmt.Errorf("%w: cannot cancel a %s request", ErrInvalidTransition, request.Status)
	}

	if err := ws.updateStatus(tx, requestID, models.WithdrawalCancelled, ""); err != nil {
		return err
	}

	if err := ws.ledger.RecordEntryTx(tx, userID, models.CurrencyGold, request.GoldAmount, models.KindWithdrawalRelease, requestID); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	ws.audit.LogWithdrawal(requestID, userID, models.WithdrawalPending, models.WithdrawalCancelled, request.GoldAmount)
	return nil
}

// AdvanceWithdrawal applies one admin-driven transition. The caller is
// responsible for the moderation-privilege check; this only enforces the
// transition table. The Gold debit happens exactly once, on approved to
// paid, after which the disbursement document is queued.
func (ws *WithdrawalService) AdvanceWithdrawal(requestID, targetStatus, adminNote string) (*models.GoldWithdrawalRequest, error) {
	if targetStatus == models.WithdrawalRejected && adminNote == "" {
		return nil, errors.New("admin note is required when rejecting")
	}

	tx, err := ws.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	request, err := ws.lockRequest(tx, requestID)
	if err != nil {
		return nil, err
	}

	if !models.CanTransition(request.Status, targetStatus) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, request.Status, targetStatus)
	}

	switch targetStatus {
	case models.WithdrawalRejected:
		// Status-only: funds were reserved, never debited.
		if err := ws.ledger.RecordEntryTx(tx, request.UserID, models.CurrencyGold, request.GoldAmount, models.KindWithdrawalRelease, requestID); err != nil {
			return nil, err
		}
	case models.WithdrawalPaid:
		if _, err := ws.ledger.MutateTx(tx, request.UserID, models.CurrencyGold, -request.GoldAmount, models.KindWithdrawalPayout, requestID); err != nil {
			return nil, err
		}
	}

	if err := ws.updateStatus(tx, requestID, targetStatus, adminNote); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ws.audit.LogWithdrawal(requestID, request.UserID, request.Status, targetStatus, request.GoldAmount)

	request.Status = targetStatus
	if adminNote != "" {
		request.AdminNote = adminNote
	}

	if targetStatus == models.WithdrawalPaid {
		ws.queueDisbursement(request)
	}

	return request, nil
}

// queueDisbursement builds the pacs.008 credit transfer for a paid
// request and pushes it for the payout worker. The bank details come
// from the snapshot frozen into the request. The debit is already
// committed; a queue failure is logged and retried out of band.
func (ws *WithdrawalService) queueDisbursement(request *models.GoldWithdrawalRequest) {
	if ws.redis == nil {
		return
	}

	doc, err := ws.disbursement.CreateCreditTransfer(request)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to build disbursement for %s: %v", request.ID, err)
		return
	}

	xmlData, err := ws.disbursement.ConvertToXML(doc)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to marshal disbursement for %s: %v", request.ID, err)
		return
	}

	if err := ws.redis.RPush(context.Background(), payoutQueue, xmlData).Err(); err != nil {
		log.Printf("[WITHDRAWAL] Failed to queue disbursement for %s: %v", request.ID, err)
	}
}

func (ws *WithdrawalService) GetWithdrawal(requestID string) (*models.GoldWithdrawalRequest, error) {
	return ws.scanRequest(ws.db.QueryRow(selectWithdrawal+` WHERE id = $1`, requestID))
}

func (ws *WithdrawalService) ListWithdrawals(userID string, limit int) ([]models.GoldWithdrawalRequest, error) {
	return ws.listRequests(selectWithdrawal+` WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
}

// ListByStatus is the admin moderation queue view.
func (ws *WithdrawalService) ListByStatus(status string, limit int) ([]models.GoldWithdrawalRequest, error) {
	if status == "" {
		return ws.listRequests(selectWithdrawal+` ORDER BY created_at ASC LIMIT $1`, limit)
	}
	return ws.listRequests(selectWithdrawal+` WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, status, limit)
}

const selectWithdrawal = `
	SELECT id, user_id, bank_account_id, bank_name, bank_code, account_number, account_holder_name,
	       gold_amount, rupiah_amount, fee_amount, net_amount, status, admin_note, created_at, updated_at
	FROM gold_withdrawal_requests`

func (ws *WithdrawalService) lockRequest(tx *sql.Tx, requestID string) (*models.GoldWithdrawalRequest, error) {
	return ws.scanRequest(tx.QueryRow(selectWithdrawal+` WHERE id = $1 FOR UPDATE`, requestID))
}

func (ws *WithdrawalService) scanRequest(row *sql.Row) (*models.GoldWithdrawalRequest, error) {
	var r models.GoldWithdrawalRequest
	err := row.Scan(&r.ID, &r.UserID, &r.BankAccountID, &r.BankName, &r.BankCode,
		&r.AccountNumber, &r.AccountHolderName, &r.GoldAmount, &r.RupiahAmount,
		&r.FeeAmount, &r.NetAmount, &r.Status, &r.AdminNote, &r.CreatedAt, &r.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (ws *WithdrawalService) listRequests(query string, args ...interface{}) ([]models.GoldWithdrawalRequest, error) {
	rows, err := ws.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := []models.GoldWithdrawalRequest{}
	for rows.Next() {
		var r models.GoldWithdrawalRequest
		if err := rows.Scan(&r.ID, &r.UserID, &r.BankAccountID, &r.BankName, &r.BankCode,
			&r.AccountNumber, &r.AccountHolderName, &r.GoldAmount, &r.RupiahAmount,
			&r.FeeAmount, &r.NetAmount, &r.Status, &r.AdminNote, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}
	return requests, rows.Err()
}

func (ws *WithdrawalService) updateStatus(tx *sql.Tx, requestID, status, adminNote string) error {
	if adminNote != "" {
		_, err := tx.Exec(`
			UPDATE gold_withdrawal_requests
			SET status = $1, admin_note = $2, updated_at = $3
			WHERE id = $4`, status, adminNote, time.Now(), requestID)
		return err
	}
	_, err := tx.Exec(`
		UPDATE gold_withdrawal_requests
		SET status = $1, updated_at = $2
		WHERE id = $3`, status, time.Now(), requestID)
	return err
}

// Bank account management.

func (ws *WithdrawalService) CreateBankAccount(userID string, req *models.CreateBankAccountRequest) (*models.BankAccount, error) {
	bankName, ok := BankNameByCode(req.BankCode)
	if !ok {
		return nil, fmt.Errorf("unknown bank code %s", req.BankCode)
	}

	tx, err := ws.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	if req.IsPrimary {
		if _, err := tx.Exec(`UPDATE bank_accounts SET is_primary = FALSE WHERE user_id = $1`, userID); err != nil {
			return nil, err
		}
	}

	account := &models.BankAccount{
		UserID:            userID,
		BankName:          bankName,
		BankCode:          req.BankCode,
		AccountNumber:     req.AccountNumber,
		AccountHolderName: req.AccountHolderName,
		IsPrimary:         req.IsPrimary,
		CreatedAt:         time.Now(),
	}

	err = tx.QueryRow(`
		INSERT INTO bank_accounts (user_id, bank_name, bank_code, account_number, account_holder_name, is_primary, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		account.UserID, account.BankName, account.BankCode, account.AccountNumber,
		account.AccountHolderName, account.IsPrimary, account.CreatedAt).Scan(&account.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return account, nil
}

func (ws *WithdrawalService) ListBankAccounts(userID string) ([]models.BankAccount, error) {
	rows, err := ws.db.Query(`
		SELECT id, user_id, bank_name, bank_code, account_number, account_holder_name, is_primary, created_at
		FROM bank_accounts
		WHERE user_id = $1
		ORDER BY is_primary DESC, created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := []models.BankAccount{}
	for rows.Next() {
		var a models.BankAccount
		if err := rows.Scan(&a.ID, &a.UserID, &a.BankName, &a.BankCode, &a.AccountNumber,
			&a.AccountHolderName, &a.IsPrimary, &a.CreatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteBankAccount refuses to remove an account still referenced by a
// non-terminal withdrawal request. Terminal history carries its own
// bank snapshot, so it never blocks deletion.
func (ws *WithdrawalService) DeleteBankAccount(userID string, bankAccountID int) error {
	var pending int
	err := ws.db.QueryRow(`
		SELECT COUNT(*) FROM gold_withdrawal_requests
		WHERE bank_account_id = $1 AND status IN ($2, $3, $4)`,
		bankAccountID, models.WithdrawalPending, models.WithdrawalProcessing, models.WithdrawalApproved).Scan(&pending)
	if err != nil {
		return err
	}
	if pending > 0 {
		return ErrBankAccountInUse
	}

	result, err := ws.db.Exec(`DELETE FROM bank_accounts WHERE id = $1 AND user_id = $2`, bankAccountID, userID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// HTTP handlers.

// HandleCreateBankAccount registers a payout bank account
// @Summary Add a bank account
// @Description Register a bank account for Gold withdrawals
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param account body models.CreateBankAccountRequest true "Bank account"
// @Success 201 {object} models.BankAccount
// @Failure 400 {object} ErrorResponse
// @Router /bank-accounts [post]
func (ws *WithdrawalService) HandleCreateBankAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.CreateBankAccountRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	account, err := ws.CreateBankAccount(userID, &req)
	if err != nil {
		log.Printf("[WITHDRAWAL] Failed to create bank account for %s: %v", userID, err)
		SendErrorResponse(w, "Failed to create bank account", http.StatusBadRequest, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(account)
}

// HandleListBankAccounts lists the caller's bank accounts
// @Summary List bank accounts
// @Tags withdrawals
// @Produce json
// @Success 200 {array} models.BankAccount
// @Router /bank-accounts [get]
func (ws *WithdrawalService) HandleListBankAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	accounts, err := ws.ListBankAccounts(userID)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch bank accounts", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(accounts)
}

// HandleDeleteBankAccount removes a bank account
// @Summary Delete a bank account
// @Description Remove a bank account not referenced by a pending withdrawal
// @Tags withdrawals
// @Produce json
// @Param id path int true "Bank account ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /bank-accounts/{id} [delete]
func (ws *WithdrawalService) HandleDeleteBankAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		SendErrorResponse(w, "Invalid bank account id", http.StatusBadRequest, nil)
		return
	}

	if err := ws.DeleteBankAccount(userID, id); err != nil {
		if errors.Is(err, ErrBankAccountInUse) {
			SendErrorResponse(w, "Bank account is used by a pending withdrawal", http.StatusConflict, nil)
			return
		}
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Bank account not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to delete bank account", http.StatusInternalServerError, nil)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleCreateWithdrawal creates a withdrawal request
// @Summary Request a Gold withdrawal
// @Description Create a pending withdrawal request, holding the Gold amount
// @Tags withdrawals
// @Accept json
// @Produce json
// @Param withdrawal body models.CreateWithdrawalRequest true "Withdrawal request"
// @Success 201 {object} models.GoldWithdrawalRequest
// @Failure 400 {object} ErrorResponse
// @Router /withdrawals [post]
func (ws *WithdrawalService) HandleCreateWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.CreateWithdrawalRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	request, err := ws.CreateWithdrawal(userID, req.BankAccountID, req.GoldAmount)
	if err != nil {
		switch {
		case errors.Is(err, ErrBelowMinimum):
			SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		case errors.Is(err, ErrInsufficientBalance):
			SendErrorResponse(w, "Withdrawal exceeds spendable Gold", http.StatusBadRequest, nil)
		case errors.Is(err, ErrNotFound):
			SendErrorResponse(w, "Bank account not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrAccountNotFound):
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		default:
			log.Printf("[WITHDRAWAL] Failed to create withdrawal for %s: %v", userID, err)
			SendErrorResponse(w, "Failed to create withdrawal, try again", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(request)
}

// HandleCancelWithdrawal cancels a pending withdrawal
// @Summary Cancel a withdrawal
// @Description Cancel the caller's own pending withdrawal request
// @Tags withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} map[string]string
// @Failure 409 {object} ErrorResponse
// @Router /withdrawals/{id}/cancel [post]
func (ws *WithdrawalService) HandleCancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requestID := chi.URLParam(r, "id")
	if err := ws.CancelWithdrawal(userID, requestID); err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
			return
		}
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Withdrawal not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[WITHDRAWAL] Failed to cancel %s: %v", requestID, err)
		SendErrorResponse(w, "Failed to cancel withdrawal, try again", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"id": requestID, "status": models.WithdrawalCancelled})
}

// HandleListWithdrawals lists the caller's withdrawal history
// @Summary List withdrawals
// @Tags withdrawals
// @Produce json
// @Success 200 {array} models.GoldWithdrawalRequest
// @Router /withdrawals [get]
func (ws *WithdrawalService) HandleListWithdrawals(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	requests, err := ws.ListWithdrawals(userID, 50)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawals", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// HandleGetWithdrawal returns one withdrawal request
// @Summary Get a withdrawal
// @Description Get a single withdrawal request by id
// @Tags withdrawals
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Success 200 {object} models.GoldWithdrawalRequest
// @Failure 404 {object} ErrorResponse
// @Router /withdrawals/{id} [get]
func (ws *WithdrawalService) HandleGetWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	request, err := ws.GetWithdrawal(chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Withdrawal not found", http.StatusNotFound, nil)
			return
		}
		SendErrorResponse(w, "Failed to fetch withdrawal", http.StatusInternalServerError, nil)
		return
	}

	// Owners see their own requests; moderators see all of them.
	role, _ := r.Context().Value("role").(string)
	if request.UserID != userID && role != "admin" {
		SendErrorResponse(w, "Withdrawal not found", http.StatusNotFound, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// HandleAdvanceWithdrawal applies an admin transition
// @Summary Advance a withdrawal (admin)
// @Description Move a withdrawal through the moderation state machine
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "Withdrawal ID"
// @Param transition body models.AdvanceWithdrawalRequest true "Target status"
// @Success 200 {object} models.GoldWithdrawalRequest
// @Failure 409 {object} ErrorResponse
// @Router /admin/withdrawals/{id}/advance [post]
func (ws *WithdrawalService) HandleAdvanceWithdrawal(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "id")

	var req models.AdvanceWithdrawalRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}
	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	request, err := ws.AdvanceWithdrawal(requestID, req.TargetStatus, req.AdminNote)
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
			return
		}
		if errors.Is(err, ErrNotFound) {
			SendErrorResponse(w, "Withdrawal not found", http.StatusNotFound, nil)
			return
		}
		if errors.Is(err, ErrInsufficientBalance) {
			SendErrorResponse(w, "Gold balance below held amount", http.StatusConflict, nil)
			return
		}
		log.Printf("[WITHDRAWAL] Failed to advance %s: %v", requestID, err)
		SendErrorResponse(w, "Failed to advance withdrawal, try again", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(request)
}

// HandleListByStatus lists withdrawals for moderation
// @Summary List withdrawals by status (admin)
// @Tags admin
// @Produce json
// @Param status query string false "Filter by status"
// @Success 200 {array} models.GoldWithdrawalRequest
// @Router /admin/withdrawals [get]
func (ws *WithdrawalService) HandleListByStatus(w http.ResponseWriter, r *http.Request) {
	requests, err := ws.ListByStatus(r.URL.Query().Get("status"), 100)
	if err != nil {
		SendErrorResponse(w, "Failed to fetch withdrawals", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// decodeJSONBody is the shared strict JSON decoder for request bodies.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must only contain a single JSON object")
	}
	return nil
}
