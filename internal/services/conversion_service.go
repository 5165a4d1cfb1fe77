package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/novelia/backend/internal/models"
)

// SilverPerGold is the fixed Silver to Gold exchange rate.
const SilverPerGold = 1000

// maxConvertUnits caps one conversion batch. Keeps the Silver cost far
// from int64 overflow no matter who calls Convert.
const maxConvertUnits = 100_000

// ConversionService handles Silver to Gold conversion and the daily
// capped rewarded-ad Silver grant.
type ConversionService struct {
	db          *sql.DB
	ledger      *LedgerService
	audit       *AuditLogger
	validator   *ValidationHelper
	dailyAdCap  int
	adRewardMin int64
	adRewardMax int64
}

type ConvertResult struct {
	GoldUnits     int64 `json:"goldUnits"`
	SilverDebited int64 `json:"silverDebited"`
	SilverBalance int64 `json:"silverBalance"`
	GoldBalance   int64 `json:"goldBalance"`
}

type AdRewardResult struct {
	Granted bool  `json:"granted"`
	Amount  int64 `json:"amount"`
	Balance int64 `json:"balance"`
}

func NewConversionService(db *sql.DB) *ConversionService {
	dailyAdCap := 5
	adRewardMin := int64(30)
	adRewardMax := int64(50)
	if env := os.Getenv("AD_REWARD_DAILY_CAP"); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			dailyAdCap = val
		}
	}
	if env := os.Getenv("AD_REWARD_MIN_SILVER"); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			adRewardMin = val
		}
	}
	if env := os.Getenv("AD_REWARD_MAX_SILVER"); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil {
			adRewardMax = val
		}
	}
	return &ConversionService{
		db:          db,
		ledger:      NewLedgerService(db),
		audit:       NewAuditLogger(),
		validator:   NewValidationHelper(),
		dailyAdCap:  dailyAdCap,
		adRewardMin: adRewardMin,
		adRewardMax: adRewardMax,
	}
}

// Convert debits goldUnits*1000 Silver and credits goldUnits Gold as one
// atomic batch. Partial conversion is never observable: both legs share
// one store transaction.
func (cs *ConversionService) Convert(userID string, goldUnits int64) (*ConvertResult, error) {
	if goldUnits <= 0 || goldUnits > maxConvertUnits {
		return nil, fmt.Errorf("gold units must be between 1 and %d", maxConvertUnits)
	}
	silverCost := goldUnits * SilverPerGold
	batchID := uuid.New().String()

	tx, err := cs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	silverBalance, err := cs.ledger.MutateTx(tx, userID, models.CurrencySilver, -silverCost, models.KindConversionDebit, batchID)
	if err != nil {
		return nil, err
	}

	goldBalance, err := cs.ledger.MutateTx(tx, userID, models.CurrencyGold, goldUnits, models.KindConversionCredit, batchID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	cs.audit.LogMutation(userID, models.CurrencyGold, goldUnits, models.KindConversionCredit, batchID)
	return &ConvertResult{
		GoldUnits:     goldUnits,
		SilverDebited: silverCost,
		SilverBalance: silverBalance,
		GoldBalance:   goldBalance,
	}, nil
}

// GrantAdReward credits Silver for one completed rewarded-ad view,
// capped per calendar day. The count check and the credit run in one
// transaction behind the account row lock, so two simultaneous ad
// completions cannot both slip under the cap.
func (cs *ConversionService) GrantAdReward(userID string) (*AdRewardResult, error) {
	amount := cs.adRewardMin
	if cs.adRewardMax > cs.adRewardMin {
		amount += rand.Int63n(cs.adRewardMax - cs.adRewardMin + 1)
	}
	rewardID := uuid.New().String()

	tx, err := cs.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock first so the count below is stable for this user.
	if _, err := cs.ledger.lockAccount(tx, userID); err != nil {
		return nil, err
	}

	var todayCount int
	err = tx.QueryRow(`
		SELECT COUNT(*) FROM ledger_entries
		WHERE user_id = $1 AND kind = $2 AND created_at::date = CURRENT_DATE`,
		userID, models.KindAdReward).Scan(&todayCount)
	if err != nil {
		return nil, err
	}

	if todayCount >= cs.dailyAdCap {
		return nil, ErrDailyCapReached
	}

	balance, err := cs.ledger.MutateTx(tx, userID, models.CurrencySilver, amount, models.KindAdReward, rewardID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	cs.audit.LogMutation(userID, models.CurrencySilver, amount, models.KindAdReward, rewardID)
	return &AdRewardResult{Granted: true, Amount: amount, Balance: balance}, nil
}

// HandleConvert converts Silver to Gold
// @Summary Convert Silver to Gold
// @Description Convert Silver to Gold at the fixed 1000:1 rate, atomically
// @Tags wallet
// @Accept json
// @Produce json
// @Param conversion body models.ConvertRequest true "Gold units to convert"
// @Success 200 {object} ConvertResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/convert [post]
func (cs *ConversionService) HandleConvert(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.ConvertRequest

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := cs.Convert(userID, req.GoldUnits)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			SendErrorResponse(w, "Insufficient Silver balance", http.StatusBadRequest, nil)
			return
		}
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[CONVERSION] Failed to convert for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to convert, try again", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// HandleAdReward grants the rewarded-ad Silver
// @Summary Grant ad reward
// @Description Credit Silver for a completed rewarded-ad view, capped per day
// @Tags wallet
// @Produce json
// @Success 200 {object} AdRewardResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /wallet/ad-reward [post]
func (cs *ConversionService) HandleAdReward(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	result, err := cs.GrantAdReward(userID)
	if err != nil {
		if errors.Is(err, ErrDailyCapReached) {
			SendErrorResponse(w, "Daily ad reward limit reached", http.StatusBadRequest, nil)
			return
		}
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[AD_REWARD] Failed to grant reward for user %s: %v", userID, err)
		SendErrorResponse(w, "Failed to grant reward, try again", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
