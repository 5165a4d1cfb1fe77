package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/novelia/backend/internal/models"
)

// EarningsService splits the Gold spent on a paid-chapter unlock between
// the platform and the chapter's author. Both legs commit together; a
// debited reader with no matching writer credit is never observable.
type EarningsService struct {
	db          *sql.DB
	ledger      *LedgerService
	audit       *AuditLogger
	validator   *ValidationHelper
	writerShare int64 // percent of the chapter price credited to the author
}

type UnlockResult struct {
	ChapterID     string `json:"chapterId"`
	ReaderDebited int64  `json:"readerDebited"`
	WriterEarned  int64  `json:"writerEarned"`
	GoldBalance   int64  `json:"goldBalance"`
}

func NewEarningsService(db *sql.DB) *EarningsService {
	writerShare := int64(70)
	if env := os.Getenv("WRITER_SHARE_PERCENT"); env != "" {
		if val, err := strconv.ParseInt(env, 10, 64); err == nil && val >= 0 && val <= 100 {
			writerShare = val
		}
	}
	return &EarningsService{
		db:          db,
		ledger:      NewLedgerService(db),
		audit:       NewAuditLogger(),
		validator:   NewValidationHelper(),
		writerShare: writerShare,
	}
}

// UnlockChapter debits the reader and credits the author in one
// transaction. The price is checked against the reader's spendable Gold
// (balance minus open withdrawal holds). The platform keeps the
// remainder implicitly; no platform account row is written.
func (es *EarningsService) UnlockChapter(readerID, chapterID, authorID string, chapterPrice int64) (*UnlockResult, error) {
	if chapterPrice <= 0 {
		return nil, errors.New("chapter price must be positive")
	}
	writerEarning := chapterPrice * es.writerShare / 100

	tx, err := es.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Lock both accounts in consistent order to prevent deadlocks
	// between concurrent unlocks in opposite directions.
	firstLock, secondLock := readerID, authorID
	if readerID > authorID {
		firstLock, secondLock = authorID, readerID
	}
	readerAccount, err := es.ledger.lockAccount(tx, firstLock)
	if err != nil {
		return nil, err
	}
	if firstLock != secondLock {
		second, err := es.ledger.lockAccount(tx, secondLock)
		if err != nil {
			return nil, err
		}
		if secondLock == readerID {
			readerAccount = second
		}
	}

	// Gold reserved by open withdrawal requests is not spendable on
	// chapters; a later payout must never find the balance short.
	held, err := heldGold(tx.QueryRow, readerID)
	if err != nil {
		return nil, err
	}
	if chapterPrice > readerAccount.GoldBalance-held {
		return nil, fmt.Errorf("%w: spendable gold %d, chapter price %d",
			ErrInsufficientBalance, readerAccount.GoldBalance-held, chapterPrice)
	}

	readerBalance, err := es.ledger.MutateTx(tx, readerID, models.CurrencyGold, -chapterPrice, models.KindChapterSpend, chapterID)
	if err != nil {
		return nil, err
	}

	if writerEarning > 0 {
		if _, err := es.ledger.MutateTx(tx, authorID, models.CurrencyGold, writerEarning, models.KindWriterEarning, chapterID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	es.audit.LogMutation(readerID, models.CurrencyGold, -chapterPrice, models.KindChapterSpend, chapterID)
	return &UnlockResult{
		ChapterID:     chapterID,
		ReaderDebited: chapterPrice,
		WriterEarned:  writerEarning,
		GoldBalance:   readerBalance,
	}, nil
}

// HandleUnlockChapter unlocks a paid chapter
// @Summary Unlock a paid chapter
// @Description Spend Gold to unlock a chapter, crediting the author's share
// @Tags chapters
// @Accept json
// @Produce json
// @Param unlock body models.UnlockChapterRequest true "Chapter unlock"
// @Success 200 {object} UnlockResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /chapters/unlock [post]
func (es *EarningsService) HandleUnlockChapter(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.UnlockChapterRequest

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

	if err := es.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := es.UnlockChapter(userID, req.ChapterID, req.AuthorID, req.ChapterPrice)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			SendErrorResponse(w, "Insufficient Gold balance", http.StatusBadRequest, nil)
			return
		}
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[EARNINGS] Failed to unlock chapter %s for reader %s: %v", req.ChapterID, userID, err)
		es.audit.LogError(userID, req.ChapterID, err)
		SendErrorResponse(w, "Failed to unlock chapter, try again", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
