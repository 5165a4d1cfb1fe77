package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/lib/pq"
	"github.com/novelia/backend/internal/models"
)

const uniqueViolation = "23505"

// purchaseAckQueue holds credited purchase tokens until an external
// worker acknowledges them with the store processor.
const purchaseAckQueue = "purchase_ack_queue"

// goldProducts is the static product catalog. Unknown product ids are
// rejected before any row is written.
var goldProducts = map[string]models.GoldProduct{
	"gold_100":  {ProductID: "gold_100", BaseCoins: 100, BonusCoins: 0},
	"gold_300":  {ProductID: "gold_300", BaseCoins: 300, BonusCoins: 10},
	"gold_500":  {ProductID: "gold_500", BaseCoins: 500, BonusCoins: 25},
	"gold_1000": {ProductID: "gold_1000", BaseCoins: 1000, BonusCoins: 80},
	"gold_2000": {ProductID: "gold_2000", BaseCoins: 2000, BonusCoins: 200},
	"gold_5000": {ProductID: "gold_5000", BaseCoins: 5000, BonusCoins: 750},
}

// PurchaseService credits store purchases exactly once per purchase
// token and hands the token to the acknowledgement queue afterwards.
type PurchaseService struct {
	db        *sql.DB
	redis     *redis.Client
	ledger    *LedgerService
	audit     *AuditLogger
	validator *ValidationHelper
}

type CreditResult struct {
	Credited   bool  `json:"credited"`
	TotalCoins int64 `json:"totalCoins"`
}

func NewPurchaseService(db *sql.DB, redisClient *redis.Client) *PurchaseService {
	return &PurchaseService{
		db:        db,
		redis:     redisClient,
		ledger:    NewLedgerService(db),
		audit:     NewAuditLogger(),
		validator: NewValidationHelper(),
	}
}

// CreditPurchase credits the Gold for one store purchase. A second call
// with the same token reports credited=false and changes nothing; the
// dedup row and the credit commit atomically, so a retry after a partial
// failure can never double-credit.
func (ps *PurchaseService) CreditPurchase(purchaseToken, userID, productID string) (*CreditResult, error) {
	product, ok := goldProducts[productID]
	if !ok {
		return nil, ErrUnknownProduct
	}
	totalCoins := product.BaseCoins + product.BonusCoins

	tx, err := ps.db.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO processed_purchases (purchase_token, user_id, product_id, credited_coins, processed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		purchaseToken, userID, productID, totalCoins, time.Now())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			// Already credited by an earlier delivery of this event.
			return ps.alreadyCredited(purchaseToken)
		}
		return nil, err
	}

	if _, err := ps.ledger.MutateTx(tx, userID, models.CurrencyGold, totalCoins, models.KindPurchase, purchaseToken); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	ps.audit.LogMutation(userID, models.CurrencyGold, totalCoins, models.KindPurchase, purchaseToken)
	ps.queueAcknowledgement(purchaseToken)

	return &CreditResult{Credited: true, TotalCoins: totalCoins}, nil
}

func (ps *PurchaseService) alreadyCredited(purchaseToken string) (*CreditResult, error) {
	var coins int64
	err := ps.db.QueryRow(`
		SELECT credited_coins FROM processed_purchases WHERE purchase_token = $1`,
		purchaseToken).Scan(&coins)
	if err != nil {
		return nil, err
	}
	log.Printf("[PURCHASE] Duplicate purchase token ignored: %s", purchaseToken)

	// A redelivery usually means the first acknowledgement was lost.
	// Queue it again; the ack consumer is idempotent per token.
	ps.queueAcknowledgement(purchaseToken)

	return &CreditResult{Credited: false, TotalCoins: coins}, nil
}

// queueAcknowledgement pushes the token for the external acknowledgement
// worker. Funds are already granted, so a queue failure must not fail the
// request; the store processor retries unacknowledged purchases itself.
func (ps *PurchaseService) queueAcknowledgement(purchaseToken string) {
	if ps.redis == nil {
		return
	}
	if err := ps.redis.RPush(context.Background(), purchaseAckQueue, purchaseToken).Err(); err != nil {
		log.Printf("[PURCHASE] Failed to queue acknowledgement for %s: %v", purchaseToken, err)
	}
}

// HandleCreditPurchase credits a completed store purchase
// @Summary Credit an in-app purchase
// @Description Credit Gold for a completed store purchase, idempotent per purchase token
// @Tags purchases
// @Accept json
// @Produce json
// @Param purchase body models.CreditPurchaseRequest true "Purchase completion event"
// @Success 200 {object} CreditResult
// @Failure 400 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /purchases/credit [post]
func (ps *PurchaseService) HandleCreditPurchase(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req models.CreditPurchaseRequest

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

	if err := ps.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := ps.CreditPurchase(req.PurchaseToken, userID, req.ProductID)
	if err != nil {
		if errors.Is(err, ErrUnknownProduct) {
			SendErrorResponse(w, "Unknown product", http.StatusBadRequest, nil)
			return
		}
		if errors.Is(err, ErrAccountNotFound) {
			SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
			return
		}
		log.Printf("[PURCHASE] Failed to credit purchase %s: %v", req.PurchaseToken, err)
		ps.audit.LogError(userID, req.PurchaseToken, err)
		SendErrorResponse(w, "Failed to process purchase, try again", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// ListProducts returns the purchasable Gold packages
// @Summary List Gold products
// @Description Get the static catalog of purchasable Gold packages
// @Tags purchases
// @Produce json
// @Success 200 {array} models.GoldProduct
// @Router /purchases/products [get]
func (ps *PurchaseService) ListProducts(w http.ResponseWriter, r *http.Request) {
	products := make([]models.GoldProduct, 0, len(goldProducts))
	for _, p := range goldProducts {
		products = append(products, p)
	}
	sort.Slice(products, func(i, j int) bool { return products[i].BaseCoins < products[j].BaseCoins })

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	json.NewEncoder(w).Encode(products)
}
