package models

import "time"

// GoldProduct is one entry of the static in-app-purchase catalog.
type GoldProduct struct {
	ProductID  string `json:"product_id"`
	BaseCoins  int64  `json:"base_coins"`
	BonusCoins int64  `json:"bonus_coins"`
}

// ProcessedPurchase is the dedup record for one credited store purchase.
// The purchase token is unique; a row existing for a token means the
// purchase has already been credited.
type ProcessedPurchase struct {
	PurchaseToken string    `json:"purchase_token" db:"purchase_token"`
	UserID        string    `json:"user_id" db:"user_id"`
	ProductID     string    `json:"product_id" db:"product_id"`
	CreditedCoins int64     `json:"credited_coins" db:"credited_coins"`
	ProcessedAt   time.Time `json:"processed_at" db:"processed_at"`
}

// CreditPurchaseRequest is the purchase-completion event delivered by the
// in-app-purchase processor.
type CreditPurchaseRequest struct {
	PurchaseToken string `json:"purchaseToken" validate:"required,max=200"`
	ProductID     string `json:"productId" validate:"required,max=64"`
}

type ConvertRequest struct {
	GoldUnits int64 `json:"goldUnits" validate:"required,gt=0,max=100000"`
}

type UnlockChapterRequest struct {
	ChapterID    string `json:"chapterId" validate:"required,max=64"`
	AuthorID     string `json:"authorId" validate:"required,max=64"`
	ChapterPrice int64  `json:"chapterPrice" validate:"required,gt=0"`
}
