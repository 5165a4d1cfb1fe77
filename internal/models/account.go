package models

import (
	"time"
)

// Currency codes for the two virtual currencies.
const (
	CurrencySilver = "silver"
	CurrencyGold   = "gold"
)

// Ledger entry kinds. One constant per balance-touching operation.
const (
	KindPurchase          = "purchase"
	KindAdReward          = "ad_reward"
	KindConversionDebit   = "conversion_debit"
	KindConversionCredit  = "conversion_credit"
	KindChapterSpend      = "chapter_spend"
	KindWriterEarning     = "writer_earning"
	KindWithdrawalHold    = "withdrawal_hold"
	KindWithdrawalRelease = "withdrawal_release"
	KindWithdrawalPayout  = "withdrawal_payout"
)

// Account holds the current Silver and Gold balances for one user.
// Balances are only ever written through the ledger service.
type Account struct {
	UserID        string    `json:"user_id" db:"user_id"`
	SilverBalance int64     `json:"silver_balance" db:"silver_balance"`
	GoldBalance   int64     `json:"gold_balance" db:"gold_balance"`
	Version       int       `json:"version" db:"version"` // for optimistic locking
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

type LedgerEntry struct {
	ID          int       `json:"id" db:"id"`
	UserID      string    `json:"user_id" db:"user_id"`
	Currency    string    `json:"currency" db:"currency"` // silver or gold
	Amount      int64     `json:"amount" db:"amount"`     // signed
	Kind        string    `json:"kind" db:"kind"`
	ReferenceID string    `json:"reference_id" db:"reference_id"`
	Balance     int64     `json:"balance" db:"balance"` // balance after this entry
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// BalanceAffecting reports whether entries of this kind move the account
// balance. Hold and release entries are informational markers for the
// withdrawal reservation and are excluded from reconciliation sums.
func BalanceAffecting(kind string) bool {
	return kind != KindWithdrawalHold && kind != KindWithdrawalRelease
}
