package models

import "time"

// Withdrawal request statuses. Paid, rejected and cancelled are terminal.
const (
	WithdrawalPending    = "pending"
	WithdrawalProcessing = "processing"
	WithdrawalApproved   = "approved"
	WithdrawalPaid       = "paid"
	WithdrawalRejected   = "rejected"
	WithdrawalCancelled  = "cancelled"
)

// withdrawalTransitions is the legal admin-transition table. Cancellation
// is user-only and handled separately.
var withdrawalTransitions = map[string][]string{
	WithdrawalPending:    {WithdrawalProcessing, WithdrawalRejected},
	WithdrawalProcessing: {WithdrawalApproved, WithdrawalRejected},
	WithdrawalApproved:   {WithdrawalPaid, WithdrawalRejected},
}

// CanTransition reports whether an admin may move a request from one
// status to another.
func CanTransition(from, to string) bool {
	for _, next := range withdrawalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TerminalStatus reports whether a request in this status no longer holds
// any Gold.
func TerminalStatus(status string) bool {
	return status == WithdrawalPaid || status == WithdrawalRejected || status == WithdrawalCancelled
}

type BankAccount struct {
	ID                int       `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	BankName          string    `json:"bank_name" db:"bank_name"`
	BankCode          string    `json:"bank_code" db:"bank_code"`
	AccountNumber     string    `json:"account_number" db:"account_number"`
	AccountHolderName string    `json:"account_holder_name" db:"account_holder_name"`
	IsPrimary         bool      `json:"is_primary" db:"is_primary"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}

// GoldWithdrawalRequest tracks one payout request from creation to a
// terminal state. The gold amount is held (excluded from spendable
// balance) while the request is pending, processing or approved; the
// actual debit happens once, on approved to paid. The destination bank
// details are snapshotted at creation, like the fee and rate, so the
// audit history stays intact after the bank account itself is deleted.
type GoldWithdrawalRequest struct {
	ID                string    `json:"id" db:"id"`
	UserID            string    `json:"user_id" db:"user_id"`
	BankAccountID     int       `json:"bank_account_id" db:"bank_account_id"`
	BankName          string    `json:"bank_name" db:"bank_name"`
	BankCode          string    `json:"bank_code" db:"bank_code"`
	AccountNumber     string    `json:"account_number" db:"account_number"`
	AccountHolderName string    `json:"account_holder_name" db:"account_holder_name"`
	GoldAmount        int64     `json:"gold_amount" db:"gold_amount"`
	RupiahAmount      int64     `json:"rupiah_amount" db:"rupiah_amount"`
	FeeAmount         int64     `json:"fee_amount" db:"fee_amount"`
	NetAmount         int64     `json:"net_amount" db:"net_amount"`
	Status            string    `json:"status" db:"status"`
	AdminNote         string    `json:"admin_note" db:"admin_note"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

type CreateBankAccountRequest struct {
	BankCode          string `json:"bankCode" validate:"required,bank_code"`
	AccountNumber     string `json:"accountNumber" validate:"required,min=8,max=20,numeric"`
	AccountHolderName string `json:"accountHolderName" validate:"required,max=100"`
	IsPrimary         bool   `json:"isPrimary"`
}

type CreateWithdrawalRequest struct {
	BankAccountID int   `json:"bankAccountId" validate:"required,gt=0"`
	GoldAmount    int64 `json:"goldAmount" validate:"required,gt=0"`
}

// AdvanceWithdrawalRequest is the admin moderation action. The note is
// required when rejecting.
type AdvanceWithdrawalRequest struct {
	TargetStatus string `json:"targetStatus" validate:"required,oneof=processing approved paid rejected"`
	AdminNote    string `json:"adminNote" validate:"max=500"`
}
