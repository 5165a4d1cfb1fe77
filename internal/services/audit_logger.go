package services

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   string    `json:"event_type"`
	UserID      string    `json:"user_id"`
	Currency    string    `json:"currency,omitempty"`
	Amount      int64     `json:"amount"`
	ReferenceID string    `json:"reference_id,omitempty"`
	Status      string    `json:"status"`
	Details     any       `json:"details,omitempty"`
}

type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogMutation(userID, currency string, amount int64, kind, referenceID string) {
	a.log(AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "MUTATE",
		UserID:      userID,
		Currency:    currency,
		Amount:      amount,
		ReferenceID: referenceID,
		Status:      "SUCCESS",
		Details:     map[string]string{"kind": kind},
	})
}

func (a *AuditLogger) LogWithdrawal(requestID, userID, fromStatus, toStatus string, amount int64) {
	a.log(AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "WITHDRAWAL",
		UserID:      userID,
		Currency:    "gold",
		Amount:      amount,
		ReferenceID: requestID,
		Status:      toStatus,
		Details:     map[string]string{"from": fromStatus},
	})
}

func (a *AuditLogger) LogError(userID, referenceID string, err error) {
	a.log(AuditEvent{
		Timestamp:   time.Now(),
		EventType:   "ERROR",
		UserID:      userID,
		ReferenceID: referenceID,
		Status:      "FAILED",
		Details:     map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
