package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction identifies the kind of event recorded in the audit trail.
type AuditAction string

const (
	AuditPurchase        AuditAction = "PURCHASE"
	AuditTopupIssued     AuditAction = "TOPUP_ISSUED"
	AuditTopupCompleted  AuditAction = "TOPUP_COMPLETED"
	AuditTopupExpired    AuditAction = "TOPUP_EXPIRED"
	AuditManualCredit    AuditAction = "MANUAL_CREDIT"
	AuditPaymentSettled  AuditAction = "PAYMENT_SETTLED"
	AuditRateChanged     AuditAction = "RATE_CHANGED"
	AuditAccountLocked   AuditAction = "ACCOUNT_LOCKED"
	AuditAccountUnlocked AuditAction = "ACCOUNT_UNLOCKED"
)

// AuditLog records a money-moving or administrative event.
type AuditLog struct {
	ID        uuid.UUID   `json:"id"`
	AccountID *uuid.UUID  `json:"account_id,omitempty"`
	Action    AuditAction `json:"action"`
	Detail    string      `json:"detail"`
	IP        string      `json:"ip,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}
