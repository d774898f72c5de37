package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RefundStatus represents the review state of a refund
type RefundStatus string

const (
	RefundStatusRequested RefundStatus = "REQUESTED"
	RefundStatusProcessed RefundStatus = "PROCESSED"
	RefundStatusRejected  RefundStatus = "REJECTED"
)

// Refund is created once per cancelled booking
type Refund struct {
	ID              uuid.UUID       `json:"id" db:"id"`
	BookingID       uuid.UUID       `json:"booking_id" db:"booking_id"`
	UserID          uuid.UUID       `json:"user_id" db:"user_id"`
	Amount          decimal.Decimal `json:"amount" db:"amount"`
	Reason          string          `json:"reason" db:"reason"`
	Status          RefundStatus    `json:"status" db:"status"`
	RejectionReason *string         `json:"rejection_reason,omitempty" db:"rejection_reason"`
	ReviewedBy      *uuid.UUID      `json:"reviewed_by,omitempty" db:"reviewed_by"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty" db:"reviewed_at"`
	RefundTxnID     *string         `json:"refund_txn_id,omitempty" db:"refund_txn_id"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
}

// RejectRefundRequest is the admin's reason for declining a refund
type RejectRefundRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// ============================================================================
// WALLET
// ============================================================================

// WalletTxnType is the direction of a wallet movement
type WalletTxnType string

const (
	WalletCredit WalletTxnType = "CREDIT"
	WalletDebit  WalletTxnType = "DEBIT"
)

// WalletTransaction is one ledger line of a passenger wallet
type WalletTransaction struct {
	ID          uuid.UUID       `json:"id" db:"id"`
	UserID      uuid.UUID       `json:"user_id" db:"user_id"`
	Type        WalletTxnType   `json:"type" db:"type"`
	Amount      decimal.Decimal `json:"amount" db:"amount"`
	Description string          `json:"description" db:"description"`
	BookingID   *uuid.UUID      `json:"booking_id,omitempty" db:"booking_id"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// Wallet is a passenger's balance with recent movements
type Wallet struct {
	UserID       uuid.UUID           `json:"user_id"`
	Balance      decimal.Decimal     `json:"balance"`
	Transactions []WalletTransaction `json:"transactions"`
}
