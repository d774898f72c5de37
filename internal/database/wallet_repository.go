package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/happybusride/booking-backend/internal/models"
)

// WalletRepository handles passenger wallet balances and their ledger
type WalletRepository struct {
	db sqlx.ExtContext
}

// NewWalletRepository creates a new WalletRepository
func NewWalletRepository(db sqlx.ExtContext) *WalletRepository {
	return &WalletRepository{db: db}
}

// CreditWallet adds txn.Amount to the user's balance and records the ledger line
func (r *WalletRepository) CreditWallet(ctx context.Context, txn *models.WalletTransaction) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := sqlx.GetContext(ctx, r.db, &balance, `
		UPDATE users SET wallet_balance = wallet_balance + $2, updated_at = $3
		WHERE id = $1
		RETURNING wallet_balance`, txn.UserID, txn.Amount, txn.CreatedAt)
	if err == sql.ErrNoRows {
		return decimal.Zero, fmt.Errorf("user %s not found", txn.UserID)
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to credit wallet: %w", err)
	}

	query := `
		INSERT INTO wallet_transactions (id, user_id, type, amount, description, booking_id, created_at)
		VALUES (:id, :user_id, :type, :amount, :description, :booking_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, query, txn); err != nil {
		return decimal.Zero, fmt.Errorf("failed to record wallet transaction: %w", err)
	}

	return balance, nil
}

// GetWallet returns the balance and the most recent transactions
func (r *WalletRepository) GetWallet(ctx context.Context, userID uuid.UUID, limit int) (*models.Wallet, error) {
	wallet := &models.Wallet{UserID: userID, Transactions: []models.WalletTransaction{}}

	err := sqlx.GetContext(ctx, r.db, &wallet.Balance,
		`SELECT wallet_balance FROM users WHERE id = $1`, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet balance: %w", err)
	}

	err = sqlx.SelectContext(ctx, r.db, &wallet.Transactions, `
		SELECT id, user_id, type, amount, description, booking_id, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list wallet transactions: %w", err)
	}

	return wallet, nil
}
