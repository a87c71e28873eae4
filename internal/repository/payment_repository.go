package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/digkill/ReferralBot/internal/database"
	"github.com/digkill/ReferralBot/internal/models"
)

// PaymentRepository stores referral payment confirmations so a confirmation
// delivered twice credits the owner once.
type PaymentRepository struct {
	db *database.DB
}

func NewPaymentRepository(db *database.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// RecordAndCredit inserts the payment and credits the owner in one
// transaction. It reports false when the payment id was already recorded.
func (r *PaymentRepository) RecordAndCredit(ctx context.Context, p *models.ReferralPayment) (bool, error) {
	const insert = `
INSERT INTO referral_payments (payment_id, owner_telegram_id, referral_telegram_id, amount, income, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	const credit = `
UPDATE users
SET paid_referrals_count = paid_referrals_count + 1,
    referral_income = referral_income + ?
WHERE telegram_id = ?`

	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	applied := false
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, insert, p.PaymentID, p.OwnerTelegramID, p.ReferralTelegramID, p.Amount.InexactFloat64(), p.Income.InexactFloat64(), p.CreatedAt)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return nil
			}
			return fmt.Errorf("insert referral payment: %w", err)
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("payment last insert id: %w", err)
		}

		res, err = tx.ExecContext(ctx, credit, p.Income.InexactFloat64(), p.OwnerTelegramID)
		if err != nil {
			return fmt.Errorf("credit referral payment: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("credit rows affected: %w", err)
		}
		if affected == 0 {
			return ErrUserNotFound
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
