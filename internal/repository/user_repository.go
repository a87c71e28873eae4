package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/database"
	"github.com/digkill/ReferralBot/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, telegram_id, chat_id, COALESCE(username, ''), COALESCE(name, ''), COALESCE(last_name, ''), promo_code,
referrals_count, paid_referrals_count, referral_income, balance, COALESCE(invited_by_username, ''), role, used_promo, created_at`

// UserRepository is the single users table. Every method holds the store
// lock for exactly one logical operation.
type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var u models.User
	var role string
	var created sql.NullTime
	if err := row.Scan(&u.ID, &u.TelegramID, &u.ChatID, &u.Username, &u.Name, &u.LastName, &u.PromoCode,
		&u.ReferralsCount, &u.PaidReferralsCount, &u.ReferralIncome, &u.Balance, &u.InvitedByUsername, &role, &u.UsedPromo, &created); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if created.Valid {
		u.CreatedAt = created.Time
	}
	return &u, nil
}

// Create inserts a user with the given promo code. Uniqueness violations are
// returned as-is so the caller can tell identity and promo collisions apart.
func (r *UserRepository) Create(ctx context.Context, in models.NewUser, promoCode string) (*models.User, error) {
	const query = `
INSERT INTO users (telegram_id, chat_id, name, last_name, username, promo_code, invited_by_username, created_at)
VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''), ?, NULLIF(?, ''), ?)`
	now := time.Now().UTC()
	var id int64
	err := r.db.Serialize(func() error {
		res, err := r.db.ExecContext(ctx, query, in.TelegramID, in.ChatID, in.Name, in.LastName, in.Username, promoCode, in.InvitedByUsername, now)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return &models.User{
		ID:                id,
		TelegramID:        in.TelegramID,
		ChatID:            in.ChatID,
		Username:          in.Username,
		Name:              in.Name,
		LastName:          in.LastName,
		PromoCode:         promoCode,
		InvitedByUsername: in.InvitedByUsername,
		Role:              models.RoleUser,
		CreatedAt:         now,
	}, nil
}

func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = ?`
	var user *models.User
	err := r.db.Serialize(func() error {
		u, err := scanUser(r.db.QueryRowContext(ctx, query, telegramID))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return user, nil
}

func (r *UserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(username) = ?`
	var user *models.User
	err := r.db.Serialize(func() error {
		u, err := scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(username)))
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan user by username: %w", err)
	}
	return user, nil
}

func (r *UserRepository) FindByPromo(ctx context.Context, code string) (*models.PromoOwner, error) {
	const query = `SELECT telegram_id, COALESCE(username, '') FROM users WHERE promo_code = ?`
	var owner *models.PromoOwner
	err := r.db.Serialize(func() error {
		var o models.PromoOwner
		if err := r.db.QueryRowContext(ctx, query, code).Scan(&o.TelegramID, &o.Username); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		owner = &o
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("find promo owner: %w", err)
	}
	return owner, nil
}

// HasRedeemed is false for unknown users.
func (r *UserRepository) HasRedeemed(ctx context.Context, telegramID int64) (bool, error) {
	const query = `SELECT used_promo FROM users WHERE telegram_id = ?`
	var used bool
	err := r.db.Serialize(func() error {
		if err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&used); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("check used promo: %w", err)
	}
	return used, nil
}

// MarkRedeemed sets used_promo. Repeated calls are harmless.
func (r *UserRepository) MarkRedeemed(ctx context.Context, telegramID int64) error {
	const query = `UPDATE users SET used_promo = 1 WHERE telegram_id = ? AND used_promo = 0`
	if err := r.exec(ctx, query, telegramID); err != nil {
		return fmt.Errorf("mark promo used: %w", err)
	}
	return nil
}

func (r *UserRepository) IncrementReferral(ctx context.Context, ownerTelegramID int64) error {
	const query = `UPDATE users SET referrals_count = referrals_count + 1 WHERE telegram_id = ?`
	if err := r.exec(ctx, query, ownerTelegramID); err != nil {
		return fmt.Errorf("increment referrals: %w", err)
	}
	return nil
}

// ApplyRedemption marks the redeemer as having used a promo, records who
// invited them and credits the owner, all in one transaction. It reports
// false when the redeemer had already used a promo by the time the
// transaction ran.
func (r *UserRepository) ApplyRedemption(ctx context.Context, redeemerTelegramID int64, owner models.PromoOwner) (bool, error) {
	applied := false
	err := r.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE users SET used_promo = 1, invited_by_username = NULLIF(?, '') WHERE telegram_id = ? AND used_promo = 0`,
			owner.Username, redeemerTelegramID)
		if err != nil {
			return fmt.Errorf("claim redemption: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("claim rows affected: %w", err)
		}
		if affected == 0 {
			var dummy int
			if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE telegram_id = ?`, redeemerTelegramID).Scan(&dummy); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrUserNotFound
				}
				return fmt.Errorf("check redeemer: %w", err)
			}
			return nil
		}

		res, err = tx.ExecContext(ctx, `UPDATE users SET referrals_count = referrals_count + 1 WHERE telegram_id = ?`, owner.TelegramID)
		if err != nil {
			return fmt.Errorf("credit owner: %w", err)
		}
		if affected, err = res.RowsAffected(); err != nil {
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

// CreditReferralPayment records a paid referral for the owner. income is the
// owner's share, already computed by the caller.
func (r *UserRepository) CreditReferralPayment(ctx context.Context, ownerTelegramID int64, income decimal.Decimal) (bool, error) {
	const query = `
UPDATE users
SET paid_referrals_count = paid_referrals_count + 1,
    referral_income = referral_income + ?
WHERE telegram_id = ?`
	affected, err := r.execAffected(ctx, query, income.InexactFloat64(), ownerTelegramID)
	if err != nil {
		return false, fmt.Errorf("credit referral payment: %w", err)
	}
	return affected > 0, nil
}

// GetRole defaults to RoleUser for unknown users and unrecognized roles.
func (r *UserRepository) GetRole(ctx context.Context, telegramID int64) (models.Role, error) {
	const query = `SELECT role FROM users WHERE telegram_id = ?`
	role := string(models.RoleUser)
	err := r.db.Serialize(func() error {
		if err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&role); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.RoleUser, fmt.Errorf("get role: %w", err)
	}
	if !models.Role(role).Valid() {
		return models.RoleUser, nil
	}
	return models.Role(role), nil
}

func (r *UserRepository) SetRole(ctx context.Context, telegramID int64, role models.Role) (bool, error) {
	if !role.Valid() {
		return false, fmt.Errorf("set role: unknown role %q", role)
	}
	const query = `UPDATE users SET role = ? WHERE telegram_id = ?`
	affected, err := r.execAffected(ctx, query, string(role), telegramID)
	if err != nil {
		return false, fmt.Errorf("set role: %w", err)
	}
	return affected > 0, nil
}

func (r *UserRepository) SetBalanceByTelegramID(ctx context.Context, telegramID int64, amount decimal.Decimal) (bool, error) {
	const query = `UPDATE users SET balance = ? WHERE telegram_id = ?`
	affected, err := r.execAffected(ctx, query, amount.InexactFloat64(), telegramID)
	if err != nil {
		return false, fmt.Errorf("set balance: %w", err)
	}
	return affected > 0, nil
}

// ReferralSummary is all zeros for unknown users.
func (r *UserRepository) ReferralSummary(ctx context.Context, telegramID int64) (models.ReferralSummary, error) {
	const query = `SELECT referrals_count, paid_referrals_count, referral_income FROM users WHERE telegram_id = ?`
	var s models.ReferralSummary
	err := r.db.Serialize(func() error {
		if err := r.db.QueryRowContext(ctx, query, telegramID).Scan(&s.ReferralsCount, &s.PaidReferralsCount, &s.ReferralIncome); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				s = models.ReferralSummary{}
				return nil
			}
			return err
		}
		return nil
	})
	if err != nil {
		return models.ReferralSummary{}, fmt.Errorf("referral summary: %w", err)
	}
	return s, nil
}

// All returns every user ordered by insertion.
func (r *UserRepository) All(ctx context.Context) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY id ASC`
	var users []models.User
	err := r.db.Serialize(func() error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			users = append(users, *u)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

func (r *UserRepository) ListChatIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT chat_id FROM users ORDER BY id ASC`
	var ids []int64
	err := r.db.Serialize(func() error {
		rows, err := r.db.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("list chat ids: %w", err)
	}
	return ids, nil
}

func (r *UserRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.execAffected(ctx, query, args...)
	return err
}

func (r *UserRepository) execAffected(ctx context.Context, query string, args ...any) (int64, error) {
	var affected int64
	err := r.db.Serialize(func() error {
		res, err := r.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}
