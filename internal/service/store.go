package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/models"
)

// UserStore is the persistence the services need; *repository.UserRepository
// satisfies it.
type UserStore interface {
	Create(ctx context.Context, in models.NewUser, promoCode string) (*models.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByPromo(ctx context.Context, code string) (*models.PromoOwner, error)
	HasRedeemed(ctx context.Context, telegramID int64) (bool, error)
	ApplyRedemption(ctx context.Context, redeemerTelegramID int64, owner models.PromoOwner) (bool, error)
	CreditReferralPayment(ctx context.Context, ownerTelegramID int64, income decimal.Decimal) (bool, error)
	GetRole(ctx context.Context, telegramID int64) (models.Role, error)
	SetRole(ctx context.Context, telegramID int64, role models.Role) (bool, error)
	SetBalanceByTelegramID(ctx context.Context, telegramID int64, amount decimal.Decimal) (bool, error)
	ReferralSummary(ctx context.Context, telegramID int64) (models.ReferralSummary, error)
	All(ctx context.Context) ([]models.User, error)
	ListChatIDs(ctx context.Context) ([]int64, error)
}

// PaymentStore records referral payment confirmations.
type PaymentStore interface {
	RecordAndCredit(ctx context.Context, p *models.ReferralPayment) (bool, error)
}

// MessageSender delivers a plain text message to a chat.
type MessageSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}
