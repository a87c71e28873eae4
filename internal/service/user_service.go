package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/database"
	"github.com/digkill/ReferralBot/internal/metrics"
	"github.com/digkill/ReferralBot/internal/models"
	"github.com/digkill/ReferralBot/internal/repository"
)

type UserServiceConfig struct {
	CodeLength    int
	CodeAttempts  int
	ReferralShare decimal.Decimal
}

type UserService struct {
	cfg      UserServiceConfig
	users    UserStore
	payments PaymentStore
	log      zerolog.Logger
}

func NewUserService(cfg UserServiceConfig, users UserStore, payments PaymentStore, log zerolog.Logger) *UserService {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = DefaultPromoLength
	}
	if cfg.CodeAttempts <= 0 {
		cfg.CodeAttempts = 1
	}
	return &UserService{cfg: cfg, users: users, payments: payments, log: log}
}

// Register creates the user with a fresh promo code. A known identity yields
// ErrConflict together with the stored user; the first registration wins.
// A generated code that collides with an existing one is replaced and the
// insert retried up to CodeAttempts times.
func (s *UserService) Register(ctx context.Context, in models.NewUser, source string) (*models.User, error) {
	in.Username = NormalizeUsername(in.Username)
	in.InvitedByUsername = NormalizeUsername(in.InvitedByUsername)

	for attempt := 1; attempt <= s.cfg.CodeAttempts; attempt++ {
		code, err := GenerateCode(s.cfg.CodeLength)
		if err != nil {
			return nil, err
		}
		user, err := s.users.Create(ctx, in, code)
		if err == nil {
			metrics.RegistrationsTotal.WithLabelValues("created", source).Inc()
			s.log.Info().Int64("telegram_id", in.TelegramID).Str("promo_code", code).Str("source", source).Msg("user registered")
			return user, nil
		}
		if !database.IsUniqueViolation(err) {
			metrics.RegistrationsTotal.WithLabelValues("error", source).Inc()
			return nil, fmt.Errorf("register user: %w", err)
		}

		existing, findErr := s.users.FindByTelegramID(ctx, in.TelegramID)
		if findErr != nil {
			metrics.RegistrationsTotal.WithLabelValues("error", source).Inc()
			return nil, fmt.Errorf("register user: %w", findErr)
		}
		if existing != nil {
			metrics.RegistrationsTotal.WithLabelValues("conflict", source).Inc()
			s.log.Info().Int64("telegram_id", in.TelegramID).Str("source", source).Msg("user already exists")
			return existing, ErrConflict
		}
		metrics.PromoCollisionsTotal.Inc()
		s.log.Warn().Str("promo_code", code).Int("attempt", attempt).Msg("promo code collision, regenerating")
	}
	metrics.RegistrationsTotal.WithLabelValues("error", source).Inc()
	return nil, fmt.Errorf("register user: no unique promo code after %d attempts", s.cfg.CodeAttempts)
}

// Ensure registers the user if needed and returns the stored row either way.
func (s *UserService) Ensure(ctx context.Context, in models.NewUser) (*models.User, error) {
	user, err := s.Register(ctx, in, "telegram")
	if err != nil && !errors.Is(err, ErrConflict) {
		return nil, err
	}
	return user, nil
}

func (s *UserService) Get(ctx context.Context, telegramID int64) (*models.User, error) {
	user, err := s.users.FindByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

// ReferralIncome is the owner's share of a payment amount.
func (s *UserService) ReferralIncome(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(s.cfg.ReferralShare)
}

// CreditReferralPayment credits the owner with their share of amount.
func (s *UserService) CreditReferralPayment(ctx context.Context, ownerTelegramID int64, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return validation("amount must not be negative")
	}
	ok, err := s.users.CreditReferralPayment(ctx, ownerTelegramID, s.ReferralIncome(amount))
	if err != nil {
		metrics.ReferralPaymentsTotal.WithLabelValues("error").Inc()
		return err
	}
	if !ok {
		return ErrNotFound
	}
	metrics.ReferralPaymentsTotal.WithLabelValues("credited").Inc()
	return nil
}

// RecordReferralPayment credits the owner once per external payment id.
// A repeated confirmation returns ErrConflict and changes nothing.
func (s *UserService) RecordReferralPayment(ctx context.Context, p models.ReferralPayment) (*models.ReferralPayment, error) {
	if strings.TrimSpace(p.PaymentID) == "" {
		return nil, validation("payment_id is required")
	}
	if p.Amount.IsNegative() {
		return nil, validation("amount must not be negative")
	}
	p.Income = s.ReferralIncome(p.Amount)
	applied, err := s.payments.RecordAndCredit(ctx, &p)
	if err != nil {
		metrics.ReferralPaymentsTotal.WithLabelValues("error").Inc()
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !applied {
		metrics.ReferralPaymentsTotal.WithLabelValues("duplicate").Inc()
		return nil, ErrConflict
	}
	metrics.ReferralPaymentsTotal.WithLabelValues("credited").Inc()
	s.log.Info().
		Str("payment_id", p.PaymentID).
		Int64("owner_telegram_id", p.OwnerTelegramID).
		Str("income", p.Income.StringFixed(2)).
		Msg("referral payment credited")
	return &p, nil
}

func (s *UserService) All(ctx context.Context) ([]models.User, error) {
	return s.users.All(ctx)
}

// NormalizeUsername returns "@handle" or "" for an empty handle.
func NormalizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return ""
	}
	return "@" + username
}
