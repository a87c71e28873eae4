package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/rs/zerolog"

	"github.com/digkill/ReferralBot/internal/metrics"
	"github.com/digkill/ReferralBot/internal/models"
	"github.com/digkill/ReferralBot/internal/repository"
)

const promoAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const DefaultPromoLength = 8

// GenerateCode picks length symbols uniformly from A-Z0-9.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultPromoLength
	}
	alphabetSize := big.NewInt(int64(len(promoAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("generate promo code: %w", err)
		}
		b.WriteByte(promoAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// RedeemResult is returned to the conversation layer for user feedback.
type RedeemResult struct {
	Outcome models.RedeemOutcome
	Owner   *models.PromoOwner
}

type PromoService struct {
	users UserStore
	log   zerolog.Logger
}

func NewPromoService(users UserStore, log zerolog.Logger) *PromoService {
	return &PromoService{users: users, log: log}
}

// Redeem applies a promo code entered by redeemer. The final claim runs in a
// single conditional transaction, so of any number of racing attempts by the
// same redeemer at most one is Accepted.
func (s *PromoService) Redeem(ctx context.Context, redeemerTelegramID int64, code string) (RedeemResult, error) {
	code = NormalizeCode(code)
	result, err := s.redeem(ctx, redeemerTelegramID, code)
	if err != nil {
		metrics.RedemptionsTotal.WithLabelValues("error").Inc()
		return result, err
	}
	metrics.RedemptionsTotal.WithLabelValues(result.Outcome.String()).Inc()
	s.log.Info().
		Int64("telegram_id", redeemerTelegramID).
		Str("code", code).
		Str("outcome", result.Outcome.String()).
		Msg("promo redemption")
	return result, nil
}

func (s *PromoService) redeem(ctx context.Context, redeemerTelegramID int64, code string) (RedeemResult, error) {
	if code == "" {
		return RedeemResult{Outcome: models.RedeemInvalidCode}, nil
	}
	owner, err := s.users.FindByPromo(ctx, code)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("find promo: %w", err)
	}
	if owner == nil {
		return RedeemResult{Outcome: models.RedeemInvalidCode}, nil
	}

	used, err := s.users.HasRedeemed(ctx, redeemerTelegramID)
	if err != nil {
		return RedeemResult{}, fmt.Errorf("check redeemed: %w", err)
	}
	if used {
		return RedeemResult{Outcome: models.RedeemAlreadyUsed, Owner: owner}, nil
	}
	if owner.TelegramID == redeemerTelegramID {
		return RedeemResult{Outcome: models.RedeemSelfReferral, Owner: owner}, nil
	}

	applied, err := s.users.ApplyRedemption(ctx, redeemerTelegramID, *owner)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return RedeemResult{}, ErrNotFound
		}
		return RedeemResult{}, fmt.Errorf("apply redemption: %w", err)
	}
	if !applied {
		return RedeemResult{Outcome: models.RedeemAlreadyUsed, Owner: owner}, nil
	}
	return RedeemResult{Outcome: models.RedeemAccepted, Owner: owner}, nil
}

// NormalizeCode trims whitespace and upper-cases user input.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
