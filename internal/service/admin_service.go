package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/metrics"
	"github.com/digkill/ReferralBot/internal/models"
)

const (
	UsageSetAdmin   = "/setadmin <telegram_id>"
	UsageSetBalance = "/setbalance @username 3200"
	UsageAmount     = "amount must be a number"
	UsageLookup     = "Telegram ID must be a number"
)

// AdminService gates every operation on the caller holding RoleAdmin.
type AdminService struct {
	users UserStore
	log   zerolog.Logger
}

func NewAdminService(users UserStore, log zerolog.Logger) *AdminService {
	return &AdminService{users: users, log: log}
}

// Authorize returns ErrPermissionDenied for non-admins.
func (s *AdminService) Authorize(ctx context.Context, callerTelegramID int64) error {
	role, err := s.users.GetRole(ctx, callerTelegramID)
	if err != nil {
		return fmt.Errorf("get caller role: %w", err)
	}
	if role != models.RoleAdmin {
		s.log.Warn().Int64("telegram_id", callerTelegramID).Msg("admin operation denied")
		return ErrPermissionDenied
	}
	return nil
}

// GrantAdmin parses the command arguments ("<telegram_id>") and promotes the target.
func (s *AdminService) GrantAdmin(ctx context.Context, callerTelegramID int64, args string) (int64, error) {
	if err := s.Authorize(ctx, callerTelegramID); err != nil {
		return 0, err
	}
	fields := strings.Fields(args)
	if len(fields) != 1 {
		return 0, validation(UsageSetAdmin)
	}
	target, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, validation(UsageSetAdmin)
	}
	ok, err := s.users.SetRole(ctx, target, models.RoleAdmin)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrNotFound
	}
	s.log.Info().Int64("caller", callerTelegramID).Int64("target", target).Msg("admin role granted")
	return target, nil
}

// SetBalance parses "<@handle|telegram_id> <amount>" and sets the balance.
func (s *AdminService) SetBalance(ctx context.Context, callerTelegramID int64, args string) (string, decimal.Decimal, error) {
	if err := s.Authorize(ctx, callerTelegramID); err != nil {
		return "", decimal.Zero, err
	}
	fields := strings.Fields(args)
	if len(fields) != 2 {
		return "", decimal.Zero, validation(UsageSetBalance)
	}
	amount, err := decimal.NewFromString(strings.Replace(fields[1], ",", ".", 1))
	if err != nil {
		return "", decimal.Zero, validation(UsageAmount)
	}

	target := strings.ToLower(fields[0])
	id, convErr := strconv.ParseInt(target, 10, 64)
	if convErr != nil {
		target = NormalizeUsername(target)
		user, err := s.users.FindByUsername(ctx, target)
		if err != nil {
			return "", decimal.Zero, err
		}
		if user == nil {
			return target, decimal.Zero, ErrNotFound
		}
		id = user.TelegramID
	}
	ok, err := s.users.SetBalanceByTelegramID(ctx, id, amount)
	if err != nil {
		return "", decimal.Zero, err
	}
	if !ok {
		return target, decimal.Zero, ErrNotFound
	}
	s.log.Info().Int64("caller", callerTelegramID).Str("target", target).Str("amount", amount.String()).Msg("balance set")
	return target, amount, nil
}

// Export returns every user row for the spreadsheet artifact.
func (s *AdminService) Export(ctx context.Context, callerTelegramID int64) ([]models.User, error) {
	if err := s.Authorize(ctx, callerTelegramID); err != nil {
		return nil, err
	}
	return s.users.All(ctx)
}

// ReferralLookup returns the counters of the user whose id is typed by the admin.
func (s *AdminService) ReferralLookup(ctx context.Context, callerTelegramID int64, rawTarget string) (models.ReferralSummary, error) {
	if err := s.Authorize(ctx, callerTelegramID); err != nil {
		return models.ReferralSummary{}, err
	}
	target, err := strconv.ParseInt(strings.TrimSpace(rawTarget), 10, 64)
	if err != nil {
		return models.ReferralSummary{}, validation(UsageLookup)
	}
	return s.users.ReferralSummary(ctx, target)
}

// BroadcastReport summarizes a fan-out.
type BroadcastReport struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}

// Broadcast checks the caller and then fans out.
func (s *AdminService) Broadcast(ctx context.Context, callerTelegramID int64, text string, sender MessageSender) (BroadcastReport, error) {
	if err := s.Authorize(ctx, callerTelegramID); err != nil {
		return BroadcastReport{}, err
	}
	return s.BroadcastAll(ctx, text, sender)
}

// BroadcastAll sends text to every registered chat. A failed delivery is
// logged and skipped; it never aborts the remaining sends.
func (s *AdminService) BroadcastAll(ctx context.Context, text string, sender MessageSender) (BroadcastReport, error) {
	if strings.TrimSpace(text) == "" {
		return BroadcastReport{}, validation("message required")
	}
	ids, err := s.users.ListChatIDs(ctx)
	if err != nil {
		return BroadcastReport{}, err
	}
	report := BroadcastReport{Total: len(ids)}
	for _, id := range ids {
		if err := sender.SendText(ctx, id, text); err != nil {
			report.Failed++
			metrics.BroadcastDeliveriesTotal.WithLabelValues("failed").Inc()
			s.log.Error().Err(err).Int64("chat_id", id).Msg("send broadcast")
			continue
		}
		report.Sent++
		metrics.BroadcastDeliveriesTotal.WithLabelValues("sent").Inc()
	}
	s.log.Info().Int("total", report.Total).Int("sent", report.Sent).Int("failed", report.Failed).Msg("broadcast finished")
	return report, nil
}
