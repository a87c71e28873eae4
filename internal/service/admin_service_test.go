package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/models"
)

type stubSender struct {
	mu   sync.Mutex
	fail map[int64]bool
	sent map[int64][]string
}

func newStubSender(failing ...int64) *stubSender {
	s := &stubSender{fail: make(map[int64]bool), sent: make(map[int64][]string)}
	for _, id := range failing {
		s.fail[id] = true
	}
	return s
}

func (s *stubSender) SendText(_ context.Context, chatID int64, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail[chatID] {
		return fmt.Errorf("chat %d: bot was blocked by the user", chatID)
	}
	s.sent[chatID] = append(s.sent[chatID], text)
	return nil
}

func newAdminEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv(t)
	env.register(t, 1, "boss")
	if _, err := env.users.SetRole(context.Background(), 1, models.RoleAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	env.register(t, 2, "foo")
	return env
}

func TestAdminOperationsRequireRole(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	if _, err := env.adminSvc.GrantAdmin(ctx, 2, "2"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("grant: expected ErrPermissionDenied, got %v", err)
	}
	if _, _, err := env.adminSvc.SetBalance(ctx, 2, "@foo 100"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("set balance: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := env.adminSvc.Export(ctx, 2); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("export: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := env.adminSvc.ReferralLookup(ctx, 404, "1"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("lookup: expected ErrPermissionDenied, got %v", err)
	}
	sender := newStubSender()
	if _, err := env.adminSvc.Broadcast(ctx, 2, "hi", sender); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("broadcast: expected ErrPermissionDenied, got %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatalf("denied broadcast sent messages")
	}
	if role, _ := env.users.GetRole(ctx, 2); role != models.RoleUser {
		t.Fatalf("denied grant changed role")
	}
}

func TestGrantAdmin(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	target, err := env.adminSvc.GrantAdmin(ctx, 1, " 2 ")
	if err != nil || target != 2 {
		t.Fatalf("grant: %d, %v", target, err)
	}
	if role, _ := env.users.GetRole(ctx, 2); role != models.RoleAdmin {
		t.Fatalf("expected admin role")
	}
	for _, args := range []string{"", "abc", "1 2"} {
		if _, err := env.adminSvc.GrantAdmin(ctx, 1, args); !errors.Is(err, ErrValidation) {
			t.Fatalf("args %q: expected ErrValidation, got %v", args, err)
		}
	}
	if _, err := env.adminSvc.GrantAdmin(ctx, 1, "777"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSetBalanceByHandle(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()

	target, amount, err := env.adminSvc.SetBalance(ctx, 1, "@foo 3200")
	if err != nil {
		t.Fatalf("set balance: %v", err)
	}
	if target != "@foo" || !amount.Equal(decimal.NewFromInt(3200)) {
		t.Fatalf("unexpected result %s %s", target, amount)
	}
	u, _ := env.users.FindByTelegramID(ctx, 2)
	if !u.Balance.Equal(decimal.NewFromInt(3200)) {
		t.Fatalf("expected balance 3200, got %s", u.Balance)
	}

	_, _, err = env.adminSvc.SetBalance(ctx, 1, "@foo lots")
	var verr *ValidationError
	if !errors.As(err, &verr) || verr.Usage != UsageAmount {
		t.Fatalf("expected validation usage, got %v", err)
	}
	if _, _, err := env.adminSvc.SetBalance(ctx, 1, "@foo"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for missing amount, got %v", err)
	}
	u, _ = env.users.FindByTelegramID(ctx, 2)
	if !u.Balance.Equal(decimal.NewFromInt(3200)) {
		t.Fatalf("invalid input mutated balance: %s", u.Balance)
	}

	if _, _, err := env.adminSvc.SetBalance(ctx, 1, "2 99,5"); err != nil {
		t.Fatalf("set balance by id: %v", err)
	}
	u, _ = env.users.FindByTelegramID(ctx, 2)
	if !u.Balance.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("expected 99.5, got %s", u.Balance)
	}
	if _, _, err := env.adminSvc.SetBalance(ctx, 1, "@ghost 1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReferralLookup(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	if err := env.userSvc.CreditReferralPayment(ctx, 2, decimal.NewFromInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}

	s, err := env.adminSvc.ReferralLookup(ctx, 1, " 2 ")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if s.PaidReferralsCount != 1 || !s.ReferralIncome.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s, err := env.adminSvc.ReferralLookup(ctx, 1, "555"); err != nil || s.ReferralsCount != 0 {
		t.Fatalf("unknown target should be zeros: %+v, %v", s, err)
	}
	if _, err := env.adminSvc.ReferralLookup(ctx, 1, "abc"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestBroadcastContinuesPastFailures(t *testing.T) {
	env := newAdminEnv(t)
	ctx := context.Background()
	env.register(t, 3, "")

	sender := newStubSender(2)
	report, err := env.adminSvc.Broadcast(ctx, 1, "news", sender)
	if err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if report.Total != 3 || report.Sent != 2 || report.Failed != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(sender.sent[1]) != 1 || len(sender.sent[3]) != 1 {
		t.Fatalf("recipients after the failure were skipped: %v", sender.sent)
	}
	if _, err := env.adminSvc.BroadcastAll(ctx, "  ", sender); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for empty text, got %v", err)
	}
}
