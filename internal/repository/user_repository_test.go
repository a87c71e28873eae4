package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/config"
	"github.com/digkill/ReferralBot/internal/database"
	"github.com/digkill/ReferralBot/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Connect(config.DatabaseConfig{
		Driver: database.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bot.db"),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustCreate(t *testing.T, repo *UserRepository, id int64, username, code string) *models.User {
	t.Helper()
	u, err := repo.Create(context.Background(), models.NewUser{
		TelegramID: id,
		ChatID:     id + 1000,
		Name:       fmt.Sprintf("User%d", id),
		Username:   username,
	}, code)
	if err != nil {
		t.Fatalf("create user %d: %v", id, err)
	}
	return u
}

func TestCreateAndFind(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "@Alice", "ABC12345")

	u, err := repo.FindByTelegramID(ctx, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if u == nil || u.PromoCode != "ABC12345" || u.ChatID != 1001 || u.Role != models.RoleUser || u.UsedPromo {
		t.Fatalf("unexpected user: %+v", u)
	}
	if u.CreatedAt.IsZero() {
		t.Fatalf("created_at not populated")
	}

	byName, err := repo.FindByUsername(ctx, "@alice")
	if err != nil || byName == nil || byName.TelegramID != 1 {
		t.Fatalf("find by username: %+v, %v", byName, err)
	}

	missing, err := repo.FindByTelegramID(ctx, 404)
	if err != nil || missing != nil {
		t.Fatalf("expected nil for unknown user, got %+v, %v", missing, err)
	}
}

func TestCreateDuplicateIdentityIsUniqueViolation(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	mustCreate(t, repo, 1, "", "ABC12345")

	_, err := repo.Create(context.Background(), models.NewUser{TelegramID: 1, ChatID: 1}, "ZZZ99999")
	if !database.IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}
	u, _ := repo.FindByTelegramID(context.Background(), 1)
	if u.PromoCode != "ABC12345" {
		t.Fatalf("promo code changed to %s", u.PromoCode)
	}
}

func TestFindByPromo(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	mustCreate(t, repo, 1, "@owner", "ABC12345")

	owner, err := repo.FindByPromo(context.Background(), "ABC12345")
	if err != nil {
		t.Fatalf("find promo: %v", err)
	}
	if owner == nil || owner.TelegramID != 1 || owner.Username != "@owner" {
		t.Fatalf("unexpected owner: %+v", owner)
	}
	if owner, _ := repo.FindByPromo(context.Background(), "ZZZZZZZZ"); owner != nil {
		t.Fatalf("expected no owner, got %+v", owner)
	}
}

func TestMarkRedeemedIsIdempotent(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "", "ABC12345")

	for i := 0; i < 2; i++ {
		if err := repo.MarkRedeemed(ctx, 1); err != nil {
			t.Fatalf("mark redeemed: %v", err)
		}
	}
	used, err := repo.HasRedeemed(ctx, 1)
	if err != nil || !used {
		t.Fatalf("expected used promo, got %v, %v", used, err)
	}
	if used, _ := repo.HasRedeemed(ctx, 999); used {
		t.Fatalf("unknown user reported as redeemed")
	}
}

func TestIncrementReferral(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "", "ABC12345")

	for i := 0; i < 3; i++ {
		if err := repo.IncrementReferral(ctx, 1); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	summary, err := repo.ReferralSummary(ctx, 1)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.ReferralsCount != 3 {
		t.Fatalf("expected 3 referrals, got %d", summary.ReferralsCount)
	}
}

func TestApplyRedemptionOnce(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "@owner", "ABC12345")
	mustCreate(t, repo, 2, "@guest", "XYZ98765")
	owner := models.PromoOwner{TelegramID: 1, Username: "@owner"}

	applied, err := repo.ApplyRedemption(ctx, 2, owner)
	if err != nil || !applied {
		t.Fatalf("first redemption: %v, %v", applied, err)
	}
	applied, err = repo.ApplyRedemption(ctx, 2, owner)
	if err != nil || applied {
		t.Fatalf("second redemption should not apply: %v, %v", applied, err)
	}

	summary, _ := repo.ReferralSummary(ctx, 1)
	if summary.ReferralsCount != 1 {
		t.Fatalf("expected 1 referral, got %d", summary.ReferralsCount)
	}
	guest, _ := repo.FindByTelegramID(ctx, 2)
	if !guest.UsedPromo || guest.InvitedByUsername != "@owner" {
		t.Fatalf("unexpected guest state: %+v", guest)
	}

	if _, err := repo.ApplyRedemption(ctx, 77, owner); err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound for unknown redeemer, got %v", err)
	}
}

func TestApplyRedemptionConcurrent(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "@owner", "ABC12345")
	mustCreate(t, repo, 2, "@guest", "XYZ98765")
	owner := models.PromoOwner{TelegramID: 1, Username: "@owner"}

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			applied, err := repo.ApplyRedemption(ctx, 2, owner)
			if err != nil {
				t.Errorf("apply: %v", err)
				return
			}
			if applied {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one applied redemption, got %d", accepted)
	}
	summary, _ := repo.ReferralSummary(ctx, 1)
	if summary.ReferralsCount != 1 {
		t.Fatalf("expected referrals_count 1, got %d", summary.ReferralsCount)
	}
}

func TestCreditReferralPayment(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "@owner", "ABC12345")

	ok, err := repo.CreditReferralPayment(ctx, 1, decimal.NewFromInt(50))
	if err != nil || !ok {
		t.Fatalf("credit: %v, %v", ok, err)
	}
	summary, err := repo.ReferralSummary(ctx, 1)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.PaidReferralsCount != 1 || !summary.ReferralIncome.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	if ok, _ := repo.CreditReferralPayment(ctx, 404, decimal.NewFromInt(1)); ok {
		t.Fatalf("credit for unknown owner reported success")
	}
}

func TestRoleAndBalance(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "@foo", "ABC12345")

	if role, _ := repo.GetRole(ctx, 1); role != models.RoleUser {
		t.Fatalf("expected user role, got %s", role)
	}
	if role, _ := repo.GetRole(ctx, 404); role != models.RoleUser {
		t.Fatalf("unknown user should default to user role, got %s", role)
	}
	if ok, err := repo.SetRole(ctx, 1, models.RoleAdmin); err != nil || !ok {
		t.Fatalf("set role: %v, %v", ok, err)
	}
	if role, _ := repo.GetRole(ctx, 1); role != models.RoleAdmin {
		t.Fatalf("expected admin role, got %s", role)
	}

	if _, err := repo.SetRole(ctx, 1, models.Role("root")); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := repo.db.Exec(`UPDATE users SET role = 'owner' WHERE telegram_id = 1`); err != nil {
		t.Fatalf("corrupt role: %v", err)
	}
	if role, _ := repo.GetRole(ctx, 1); role != models.RoleUser {
		t.Fatalf("unrecognized stored role should read as user, got %s", role)
	}

	if ok, err := repo.SetBalanceByTelegramID(ctx, 1, decimal.NewFromInt(3200)); err != nil || !ok {
		t.Fatalf("set balance: %v, %v", ok, err)
	}
	u, _ := repo.FindByTelegramID(ctx, 1)
	if !u.Balance.Equal(decimal.NewFromInt(3200)) {
		t.Fatalf("expected balance 3200, got %s", u.Balance)
	}
	if ok, _ := repo.SetBalanceByTelegramID(ctx, 404, decimal.NewFromInt(1)); ok {
		t.Fatalf("balance set for unknown user")
	}
	if ok, err := repo.SetBalanceByTelegramID(ctx, 1, decimal.RequireFromString("10.5")); err != nil || !ok {
		t.Fatalf("set balance by id: %v, %v", ok, err)
	}
}

func TestAllAndChatIDs(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	ctx := context.Background()
	mustCreate(t, repo, 1, "", "AAAA1111")
	mustCreate(t, repo, 2, "", "BBBB2222")

	users, err := repo.All(ctx)
	if err != nil {
		t.Fatalf("all: %v", err)
	}
	if len(users) != 2 || users[0].TelegramID != 1 || users[1].TelegramID != 2 {
		t.Fatalf("unexpected users: %+v", users)
	}
	ids, err := repo.ListChatIDs(ctx)
	if err != nil {
		t.Fatalf("chat ids: %v", err)
	}
	if len(ids) != 2 || ids[0] != 1001 || ids[1] != 1002 {
		t.Fatalf("unexpected chat ids: %v", ids)
	}
}

func TestSummaryDefaultsForUnknown(t *testing.T) {
	repo := NewUserRepository(newTestDB(t))
	s, err := repo.ReferralSummary(context.Background(), 12345)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if s.ReferralsCount != 0 || s.PaidReferralsCount != 0 || !s.ReferralIncome.IsZero() {
		t.Fatalf("expected zero summary, got %+v", s)
	}
}
