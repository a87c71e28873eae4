package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/digkill/ReferralBot/internal/config"
	"github.com/digkill/ReferralBot/internal/database"
	"github.com/digkill/ReferralBot/internal/models"
	"github.com/digkill/ReferralBot/internal/repository"
	"github.com/digkill/ReferralBot/pkg/logger"
)

type testEnv struct {
	db       *database.DB
	users    *repository.UserRepository
	payments *repository.PaymentRepository
	userSvc  *UserService
	promoSvc *PromoService
	adminSvc *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
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

	log := logger.Discard()
	users := repository.NewUserRepository(db)
	payments := repository.NewPaymentRepository(db)
	return &testEnv{
		db:       db,
		users:    users,
		payments: payments,
		userSvc: NewUserService(UserServiceConfig{
			CodeLength:    8,
			CodeAttempts:  5,
			ReferralShare: decimal.RequireFromString("0.5"),
		}, users, payments, log),
		promoSvc: NewPromoService(users, log),
		adminSvc: NewAdminService(users, log),
	}
}

func (e *testEnv) register(t *testing.T, id int64, username string) *models.User {
	t.Helper()
	u, err := e.userSvc.Register(context.Background(), models.NewUser{
		TelegramID: id,
		ChatID:     id,
		Name:       "Name",
		Username:   username,
	}, "test")
	if err != nil {
		t.Fatalf("register %d: %v", id, err)
	}
	return u
}

// collidingStore fails the first n inserts with a promo uniqueness violation.
type collidingStore struct {
	*repository.UserRepository
	n     int
	codes []string
}

func (s *collidingStore) Create(ctx context.Context, in models.NewUser, code string) (*models.User, error) {
	s.codes = append(s.codes, code)
	if s.n > 0 {
		s.n--
		return nil, sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}
	}
	return s.UserRepository.Create(ctx, in, code)
}
