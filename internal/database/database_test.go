package database

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/digkill/ReferralBot/internal/config"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Connect(config.DatabaseConfig{
		Driver: DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "nested", "bot.db"),
	})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := Migrate(ctx, db); err != nil {
			t.Fatalf("migrate #%d: %v", i+1, err)
		}
	}
	cols, err := existingColumns(ctx, db)
	if err != nil {
		t.Fatalf("columns: %v", err)
	}
	for _, want := range []string{"telegram_id", "promo_code", "used_promo", "paid_referrals_count", "referral_income", "balance", "invited_by_username"} {
		if !cols[want] {
			t.Fatalf("missing column %s", want)
		}
	}
}

func TestMigrateUpgradesLegacyTable(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	legacy := `CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id TEXT UNIQUE NOT NULL,
		chat_id TEXT NOT NULL,
		username TEXT,
		name TEXT,
		last_name TEXT,
		promo_code TEXT NOT NULL,
		referrals_count INTEGER DEFAULT 0,
		role TEXT DEFAULT 'user',
		used_promo BOOLEAN DEFAULT 0
	)`
	if _, err := db.ExecContext(ctx, legacy); err != nil {
		t.Fatalf("create legacy table: %v", err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO users (telegram_id, chat_id, name, promo_code) VALUES ('7', '7', 'Old', 'OLD00001')`); err != nil {
		t.Fatalf("seed legacy row: %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	var balance float64
	var invited sql.NullString
	row := db.QueryRowContext(ctx, `SELECT balance, invited_by_username FROM users WHERE telegram_id = ?`, int64(7))
	if err := row.Scan(&balance, &invited); err != nil {
		t.Fatalf("scan upgraded row: %v", err)
	}
	if balance != 0 || invited.Valid {
		t.Fatalf("unexpected defaults: balance=%v invited=%v", balance, invited)
	}

	_, err := db.ExecContext(ctx, `INSERT INTO users (telegram_id, chat_id, name, promo_code) VALUES ('8', '8', 'New', 'OLD00001')`)
	if !IsUniqueViolation(err) {
		t.Fatalf("expected promo_code to be unique after upgrade, got %v", err)
	}
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestMigrateRejectsDuplicateLegacyCodes(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	stmts := []string{
		`CREATE TABLE users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		telegram_id TEXT UNIQUE NOT NULL,
		chat_id TEXT NOT NULL,
		username TEXT,
		name TEXT,
		last_name TEXT,
		promo_code TEXT NOT NULL,
		referrals_count INTEGER DEFAULT 0,
		role TEXT DEFAULT 'user',
		used_promo BOOLEAN DEFAULT 0
	)`,
		`INSERT INTO users (telegram_id, chat_id, name, promo_code) VALUES ('1', '1', 'A', 'SAME0001')`,
		`INSERT INTO users (telegram_id, chat_id, name, promo_code) VALUES ('2', '2', 'B', 'SAME0001')`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := Migrate(ctx, db); err == nil {
		t.Fatalf("expected migrate to refuse duplicate promo codes")
	}
}

func TestInTxRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	err := db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (telegram_id, chat_id, promo_code) VALUES (1, 1, 'AAAA1111')`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO users (telegram_id, chat_id, promo_code) VALUES (1, 1, 'BBBB2222')`)
		return err
	})
	if !IsUniqueViolation(err) {
		t.Fatalf("expected unique violation, got %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rollback, found %d rows", count)
	}
}
