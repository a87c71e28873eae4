package database

import (
	"context"
	"fmt"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    telegram_id INTEGER UNIQUE NOT NULL,
    chat_id INTEGER NOT NULL,
    username TEXT,
    name TEXT,
    last_name TEXT,
    promo_code TEXT NOT NULL UNIQUE,
    referrals_count INTEGER NOT NULL DEFAULT 0,
    role TEXT NOT NULL DEFAULT 'user',
    used_promo BOOLEAN NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS referral_payments (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    payment_id TEXT NOT NULL UNIQUE,
    owner_telegram_id INTEGER NOT NULL,
    referral_telegram_id INTEGER,
    amount REAL NOT NULL,
    income REAL NOT NULL,
    created_at TIMESTAMP
)`,
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    telegram_id BIGINT NOT NULL UNIQUE,
    chat_id BIGINT NOT NULL,
    username VARCHAR(255),
    name VARCHAR(255),
    last_name VARCHAR(255),
    promo_code VARCHAR(32) NOT NULL UNIQUE,
    referrals_count INT NOT NULL DEFAULT 0,
    role VARCHAR(16) NOT NULL DEFAULT 'user',
    used_promo TINYINT(1) NOT NULL DEFAULT 0
)`,
	`CREATE TABLE IF NOT EXISTS referral_payments (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    payment_id VARCHAR(128) NOT NULL UNIQUE,
    owner_telegram_id BIGINT NOT NULL,
    referral_telegram_id BIGINT,
    amount DECIMAL(14,2) NOT NULL,
    income DECIMAL(14,2) NOT NULL,
    created_at TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP
)`,
}

// column is an additive migration: columns are only ever appended, always
// nullable or defaulted, so older databases upgrade in place.
type column struct {
	name       string
	sqliteType string
	mysqlType  string
}

var additiveColumns = []column{
	{name: "paid_referrals_count", sqliteType: "INTEGER NOT NULL DEFAULT 0", mysqlType: "INT NOT NULL DEFAULT 0"},
	{name: "referral_income", sqliteType: "REAL NOT NULL DEFAULT 0", mysqlType: "DECIMAL(14,2) NOT NULL DEFAULT 0"},
	{name: "balance", sqliteType: "REAL NOT NULL DEFAULT 0", mysqlType: "DECIMAL(14,2) NOT NULL DEFAULT 0"},
	{name: "invited_by_username", sqliteType: "TEXT", mysqlType: "VARCHAR(255)"},
	{name: "created_at", sqliteType: "TIMESTAMP", mysqlType: "TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP"},
}

// Migrate creates the tables, appends any missing columns and makes sure
// promo codes are unique.
func Migrate(ctx context.Context, db *DB) error {
	return db.Serialize(func() error {
		schema := sqliteSchema
		if db.Driver == DriverMySQL {
			schema = mysqlSchema
		}
		for _, stmt := range schema {
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("apply schema: %w", err)
			}
		}

		existing, err := existingColumns(ctx, db)
		if err != nil {
			return err
		}
		for _, col := range additiveColumns {
			if existing[col.name] {
				continue
			}
			typ := col.sqliteType
			if db.Driver == DriverMySQL {
				typ = col.mysqlType
			}
			stmt := fmt.Sprintf("ALTER TABLE users ADD COLUMN %s %s", col.name, typ)
			if _, err := db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("add column %s: %w", col.name, err)
			}
		}
		return ensurePromoIndex(ctx, db)
	})
}

// ensurePromoIndex adds the promo_code uniqueness that tables created by
// older releases lack. Existing duplicate codes make it fail.
func ensurePromoIndex(ctx context.Context, db *DB) error {
	if db.Driver != DriverMySQL {
		if _, err := db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_users_promo_code ON users(promo_code)`); err != nil {
			return fmt.Errorf("add promo_code index: %w", err)
		}
		return nil
	}

	var n int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM information_schema.statistics
WHERE table_schema = DATABASE() AND table_name = 'users' AND column_name = 'promo_code' AND non_unique = 0`).Scan(&n)
	if err != nil {
		return fmt.Errorf("inspect promo_code index: %w", err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.ExecContext(ctx, `ALTER TABLE users ADD UNIQUE INDEX idx_users_promo_code (promo_code)`); err != nil {
		return fmt.Errorf("add promo_code index: %w", err)
	}
	return nil
}

func existingColumns(ctx context.Context, db *DB) (map[string]bool, error) {
	query := `SELECT name FROM pragma_table_info('users')`
	if db.Driver == DriverMySQL {
		query = `SELECT column_name FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = 'users'`
	}
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list user columns: %w", err)
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan column name: %w", err)
		}
		cols[name] = true
	}
	return cols, rows.Err()
}
