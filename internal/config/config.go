package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"github.com/shopspring/decimal"
)

// Config aggregates runtime configuration for the bot and supporting services.
type Config struct {
	BotToken string `env:"TELEGRAM_BOT_TOKEN, required"`

	LogLevel  string `env:"LOG_LEVEL, default=info"`
	LogPretty bool   `env:"LOG_PRETTY, default=false"`

	Database DatabaseConfig
	HTTP     HTTPConfig
	Promo    PromoConfig
	Session  SessionConfig
	Redis    RedisConfig
	S3       S3Config
	Menu     MenuConfig

	StartImagePath string `env:"START_IMAGE_PATH, default=img/start_img.png"`
}

type DatabaseConfig struct {
	Driver string `env:"DB_DRIVER, default=sqlite3"`
	DSN    string `env:"DB_DSN, default=database/bot.db"`
}

type HTTPConfig struct {
	ListenAddr    string `env:"HTTP_LISTEN_ADDR, default=:8080"`
	AdminUsername string `env:"ADMIN_USERNAME, default=admin"`
	AdminPassword string `env:"ADMIN_PASSWORD, default=change-me"`
}

type PromoConfig struct {
	CodeLength    int   `env:"PROMO_CODE_LENGTH, default=8"`
	CodeAttempts  int   `env:"PROMO_CODE_ATTEMPTS, default=5"`
	ReferralShare Share `env:"REFERRAL_SHARE, default=0.5"`
}

// Share is the fraction of a referral payment credited to the code owner.
type Share struct {
	decimal.Decimal
}

func (s *Share) EnvDecode(val string) error {
	d, err := decimal.NewFromString(strings.TrimSpace(val))
	if err != nil {
		return err
	}
	s.Decimal = d
	return nil
}

type SessionConfig struct {
	IdleTTL       time.Duration `env:"SESSION_IDLE_TTL, default=0s"`
	SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL, default=1m"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	DB       int           `env:"REDIS_DB, default=0"`
	DedupTTL time.Duration `env:"DEDUP_TTL, default=1h"`
}

type S3Config struct {
	Endpoint      string `env:"S3_ENDPOINT"`
	Region        string `env:"S3_REGION"`
	AccessKey     string `env:"S3_ACCESS_KEY"`
	SecretKey     string `env:"S3_SECRET_KEY"`
	Bucket        string `env:"S3_BUCKET"`
	PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	UsePathStyle  bool   `env:"S3_USE_PATH_STYLE, default=false"`
	Prefix        string `env:"S3_PREFIX, default=exports"`
}

// MenuConfig holds the links shown by the static menu items.
type MenuConfig struct {
	GroupURL      string `env:"MENU_GROUP_URL, default=https://t.me/+phaj3N7gq6wxODQy"`
	ReviewsHandle string `env:"MENU_REVIEWS_HANDLE, default=@otzivieoge"`
	ManagerHandle string `env:"MENU_MANAGER_HANDLE, default=@Mikhal_l"`
}

// Load reads the optional env file and then the process environment.
func Load(ctx context.Context) (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}

	share := cfg.Promo.ReferralShare.Decimal
	if share.IsNegative() || share.GreaterThan(decimal.NewFromInt(1)) {
		return Config{}, fmt.Errorf("REFERRAL_SHARE must be within [0, 1], got %s", share)
	}

	cfg.Database.Driver = strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch cfg.Database.Driver {
	case "sqlite3", "mysql":
	default:
		return Config{}, fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}
	if cfg.Promo.CodeLength < 4 {
		return Config{}, fmt.Errorf("PROMO_CODE_LENGTH must be at least 4, got %d", cfg.Promo.CodeLength)
	}
	if cfg.Promo.CodeAttempts < 1 {
		cfg.Promo.CodeAttempts = 1
	}
	return cfg, nil
}

// S3Enabled reports whether export archiving is configured.
func (c Config) S3Enabled() bool {
	return c.S3.Bucket != ""
}

// DedupEnabled reports whether update de-duplication is configured.
func (c Config) DedupEnabled() bool {
	return c.Redis.Addr != ""
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Deployments that inject the environment directly have no file.
	return nil
}
