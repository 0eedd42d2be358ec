package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`

	// Super admins come only from the environment; plain admins may also be
	// added at runtime and are kept in the ledger.
	SuperAdminIDs []int64 `env:"SUPER_ADMIN_IDS" envSeparator:","`
	AdminIDs      []int64 `env:"ADMIN_TG_IDS" envSeparator:","`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/bot.db"`

	ReceiptStorage  string `env:"RECEIPT_STORAGE" envDefault:"local"`
	ReceiptsDir     string `env:"RECEIPTS_DIR" envDefault:"data/receipts"`
	MaxReceiptBytes int64  `env:"MAX_RECEIPT_BYTES" envDefault:"10485760"`

	SpreadsheetID            string `env:"GOOGLE_SHEETS_SPREADSHEET_ID"`
	GoogleServiceAccountJSON string `env:"GOOGLE_SERVICE_ACCOUNT_JSON"`

	ExportSecret  string `env:"EXPORT_SECRET"`
	HTTPAddr      string `env:"HTTP_ADDR" envDefault:":8080"`
	BasePublicURL string `env:"BASE_PUBLIC_URL"`

	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"30m"`
	SweepInterval   time.Duration `env:"SWEEP_INTERVAL" envDefault:"1m"`
	Workers         int           `env:"WORKERS" envDefault:"8"`
	PendingPageSize int           `env:"PENDING_PAGE_SIZE" envDefault:"10"`

	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
}

// FromEnv parses the process environment. Call godotenv first to pick up a
// local .env file.
func FromEnv() (Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	c.TelegramToken = strings.TrimSpace(c.TelegramToken)
	c.BasePublicURL = strings.TrimRight(strings.TrimSpace(c.BasePublicURL), "/")
	c.SpreadsheetID = strings.TrimSpace(c.SpreadsheetID)
	c.GoogleServiceAccountJSON = strings.TrimSpace(c.GoogleServiceAccountJSON)

	if err := c.validate(); err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

func (c Config) validate() error {
	switch {
	case c.TelegramToken == "":
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is empty")
	case c.SpreadsheetID != "" && c.GoogleServiceAccountJSON == "":
		return fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is required when GOOGLE_SHEETS_SPREADSHEET_ID is set")
	case c.MaxReceiptBytes <= 0:
		return fmt.Errorf("MAX_RECEIPT_BYTES must be positive")
	case c.Workers <= 0:
		return fmt.Errorf("WORKERS must be positive")
	case c.PendingPageSize <= 0:
		return fmt.Errorf("PENDING_PAGE_SIZE must be positive")
	case c.SweepInterval <= 0:
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	case c.SessionTTL < 0:
		return fmt.Errorf("SESSION_TTL must not be negative")
	}
	return nil
}

// SheetsEnabled reports whether exports should also go to Google Sheets.
func (c Config) SheetsEnabled() bool {
	return c.SpreadsheetID != ""
}
