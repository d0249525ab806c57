package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
)

// Config represents the full application configuration surface.
type Config struct {
	Server    ServerConfig
	MongoDB   MongoDBConfig
	Billing   BillingConfig
	WhatsApp  WhatsAppConfig
	Sheets    SheetsConfig
	Reporting ReportingConfig
	PDF       PDFConfig
	Auth      AuthConfig
	Archive   ArchiveConfig
}

// ServerConfig holds HTTP server related options.
type ServerConfig struct {
	Port string
	// PublicBaseURL prefixes the invoice links sent to customers.
	PublicBaseURL string
	LogLevel      string
}

// MongoDBConfig holds settings for MongoDB.
type MongoDBConfig struct {
	URI    string
	DBName string
}

// BillingConfig holds the price list and the calendar used for month boundaries.
type BillingConfig struct {
	// MilkRates is a comma separated list of Type:rate[@YYYY-MM-DD] tokens.
	MilkRates string
	Timezone  string
	// SummaryConcurrency bounds parallel store reads when building batches.
	SummaryConcurrency int
}

// Location resolves the billing timezone.
func (b BillingConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load billing timezone %s: %w", b.Timezone, err)
	}
	return loc, nil
}

// WhatsAppConfig contains credentials and options for the Meta WhatsApp Cloud API.
type WhatsAppConfig struct {
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	BaseURL       string
	APIVersion    string
}

// Enabled reports whether outbound WhatsApp delivery is configured.
func (w WhatsAppConfig) Enabled() bool {
	return w.AccessToken != "" && w.PhoneNumberID != ""
}

// SheetsConfig contains configuration required to interact with Google Sheets.
type SheetsConfig struct {
	CredentialsPath string
	SpreadsheetID   string
	BillingRange    string
}

// Enabled reports whether the billing export is configured.
func (s SheetsConfig) Enabled() bool {
	return s.CredentialsPath != "" && s.SpreadsheetID != ""
}

// ReportingConfig holds scheduler-related settings.
type ReportingConfig struct {
	CronSchedule string
	Enabled      bool
}

// PDFConfig points at an HTML to PDF conversion service.
type PDFConfig struct {
	ConverterURL string
	Timeout      time.Duration
}

// AuthConfig holds the signing secret for admin API tokens.
type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

// Enabled reports whether admin routes require a bearer token.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// ArchiveConfig points at the S3 compatible bucket that keeps monthly invoice PDFs.
type ArchiveConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
}

// Enabled reports whether invoice archiving is configured.
func (a ArchiveConfig) Enabled() bool {
	return a.Endpoint != "" && a.AccessKey != "" && a.SecretKey != ""
}

// Load reads environment variables (optionally from the provided file) and
// materializes a Config instance.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed loading env file %s: %w", envFile, err)
			}
		}
	} else {
		// Ignore the returned error here; missing .env files are acceptable when
		// configuration comes from the environment directly.
		_ = godotenv.Load()
	}

	port := getenvWithDefault("APP_PORT", "8080")

	cfg := &Config{
		Server: ServerConfig{
			Port:          port,
			PublicBaseURL: getenvWithDefault("PUBLIC_BASE_URL", "http://localhost:"+port),
			LogLevel:      getenvWithDefault("LOG_LEVEL", "info"),
		},
		MongoDB: MongoDBConfig{
			URI:    os.Getenv("MONGODB_URI"),
			DBName: getenvWithDefault("MONGODB_DB_NAME", "dairy"),
		},
		Billing: BillingConfig{
			MilkRates:          getenvWithDefault("BILLING_MILK_RATES", "Cow:50,Buffalo:60"),
			Timezone:           getenvWithDefault("BILLING_TIMEZONE", "UTC"),
			SummaryConcurrency: getenvInt("BILLING_SUMMARY_CONCURRENCY", 8),
		},
		WhatsApp: WhatsAppConfig{
			AccessToken:   os.Getenv("WHATSAPP_TOKEN"),
			PhoneNumberID: os.Getenv("WHATSAPP_PHONE_NUMBER_ID"),
			VerifyToken:   os.Getenv("META_VERIFY_TOKEN"),
			BaseURL:       getenvWithDefault("WHATSAPP_BASE_URL", "https://graph.facebook.com"),
			APIVersion:    getenvWithDefault("WHATSAPP_API_VERSION", "v20.0"),
		},
		Sheets: SheetsConfig{
			CredentialsPath: os.Getenv("GOOGLE_SHEETS_CREDENTIALS_PATH"),
			SpreadsheetID:   os.Getenv("GOOGLE_SHEET_DATABASE_ID"),
			BillingRange:    getenvWithDefault("GOOGLE_SHEET_BILLING_RANGE", "Billing!A:G"),
		},
		Reporting: ReportingConfig{
			CronSchedule: getenvWithDefault("REPORT_CRON_SCHEDULE", "0 9 1 * *"),
			Enabled:      getenvBool("REPORT_CRON_ENABLED", true),
		},
		PDF: PDFConfig{
			ConverterURL: os.Getenv("PDF_CONVERTER_URL"),
			Timeout:      getenvDuration("PDF_CONVERTER_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("ADMIN_JWT_SECRET"),
			TokenTTL:  getenvDuration("ADMIN_TOKEN_TTL", 30*24*time.Hour),
		},
		Archive: ArchiveConfig{
			Endpoint:  os.Getenv("MINIO_ENDPOINT"),
			AccessKey: os.Getenv("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			Bucket:    getenvWithDefault("MINIO_INVOICE_BUCKET", "invoices"),
			Region:    os.Getenv("MINIO_REGION"),
			Secure:    getenvBool("MINIO_SECURE", false),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures that required configuration fields are populated.
// Integrations with empty credentials are left disabled rather than rejected.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config is nil")
	}

	if c.Server.Port == "" {
		return errors.New("APP_PORT must be provided")
	}

	if c.Server.PublicBaseURL == "" {
		return errors.New("PUBLIC_BASE_URL must not be empty")
	}

	if c.MongoDB.URI == "" {
		return errors.New("MONGODB_URI must be provided")
	}

	if c.MongoDB.DBName == "" {
		return errors.New("MONGODB_DB_NAME must not be empty")
	}

	if strings.TrimSpace(c.Billing.MilkRates) == "" {
		return errors.New("BILLING_MILK_RATES must not be empty")
	}

	if _, err := c.Billing.Location(); err != nil {
		return fmt.Errorf("BILLING_TIMEZONE is invalid: %w", err)
	}

	if c.Billing.SummaryConcurrency <= 0 {
		return errors.New("BILLING_SUMMARY_CONCURRENCY must be positive")
	}

	if c.WhatsApp.Enabled() {
		switch {
		case c.WhatsApp.VerifyToken == "":
			return errors.New("META_VERIFY_TOKEN must be provided when WhatsApp is enabled")
		case c.WhatsApp.BaseURL == "":
			return errors.New("WHATSAPP_BASE_URL must not be empty")
		case c.WhatsApp.APIVersion == "":
			return errors.New("WHATSAPP_API_VERSION must not be empty")
		}
	}

	if c.Sheets.Enabled() && c.Sheets.BillingRange == "" {
		return errors.New("GOOGLE_SHEET_BILLING_RANGE must not be empty")
	}

	if c.Auth.TokenTTL < 0 {
		return errors.New("ADMIN_TOKEN_TTL must not be negative")
	}

	if c.Archive.Enabled() && c.Archive.Bucket == "" {
		return errors.New("MINIO_INVOICE_BUCKET must not be empty")
	}

	if c.Reporting.Enabled && c.Reporting.CronSchedule == "" {
		return errors.New("REPORT_CRON_SCHEDULE must be provided")
	}

	return nil
}

func getenvWithDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getenvBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value, err := time.ParseDuration(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return value
}
