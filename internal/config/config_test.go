package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"APP_PORT", "PUBLIC_BASE_URL", "LOG_LEVEL", "MONGODB_URI", "MONGODB_DB_NAME",
	"BILLING_MILK_RATES", "BILLING_TIMEZONE", "BILLING_SUMMARY_CONCURRENCY",
	"WHATSAPP_TOKEN", "WHATSAPP_PHONE_NUMBER_ID", "META_VERIFY_TOKEN",
	"WHATSAPP_BASE_URL", "WHATSAPP_API_VERSION",
	"GOOGLE_SHEETS_CREDENTIALS_PATH", "GOOGLE_SHEET_DATABASE_ID", "GOOGLE_SHEET_BILLING_RANGE",
	"REPORT_CRON_SCHEDULE", "REPORT_CRON_ENABLED", "PDF_CONVERTER_URL", "PDF_CONVERTER_TIMEOUT",
	"ADMIN_JWT_SECRET", "ADMIN_TOKEN_TTL",
	"MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY", "MINIO_INVOICE_BUCKET", "MINIO_REGION", "MINIO_SECURE",
}

// clearEnv blanks every key Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func writeEnvFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "MONGODB_URI=mongodb://localhost:27017\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "http://localhost:8080", cfg.Server.PublicBaseURL)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "dairy", cfg.MongoDB.DBName)
	assert.Equal(t, "Cow:50,Buffalo:60", cfg.Billing.MilkRates)
	assert.Equal(t, "UTC", cfg.Billing.Timezone)
	assert.Equal(t, 8, cfg.Billing.SummaryConcurrency)
	assert.Equal(t, "0 9 1 * *", cfg.Reporting.CronSchedule)
	assert.True(t, cfg.Reporting.Enabled)
	assert.Equal(t, 30*time.Second, cfg.PDF.Timeout)
	assert.False(t, cfg.WhatsApp.Enabled())
	assert.False(t, cfg.Sheets.Enabled())
	assert.False(t, cfg.Auth.Enabled())
	assert.Equal(t, 30*24*time.Hour, cfg.Auth.TokenTTL)
	assert.False(t, cfg.Archive.Enabled())
	assert.Equal(t, "invoices", cfg.Archive.Bucket)

	loc, err := cfg.Billing.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, `MONGODB_URI=mongodb://db:27017
APP_PORT=9090
PUBLIC_BASE_URL=https://dairy.example.com
BILLING_MILK_RATES=Cow:52,Buffalo:64
BILLING_TIMEZONE=Asia/Kolkata
WHATSAPP_TOKEN=token
WHATSAPP_PHONE_NUMBER_ID=12345
META_VERIFY_TOKEN=verify
REPORT_CRON_ENABLED=false
PDF_CONVERTER_URL=http://gotenberg:3000
PDF_CONVERTER_TIMEOUT=5s
ADMIN_JWT_SECRET=signing-secret
ADMIN_TOKEN_TTL=12h
MINIO_ENDPOINT=minio:9000
MINIO_ACCESS_KEY=access
MINIO_SECRET_KEY=secret
MINIO_SECURE=true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "https://dairy.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "Asia/Kolkata", cfg.Billing.Timezone)
	assert.True(t, cfg.WhatsApp.Enabled())
	assert.False(t, cfg.Reporting.Enabled)
	assert.Equal(t, "http://gotenberg:3000", cfg.PDF.ConverterURL)
	assert.Equal(t, 5*time.Second, cfg.PDF.Timeout)
	assert.True(t, cfg.Auth.Enabled())
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
	assert.True(t, cfg.Archive.Enabled())
	assert.True(t, cfg.Archive.Secure)
	assert.Equal(t, "minio:9000", cfg.Archive.Endpoint)
}

func TestLoad_MissingFileFallsBackToEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("MONGODB_URI", "mongodb://env:27017")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "mongodb://env:27017", cfg.MongoDB.URI)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:    ServerConfig{Port: "8080", PublicBaseURL: "http://localhost:8080"},
			MongoDB:   MongoDBConfig{URI: "mongodb://localhost", DBName: "dairy"},
			Billing:   BillingConfig{MilkRates: "Cow:50", Timezone: "UTC", SummaryConcurrency: 4},
			Reporting: ReportingConfig{CronSchedule: "0 9 1 * *", Enabled: true},
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing mongo uri", mutate: func(c *Config) { c.MongoDB.URI = "" }},
		{name: "missing port", mutate: func(c *Config) { c.Server.Port = "" }},
		{name: "empty rates", mutate: func(c *Config) { c.Billing.MilkRates = " " }},
		{name: "bad timezone", mutate: func(c *Config) { c.Billing.Timezone = "Mars/Olympus" }},
		{name: "zero concurrency", mutate: func(c *Config) { c.Billing.SummaryConcurrency = 0 }},
		{name: "whatsapp without verify token", mutate: func(c *Config) {
			c.WhatsApp = WhatsAppConfig{AccessToken: "t", PhoneNumberID: "1", BaseURL: "https://graph.facebook.com", APIVersion: "v20.0"}
		}},
		{name: "negative token ttl", mutate: func(c *Config) { c.Auth.TokenTTL = -time.Second }},
		{name: "archive without bucket", mutate: func(c *Config) {
			c.Archive = ArchiveConfig{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s"}
		}},
		{name: "cron enabled without schedule", mutate: func(c *Config) { c.Reporting.CronSchedule = "" }},
	}

	require.NoError(t, valid().Validate())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	var nilCfg *Config
	assert.Error(t, nilCfg.Validate())
}
