package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port               string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	CacheTTL           time.Duration

	// Database
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets ledger export
	GoogleSpreadsheetID      string
	GoogleLedgerSheet        string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	SyncBatchSize       int
	SyncInterval        time.Duration
	ExpirySweepInterval time.Duration

	// MQTT incubator telemetry; disabled when MQTTBroker is empty
	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string
	MQTTTopic    string

	// Domain rules
	IncubationTableFile   string
	DefaultIncubationDays int
	CriticalWindowDays    int
	DefaultCurrency       string

	// Logging
	LogLevel  slog.Level
	LogFormat string

	// Backend selection
	DataBackend string
}

var (
	validBackends   = []string{"memory", "sqlite"}
	validLogFormats = []string{"text", "json", "tint"}
)

func Load() *Config {
	cfg := &Config{
		Port:               getEnv("PORT", "8001"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		CacheTTL:           getEnvDuration("CACHE_TTL", 30*time.Second),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/aviary.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "aviary"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_sync"),

		GoogleSpreadsheetID:      getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleLedgerSheet:        getEnv("GOOGLE_LEDGER_SHEET_NAME", "Ledger"),
		GoogleServiceAccountFile: getEnv("GOOGLE_SERVICE_ACCOUNT_FILE", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS")),
		GoogleServiceAccountJSON: getEnv("GOOGLE_SERVICE_ACCOUNT_JSON", ""),

		SyncBatchSize:       getEnvInt("SYNC_BATCH_SIZE", 10),
		SyncInterval:        getEnvDuration("SYNC_INTERVAL", 30*time.Second),
		ExpirySweepInterval: getEnvDuration("EXPIRY_SWEEP_INTERVAL", 6*time.Hour),

		MQTTBroker:   getEnv("MQTT_BROKER", ""),
		MQTTPort:     getEnvInt("MQTT_PORT", 1883),
		MQTTClientID: getEnv("MQTT_CLIENT_ID", "aviary-server"),
		MQTTTopic:    getEnv("MQTT_TOPIC", "aviary/incubators/+/telemetry"),

		IncubationTableFile:   getEnv("INCUBATION_TABLE_FILE", ""),
		DefaultIncubationDays: getEnvInt("DEFAULT_INCUBATION_DAYS", 21),
		CriticalWindowDays:    getEnvInt("CRITICAL_WINDOW_DAYS", 30),
		DefaultCurrency:       strings.ToUpper(getEnv("DEFAULT_CURRENCY", "EUR")),

		LogLevel:  parseLevel(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "text")),

		DataBackend: getEnv("DATA_BACKEND", "memory"),
	}

	return cfg
}

// AMQPEnabled reports whether a broker URL is configured.
func (c *Config) AMQPEnabled() bool { return c.AMQPURL != "" }

// MQTTEnabled reports whether incubator telemetry ingestion is configured.
func (c *Config) MQTTEnabled() bool { return c.MQTTBroker != "" }

// SheetsEnabled reports whether the ledger export has a target spreadsheet.
func (c *Config) SheetsEnabled() bool { return c.GoogleSpreadsheetID != "" }

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == "sqlite" {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.GoogleSpreadsheetID != "" {
		if c.GoogleLedgerSheet == "" {
			errors = append(errors, "ledger sheet name is required when a spreadsheet is configured")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for the ledger export")
		}
		if c.GoogleServiceAccountFile != "" {
			if _, err := os.Stat(c.GoogleServiceAccountFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("service account file does not exist: %s", c.GoogleServiceAccountFile))
			}
		}
	}

	if c.MQTTBroker != "" {
		if c.MQTTPort < 1 || c.MQTTPort > 65535 {
			errors = append(errors, fmt.Sprintf("invalid MQTT port %d: must be between 1 and 65535", c.MQTTPort))
		}
		if c.MQTTTopic == "" {
			errors = append(errors, "MQTT topic cannot be empty when MQTT broker is provided")
		}
		if c.MQTTClientID == "" {
			errors = append(errors, "MQTT client id cannot be empty when MQTT broker is provided")
		}
	}

	if c.SyncBatchSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at least 1", c.SyncBatchSize))
	} else if c.SyncBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid sync batch size %d: must be at most 1000", c.SyncBatchSize))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}

	if c.ExpirySweepInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid expiry sweep interval %v: must be at least 1 minute", c.ExpirySweepInterval))
	}

	if c.DefaultIncubationDays < 1 {
		errors = append(errors, fmt.Sprintf("invalid default incubation days %d: must be positive", c.DefaultIncubationDays))
	}
	if c.CriticalWindowDays < 0 {
		errors = append(errors, fmt.Sprintf("invalid critical window %d: must not be negative", c.CriticalWindowDays))
	}
	if len(c.DefaultCurrency) != 3 {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be a 3-letter code", c.DefaultCurrency))
	}
	if c.IncubationTableFile != "" {
		if _, err := os.Stat(c.IncubationTableFile); err != nil {
			errors = append(errors, fmt.Sprintf("incubation table file not readable: %s", c.IncubationTableFile))
		}
	}

	if !slices.Contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}
	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
