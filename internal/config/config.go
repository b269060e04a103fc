package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServiceName string
	Env         string
	HTTPAddr    string

	// SessionLogFile receives the PAYMENT_* event lines. Empty means stdout.
	SessionLogFile string

	// JournalPath is the sqlite transaction journal. Empty keeps the
	// journal in memory (bench runs).
	JournalPath string

	// TestMode unlocks the card adapter's test-simulation capability.
	TestMode bool

	// TraceEnabled installs a tracer provider with a stdout span exporter.
	// Off by default; kiosks in the field have nowhere to ship spans.
	TraceEnabled bool

	Cash CashConfig
	Card CardConfig
}

type CashConfig struct {
	Denominations []int64
	EvaluateDelay time.Duration
	FaultEvery    int
}

type CardConfig struct {
	AuthorizeDelay time.Duration
	AutoApprove    bool
}

func Load() *Config {
	return &Config{
		ServiceName:    getEnvOrDefault("SERVICE_NAME", "snapbooth-kiosk"),
		Env:            getEnvOrDefault("ENV", "dev"),
		HTTPAddr:       getEnvOrDefault("HTTP_ADDR", ":8080"),
		SessionLogFile: getEnvOrDefault("SESSION_LOG_FILE", ""),
		JournalPath:    getEnvOrDefault("JOURNAL_PATH", "kiosk.db"),
		TestMode:       getEnvAsBool("TEST_MODE", false),
		TraceEnabled:   getEnvAsBool("TRACE_ENABLED", false),
		Cash: CashConfig{
			Denominations: getEnvAsInt64List("CASH_DENOMINATIONS", []int64{5, 10, 20, 50}),
			EvaluateDelay: getEnvAsDuration("CASH_EVALUATE_DELAY", 300*time.Millisecond),
			FaultEvery:    getEnvAsInt("CASH_FAULT_EVERY", 0),
		},
		Card: CardConfig{
			AuthorizeDelay: getEnvAsDuration("CARD_AUTHORIZE_DELAY", 2*time.Second),
			AutoApprove:    getEnvAsBool("CARD_AUTO_APPROVE", true),
		},
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnvOrDefault(key, strconv.FormatBool(defaultValue))
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsInt64List(key string, defaultValue []int64) []int64 {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	var out []int64
	for _, part := range strings.Split(valueStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		value, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, value)
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
