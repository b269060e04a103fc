package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "snapbooth-kiosk", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "kiosk.db", cfg.JournalPath)
	assert.False(t, cfg.TestMode)
	assert.False(t, cfg.TraceEnabled)
	assert.Equal(t, []int64{5, 10, 20, 50}, cfg.Cash.Denominations)
	assert.Equal(t, 300*time.Millisecond, cfg.Cash.EvaluateDelay)
	assert.Equal(t, 0, cfg.Cash.FaultEvery)
	assert.Equal(t, 2*time.Second, cfg.Card.AuthorizeDelay)
	assert.True(t, cfg.Card.AutoApprove)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVICE_NAME", "bench-kiosk")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("JOURNAL_PATH", "")
	t.Setenv("TEST_MODE", "true")
	t.Setenv("TRACE_ENABLED", "true")
	t.Setenv("CASH_DENOMINATIONS", "1, 2, 5")
	t.Setenv("CASH_EVALUATE_DELAY", "10ms")
	t.Setenv("CASH_FAULT_EVERY", "7")
	t.Setenv("CARD_AUTHORIZE_DELAY", "50ms")
	t.Setenv("CARD_AUTO_APPROVE", "false")

	cfg := Load()

	assert.Equal(t, "bench-kiosk", cfg.ServiceName)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Empty(t, cfg.JournalPath)
	assert.True(t, cfg.TestMode)
	assert.True(t, cfg.TraceEnabled)
	assert.Equal(t, []int64{1, 2, 5}, cfg.Cash.Denominations)
	assert.Equal(t, 10*time.Millisecond, cfg.Cash.EvaluateDelay)
	assert.Equal(t, 7, cfg.Cash.FaultEvery)
	assert.Equal(t, 50*time.Millisecond, cfg.Card.AuthorizeDelay)
	assert.False(t, cfg.Card.AutoApprove)
}

func TestMalformedValuesFallBack(t *testing.T) {
	t.Setenv("CASH_FAULT_EVERY", "often")
	t.Setenv("CASH_DENOMINATIONS", "5,ten")
	t.Setenv("CARD_AUTHORIZE_DELAY", "soon")
	t.Setenv("TEST_MODE", "yes please")

	cfg := Load()

	assert.Equal(t, 0, cfg.Cash.FaultEvery)
	assert.Equal(t, []int64{5, 10, 20, 50}, cfg.Cash.Denominations)
	assert.Equal(t, 2*time.Second, cfg.Card.AuthorizeDelay)
	assert.False(t, cfg.TestMode)
}
