package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	require.NotNil(t, cfg)

	if cfg.MetricsPort != 8080 {
		t.Errorf("MetricsPort = %d, want 8080", cfg.MetricsPort)
	}
	if cfg.Queue.TeamCount != 2 {
		t.Errorf("TeamCount = %d, want 2", cfg.Queue.TeamCount)
	}
	assert.Equal(t, 40*time.Second, cfg.Queue.ReadyUpTimeout)
	assert.Equal(t, 60*time.Second, cfg.Queue.ReadyStateTimeout)

	// 2 scouts + 2 soldiers + 1 demoman + 1 medic, two teams
	assert.Equal(t, 12, cfg.SlotCount())
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("PICKUP_METRICSPORT", "9999")
	t.Setenv("PICKUP_LOGLEVEL", "debug")
	t.Setenv("PICKUP_WEBSITENAME", "test.pickup")

	cfg := Load()
	assert.Equal(t, 9999, cfg.MetricsPort)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "test.pickup", cfg.WebsiteName)
}

func TestConfig_HTTPAddr(t *testing.T) {
	tests := []struct {
		name string
		port int
		want string
	}{
		{name: "default", port: 8080, want: "0.0.0.0:8080"},
		{name: "custom", port: 9090, want: "0.0.0.0:9090"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{MetricsPort: tt.port}
			if got := c.HTTPAddr(); got != tt.want {
				t.Errorf("HTTPAddr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestConfig_LogRelay(t *testing.T) {
	c := &Config{LogRelayAddress: "10.0.0.1", LogRelayPort: "9871"}
	assert.Equal(t, "10.0.0.1:9871", c.LogRelay())
}

func TestConfig_Redacted(t *testing.T) {
	cfg := Load()
	redacted := cfg.Redacted()

	if _, ok := redacted["queueSlots"]; !ok {
		t.Error("queueSlots missing from redacted view")
	}
	assert.Equal(t, false, redacted["redisConfigured"])
}
