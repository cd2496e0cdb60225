package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/trust"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	defaultWindow, _ := policy.ParseWindow(DefaultBusinessHours)
	assert.Equal(t, defaultWindow, cfg.BusinessHours)
	assert.Equal(t, 1.0, cfg.Epsilon)
	assert.Equal(t, 10.0, cfg.PrivacyCeiling)
	assert.Equal(t, trust.DefaultCacheTTL, cfg.CacheTTL)
	assert.Equal(t, float64(trust.DefaultAllowThreshold), cfg.AllowThreshold)
	assert.True(t, cfg.FieldEncryption)
	assert.True(t, cfg.Noise)
	assert.False(t, cfg.Homomorphic)
	assert.NotEmpty(t, cfg.DBPath)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv(EnvBusinessHours, "09:00-17:00")
	t.Setenv(EnvEpsilon, "0.5")
	t.Setenv(EnvCacheTTL, "5m")
	t.Setenv(EnvAllowThreshold, "80")
	t.Setenv(EnvChallengeThreshold, "60")
	t.Setenv(EnvFieldEncryption, "false")
	t.Setenv(EnvHomomorphic, "true")
	t.Setenv(EnvDB, "/tmp/zthc-test.db")

	cfg, err := Load()
	require.NoError(t, err)

	window, _ := policy.ParseWindow("09:00-17:00")
	assert.Equal(t, window, cfg.BusinessHours)
	assert.Equal(t, 0.5, cfg.Epsilon)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 80.0, cfg.AllowThreshold)
	assert.Equal(t, 60.0, cfg.ChallengeThreshold)
	assert.False(t, cfg.FieldEncryption)
	assert.True(t, cfg.Homomorphic)
	assert.Equal(t, "/tmp/zthc-test.db", cfg.DBPath)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"reversed window", EnvBusinessHours, "18:00-08:00"},
		{"malformed window", EnvBusinessHours, "8am-6pm"},
		{"non-numeric epsilon", EnvEpsilon, "lots"},
		{"negative epsilon", EnvEpsilon, "-1"},
		{"zero ceiling", EnvPrivacyCeiling, "0"},
		{"bad duration", EnvCacheTTL, "15 minutes"},
		{"threshold above range", EnvAllowThreshold, "150"},
		{"challenge above allow", EnvChallengeThreshold, "90"},
		{"bad bool", EnvNoise, "enabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}
