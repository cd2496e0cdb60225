// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/policy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/privacy"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/store"
	"github.com/RaihaanIhsan/ZeroTrustHealthCare/pkg/trust"
)

// Environment variable names.
const (
	EnvBusinessHours      = "ZTHC_BUSINESS_HOURS"
	EnvEpsilon            = "ZTHC_EPSILON"
	EnvPrivacyCeiling     = "ZTHC_PRIVACY_CEILING"
	EnvCacheTTL           = "ZTHC_CACHE_TTL"
	EnvAllowThreshold     = "ZTHC_ALLOW_THRESHOLD"
	EnvChallengeThreshold = "ZTHC_CHALLENGE_THRESHOLD"
	EnvFieldEncryption    = "ZTHC_FIELD_ENCRYPTION"
	EnvNoise              = "ZTHC_NOISE"
	EnvHomomorphic        = "ZTHC_HOMOMORPHIC"
	EnvDB                 = "ZTHC_DB"

	// EnvFieldKey is consumed by privacy.LoadOrGenerateKey at key-load time,
	// not by Load, so key material stays out of the Config value.
	EnvFieldKey = privacy.EnvFieldKey
)

// DefaultBusinessHours is the enforcement window when none is configured.
const DefaultBusinessHours = "08:00-18:00"

// Config is the resolved gateway configuration.
type Config struct {
	BusinessHours      policy.Window
	Epsilon            float64
	PrivacyCeiling     float64
	CacheTTL           time.Duration
	AllowThreshold     float64
	ChallengeThreshold float64
	FieldEncryption    bool
	Noise              bool
	Homomorphic        bool
	DBPath             string
}

// Load resolves configuration from the environment, applying defaults and
// validating the result.
func Load() (Config, error) {
	cfg := Config{
		Epsilon:            privacy.DefaultEpsilon,
		PrivacyCeiling:     privacy.DefaultBudgetCeiling,
		CacheTTL:           trust.DefaultCacheTTL,
		AllowThreshold:     trust.DefaultAllowThreshold,
		ChallengeThreshold: trust.DefaultChallengeThreshold,
		FieldEncryption:    true,
		Noise:              true,
		Homomorphic:        false,
		DBPath:             store.DefaultPath(),
	}

	hours := os.Getenv(EnvBusinessHours)
	if hours == "" {
		hours = DefaultBusinessHours
	}
	window, err := policy.ParseWindow(hours)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", EnvBusinessHours, err)
	}
	cfg.BusinessHours = window

	if err := floatVar(EnvEpsilon, &cfg.Epsilon); err != nil {
		return Config{}, err
	}
	if err := floatVar(EnvPrivacyCeiling, &cfg.PrivacyCeiling); err != nil {
		return Config{}, err
	}
	if err := floatVar(EnvAllowThreshold, &cfg.AllowThreshold); err != nil {
		return Config{}, err
	}
	if err := floatVar(EnvChallengeThreshold, &cfg.ChallengeThreshold); err != nil {
		return Config{}, err
	}
	if err := durationVar(EnvCacheTTL, &cfg.CacheTTL); err != nil {
		return Config{}, err
	}
	if err := boolVar(EnvFieldEncryption, &cfg.FieldEncryption); err != nil {
		return Config{}, err
	}
	if err := boolVar(EnvNoise, &cfg.Noise); err != nil {
		return Config{}, err
	}
	if err := boolVar(EnvHomomorphic, &cfg.Homomorphic); err != nil {
		return Config{}, err
	}
	if db := os.Getenv(EnvDB); db != "" {
		cfg.DBPath = db
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// validate rejects configurations the pipeline cannot run with.
func (c Config) validate() error {
	if c.Epsilon <= 0 {
		return fmt.Errorf("%s must be positive, got %v", EnvEpsilon, c.Epsilon)
	}
	if c.PrivacyCeiling <= 0 {
		return fmt.Errorf("%s must be positive, got %v", EnvPrivacyCeiling, c.PrivacyCeiling)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("%s must be positive, got %v", EnvCacheTTL, c.CacheTTL)
	}
	if c.AllowThreshold < 0 || c.AllowThreshold > 100 {
		return fmt.Errorf("%s must be in [0,100], got %v", EnvAllowThreshold, c.AllowThreshold)
	}
	if c.ChallengeThreshold < 0 || c.ChallengeThreshold > c.AllowThreshold {
		return fmt.Errorf("%s must be in [0,%v], got %v", EnvChallengeThreshold, c.AllowThreshold, c.ChallengeThreshold)
	}
	return nil
}

func floatVar(name string, dst *float64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid float %q", name, raw)
	}
	*dst = v
	return nil
}

func durationVar(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	*dst = v
	return nil
}

func boolVar(name string, dst *bool) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid bool %q", name, raw)
	}
	*dst = v
	return nil
}
