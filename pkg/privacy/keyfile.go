package privacy

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// EnvFieldKey is the environment variable containing the master field key.
// It is read here at key-load time rather than through the gateway config
// loader so key material never sits in a parsed Config value.
const EnvFieldKey = "ZTHC_FIELD_KEY"

// DefaultKeyPath returns the default path for the auto-generated field key
// file, following the XDG Base Directory spec.
func DefaultKeyPath() string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, _ := os.UserHomeDir()
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "zthc", "field.key")
}

// LoadOrGenerateKey loads the field key or generates a new one.
// Priority:
//  1. Environment variable ZTHC_FIELD_KEY (always takes precedence)
//  2. Key file at the specified path
//  3. Generate new key and save to file
//
// Returns the hex key string (either from env, file, or newly generated).
func LoadOrGenerateKey(keyPath string) (string, error) {
	// Check env var first (override)
	if keyStr := os.Getenv(EnvFieldKey); keyStr != "" {
		return keyStr, nil
	}

	// Try to read existing key file
	data, err := os.ReadFile(keyPath)
	if err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("failed to read key file: %w", err)
	}

	// File doesn't exist, generate new key
	keyBytes := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, keyBytes); err != nil {
		return "", fmt.Errorf("failed to generate random key: %w", err)
	}
	keyStr := hex.EncodeToString(keyBytes)

	// Create parent directory with 0700 permissions
	dir := filepath.Dir(keyPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create key directory: %w", err)
	}

	// Write key file with 0600 permissions
	if err := os.WriteFile(keyPath, []byte(keyStr), 0600); err != nil {
		return "", fmt.Errorf("failed to write key file: %w", err)
	}

	slog.Info("generated new field encryption key", "path", keyPath)
	return keyStr, nil
}

// NewFieldCipherFromKeyString builds a FieldCipher from the hex key string
// produced by LoadOrGenerateKey. Non-hex strings are used as raw key material
// so operator-supplied passphrases still work.
func NewFieldCipherFromKeyString(keyStr string) (*FieldCipher, error) {
	if keyStr == "" {
		return nil, fmt.Errorf("empty field key")
	}
	if raw, err := hex.DecodeString(keyStr); err == nil {
		return NewFieldCipher(raw)
	}
	return NewFieldCipher([]byte(keyStr))
}
