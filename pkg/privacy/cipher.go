// Package privacy implements the three privacy-preserving transforms applied
// around access decisions: authenticated field-level encryption, Laplace
// noise for exported aggregates, and an additively-homomorphic aggregator for
// confidential score computation.
package privacy

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const (
	// nonceSize is the size of the GCM nonce (12 bytes is standard for AES-GCM).
	nonceSize = 12

	// tagSize is the GCM authentication tag size.
	tagSize = 16
)

// DecryptionError indicates an authentication-tag mismatch or a malformed
// ciphertext triple. It is always terminal and never silently swallowed.
type DecryptionError struct {
	Reason string
}

// Error implements the error interface.
func (e *DecryptionError) Error() string {
	return "decryption failed: " + e.Reason
}

// EncryptedField is the opaque (nonce, ciphertext, tag) triple produced by
// the field cipher. One logical plaintext value maps to exactly one triple;
// decryption requires the same key and fails closed on any mismatch.
type EncryptedField struct {
	Nonce      []byte
	Ciphertext []byte
	Tag        []byte
}

// Encode serializes the triple as dot-separated base64 for embedding in
// string-valued record fields.
func (f EncryptedField) Encode() string {
	enc := base64.RawStdEncoding
	return enc.EncodeToString(f.Nonce) + "." + enc.EncodeToString(f.Ciphertext) + "." + enc.EncodeToString(f.Tag)
}

// DecodeEncryptedField parses the dot-separated base64 form back into a
// triple. Malformed input returns a DecryptionError so callers fail closed.
func DecodeEncryptedField(s string) (EncryptedField, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return EncryptedField{}, &DecryptionError{Reason: "malformed field encoding"}
	}
	enc := base64.RawStdEncoding
	nonce, err := enc.DecodeString(parts[0])
	if err != nil {
		return EncryptedField{}, &DecryptionError{Reason: "malformed nonce encoding"}
	}
	ct, err := enc.DecodeString(parts[1])
	if err != nil {
		return EncryptedField{}, &DecryptionError{Reason: "malformed ciphertext encoding"}
	}
	tag, err := enc.DecodeString(parts[2])
	if err != nil {
		return EncryptedField{}, &DecryptionError{Reason: "malformed tag encoding"}
	}
	return EncryptedField{Nonce: nonce, Ciphertext: ct, Tag: tag}, nil
}

// IdentifyingFields are the record attributes encrypted at rest. Low
// sensitivity fields (age, category, org unit) stay plaintext so they remain
// filterable without a decryption pass.
var IdentifyingFields = []string{"name", "ssn", "phone", "address", "email", "diagnosis"}

// FieldCipher encrypts and decrypts individual record fields with
// AES-256-GCM. A fresh random nonce is drawn per call; nonces are never
// reused under the same key. Safe for concurrent use.
type FieldCipher struct {
	aead cipher.AEAD
}

// NewFieldCipher derives an AES-256 key from the master key material via
// HKDF-SHA256 and returns a ready cipher.
func NewFieldCipher(masterKey []byte) (*FieldCipher, error) {
	if len(masterKey) == 0 {
		return nil, fmt.Errorf("empty master key")
	}

	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("zthc/field-cipher/v1"))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive field key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &FieldCipher{aead: gcm}, nil
}

// Encrypt seals one plaintext value into an EncryptedField.
func (c *FieldCipher) Encrypt(plaintext []byte) (EncryptedField, error) {
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedField{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	return EncryptedField{
		Nonce:      nonce,
		Ciphertext: sealed[:len(sealed)-tagSize],
		Tag:        sealed[len(sealed)-tagSize:],
	}, nil
}

// Decrypt opens an EncryptedField. Any tag mismatch or malformed triple
// yields a DecryptionError.
func (c *FieldCipher) Decrypt(f EncryptedField) ([]byte, error) {
	if len(f.Nonce) != nonceSize {
		return nil, &DecryptionError{Reason: "bad nonce length"}
	}
	if len(f.Tag) != tagSize {
		return nil, &DecryptionError{Reason: "bad tag length"}
	}

	sealed := make([]byte, 0, len(f.Ciphertext)+len(f.Tag))
	sealed = append(sealed, f.Ciphertext...)
	sealed = append(sealed, f.Tag...)

	plaintext, err := c.aead.Open(nil, f.Nonce, sealed, nil)
	if err != nil {
		return nil, &DecryptionError{Reason: "authentication tag mismatch"}
	}
	return plaintext, nil
}

// EncryptRecord returns a copy of the record with every identifying field
// sealed and encoded; all other fields pass through in plaintext.
func (c *FieldCipher) EncryptRecord(record map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(record))
	for k, v := range record {
		out[k] = v
	}
	for _, field := range IdentifyingFields {
		v, ok := record[field]
		if !ok {
			continue
		}
		ef, err := c.Encrypt([]byte(v))
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt field %q: %w", field, err)
		}
		out[field] = ef.Encode()
	}
	return out, nil
}

// DecryptRecord reverses EncryptRecord. A corrupted field surfaces as a
// DecryptionError; nothing is returned in that case.
func (c *FieldCipher) DecryptRecord(record map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(record))
	for k, v := range record {
		out[k] = v
	}
	for _, field := range IdentifyingFields {
		v, ok := record[field]
		if !ok {
			continue
		}
		ef, err := DecodeEncryptedField(v)
		if err != nil {
			return nil, err
		}
		plaintext, err := c.Decrypt(ef)
		if err != nil {
			return nil, err
		}
		out[field] = string(plaintext)
	}
	return out, nil
}
