package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	keyPrefix  = "seg"
	keyVersion = "v1"

	secretIDLength   = 32
	randomDataLength = 64
)

// ParseAPIKey extracts secret_id and random_data from an API key.
// Format: seg-v1-<secret_id>-<random_data>, both lowercase hex.
func ParseAPIKey(key string) (secretID, randomData string, err error) {
	parts := strings.Split(key, "-")
	if len(parts) != 4 || parts[0] != keyPrefix || parts[1] != keyVersion {
		return "", "", ErrInvalidKeyFormat
	}

	secretID = parts[2]
	randomData = parts[3]
	if len(secretID) != secretIDLength || len(randomData) != randomDataLength {
		return "", "", ErrInvalidKeyFormat
	}

	for _, c := range secretID + randomData {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", "", ErrInvalidKeyFormat
		}
	}

	return secretID, randomData, nil
}

// ComputeHMAC computes the HMAC-SHA256 of apiKey under secret.
func ComputeHMAC(secret []byte, apiKey string) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(apiKey))
	return h.Sum(nil)
}

// VerifyHMAC compares two hashes in constant time.
func VerifyHMAC(expectedHash, computedHash []byte) bool {
	return hmac.Equal(expectedHash, computedHash)
}

// FormatAPIKey constructs an API key from its components.
func FormatAPIKey(secretID, randomData string) string {
	return fmt.Sprintf("%s-%s-%s-%s", keyPrefix, keyVersion, secretID, randomData)
}

// GenerateAPIKey returns a new key signed under secretID with 256 random bits.
func GenerateAPIKey(secretID string) (string, error) {
	random := make([]byte, randomDataLength/2)
	if _, err := rand.Read(random); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	key := FormatAPIKey(secretID, hex.EncodeToString(random))
	if _, _, err := ParseAPIKey(key); err != nil {
		return "", fmt.Errorf("secret id %q: %w", secretID, err)
	}
	return key, nil
}
