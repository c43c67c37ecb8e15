package auth

import (
	"errors"
	"strings"
	"testing"
)

const testSecretID = "0123456789abcdef0123456789abcdef"

func TestParseAPIKey(t *testing.T) {
	random := strings.Repeat("ab", 32)

	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid", "seg-v1-" + testSecretID + "-" + random, false},
		{"wrong prefix", "tk-v1-" + testSecretID + "-" + random, true},
		{"wrong version", "seg-v2-" + testSecretID + "-" + random, true},
		{"short secret id", "seg-v1-0123-" + random, true},
		{"short random", "seg-v1-" + testSecretID + "-abcd", true},
		{"uppercase hex", "seg-v1-" + strings.ToUpper(testSecretID) + "-" + random, true},
		{"extra part", "seg-v1-" + testSecretID + "-" + random + "-x", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secretID, randomData, err := ParseAPIKey(tt.key)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidKeyFormat) {
					t.Errorf("ParseAPIKey() error = %v, want %v", err, ErrInvalidKeyFormat)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAPIKey() error = %v, want nil", err)
			}
			if secretID != testSecretID || randomData != random {
				t.Errorf("ParseAPIKey() = (%v, %v), want (%v, %v)", secretID, randomData, testSecretID, random)
			}
		})
	}
}

func TestGenerateAPIKey(t *testing.T) {
	a, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	b, err := GenerateAPIKey(testSecretID)
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v, want nil", err)
	}
	if a == b {
		t.Errorf("GenerateAPIKey() returned the same key twice")
	}
	if secretID, _, err := ParseAPIKey(a); err != nil || secretID != testSecretID {
		t.Errorf("ParseAPIKey(GenerateAPIKey()) = (%v, %v), want (%v, nil)", secretID, err, testSecretID)
	}

	if _, err := GenerateAPIKey("not-hex"); !errors.Is(err, ErrInvalidKeyFormat) {
		t.Errorf("GenerateAPIKey(bad id) error = %v, want %v", err, ErrInvalidKeyFormat)
	}
}

func TestComputeHMAC(t *testing.T) {
	secret := []byte(strings.Repeat("s", 32))
	h1 := ComputeHMAC(secret, "key")
	h2 := ComputeHMAC(secret, "key")
	if !VerifyHMAC(h1, h2) {
		t.Errorf("VerifyHMAC() = false for identical inputs")
	}
	if VerifyHMAC(h1, ComputeHMAC(secret, "other")) {
		t.Errorf("VerifyHMAC() = true for different keys")
	}
	if VerifyHMAC(h1, ComputeHMAC([]byte(strings.Repeat("t", 32)), "key")) {
		t.Errorf("VerifyHMAC() = true for different secrets")
	}
	if len(h1) != 32 {
		t.Errorf("len(ComputeHMAC()) = %d, want 32", len(h1))
	}
}
