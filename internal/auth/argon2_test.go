package auth

import (
	"fmt"
	"strings"
	"testing"

	"golang.org/x/crypto/argon2"
)

const sampleToken = "gvt_abc123_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b"

func TestHashSecret_PHCFormat(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret(sampleToken)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 6 {
		t.Fatalf("hash should have 6 parts, got %d", len(parts))
	}
	if parts[1] != "argon2id" || parts[2] != "v=19" || parts[3] != "m=65536,t=3,p=4" {
		t.Errorf("unexpected PHC header: %s", strings.Join(parts[:4], "$"))
	}
}

func TestHashSecret_SaltedPerCall(t *testing.T) {
	t.Parallel()

	h1, err := HashSecret(sampleToken)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	h2, err := HashSecret(sampleToken)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}
	if h1 == h2 {
		t.Error("two hashes of the same secret should differ")
	}
}

func TestVerifySecret(t *testing.T) {
	t.Parallel()

	hash, err := HashSecret(sampleToken)
	if err != nil {
		t.Fatalf("HashSecret failed: %v", err)
	}

	tests := []struct {
		name   string
		secret string
		want   bool
	}{
		{"match", sampleToken, true},
		{"mismatch", "gvt_abc123_00000000000000000000000000000000", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := VerifySecret(tt.secret, hash)
			if err != nil {
				t.Fatalf("VerifySecret returned error: %v", err)
			}
			if got != tt.want {
				t.Errorf("VerifySecret() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifySecret_MalformedHash(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		hash    string
		wantErr error
	}{
		{"empty", "", ErrInvalidHash},
		{"garbage", "not-a-hash", ErrInvalidHash},
		{"bcrypt", "$bcrypt$v=19$m=65536,t=3,p=4$salt$hash", ErrInvalidHash},
		{"truncated", "$argon2id$v=19$m=65536", ErrInvalidHash},
		{"old version", "$argon2id$v=18$m=65536,t=3,p=4$c29tZXNhbHRoZXJl$c29tZWhhc2hoZXJl", ErrIncompatibleVersion},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			match, err := VerifySecret("secret", tt.hash)
			if err != tt.wantErr {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if match {
				t.Error("malformed hash must never match")
			}
		})
	}
}

func TestQuickHash(t *testing.T) {
	t.Parallel()

	if QuickHash(sampleToken) != QuickHash(sampleToken) {
		t.Error("QuickHash should be deterministic")
	}
	if QuickHash("a") == QuickHash("b") {
		t.Error("different inputs should hash differently")
	}
	for _, in := range []string{"", "x", strings.Repeat("y", 500)} {
		if got := len(QuickHash(in)); got != 32 {
			t.Errorf("len(QuickHash(%d chars)) = %d, want 32", len(in), got)
		}
	}
}

func TestVerifySecret_ReadsCostFromHash(t *testing.T) {
	t.Parallel()

	// Hashes issued with cheaper settings must keep verifying.
	cheap := params{memory: 8 * 1024, time: 1, threads: 1, keyLen: 16}
	salt := []byte("0123456789abcdef")
	key := argon2.IDKey([]byte(sampleToken), salt, cheap.time, cheap.memory, cheap.threads, cheap.keyLen)
	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, cheap.memory, cheap.time, cheap.threads, b64.EncodeToString(salt), b64.EncodeToString(key))

	ok, err := VerifySecret(sampleToken, encoded)
	if err != nil || !ok {
		t.Fatalf("VerifySecret = %v, %v; want true, nil", ok, err)
	}
}
