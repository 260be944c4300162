package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// Management token format: gvt_{prefix}_{secret}
// Example: gvt_7a9x3k_4f8d2e1b9c7a5f3d2e1b9c7a5f3d2e1b
const (
	TokenPrefixLen = 6
	TokenSecretLen = 32

	tokenScheme = "gvt"
)

var (
	// ErrInvalidTokenFormat indicates the token does not match gvt_{prefix}_{secret}.
	ErrInvalidTokenFormat = errors.New("invalid management token format")

	tokenFormatRegex = regexp.MustCompile(`^gvt_([a-f0-9]{6})_([a-f0-9]{32})$`)
)

// GeneratedToken contains the parts of a newly generated management token.
type GeneratedToken struct {
	Plaintext string // shown once
	Hash      string // argon2id, stored
	Prefix    string // lookup key
}

// GenerateToken creates a new management token.
func GenerateToken() (*GeneratedToken, error) {
	prefix, err := randomHex(TokenPrefixLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(TokenSecretLen / 2)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := fmt.Sprintf("%s_%s_%s", tokenScheme, prefix, secret)

	hash, err := HashSecret(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash token: %w", err)
	}

	return &GeneratedToken{
		Plaintext: plaintext,
		Hash:      hash,
		Prefix:    prefix,
	}, nil
}

// ParsedToken holds the components of a management token.
type ParsedToken struct {
	Prefix string
	Secret string
}

// ParseToken splits a plaintext management token.
func ParseToken(token string) (*ParsedToken, error) {
	matches := tokenFormatRegex.FindStringSubmatch(token)
	if matches == nil {
		return nil, ErrInvalidTokenFormat
	}
	return &ParsedToken{Prefix: matches[1], Secret: matches[2]}, nil
}

// ValidateTokenFormat reports whether token is a well formed management token.
func ValidateTokenFormat(token string) bool {
	return tokenFormatRegex.MatchString(token)
}

// GenerateSubscriptionKey returns a random value for a consumer API key.
// Consumer keys are presented to the gateway as-is, so they are stored in clear.
func GenerateSubscriptionKey() string {
	return uuid.NewString()
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
