package mapper

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// ETag returns a strong entity tag for the JSON form of v.
func ETag(v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal representation: %w", err)
	}
	return ETagBytes(body), nil
}

// ETagBytes returns a strong entity tag for an encoded representation.
func ETagBytes(body []byte) string {
	return fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
}
