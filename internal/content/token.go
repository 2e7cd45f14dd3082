package content

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

// TokenChars are the characters a generated key is built from.
const TokenChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// ValidKeyPattern matches well-formed content keys.
var ValidKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

// IsValidKey reports whether s is a usable content key.
func IsValidKey(s string) bool {
	return s != "" && ValidKeyPattern.MatchString(s)
}

// TokenGenerator produces random alphanumeric keys for new uploads using a
// cryptographically strong source.
type TokenGenerator struct {
	length int
}

// NewTokenGenerator creates a generator for keys of the given length.
func NewTokenGenerator(length int) (*TokenGenerator, error) {
	if length <= 1 {
		return nil, fmt.Errorf("token length must be greater than 1, got %d", length)
	}
	return &TokenGenerator{length: length}, nil
}

// Generate returns a fresh random token.
func (g *TokenGenerator) Generate() string {
	// Rejection sampling keeps the distribution uniform over the 62-char
	// alphabet. 248 is the largest multiple of 62 that fits in a byte.
	const limit = 248

	out := make([]byte, 0, g.length)
	buf := make([]byte, g.length*2)
	for len(out) < g.length {
		if _, err := rand.Read(buf); err != nil {
			panic(fmt.Sprintf("content: reading random bytes: %v", err))
		}
		for _, b := range buf {
			if b >= limit {
				continue
			}
			out = append(out, TokenChars[int(b)%len(TokenChars)])
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out)
}
