// Package token mints human-typeable credential tokens.
package token

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"keyadmin/entity"
)

const (
	DefaultPrefix = "EXHUB"

	// MaxAttempts bounds the re-generation loop in Unique.
	MaxAttempts = 10

	blocks    = 3
	blockSize = 4
)

const (
	freeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// no 0/O, 1/I/l
	paidAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789abcdefghijkmnopqrstuvwxyz"
)

type Generator struct {
	prefix string
}

func NewGenerator(prefix string) *Generator {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Generator{prefix: prefix}
}

func (g *Generator) Prefix() string {
	return g.prefix
}

// New returns a token of the form PREFIX-XXXX-XXXX-XXXX using the alphabet of
// the given tier class.
func (g *Generator) New(class entity.TierClass) (string, error) {
	alphabet := paidAlphabet
	if class == entity.ClassFree {
		alphabet = freeAlphabet
	}

	var sb strings.Builder
	sb.Grow(len(g.prefix) + blocks*(blockSize+1))
	sb.WriteString(g.prefix)
	for i := 0; i < blocks; i++ {
		block, err := randomString(alphabet, blockSize)
		if err != nil {
			return "", err
		}
		sb.WriteByte('-')
		sb.WriteString(block)
	}
	return sb.String(), nil
}

// Unique generates tokens until exists reports false, at most MaxAttempts
// times. The last candidate is accepted even if it still collides.
func (g *Generator) Unique(ctx context.Context, class entity.TierClass, exists func(ctx context.Context, token string) bool) (string, error) {
	var candidate string
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		t, err := g.New(class)
		if err != nil {
			return "", err
		}
		candidate = t
		if exists == nil || !exists(ctx, candidate) {
			return candidate, nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return candidate, nil
}

func randomString(alphabet string, n int) (string, error) {
	limit := big.NewInt(int64(len(alphabet)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("random index: %w", err)
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
