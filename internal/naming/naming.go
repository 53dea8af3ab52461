// Package naming generates collision-free load-balancer names.
package naming

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"tasnim.dev/elbctl/internal/lb"
)

const (
	// DefaultMaxAttempts bounds the number of existence checks per Generate.
	DefaultMaxAttempts = 100
	suffixLength       = 6
)

var invalidChars = regexp.MustCompile(`[^a-z0-9-]+`)

// ExistsFunc reports whether name is already taken remotely.
type ExistsFunc func(ctx context.Context, name string) (bool, error)

// Generator builds names of the form <prefix>-<suffix>. The prefix is
// sanitized and truncated deterministically; only the suffix is random.
type Generator struct {
	MaxAttempts int
	MaxLength   int
	// Suffix returns the random part of a candidate. Defaults to a slice of
	// a random UUID.
	Suffix func() string
}

// New returns a Generator with the remote system's limits.
func New() *Generator {
	return &Generator{MaxAttempts: DefaultMaxAttempts, MaxLength: lb.MaxNameLength}
}

// Generate returns the first candidate for which exists reports false. Every
// attempt performs a fresh check; nothing is cached between attempts.
func (g *Generator) Generate(ctx context.Context, prefix string, exists ExistsFunc) (string, error) {
	attempts := g.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}

	var name string
	for i := 0; i < attempts; i++ {
		name = g.Candidate(prefix)
		taken, err := exists(ctx, name)
		if err != nil {
			return "", fmt.Errorf("checking name %s: %w", name, err)
		}
		if !taken {
			return name, nil
		}
		log.Debug().
			Str("name", name).
			Int("attempt", i+2).
			Msg("Generated load balancer name conflicts with existing; trying again")
	}
	return "", &lb.NameExhaustedError{Attempts: attempts, LastName: name}
}

// Candidate returns one candidate name for prefix.
func (g *Generator) Candidate(prefix string) string {
	maxLen := g.MaxLength
	if maxLen <= 0 {
		maxLen = lb.MaxNameLength
	}
	suffix := g.suffix()
	if len(suffix) > maxLen {
		suffix = strings.Trim(suffix[:maxLen], "-")
	}
	p := Sanitize(prefix)
	room := max(maxLen-len(suffix)-1, 0)
	if len(p) > room {
		p = strings.TrimRight(p[:room], "-")
	}
	if p == "" {
		return suffix
	}
	return p + "-" + suffix
}

func (g *Generator) suffix() string {
	if g.Suffix != nil {
		return Sanitize(g.Suffix())
	}
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:suffixLength]
}

// Sanitize lower-cases s and collapses anything the remote API rejects into
// single hyphens, trimming hyphens at either end.
func Sanitize(s string) string {
	s = invalidChars.ReplaceAllString(strings.ToLower(s), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	return strings.Trim(s, "-")
}
