// Package protocol generates the short codes staff read aloud and type into
// the search box. Codes are derived from the clock plus two random digits;
// they are unique enough for one condominium's pending queue, not globally.
package protocol

import (
	"fmt"
	"time"

	"github.com/dchest/uniuri"
)

const (
	clockDigits  = 6
	suffixDigits = 2
	clockModulus = 1_000_000
)

var digits = []byte("0123456789")

// Length is the number of characters in a generated protocol.
const Length = clockDigits + suffixDigits

// Generator derives protocols from the current time.
type Generator struct {
	now    func() time.Time
	suffix func() string
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// WithSuffix overrides the random suffix source.
func WithSuffix(suffix func() string) Option {
	return func(g *Generator) {
		if suffix != nil {
			g.suffix = suffix
		}
	}
}

func New(opts ...Option) *Generator {
	g := &Generator{
		now:    time.Now,
		suffix: func() string { return uniuri.NewLenChars(suffixDigits, digits) },
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Next returns a new protocol. It never fails.
func (g *Generator) Next() string {
	seconds := g.now().Unix() % clockModulus
	if seconds < 0 {
		seconds = -seconds
	}
	return fmt.Sprintf("%0*d%s", clockDigits, seconds, g.suffix())
}

// Valid reports whether s looks like a generated protocol.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
