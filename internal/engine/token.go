package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// TokenGenerator issues the correlation token of a pending status change.
type TokenGenerator interface {
	Generate() string
}

// UUIDv7Generator issues UUIDv7 tokens, which sort by issue time in logs
// and in the console's pending view.
type UUIDv7Generator struct{}

func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// FixedGenerator hands out a scripted list of tokens, in order. It is safe
// for concurrent use.
type FixedGenerator struct {
	mu     sync.Mutex
	tokens []string
	issued int
}

// NewFixedGenerator scripts tokens.
func NewFixedGenerator(tokens ...string) *FixedGenerator {
	return &FixedGenerator{tokens: tokens}
}

// Generate panics once the script runs out: a test requested more status
// changes than it declared.
func (g *FixedGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.issued == len(g.tokens) {
		panic(fmt.Sprintf("FixedGenerator: %d tokens scripted, change %d requested", len(g.tokens), g.issued+1))
	}
	tok := g.tokens[g.issued]
	g.issued++
	return tok
}
