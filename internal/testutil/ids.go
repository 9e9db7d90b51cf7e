package testutil

import (
	"fmt"
	"sync"
)

// FixedIDGenerator returns predictable invocation IDs for testing.
//
// This enables deterministic test execution and golden trace comparison:
// the same scenario produces byte-identical transition logs.
//
// Thread-safety: safe for concurrent use via internal mutex.
type FixedIDGenerator struct {
	mu     sync.Mutex
	prefix string
	next   int
}

// NewFixedIDGenerator creates a generator producing "prefix-1",
// "prefix-2", and so on. An empty prefix defaults to "inv".
func NewFixedIDGenerator(prefix string) *FixedIDGenerator {
	if prefix == "" {
		prefix = "inv"
	}
	return &FixedIDGenerator{prefix: prefix}
}

// Generate returns the next ID in the sequence.
// Implements queue.IDGenerator.
func (g *FixedIDGenerator) Generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("%s-%d", g.prefix, g.next)
}

// Reset restarts the sequence. After Reset, the next Generate returns
// "prefix-1" again.
func (g *FixedIDGenerator) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next = 0
}
