package testutil

import (
	"fmt"
	"sync"
	"time"

	"arc-go/internal/arc"
)

// Epoch is where FixedClock starts: 2024-01-15 10:30:00 UTC.
var Epoch = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

var (
	_ arc.Clock       = (*StubClock)(nil)
	_ arc.IDGenerator = (*StubIDGenerator)(nil)
)

// StubClock is an arc.Clock that only moves through Advance. Commit
// ordering and session expiry tests step it explicitly.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock at Epoch.
func FixedClock() *StubClock {
	return NewStubClock(Epoch)
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StubIDGenerator numbers ids under a prefix: "<prefix>-1", "<prefix>-2"...
// Collection ids use "id" and upload sessions "upload", so the two never
// collide in a test engine.
type StubIDGenerator struct {
	prefix string

	mu sync.Mutex
	n  int
}

func NewStubIDGenerator(prefix string) *StubIDGenerator {
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("%s-%d", g.prefix, g.n)
}
