package localstore

import (
	"strconv"
	"sync"
	"time"
)

// IDGenerator hands out time-based record ids: the decimal Unix millisecond
// of the call, bumped past the previous id when the clock stalls or steps
// back.
type IDGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

// NewIDGenerator returns a generator driven by the wall clock.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{now: time.Now}
}

// Next returns a new id, strictly greater than every id returned or observed
// before.
func (g *IDGenerator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli()
	if ms <= g.last {
		ms = g.last + 1
	}
	g.last = ms
	return strconv.FormatInt(ms, 10)
}

// Observe raises the floor to id when id is numeric. Non-numeric ids
// (server-assigned ones) are ignored.
func (g *IDGenerator) Observe(id string) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return
	}
	g.mu.Lock()
	if n > g.last {
		g.last = n
	}
	g.mu.Unlock()
}
