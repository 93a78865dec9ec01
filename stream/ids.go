package stream

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator produces session-unique request ids: a random
// connection-scoped prefix joined with a monotonic counter. Two ids from
// the same generator can never collide, and the prefix keeps ids from
// different sessions from colliding with each other.
type IDGenerator struct {
	prefix string
	n      uint64
}

func NewIDGenerator() *IDGenerator {
	u := uuid.New()

	return &IDGenerator{
		prefix: fmt.Sprintf("%x", u[:4]),
	}
}

// Next returns a fresh id. Safe for concurrent use.
func (g *IDGenerator) Next() string {
	n := atomic.AddUint64(&g.n, 1)
	return fmt.Sprintf("%s-%x", g.prefix, n)
}
