package session

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// IDPrefix starts every session id.
const IDPrefix = "session-"

// IDGenerator produces session ids from monotonic ULIDs. Ids are time ordered
// and never repeat within a process, even when generated in the same
// millisecond.
type IDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

// NewIDGenerator creates a generator with cryptographically secure entropy.
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// New returns a fresh session id.
func (g *IDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	return IDPrefix + strings.ToLower(id.String())
}
