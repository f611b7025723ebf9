package idgen

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a lowercase, time-sortable ULID with the given prefix,
// e.g. "conn_01hw3k9...".
func New(prefix string) string {
	entropyMu.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	entropyMu.Unlock()

	value := strings.ToLower(id.String())
	if prefix == "" {
		return value
	}
	return prefix + "_" + value
}
