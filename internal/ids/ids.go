// Package ids generates issue identifiers.
//
// IDs are ULIDs: 48 bits of millisecond timestamp plus 80 bits of
// entropy, so they sort by creation time and are collision-resistant
// without any coordination. The exact bit layout is not a compatibility
// requirement; only uniqueness and rough creation-order sortability are.
package ids

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh ULID string. The monotonic entropy source
// guarantees that IDs generated within the same millisecond still sort
// in generation order.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewWithPrefix returns "prefix-<ulid>", the form used for issue IDs.
func NewWithPrefix(prefix string) string {
	if prefix == "" {
		return New()
	}
	return prefix + "-" + New()
}

// Prefix extracts the prefix from an issue ID, or "" if it has none.
func Prefix(id string) string {
	idx := strings.LastIndex(id, "-")
	if idx <= 0 {
		return ""
	}
	return id[:idx]
}
