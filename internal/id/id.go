// Package id provides lexicographically sortable identifiers and a
// monotonic UTC clock for the entities taskctl persists.
//
// Identifiers are ULIDs: 128-bit values rendered as 26-character
// Crockford base32 strings. Two properties matter here: within a single
// process, lexical order matches creation order; and the 80 random bits
// make cross-process collisions negligible. The leading 8 characters
// form the "short id" used for display and prefix lookup.
package id

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ShortLen is the number of leading characters used for short ids.
const ShortLen = 8

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New returns a fresh identifier. Identifiers generated by one process
// sort in generation order even when created within the same
// millisecond, courtesy of the monotonic entropy source.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now().UTC()), entropy).String()
}

// Short returns the display form of an identifier: its first 8
// characters, or the identifier unchanged when it is already shorter.
func Short(id string) string {
	if len(id) <= ShortLen {
		return id
	}
	return id[:ShortLen]
}

// IsValid reports whether s parses as a full-length identifier.
func IsValid(s string) bool {
	_, err := ulid.ParseStrict(strings.ToUpper(s))
	return err == nil
}

// Clock produces strictly increasing ISO-8601 UTC timestamps. If wall
// time regresses (NTP step, suspend/resume), the clock advances one
// millisecond past the previous reading instead of going backwards.
type Clock struct {
	mu   sync.Mutex
	last time.Time
}

// NewClock returns a Clock ready for use.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns the current instant, guaranteed to be after every
// previous instant this Clock has returned.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UTC()
	if !now.After(c.last) {
		now = c.last.Add(time.Millisecond)
	}
	c.last = now
	return now
}

// NowString returns Now formatted as an ISO-8601 UTC string with
// millisecond precision. Strings from successive calls sort in call
// order.
func (c *Clock) NowString() string {
	return c.Now().Format("2006-01-02T15:04:05.000Z07:00")
}
