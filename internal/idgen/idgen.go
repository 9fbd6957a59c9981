// Package idgen generates the broker's opaque identifiers: a base62-encoded
// millisecond timestamp followed by an 8-character random suffix. Unlike a
// ULID the timestamp and suffix are not packed into a single fixed-width
// binary value, because downstream consumers (queue payloads, dldata-resp
// correlation) treat the id as an opaque string with the two parts spelled
// out separately on the wire.
package idgen

import (
	"crypto/rand"
	"time"
)

const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// suffixLen is the length of the random suffix appended to every id.
const suffixLen = 8

// New returns a new opaque id derived from the current time.
func New() string {
	return NewAt(time.Now())
}

// NewAt returns a new opaque id derived from t, useful for deterministic
// tests.
func NewAt(t time.Time) string {
	return encodeBase62(uint64(t.UnixMilli())) + randomSuffix()
}

func encodeBase62(n uint64) string {
	if n == 0 {
		return string(base62Alphabet[0])
	}
	var buf [16]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = base62Alphabet[n%62]
		n /= 62
	}
	return string(buf[i:])
}

func randomSuffix() string {
	raw := make([]byte, suffixLen)
	_, _ = rand.Read(raw)
	out := make([]byte, suffixLen)
	for i, b := range raw {
		out[i] = base62Alphabet[int(b)%len(base62Alphabet)]
	}
	return string(out)
}
