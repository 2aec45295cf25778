// Package fingerprint derives the deduplication key for inbound messages.
// Two deliveries of the same sender and body that fall into the same coarse
// time bucket produce an identical fingerprint, so gateway retries and
// multipart re-deliveries collapse onto one ledger row. Deliveries that
// straddle a bucket boundary may fingerprint differently; that imprecision
// is accepted.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// Engine computes fingerprints with a fixed dedup window.
type Engine struct {
	windowSeconds int64
	now           func() time.Time
}

// New returns an Engine with the given dedup window. Windows below one
// second are clamped to one.
func New(windowSeconds int) *Engine {
	w := int64(windowSeconds)
	if w < 1 {
		w = 1
	}
	return &Engine{windowSeconds: w, now: time.Now}
}

// canonical is serialized with keys in lexical order; the JSON bytes must
// stay stable across releases or existing rows stop deduplicating.
type canonical struct {
	Body   string `json:"body"`
	Bucket int64  `json:"bucket"`
	From   string `json:"from"`
}

// Compute returns the lowercase hex SHA-256 fingerprint for a message.
// receivedAt may be empty or malformed, in which case the current server
// time picks the bucket.
func (e *Engine) Compute(from, body, receivedAt string) string {
	epoch, ok := ParseReceivedAt(receivedAt)
	if !ok {
		epoch = e.now().UTC().Unix()
	}

	c := canonical{
		Body:   body,
		Bucket: epoch / e.windowSeconds,
		From:   from,
	}

	raw, _ := json.Marshal(c)
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// receivedAtLayouts lists accepted timestamp shapes: RFC 3339 with an
// offset or trailing "Z", and a naive local form that is treated as UTC.
var receivedAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

// ParseReceivedAt parses a client-supplied timestamp string into epoch
// seconds. The second return value is false when s is empty or does not
// match any accepted layout.
func ParseReceivedAt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	for _, layout := range receivedAtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.Unix(), true
		}
	}
	return 0, false
}
