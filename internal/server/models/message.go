package models

import "time"

// Message is one deduplicated inbound SMS and its delivery outcome.
// Fingerprint is derived server-side and unique; ReceivedAt keeps the
// client-supplied timestamp string verbatim, if any.
type Message struct {
	ID                int64
	Fingerprint       string
	FromNumber        string
	Body              string
	ReceivedAt        *string
	CreatedAt         time.Time
	TelegramMessageID *int64
	TelegramError     *string
}
