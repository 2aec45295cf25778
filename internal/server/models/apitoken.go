package models

import "time"

// APIToken stores only the SHA-256 hash of an issued bearer token.
// A token is valid while RevokedAt is null and its hash matches.
type APIToken struct {
	ID         int64
	UserID     int64
	TokenHash  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}
