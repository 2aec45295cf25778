// Package messages provides the PostgreSQL-backed message ledger: one row
// per deduplicated inbound SMS, keyed by a unique fingerprint.
package messages

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/smsbridge/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// InsertIfAbsent atomically creates a ledger row for the fingerprint and
// returns (true, id). When the fingerprint already exists it returns
// (false, id) with the id of the winning row. The unique index on
// fingerprint resolves concurrent callers: exactly one insert succeeds and
// all others observe it.
func (r *PostgresRepository) InsertIfAbsent(ctx context.Context, fingerprint, fromNumber, body string, receivedAt *string) (bool, int64, error) {

	insert :=
		`INSERT INTO sms_messages (fingerprint, from_number, body, received_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (fingerprint) DO NOTHING
		 RETURNING id
		 `

	var id int64
	err := r.db.QueryRowContext(ctx, insert, fingerprint, fromNumber, body, receivedAt).Scan(&id)
	if err == nil {
		return true, id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, fmt.Errorf("db error: %w", err)
	}

	// Conflict: another request already owns this fingerprint.
	lookup :=
		`SELECT id FROM sms_messages
		 WHERE fingerprint = $1
		 `

	if err := r.db.QueryRowContext(ctx, lookup, fingerprint).Scan(&id); err != nil {
		return false, 0, fmt.Errorf("db error: %w", err)
	}
	return false, id, nil
}

// MarkDeliveryOutcome records the result of one delivery attempt. The two
// outcome fields are overwritten unconditionally (last-writer-wins). A
// missing row is silently ignored: the update is best-effort.
func (r *PostgresRepository) MarkDeliveryOutcome(ctx context.Context, id int64, telegramMessageID *int64, telegramError *string) error {
	query :=
		`UPDATE sms_messages
		 SET telegram_message_id = $1, telegram_error = $2
		 WHERE id = $3
		 `

	if _, err := r.db.ExecContext(ctx, query, telegramMessageID, telegramError, id); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
