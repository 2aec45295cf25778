package messages

import "context"

type Repository interface {
	InsertIfAbsent(ctx context.Context, fingerprint, fromNumber, body string, receivedAt *string) (bool, int64, error)
	MarkDeliveryOutcome(ctx context.Context, id int64, telegramMessageID *int64, telegramError *string) error
}
