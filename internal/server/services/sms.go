package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/smsbridge/internal/logging"
	"github.com/dmitrijs2005/smsbridge/internal/server/fingerprint"
	"github.com/dmitrijs2005/smsbridge/internal/server/metrics"
	"github.com/dmitrijs2005/smsbridge/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/smsbridge/internal/server/telegram"
)

// Notifier delivers one formatted notification. Implemented by
// *telegram.Client; faked in tests.
type Notifier interface {
	Send(ctx context.Context, text, parseMode string) (*int64, error)
}

// IncomingSMS is one inbound webhook payload after authentication.
// ReceivedAt is the raw client-supplied timestamp string, or empty.
type IncomingSMS struct {
	From       string
	Body       string
	ReceivedAt string
}

// SMSResult is the orchestrator outcome for one request. A non-empty
// DeliveryError means the row was persisted but the Telegram call failed.
type SMSResult struct {
	Duplicate         bool
	ID                int64
	TelegramMessageID *int64
	DeliveryError     string
}

// SMSService runs the webhook pipeline: fingerprint, dedup-insert, dispatch,
// record outcome. Once a row exists for a fingerprint every later identical
// request short-circuits as a duplicate without re-dispatching; there is no
// retry of a failed dispatch.
type SMSService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	fingerprints *fingerprint.Engine
	notifier     Notifier
	format       telegram.Format
	metrics      metrics.Metrics
	logger       logging.Logger
	now          func() time.Time
}

func NewSMSService(db *sql.DB, m repomanager.RepositoryManager, fp *fingerprint.Engine,
	notifier Notifier, format telegram.Format, mtr metrics.Metrics, logger logging.Logger) *SMSService {
	return &SMSService{
		db:           db,
		repomanager:  m,
		fingerprints: fp,
		notifier:     notifier,
		format:       format,
		metrics:      mtr,
		logger:       logger.With("module", "sms"),
		now:          time.Now,
	}
}

// Process handles one authenticated inbound message end to end.
func (s *SMSService) Process(ctx context.Context, in IncomingSMS) (*SMSResult, error) {
	s.metrics.IncReceived()

	fp := s.fingerprints.Compute(in.From, in.Body, in.ReceivedAt)

	var receivedAt *string
	if in.ReceivedAt != "" {
		receivedAt = &in.ReceivedAt
	}

	repo := s.repomanager.Messages(s.db)
	inserted, id, err := repo.InsertIfAbsent(ctx, fp, in.From, in.Body, receivedAt)
	if err != nil {
		return nil, fmt.Errorf("error recording message: %w", err)
	}

	if !inserted {
		s.metrics.IncDuplicate()
		s.logger.Info(ctx, "duplicate message suppressed", "id", id)
		return &SMSResult{Duplicate: true, ID: id}, nil
	}

	ts := in.ReceivedAt
	if ts == "" {
		ts = s.now().UTC().Format(time.RFC3339)
	}

	text, parseMode := telegram.FormatMessage(s.format, in.From, in.Body, ts)

	messageID, sendErr := s.notifier.Send(ctx, text, parseMode)

	var deliveryErr *string
	result := &SMSResult{ID: id, TelegramMessageID: messageID}
	if sendErr != nil {
		v := sendErr.Error()
		deliveryErr = &v
		result.DeliveryError = v
		s.metrics.IncDeliveryFailed()
		s.logger.Error(ctx, "telegram delivery failed", "id", id, "error", v)
	} else {
		s.metrics.IncDelivered()
	}

	// The persisted outcome and the reported one must agree, so a failure
	// here is surfaced rather than swallowed.
	if err := repo.MarkDeliveryOutcome(ctx, id, messageID, deliveryErr); err != nil {
		return nil, fmt.Errorf("error recording delivery outcome: %w", err)
	}

	return result, nil
}
