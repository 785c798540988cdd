package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldmind/zenmail/internal/db"
	"github.com/coldmind/zenmail/internal/models"
)

// Trigger is invoked for every newly stored inbound message, after commit.
// The reply pipeline registers itself here; passing nil disables replies.
type Trigger func(msg *models.Message)

// Store resolves the thread for a normalized message and persists it together
// with its attachments. It is the single ingestion entry point shared by the
// IMAP polling loop and the webhook ingress.
//
// Returns false when the message was already stored (same Message-ID), which
// is a successful no-op, never an error.
func Store(ctx context.Context, pool *pgxpool.Pool, msg *models.Message) (bool, error) {
	threadID, err := ResolveThreadID(ctx, pool, msg)
	if err != nil {
		return false, err
	}
	msg.ThreadID = threadID

	_, err = db.InsertMessage(ctx, pool, msg, msg.Attachments)
	if errors.Is(err, db.ErrDuplicateMessage) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to store message %s: %w", msg.MessageID, err)
	}

	return true, nil
}
