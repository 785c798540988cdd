package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldmind/zenmail/internal/db"
	"github.com/coldmind/zenmail/internal/models"
)

// ResolveThreadID computes the conversation identifier for an inbound message
// from its reply-chain headers: inherit the parent's thread when In-Reply-To
// points at a stored message, otherwise inherit from the oldest stored
// References ancestor, otherwise the message roots a new thread under its own
// Message-ID.
//
// This is a best-effort heuristic. When a parent arrives after its reply
// (out-of-order delivery) and no ancestor is stored yet, the reply becomes its
// own thread root and the conversation fragments. That limitation is accepted
// rather than papered over; correcting it would require rewriting thread IDs
// after the fact.
func ResolveThreadID(ctx context.Context, pool *pgxpool.Pool, msg *models.Message) (string, error) {
	if msg.InReplyTo != "" {
		parent, err := db.GetMessageByID(ctx, pool, msg.InReplyTo)
		if err == nil {
			return parent.ThreadID, nil
		}
		if !errors.Is(err, db.ErrMessageNotFound) {
			return "", fmt.Errorf("failed to look up parent %s: %w", msg.InReplyTo, err)
		}
	}

	// References lists ancestors oldest first; the first one we actually
	// have stored carries the thread.
	for _, ref := range msg.References {
		ancestor, err := db.GetMessageByID(ctx, pool, ref)
		if err == nil {
			return ancestor.ThreadID, nil
		}
		if !errors.Is(err, db.ErrMessageNotFound) {
			return "", fmt.Errorf("failed to look up ancestor %s: %w", ref, err)
		}
	}

	return msg.MessageID, nil
}
