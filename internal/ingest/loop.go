package ingest

import (
	"context"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldmind/zenmail/internal/imap"
)

// Loop drives one polling cycle after another against a live IMAP session:
// search for new messages, then parse, resolve, and store each in fetch
// order, marking the remote copy seen only after the store commit. A single
// malformed or unstorable message never stops the rest of the cycle.
type Loop struct {
	pool         *pgxpool.Pool
	pollInterval time.Duration
	trigger      Trigger
}

// NewLoop creates an ingestion loop. trigger may be nil.
func NewLoop(pool *pgxpool.Pool, pollInterval time.Duration, trigger Trigger) *Loop {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Loop{
		pool:         pool,
		pollInterval: pollInterval,
		trigger:      trigger,
	}
}

// Run processes polling cycles until the context is canceled or the session
// fails. It has the signature the connection supervisor expects, so wiring is
// supervisor.Run(ctx, loop.Run). A returned error means the session is
// unusable and the supervisor should reconnect; Run finishes the in-flight
// message before honoring cancellation.
func (l *Loop) Run(ctx context.Context, session *imap.Session) error {
	// UIDs are only stable within this session, so the marker starts fresh.
	// Unseen state on the server is the durable marker across sessions.
	var lastUID uint32

	for {
		if ctx.Err() != nil {
			return nil
		}

		uids, err := imap.SearchNewUIDs(session.Client(), lastUID)
		if err != nil {
			return err
		}

		for _, uid := range uids {
			if ctx.Err() != nil {
				return nil
			}

			if err := l.processOne(ctx, session, uid); err != nil {
				// Fetch failures mean the session itself is suspect.
				return err
			}

			if uid > lastUID {
				lastUID = uid
			}
		}

		if ctx.Err() != nil {
			return nil
		}

		if imap.WaitForNewMail(ctx, session.Client(), l.pollInterval) {
			log.Printf("ingest: woken by mailbox update")
		}
	}
}

// processOne runs Fetch -> Parse -> Resolve -> Store -> mark seen for a
// single UID. Only a fetch error propagates; everything downstream of a
// successful fetch is isolated to this message.
func (l *Loop) processOne(ctx context.Context, session *imap.Session, uid uint32) error {
	raw, err := imap.FetchRawMessage(session.Client(), uid)
	if err != nil {
		return err
	}

	msg, err := imap.ParseRaw(raw.Source, raw.UID, raw.Flags)
	if err != nil {
		log.Printf("ingest: skipping unparsable message uid=%d: %v", uid, err)
		return nil
	}

	// Cancellation is honored between messages, never inside one: a shutdown
	// arriving mid-store must not abort the transaction for the message
	// already being processed.
	stored, err := Store(context.WithoutCancel(ctx), l.pool, msg)
	if err != nil {
		// Left unseen on the server, the message is retried next cycle;
		// Message-ID dedup makes that retry safe.
		log.Printf("ingest: failed to store message uid=%d id=%s: %v", uid, msg.MessageID, err)
		return nil
	}

	if err := imap.AddSeenFlag(session.Client(), uid); err != nil {
		log.Printf("ingest: failed to mark uid=%d seen on server: %v", uid, err)
	}

	if stored {
		log.Printf("ingest: stored message uid=%d id=%s thread=%s", uid, msg.MessageID, msg.ThreadID)
		if l.trigger != nil {
			l.trigger(msg)
		}
	} else {
		log.Printf("ingest: message uid=%d id=%s already stored", uid, msg.MessageID)
	}

	return nil
}
