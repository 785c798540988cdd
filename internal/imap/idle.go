package imap

import (
	"context"
	"time"

	idle "github.com/emersion/go-imap-idle"
	imapclient "github.com/emersion/go-imap/client"
)

// idleFallbackPoll is the polling interval IdleWithFallback uses against
// servers without IDLE support.
const idleFallbackPoll = 30 * time.Second

// WaitForNewMail blocks until the server signals a mailbox change, maxWait
// elapses, or the context is canceled. It uses IMAP IDLE when the server
// supports it and falls back to NOOP polling otherwise, so the ingestion loop
// wakes up early on new mail instead of always sleeping the full interval.
//
// Returns true when a mailbox update arrived, false on timeout or cancel.
func WaitForNewMail(ctx context.Context, c *imapclient.Client, maxWait time.Duration) bool {
	updates := make(chan imapclient.Update, 16)
	c.Updates = updates
	defer func() { c.Updates = nil }()

	idleClient := idle.NewClient(c)

	stop := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- idleClient.IdleWithFallback(stop, idleFallbackPoll)
	}()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	gotUpdate := false
	stopped := false
	stopIdle := func() {
		if !stopped {
			close(stop)
			stopped = true
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopIdle()
		case <-timer.C:
			stopIdle()
		case update := <-updates:
			if _, ok := update.(*imapclient.MailboxUpdate); ok {
				gotUpdate = true
				stopIdle()
			}
		case <-done:
			// Keep draining updates already queued before returning, so the
			// client is left in a clean state for the next command.
			for {
				select {
				case <-updates:
				default:
					return gotUpdate
				}
			}
		}
	}
}
