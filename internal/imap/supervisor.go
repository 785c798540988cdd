package imap

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// ErrAttemptsExhausted is returned by Run when the connection attempt budget
// is spent. This is the only fatal condition the supervisor surfaces; the
// process must be restarted externally to resume watching.
var ErrAttemptsExhausted = errors.New("connection attempts exhausted")

// Session wraps one live, authenticated connection with the target mailbox
// selected read-write. A new Session value is created on every reconnect;
// references held across a reconnect boundary are invalid.
type Session struct {
	client  *client.Client
	Mailbox *imap.MailboxStatus
}

// Client returns the underlying IMAP client. The session owns it; callers
// must not keep the client past the session callback.
func (s *Session) Client() *client.Client {
	return s.client
}

// SupervisorConfig controls connection and retry behavior for one mailbox.
type SupervisorConfig struct {
	Address     string
	Username    string
	Password    string
	Mailbox     string
	UseTLS      bool
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxAttempts int
}

// Supervisor owns the lifecycle of the remote mailbox session: connect,
// authenticate, acquire the mailbox, hand the session to a callback, and
// release everything on every exit path. Mid-session failures re-enter the
// reconnect loop; only an exhausted connect budget is fatal.
type Supervisor struct {
	cfg SupervisorConfig
}

// NewSupervisor creates a supervisor for a single mailbox.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.Mailbox == "" {
		cfg.Mailbox = "INBOX"
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		cfg.MaxDelay = cfg.BaseDelay
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Supervisor{cfg: cfg}
}

// Run establishes a session and invokes onSession with it. When onSession
// returns an error the session is abandoned and a fresh one is established,
// with exponential backoff between connection attempts. Run returns nil when
// onSession completes without error or the context is canceled, and
// ErrAttemptsExhausted after MaxAttempts consecutive failed connections.
func (s *Supervisor) Run(ctx context.Context, onSession func(context.Context, *Session) error) error {
	attempts := 0
	delay := s.cfg.BaseDelay

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		session, err := s.connect(ctx)
		if err != nil {
			if errors.Is(err, ctx.Err()) && ctx.Err() != nil {
				return nil
			}

			attempts++
			log.Printf("supervisor: connection attempt %d/%d failed: %v", attempts, s.cfg.MaxAttempts, err)
			if attempts >= s.cfg.MaxAttempts {
				return fmt.Errorf("%w after %d attempts: %v", ErrAttemptsExhausted, attempts, err)
			}

			if !sleepContext(ctx, delay) {
				return nil
			}
			delay = nextDelay(delay, s.cfg.MaxDelay)
			continue
		}

		// A successful connection resets the attempt budget: the budget
		// guards against an unreachable server, not against a flaky session.
		attempts = 0
		delay = s.cfg.BaseDelay

		sessionErr := onSession(ctx, session)
		s.release(session)

		if sessionErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}

		log.Printf("supervisor: session ended with error, reconnecting: %v", sessionErr)
	}
}

// connect dials, authenticates, and selects the mailbox read-write.
// A failed select is retried with backoff without consuming the connection
// budget, since the server is demonstrably reachable; if the connection dies
// while waiting for the mailbox, the whole attempt fails as a connect error.
func (s *Supervisor) connect(ctx context.Context) (*Session, error) {
	c, err := Connect(s.cfg.Address, s.cfg.UseTLS)
	if err != nil {
		return nil, err
	}

	if err := Login(c, s.cfg.Username, s.cfg.Password); err != nil {
		_ = c.Logout()
		return nil, err
	}

	delay := s.cfg.BaseDelay
	for {
		mbox, err := c.Select(s.cfg.Mailbox, false)
		if err == nil {
			return &Session{client: c, Mailbox: mbox}, nil
		}

		log.Printf("supervisor: failed to select %s, retrying: %v", s.cfg.Mailbox, err)

		if noopErr := c.Noop(); noopErr != nil {
			_ = c.Logout()
			return nil, fmt.Errorf("connection lost while acquiring mailbox: %w", noopErr)
		}

		if !sleepContext(ctx, delay) {
			_ = c.Logout()
			return nil, ctx.Err()
		}
		delay = nextDelay(delay, s.cfg.MaxDelay)
	}
}

// release logs out best-effort. A failed logout is only logged so it never
// masks the error that ended the session.
func (s *Supervisor) release(session *Session) {
	if err := session.client.Logout(); err != nil {
		log.Printf("supervisor: failed to log out cleanly: %v", err)
	}
}

func nextDelay(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// sleepContext waits for d, returning false if the context was canceled.
func sleepContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
