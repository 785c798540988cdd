package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldmind/zenmail/internal/imap"
	"github.com/coldmind/zenmail/internal/models"
)

// WebhookHandler accepts inbound messages pushed by an external delivery
// service as form fields, normalizes them into the same Message shape the
// IMAP path produces, and runs them through the shared ingestion entry point.
type WebhookHandler struct {
	pool      *pgxpool.Pool
	monitored string
	limiter   *RateLimiter
	trigger   Trigger
}

// NewWebhookHandler creates the webhook ingress. monitored is the bare
// recipient address this pipeline answers for; messages addressed elsewhere
// are acknowledged and dropped.
func NewWebhookHandler(pool *pgxpool.Pool, monitored string, limiter *RateLimiter, trigger Trigger) *WebhookHandler {
	return &WebhookHandler{
		pool:      pool,
		monitored: imap.BareAddress(monitored),
		limiter:   limiter,
		trigger:   trigger,
	}
}

// ServeHTTP handles POST requests with fields: from, to, subject, body-plain,
// message-id, in-reply-to, references.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	// Dropped messages must not charge the sender's rate-limit budget, so the
	// recipient check runs first.
	to := r.FormValue("to")
	if imap.BareAddress(to) != h.monitored {
		log.Printf("webhook: ignoring message for unmonitored recipient %s", to)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ignored"))
		return
	}

	sender := imap.BareAddress(r.FormValue("from"))
	if h.limiter != nil && !h.limiter.Allow(sender) {
		log.Printf("webhook: rate limit exceeded for sender %s", sender)
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}

	msg := normalizeForm(r)
	if msg.MessageID == "" {
		http.Error(w, "message-id is required", http.StatusBadRequest)
		return
	}

	stored, err := Store(r.Context(), h.pool, msg)
	if err != nil {
		log.Printf("webhook: failed to store message %s: %v", msg.MessageID, err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}

	if stored && h.trigger != nil {
		h.trigger(msg)
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("accepted"))
}

// ServeWebhook serves handler on addr until ctx is canceled, then shuts the
// server down gracefully and returns nil. A listen or serve failure is
// returned to the caller.
func ServeWebhook(ctx context.Context, addr string, handler *WebhookHandler) error {
	mux := http.NewServeMux()
	mux.Handle("/webhook/inbound", handler)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{Handler: mux}
	log.Printf("webhook: ingress listening on %s", listener.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		if err := server.Shutdown(context.Background()); err != nil {
			log.Printf("webhook: shutdown error: %v", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("webhook server failed: %w", err)
	}
}

func normalizeForm(r *http.Request) *models.Message {
	now := time.Now()
	msg := &models.Message{
		MessageID:  strings.TrimSpace(r.FormValue("message-id")),
		InReplyTo:  strings.TrimSpace(r.FormValue("in-reply-to")),
		References: strings.Fields(r.FormValue("references")),
		From:       r.FormValue("from"),
		Subject:    r.FormValue("subject"),
		TextBody:   r.FormValue("body-plain"),
		HTMLBody:   r.FormValue("body-html"),
		SentAt:     &now,
		Seen:       true,
	}

	if to := r.FormValue("to"); to != "" {
		msg.To = []string{to}
	}
	if cc := r.FormValue("cc"); cc != "" {
		msg.CC = []string{cc}
	}

	return msg
}
