package reply

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldmind/zenmail/internal/db"
	"github.com/coldmind/zenmail/internal/imap"
	"github.com/coldmind/zenmail/internal/llm"
	"github.com/coldmind/zenmail/internal/models"
)

const defaultBackendTimeout = 2 * time.Minute

// Transport delivers a composed message to its recipients.
type Transport interface {
	Send(from string, to []string, raw []byte) error
}

// Pipeline generates and sends replies to stored inbound messages. At most
// one generation runs per thread at a time; triggers arriving while a thread
// is busy are queued and served in arrival order once the running reply
// finishes.
type Pipeline struct {
	pool        *pgxpool.Pool
	backend     llm.Backend
	transport   Transport
	fromAddress string
	selfAddress string
	timeout     time.Duration

	baseCtx context.Context
	wg      sync.WaitGroup

	mu       sync.Mutex
	inflight map[string]bool
	queues   map[string][]*models.Message
}

type PipelineConfig struct {
	FromAddress string
	// Timeout bounds each backend completion call.
	Timeout time.Duration
}

// NewPipeline creates a reply pipeline. ctx bounds background work; replies
// already in flight when it is canceled run to completion.
func NewPipeline(ctx context.Context, pool *pgxpool.Pool, backend llm.Backend, transport Transport, cfg PipelineConfig) *Pipeline {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultBackendTimeout
	}
	return &Pipeline{
		pool:        pool,
		backend:     backend,
		transport:   transport,
		fromAddress: cfg.FromAddress,
		selfAddress: imap.BareAddress(cfg.FromAddress),
		timeout:     timeout,
		baseCtx:     ctx,
		inflight:    make(map[string]bool),
		queues:      make(map[string][]*models.Message),
	}
}

// Trigger schedules a reply to the given stored message. It never blocks the
// caller; the ingestion loop must keep draining the mailbox while replies
// generate.
func (p *Pipeline) Trigger(msg *models.Message) {
	if msg.Outbound {
		return
	}
	if imap.BareAddress(msg.From) == p.selfAddress {
		log.Printf("reply: skipping own message %s", msg.MessageID)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inflight[msg.ThreadID] {
		p.queues[msg.ThreadID] = append(p.queues[msg.ThreadID], msg)
		log.Printf("reply: thread %s busy, queued message %s", msg.ThreadID, msg.MessageID)
		return
	}

	p.inflight[msg.ThreadID] = true
	p.wg.Add(1)
	go p.work(msg.ThreadID, msg)
}

// Wait blocks until all in-flight and queued replies have finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) work(threadID string, msg *models.Message) {
	defer p.wg.Done()

	for msg != nil {
		p.reply(msg)

		p.mu.Lock()
		queue := p.queues[threadID]
		if len(queue) == 0 {
			delete(p.inflight, threadID)
			delete(p.queues, threadID)
			msg = nil
		} else {
			msg = queue[0]
			p.queues[threadID] = queue[1:]
		}
		p.mu.Unlock()
	}
}

// reply generates, persists, and sends one reply. Failures before the
// outbound row is written leave the inbound message unanswered; the next
// trigger on the thread will see it in the history. Failures after the row is
// written leave it marked undelivered for operator follow-up.
func (p *Pipeline) reply(inbound *models.Message) {
	// Shutdown must not abort a reply that already started: once triggered,
	// every step runs to completion even when the base context is canceled.
	// The backend call keeps its own timeout.
	ctx := context.WithoutCancel(p.baseCtx)

	thread, err := db.GetThread(ctx, p.pool, inbound.ThreadID)
	if err != nil {
		log.Printf("reply: failed to load thread %s: %v", inbound.ThreadID, err)
		return
	}

	turns, prompt := p.buildTurns(thread, inbound)
	if prompt == "" {
		log.Printf("reply: message %s has no usable body, skipping", inbound.MessageID)
		return
	}

	backendCtx, cancel := context.WithTimeout(ctx, p.timeout)
	text, err := p.backend.Complete(backendCtx, turns, prompt)
	cancel()
	if err != nil {
		log.Printf("reply: backend failed for thread %s: %v", inbound.ThreadID, err)
		return
	}

	outbound := ComposeReply(inbound, p.fromAddress, text)

	if _, err := db.InsertMessage(ctx, p.pool, outbound, nil); err != nil {
		log.Printf("reply: failed to persist reply %s: %v", outbound.MessageID, err)
		return
	}

	raw, err := BuildMIME(outbound)
	if err != nil {
		log.Printf("reply: failed to render reply %s: %v", outbound.MessageID, err)
		return
	}

	recipients := make([]string, 0, len(outbound.To))
	for _, to := range outbound.To {
		recipients = append(recipients, imap.BareAddress(to))
	}

	if err := p.transport.Send(p.selfAddress, recipients, raw); err != nil {
		log.Printf("reply: failed to send reply %s: %v", outbound.MessageID, err)
		if markErr := db.MarkDelivered(ctx, p.pool, outbound.MessageID, false); markErr != nil {
			log.Printf("reply: failed to mark reply %s undelivered: %v", outbound.MessageID, markErr)
		}
		return
	}

	if err := db.MarkDelivered(ctx, p.pool, outbound.MessageID, true); err != nil {
		log.Printf("reply: failed to mark reply %s delivered: %v", outbound.MessageID, err)
	}
	if _, err := db.MarkProcessed(ctx, p.pool, inbound.MessageID); err != nil {
		log.Printf("reply: failed to mark message %s processed: %v", inbound.MessageID, err)
	}

	log.Printf("reply: sent %s in thread %s", outbound.MessageID, outbound.ThreadID)
}

// buildTurns replays the stored thread as alternating conversation turns,
// splitting off the triggering message's body as the prompt.
func (p *Pipeline) buildTurns(thread []*models.Message, inbound *models.Message) ([]llm.Turn, string) {
	turns := make([]llm.Turn, 0, len(thread))
	prompt := messageText(inbound)

	for _, m := range thread {
		if m.MessageID == inbound.MessageID {
			// Prefer the stored copy of the triggering message.
			prompt = messageText(m)
			continue
		}

		role := llm.RoleCounterpart
		if m.Outbound || imap.BareAddress(m.From) == p.selfAddress {
			role = llm.RoleSelf
		}
		turns = append(turns, llm.Turn{Role: role, Text: messageText(m)})
	}

	return turns, prompt
}

func messageText(m *models.Message) string {
	if m.TextBody != "" {
		return m.TextBody
	}
	return m.HTMLBody
}
