package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/coldmind/zenmail/internal/config"
	"github.com/coldmind/zenmail/internal/db"
	"github.com/coldmind/zenmail/internal/imap"
	"github.com/coldmind/zenmail/internal/ingest"
	"github.com/coldmind/zenmail/internal/llm"
	"github.com/coldmind/zenmail/internal/reply"
	"github.com/coldmind/zenmail/internal/smtp"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewConnection(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.CloseConnection(pool)

	if err := db.Initialize(ctx, pool); err != nil {
		log.Fatalf("Failed to initialize schema: %v", err)
	}

	log.Printf("Successfully connected to database")

	backend := llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:  cfg.LLMAPIKey,
		APIBase: cfg.LLMAPIBase,
		Model:   cfg.LLMModel,
	})

	sender := smtp.NewSender(smtp.SenderConfig{
		Address:  cfg.SMTPAddress(),
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		StartTLS: cfg.SMTPStartTLS,
	})

	pipeline := reply.NewPipeline(ctx, pool, backend, sender, reply.PipelineConfig{
		FromAddress: cfg.FromAddress,
		Timeout:     cfg.LLMTimeout,
	})

	if cfg.WebhookPort != "" {
		limiter := ingest.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow)
		go limiter.Run(ctx)

		handler := ingest.NewWebhookHandler(pool, cfg.FromAddress, limiter, pipeline.Trigger)
		go func() {
			// A failed ingress triggers the same orderly shutdown as a
			// signal, so the pool close and pipeline drain still run.
			if err := ingest.ServeWebhook(ctx, ":"+cfg.WebhookPort, handler); err != nil {
				log.Printf("Webhook ingress failed: %v", err)
				stop()
			}
		}()
	}

	loop := ingest.NewLoop(pool, cfg.PollInterval, pipeline.Trigger)

	supervisor := imap.NewSupervisor(imap.SupervisorConfig{
		Address:     cfg.IMAPAddress(),
		Username:    cfg.IMAPUsername,
		Password:    cfg.IMAPPassword,
		Mailbox:     cfg.IMAPMailbox,
		UseTLS:      cfg.IMAPTLS,
		BaseDelay:   cfg.ReconnectBaseDelay,
		MaxDelay:    cfg.ReconnectMaxDelay,
		MaxAttempts: cfg.MaxConnectAttempts,
	})

	log.Printf("Watching %s on %s (environment: %s)", cfg.IMAPMailbox, cfg.IMAPAddress(), cfg.Environment)

	err = supervisor.Run(ctx, loop.Run)

	// Let in-flight replies finish before tearing down the pool.
	pipeline.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Mailbox watch failed: %v", err)
	}

	log.Printf("Shutdown complete")
}
