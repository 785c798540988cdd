package smtp

import (
	"strings"
	"testing"

	"github.com/coldmind/zenmail/internal/testutil"
)

func TestSenderDeliversMessage(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	sender := NewSender(SenderConfig{
		Address:  server.Address,
		Username: "bot@example.com",
		Password: "secret",
	})

	raw := []byte("Message-Id: <sent@example.com>\r\n" +
		"From: bot@example.com\r\n" +
		"To: alice@example.com\r\n" +
		"Subject: Re: Hello\r\n" +
		"In-Reply-To: <hello@example.com>\r\n" +
		"\r\n" +
		"Reply body.\r\n")

	err := sender.Send("bot@example.com", []string{"alice@example.com"}, raw)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := server.GetMessages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 received message, got %d", len(messages))
	}

	msg := messages[0]
	if msg.From != "bot@example.com" {
		t.Errorf("expected envelope from 'bot@example.com', got %q", msg.From)
	}
	if len(msg.To) != 1 || msg.To[0] != "alice@example.com" {
		t.Errorf("unexpected envelope recipients: %v", msg.To)
	}
	if !strings.Contains(string(msg.Data), "In-Reply-To: <hello@example.com>") {
		t.Errorf("threading header lost in transit:\n%s", msg.Data)
	}
	if !strings.Contains(string(msg.Data), "Reply body.") {
		t.Errorf("body lost in transit:\n%s", msg.Data)
	}
}

func TestSenderMultipleRecipients(t *testing.T) {
	server := testutil.NewTestSMTPServer(t)
	defer server.Close()

	sender := NewSender(SenderConfig{Address: server.Address})

	raw := []byte("Subject: fan-out\r\n\r\nBody.\r\n")
	to := []string{"alice@example.com", "carol@example.com"}

	if err := sender.Send("bot@example.com", to, raw); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	messages := server.GetMessages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 received message, got %d", len(messages))
	}
	if len(messages[0].To) != 2 {
		t.Errorf("expected 2 envelope recipients, got %v", messages[0].To)
	}
}

func TestSenderRequiresRecipients(t *testing.T) {
	sender := NewSender(SenderConfig{Address: "127.0.0.1:1"})

	if err := sender.Send("bot@example.com", nil, []byte("data")); err == nil {
		t.Errorf("expected error for empty recipient list")
	}
}

func TestSenderUnreachableServer(t *testing.T) {
	sender := NewSender(SenderConfig{Address: "127.0.0.1:1"})

	err := sender.Send("bot@example.com", []string{"alice@example.com"}, []byte("data"))
	if err == nil {
		t.Errorf("expected connection error")
	}
}
