package imap

import (
	"strings"
	"testing"
	"time"
)

const fullMessage = "Message-ID: <abc@example.com>\r\n" +
	"In-Reply-To: <parent@example.com>\r\n" +
	"References: <root@example.com> <parent@example.com>\r\n" +
	"Date: Mon, 02 Jan 2006 15:04:05 -0700\r\n" +
	"From: Alice Example <alice@example.com>\r\n" +
	"To: Bot <bot@example.com>, carol@example.com\r\n" +
	"Cc: dave@example.com\r\n" +
	"Subject: Quarterly numbers\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"mixed-bound\"\r\n" +
	"\r\n" +
	"--mixed-bound\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Here are the numbers you asked for.\r\n" +
	"--mixed-bound\r\n" +
	"Content-Type: application/octet-stream\r\n" +
	"Content-Disposition: attachment; filename=\"numbers.csv\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"cTEsMTAwCnEyLDIwMAo=\r\n" +
	"--mixed-bound--\r\n"

func TestParseRawFullMessage(t *testing.T) {
	msg, err := ParseRaw([]byte(fullMessage), 42, []string{`\Seen`})
	if err != nil {
		t.Fatalf("ParseRaw failed: %v", err)
	}

	if msg.UID != 42 {
		t.Errorf("expected UID 42, got %d", msg.UID)
	}
	if msg.MessageID != "<abc@example.com>" {
		t.Errorf("expected Message-ID '<abc@example.com>', got %q", msg.MessageID)
	}
	if msg.InReplyTo != "<parent@example.com>" {
		t.Errorf("expected In-Reply-To '<parent@example.com>', got %q", msg.InReplyTo)
	}
	if len(msg.References) != 2 || msg.References[0] != "<root@example.com>" {
		t.Errorf("unexpected References: %v", msg.References)
	}
	if msg.From != "Alice Example <alice@example.com>" {
		t.Errorf("unexpected From: %q", msg.From)
	}
	if len(msg.To) != 2 || msg.To[0] != "Bot <bot@example.com>" || msg.To[1] != "carol@example.com" {
		t.Errorf("unexpected To: %v", msg.To)
	}
	if len(msg.CC) != 1 || msg.CC[0] != "dave@example.com" {
		t.Errorf("unexpected Cc: %v", msg.CC)
	}
	if msg.Subject != "Quarterly numbers" {
		t.Errorf("unexpected Subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.TextBody, "numbers you asked for") {
		t.Errorf("unexpected text body: %q", msg.TextBody)
	}
	if !msg.Seen {
		t.Errorf("expected Seen to be set from flags")
	}

	if msg.SentAt == nil {
		t.Fatalf("expected SentAt to be parsed")
	}
	expected := time.Date(2006, time.January, 2, 15, 4, 5, 0, time.FixedZone("", -7*3600))
	if !msg.SentAt.Equal(expected) {
		t.Errorf("expected SentAt %v, got %v", expected, msg.SentAt)
	}

	if len(msg.Attachments) != 1 {
		t.Fatalf("expected 1 attachment, got %d", len(msg.Attachments))
	}
	att := msg.Attachments[0]
	if att.Filename != "numbers.csv" {
		t.Errorf("unexpected attachment filename: %q", att.Filename)
	}
	if att.SizeBytes != int64(len(att.Content)) {
		t.Errorf("attachment size %d does not match content length %d", att.SizeBytes, len(att.Content))
	}
	if string(att.Content) != "q1,100\nq2,200\n" {
		t.Errorf("unexpected attachment content: %q", att.Content)
	}
}

func TestParseRawMissingMessageID(t *testing.T) {
	raw := []byte("From: alice@example.com\r\n" +
		"To: bot@example.com\r\n" +
		"Subject: no id\r\n" +
		"\r\n" +
		"Body.\r\n")

	msg, err := ParseRaw(raw, 1, nil)
	if err != nil {
		t.Fatalf("ParseRaw failed: %v", err)
	}

	if !strings.HasPrefix(msg.MessageID, "<noid-") || !strings.HasSuffix(msg.MessageID, "@zenmail.invalid>") {
		t.Errorf("expected synthetic Message-ID, got %q", msg.MessageID)
	}

	// Same bytes produce the same identity.
	again, err := ParseRaw(raw, 2, nil)
	if err != nil {
		t.Fatalf("ParseRaw failed: %v", err)
	}
	if again.MessageID != msg.MessageID {
		t.Errorf("synthetic Message-ID not deterministic: %q vs %q", msg.MessageID, again.MessageID)
	}
}

func TestParseRawTolerantOfMissingFields(t *testing.T) {
	raw := []byte("Message-ID: <bare@example.com>\r\n" +
		"From: alice@example.com\r\n" +
		"\r\n" +
		"Just a body.\r\n")

	msg, err := ParseRaw(raw, 1, nil)
	if err != nil {
		t.Fatalf("ParseRaw failed: %v", err)
	}

	if msg.Subject != "" {
		t.Errorf("expected empty subject, got %q", msg.Subject)
	}
	if msg.SentAt != nil {
		t.Errorf("expected nil SentAt for missing Date")
	}
	if len(msg.To) != 0 || len(msg.CC) != 0 {
		t.Errorf("expected empty recipient lists, got To=%v Cc=%v", msg.To, msg.CC)
	}
	if len(msg.References) != 0 {
		t.Errorf("expected no references, got %v", msg.References)
	}
}

func TestParseRawEmptySource(t *testing.T) {
	if _, err := ParseRaw(nil, 1, nil); err == nil {
		t.Errorf("expected error for empty source")
	}
	if _, err := ParseRaw([]byte("\r\n \r\n"), 1, nil); err == nil {
		t.Errorf("expected error for whitespace-only source")
	}
}

func TestBareAddress(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "formatted with name", input: "Alice Example <Alice@Example.COM>", expected: "alice@example.com"},
		{name: "bare address", input: "bob@example.com", expected: "bob@example.com"},
		{name: "unparsable input", input: "  Not An Address  ", expected: "not an address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BareAddress(tt.input); got != tt.expected {
				t.Errorf("BareAddress(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}
