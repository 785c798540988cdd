package reply

import (
	"bytes"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"

	"github.com/coldmind/zenmail/internal/models"
)

// ReplySubject prefixes the subject with "Re: " unless it already carries one.
func ReplySubject(subject string) string {
	trimmed := strings.TrimSpace(subject)
	if trimmed == "" {
		return "Re: (no subject)"
	}
	if strings.HasPrefix(strings.ToLower(trimmed), "re:") {
		return trimmed
	}
	return "Re: " + trimmed
}

// NewMessageID mints a globally unique Message-ID under the sending domain.
func NewMessageID(domain string) string {
	return fmt.Sprintf("<%s@%s>", uuid.NewString(), domain)
}

// ComposeReply builds the outbound reply to inbound. The reply answers the
// sender of the inbound message, inherits its thread, and extends its
// References chain so the conversation threads in any client.
func ComposeReply(inbound *models.Message, from, text string) *models.Message {
	now := time.Now()

	references := make([]string, 0, len(inbound.References)+1)
	references = append(references, inbound.References...)
	if len(references) == 0 || references[len(references)-1] != inbound.MessageID {
		references = append(references, inbound.MessageID)
	}

	return &models.Message{
		MessageID:  NewMessageID(addressDomain(from)),
		InReplyTo:  inbound.MessageID,
		References: references,
		ThreadID:   inbound.ThreadID,
		From:       from,
		To:         []string{inbound.From},
		Subject:    ReplySubject(inbound.Subject),
		TextBody:   text,
		SentAt:     &now,
		Seen:       true,
		Processed:  true,
		Outbound:   true,
	}
}

// BuildMIME renders the reply as an RFC 5322 message ready for SMTP
// submission.
func BuildMIME(msg *models.Message) ([]byte, error) {
	builder := enmime.Builder().
		Subject(msg.Subject).
		Text([]byte(msg.TextBody)).
		Header("Message-Id", msg.MessageID)

	fromName, fromAddr := splitAddress(msg.From)
	builder = builder.From(fromName, fromAddr)

	for _, to := range msg.To {
		name, addr := splitAddress(to)
		builder = builder.To(name, addr)
	}
	for _, cc := range msg.CC {
		name, addr := splitAddress(cc)
		builder = builder.CC(name, addr)
	}

	if msg.SentAt != nil {
		builder = builder.Date(*msg.SentAt)
	}
	if msg.InReplyTo != "" {
		builder = builder.Header("In-Reply-To", msg.InReplyTo)
	}
	if len(msg.References) > 0 {
		builder = builder.Header("References", strings.Join(msg.References, " "))
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func splitAddress(formatted string) (name, address string) {
	parsed, err := mail.ParseAddress(formatted)
	if err != nil {
		return "", formatted
	}
	return parsed.Name, parsed.Address
}

func addressDomain(address string) string {
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	if at := strings.LastIndex(address, "@"); at >= 0 {
		return address[at+1:]
	}
	return "localhost"
}
