package imap

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/mail"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/coldmind/zenmail/internal/models"
)

// ParseRaw converts a raw RFC 5322 message into our Message model, including
// every attachment in source order. Missing subject, cc, or either body is
// tolerated; a structurally unreadable envelope returns an error and the
// caller skips that single message.
func ParseRaw(raw []byte, uid uint32, flags []string) (*models.Message, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty message source")
	}

	envelope, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse message envelope: %w", err)
	}

	msg := &models.Message{
		UID:        uid,
		MessageID:  strings.TrimSpace(envelope.GetHeader("Message-Id")),
		InReplyTo:  strings.TrimSpace(envelope.GetHeader("In-Reply-To")),
		References: splitReferencesHeader(envelope.GetHeader("References")),
		Subject:    envelope.GetHeader("Subject"),
		TextBody:   envelope.Text,
		HTMLBody:   envelope.HTML,
		Flags:      flags,
		Seen:       hasFlag(flags, `\Seen`),
	}

	// A message without a Message-ID cannot be deduplicated by header, so we
	// derive a stable identity from the content itself.
	if msg.MessageID == "" {
		msg.MessageID = syntheticMessageID(raw)
	}

	if from, err := envelope.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = formatAddress(from[0])
	}
	if to, err := envelope.AddressList("To"); err == nil {
		msg.To = formatAddressList(to)
	}
	if cc, err := envelope.AddressList("Cc"); err == nil {
		msg.CC = formatAddressList(cc)
	}

	if date := envelope.GetHeader("Date"); date != "" {
		if sentAt, err := mail.ParseDate(date); err == nil {
			msg.SentAt = &sentAt
		}
	}

	for _, part := range envelope.Attachments {
		msg.Attachments = append(msg.Attachments, models.Attachment{
			Filename:    part.FileName,
			ContentType: part.ContentType,
			SizeBytes:   int64(len(part.Content)),
			Content:     part.Content,
		})
	}

	return msg, nil
}

// splitReferencesHeader splits a References header into its ordered list of
// Message-IDs, oldest ancestor first.
func splitReferencesHeader(header string) []string {
	fields := strings.Fields(header)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// syntheticMessageID derives a deterministic identifier from the message
// bytes, so re-fetching the same ID-less message still dedups in the store.
func syntheticMessageID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("<noid-%x@zenmail.invalid>", sum[:12])
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if f == flag {
			return true
		}
	}
	return false
}

// formatAddress renders an address as "Name <local@host>" or "local@host".
func formatAddress(address *mail.Address) string {
	if address == nil || address.Address == "" {
		return ""
	}

	if address.Name != "" {
		return fmt.Sprintf("%s <%s>", address.Name, address.Address)
	}

	return address.Address
}

// formatAddressList formats a list of addresses, dropping empty entries.
func formatAddressList(addresses []*mail.Address) []string {
	result := make([]string, 0, len(addresses))
	for _, address := range addresses {
		formatted := formatAddress(address)
		if formatted != "" {
			result = append(result, formatted)
		}
	}
	return result
}

// BareAddress extracts the plain address part of a formatted address,
// lowercased for comparison. Returns the input lowercased when it is not a
// parsable RFC 5322 address.
func BareAddress(formatted string) string {
	addr, err := mail.ParseAddress(formatted)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(formatted))
	}
	return strings.ToLower(addr.Address)
}
