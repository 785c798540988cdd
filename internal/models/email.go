package models

import "time"

// Message is one mailbox item, inbound or outbound.
//
// MessageID is the durable identity of a message: IMAP UIDs are only valid
// within one session and may be reassigned, so deduplication always goes
// through the Message-ID header.
type Message struct {
	ID          int64        `json:"id"`
	UID         uint32       `json:"uid"`
	MessageID   string       `json:"message_id"`
	InReplyTo   string       `json:"in_reply_to,omitempty"`
	References  []string     `json:"references,omitempty"`
	ThreadID    string       `json:"thread_id"`
	From        string       `json:"from_address"`
	To          []string     `json:"to_addresses"`
	CC          []string     `json:"cc_addresses,omitempty"`
	Subject     string       `json:"subject"`
	TextBody    string       `json:"body_text"`
	HTMLBody    string       `json:"body_html,omitempty"`
	SentAt      *time.Time   `json:"sent_at"`
	Flags       []string     `json:"flags,omitempty"`
	Seen        bool         `json:"seen"`
	Processed   bool         `json:"processed"`
	Outbound    bool         `json:"outbound"`
	Delivered   bool         `json:"delivered"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment belongs to exactly one message and is removed with it.
type Attachment struct {
	ID          int64  `json:"id"`
	EmailID     int64  `json:"email_id"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	Content     []byte `json:"-"`
}

// Thread is a derived view: every message sharing a thread ID, oldest first.
// It is never stored as its own row.
type Thread struct {
	ThreadID string    `json:"thread_id"`
	Subject  string    `json:"subject"`
	Messages []Message `json:"messages,omitempty"`
}

// Participants returns the union of from/to/cc addresses across the thread.
func (t *Thread) Participants() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(addr string) {
		if addr == "" || seen[addr] {
			return
		}
		seen[addr] = true
		out = append(out, addr)
	}
	for i := range t.Messages {
		m := &t.Messages[i]
		add(m.From)
		for _, a := range m.To {
			add(a)
		}
		for _, a := range m.CC {
			add(a)
		}
	}
	return out
}
