package imap

import (
	"fmt"
	"io"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// RawMessage is one fetched mailbox item before parsing.
type RawMessage struct {
	UID    uint32
	Flags  []string
	Source []byte
}

// SearchNewUIDs returns the UIDs of unseen messages above the given marker,
// in ascending order. The marker is session-local; passing 0 returns every
// unseen message, which is how a fresh session picks up anything that was
// fetched but never marked seen before a crash.
func SearchNewUIDs(c *client.Client, sinceUID uint32) ([]uint32, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}

	if sinceUID > 0 {
		uidRange := new(imap.SeqSet)
		uidRange.AddRange(sinceUID+1, 0)
		criteria.Uid = uidRange
	}

	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search for new messages: %w", err)
	}

	return uids, nil
}

// FetchRawMessage fetches the full RFC 5322 source, flags, and UID for one
// message. The source is returned as raw bytes so the parser owns all MIME
// decoding.
func FetchRawMessage(c *client.Client, uid uint32) (*RawMessage, error) {
	if c == nil {
		return nil, fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	// BODY.PEEK[] so fetching does not set \Seen; the seen flag is only set
	// after the store transaction commits.
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{
		imap.FetchUid,
		imap.FetchFlags,
		section.FetchItem(),
	}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	msg := <-messages
	fetchErr := <-done

	if fetchErr != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", uid, fetchErr)
	}
	if msg == nil {
		return nil, fmt.Errorf("server did not return message %d", uid)
	}

	bodyReader := msg.GetBody(section)
	if bodyReader == nil {
		return nil, fmt.Errorf("server returned no body for message %d", uid)
	}

	source, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to read message %d body: %w", uid, err)
	}

	return &RawMessage{
		UID:    msg.Uid,
		Flags:  msg.Flags,
		Source: source,
	}, nil
}

// AddSeenFlag marks the remote copy of a message as seen.
func AddSeenFlag(c *client.Client, uid uint32) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := c.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("failed to mark message %d seen: %w", uid, err)
	}

	return nil
}
