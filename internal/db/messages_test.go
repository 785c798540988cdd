package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldmind/zenmail/internal/db"
	"github.com/coldmind/zenmail/internal/models"
	"github.com/coldmind/zenmail/internal/testutil"
)

func newTestMessage(messageID, threadID string) *models.Message {
	now := time.Now()
	return &models.Message{
		UID:       100,
		MessageID: messageID,
		ThreadID:  threadID,
		From:      "alice@example.com",
		To:        []string{"bot@example.com"},
		Subject:   "Test Subject",
		TextBody:  "Hello there.",
		SentAt:    &now,
		Seen:      true,
	}
}

func TestInsertAndGetMessage(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	msg := newTestMessage("<msg-1@example.com>", "<msg-1@example.com>")
	msg.InReplyTo = "<root@example.com>"
	msg.References = []string{"<root@example.com>", "<mid@example.com>"}

	id, err := db.InsertMessage(ctx, pool, msg, nil)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))
	assert.Equal(t, id, msg.ID)

	retrieved, err := db.GetMessageByID(ctx, pool, "<msg-1@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", retrieved.From)
	assert.Equal(t, []string{"bot@example.com"}, retrieved.To)
	assert.Equal(t, "<root@example.com>", retrieved.InReplyTo)
	assert.Equal(t, []string{"<root@example.com>", "<mid@example.com>"}, retrieved.References)
	assert.True(t, retrieved.Seen)
	assert.False(t, retrieved.Processed)
}

func TestInsertMessageDuplicate(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	first := newTestMessage("<dup@example.com>", "<dup@example.com>")
	_, err := db.InsertMessage(ctx, pool, first, nil)
	require.NoError(t, err)

	second := newTestMessage("<dup@example.com>", "<dup@example.com>")
	second.Subject = "Changed Subject"
	_, err = db.InsertMessage(ctx, pool, second, nil)
	assert.ErrorIs(t, err, db.ErrDuplicateMessage)

	// The original row is untouched.
	retrieved, err := db.GetMessageByID(ctx, pool, "<dup@example.com>")
	require.NoError(t, err)
	assert.Equal(t, "Test Subject", retrieved.Subject)
}

func TestInsertMessageWithAttachments(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	msg := newTestMessage("<att@example.com>", "<att@example.com>")
	attachments := []models.Attachment{
		{Filename: "report.pdf", ContentType: "application/pdf", SizeBytes: 4, Content: []byte("%PDF")},
		{Filename: "notes.txt", ContentType: "text/plain", SizeBytes: 5, Content: []byte("notes")},
	}

	id, err := db.InsertMessage(ctx, pool, msg, attachments)
	require.NoError(t, err)

	stored, err := db.GetAttachmentsForMessage(ctx, pool, id)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "report.pdf", stored[0].Filename)
	assert.Equal(t, []byte("%PDF"), stored[0].Content)
	assert.Equal(t, id, stored[0].EmailID)
	assert.Equal(t, "notes.txt", stored[1].Filename)
}

func TestInsertDuplicateLeavesNoAttachments(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	first := newTestMessage("<att-dup@example.com>", "<att-dup@example.com>")
	id, err := db.InsertMessage(ctx, pool, first, []models.Attachment{
		{Filename: "a.txt", ContentType: "text/plain", SizeBytes: 1, Content: []byte("a")},
	})
	require.NoError(t, err)

	second := newTestMessage("<att-dup@example.com>", "<att-dup@example.com>")
	_, err = db.InsertMessage(ctx, pool, second, []models.Attachment{
		{Filename: "b.txt", ContentType: "text/plain", SizeBytes: 1, Content: []byte("b")},
	})
	assert.ErrorIs(t, err, db.ErrDuplicateMessage)

	stored, err := db.GetAttachmentsForMessage(ctx, pool, id)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "a.txt", stored[0].Filename)
}

func TestInsertMessageAttachmentFailureRollsBack(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	msg := newTestMessage("<att-fail@example.com>", "<att-fail@example.com>")
	attachments := []models.Attachment{
		{Filename: "good.txt", ContentType: "text/plain", SizeBytes: 2, Content: []byte("ok")},
		// Violates the size check, failing the transaction after the message
		// row and the first attachment were written.
		{Filename: "bad.txt", ContentType: "text/plain", SizeBytes: -1, Content: []byte("no")},
	}

	_, err := db.InsertMessage(ctx, pool, msg, attachments)
	require.Error(t, err)
	assert.False(t, errors.Is(err, db.ErrDuplicateMessage))

	// Nothing from the failed unit is visible: no message row, no attachments.
	_, err = db.GetMessageByID(ctx, pool, "<att-fail@example.com>")
	assert.ErrorIs(t, err, db.ErrMessageNotFound)

	// The Message-ID is free again, so a corrected retry succeeds.
	retry := newTestMessage("<att-fail@example.com>", "<att-fail@example.com>")
	_, err = db.InsertMessage(ctx, pool, retry, []models.Attachment{
		{Filename: "good.txt", ContentType: "text/plain", SizeBytes: 2, Content: []byte("ok")},
	})
	require.NoError(t, err)
}

func TestGetMessageByIDNotFound(t *testing.T) {
	pool := testutil.NewTestDB(t)

	_, err := db.GetMessageByID(context.Background(), pool, "<missing@example.com>")
	assert.True(t, errors.Is(err, db.ErrMessageNotFound))
}

func TestMarkSeenAndProcessed(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	msg := newTestMessage("<flags@example.com>", "<flags@example.com>")
	msg.Seen = false
	_, err := db.InsertMessage(ctx, pool, msg, nil)
	require.NoError(t, err)

	changed, err := db.MarkSeen(ctx, pool, "<flags@example.com>")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.MarkProcessed(ctx, pool, "<flags@example.com>")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.MarkSeen(ctx, pool, "<nope@example.com>")
	require.NoError(t, err)
	assert.False(t, changed)

	retrieved, err := db.GetMessageByID(ctx, pool, "<flags@example.com>")
	require.NoError(t, err)
	assert.True(t, retrieved.Seen)
	assert.True(t, retrieved.Processed)
}

func TestMarkDeliveredOnlyTouchesOutbound(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	inbound := newTestMessage("<in@example.com>", "<in@example.com>")
	_, err := db.InsertMessage(ctx, pool, inbound, nil)
	require.NoError(t, err)

	outbound := newTestMessage("<out@example.com>", "<in@example.com>")
	outbound.Outbound = true
	_, err = db.InsertMessage(ctx, pool, outbound, nil)
	require.NoError(t, err)

	require.NoError(t, db.MarkDelivered(ctx, pool, "<out@example.com>", true))
	require.NoError(t, db.MarkDelivered(ctx, pool, "<in@example.com>", true))

	retrieved, err := db.GetMessageByID(ctx, pool, "<out@example.com>")
	require.NoError(t, err)
	assert.True(t, retrieved.Delivered)

	retrieved, err = db.GetMessageByID(ctx, pool, "<in@example.com>")
	require.NoError(t, err)
	assert.False(t, retrieved.Delivered)
}

func TestGetThreadOrdersOldestFirst(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()

	threadID := "<root@example.com>"
	base := time.Now().Add(-time.Hour)

	inserts := []struct {
		messageID string
		offset    time.Duration
	}{
		{"<third@example.com>", 30 * time.Minute},
		{"<first@example.com>", 10 * time.Minute},
		{"<second@example.com>", 20 * time.Minute},
	}
	for _, in := range inserts {
		msg := newTestMessage(in.messageID, threadID)
		sentAt := base.Add(in.offset)
		msg.SentAt = &sentAt
		_, err := db.InsertMessage(ctx, pool, msg, nil)
		require.NoError(t, err)
	}

	// A message in another thread must not appear.
	other := newTestMessage("<elsewhere@example.com>", "<other@example.com>")
	_, err := db.InsertMessage(ctx, pool, other, nil)
	require.NoError(t, err)

	thread, err := db.GetThread(ctx, pool, threadID)
	require.NoError(t, err)
	require.Len(t, thread, 3)
	assert.Equal(t, "<first@example.com>", thread[0].MessageID)
	assert.Equal(t, "<second@example.com>", thread[1].MessageID)
	assert.Equal(t, "<third@example.com>", thread[2].MessageID)
}
