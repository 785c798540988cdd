package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/coldmind/zenmail/internal/models"
)

// ErrMessageNotFound is returned when a requested message cannot be found.
var ErrMessageNotFound = errors.New("message not found")

// ErrDuplicateMessage is returned by InsertMessage when a message with the
// same Message-ID is already stored. Callers treat this as a successful
// no-op: re-ingesting after a crash or a re-delivery must not fail the cycle.
var ErrDuplicateMessage = errors.New("message already stored")

const messageColumns = `
	id,
	uid,
	message_id,
	in_reply_to,
	refs,
	thread_id,
	from_address,
	to_addresses,
	cc_addresses,
	subject,
	body_text,
	body_html,
	sent_at,
	flags,
	seen,
	processed,
	outbound,
	delivered`

// InsertMessage stores a message and all its attachments as one transaction.
// Either everything becomes visible or nothing does. A Message-ID that is
// already present returns ErrDuplicateMessage without touching any row.
func InsertMessage(ctx context.Context, pool *pgxpool.Pool, message *models.Message, attachments []models.Attachment) (int64, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (
			uid,
			message_id,
			in_reply_to,
			refs,
			thread_id,
			from_address,
			to_addresses,
			cc_addresses,
			subject,
			body_text,
			body_html,
			sent_at,
			flags,
			seen,
			processed,
			outbound,
			delivered
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (message_id) DO NOTHING
		RETURNING id
	`,
		int64(message.UID),
		message.MessageID,
		message.InReplyTo,
		joinReferences(message.References),
		message.ThreadID,
		message.From,
		message.To,
		message.CC,
		message.Subject,
		message.TextBody,
		message.HTMLBody,
		message.SentAt,
		message.Flags,
		message.Seen,
		message.Processed,
		message.Outbound,
		message.Delivered,
	).Scan(&id)

	if errors.Is(err, pgx.ErrNoRows) {
		// ON CONFLICT DO NOTHING returns no row when the message_id exists.
		return 0, ErrDuplicateMessage
	}

	if err != nil {
		return 0, fmt.Errorf("failed to insert message: %w", err)
	}

	for i := range attachments {
		att := &attachments[i]
		err = tx.QueryRow(ctx, `
			INSERT INTO attachments (email_id, filename, content_type, size_bytes, content)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`, id, att.Filename, att.ContentType, att.SizeBytes, att.Content).Scan(&att.ID)

		if err != nil {
			return 0, fmt.Errorf("failed to insert attachment %q: %w", att.Filename, err)
		}
		att.EmailID = id
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit message: %w", err)
	}

	message.ID = id
	return id, nil
}

// MarkSeen flips the seen flag for a message. Returns whether a row changed.
func MarkSeen(ctx context.Context, pool *pgxpool.Pool, messageID string) (bool, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET seen = TRUE WHERE message_id = $1
	`, messageID)

	if err != nil {
		return false, fmt.Errorf("failed to mark message seen: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkProcessed records that the reply pipeline has handled a message.
func MarkProcessed(ctx context.Context, pool *pgxpool.Pool, messageID string) (bool, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE messages SET processed = TRUE WHERE message_id = $1
	`, messageID)

	if err != nil {
		return false, fmt.Errorf("failed to mark message processed: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// MarkDelivered records a transport outcome for an outbound message.
// Undelivered messages stay in the store so the conversation history is
// complete for future turns; delivery can be retried out of band.
func MarkDelivered(ctx context.Context, pool *pgxpool.Pool, messageID string, delivered bool) error {
	_, err := pool.Exec(ctx, `
		UPDATE messages SET delivered = $2 WHERE message_id = $1 AND outbound
	`, messageID, delivered)

	if err != nil {
		return fmt.Errorf("failed to mark message delivery: %w", err)
	}

	return nil
}

// GetMessageByID returns a message by its Message-ID header.
func GetMessageByID(ctx context.Context, pool *pgxpool.Pool, messageID string) (*models.Message, error) {
	row := pool.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE message_id = $1
	`, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMessageNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// GetThread returns all messages sharing a thread ID, oldest first.
func GetThread(ctx context.Context, pool *pgxpool.Pool, threadID string) ([]*models.Message, error) {
	rows, err := pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE thread_id = $1
		ORDER BY sent_at ASC NULLS LAST, id ASC
	`, threadID)

	if err != nil {
		return nil, fmt.Errorf("failed to get thread: %w", err)
	}
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating thread: %w", err)
	}

	return messages, nil
}

// GetAttachmentsForMessage returns all attachments owned by a stored message,
// in insertion order. Content bytes are included.
func GetAttachmentsForMessage(ctx context.Context, pool *pgxpool.Pool, emailID int64) ([]*models.Attachment, error) {
	rows, err := pool.Query(ctx, `
		SELECT id, email_id, filename, content_type, size_bytes, content
		FROM attachments
		WHERE email_id = $1
		ORDER BY id ASC
	`, emailID)

	if err != nil {
		return nil, fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	var attachments []*models.Attachment
	for rows.Next() {
		var att models.Attachment
		if err := rows.Scan(
			&att.ID,
			&att.EmailID,
			&att.Filename,
			&att.ContentType,
			&att.SizeBytes,
			&att.Content,
		); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, &att)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	return attachments, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var uid int64
	var refs string

	err := row.Scan(
		&msg.ID,
		&uid,
		&msg.MessageID,
		&msg.InReplyTo,
		&refs,
		&msg.ThreadID,
		&msg.From,
		&msg.To,
		&msg.CC,
		&msg.Subject,
		&msg.TextBody,
		&msg.HTMLBody,
		&msg.SentAt,
		&msg.Flags,
		&msg.Seen,
		&msg.Processed,
		&msg.Outbound,
		&msg.Delivered,
	)
	if err != nil {
		return nil, err
	}

	msg.UID = uint32(uid)
	msg.References = splitReferences(refs)
	return &msg, nil
}

// References are stored as a single space-separated column, matching the
// References header wire format. Order is preserved: oldest ancestor first.
func joinReferences(refs []string) string {
	return strings.Join(refs, " ")
}

func splitReferences(refs string) []string {
	fields := strings.Fields(refs)
	if len(fields) == 0 {
		return nil
	}
	return fields
}
