package store

import (
	"context"
	"errors"
	"path"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sealedchat/internal/apperr"
)

type AttachmentStore struct {
	db *pgxpool.Pool
}

const attachmentColumns = "id, room_id, object_key, filename, mime_type, size_bytes, available, message_id"

func scanAttachment(row pgx.Row, a *Attachment) error {
	return row.Scan(&a.ID, &a.RoomID, &a.ObjectKey, &a.Filename, &a.MimeType, &a.SizeBytes, &a.Available, &a.MessageID)
}

// ReserveAttachment inserts a not-yet-uploaded attachment row. The object
// key embeds the room, the generated attachment id, and the client's
// filename so a presigned upload URL round-trips back to a human-readable
// name in blob storage.
func (s *AttachmentStore) ReserveAttachment(ctx context.Context, roomID, filename, mimeType string, sizeBytes int64) (*Attachment, error) {
	id := uuid.NewString()
	objectKey := roomID + "/" + id + "_" + path.Base(filename)
	const query = `
		INSERT INTO attachments (id, room_id, object_key, filename, mime_type, size_bytes, available)
		VALUES ($1, $2, $3, $4, $5, $6, false)
		RETURNING ` + attachmentColumns
	var a Attachment
	row := s.db.QueryRow(ctx, query, id, roomID, objectKey, filename, mimeType, sizeBytes)
	if err := scanAttachment(row, &a); err != nil {
		return nil, apperr.Storage("failed to reserve attachment: %v", err)
	}
	return &a, nil
}

// MarkAvailable flips a reserved attachment to available once the client
// confirms the object landed in blob storage and the caller has verified
// that with blob.ObjectExists. No message is associated yet: that happens
// later, when a message_send frame references this attachment by id.
func (s *AttachmentStore) MarkAvailable(ctx context.Context, id string) error {
	const query = `UPDATE attachments SET available = true WHERE id = $1 AND available = false`
	tag, err := s.db.Exec(ctx, query, id)
	if err != nil {
		return apperr.Storage("failed to mark attachment %s available: %v", id, err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := s.GetAttachment(ctx, id)
		if getErr == nil && existing != nil && existing.Available {
			return apperr.StateConflict("attachment %s already completed", id)
		}
		return apperr.NotFound("attachment %s not found", id)
	}
	return nil
}

// LinkAttachment associates an already-available attachment with the
// message that announced it. It refuses to link an attachment that was
// never confirmed uploaded, so a client cannot reference a merely-reserved
// attachment_id and have the server treat it as real.
func (s *AttachmentStore) LinkAttachment(ctx context.Context, id string, messageID int64) error {
	const query = `UPDATE attachments SET message_id = $2 WHERE id = $1 AND available = true AND message_id IS NULL`
	tag, err := s.db.Exec(ctx, query, id, messageID)
	if err != nil {
		return apperr.Storage("failed to link attachment %s: %v", id, err)
	}
	if tag.RowsAffected() == 0 {
		existing, getErr := s.GetAttachment(ctx, id)
		if getErr == nil && existing != nil && !existing.Available {
			return apperr.StateConflict("attachment %s was never confirmed uploaded", id)
		}
		return apperr.NotFound("attachment %s not found or already linked", id)
	}
	return nil
}

func (s *AttachmentStore) GetAttachment(ctx context.Context, id string) (*Attachment, error) {
	const query = `SELECT ` + attachmentColumns + ` FROM attachments WHERE id = $1`
	var a Attachment
	err := scanAttachment(s.db.QueryRow(ctx, query, id), &a)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Storage("failed to get attachment %s: %v", id, err)
	}
	return &a, nil
}

func (s *AttachmentStore) GetRoomAttachments(ctx context.Context, roomID string) ([]*Attachment, error) {
	const query = `SELECT ` + attachmentColumns + ` FROM attachments WHERE room_id = $1 AND available = true`
	rows, err := s.db.Query(ctx, query, roomID)
	if err != nil {
		return nil, apperr.Storage("failed to list attachments for room %s: %v", roomID, err)
	}
	defer rows.Close()

	var out []*Attachment
	for rows.Next() {
		var a Attachment
		if err := scanAttachment(rows, &a); err != nil {
			return nil, apperr.Storage("failed to scan attachment: %v", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}
