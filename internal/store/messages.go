package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"sealedchat/internal/apperr"
)

type MessageStore struct {
	db *pgxpool.Pool
}

// CreateMessage inserts a sealed message body. ct, nonce, and tag are the
// already-encrypted components produced by cryptoutil.EncryptMessage.
func (s *MessageStore) CreateMessage(ctx context.Context, roomID string, participantID int64, ct, nonce, tag []byte, msgType MessageType, ipAddress *string) (*Message, error) {
	const query = `
		INSERT INTO messages (room_id, participant_id, created_at, body_ct, nonce, tag, msg_type, ip_address)
		VALUES ($1, $2, now(), $3, $4, $5, $6, $7)
		RETURNING id, room_id, participant_id, created_at, body_ct, nonce, tag, msg_type, ip_address
	`
	var m Message
	err := s.db.QueryRow(ctx, query, roomID, participantID, ct, nonce, tag, msgType, ipAddress).Scan(
		&m.ID, &m.RoomID, &m.ParticipantID, &m.CreatedAt, &m.BodyCT, &m.Nonce, &m.Tag, &m.MsgType, &m.IPAddress,
	)
	if err != nil {
		return nil, apperr.Storage("failed to create message: %v", err)
	}
	return &m, nil
}

// GetRoomMessages returns every message for a room in send order, for
// archival. Not paginated: archival reads a whole (capacity-2, short-lived)
// room's history in one pass.
func (s *MessageStore) GetRoomMessages(ctx context.Context, roomID string) ([]*Message, error) {
	const query = `
		SELECT id, room_id, participant_id, created_at, body_ct, nonce, tag, msg_type, ip_address
		FROM messages WHERE room_id = $1 ORDER BY id ASC
	`
	rows, err := s.db.Query(ctx, query, roomID)
	if err != nil {
		return nil, apperr.Storage("failed to list messages for room %s: %v", roomID, err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.RoomID, &m.ParticipantID, &m.CreatedAt, &m.BodyCT, &m.Nonce, &m.Tag, &m.MsgType, &m.IPAddress); err != nil {
			return nil, apperr.Storage("failed to scan message: %v", err)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *MessageStore) CountRoomMessages(ctx context.Context, roomID string) (int, error) {
	const query = `SELECT count(*) FROM messages WHERE room_id = $1`
	var n int
	if err := s.db.QueryRow(ctx, query, roomID).Scan(&n); err != nil {
		return 0, apperr.Storage("failed to count messages for room %s: %v", roomID, err)
	}
	return n, nil
}
