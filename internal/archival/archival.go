// Package archival runs the periodic sweep that expires overdue rooms,
// flushes their message history to object storage, and reaps participants
// who went quiet without a clean disconnect. The loop shape (ticker +
// context cancellation) mirrors the teacher pack's stale-client reaper.
package archival

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"sealedchat/internal/blob"
	"sealedchat/internal/cryptoutil"
	"sealedchat/internal/lifecycle"
	"sealedchat/internal/registry"
	"sealedchat/internal/store"
)

type Worker struct {
	store    *store.Store
	lifecyle *lifecycle.Manager
	blob     *blob.Store
	registry *registry.Registry
	log      *zap.Logger

	interval time.Duration
}

func New(st *store.Store, lc *lifecycle.Manager, bs *blob.Store, reg *registry.Registry, log *zap.Logger, interval time.Duration) *Worker {
	return &Worker{store: st, lifecyle: lc, blob: bs, registry: reg, log: log, interval: interval}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *Worker) sweep(ctx context.Context) {
	if err := w.reapStaleParticipants(ctx); err != nil {
		w.log.Error("reap stale participants failed", zap.Error(err))
	}

	closed, err := w.lifecyle.ExpireRooms(ctx, time.Now())
	if err != nil {
		w.log.Error("expire rooms failed", zap.Error(err))
	}
	for _, roomID := range closed {
		w.log.Info("room expired", zap.String("room_id", roomID))
	}

	if err := w.archiveClosedRooms(ctx); err != nil {
		w.log.Error("archive closed rooms failed", zap.Error(err))
	}
}

// reapStaleParticipants removes participants with no observed activity
// within store.InactivityTimeout. The broker touches a liveness timestamp
// on every inbound frame (including ping); this sweep is the backstop for
// sockets that vanish without a close frame. Reaping goes through
// lifecycle.Disconnect so it shares the graceful-disconnect path (row
// delete + room unlock).
func (w *Worker) reapStaleParticipants(ctx context.Context) error {
	cutoff := time.Now().Add(-store.InactivityTimeout)
	stale, err := w.store.Participants.GetStaleParticipants(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, p := range stale {
		if err := w.lifecyle.Disconnect(ctx, p.ID); err != nil {
			w.log.Error("failed to reap stale participant",
				zap.Int64("participant_id", p.ID), zap.String("room_id", p.RoomID), zap.Error(err))
			continue
		}
		w.registry.ForceDisconnect(p.ID)
		w.log.Info("reaped stale participant", zap.Int64("participant_id", p.ID), zap.String("room_id", p.RoomID))
	}
	return nil
}

type archiveDocument struct {
	Room             archiveRoomInfo  `json:"room"`
	Participants     []archiveParty   `json:"participants"`
	Messages         []archiveMessage `json:"messages"`
	ArchivedAt       time.Time        `json:"archived_at"`
	MessageCount     int              `json:"message_count"`
	ParticipantCount int              `json:"participant_count"`
}

type archiveRoomInfo struct {
	RoomID    string     `json:"room_id"`
	CreatedAt time.Time  `json:"created_at"`
	ClosedAt  *time.Time `json:"closed_at"`
}

type archiveParty struct {
	Role        string `json:"role"`
	DisplayName string `json:"display_name,omitempty"`
}

type archiveMessage struct {
	ParticipantRole string    `json:"participant_role"`
	CreatedAt       time.Time `json:"created_at"`
	Body            string    `json:"body"`
	MsgType         string    `json:"msg_type"`
}

// archiveClosedRooms flushes every closed-but-not-archived room's history
// to blob storage, then marks it archived. Messages that fail to decrypt
// are archived with the decryption-failed sentinel rather than aborting
// the whole room's archive.
func (w *Worker) archiveClosedRooms(ctx context.Context) error {
	ids, err := w.store.Rooms.GetClosedUnarchivedRooms(ctx)
	if err != nil {
		return err
	}
	for _, roomID := range ids {
		if err := w.archiveRoom(ctx, roomID); err != nil {
			w.log.Error("failed to archive room", zap.String("room_id", roomID), zap.Error(err))
		}
	}
	return nil
}

func (w *Worker) archiveRoom(ctx context.Context, roomID string) error {
	room, err := w.store.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if room == nil || room.Status != store.StatusClosed {
		return nil
	}

	roomKey, err := w.lifecyle.GetRoomKey(ctx, roomID)
	if err != nil {
		return err
	}

	participants, err := w.store.Participants.GetRoomParticipants(ctx, roomID)
	if err != nil {
		return err
	}
	roleByID := make(map[int64]string, len(participants))
	doc := archiveDocument{
		Room: archiveRoomInfo{RoomID: roomID, CreatedAt: room.CreatedAt, ClosedAt: room.ClosedAt},
	}
	for _, p := range participants {
		roleByID[p.ID] = string(p.Role)
		name := ""
		if p.DisplayName != nil {
			name = *p.DisplayName
		}
		doc.Participants = append(doc.Participants, archiveParty{Role: string(p.Role), DisplayName: name})
	}

	messages, err := w.store.Messages.GetRoomMessages(ctx, roomID)
	if err != nil {
		return err
	}
	for _, m := range messages {
		body, decErr := cryptoutil.DecryptMessageForArchive(roomKey, m.BodyCT, m.Nonce, m.Tag)
		if decErr != nil {
			w.log.Warn("message failed to decrypt during archival",
				zap.String("room_id", roomID), zap.Int64("message_id", m.ID), zap.Error(decErr))
		}
		doc.Messages = append(doc.Messages, archiveMessage{
			ParticipantRole: roleByID[m.ParticipantID],
			CreatedAt:       m.CreatedAt,
			Body:            body,
			MsgType:         string(m.MsgType),
		})
	}

	archivedAt := time.Now()
	doc.ArchivedAt = archivedAt
	doc.MessageCount = len(doc.Messages)
	doc.ParticipantCount = len(doc.Participants)

	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	archiveKey := roomID + "/" + archivedAt.UTC().Format("20060102_150405") + ".json"
	if err := w.blob.PutArchive(ctx, archiveKey, data); err != nil {
		return err
	}

	if _, err := w.store.Rooms.ArchiveRoom(ctx, roomID, archiveKey); err != nil {
		return err
	}
	w.log.Info("room archived", zap.String("room_id", roomID), zap.Int("message_count", len(messages)))
	return nil
}
