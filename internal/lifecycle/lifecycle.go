// Package lifecycle drives the room state machine end to end: creation,
// acceptance, joining (with the admission race closed under a row lock),
// disconnection, and closure. It is the one place that is allowed to touch
// both internal/store and internal/cryptoutil in the same transaction.
package lifecycle

import (
	"context"
	"time"

	"sealedchat/internal/apperr"
	"sealedchat/internal/cryptoutil"
	"sealedchat/internal/store"
)

// TokenTTL matches RoomTTL: a participant token is valid for as long as the
// room itself can live before expiring.
const TokenTTL = 24 * time.Hour

type Manager struct {
	store  *store.Store
	kernel *cryptoutil.Kernel
}

func New(st *store.Store, kernel *cryptoutil.Kernel) *Manager {
	return &Manager{store: st, kernel: kernel}
}

// CreateRoom inserts a new pending room. preferredID lets the caller pin a
// human-chosen room code; empty generates one.
func (m *Manager) CreateRoom(ctx context.Context, preferredID string) (*store.Room, error) {
	room, err := m.store.Rooms.CreateRoom(ctx, preferredID)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// AcceptRoom transitions pending -> active: it generates the room key,
// wraps it under the master key, persists the wrapped key, and registers
// the host as the room's first participant, all in one transaction so a
// concurrent join can never observe a room with a key but no host, or vice
// versa.
func (m *Manager) AcceptRoom(ctx context.Context, roomID, hostDeviceID string, hostIP *string) (*store.Participant, string, error) {
	roomKey, err := cryptoutil.GenerateRoomKey()
	if err != nil {
		return nil, "", err
	}
	wrapped, err := m.kernel.WrapRoomKey(roomKey)
	if err != nil {
		return nil, "", err
	}

	tx, err := m.store.Pool().Begin(ctx)
	if err != nil {
		return nil, "", apperr.Storage("failed to begin accept transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	locked, err := m.store.Rooms.LockRoomForUpdate(ctx, tx, roomID)
	if err != nil {
		return nil, "", err
	}
	if locked == nil {
		return nil, "", apperr.NotFound("room %s not found", roomID)
	}
	if locked.Status != store.StatusPending {
		return nil, "", apperr.StateConflict("room %s is not pending", roomID)
	}

	now := time.Now()
	accepted, err := m.store.Rooms.AcceptRoomTx(ctx, tx, roomID, now)
	if err != nil {
		return nil, "", err
	}
	if !accepted {
		return nil, "", apperr.StateConflict("room %s is not pending", roomID)
	}

	if err := m.store.RoomKeys.InsertWrappedKey(ctx, tx, roomID, wrapped); err != nil {
		return nil, "", err
	}

	host, err := m.store.Participants.CreateParticipant(ctx, tx, roomID, store.RoleHost, hostDeviceID, hostIP)
	if err != nil {
		return nil, "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", apperr.Storage("failed to commit accept transaction: %v", err)
	}
	return host, roomID, nil
}

// JoinRoom admits a participant to a room that is still accepting joins
// (active or already locked/full — a locked room falls through to the
// capacity check below so it reports 409, not 400). The room row is locked
// for update for the duration of the check-then-insert so a second
// concurrent joiner cannot slip in between the count check and the insert:
// the stronger closure of the admission race, not merely an
// application-level check.
//
// A device that already has a participant row in this room (a reconnect,
// not a second join) gets that participant back instead of hitting the
// room's unique (room_id, device_id) constraint. The first joiner becomes
// host if the room currently has no participants at all — this covers the
// host disconnecting before any guest arrives, in which case the next
// joiner must take over as host rather than join as a second guest.
func (m *Manager) JoinRoom(ctx context.Context, roomID, deviceID string, ip *string) (*store.Participant, error) {
	tx, err := m.store.Pool().Begin(ctx)
	if err != nil {
		return nil, apperr.Storage("failed to begin join transaction: %v", err)
	}
	defer tx.Rollback(ctx)

	room, err := m.store.Rooms.LockRoomForUpdate(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	if room == nil {
		return nil, apperr.NotFound("room %s not found", roomID)
	}
	if room.ExpiresAt != nil && !room.ExpiresAt.After(time.Now()) {
		return nil, apperr.Gone("room %s has expired", roomID)
	}
	if room.Status != store.StatusActive && room.Status != store.StatusLocked {
		return nil, apperr.StateConflict("room %s is not accepting joins (status=%s)", roomID, room.Status)
	}

	existing, err := m.store.Participants.GetParticipantByDeviceTx(ctx, tx, roomID, deviceID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := tx.Commit(ctx); err != nil {
			return nil, apperr.Storage("failed to commit join transaction: %v", err)
		}
		return existing, nil
	}

	count, err := m.store.Participants.CountParticipants(ctx, tx, roomID)
	if err != nil {
		return nil, err
	}
	if count >= store.RoomCapacity {
		return nil, apperr.CapacityExhausted(409, "room %s is full", roomID)
	}

	role := store.RoleGuest
	if count == 0 {
		role = store.RoleHost
	}

	participant, err := m.store.Participants.CreateParticipant(ctx, tx, roomID, role, deviceID, ip)
	if err != nil {
		return nil, err
	}

	if count+1 >= store.RoomCapacity {
		if _, err := m.store.Rooms.LockRoomTx(ctx, tx, roomID); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, apperr.Storage("failed to commit join transaction: %v", err)
	}
	return participant, nil
}

// Disconnect removes a participant's row entirely: there is no soft
// disconnected state, so any later join from the same device is a fresh
// join rather than a resume. If removing the participant drops the room
// below capacity, the room is unlocked so a new guest may join.
func (m *Manager) Disconnect(ctx context.Context, participantID int64) error {
	p, err := m.store.Participants.GetParticipant(ctx, participantID)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	if err := m.store.Participants.RemoveParticipant(ctx, participantID); err != nil {
		return err
	}
	if _, err := m.store.Rooms.UnlockRoom(ctx, p.RoomID); err != nil {
		return err
	}
	return nil
}

// DestroyRoom closes a room immediately (host-initiated destroy, reject,
// or an expiry sweep), making it eligible for archival.
func (m *Manager) DestroyRoom(ctx context.Context, roomID string) error {
	closed, err := m.store.Rooms.CloseRoom(ctx, roomID)
	if err != nil {
		return err
	}
	if !closed {
		return apperr.StateConflict("room %s could not be closed", roomID)
	}
	return nil
}

// GetRoomKey unwraps and returns the room's AEAD key, used by the broker to
// seal/open messages sent over the live connection.
func (m *Manager) GetRoomKey(ctx context.Context, roomID string) ([]byte, error) {
	wrapped, err := m.store.RoomKeys.GetWrappedKey(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if wrapped == nil {
		return nil, apperr.NotFound("room %s has no key yet", roomID)
	}
	return m.kernel.UnwrapRoomKey(wrapped)
}

// ExpireRooms closes every active/locked room past its expiry, called
// periodically by the archival worker.
func (m *Manager) ExpireRooms(ctx context.Context, now time.Time) ([]string, error) {
	ids, err := m.store.Rooms.GetExpiredRooms(ctx, now)
	if err != nil {
		return nil, err
	}
	var closed []string
	for _, id := range ids {
		ok, err := m.store.Rooms.CloseRoom(ctx, id)
		if err != nil {
			return closed, err
		}
		if ok {
			closed = append(closed, id)
		}
	}
	return closed, nil
}
