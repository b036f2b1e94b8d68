package lifecycle

import (
	"context"
	"testing"

	"sealedchat/internal/apperr"
	"sealedchat/internal/store"
)

func TestJoinRoom_LockedRoomFallsThroughTo409(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	roomID := acceptedRoom(t, m, "host-device")

	if _, err := m.JoinRoom(ctx, roomID, "guest-device", nil); err != nil {
		t.Fatalf("first guest join: %v", err)
	}
	if room, err := st.Rooms.GetRoom(ctx, roomID); err != nil || room == nil || room.Status != store.StatusLocked {
		t.Fatalf("expected the guest join to lock the room: room=%+v err=%v", room, err)
	}

	_, err := m.JoinRoom(ctx, roomID, "second-guest-device", nil)
	if err == nil {
		t.Fatal("expected locked, full room to reject a third device")
	}
	if got := apperr.StatusCode(err); got != 409 {
		t.Fatalf("expected 409 for a locked/full room, got %d (%v)", got, err)
	}
}

func TestJoinRoom_SameDeviceReconnectsInsteadOfErroring(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	roomID := acceptedRoom(t, m, "host-device")

	first, err := m.JoinRoom(ctx, roomID, "guest-device", nil)
	if err != nil {
		t.Fatalf("first join: %v", err)
	}

	second, err := m.JoinRoom(ctx, roomID, "guest-device", nil)
	if err != nil {
		t.Fatalf("reconnect join: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected reconnect to return the same participant, got %d want %d", second.ID, first.ID)
	}
}

func TestJoinRoom_NextJoinerBecomesHostAfterHostDisconnects(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	room, err := m.CreateRoom(ctx, "")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	host, _, err := m.AcceptRoom(ctx, room.RoomID, "host-device", nil)
	if err != nil {
		t.Fatalf("AcceptRoom: %v", err)
	}
	if err := m.Disconnect(ctx, host.ID); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}

	next, err := m.JoinRoom(ctx, room.RoomID, "new-device", nil)
	if err != nil {
		t.Fatalf("JoinRoom after host disconnect: %v", err)
	}
	if next.Role != store.RoleHost {
		t.Fatalf("expected next joiner to become host, got role %q", next.Role)
	}
}

func TestJoinRoom_SecondGuestIsCappedAtCapacity(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	roomID := acceptedRoom(t, m, "host-device")

	if _, err := m.JoinRoom(ctx, roomID, "guest-device", nil); err != nil {
		t.Fatalf("first guest join: %v", err)
	}

	_, err := m.JoinRoom(ctx, roomID, "another-guest-device", nil)
	if err == nil {
		t.Fatal("expected a third distinct device to be rejected once the room is at capacity")
	}
	if got := apperr.StatusCode(err); got != 409 {
		t.Fatalf("expected 409 at capacity, got %d (%v)", got, err)
	}
}

func TestJoinRoom_ExpiredRoomReturns410(t *testing.T) {
	m, st := newTestManager(t)
	ctx := context.Background()
	roomID := acceptedRoom(t, m, "host-device")

	const expireStmt = `UPDATE rooms SET expires_at = now() - interval '1 hour' WHERE room_id = $1`
	if _, err := st.Pool().Exec(ctx, expireStmt, roomID); err != nil {
		t.Fatalf("failed to backdate expires_at: %v", err)
	}

	_, err := m.JoinRoom(ctx, roomID, "guest-device", nil)
	if err == nil {
		t.Fatal("expected expired room join to fail")
	}
	if got := apperr.StatusCode(err); got != 410 {
		t.Fatalf("expected 410 Gone for an expired room, got %d (%v)", got, err)
	}
}
