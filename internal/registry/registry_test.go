package registry

import "testing"

func TestAddIsConnectedRemove(t *testing.T) {
	r := New()
	if r.IsConnected(1) {
		t.Fatalf("expected participant 1 to start disconnected")
	}

	conn := r.Add(1, "room-a")
	if !r.IsConnected(1) {
		t.Fatalf("expected participant 1 to be connected after Add")
	}

	r.Remove(1, conn)
	if r.IsConnected(1) {
		t.Fatalf("expected participant 1 to be disconnected after Remove")
	}
}

func TestAddDisplacesPriorConnection(t *testing.T) {
	r := New()
	first := r.Add(1, "room-a")
	second := r.Add(1, "room-a")

	if _, ok := <-first.Send; ok {
		t.Fatalf("expected displaced connection's send channel to be closed")
	}

	// Removing the stale handle must not evict the new one.
	r.Remove(1, first)
	if !r.IsConnected(1) {
		t.Fatalf("expected participant 1 to remain connected via the newer handle")
	}
	r.Remove(1, second)
	if r.IsConnected(1) {
		t.Fatalf("expected participant 1 to be disconnected after removing the current handle")
	}
}

func TestBroadcastSkipsSenderAndOtherRooms(t *testing.T) {
	r := New()
	a := r.Add(1, "room-a")
	b := r.Add(2, "room-a")
	c := r.Add(3, "room-b")

	r.Broadcast("room-a", 1, []byte("hello"))

	select {
	case <-a.Send:
		t.Fatalf("sender should not receive its own broadcast")
	default:
	}

	select {
	case msg := <-b.Send:
		if string(msg) != "hello" {
			t.Fatalf("unexpected payload: %s", msg)
		}
	default:
		t.Fatalf("expected room-a peer to receive the broadcast")
	}

	select {
	case <-c.Send:
		t.Fatalf("participant in a different room should not receive the broadcast")
	default:
	}
}

func TestRoomParticipants(t *testing.T) {
	r := New()
	r.Add(1, "room-a")
	r.Add(2, "room-a")
	r.Add(3, "room-b")

	ids := r.RoomParticipants("room-a")
	if len(ids) != 2 {
		t.Fatalf("expected 2 participants in room-a, got %d", len(ids))
	}
}
