package broker

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"go.uber.org/zap"

	"sealedchat/internal/cryptoutil"
	"sealedchat/internal/lifecycle"
	"sealedchat/internal/registry"
	"sealedchat/internal/store"
)

// testRig wires a Broker against a real Postgres instance named by
// TEST_DATABASE_URL, the same way the lifecycle package's integration
// tests do. Frame handlers touch the database and the registry directly,
// so there is no seam for testing them against a fake store.
type testRig struct {
	broker *Broker
	store  *store.Store
	reg    *registry.Registry
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping broker integration test")
	}

	ctx := context.Background()
	st, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(st.Close)

	const truncate = `TRUNCATE rooms, participants, messages, attachments, room_keys RESTART IDENTITY CASCADE`
	if _, err := st.Pool().Exec(ctx, truncate); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	t.Cleanup(func() {
		st.Pool().Exec(context.Background(), truncate)
	})

	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	kernel, err := cryptoutil.NewKernel(masterKey)
	if err != nil {
		t.Fatalf("cryptoutil.NewKernel: %v", err)
	}

	lc := lifecycle.New(st, kernel)
	reg := registry.New()
	b := New(st, lc, reg, nil, nil, zap.NewNop())
	return &testRig{broker: b, store: st, reg: reg}
}

// acceptedRoomWithGuest creates a room, accepts it with a host, then joins
// a guest, returning the room id plus both participants.
func (rig *testRig) acceptedRoomWithGuest(t *testing.T) (roomID string, hostID, guestID int64) {
	t.Helper()
	ctx := context.Background()

	room, err := rig.broker.lifecycle.CreateRoom(ctx, "")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	host, _, err := rig.broker.lifecycle.AcceptRoom(ctx, room.RoomID, "host-device", nil)
	if err != nil {
		t.Fatalf("AcceptRoom: %v", err)
	}
	guest, err := rig.broker.lifecycle.JoinRoom(ctx, room.RoomID, "guest-device", nil)
	if err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	return room.RoomID, host.ID, guest.ID
}

// newSession registers participantID in the registry and returns a session
// wired to it, with the role the DB recorded.
func (rig *testRig) newSession(roomID string, participantID int64, role string) *session {
	conn := rig.reg.Add(participantID, roomID)
	return &session{
		broker:        rig.broker,
		conn:          conn,
		roomID:        roomID,
		participantID: participantID,
		role:          role,
	}
}

// drainFrames collects whatever frames are currently queued on a connection's
// Send channel without blocking.
func drainFrames(conn *registry.Connection) []Frame {
	var out []Frame
	for {
		select {
		case payload, ok := <-conn.Send:
			if !ok {
				return out
			}
			var f Frame
			if err := json.Unmarshal(payload, &f); err == nil {
				out = append(out, f)
			}
		default:
			return out
		}
	}
}
