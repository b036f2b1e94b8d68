package lifecycle

import (
	"context"
	"os"
	"testing"

	"sealedchat/internal/cryptoutil"
	"sealedchat/internal/store"
)

// newTestManager spins up a Manager against a real Postgres instance named
// by TEST_DATABASE_URL (schema.sql already applied), the same connectivity
// contract cmd/server uses via store.New. Transaction-level behavior like
// the admission row lock can't be exercised against a fake querier, so
// these tests skip rather than mock when no database is configured.
func newTestManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping lifecycle integration test")
	}

	ctx := context.Background()
	st, err := store.New(ctx, dsn)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(st.Close)

	if err := truncateAll(ctx, st); err != nil {
		t.Fatalf("truncateAll: %v", err)
	}
	t.Cleanup(func() { truncateAll(context.Background(), st) })

	masterKey := make([]byte, 32)
	for i := range masterKey {
		masterKey[i] = byte(i)
	}
	kernel, err := cryptoutil.NewKernel(masterKey)
	if err != nil {
		t.Fatalf("cryptoutil.NewKernel: %v", err)
	}

	return New(st, kernel), st
}

func truncateAll(ctx context.Context, st *store.Store) error {
	const stmt = `TRUNCATE rooms, participants, messages, attachments, room_keys RESTART IDENTITY CASCADE`
	_, err := st.Pool().Exec(ctx, stmt)
	return err
}

// acceptedRoom creates and accepts a room with hostDeviceID as its first
// participant, returning the room id.
func acceptedRoom(t *testing.T, m *Manager, hostDeviceID string) string {
	t.Helper()
	ctx := context.Background()
	room, err := m.CreateRoom(ctx, "")
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if _, _, err := m.AcceptRoom(ctx, room.RoomID, hostDeviceID, nil); err != nil {
		t.Fatalf("AcceptRoom: %v", err)
	}
	return room.RoomID
}
