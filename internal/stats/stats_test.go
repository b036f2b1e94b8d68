package stats

import "testing"

func TestSnapshotNowReflectsIncrements(t *testing.T) {
	before := SnapshotNow().Counters.RoomsCreated
	IncRoomCreated()
	after := SnapshotNow().Counters.RoomsCreated

	if after != before+1 {
		t.Fatalf("expected RoomsCreated to increment by 1, went from %d to %d", before, after)
	}
}

func TestIncMessageRXTracksByType(t *testing.T) {
	before := SnapshotNow().Messages.RxByType["text"]
	IncMessageRX("text")
	after := SnapshotNow().Messages.RxByType["text"]

	if after != before+1 {
		t.Fatalf("expected text RX count to increment by 1, went from %d to %d", before, after)
	}
}
