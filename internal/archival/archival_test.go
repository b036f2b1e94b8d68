package archival

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestArchiveDocumentMarshalsWithoutEmptyDisplayName(t *testing.T) {
	doc := archiveDocument{
		Room: archiveRoomInfo{RoomID: "abcd", CreatedAt: time.Unix(0, 0).UTC()},
		Participants: []archiveParty{
			{Role: "host"},
			{Role: "guest", DisplayName: "Blue Falcon"},
		},
		Messages: []archiveMessage{
			{ParticipantRole: "host", CreatedAt: time.Unix(1, 0).UTC(), Body: "hi", MsgType: "text"},
		},
		ArchivedAt:       time.Unix(2, 0).UTC(),
		MessageCount:     1,
		ParticipantCount: 2,
	}

	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), `"display_name":""`) {
		t.Fatalf("expected an empty display name to be omitted from the JSON, got %s", data)
	}

	var round archiveDocument
	if err := json.Unmarshal(data, &round); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if round.Room.RoomID != "abcd" {
		t.Fatalf("expected room id to round-trip, got %q", round.Room.RoomID)
	}
	if round.Participants[0].DisplayName != "" {
		t.Fatalf("expected empty display name to round-trip empty, got %q", round.Participants[0].DisplayName)
	}
	if len(round.Messages) != 1 || round.Messages[0].Body != "hi" {
		t.Fatalf("unexpected messages after round-trip: %+v", round.Messages)
	}
	if round.MessageCount != 1 || round.ParticipantCount != 2 {
		t.Fatalf("expected counts to round-trip, got message_count=%d participant_count=%d", round.MessageCount, round.ParticipantCount)
	}
}
