package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"testing"

	"sealedchat/internal/store"
)

func mustPayload(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return raw
}

func sampleMessagePayload(attachmentID *string) messageSendPayload {
	return messageSendPayload{
		Ciphertext:   base64.StdEncoding.EncodeToString([]byte("ciphertext-bytes")),
		Nonce:        base64.StdEncoding.EncodeToString(make([]byte, 12)),
		Tag:          base64.StdEncoding.EncodeToString(make([]byte, 16)),
		MsgType:      string(store.MsgText),
		AttachmentID: attachmentID,
	}
}

func TestHandleMessageSend_PersistsAndBroadcastsToOtherParticipant(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	roomID, hostID, guestID := rig.acceptedRoomWithGuest(t)

	host := rig.newSession(roomID, hostID, "host")
	guestConn := rig.newSession(roomID, guestID, "guest").conn

	host.handleMessageSend(ctx, mustPayload(t, sampleMessagePayload(nil)))

	messages, err := rig.store.Messages.GetRoomMessages(ctx, roomID)
	if err != nil {
		t.Fatalf("GetRoomMessages: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 persisted message, got %d", len(messages))
	}

	frames := drainFrames(guestConn)
	found := false
	for _, f := range frames {
		if f.Type == "message" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected guest to receive a message frame, got %+v", frames)
	}
}

func TestHandleMessageSend_RejectsSendToUnavailableRoom(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	roomID, hostID, _ := rig.acceptedRoomWithGuest(t)

	if err := rig.broker.lifecycle.DestroyRoom(ctx, roomID); err != nil {
		t.Fatalf("DestroyRoom: %v", err)
	}

	host := rig.newSession(roomID, hostID, "host")
	host.handleMessageSend(ctx, mustPayload(t, sampleMessagePayload(nil)))

	messages, err := rig.store.Messages.GetRoomMessages(ctx, roomID)
	if err != nil {
		t.Fatalf("GetRoomMessages: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("expected no message persisted against a closed room, got %d", len(messages))
	}

	frames := drainFrames(host.conn)
	if len(frames) != 1 || frames[0].Type != "room_closed" {
		t.Fatalf("expected a single room_closed frame, got %+v", frames)
	}
}

func TestHandleMessageSend_UnconfirmedAttachmentIsNotLinked(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	roomID, hostID, _ := rig.acceptedRoomWithGuest(t)

	att, err := rig.store.Attachments.ReserveAttachment(ctx, roomID, "photo.png", "image/png", 1024)
	if err != nil {
		t.Fatalf("ReserveAttachment: %v", err)
	}

	host := rig.newSession(roomID, hostID, "host")
	host.handleMessageSend(ctx, mustPayload(t, sampleMessagePayload(&att.ID)))

	reloaded, err := rig.store.Attachments.GetAttachment(ctx, att.ID)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if reloaded.Available || reloaded.MessageID != nil {
		t.Fatalf("expected an unconfirmed attachment to stay unlinked, got available=%v message_id=%v",
			reloaded.Available, reloaded.MessageID)
	}
}

func TestHandleMessageSend_ConfirmedAttachmentGetsLinked(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	roomID, hostID, _ := rig.acceptedRoomWithGuest(t)

	att, err := rig.store.Attachments.ReserveAttachment(ctx, roomID, "photo.png", "image/png", 1024)
	if err != nil {
		t.Fatalf("ReserveAttachment: %v", err)
	}
	if err := rig.store.Attachments.MarkAvailable(ctx, att.ID); err != nil {
		t.Fatalf("MarkAvailable: %v", err)
	}

	host := rig.newSession(roomID, hostID, "host")
	host.handleMessageSend(ctx, mustPayload(t, sampleMessagePayload(&att.ID)))

	reloaded, err := rig.store.Attachments.GetAttachment(ctx, att.ID)
	if err != nil {
		t.Fatalf("GetAttachment: %v", err)
	}
	if reloaded.MessageID == nil {
		t.Fatal("expected a confirmed attachment referenced by message_send to be linked")
	}
}

func TestHandleVerifyParticipant_RejectionDestroysRoom(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	roomID, hostID, guestID := rig.acceptedRoomWithGuest(t)

	host := rig.newSession(roomID, hostID, "host")
	host.handleVerifyParticipant(ctx, mustPayload(t, verifyParticipantPayload{
		TargetParticipantID: guestID,
		Accepted:            false,
		VerifierName:        "Host",
	}))

	room, err := rig.store.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if room.Status != store.StatusClosed {
		t.Fatalf("expected room closed after rejection, got status %q", room.Status)
	}

	frames := drainFrames(host.conn)
	var sawRejected, sawClosed bool
	for _, f := range frames {
		switch f.Type {
		case "participant_rejected":
			sawRejected = true
		case "room_closed":
			sawClosed = true
		}
	}
	if !sawRejected || !sawClosed {
		t.Fatalf("expected participant_rejected and room_closed frames, got %+v", frames)
	}
}

func TestHandleDestroyRoom_ClosesRoomAndBroadcasts(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()
	roomID, hostID, _ := rig.acceptedRoomWithGuest(t)

	host := rig.newSession(roomID, hostID, "host")
	host.handleDestroyRoom(ctx)

	room, err := rig.store.Rooms.GetRoom(ctx, roomID)
	if err != nil {
		t.Fatalf("GetRoom: %v", err)
	}
	if room.Status != store.StatusClosed {
		t.Fatalf("expected room closed, got status %q", room.Status)
	}

	frames := drainFrames(host.conn)
	if len(frames) != 1 || frames[0].Type != "room_closed" {
		t.Fatalf("expected a single room_closed frame, got %+v", frames)
	}
}
