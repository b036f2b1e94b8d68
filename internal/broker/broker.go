// Package broker is the real-time duplex endpoint: one gorilla/websocket
// connection per participant, a read pump and a write pump per connection,
// and a frame dispatch table mirroring spec's inbound-frame table. The
// server never inspects message plaintext — every body field it touches is
// already ciphertext, nonce, or tag.
package broker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sealedchat/internal/auth"
	"sealedchat/internal/cryptoutil"
	"sealedchat/internal/lifecycle"
	"sealedchat/internal/names"
	"sealedchat/internal/registry"
	"sealedchat/internal/store"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Broker struct {
	store     *store.Store
	lifecycle *lifecycle.Manager
	registry  *registry.Registry
	issuer    *auth.Issuer
	names     *names.Generator
	log       *zap.Logger
}

func New(st *store.Store, lc *lifecycle.Manager, reg *registry.Registry, issuer *auth.Issuer, namesGen *names.Generator, log *zap.Logger) *Broker {
	return &Broker{store: st, lifecycle: lc, registry: reg, issuer: issuer, names: namesGen, log: log}
}

// ServeWS is the GET /ws handler. Auth is carried as a query parameter
// because the WebSocket handshake has no room for a bespoke JSON auth
// payload before the upgrade completes.
func (b *Broker) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	claims, err := b.issuer.Validate(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	ok, err := b.store.Participants.ValidateDeviceAccess(ctx, claims.RoomID, claims.DeviceID)
	if err != nil || !ok {
		http.Error(w, "device does not match participant", http.StatusForbidden)
		return
	}

	room, err := b.store.Rooms.GetRoom(ctx, claims.RoomID)
	if err != nil || room == nil {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if room.Status != store.StatusActive && room.Status != store.StatusLocked {
		http.Error(w, "room not accepting connections", http.StatusConflict)
		return
	}

	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := b.registry.Add(claims.ParticipantID, claims.RoomID)
	session := &session{
		broker:        b,
		ws:            wsConn,
		conn:          conn,
		roomID:        claims.RoomID,
		participantID: claims.ParticipantID,
		role:          claims.Role,
	}
	session.onConnect(ctx, room)

	go session.writePump()
	session.readPump(ctx)
}

type session struct {
	broker        *Broker
	ws            *websocket.Conn
	conn          *registry.Connection
	roomID        string
	participantID int64
	role          string
	displayName   string
}

func (s *session) onConnect(ctx context.Context, room *store.Room) {
	s.broker.store.Participants.TouchLastSeen(ctx, s.participantID)

	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("participant_connected", map[string]interface{}{
		"participant_id": s.participantID,
		"role":           s.role,
	}))

	s.broadcastConnectionStatus(ctx)

	if room.Status == store.StatusLocked {
		s.send(mustFrame("room_locked", map[string]interface{}{}))
	}
	if room.ExpiresAt != nil {
		left := int(time.Until(*room.ExpiresAt).Seconds())
		if left < 0 {
			left = 0
		}
		s.send(mustFrame("timer_update", map[string]interface{}{"time_left_seconds": left}))
	}
}

func (s *session) broadcastConnectionStatus(ctx context.Context) {
	participants, err := s.broker.store.Participants.GetRoomParticipants(ctx, s.roomID)
	if err != nil {
		s.broker.log.Error("failed to list participants for status broadcast", zap.Error(err))
		return
	}
	connected := s.broker.registry.RoomParticipants(s.roomID)
	connectedSet := make(map[int64]bool, len(connected))
	for _, id := range connected {
		connectedSet[id] = true
	}

	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		name := ""
		if p.DisplayName != nil {
			name = *p.DisplayName
		}
		views = append(views, participantView{
			ParticipantID: p.ID,
			Role:          string(p.Role),
			DisplayName:   name,
			IsConnected:   connectedSet[p.ID],
		})
	}

	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("connection_status_update", map[string]interface{}{
		"connected_participants": len(connected),
		"total_participants":     len(participants),
		"is_secure":              len(connected) >= 2,
		"participants":           views,
	}))
}

func (s *session) send(payload []byte) {
	select {
	case s.conn.Send <- payload:
	default:
	}
}

func (s *session) readPump(ctx context.Context) {
	defer s.disconnect(ctx)

	s.ws.SetReadLimit(maxMessageSize)
	s.ws.SetReadDeadline(time.Now().Add(pongWait))
	s.ws.SetPongHandler(func(string) error {
		s.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := s.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			continue
		}
		s.broker.store.Participants.TouchLastSeen(ctx, s.participantID)
		s.handleFrame(ctx, frame)
	}
}

func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.ws.Close()
	}()

	for {
		select {
		case payload, ok := <-s.conn.Send:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *session) handleFrame(ctx context.Context, frame Frame) {
	switch frame.Type {
	case "message_send":
		s.handleMessageSend(ctx, frame.Payload)
	case "destroy_room":
		s.handleDestroyRoom(ctx)
	case "announce_participant_name":
		s.handleAnnounceName(ctx, frame.Payload)
	case "verify_participant":
		s.handleVerifyParticipant(ctx, frame.Payload)
	case "ping":
		s.send(mustFrame("pong", map[string]interface{}{"timestamp_ms": time.Now().UnixMilli()}))
	case "join_room":
		s.send(mustFrame("joined_room", map[string]interface{}{"room_id": s.roomID}))
	}
}

func (s *session) handleMessageSend(ctx context.Context, raw json.RawMessage) {
	var payload messageSendPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}

	room, err := s.broker.store.Rooms.GetRoom(ctx, s.roomID)
	if err != nil || room == nil || (room.Status != store.StatusActive && room.Status != store.StatusLocked) {
		s.send(mustFrame("room_closed", map[string]interface{}{"reason": "room_unavailable"}))
		return
	}

	ct, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return
	}
	nonce, err := base64.StdEncoding.DecodeString(payload.Nonce)
	if err != nil {
		return
	}
	tag, err := base64.StdEncoding.DecodeString(payload.Tag)
	if err != nil {
		return
	}
	if len(nonce) != cryptoutil.NonceSize || len(tag) != cryptoutil.TagSize {
		return
	}

	msgType := store.MsgText
	if payload.MsgType == string(store.MsgImage) {
		msgType = store.MsgImage
	}

	msg, err := s.broker.store.Messages.CreateMessage(ctx, s.roomID, s.participantID, ct, nonce, tag, msgType, nil)
	if err != nil {
		s.broker.log.Error("failed to persist message", zap.Error(err))
		return
	}

	if payload.AttachmentID != nil {
		// LinkAttachment refuses to link an attachment that was never
		// confirmed uploaded via /uploads/complete, so a participant can't
		// get a merely-reserved attachment treated as real by referencing
		// its id here.
		if err := s.broker.store.Attachments.LinkAttachment(ctx, *payload.AttachmentID, msg.ID); err != nil {
			s.broker.log.Warn("failed to link attachment to message",
				zap.String("attachment_id", *payload.AttachmentID), zap.Error(err))
		}
	}

	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("message", map[string]interface{}{
		"message_id":     msg.ID,
		"participant_id": s.participantID,
		"display_name":   s.displayName,
		"role":           s.role,
		"created_at":     msg.CreatedAt,
		"ciphertext":     payload.Ciphertext,
		"nonce":          payload.Nonce,
		"tag":            payload.Tag,
		"msg_type":       string(msgType),
	}))
}

func (s *session) handleDestroyRoom(ctx context.Context) {
	if err := s.broker.lifecycle.DestroyRoom(ctx, s.roomID); err != nil {
		return
	}
	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("room_closed", map[string]interface{}{"reason": "destroyed"}))
}

func (s *session) handleAnnounceName(ctx context.Context, raw json.RawMessage) {
	var payload announceNamePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}
	s.displayName = payload.DisplayName
	if err := s.broker.store.Participants.SetDisplayName(ctx, s.participantID, payload.DisplayName); err != nil {
		s.broker.log.Warn("failed to persist display name", zap.Error(err))
	}
	s.broker.registry.Broadcast(s.roomID, s.participantID, mustFrame("participant_name_announced", map[string]interface{}{
		"participant_id": s.participantID,
		"display_name":   payload.DisplayName,
		"role":           payload.Role,
	}))
}

func (s *session) handleVerifyParticipant(ctx context.Context, raw json.RawMessage) {
	var payload verifyParticipantPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return
	}

	if payload.Accepted {
		s.broker.registry.Broadcast(s.roomID, 0, mustFrame("participant_verified", map[string]interface{}{
			"target_participant_id": payload.TargetParticipantID,
			"verifier_name":         payload.VerifierName,
		}))
		return
	}

	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("participant_rejected", map[string]interface{}{
		"target_participant_id": payload.TargetParticipantID,
		"verifier_name":         payload.VerifierName,
	}))
	if err := s.broker.lifecycle.DestroyRoom(ctx, s.roomID); err != nil {
		s.broker.log.Warn("failed to close room after rejection", zap.Error(err))
	}
	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("room_closed", map[string]interface{}{"reason": "participant_rejected"}))
}

func (s *session) disconnect(ctx context.Context) {
	s.broker.registry.Remove(s.participantID, s.conn)
	if err := s.broker.lifecycle.Disconnect(ctx, s.participantID); err != nil {
		s.broker.log.Error("failed to disconnect participant", zap.Int64("participant_id", s.participantID), zap.Error(err))
	}
	s.broker.registry.Broadcast(s.roomID, 0, mustFrame("participant_disconnected", map[string]interface{}{
		"participant_id": s.participantID,
	}))
	s.broadcastConnectionStatus(ctx)
	s.ws.Close()
}
