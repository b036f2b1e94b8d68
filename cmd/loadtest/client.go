package main

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

type wireFrame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type createRoomResponse struct {
	RoomID    string `json:"room_id"`
	RoomToken string `json:"room_token"`
}

type acceptRoomResponse struct {
	ParticipantToken string `json:"participant_token"`
}

type joinRoomResponse struct {
	ParticipantToken string `json:"participant_token"`
}

// roomSession drives one room end to end: create, accept, join, then a
// host and a guest websocket connection exchanging messages for the
// steady-state window.
type roomSession struct {
	httpClient *http.Client
	baseURL    string
	wsURL      string
	joinTimeout time.Duration
	metrics    *Metrics
}

func newRoomSession(baseURL, wsURL string, joinTimeout time.Duration, metrics *Metrics) *roomSession {
	return &roomSession{
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		baseURL:     baseURL,
		wsURL:       wsURL,
		joinTimeout: joinTimeout,
		metrics:     metrics,
	}
}

func (s *roomSession) run(ctx context.Context, messageInterval time.Duration) error {
	s.metrics.roomsAttempted.Add(1)
	joinStart := time.Now()

	room, err := s.createRoom(ctx)
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}

	hostParticipantToken, err := s.acceptRoom(ctx, room.RoomID, room.RoomToken)
	if err != nil {
		return fmt.Errorf("accept room: %w", err)
	}

	s.metrics.joinAttempts.Add(1)
	guestParticipantToken, err := s.joinRoom(ctx, room.RoomID)
	if err != nil {
		s.metrics.joinFailures.Add(1)
		return fmt.Errorf("join room: %w", err)
	}
	s.metrics.AddJoinLatency(time.Since(joinStart).Milliseconds())
	s.metrics.roomsReady.Add(1)

	hostConn, err := s.dial(ctx, hostParticipantToken)
	if err != nil {
		return fmt.Errorf("dial host: %w", err)
	}
	defer hostConn.Close()

	guestConn, err := s.dial(ctx, guestParticipantToken)
	if err != nil {
		return fmt.Errorf("dial guest: %w", err)
	}
	defer guestConn.Close()

	var hostRx, guestRx atomic.Int64
	readDone := make(chan struct{}, 2)
	go drainFrames(hostConn, &hostRx, readDone)
	go drainFrames(guestConn, &guestRx, readDone)

	ticker := time.NewTicker(messageInterval)
	defer ticker.Stop()
	turn := 0
	for {
		select {
		case <-ctx.Done():
			s.metrics.messagesReceived.Add(hostRx.Load() + guestRx.Load())
			return nil
		case <-ticker.C:
			conn := hostConn
			if turn%2 == 1 {
				conn = guestConn
			}
			turn++
			if err := sendMessage(conn); err != nil {
				s.metrics.messageSendFailures.Add(1)
				s.metrics.unexpectedDisconnects.Add(1)
				s.metrics.messagesReceived.Add(hostRx.Load() + guestRx.Load())
				return fmt.Errorf("send message: %w", err)
			}
			s.metrics.messagesSent.Add(1)
		}
	}
}

func (s *roomSession) createRoom(ctx context.Context) (createRoomResponse, error) {
	var out createRoomResponse
	resp, err := s.post(ctx, "/rooms", "", nil)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return out, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

func (s *roomSession) acceptRoom(ctx context.Context, roomID, hostToken string) (string, error) {
	resp, err := s.post(ctx, "/rooms/"+roomID+"/accept", hostToken, nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out acceptRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ParticipantToken, nil
}

func (s *roomSession) joinRoom(ctx context.Context, roomID string) (string, error) {
	resp, err := s.post(ctx, "/rooms/"+roomID+"/join", "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var out joinRoomResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ParticipantToken, nil
}

func (s *roomSession) post(ctx context.Context, path, bearer string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	return s.httpClient.Do(req)
}

func (s *roomSession) dial(ctx context.Context, participantToken string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: s.joinTimeout}
	conn, _, err := dialer.DialContext(ctx, s.wsURL+"?token="+participantToken, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func drainFrames(conn *websocket.Conn, counter *atomic.Int64, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		counter.Add(1)
	}
}

func sendMessage(conn *websocket.Conn) error {
	nonce := make([]byte, 12)
	tag := make([]byte, 16)
	ciphertext := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return err
	}
	if _, err := rand.Read(tag); err != nil {
		return err
	}
	if _, err := rand.Read(ciphertext); err != nil {
		return err
	}

	payload, err := json.Marshal(map[string]string{
		"ciphertext": base64.StdEncoding.EncodeToString(ciphertext),
		"nonce":      base64.StdEncoding.EncodeToString(nonce),
		"tag":        base64.StdEncoding.EncodeToString(tag),
		"msg_type":   "text",
	})
	if err != nil {
		return err
	}
	frame, err := json.Marshal(wireFrame{Type: "message_send", Payload: payload})
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}
