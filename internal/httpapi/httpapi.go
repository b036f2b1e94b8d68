// Package httpapi is the REST surface: room lifecycle endpoints, upload
// presigning, and the ambient probes (health, stats, name suggestions).
// Routing is a stdlib net/http.ServeMux plus manual path-segment parsing,
// the teacher's own house style (turn_auth.go, rate_limit.go never pull in
// a router library).
package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"sealedchat/internal/apperr"
	"sealedchat/internal/auth"
	"sealedchat/internal/blob"
	"sealedchat/internal/device"
	"sealedchat/internal/lifecycle"
	"sealedchat/internal/names"
	"sealedchat/internal/registry"
	"sealedchat/internal/stats"
	"sealedchat/internal/store"
)

const (
	maxUploadSize  = 10 * 1024 * 1024 // 10MB, matches original_source's upload cap
	tokenTTL       = 24 * time.Hour
	internalTokenHeader = "X-Internal-Token"
)

var allowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

type API struct {
	store     *store.Store
	lifecycle *lifecycle.Manager
	blob      *blob.Store
	registry  *registry.Registry
	issuer    *auth.Issuer
	devices   *device.Store
	names     *names.Generator
	log       *zap.Logger

	enableInternalStats bool
	internalStatsToken  string
}

type Config struct {
	EnableInternalStats bool
	InternalStatsToken  string
}

func New(st *store.Store, lc *lifecycle.Manager, bs *blob.Store, reg *registry.Registry, issuer *auth.Issuer, devices *device.Store, namesGen *names.Generator, log *zap.Logger, cfg Config) *API {
	return &API{
		store: st, lifecycle: lc, blob: bs, registry: reg, issuer: issuer,
		devices: devices, names: namesGen, log: log,
		enableInternalStats: cfg.EnableInternalStats, internalStatsToken: cfg.InternalStatsToken,
	}
}

// Routes registers every handler on mux. The caller is expected to wrap mux
// with rate-limiting/logging middleware.
func (a *API) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/rooms", a.handleRoomsCollection)
	mux.HandleFunc("/rooms/", a.handleRoomsItem)
	mux.HandleFunc("/uploads/init", a.handleUploadInit)
	mux.HandleFunc("/uploads/complete", a.handleUploadComplete)
	mux.HandleFunc("/uploads/", a.handleUploadURL)
	mux.HandleFunc("/healthz", a.handleHealthz)
	mux.HandleFunc("/api/internal/stats", a.handleInternalStats)
	mux.HandleFunc("/api/v1/names/suggest", a.handleNameSuggest)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apperr.StatusCode(err), map[string]string{"error": err.Error()})
}

// --- POST /rooms ---

type createRoomRequest struct {
	RoomID string `json:"room_id,omitempty"`
}

func (a *API) handleRoomsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createRoomRequest
	if r.ContentLength > 0 {
		json.NewDecoder(r.Body).Decode(&req)
	}

	ctx := r.Context()
	deviceID, err := a.devices.EnsureDeviceID(ctx, w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	room, err := a.lifecycle.CreateRoom(ctx, req.RoomID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := a.issuer.Issue(room.RoomID, 0, "host", deviceID, tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"room_id":    room.RoomID,
		"room_token": token,
		"status":     string(room.Status),
	})
}

// --- /rooms/{id}/... ---

func (a *API) handleRoomsItem(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/rooms/")
	segments := strings.Split(strings.Trim(path, "/"), "/")
	if len(segments) == 0 || segments[0] == "" {
		http.NotFound(w, r)
		return
	}
	roomID := segments[0]

	if len(segments) == 1 {
		a.handleGetRoom(w, r, roomID)
		return
	}

	switch segments[1] {
	case "accept":
		a.handleAcceptRoom(w, r, roomID)
	case "join":
		a.handleJoinRoom(w, r, roomID)
	case "name":
		a.handleSetName(w, r, roomID)
	case "destroy":
		a.handleDestroyRoom(w, r, roomID)
	default:
		http.NotFound(w, r)
	}
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	return strings.TrimPrefix(h, "Bearer ")
}

func (a *API) authenticate(r *http.Request, roomID string) (*auth.Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, apperr.AuthFailure("missing bearer token")
	}
	claims, err := a.issuer.Validate(token)
	if err != nil {
		return nil, err
	}
	if claims.RoomID != roomID {
		return nil, apperr.AuthFailure("token is not valid for this room")
	}
	return claims, nil
}

func (a *API) handleAcceptRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, err := a.authenticate(r, roomID)
	if err != nil || claims.Role != "host" {
		writeError(w, apperr.AuthFailure("host token required"))
		return
	}

	ctx := r.Context()
	var ip *string
	remote := r.RemoteAddr
	ip = &remote

	host, _, err := a.lifecycle.AcceptRoom(ctx, roomID, claims.DeviceID, ip)
	if err != nil {
		writeError(w, err)
		return
	}

	roomKey, err := a.lifecycle.GetRoomKey(ctx, roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := a.issuer.Issue(roomID, host.ID, string(host.Role), claims.DeviceID, tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":           true,
		"status":            "active",
		"participant_token": token,
		"participant_id":    host.ID,
		"room_key_b64":      base64.StdEncoding.EncodeToString(roomKey),
	})
}

func (a *API) handleJoinRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := r.Context()

	deviceID, err := a.devices.EnsureDeviceID(ctx, w, r)
	if err != nil {
		writeError(w, err)
		return
	}

	remote := r.RemoteAddr
	guest, err := a.lifecycle.JoinRoom(ctx, roomID, deviceID, &remote)
	if err != nil {
		writeError(w, err)
		return
	}

	roomKey, err := a.lifecycle.GetRoomKey(ctx, roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	token, err := a.issuer.Issue(roomID, guest.ID, string(guest.Role), deviceID, tokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}

	suggestion := a.names.Suggest(roomID, guest.ID)

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"participant_id":    guest.ID,
		"participant_token": token,
		"role":              string(guest.Role),
		"room_key_b64":      base64.StdEncoding.EncodeToString(roomKey),
		"display_name":      suggestion,
	})
}

type setNameRequest struct {
	DisplayName string `json:"display_name"`
}

func (a *API) handleSetName(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, err := a.authenticate(r, roomID)
	if err != nil {
		writeError(w, err)
		return
	}
	var req setNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.DisplayName) == "" {
		writeError(w, apperr.Validation(http.StatusBadRequest, "display_name is required"))
		return
	}

	if err := a.store.Participants.SetDisplayName(r.Context(), claims.ParticipantID, req.DisplayName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (a *API) handleDestroyRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := a.authenticate(r, roomID); err != nil {
		writeError(w, err)
		return
	}

	if err := a.lifecycle.DestroyRoom(r.Context(), roomID); err != nil {
		writeError(w, err)
		return
	}
	a.registry.Broadcast(roomID, 0, []byte(`{"type":"room_closed","payload":{"reason":"destroyed"}}`))
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (a *API) handleGetRoom(w http.ResponseWriter, r *http.Request, roomID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := a.authenticate(r, roomID); err != nil {
		writeError(w, err)
		return
	}

	ctx := r.Context()
	room, err := a.store.Rooms.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		writeError(w, apperr.NotFound("room %s not found", roomID))
		return
	}

	participants, err := a.store.Participants.GetRoomParticipants(ctx, roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	type participantOut struct {
		ParticipantID int64  `json:"participant_id"`
		Role          string `json:"role"`
		DisplayName   string `json:"display_name,omitempty"`
	}
	out := make([]participantOut, 0, len(participants))
	for _, p := range participants {
		name := ""
		if p.DisplayName != nil {
			name = *p.DisplayName
		}
		out = append(out, participantOut{ParticipantID: p.ID, Role: string(p.Role), DisplayName: name})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"room": map[string]interface{}{
			"room_id":    room.RoomID,
			"status":     string(room.Status),
			"created_at": room.CreatedAt,
			"expires_at": room.ExpiresAt,
		},
		"participants":     out,
		"participant_count": len(out),
	})
}

// --- /uploads/... ---

type uploadInitRequest struct {
	Filename string `json:"filename"`
	FileSize int64  `json:"file_size"`
	MimeType string `json:"mime_type"`
}

func (a *API) roomAndParticipantFromAuth(r *http.Request) (*auth.Claims, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, apperr.AuthFailure("missing bearer token")
	}
	return a.issuer.Validate(token)
}

func (a *API) handleUploadInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	claims, err := a.roomAndParticipantFromAuth(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req uploadInitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validation(http.StatusBadRequest, "invalid request body"))
		return
	}
	if req.FileSize > maxUploadSize {
		writeError(w, apperr.Validation(http.StatusRequestEntityTooLarge, "file too large, maximum is %d bytes", maxUploadSize))
		return
	}
	if !allowedMimeTypes[req.MimeType] {
		writeError(w, apperr.Validation(http.StatusUnsupportedMediaType, "mime type %s is not allowed", req.MimeType))
		return
	}
	if req.Filename == "" {
		writeError(w, apperr.Validation(http.StatusBadRequest, "filename is required"))
		return
	}

	ctx := r.Context()
	att, err := a.store.Attachments.ReserveAttachment(ctx, claims.RoomID, req.Filename, req.MimeType, req.FileSize)
	if err != nil {
		writeError(w, err)
		return
	}
	uploadURL, err := a.blob.PresignedUploadURL(ctx, att.ObjectKey, req.MimeType)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"attachment_id": att.ID,
		"upload_url":    uploadURL.String(),
		"object_key":    att.ObjectKey,
	})
}

type uploadCompleteRequest struct {
	AttachmentID string `json:"attachment_id"`
}

func (a *API) handleUploadComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := a.roomAndParticipantFromAuth(r); err != nil {
		writeError(w, err)
		return
	}

	var req uploadCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AttachmentID == "" {
		writeError(w, apperr.Validation(http.StatusBadRequest, "attachment_id is required"))
		return
	}

	ctx := r.Context()
	att, err := a.store.Attachments.GetAttachment(ctx, req.AttachmentID)
	if err != nil {
		writeError(w, err)
		return
	}
	if att == nil {
		writeError(w, apperr.NotFound("attachment %s not found", req.AttachmentID))
		return
	}
	if att.Available {
		writeError(w, apperr.StateConflict("upload already completed"))
		return
	}

	exists, err := a.blob.ObjectExists(ctx, att.ObjectKey)
	if err != nil {
		writeError(w, err)
		return
	}
	if !exists {
		writeError(w, apperr.NotFound("file upload not found"))
		return
	}

	if err := a.store.Attachments.MarkAvailable(ctx, att.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (a *API) handleUploadURL(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if _, err := a.roomAndParticipantFromAuth(r); err != nil {
		writeError(w, err)
		return
	}

	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/uploads/"), "/url")
	ctx := r.Context()
	att, err := a.store.Attachments.GetAttachment(ctx, id)
	if err != nil || att == nil {
		writeError(w, apperr.NotFound("attachment %s not found", id))
		return
	}

	url, err := a.blob.PresignedDownloadURL(ctx, att.ObjectKey)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"download_url": url.String(),
		"mime_type":    att.MimeType,
	})
}

// --- Ambient probes ---

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *API) handleInternalStats(w http.ResponseWriter, r *http.Request) {
	if !a.enableInternalStats {
		http.NotFound(w, r)
		return
	}
	if a.internalStatsToken == "" {
		http.Error(w, "internal stats not configured", http.StatusServiceUnavailable)
		return
	}
	if r.Header.Get(internalTokenHeader) != a.internalStatsToken {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, stats.SnapshotNow())
}

func (a *API) handleNameSuggest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"display_name": a.names.Random()})
}
