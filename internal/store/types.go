// Package store is the persistence layer: typed Postgres-backed operations
// for rooms, participants, messages, wrapped room keys, and attachments.
package store

import "time"

type RoomStatus string

const (
	StatusPending  RoomStatus = "pending"
	StatusActive   RoomStatus = "active"
	StatusLocked   RoomStatus = "locked"
	StatusClosed   RoomStatus = "closed"
	StatusArchived RoomStatus = "archived"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type MessageType string

const (
	MsgText  MessageType = "text"
	MsgImage MessageType = "image"
)

type Room struct {
	RoomID     string
	Status     RoomStatus
	CreatedAt  time.Time
	AcceptedAt *time.Time
	ExpiresAt  *time.Time
	ClosedAt   *time.Time
	ArchiveKey *string
}

type Participant struct {
	ID          int64
	RoomID      string
	Role        Role
	DeviceID    string
	DisplayName *string
	IPAddress   *string
	JoinedAt    time.Time
	LastSeenAt  time.Time
}

type Message struct {
	ID            int64
	RoomID        string
	ParticipantID int64
	CreatedAt     time.Time
	BodyCT        []byte
	Nonce         []byte
	Tag           []byte
	MsgType       MessageType
	IPAddress     *string
}

type Attachment struct {
	ID        string
	RoomID    string
	ObjectKey string
	Filename  string
	MimeType  string
	SizeBytes int64
	Available bool
	MessageID *int64
}
