package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store bundles the sub-stores over one shared connection pool, mirroring
// the teacher pack's split of a single Store into per-entity stores.
type Store struct {
	pool *pgxpool.Pool

	Rooms        *RoomStore
	Participants *ParticipantStore
	Messages     *MessageStore
	Attachments  *AttachmentStore
	RoomKeys     *RoomKeyStore
}

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{pool: pool}
	s.Rooms = &RoomStore{db: pool}
	s.Participants = &ParticipantStore{db: pool}
	s.Messages = &MessageStore{db: pool}
	s.Attachments = &AttachmentStore{db: pool}
	s.RoomKeys = &RoomKeyStore{db: pool}
	return s, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the underlying pool for callers that must run multi-entity
// transactions themselves (room acceptance, for instance).
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}
