// Package store persists room and membership rows in PostgreSQL.
package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

// PostgresStore satisfies core.RoomStore on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ core.RoomStore = (*PostgresStore)(nil)

// Connect creates a pgx pool from the DSN and verifies it with a ping.
// Accepts both postgres:// and postgresql:// DSNs.
func Connect(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(strings.TrimSpace(dsn))
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 4
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() { s.pool.Close() }

func (s *PostgresStore) UpsertRoom(ctx context.Context, rec core.RoomRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kaguya_rooms (id, source_id, source_episode_id, player_time, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (id) DO UPDATE
		SET source_id = EXCLUDED.source_id,
		    source_episode_id = EXCLUDED.source_episode_id,
		    player_time = EXCLUDED.player_time,
		    updated_at = now()`,
		string(rec.ID), rec.Episode.SourceID, rec.Episode.SourceEpisodeID, rec.CurrentTime,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert room %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteRoom(ctx context.Context, id domain.RoomID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kaguya_rooms WHERE id = $1`, string(id))
	if err != nil {
		return fmt.Errorf("postgres: delete room %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) UpsertParticipant(ctx context.Context, rec core.ParticipantRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO kaguya_room_users (id, room_id, user_id, name, avatar_url, mic_muted, voice_on, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (id) DO UPDATE
		SET room_id = EXCLUDED.room_id,
		    user_id = EXCLUDED.user_id,
		    name = EXCLUDED.name,
		    avatar_url = EXCLUDED.avatar_url,
		    mic_muted = EXCLUDED.mic_muted,
		    voice_on = EXCLUDED.voice_on,
		    updated_at = now()`,
		string(rec.SessionID), string(rec.RoomID), nullable(string(rec.UserID)),
		rec.Name, rec.AvatarURL, rec.MicMuted, rec.VoiceOn,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert participant %s: %w", rec.SessionID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteParticipant(ctx context.Context, sid core.SessionID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM kaguya_room_users WHERE id = $1`, string(sid))
	if err != nil {
		return fmt.Errorf("postgres: delete participant %s: %w", sid, err)
	}
	return nil
}

// nullable maps empty strings to SQL NULL; guests carry no user id.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
