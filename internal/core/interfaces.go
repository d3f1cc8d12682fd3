// Package core declares the contracts between the room engine and its
// collaborators. The engine never touches a websocket, a database or a
// cache directly; adapters own those resources.
package core

import (
	"context"

	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

// Frame is a raw outbound payload, already encoded.
type Frame []byte

// SessionID identifies one live transport connection. It is unique per
// connection; reuse across rejoins is not assumed.
type SessionID string

// SignalConnection abstracts a system messaging transport.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// RoomRecord is the durable row for a room.
type RoomRecord struct {
	ID          domain.RoomID
	Episode     domain.Episode
	CurrentTime float64
}

// ParticipantRecord is the durable row for a room membership.
type ParticipantRecord struct {
	SessionID SessionID
	RoomID    domain.RoomID
	UserID    domain.UserID
	Name      string
	AvatarURL string
	MicMuted  bool
	VoiceOn   bool
}

// RoomStore is the durable record store. Every call may fail with a
// network/store error; callers log and proceed, never retry or surface.
type RoomStore interface {
	UpsertRoom(ctx context.Context, rec RoomRecord) error
	DeleteRoom(ctx context.Context, id domain.RoomID) error
	UpsertParticipant(ctx context.Context, rec ParticipantRecord) error
	DeleteParticipant(ctx context.Context, sid SessionID) error
}

// SnapshotCache holds the live playback state of rooms so that it
// survives a process restart. Optional collaborator.
type SnapshotCache interface {
	Load(ctx context.Context, id domain.RoomID) (domain.PlaybackState, bool, error)
	Save(ctx context.Context, id domain.RoomID, st domain.PlaybackState) error
	Forget(ctx context.Context, id domain.RoomID) error
}
