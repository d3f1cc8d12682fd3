package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

// playbackCache is a room's in-memory playback position plus the debounce
// machinery that schedules durable writes. Guarded by the owning
// roomState's mutex.
//
// Time updates arrive sub-second from the reporting client; persisting
// each one would be pure write amplification, since only the latest value
// matters to a late joiner. So the cache is updated synchronously and the
// durable write is debounced: arming cancels and replaces any pending
// timer, last writer wins.
type playbackCache struct {
	state        domain.PlaybackState
	touched      bool
	persistTimer *time.Timer
	persistGen   uint64
}

// RecordTimeUpdate stores position as the room's last-known playback time
// and (re)arms the persist debounce. Reads see the new value immediately.
func (m *RoomManager) RecordTimeUpdate(roomID domain.RoomID, position float64) {
	r, ok := m.get(roomID)
	if !ok {
		return
	}
	r.mu.Lock()
	r.playback.state.CurrentTime = position
	r.playback.touched = true
	m.armPersistLocked(r)
	r.mu.Unlock()
}

// ChangeEpisode updates the room's media identifier immediately and
// persists right away. Episode changes are rare and must reach the store
// without the debounce delay.
func (m *RoomManager) ChangeEpisode(roomID domain.RoomID, ep domain.Episode) {
	r, ok := m.get(roomID)
	if !ok {
		return
	}
	r.mu.Lock()
	r.playback.state.Episode = ep
	r.playback.touched = true
	rec := roomRecordLocked(r)
	r.mu.Unlock()

	log.Info().Str("module", "app.playback").Str("room", string(roomID)).Str("source", ep.SourceID).Str("episode", ep.SourceEpisodeID).Msg("episode changed")
	go m.persistRoom(rec)
}

// Playback returns the room's in-memory playback state, or the zero value
// when nothing was recorded yet.
func (m *RoomManager) Playback(roomID domain.RoomID) domain.PlaybackState {
	r, ok := m.get(roomID)
	if !ok {
		return domain.PlaybackState{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playback.state
}

// CurrentTime returns the last-known shared position, zero if none.
func (m *RoomManager) CurrentTime(roomID domain.RoomID) float64 {
	return m.Playback(roomID).CurrentTime
}

// armPersistLocked replaces any pending persist timer. Caller holds r.mu.
// Within one debounce window only the most recent position is written.
func (m *RoomManager) armPersistLocked(r *roomState) {
	r.playback.persistGen++
	gen := r.playback.persistGen
	if r.playback.persistTimer != nil {
		r.playback.persistTimer.Stop()
	}
	r.playback.persistTimer = time.AfterFunc(m.persistAfter, func() {
		m.onPersistTimer(r, gen)
	})
}

func stopPersistLocked(r *roomState) {
	r.playback.persistGen++
	if r.playback.persistTimer != nil {
		r.playback.persistTimer.Stop()
		r.playback.persistTimer = nil
	}
}

func (m *RoomManager) onPersistTimer(r *roomState, gen uint64) {
	r.mu.Lock()
	if gen != r.playback.persistGen || r.evicted {
		r.mu.Unlock()
		return
	}
	r.playback.persistTimer = nil
	rec := roomRecordLocked(r)
	r.mu.Unlock()

	m.persistRoom(rec)
}

func roomRecordLocked(r *roomState) core.RoomRecord {
	return core.RoomRecord{
		ID:          r.id,
		Episode:     r.playback.state.Episode,
		CurrentTime: r.playback.state.CurrentTime,
	}
}

// persistRoom writes the room row and the live snapshot. Fire-and-forget:
// failures are logged and swallowed, never surfaced to a connection.
func (m *RoomManager) persistRoom(rec core.RoomRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if m.store != nil {
		if err := m.store.UpsertRoom(ctx, rec); err != nil {
			log.Error().Err(err).Str("module", "app.playback").Str("room", string(rec.ID)).Msg("room upsert failed")
		}
	}
	if m.snaps != nil {
		st := domain.PlaybackState{Episode: rec.Episode, CurrentTime: rec.CurrentTime}
		if err := m.snaps.Save(ctx, rec.ID, st); err != nil {
			log.Error().Err(err).Str("module", "app.playback").Str("room", string(rec.ID)).Msg("snapshot save failed")
		}
	}
}
