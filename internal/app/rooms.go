// Package app is the room session engine: membership, playback state,
// room lifetime and clock sync. Transport and persistence stay behind the
// interfaces in internal/core.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

const storeTimeout = 5 * time.Second

// Options wires the engine's collaborators. Store and Snapshots may be
// nil; persistence then degrades to in-memory only.
type Options struct {
	Store           core.RoomStore
	Snapshots       core.SnapshotCache
	RoomDeleteTime  time.Duration
	PersistDebounce time.Duration
}

// RoomManager owns the room table and every room's lifecycle: creation on
// first join, deletion-timer arming when the last participant leaves,
// cancellation on rejoin, destruction when the timer fires.
type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]*roomState
	index map[core.SessionID]domain.RoomID

	store        core.RoomStore
	snaps        core.SnapshotCache
	deleteAfter  time.Duration
	persistAfter time.Duration
}

// roomState is one room's mutable unit. mu owns everything below it:
// presence, playback and both timers. Count checks must stay atomic with
// timer arming, otherwise a leave-to-zero can race a concurrent join.
type roomState struct {
	id domain.RoomID

	mu          sync.Mutex
	members     *presence
	playback    playbackCache
	deleteTimer *time.Timer
	deleteGen   uint64
	evicted     bool
}

func NewRoomManager(opts Options) *RoomManager {
	if opts.RoomDeleteTime <= 0 {
		opts.RoomDeleteTime = 30 * time.Minute
	}
	if opts.PersistDebounce <= 0 {
		opts.PersistDebounce = time.Second
	}
	return &RoomManager{
		rooms:        make(map[domain.RoomID]*roomState),
		index:        make(map[core.SessionID]domain.RoomID),
		store:        opts.Store,
		snaps:        opts.Snapshots,
		deleteAfter:  opts.RoomDeleteTime,
		persistAfter: opts.PersistDebounce,
	}
}

// JoinResult tells the caller what a late joiner needs to sync up.
type JoinResult struct {
	RoomID   domain.RoomID
	Playback domain.PlaybackState
	Count    int
	Members  []MemberSnapshot
}

// Join registers the participant under roomID, creating the room entry if
// absent and cancelling any pending deletion timer. Re-joining with the
// same session id replaces the stored metadata. Membership persistence is
// fire-and-forget.
func (m *RoomManager) Join(sid core.SessionID, roomID domain.RoomID, p *domain.Participant) JoinResult {
	var res JoinResult
	for {
		r, created := m.getOrCreate(roomID)
		r.mu.Lock()
		if r.evicted {
			// Deletion fired between lookup and lock; the entry is gone
			// from the table, take a fresh one.
			r.mu.Unlock()
			continue
		}
		m.cancelDeleteLocked(r)
		r.members.add(sid, p)
		res = JoinResult{
			RoomID:   roomID,
			Playback: r.playback.state,
			Count:    r.members.count(),
			Members:  r.members.snapshot(),
		}
		r.mu.Unlock()

		if created && m.snaps != nil {
			go m.warm(r)
		}
		break
	}

	m.mu.Lock()
	m.index[sid] = roomID
	m.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(roomID)).Str("name", p.Name).Msg("joined room")
	m.persistParticipant(sid, roomID, *p)
	return res
}

// LeaveResult reports who left and whether the room drained.
type LeaveResult struct {
	RoomID      domain.RoomID
	Participant domain.Participant
	Remaining   int
}

// Leave removes the participant from its room. When the count reaches
// zero the deletion timer is armed. Unknown sessions are a no-op: a stale
// disconnect must not raise.
func (m *RoomManager) Leave(sid core.SessionID) (LeaveResult, bool) {
	m.mu.Lock()
	roomID, ok := m.index[sid]
	if ok {
		delete(m.index, sid)
	}
	m.mu.Unlock()
	if !ok {
		return LeaveResult{}, false
	}

	r, ok := m.get(roomID)
	if !ok {
		return LeaveResult{}, false
	}

	r.mu.Lock()
	p := r.members.remove(sid)
	remaining := r.members.count()
	if p != nil && remaining == 0 {
		m.armDeleteLocked(r)
	}
	r.mu.Unlock()
	if p == nil {
		return LeaveResult{}, false
	}

	log.Info().Str("module", "app.rooms").Str("sid", string(sid)).Str("room", string(roomID)).Int("remaining", remaining).Msg("left room")
	m.deleteParticipantRow(sid)
	return LeaveResult{RoomID: roomID, Participant: *p, Remaining: remaining}, true
}

// UpdateParticipant merges a partial update (mic toggle, voice-chat peer,
// profile fields) into the stored metadata. No-op for unknown sessions.
func (m *RoomManager) UpdateParticipant(sid core.SessionID, u domain.ParticipantUpdate) (domain.Participant, domain.RoomID, bool) {
	roomID, r, ok := m.roomOf(sid)
	if !ok {
		return domain.Participant{}, "", false
	}
	r.mu.Lock()
	p := r.members.update(sid, u)
	if p == nil {
		r.mu.Unlock()
		return domain.Participant{}, "", false
	}
	snap := *p
	r.mu.Unlock()

	m.persistParticipant(sid, roomID, snap)
	return snap, roomID, true
}

// Participant returns a copy of the stored metadata for sid.
func (m *RoomManager) Participant(sid core.SessionID) (domain.Participant, bool) {
	_, r, ok := m.roomOf(sid)
	if !ok {
		return domain.Participant{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members.get(sid)
	if !ok {
		return domain.Participant{}, false
	}
	return *p, true
}

// Members returns a point-in-time membership snapshot, empty for unknown rooms.
func (m *RoomManager) Members(roomID domain.RoomID) []MemberSnapshot {
	r, ok := m.get(roomID)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members.snapshot()
}

// RoomOf resolves the room a session currently belongs to.
func (m *RoomManager) RoomOf(sid core.SessionID) (domain.RoomID, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	roomID, ok := m.index[sid]
	return roomID, ok
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"memberCount"`
}

// Rooms lists live rooms, including drained ones still awaiting deletion.
func (m *RoomManager) Rooms() []RoomInfo {
	m.mu.RLock()
	states := make([]*roomState, 0, len(m.rooms))
	for _, r := range m.rooms {
		states = append(states, r)
	}
	m.mu.RUnlock()

	out := make([]RoomInfo, 0, len(states))
	for _, r := range states {
		r.mu.Lock()
		out = append(out, RoomInfo{ID: r.id, MemberCount: r.members.count()})
		r.mu.Unlock()
	}
	return out
}

// Has reports whether the room is still in the table.
func (m *RoomManager) Has(roomID domain.RoomID) bool {
	_, ok := m.get(roomID)
	return ok
}

func (m *RoomManager) get(roomID domain.RoomID) (*roomState, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[roomID]
	return r, ok
}

func (m *RoomManager) roomOf(sid core.SessionID) (domain.RoomID, *roomState, bool) {
	m.mu.RLock()
	roomID, ok := m.index[sid]
	var r *roomState
	if ok {
		r, ok = m.rooms[roomID]
	}
	m.mu.RUnlock()
	return roomID, r, ok
}

func (m *RoomManager) getOrCreate(roomID domain.RoomID) (*roomState, bool) {
	m.mu.RLock()
	r, ok := m.rooms[roomID]
	m.mu.RUnlock()
	if ok {
		return r, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok = m.rooms[roomID]; ok {
		return r, false
	}
	r = &roomState{id: roomID, members: newPresence()}
	m.rooms[roomID] = r
	log.Info().Str("module", "app.rooms").Str("room", string(roomID)).Msg("room created")
	return r, true
}

// armDeleteLocked replaces any pending deletion timer with a fresh one.
// Caller holds r.mu. The generation bump invalidates a timer that already
// fired but has not taken the lock yet.
func (m *RoomManager) armDeleteLocked(r *roomState) {
	r.deleteGen++
	gen := r.deleteGen
	if r.deleteTimer != nil {
		r.deleteTimer.Stop()
	}
	r.deleteTimer = time.AfterFunc(m.deleteAfter, func() {
		m.onDeleteTimer(r, gen)
	})
	log.Info().Str("module", "app.rooms").Str("room", string(r.id)).Dur("after", m.deleteAfter).Msg("room drained, deletion scheduled")
}

// cancelDeleteLocked is called on every join; it must complete before any
// participant-count check, which holding r.mu guarantees.
func (m *RoomManager) cancelDeleteLocked(r *roomState) {
	r.deleteGen++
	if r.deleteTimer != nil {
		r.deleteTimer.Stop()
		r.deleteTimer = nil
		log.Info().Str("module", "app.rooms").Str("room", string(r.id)).Msg("deletion cancelled")
	}
}

func (m *RoomManager) onDeleteTimer(r *roomState, gen uint64) {
	r.mu.Lock()
	if gen != r.deleteGen || r.members.count() != 0 {
		r.mu.Unlock()
		return
	}
	r.evicted = true
	r.deleteTimer = nil
	stopPersistLocked(r)
	r.mu.Unlock()

	m.mu.Lock()
	if cur, ok := m.rooms[r.id]; ok && cur == r {
		delete(m.rooms, r.id)
	}
	m.mu.Unlock()

	log.Info().Str("module", "app.rooms").Str("room", string(r.id)).Msg("room destroyed")
	m.deleteRoomRow(r.id)
}

// warm reconstructs playback state from the snapshot cache after a process
// restart. Runs off the join path; an update that races in wins.
func (m *RoomManager) warm(r *roomState) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	st, ok, err := m.snaps.Load(ctx, r.id)
	if err != nil {
		log.Error().Err(err).Str("module", "app.rooms").Str("room", string(r.id)).Msg("snapshot load failed")
		return
	}
	if !ok {
		return
	}
	r.mu.Lock()
	if !r.playback.touched {
		r.playback.state = st
		log.Info().Str("module", "app.rooms").Str("room", string(r.id)).Float64("currentTime", st.CurrentTime).Msg("playback warmed from snapshot")
	}
	r.mu.Unlock()
}

func (m *RoomManager) persistParticipant(sid core.SessionID, roomID domain.RoomID, p domain.Participant) {
	if m.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		rec := core.ParticipantRecord{
			SessionID: sid,
			RoomID:    roomID,
			UserID:    p.UserID,
			Name:      p.Name,
			AvatarURL: p.AvatarURL,
			MicMuted:  p.MicMuted,
			VoiceOn:   p.VoiceOn,
		}
		if err := m.store.UpsertParticipant(ctx, rec); err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("sid", string(sid)).Msg("participant upsert failed")
		}
	}()
}

func (m *RoomManager) deleteParticipantRow(sid core.SessionID) {
	if m.store == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := m.store.DeleteParticipant(ctx, sid); err != nil {
			log.Error().Err(err).Str("module", "app.rooms").Str("sid", string(sid)).Msg("participant delete failed")
		}
	}()
}

func (m *RoomManager) deleteRoomRow(roomID domain.RoomID) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if m.store != nil {
			if err := m.store.DeleteRoom(ctx, roomID); err != nil {
				log.Error().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("room delete failed")
			}
		}
		if m.snaps != nil {
			if err := m.snaps.Forget(ctx, roomID); err != nil {
				log.Error().Err(err).Str("module", "app.rooms").Str("room", string(roomID)).Msg("snapshot forget failed")
			}
		}
	}()
}
