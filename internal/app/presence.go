package app

import (
	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

// presence is the participant set of a single room.
//
// It is not self-locking: the owning roomState serializes access, so that
// a "count just reached zero" check stays atomic with deletion-timer
// arming. Removing or updating an unknown session is a no-op; a stale
// disconnect for an already-removed participant must not raise.
type presence struct {
	byID map[core.SessionID]*domain.Participant
}

func newPresence() *presence {
	return &presence{byID: make(map[core.SessionID]*domain.Participant)}
}

// add registers p under sid, replacing any previous metadata for sid.
func (ps *presence) add(sid core.SessionID, p *domain.Participant) {
	ps.byID[sid] = p
}

func (ps *presence) remove(sid core.SessionID) *domain.Participant {
	p, ok := ps.byID[sid]
	if !ok {
		return nil
	}
	delete(ps.byID, sid)
	return p
}

func (ps *presence) update(sid core.SessionID, u domain.ParticipantUpdate) *domain.Participant {
	p, ok := ps.byID[sid]
	if !ok {
		return nil
	}
	u.Apply(p)
	return p
}

func (ps *presence) get(sid core.SessionID) (*domain.Participant, bool) {
	p, ok := ps.byID[sid]
	return p, ok
}

func (ps *presence) count() int { return len(ps.byID) }

// MemberSnapshot is a read-only view of one membership for fan-out and APIs.
type MemberSnapshot struct {
	SessionID   core.SessionID
	Participant domain.Participant
}

func (ps *presence) snapshot() []MemberSnapshot {
	out := make([]MemberSnapshot, 0, len(ps.byID))
	for sid, p := range ps.byID {
		out = append(out, MemberSnapshot{SessionID: sid, Participant: *p})
	}
	return out
}
