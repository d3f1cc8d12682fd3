package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

func TestTimeUpdateVisibleBeforePersist(t *testing.T) {
	m := newTestManager(nil, nil)
	m.Join("s1", "42", guest("a"))

	m.RecordTimeUpdate("42", 12.5)
	// The cache updates synchronously; only the durable write is deferred.
	require.InDelta(t, 12.5, m.CurrentTime("42"), 1e-9)
}

func TestCurrentTimeZeroDefault(t *testing.T) {
	m := newTestManager(nil, nil)
	m.Join("s1", "42", guest("a"))

	require.Zero(t, m.CurrentTime("42"))
	require.Zero(t, m.CurrentTime("unknown"))
}

func TestDebounceCoalescesWrites(t *testing.T) {
	store := &memStore{}
	m := newTestManager(store, nil)
	m.Join("s1", "42", guest("a"))

	// A burst inside one debounce window produces exactly one write,
	// carrying the last position.
	for i := 1; i <= 5; i++ {
		m.RecordTimeUpdate("42", float64(i))
	}

	require.Eventually(t, func() bool {
		return store.roomUpsertCount() == 1
	}, eventuallyWithin, tick)

	time.Sleep(3 * testDebounce)
	require.Equal(t, 1, store.roomUpsertCount())

	rec, ok := store.lastRoomUpsert()
	require.True(t, ok)
	require.InDelta(t, 5.0, rec.CurrentTime, 1e-9)
}

func TestDebounceRearmsAcrossWindows(t *testing.T) {
	store := &memStore{}
	m := newTestManager(store, nil)
	m.Join("s1", "42", guest("a"))

	m.RecordTimeUpdate("42", 1)
	require.Eventually(t, func() bool {
		return store.roomUpsertCount() == 1
	}, eventuallyWithin, tick)

	m.RecordTimeUpdate("42", 2)
	require.Eventually(t, func() bool {
		return store.roomUpsertCount() == 2
	}, eventuallyWithin, tick)

	rec, _ := store.lastRoomUpsert()
	require.InDelta(t, 2.0, rec.CurrentTime, 1e-9)
}

func TestEpisodeChangePersistsImmediately(t *testing.T) {
	store := &memStore{}
	m := newTestManager(store, nil)
	m.Join("s1", "42", guest("a"))

	// No debounce pending, so the only possible write is the immediate one.
	ep := domain.Episode{SourceID: "x", SourceEpisodeID: "y"}
	m.ChangeEpisode("42", ep)

	require.Eventually(t, func() bool {
		rec, ok := store.lastRoomUpsert()
		return ok && rec.Episode == ep
	}, eventuallyWithin, tick)
	require.Equal(t, ep, m.Playback("42").Episode)

	// With a debounce pending, the episode write still lands on its own;
	// the debounced write follows later with the same episode.
	m.RecordTimeUpdate("42", 7)
	m.ChangeEpisode("42", domain.Episode{SourceID: "x", SourceEpisodeID: "z"})
	require.Eventually(t, func() bool {
		return store.roomUpsertCount() == 3
	}, eventuallyWithin, tick)
	rec, _ := store.lastRoomUpsert()
	require.Equal(t, "z", rec.Episode.SourceEpisodeID)
	require.InDelta(t, 7.0, rec.CurrentTime, 1e-9)
}

func TestSnapshotSavedAlongsideDurableWrite(t *testing.T) {
	store := &memStore{}
	snaps := newMemSnaps()
	m := newTestManager(store, snaps)
	m.Join("s1", "42", guest("a"))

	m.RecordTimeUpdate("42", 33)
	require.Eventually(t, func() bool {
		st, ok, _ := snaps.Load(t.Context(), "42")
		return ok && st.CurrentTime == 33
	}, eventuallyWithin, tick)
}

func TestPlaybackWarmedFromSnapshot(t *testing.T) {
	snaps := newMemSnaps()
	st := domain.PlaybackState{
		Episode:     domain.Episode{SourceID: "x", SourceEpisodeID: "y"},
		CurrentTime: 120.5,
	}
	require.NoError(t, snaps.Save(t.Context(), "42", st))

	// Fresh manager simulates a restarted process: the first join finds
	// the last persisted playback state.
	m := newTestManager(nil, snaps)
	m.Join("s1", "42", guest("a"))

	require.Eventually(t, func() bool {
		return m.Playback("42") == st
	}, eventuallyWithin, tick)
}

func TestDestroyedRoomForgetsPlayback(t *testing.T) {
	m := newTestManager(nil, nil)
	m.Join("s1", "42", guest("a"))
	m.RecordTimeUpdate("42", 55)
	m.Leave("s1")

	require.Eventually(t, func() bool {
		return !m.Has("42")
	}, eventuallyWithin, tick)

	// Without a snapshot cache the recreated room starts from zero.
	res := m.Join("s2", "42", guest("b"))
	require.Zero(t, res.Playback.CurrentTime)
}
