package signal

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hoangvu12/kaguya-socket/internal/app"
	"github.com/hoangvu12/kaguya-socket/internal/config"
	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
}

func (f *fakeConn) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make(core.Frame, len(fr))
	copy(cp, fr)
	f.frames = append(f.frames, cp)
	return nil
}

func (f *fakeConn) Close() {}

func (f *fakeConn) messages(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.frames))
	for _, fr := range f.frames {
		var m map[string]any
		require.NoError(t, json.Unmarshal(fr, &m))
		out = append(out, m)
	}
	return out
}

func (f *fakeConn) typesSeen(t *testing.T) []string {
	t.Helper()
	msgs := f.messages(t)
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		typ, _ := m["type"].(string)
		out = append(out, typ)
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

func contains(types []string, want string) bool {
	for _, typ := range types {
		if typ == want {
			return true
		}
	}
	return false
}

func newTestController(echo bool) *Controller {
	cfg := &config.Config{
		ReadLimit:    32768,
		PingPeriod:   54 * time.Second,
		EchoMessages: echo,
	}
	rooms := app.NewRoomManager(app.Options{
		RoomDeleteTime:  time.Minute,
		PersistDebounce: 20 * time.Millisecond,
	})
	return NewController(rooms, app.NewClockSync(), cfg)
}

func joinAs(t *testing.T, ctl *Controller, sid core.SessionID, roomID string, name string) (*session, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	s := &session{sid: sid, conn: fc, guestID: domain.UserID("guest-" + string(sid))}
	ctl.bind(sid, fc)
	frame := fmt.Sprintf(`{"type":"join","roomId":%q,"user":{"name":%q}}`, roomID, name)
	ctl.handleFrame(s, []byte(frame))
	require.True(t, s.joined)
	return s, fc
}

func TestJoinNotifiesOthersAndAcksSender(t *testing.T) {
	ctl := newTestController(false)
	_, fcA := joinAs(t, ctl, "a", "42", "alice")
	fcA.reset()

	_, fcB := joinAs(t, ctl, "b", "42", "bob")

	// A hears about bob via the synthetic join event plus invalidate.
	typesA := fcA.typesSeen(t)
	require.True(t, contains(typesA, "event"))
	require.True(t, contains(typesA, "invalidate"))

	var joinEvent map[string]any
	for _, m := range fcA.messages(t) {
		if m["type"] == "event" {
			joinEvent = m
		}
	}
	ev := joinEvent["event"].(map[string]any)
	require.Equal(t, "join", ev["eventType"])
	require.Equal(t, "bob", ev["user"].(map[string]any)["name"])

	// B only gets the ack, never its own join event.
	typesB := fcB.typesSeen(t)
	require.Equal(t, []string{"joined"}, typesB)

	var ack map[string]any
	for _, m := range fcB.messages(t) {
		if m["type"] == "joined" {
			ack = m
		}
	}
	require.Equal(t, "42", ack["roomId"])
	require.InDelta(t, 2, ack["count"].(float64), 1e-9)
}

func TestNumericRoomIDAccepted(t *testing.T) {
	ctl := newTestController(false)
	fc := &fakeConn{}
	s := &session{sid: "a", conn: fc}
	ctl.bind("a", fc)

	ctl.handleFrame(s, []byte(`{"type":"join","roomId":42,"user":{"name":"alice"}}`))
	require.True(t, s.joined)
	require.Len(t, ctl.Rooms.Members("42"), 1)
}

func TestGetCurrentTimeRepliesToSenderOnly(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	ctl.Rooms.RecordTimeUpdate("42", 99.5)
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{"type":"getCurrentTime"}`))

	msgs := fcA.messages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "currentTime", msgs[0]["type"])
	require.InDelta(t, 99.5, msgs[0]["currentTime"].(float64), 1e-9)
	require.Empty(t, fcB.messages(t))
}

func TestSendMessageExcludesSenderByDefault(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{"type":"sendMessage","message":"hi there"}`))

	require.Empty(t, fcA.messages(t))
	msgs := fcB.messages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "message", msgs[0]["type"])
	require.Equal(t, "hi there", msgs[0]["body"])
	require.Equal(t, "alice", msgs[0]["user"].(map[string]any)["name"])
}

func TestSendMessageEchoIncludesSender(t *testing.T) {
	ctl := newTestController(true)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{"type":"sendMessage","message":"hi"}`))

	require.True(t, contains(fcA.typesSeen(t), "message"))
	require.True(t, contains(fcB.typesSeen(t), "message"))
}

func TestChangeVideoStateRecordsAndRelays(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{"type":"changeVideoState","videoState":{"type":"timeupdate","currentTime":12.25}}`))

	// Cache reflects the position immediately, before any persist.
	require.InDelta(t, 12.25, ctl.Rooms.CurrentTime("42"), 1e-9)

	require.Empty(t, fcA.messages(t))
	msgs := fcB.messages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "videoState", msgs[0]["type"])
	vs := msgs[0]["videoState"].(map[string]any)
	require.Equal(t, "timeupdate", vs["type"])

	// Non-timeupdate subtypes relay without touching the cache.
	fcB.reset()
	ctl.handleFrame(sA, []byte(`{"type":"changeVideoState","videoState":{"type":"pause"}}`))
	require.InDelta(t, 12.25, ctl.Rooms.CurrentTime("42"), 1e-9)
	require.True(t, contains(fcB.typesSeen(t), "videoState"))
}

func TestChangeEpisodeRelaysRawPayload(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{"type":"changeEpisode","episode":{"sourceId":"x","sourceEpisodeId":"y"}}`))

	pb := ctl.Rooms.Playback("42")
	require.Equal(t, "x", pb.Episode.SourceID)
	require.Equal(t, "y", pb.Episode.SourceEpisodeID)

	typesB := fcB.typesSeen(t)
	require.True(t, contains(typesB, "changeEpisode"))
	require.True(t, contains(typesB, "invalidate"))
	require.Empty(t, fcA.messages(t))
}

func TestTimeSyncRepliesToSender(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	fcA.reset()

	before := float64(time.Now().UnixNano()) / float64(time.Second)
	ctl.handleFrame(sA, []byte(`{"type":"getTimeSync-backward"}`))
	ctl.handleFrame(sA, []byte(fmt.Sprintf(`{"type":"getTimeSync-forward","time":%f}`, before)))

	msgs := fcA.messages(t)
	require.Len(t, msgs, 2)
	require.Equal(t, "timeSync-backward", msgs[0]["type"])
	require.InDelta(t, before, msgs[0]["time"].(float64), 2.0)
	require.Equal(t, "timeSync-forward", msgs[1]["type"])
	require.InDelta(t, 0, msgs[1]["offset"].(float64), 2.0)
}

func TestVoiceChatSignalingRelayed(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{"type":"connectVoiceChat","peerId":"peer-1"}`))
	p, ok := ctl.Rooms.Participant("a")
	require.True(t, ok)
	require.Equal(t, "peer-1", p.PeerID)

	msgs := fcB.messages(t)
	require.Len(t, msgs, 1)
	require.Equal(t, "connectVoiceChat", msgs[0]["type"])
	require.Equal(t, "peer-1", msgs[0]["peerId"])

	fcB.reset()
	ctl.handleFrame(sA, []byte(`{"type":"communicateToggle","micMuted":true}`))
	p, _ = ctl.Rooms.Participant("a")
	require.True(t, p.MicMuted)
	require.True(t, contains(fcB.typesSeen(t), "communicateToggle"))

	// communicateUpdate goes room-wide, sender included.
	fcA.reset()
	fcB.reset()
	ctl.handleFrame(sA, []byte(`{"type":"communicateUpdate","name":"alice2"}`))
	require.True(t, contains(fcA.typesSeen(t), "communicateUpdate"))
	require.True(t, contains(fcB.typesSeen(t), "communicateUpdate"))
}

func TestMalformedInputDropped(t *testing.T) {
	ctl := newTestController(false)
	sA, fcA := joinAs(t, ctl, "a", "42", "alice")
	_, fcB := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()
	fcB.reset()

	ctl.handleFrame(sA, []byte(`{not json`))
	ctl.handleFrame(sA, []byte(`{"type":"changeVideoState","videoState":"nope"}`))
	ctl.handleFrame(sA, []byte(`{"type":"somethingElse"}`))

	require.Empty(t, fcA.messages(t))
	require.Empty(t, fcB.messages(t))
	// The room state machine survives the garbage.
	require.Len(t, ctl.Rooms.Members("42"), 2)
}

func TestEventBeforeJoinDropped(t *testing.T) {
	ctl := newTestController(false)
	fc := &fakeConn{}
	s := &session{sid: "a", conn: fc}
	ctl.bind("a", fc)

	ctl.handleFrame(s, []byte(`{"type":"sendMessage","message":"hi"}`))
	require.Empty(t, fc.messages(t))
	require.False(t, s.joined)
}

func TestDisconnectActsAsLeave(t *testing.T) {
	ctl := newTestController(false)
	_, fcA := joinAs(t, ctl, "a", "42", "alice")
	sB, _ := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()

	ctl.dropSession(sB)

	typesA := fcA.typesSeen(t)
	require.True(t, contains(typesA, "event"))
	require.True(t, contains(typesA, "invalidate"))

	var leaveEvent map[string]any
	for _, m := range fcA.messages(t) {
		if m["type"] == "event" {
			leaveEvent = m
		}
	}
	ev := leaveEvent["event"].(map[string]any)
	require.Equal(t, "leave", ev["eventType"])
	require.Len(t, ctl.Rooms.Members("42"), 1)
}

func TestRoomSwitchLeavesOldRoom(t *testing.T) {
	ctl := newTestController(false)
	_, fcA := joinAs(t, ctl, "a", "42", "alice")
	sB, _ := joinAs(t, ctl, "b", "42", "bob")
	fcA.reset()

	ctl.handleFrame(sB, []byte(`{"type":"join","roomId":"7","user":{"name":"bob"}}`))

	require.Len(t, ctl.Rooms.Members("42"), 1)
	require.Len(t, ctl.Rooms.Members("7"), 1)
	// Old roommates hear the leave.
	require.True(t, contains(fcA.typesSeen(t), "event"))
}
