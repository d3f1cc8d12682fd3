package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

type eventBody struct {
	EventType string             `json:"eventType"`
	User      domain.Participant `json:"user"`
}

type eventMsg struct {
	Type  string    `json:"type"`
	Event eventBody `json:"event"`
}

var invalidateMsg = map[string]string{"type": "invalidate"}

func (ctl *Controller) handleJoin(s *session, data []byte) {
	type joinPayload struct {
		Type   string          `json:"type"`
		RoomID json.RawMessage `json:"roomId"`
		User   struct {
			ID        string `json:"id"`
			Name      string `json:"name"`
			AvatarURL string `json:"avatarUrl"`
		} `json:"user"`
	}
	var p joinPayload
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("bad join payload")
		return
	}
	roomID, err := decodeRoomID(p.RoomID)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("bad room id")
		return
	}

	// A second join on the same connection is a room switch.
	if s.joined {
		ctl.leaveCurrentRoom(s)
	}

	userID := domain.UserID(p.User.ID)
	if userID == "" {
		userID = s.guestID
	}
	part := domain.NewParticipant(userID, p.User.Name, p.User.AvatarURL)

	res := ctl.Rooms.Join(s.sid, roomID, part)
	s.roomID = roomID
	s.joined = true

	ctl.broadcast(roomID, s.sid, eventMsg{Type: "event", Event: eventBody{EventType: "join", User: *part}})
	ctl.broadcast(roomID, s.sid, invalidateMsg)

	ack := struct {
		Type     string               `json:"type"`
		RoomID   domain.RoomID        `json:"roomId"`
		Count    int                  `json:"count"`
		Playback domain.PlaybackState `json:"playback"`
	}{
		Type:     "joined",
		RoomID:   roomID,
		Count:    res.Count,
		Playback: res.Playback,
	}
	ctl.sendJSON(s.conn, ack)
}

// leaveCurrentRoom detaches the session from its room and tells the
// remaining members. The room engine arms the deletion timer itself when
// the last participant goes.
func (ctl *Controller) leaveCurrentRoom(s *session) {
	if !s.joined {
		return
	}
	s.joined = false
	res, ok := ctl.Rooms.Leave(s.sid)
	if !ok || res.Remaining == 0 {
		return
	}
	ctl.broadcast(res.RoomID, s.sid, eventMsg{Type: "event", Event: eventBody{EventType: "leave", User: res.Participant}})
	ctl.broadcast(res.RoomID, s.sid, invalidateMsg)
}

// dropSession runs on transport disconnect. An abrupt close is treated
// exactly like an explicit leave.
func (ctl *Controller) dropSession(s *session) {
	ctl.unbind(s.sid)
	ctl.leaveCurrentRoom(s)
	s.conn.Close()
	log.Info().Str("module", "signal").Str("sid", string(s.sid)).Msg("session dropped")
}
