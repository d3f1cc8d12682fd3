package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

func (ctl *Controller) handleSendMessage(s *session, data []byte) {
	var p struct {
		Type    string          `json:"type"`
		Message json.RawMessage `json:"message"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad message payload")
		return
	}
	user, _ := ctl.Rooms.Participant(s.sid)
	out := struct {
		Type string             `json:"type"`
		Body json.RawMessage    `json:"body"`
		User domain.Participant `json:"user"`
	}{"message", p.Message, user}

	except := s.sid
	if ctl.echoMessages {
		except = ""
	}
	ctl.broadcast(s.roomID, except, out)
}

func (ctl *Controller) handleSendEvent(s *session, data []byte) {
	var p struct {
		Type  string `json:"type"`
		Event string `json:"event"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad event payload")
		return
	}
	user, _ := ctl.Rooms.Participant(s.sid)
	ctl.broadcast(s.roomID, s.sid, eventMsg{Type: "event", Event: eventBody{EventType: p.Event, User: user}})
}

func (ctl *Controller) handleChangeEpisode(s *session, data []byte) {
	var p struct {
		Type    string         `json:"type"`
		Episode domain.Episode `json:"episode"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad episode payload")
		return
	}
	ctl.Rooms.ChangeEpisode(s.roomID, p.Episode)

	// Broadcast first; persistence is already running in the background.
	ctl.broadcastRaw(s.roomID, s.sid, data)
	ctl.broadcast(s.roomID, s.sid, invalidateMsg)
}

func (ctl *Controller) handleChangeVideoState(s *session, data []byte) {
	var p struct {
		Type       string          `json:"type"`
		VideoState json.RawMessage `json:"videoState"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad videoState payload")
		return
	}
	var vs struct {
		Type        string  `json:"type"`
		CurrentTime float64 `json:"currentTime"`
	}
	if err := json.Unmarshal(p.VideoState, &vs); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad videoState body")
		return
	}
	if vs.Type == "timeupdate" {
		ctl.Rooms.RecordTimeUpdate(s.roomID, vs.CurrentTime)
	}

	// All subtypes relay to the rest of the room, timeupdate included.
	out := struct {
		Type       string          `json:"type"`
		VideoState json.RawMessage `json:"videoState"`
	}{"videoState", p.VideoState}
	ctl.broadcast(s.roomID, s.sid, out)
}

func (ctl *Controller) handleGetCurrentTime(s *session) {
	out := struct {
		Type        string  `json:"type"`
		CurrentTime float64 `json:"currentTime"`
	}{"currentTime", ctl.Rooms.CurrentTime(s.roomID)}
	ctl.sendJSON(s.conn, out)
}

func (ctl *Controller) handleTimeSyncBackward(s *session) {
	out := struct {
		Type string  `json:"type"`
		Time float64 `json:"time"`
	}{"timeSync-backward", ctl.Clock.Backward()}
	ctl.sendJSON(s.conn, out)
}

func (ctl *Controller) handleTimeSyncForward(s *session, data []byte) {
	var p struct {
		Type string  `json:"type"`
		Time float64 `json:"time"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad timeSync payload")
		return
	}
	out := struct {
		Type   string  `json:"type"`
		Offset float64 `json:"offset"`
	}{"timeSync-forward", ctl.Clock.Forward(p.Time)}
	ctl.sendJSON(s.conn, out)
}
