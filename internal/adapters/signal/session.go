package signal

import (
	"bytes"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/core"
	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

// session is the per-connection state: its id, its transport endpoint and
// the room it joined. Handlers receive the session explicitly instead of
// closing over connection-scoped variables.
type session struct {
	sid     core.SessionID
	conn    core.SignalConnection
	guestID domain.UserID
	roomID  domain.RoomID
	joined  bool
}

// handleFrame routes one inbound envelope. Malformed or out-of-order
// input is logged and dropped; one participant's garbage must never take
// the room down, and there is no user-visible error channel.
func (ctl *Controller) handleFrame(s *session, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(s.sid)).Msg("bad json")
		return
	}

	if env.Type == "join" {
		ctl.handleJoin(s, data)
		return
	}
	if !s.joined {
		log.Warn().Str("module", "signal").Str("sid", string(s.sid)).Str("type", env.Type).Msg("event before join")
		return
	}

	switch env.Type {
	case "sendMessage":
		ctl.handleSendMessage(s, data)
	case "sendEvent":
		ctl.handleSendEvent(s, data)
	case "changeEpisode":
		ctl.handleChangeEpisode(s, data)
	case "changeVideoState":
		ctl.handleChangeVideoState(s, data)
	case "getCurrentTime":
		ctl.handleGetCurrentTime(s)
	case "getTimeSync-backward":
		ctl.handleTimeSyncBackward(s)
	case "getTimeSync-forward":
		ctl.handleTimeSyncForward(s, data)
	case "communicateToggle":
		ctl.handleCommunicateToggle(s, data)
	case "connectVoiceChat":
		ctl.handleConnectVoiceChat(s, data)
	case "communicateUpdate":
		ctl.handleCommunicateUpdate(s, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown event")
	}
}

// decodeRoomID accepts the room id as either a JSON string or a number;
// web clients send both.
func decodeRoomID(raw json.RawMessage) (domain.RoomID, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", domain.ErrRoomIDEmpty
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return domain.NewRoomID(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return domain.NewRoomID(n.String())
}
