package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/hoangvu12/kaguya-socket/internal/domain"
)

// Voice chat here is signaling only: the server stores peer ids and mic
// flags and relays them, the media itself flows peer to peer.

type userMsg struct {
	Type string             `json:"type"`
	User domain.Participant `json:"user"`
}

func (ctl *Controller) handleCommunicateToggle(s *session, data []byte) {
	var p struct {
		Type     string `json:"type"`
		MicMuted *bool  `json:"micMuted"`
		VoiceOn  *bool  `json:"voiceOn"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad toggle payload")
		return
	}
	snap, roomID, ok := ctl.Rooms.UpdateParticipant(s.sid, domain.ParticipantUpdate{
		MicMuted: p.MicMuted,
		VoiceOn:  p.VoiceOn,
	})
	if !ok {
		return
	}
	ctl.broadcast(roomID, s.sid, userMsg{Type: "communicateToggle", User: snap})
}

func (ctl *Controller) handleConnectVoiceChat(s *session, data []byte) {
	var p struct {
		Type   string `json:"type"`
		PeerID string `json:"peerId"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad voice payload")
		return
	}
	snap, roomID, ok := ctl.Rooms.UpdateParticipant(s.sid, domain.ParticipantUpdate{PeerID: &p.PeerID})
	if !ok {
		return
	}
	out := struct {
		Type   string             `json:"type"`
		User   domain.Participant `json:"user"`
		PeerID string             `json:"peerId"`
	}{"connectVoiceChat", snap, p.PeerID}
	ctl.broadcast(roomID, s.sid, out)
}

func (ctl *Controller) handleCommunicateUpdate(s *session, data []byte) {
	var p struct {
		Type string `json:"type"`
		domain.ParticipantUpdate
	}
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad update payload")
		return
	}
	snap, roomID, ok := ctl.Rooms.UpdateParticipant(s.sid, p.ParticipantUpdate)
	if !ok {
		return
	}
	// Room-wide so the sender's own UI converges too.
	ctl.broadcast(roomID, "", userMsg{Type: "communicateUpdate", User: snap})
}
