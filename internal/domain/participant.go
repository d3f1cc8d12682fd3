package domain

const (
	MaxUserIDLen = 64
	MaxNameLen   = 64
)

type UserID string

// Participant is one connection's membership record within a room.
// UserID is empty for anonymous guests; PeerID is empty until the client
// announces a voice-chat peer connection.
type Participant struct {
	UserID    UserID `json:"id,omitempty"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	PeerID    string `json:"peerId,omitempty"`
	MicMuted  bool   `json:"micMuted"`
	VoiceOn   bool   `json:"voiceOn"`
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(userID UserID, name, avatarURL string) *Participant {
	if len(userID) > MaxUserIDLen {
		userID = userID[:MaxUserIDLen]
	}
	if name == "" {
		name = "guest"
	}
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	return &Participant{UserID: userID, Name: name, AvatarURL: avatarURL}
}

// ParticipantUpdate is a partial update; nil fields are left untouched.
type ParticipantUpdate struct {
	Name      *string `json:"name,omitempty"`
	AvatarURL *string `json:"avatarUrl,omitempty"`
	PeerID    *string `json:"peerId,omitempty"`
	MicMuted  *bool   `json:"micMuted,omitempty"`
	VoiceOn   *bool   `json:"voiceOn,omitempty"`
}

// Apply merges the non-nil fields into p.
func (u ParticipantUpdate) Apply(p *Participant) {
	if u.Name != nil && *u.Name != "" {
		name := *u.Name
		if len(name) > MaxNameLen {
			name = name[:MaxNameLen]
		}
		p.Name = name
	}
	if u.AvatarURL != nil {
		p.AvatarURL = *u.AvatarURL
	}
	if u.PeerID != nil {
		p.PeerID = *u.PeerID
	}
	if u.MicMuted != nil {
		p.MicMuted = *u.MicMuted
	}
	if u.VoiceOn != nil {
		p.VoiceOn = *u.VoiceOn
	}
}
