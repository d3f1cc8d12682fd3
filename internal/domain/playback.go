package domain

// Episode identifies the media currently playing in a room.
type Episode struct {
	SourceID        string `json:"sourceId"`
	SourceEpisodeID string `json:"sourceEpisodeId"`
}

// PlaybackState is a room's last-known shared playback position.
// Last-write-wins; there is no per-field conflict resolution.
type PlaybackState struct {
	Episode     Episode `json:"episode"`
	CurrentTime float64 `json:"currentTime"`
}
