// Package domain contains entities without logic, just meta-data.
package domain

import "errors"

const MaxRoomIDLen = 64

var ErrRoomIDEmpty = errors.New("room id empty")

// RoomID is the opaque, externally supplied room identifier.
// Clients send it as either a number or a string; adapters normalize.
type RoomID string

// NewRoomID validates and caps a caller-supplied identifier.
func NewRoomID(raw string) (RoomID, error) {
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		raw = raw[:MaxRoomIDLen]
	}
	return RoomID(raw), nil
}
