package app

import "time"

// ClockSync computes server-relative time offsets for clients. Stateless:
// both operations are independent single samples, not an exchange. Clients
// that care about precision sample repeatedly and average on their side.
type ClockSync struct {
	now func() time.Time
}

func NewClockSync() *ClockSync {
	return &ClockSync{now: time.Now}
}

func (c *ClockSync) seconds() float64 {
	return float64(c.now().UnixNano()) / float64(time.Second)
}

// Backward returns the current server wall-clock time in fractional epoch
// seconds. The client compares it against its own send time.
func (c *ClockSync) Backward() float64 {
	return c.seconds()
}

// Forward returns serverTime - clientTime for a client-supplied timestamp.
// Negative when the client clock runs ahead of the server.
func (c *ClockSync) Forward(clientSeconds float64) float64 {
	return c.seconds() - clientSeconds
}
