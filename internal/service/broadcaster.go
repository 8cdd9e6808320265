package service

// Broadcaster interface for signaling-room broadcasts (avoids import cycle)
type Broadcaster interface {
	BroadcastToRoom(sessionID string, kind string, payload interface{})
}
