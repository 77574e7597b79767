package protocol

import "time"

const (
	// Heartbeat cadence and the silence after which a socket is dropped.
	HeartbeatInterval = 5 * time.Second
	ClientTimeout     = 15 * time.Second

	MaxNameLen = 50
)
