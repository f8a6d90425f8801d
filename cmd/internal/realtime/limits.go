package realtime

import "time"

// Security/performance limits for websocket sessions.
const (
	// Max bytes per websocket frame read (hard limit).
	maxFrameBytes = 16 << 10 // 16 KiB; clients only send small control frames

	// Heartbeat defaults (overridable by env in ws_gateway.go).
	heartbeatInterval = 25 * time.Second
	heartbeatTimeout  = 5 * time.Second

	// Per-connection inbound rate limits (frames per window).
	rateLimitEvents = 60
	rateLimitWindow = 10 * time.Second
)
