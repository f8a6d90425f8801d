// Package realtime pushes account lifecycle events to connected clients
// over WebSocket.
//
// The model is deliberately one-way: the server publishes events into rooms
// and clients listen. A client authenticates with a short-lived access token
// during the upgrade and is subscribed to its own user room. The Hub is the
// in-process Publisher implementation; services depend only on the Publisher
// interface.
package realtime
