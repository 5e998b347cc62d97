// Package ws exposes a session's communication channel over WebSocket.
//
// A client connected to /wd/hub/session/:id/channel receives a "connected"
// frame, then every message the instrumentation process emits. Frames the
// client sends are queued for the process, except "ping" which is answered
// with "pong". The socket is closed normally when the session stops.
//
// Frames are instruments.Message values encoded as JSON:
//
//	{"id": "7", "type": "command", "payload": {"name": "tap"}}
package ws
