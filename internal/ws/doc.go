// Package ws carries one event bridge subscription over a WebSocket.
//
// The server pushes every bridge event as its own JSON text frame:
//
//	{"type":"data","sessionId":"session-...","data":"<base64>"}
//	{"type":"exit","sessionId":"session-...","exitCode":0}
//
// The client may send stdin, resize, kill, history and ping messages. Stdin
// data is base64 as well:
//
//	{"type":"stdin","sessionId":"session-...","data":"<base64>"}
//
// Client messages are routed to the session manager with the same no-op
// policy for unknown session ids as the REST API. Connecting replaces any previous connection.
package ws
