// Package bridge drives a real browser page over a WebSocket.
//
// The browser loads client.js (served from ClientScript), which connects
// back to the server. Each connection becomes a Session: a dom.Page and a
// history.Stack whose operations are sent to the browser as JSON
// commands and acknowledged by it.
//
// Server to browser:
//
//	{"id": 7, "op": "setHTML", "args": {"html": "<h1>Hi</h1>"}}
//
// Browser to server, a reply or an event:
//
//	{"id": 7, "ok": true}
//	{"event": "click", "href": "/about"}
//
// Replies are matched to commands by id. Events (click, hover, visible,
// popstate, ready) are delivered in order to Options.OnEvent; popstate
// events also reach the Session's pop listeners.
package bridge
