// Package api provides the HTTP client for the socket-mode web API.
//
// The only endpoint the client needs is apps.connections.open, which
// exchanges an app-level token for a single-use WebSocket URL:
//
//	POST {base}/apps.connections.open
//	Authorization: Bearer xapp-...
//
//	{"ok": true, "url": "wss://...", "expires_in": 30}
//
// Failures are reported either as non-2xx statuses or as {"ok": false,
// "error": "<code>"} bodies. Both surface as *APIError.
package api
