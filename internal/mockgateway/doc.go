// Package mockgateway is an in-process socket-mode gateway for tests and
// local development.
//
// It serves POST /apps.connections.open, which hands out single-use
// WebSocket URLs, and the WebSocket endpoint those URLs point at. Each
// accepted socket becomes a Session that sends hello, records acks, echoes
// plain frames back and can be scripted to push envelopes, request a
// refresh or drop the connection.
package mockgateway
