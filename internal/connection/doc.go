// Package connection implements the socket-mode client.
//
// A Client holds one logical connection to the gateway:
//   - Acquires a single-use URL before every dial
//   - Runs a control loop that owns the state machine
//     (idle, connecting, connected, reconnecting, closing, closed)
//   - Tags each socket with a generation so goroutines of a replaced
//     socket exit without touching the new one
//   - Acknowledges envelopes, optionally with a listener's response payload
//   - Serializes writes through a per-socket queue and single writer
//   - Declares the socket stale when nothing arrives within PingTimeout
//   - Reconnects with jittered exponential backoff, and replaces the socket
//     ahead of time when the gateway announces a refresh
package connection
