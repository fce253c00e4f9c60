// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Connection state, generation and reconnect counts
//   - Inbound envelopes by type, decode failures and acks sent
//   - Listener failures and dispatch latency
//   - Outbound send failures
package metrics
