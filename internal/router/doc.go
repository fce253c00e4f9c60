// Package router fans decoded frames out to registered listeners.
//
// Two ordered listener lists are kept: message listeners see every inbound
// frame, request listeners see only request-shaped envelopes (events_api,
// interactive, slash_commands). Each frame is dispatched on its own
// goroutine so the receive loop can keep reading; within a frame listeners
// run one after another in registration order.
package router
