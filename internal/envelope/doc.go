// Package envelope implements the socket-mode wire format.
//
// Every inbound frame is a JSON object with a "type" and, when the peer
// expects an acknowledgment, an "envelope_id":
//
//	{"type":"events_api","envelope_id":"E1","payload":{...},"accepts_response_payload":false}
//
// Acknowledgments go the other way as {"envelope_id":"E1","payload":{...}}.
//
// Special types:
//   - hello: sent once after the socket opens
//   - disconnect: the peer is about to drop the socket (see Disconnect reasons)
//   - ping: application-level keepalive, carries no payload semantics
package envelope
