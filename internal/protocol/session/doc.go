// Package session multiplexes request/response exchanges over one ordered message
// transport.
//
// A request is always three frames: Header with the body length, one Chunk holding
// [len(method) u8][method][payload], and End. Responses arrive as a Header, any number
// of Chunks, and an End, possibly interleaved with frames for other requests. The
// inbound handler decodes each message and hands it to the pending request with the
// same id; Heartbeats and unknown ids are dropped.
//
// Connect runs the transport handshake, then a getVersion bootstrap, then starts
// the heartbeat ticker. A closed transport does not fail in-flight requests; callers
// bound their reads with a context.
package session
