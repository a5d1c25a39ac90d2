// Package stream defines the wire model for the bioscope streaming search
// protocol: the typed event union, search hits, trace steps, and the
// encoder/decoder pair for the line-oriented transport framing.
//
// Each event is serialized as a single "data: <json>" line followed by a
// blank line, matching server-sent-event framing closely enough that any
// conforming SSE parser can split the stream on blank-line boundaries.
package stream
