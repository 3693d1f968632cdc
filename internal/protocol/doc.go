// Package protocol implements the newline-delimited JSON wire format shared by
// the relay server and its clients.
//
// A frame is one JSON object terminated by '\n'. The Framer accumulates raw
// bytes from a stream and yields complete frames in order; Encode and the
// Decode functions convert between frames and the typed client and server
// message unions.
package protocol
