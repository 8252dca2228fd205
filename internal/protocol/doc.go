// Package protocol implements the relay's wire format.
//
// Every frame is a big-endian uint32 payload length followed by the payload.
// Client payloads start with a header string (USER, JOIN, MSG, FILE) followed by
// the variant's fields; server payloads carry a single rendered string. Strings
// are a big-endian uint32 byte length followed by UTF-8 bytes, sizes are
// big-endian uint64.
package protocol
