// Package protocol groups the AMQP 0-9-1 wire packages.
//
// Ownership boundary:
// - frame: header codec, frame variants, registry, batch and streaming decode
// - schema: protocol description (frame types, classes, methods)
// - session: framed connections, preamble, client TLS
package protocol
