// Package session moves AMQP frames over a net.Conn.
//
// Ownership boundary:
// - protocol header preamble
// - chunked reads feeding a frame.Reader
// - serialized frame writes
// - client TLS for AMQPS upstreams
package session
