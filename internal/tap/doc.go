// Package tap runs a transparent AMQP proxy that decodes the frames it relays.
//
// Bytes are forwarded exactly as received in both directions. Each direction
// owns a frame.Reader so decoding never alters what the peers see; a
// decode failure on either side closes the whole connection.
package tap
