package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ProtocolHeader is the AMQP 0-9-1 preamble a client writes before its first frame.
var ProtocolHeader = []byte{'A', 'M', 'Q', 'P', 0, 0, 9, 1}

const protocolHeaderLen = 8

var ErrBadProtocolHeader = errors.New("session: bad protocol header")

// ReadProtocolHeader reads the 8-byte preamble and returns it. A well-formed
// "AMQP" preamble for another version is returned together with
// ErrBadProtocolHeader so the caller can answer with its own version.
func ReadProtocolHeader(r io.Reader) ([]byte, error) {
	return ReadExpectedHeader(r, ProtocolHeader)
}

// ReadExpectedHeader is ReadProtocolHeader for a preamble other than 0-9-1.
func ReadExpectedHeader(r io.Reader, want []byte) ([]byte, error) {
	buf := make([]byte, protocolHeaderLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	if bytes.Equal(buf, want) {
		return buf, nil
	}
	if bytes.HasPrefix(buf, []byte("AMQP")) {
		return buf, fmt.Errorf("%w: unsupported version %d-%d-%d", ErrBadProtocolHeader, buf[5], buf[6], buf[7])
	}
	return buf, fmt.Errorf("%w: %q", ErrBadProtocolHeader, buf)
}

func WriteProtocolHeader(w io.Writer) error {
	_, err := w.Write(ProtocolHeader)
	return err
}
