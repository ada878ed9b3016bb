package frame

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// ReadFrame reads exactly one frame from r. A clean end of stream before
// the first header byte is returned as io.EOF.
func ReadFrame(r io.Reader, reg *Registry, limits Limits) (Frame, error) {
	var fixed [HeaderSize]byte
	if n, err := io.ReadFull(r, fixed[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: have %d of %d bytes", ErrTruncatedHeader, n, HeaderSize)
		}
		return nil, err
	}

	h, err := DecodeHeader(fixed[:])
	if err != nil {
		return nil, err
	}
	if err := limits.check(h.Size); err != nil {
		return nil, err
	}

	// The buffer grows with the bytes that actually arrive, not with the
	// size the header claims.
	var wire bytes.Buffer
	wire.Write(fixed[:])
	if n, err := io.CopyN(&wire, r, int64(h.Size)+1); err != nil {
		if errors.Is(err, io.EOF) {
			if n < int64(h.Size) {
				return nil, &TruncatedPayloadError{Want: h.Size, Got: int(n)}
			}
			return nil, fmt.Errorf("%w: missing frame end", ErrTruncatedPayload)
		}
		return nil, err
	}
	return build(reg, h, wire.Bytes())
}

// WriteFrame writes f with a single Write call.
func WriteFrame(w io.Writer, f Frame) error {
	if n := uint64(len(f.Payload())); n > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes does not fit the size field", ErrFrameTooLarge, n)
	}
	_, err := w.Write(Wire(f))
	return err
}
