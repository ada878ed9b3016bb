package frame

import "fmt"

// scan inspects the frame starting at b. complete is false while more
// bytes are needed; n is then zero. A size over the limits is reported as
// soon as the header is readable.
func scan(b []byte, limits Limits) (h RawHeader, n int, complete bool, err error) {
	if len(b) < HeaderSize {
		return RawHeader{}, 0, false, nil
	}
	h, err = DecodeHeader(b)
	if err != nil {
		return RawHeader{}, 0, false, err
	}
	if err := limits.check(h.Size); err != nil {
		return h, 0, false, err
	}
	n = h.WireLen()
	if len(b) < n {
		return h, 0, false, nil
	}
	return h, n, true, nil
}

// build turns one complete wire frame into a Frame. The payload is copied
// out of wire so the result never aliases a caller or reader buffer.
func build(reg *Registry, h RawHeader, wire []byte) (Frame, error) {
	if end := wire[len(wire)-1]; end != FrameEnd {
		return nil, &InvalidTerminatorError{Actual: end}
	}
	payload := make([]byte, h.Size)
	copy(payload, wire[HeaderSize:HeaderSize+int(h.Size)])
	return reg.Create(h.Type, h.Channel, payload)
}

// ParseAll decodes every frame in buf, which must hold whole frames only.
// buf is read through a cursor and left untouched. Frames decoded before a
// failure are returned with the error.
func ParseAll(reg *Registry, buf []byte) ([]Frame, error) {
	return ParseAllLimits(reg, buf, Limits{})
}

func ParseAllLimits(reg *Registry, buf []byte, limits Limits) ([]Frame, error) {
	if reg.Len() == 0 {
		return nil, ErrEmptyRegistry
	}
	var frames []Frame
	for off := 0; off < len(buf); {
		rest := buf[off:]
		h, n, complete, err := scan(rest, limits)
		if err != nil {
			return frames, fmt.Errorf("frame at offset %d: %w", off, err)
		}
		if !complete {
			return frames, fmt.Errorf("frame at offset %d: %w", off, truncation(h, rest))
		}
		f, err := build(reg, h, rest[:n])
		if err != nil {
			return frames, fmt.Errorf("frame at offset %d: %w", off, err)
		}
		frames = append(frames, f)
		off += n
	}
	return frames, nil
}

// truncation classifies an incomplete frame at end of input.
func truncation(h RawHeader, rest []byte) error {
	if len(rest) < HeaderSize {
		_, err := DecodeHeader(rest)
		return err
	}
	if got := len(rest) - HeaderSize; got < int(h.Size) {
		return &TruncatedPayloadError{Want: h.Size, Got: got}
	}
	return fmt.Errorf("%w: missing frame end", ErrTruncatedPayload)
}
