package frame

import (
	"errors"
)

// Reader decodes frames from byte chunks that arrive over time. It keeps
// the bytes of at most one partially received frame between calls.
//
// A Reader belongs to one connection and is not safe for concurrent use.
type Reader struct {
	reg    *Registry
	limits Limits
	buf    []byte
	off    int
	err    error
}

type ReaderOption func(*Reader)

func WithLimits(l Limits) ReaderOption {
	return func(r *Reader) { r.limits = l }
}

// WithBufferSize sets the initial capacity of the pending buffer.
func WithBufferSize(n int) ReaderOption {
	return func(r *Reader) {
		if n > 0 {
			r.buf = make([]byte, 0, n)
		}
	}
}

func NewReader(reg *Registry, opts ...ReaderOption) *Reader {
	r := &Reader{reg: reg}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Feed appends p, which may be empty, and returns every frame that is now
// complete, in wire order.
//
// An invalid frame end or an oversized header leaves the stream
// desynchronized: the Reader keeps that error and returns it from every
// later call until Reset. Constructor and unknown-type errors consume only
// the offending frame; frames still buffered behind it are returned by the
// next Feed.
//
// With an empty registry p is still buffered and ErrEmptyRegistry is
// returned; the bytes decode on the first Feed after a Register.
func (r *Reader) Feed(p []byte) ([]Frame, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.append(p)
	if r.reg.Len() == 0 {
		return nil, ErrEmptyRegistry
	}

	var frames []Frame
	for {
		pending := r.buf[r.off:]
		h, n, complete, err := scan(pending, r.limits)
		if err != nil {
			r.err = err
			return frames, err
		}
		if !complete {
			break
		}
		f, err := build(r.reg, h, pending[:n])
		if err != nil {
			var term *InvalidTerminatorError
			if errors.As(err, &term) {
				r.err = err
				return frames, err
			}
			r.consume(n)
			return frames, err
		}
		r.consume(n)
		frames = append(frames, f)
	}
	return frames, nil
}

// Buffered reports the number of bytes held for a frame not yet complete.
func (r *Reader) Buffered() int {
	return len(r.buf) - r.off
}

// Err returns the error that stopped the stream, if any.
func (r *Reader) Err() error {
	return r.err
}

// Reset discards pending bytes and any stored stream error.
func (r *Reader) Reset() {
	r.buf = r.buf[:0]
	r.off = 0
	r.err = nil
}

func (r *Reader) consume(n int) {
	r.off += n
	if r.off == len(r.buf) {
		r.buf = r.buf[:0]
		r.off = 0
	}
}

// append compacts the consumed prefix when it covers more than half of the
// backing array or when the backing array would otherwise have to grow.
func (r *Reader) append(p []byte) {
	if len(p) == 0 {
		return
	}
	if r.off > 0 && (r.off > cap(r.buf)/2 || len(r.buf)+len(p) > cap(r.buf)) {
		n := copy(r.buf, r.buf[r.off:])
		r.buf = r.buf[:n]
		r.off = 0
	}
	r.buf = append(r.buf, p...)
}
