package frame

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Constructor builds a frame variant from its payload. It owns all payload
// interpretation; the payload slice is not shared with any buffer.
type Constructor func(channel uint16, payload []byte) (Frame, error)

// Registry maps frame type octets to constructors. It is configured once
// before parsing starts and is read-only afterwards.
type Registry struct {
	mu    sync.RWMutex
	items map[Type]Constructor
}

func NewRegistry() *Registry {
	return &Registry{items: make(map[Type]Constructor)}
}

// StandardConstructor returns the built-in constructor for an AMQP 0-9-1 frame type.
func StandardConstructor(t Type) (Constructor, bool) {
	switch t {
	case TypeMethod:
		return DecodeMethodFrame, true
	case TypeHeader:
		return DecodeHeaderFrame, true
	case TypeBody:
		return DecodeBodyFrame, true
	case TypeHeartbeat:
		return DecodeHeartbeatFrame, true
	default:
		return nil, false
	}
}

// NewStandardRegistry registers the method, header, body and heartbeat variants.
func NewStandardRegistry() *Registry {
	r := NewRegistry()
	for _, t := range []Type{TypeMethod, TypeHeader, TypeBody, TypeHeartbeat} {
		c, _ := StandardConstructor(t)
		r.items[t] = c
	}
	return r
}

func (r *Registry) Register(t Type, c Constructor) error {
	if c == nil {
		return ErrConstructorNil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t]; ok {
		return fmt.Errorf("%w: %s", ErrTypeRegistered, t)
	}
	r.items[t] = c
	log.Debug().Uint8("frame_type", uint8(t)).Msg("frame.Registry registered constructor")
	return nil
}

func (r *Registry) Lookup(t Type) (Constructor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.items[t]
	return c, ok
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Types returns the registered types in ascending order.
func (r *Registry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Type, 0, len(r.items))
	for t := range r.items {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Create dispatches to the constructor registered for t. No partial frame
// is ever returned alongside an error.
func (r *Registry) Create(t Type, channel uint16, payload []byte) (Frame, error) {
	r.mu.RLock()
	c, ok := r.items[t]
	empty := len(r.items) == 0
	r.mu.RUnlock()
	if empty {
		return nil, ErrEmptyRegistry
	}
	if !ok {
		return nil, &UnknownFrameTypeError{Type: t}
	}
	f, err := c(channel, payload)
	if err != nil {
		return nil, fmt.Errorf("frame: decode %s payload on channel %d: %w", t, channel, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: registered for %s, got nil", ErrTypeMismatch, t)
	}
	if f.Type() != t {
		return nil, fmt.Errorf("%w: registered for %s, got %s", ErrTypeMismatch, t, f.Type())
	}
	return f, nil
}
