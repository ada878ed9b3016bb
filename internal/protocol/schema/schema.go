package schema

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/amqpwire/internal/protocol/frame"
	"github.com/rs/zerolog/log"
)

//go:embed amqp0-9-1.toml
var defaultSpec []byte

// FrameTypeSpec names one frame type octet.
type FrameTypeSpec struct {
	ID   uint8  `toml:"id" json:"id"`
	Name string `toml:"name" json:"name"`
}

type MethodSpec struct {
	ID      uint16 `toml:"id" json:"id"`
	Name    string `toml:"name" json:"name"`
	Content bool   `toml:"content" json:"content,omitempty"`
}

type ClassSpec struct {
	ID      uint16       `toml:"id" json:"id"`
	Name    string       `toml:"name" json:"name"`
	Methods []MethodSpec `toml:"methods" json:"methods"`
}

// Spec is a loaded protocol description: which frame types exist and how
// class and method ids are named.
type Spec struct {
	Name         string          `toml:"name" json:"name"`
	Major        uint8           `toml:"major" json:"major"`
	Minor        uint8           `toml:"minor" json:"minor"`
	Revision     uint8           `toml:"revision" json:"revision"`
	FrameEnd     uint8           `toml:"frame_end" json:"frame_end"`
	FrameMinSize uint32          `toml:"frame_min_size" json:"frame_min_size"`
	FrameTypes   []FrameTypeSpec `toml:"frame_types" json:"frame_types"`
	Classes      []ClassSpec     `toml:"classes" json:"classes"`

	classes map[uint16]int
	methods map[uint32]int
}

type ValidationError struct {
	Section string
	ID      uint32
	Reason  string
}

func (e ValidationError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("schema: %s", e.Reason)
	}
	return fmt.Sprintf("schema: %s id=%d: %s", e.Section, e.ID, e.Reason)
}

// Default returns the embedded AMQP 0-9-1 description.
func Default() (*Spec, error) {
	return Parse(defaultSpec)
}

// Load reads a protocol description file. Keys the Spec does not know are rejected.
func Load(path string) (*Spec, error) {
	var s Spec
	meta, err := toml.DecodeFile(path, &s)
	if err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", path, err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("schema load failed (%s): %w", path, err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	log.Debug().Str("path", path).Int("classes", len(s.Classes)).Msg("schema.Load ok")
	return &s, nil
}

func Parse(data []byte) (*Spec, error) {
	var s Spec
	meta, err := toml.Decode(string(data), &s)
	if err != nil {
		return nil, fmt.Errorf("schema parse failed: %w", err)
	}
	if err := checkUndecoded(meta); err != nil {
		return nil, fmt.Errorf("schema parse failed: %w", err)
	}
	if err := s.index(); err != nil {
		return nil, err
	}
	return &s, nil
}

func checkUndecoded(meta toml.MetaData) error {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, 0, len(undecoded))
	for _, k := range undecoded {
		keys = append(keys, k.String())
	}
	return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
}

func methodKey(classID, methodID uint16) uint32 {
	return uint32(classID)<<16 | uint32(methodID)
}

func (s *Spec) index() error {
	if s.FrameEnd != frame.FrameEnd {
		log.Error().Uint8("frame_end", s.FrameEnd).Msg("schema.index frame_end mismatch")
		return ValidationError{Reason: fmt.Sprintf("frame_end %d, this codec only speaks %d", s.FrameEnd, frame.FrameEnd)}
	}
	if len(s.FrameTypes) == 0 {
		return ValidationError{Reason: "no frame_types"}
	}
	seenTypes := make(map[uint8]bool, len(s.FrameTypes))
	for _, ft := range s.FrameTypes {
		if seenTypes[ft.ID] {
			return ValidationError{Section: "frame_types", ID: uint32(ft.ID), Reason: "duplicate id"}
		}
		seenTypes[ft.ID] = true
		if _, ok := frame.StandardConstructor(frame.Type(ft.ID)); !ok {
			return ValidationError{Section: "frame_types", ID: uint32(ft.ID), Reason: "no frame variant for this type"}
		}
		if strings.TrimSpace(ft.Name) == "" {
			return ValidationError{Section: "frame_types", ID: uint32(ft.ID), Reason: "missing name"}
		}
	}

	s.classes = make(map[uint16]int, len(s.Classes))
	s.methods = make(map[uint32]int)
	for ci, c := range s.Classes {
		if _, ok := s.classes[c.ID]; ok {
			return ValidationError{Section: "classes", ID: uint32(c.ID), Reason: "duplicate id"}
		}
		if strings.TrimSpace(c.Name) == "" {
			return ValidationError{Section: "classes", ID: uint32(c.ID), Reason: "missing name"}
		}
		s.classes[c.ID] = ci
		for mi, m := range c.Methods {
			key := methodKey(c.ID, m.ID)
			if _, ok := s.methods[key]; ok {
				return ValidationError{Section: c.Name + ".methods", ID: uint32(m.ID), Reason: "duplicate id"}
			}
			if strings.TrimSpace(m.Name) == "" {
				return ValidationError{Section: c.Name + ".methods", ID: uint32(m.ID), Reason: "missing name"}
			}
			s.methods[key] = mi
		}
	}
	return nil
}

// Registry builds a frame registry holding a constructor for every
// described frame type.
func (s *Spec) Registry() (*frame.Registry, error) {
	reg := frame.NewRegistry()
	for _, ft := range s.FrameTypes {
		c, ok := frame.StandardConstructor(frame.Type(ft.ID))
		if !ok {
			return nil, ValidationError{Section: "frame_types", ID: uint32(ft.ID), Reason: "no frame variant for this type"}
		}
		if err := reg.Register(frame.Type(ft.ID), c); err != nil {
			return nil, err
		}
	}
	log.Debug().Str("protocol", s.Version()).Int("frame_types", reg.Len()).Msg("schema.Registry ready")
	return reg, nil
}

// Version renders the protocol name and version, e.g. "amqp 0-9-1".
func (s *Spec) Version() string {
	return fmt.Sprintf("%s %d-%d-%d", s.Name, s.Major, s.Minor, s.Revision)
}

// ProtocolHeader is the 8-byte preamble a client sends before any frame.
func (s *Spec) ProtocolHeader() []byte {
	return []byte{'A', 'M', 'Q', 'P', 0, s.Major, s.Minor, s.Revision}
}

func (s *Spec) FrameTypeName(t frame.Type) string {
	for _, ft := range s.FrameTypes {
		if ft.ID == uint8(t) {
			return ft.Name
		}
	}
	return t.String()
}

func (s *Spec) Class(id uint16) (ClassSpec, bool) {
	i, ok := s.classes[id]
	if !ok {
		return ClassSpec{}, false
	}
	return s.Classes[i], true
}

func (s *Spec) Method(classID, methodID uint16) (MethodSpec, bool) {
	c, ok := s.Class(classID)
	if !ok {
		return MethodSpec{}, false
	}
	i, ok := s.methods[methodKey(classID, methodID)]
	if !ok {
		return MethodSpec{}, false
	}
	return c.Methods[i], true
}

// MethodName returns "class.method", falling back to numeric ids.
func (s *Spec) MethodName(classID, methodID uint16) string {
	c, ok := s.Class(classID)
	if !ok {
		return fmt.Sprintf("class(%d).method(%d)", classID, methodID)
	}
	m, ok := s.Method(classID, methodID)
	if !ok {
		return fmt.Sprintf("%s.method(%d)", c.Name, methodID)
	}
	return c.Name + "." + m.Name
}

// HasContent reports whether the method is followed by a content header and bodies.
func (s *Spec) HasContent(classID, methodID uint16) bool {
	m, ok := s.Method(classID, methodID)
	return ok && m.Content
}

// Describe renders a one-line summary of f for logs and the decode command.
func (s *Spec) Describe(f frame.Frame) string {
	switch v := f.(type) {
	case *frame.MethodFrame:
		line := fmt.Sprintf("method ch=%d %s args=%d", v.Channel(), s.MethodName(v.ClassID, v.MethodID), len(v.Args()))
		if s.HasContent(v.ClassID, v.MethodID) {
			line += " +content"
		}
		return line
	case *frame.HeaderFrame:
		class := fmt.Sprintf("class(%d)", v.ClassID)
		if c, ok := s.Class(v.ClassID); ok {
			class = c.Name
		}
		return fmt.Sprintf("header ch=%d class=%s body_size=%d flags=0x%04x", v.Channel(), class, v.BodySize, v.PropertyFlags)
	case *frame.BodyFrame:
		return fmt.Sprintf("body ch=%d size=%d", v.Channel(), len(v.Body()))
	case *frame.HeartbeatFrame:
		return fmt.Sprintf("heartbeat ch=%d", v.Channel())
	default:
		return fmt.Sprintf("%s ch=%d size=%d", s.FrameTypeName(f.Type()), f.Channel(), len(f.Payload()))
	}
}

// MethodIDs lists every described (class, method) pair in ascending order.
func (s *Spec) MethodIDs() [][2]uint16 {
	out := make([][2]uint16, 0, len(s.methods))
	for key := range s.methods {
		out = append(out, [2]uint16{uint16(key >> 16), uint16(key)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}
