package frame

import (
	"errors"
	"testing"

	"github.com/danmuck/amqpwire/internal/testutil/testlog"
)

func TestRegistryRegisterAndCreate(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	if err := reg.Register(TypeBody, DecodeBodyFrame); err != nil {
		t.Fatalf("register: %v", err)
	}
	f, err := reg.Create(TypeBody, 4, []byte("x"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok := f.(*BodyFrame); !ok || f.Channel() != 4 {
		t.Fatalf("unexpected frame %T ch=%d", f, f.Channel())
	}
}

func TestRegistryRejectsDuplicateAndNil(t *testing.T) {
	testlog.Start(t)
	reg := NewStandardRegistry()
	if err := reg.Register(TypeBody, DecodeBodyFrame); !errors.Is(err, ErrTypeRegistered) {
		t.Fatalf("expected ErrTypeRegistered, got %v", err)
	}
	if err := reg.Register(Type(4), nil); !errors.Is(err, ErrConstructorNil) {
		t.Fatalf("expected ErrConstructorNil, got %v", err)
	}
}

func TestRegistryUnknownTypeReturnsNoFrame(t *testing.T) {
	testlog.Start(t)
	f, err := NewStandardRegistry().Create(Type(9), 0, nil)
	if !errors.Is(err, ErrUnknownFrameType) {
		t.Fatalf("expected ErrUnknownFrameType, got %v", err)
	}
	var ut *UnknownFrameTypeError
	if !errors.As(err, &ut) || ut.Type != 9 {
		t.Fatalf("expected type 9 in error, got %v", err)
	}
	if f != nil {
		t.Fatalf("expected nil frame, got %T", f)
	}
}

func TestRegistryEmptyFailsFast(t *testing.T) {
	testlog.Start(t)
	if _, err := NewRegistry().Create(TypeMethod, 0, []byte{0, 10, 0, 10}); !errors.Is(err, ErrEmptyRegistry) {
		t.Fatalf("expected ErrEmptyRegistry, got %v", err)
	}
}

func TestRegistryTypeMismatch(t *testing.T) {
	testlog.Start(t)
	reg := NewRegistry()
	if err := reg.Register(Type(4), DecodeBodyFrame); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := reg.Create(Type(4), 0, nil); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	testlog.Start(t)
	got := NewStandardRegistry().Types()
	want := []Type{TypeMethod, TypeHeader, TypeBody, TypeHeartbeat}
	if len(got) != len(want) {
		t.Fatalf("types=%v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("types=%v want=%v", got, want)
		}
	}
}

func TestRegistriesAreIndependent(t *testing.T) {
	testlog.Start(t)
	a := NewRegistry()
	b := NewRegistry()
	if err := a.Register(TypeBody, DecodeBodyFrame); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := b.Lookup(TypeBody); ok {
		t.Fatalf("registration leaked across registries")
	}
}
