package archive

import (
	"errors"
	"testing"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

func TestRoundTripScalars(t *testing.T) {
	w := NewWriter()
	w.PutInt64(-42)
	w.PutUint64(42)
	w.PutInt32(-7)
	w.PutUint32(7)
	w.PutFloat64(3.25)
	w.PutFloat32(1.5)
	w.PutBytes([]byte("hello"))

	r := NewReader(w.Bytes())

	if v, err := r.GetInt64(); err != nil || v != -42 {
		t.Fatalf("GetInt64: %v, %v", v, err)
	}
	if v, err := r.GetUint64(); err != nil || v != 42 {
		t.Fatalf("GetUint64: %v, %v", v, err)
	}
	if v, err := r.GetInt32(); err != nil || v != -7 {
		t.Fatalf("GetInt32: %v, %v", v, err)
	}
	if v, err := r.GetUint32(); err != nil || v != 7 {
		t.Fatalf("GetUint32: %v, %v", v, err)
	}
	if v, err := r.GetFloat64(); err != nil || v != 3.25 {
		t.Fatalf("GetFloat64: %v, %v", v, err)
	}
	if v, err := r.GetFloat32(); err != nil || v != 1.5 {
		t.Fatalf("GetFloat32: %v, %v", v, err)
	}
	b, err := r.GetBytes(5)
	if err != nil || string(b) != "hello" {
		t.Fatalf("GetBytes: %q, %v", b, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected archive fully consumed, %d bytes left", r.Remaining())
	}
}

func TestReadPastEndIsTruncated(t *testing.T) {
	w := NewWriter()
	w.PutInt32(1)
	r := NewReader(w.Bytes())

	if _, err := r.GetInt64(); !errors.Is(err, shuffleerr.ErrDecodeTruncated) {
		t.Fatalf("expected ErrDecodeTruncated, got %v", err)
	}
}
