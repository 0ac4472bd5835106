package stream

import (
	"bytes"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type record struct {
	A uint32
	B float32
	C [3]float32
	D bool
}

func TestRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Tag("Header")
	enc.Value(uint32(7))
	enc.Value(record{A: 1, B: 2.5, C: [3]float32{1, 2, 3}, D: true})
	WriteSlice(enc, []record{{A: 3}, {A: 4, D: true}})
	WriteSlice[uint32](enc, nil)
	enc.String("tail")
	if err := enc.Flush(); err != nil {
		t.Fatal(err)
	}

	dec := NewDecoder(&buf)
	if err := dec.ExpectTag("Header"); err != nil {
		t.Fatal(err)
	}
	var version uint32
	if err := dec.Value(&version); err != nil || version != 7 {
		t.Fatalf("expected version 7; got %d (%v)", version, err)
	}
	var rec record
	if err := dec.Value(&rec); err != nil {
		t.Fatal(err)
	}
	if exp := (record{A: 1, B: 2.5, C: [3]float32{1, 2, 3}, D: true}); rec != exp {
		t.Fatalf("expected %+v; got %+v", exp, rec)
	}
	recs, err := ReadSlice[record](dec, 16)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]record{{A: 3}, {A: 4, D: true}}, recs); diff != "" {
		t.Fatalf("decoded slice differs (-want +got):\n%s", diff)
	}
	empty, err := ReadSlice[uint32](dec, 16)
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty slice; got %v (%v)", empty, err)
	}
	if s, err := dec.String(); err != nil || s != "tail" {
		t.Fatalf(`expected "tail"; got %q (%v)`, s, err)
	}
	if !dec.AtEOF() {
		t.Fatal("expected decoder to be at EOF")
	}
}

func TestTagMismatch(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Tag("Mesh")
	enc.Flush()

	err := NewDecoder(&buf).ExpectTag("Tree")
	if !errors.Is(err, ErrTagMismatch) {
		t.Fatalf("expected error %v; got %v", ErrTagMismatch, err)
	}
}

func TestSliceLimit(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	WriteSlice(enc, make([]uint32, 10))
	enc.Flush()

	if _, err := ReadSlice[uint32](NewDecoder(&buf), 4); err != ErrLengthOverflow {
		t.Fatalf("expected error %v; got %v", ErrLengthOverflow, err)
	}
}

func TestTruncatedStream(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	WriteSlice(enc, make([]uint32, 10))
	enc.Flush()

	data := buf.Bytes()[:12]
	if _, err := ReadSlice[uint32](NewDecoder(bytes.NewReader(data)), 16); err == nil {
		t.Fatal("expected truncated slice to fail")
	}
}
