// Package stream implements the tagged binary layout used by saved scenes:
// every section starts with a type-name tag, followed by fixed-layout
// values and length-prefixed arrays in little-endian byte order.
package stream

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrTagMismatch    = errors.New("stream: tag mismatch")
	ErrLengthOverflow = errors.New("stream: length prefix exceeds limit")
)

// Longest accepted tag or string.
const maxStringLen = 1 << 16

var byteOrder = binary.LittleEndian

// Encoder writes a tagged stream. The first error is sticky and returned by
// every later call and by Flush.
type Encoder struct {
	w   *bufio.Writer
	err error
}

// Create an encoder writing to w. Call Flush when done.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Tag starts a section.
func (e *Encoder) Tag(name string) error {
	return e.String(name)
}

// String writes a length-prefixed string.
func (e *Encoder) String(s string) error {
	if e.err != nil {
		return e.err
	}
	if len(s) > maxStringLen {
		e.err = ErrLengthOverflow
		return e.err
	}
	if e.err = binary.Write(e.w, byteOrder, uint32(len(s))); e.err == nil {
		_, e.err = e.w.WriteString(s)
	}
	return e.err
}

// Value writes a fixed-layout value.
func (e *Encoder) Value(v interface{}) error {
	if e.err != nil {
		return e.err
	}
	e.err = binary.Write(e.w, byteOrder, v)
	return e.err
}

// Flush writes any buffered data.
func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	e.err = e.w.Flush()
	return e.err
}

// WriteSlice writes a length-prefixed array of fixed-layout values.
func WriteSlice[T any](e *Encoder, s []T) error {
	if err := e.Value(uint64(len(s))); err != nil || len(s) == 0 {
		return err
	}
	return e.Value(s)
}

// Decoder reads a tagged stream written by Encoder.
type Decoder struct {
	r *bufio.Reader
}

// Create a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// ExpectTag reads a section tag and fails unless it equals name.
func (d *Decoder) ExpectTag(name string) error {
	tag, err := d.String()
	if err != nil {
		return err
	}
	if tag != name {
		return fmt.Errorf("%w: expected %q; got %q", ErrTagMismatch, name, tag)
	}
	return nil
}

// String reads a length-prefixed string.
func (d *Decoder) String() (string, error) {
	var n uint32
	if err := binary.Read(d.r, byteOrder, &n); err != nil {
		return "", err
	}
	if n > maxStringLen {
		return "", ErrLengthOverflow
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Value reads a fixed-layout value into the value pointed to by v.
func (d *Decoder) Value(v interface{}) error {
	return binary.Read(d.r, byteOrder, v)
}

// AtEOF returns true if no more data is available.
func (d *Decoder) AtEOF() bool {
	_, err := d.r.Peek(1)
	return err == io.EOF
}

// ReadSlice reads a length-prefixed array with at most limit elements.
func ReadSlice[T any](d *Decoder, limit uint64) ([]T, error) {
	var n uint64
	if err := d.Value(&n); err != nil {
		return nil, err
	}
	if n > limit {
		return nil, ErrLengthOverflow
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]T, n)
	if err := d.Value(out); err != nil {
		return nil, err
	}
	return out, nil
}
