// Package encoding implements the little-endian primitives of the world
// snapshot format: fixed-width integers, 32-bit floats, single-byte booleans
// and u32-length-prefixed strings.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

var (
	// ErrTruncated is returned when the stream ends before a field is complete.
	ErrTruncated = errors.New("truncated stream")
	// ErrInvalidString is returned for strings that are not valid UTF-8.
	ErrInvalidString = errors.New("invalid UTF-8 string")
)

// Reader reads snapshot primitives from an io.Reader and tracks the position.
type Reader struct {
	r   io.Reader
	pos int64
	buf [8]byte
}

// NewReader wraps r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// NewBytesReader reads from an in-memory buffer.
func NewBytesReader(data []byte) *Reader {
	return &Reader{r: bytes.NewReader(data)}
}

// Position returns the number of bytes consumed so far.
func (r *Reader) Position() int64 {
	return r.pos
}

func (r *Reader) fill(n int) ([]byte, error) {
	got, err := io.ReadFull(r.r, r.buf[:n])
	r.pos += int64(got)
	if err != nil {
		return nil, r.wrap(err)
	}
	return r.buf[:n], nil
}

// U8 reads one byte.
func (r *Reader) U8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Bool reads a one-byte boolean. Any non-zero byte is true.
func (r *Reader) Bool() (bool, error) {
	b, err := r.U8()
	return b != 0, err
}

// U16 reads a little-endian uint16.
func (r *Reader) U16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (r *Reader) U32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// I32 reads a little-endian int32.
func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

// F32 reads a little-endian IEEE-754 float32.
func (r *Reader) F32() (float32, error) {
	v, err := r.U32()
	return math.Float32frombits(v), err
}

// Bytes reads exactly n bytes. The buffer grows with the data actually
// received, so a corrupt length cannot force a huge allocation up front.
func (r *Reader) Bytes(n uint32) ([]byte, error) {
	var buf bytes.Buffer
	got, err := io.CopyN(&buf, r.r, int64(n))
	r.pos += got
	if err != nil {
		return nil, r.wrap(err)
	}
	return buf.Bytes(), nil
}

// Text reads a u32 length followed by that many UTF-8 bytes.
func (r *Reader) Text() (string, error) {
	n, err := r.U32()
	if err != nil {
		return "", err
	}
	b, err := r.Bytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", r.wrap(ErrInvalidString)
	}
	return string(b), nil
}

// Skip discards exactly n bytes.
func (r *Reader) Skip(n uint32) error {
	got, err := io.CopyN(io.Discard, r.r, int64(n))
	r.pos += got
	if err != nil {
		return r.wrap(err)
	}
	return nil
}

func (r *Reader) wrap(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		err = ErrTruncated
	}
	return fmt.Errorf("at offset %d: %w", r.pos, err)
}
