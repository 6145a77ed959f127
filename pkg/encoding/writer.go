package encoding

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
)

// Writer buffers snapshot primitives in memory.
type Writer struct {
	buf *bytes.Buffer
	tmp [8]byte
}

// NewWriter creates an empty Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// NewWriterBuffer writes into buf, which is reset first.
func NewWriterBuffer(buf *bytes.Buffer) *Writer {
	buf.Reset()
	return &Writer{buf: buf}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// WriteTo copies the buffered bytes to dst.
func (w *Writer) WriteTo(dst io.Writer) (int64, error) {
	n, err := dst.Write(w.buf.Bytes())
	return int64(n), err
}

func (w *Writer) U8(v uint8) {
	w.buf.WriteByte(v)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf.WriteByte(1)
		return
	}
	w.buf.WriteByte(0)
}

func (w *Writer) U16(v uint16) {
	binary.LittleEndian.PutUint16(w.tmp[:2], v)
	w.buf.Write(w.tmp[:2])
}

func (w *Writer) U32(v uint32) {
	binary.LittleEndian.PutUint32(w.tmp[:4], v)
	w.buf.Write(w.tmp[:4])
}

func (w *Writer) I32(v int32) {
	w.U32(uint32(v))
}

func (w *Writer) F32(v float32) {
	w.U32(math.Float32bits(v))
}

// Raw appends data without a length prefix.
func (w *Writer) Raw(data []byte) {
	w.buf.Write(data)
}

// Text writes a u32 length followed by the bytes of s.
func (w *Writer) Text(s string) {
	w.U32(uint32(len(s)))
	w.buf.WriteString(s)
}
