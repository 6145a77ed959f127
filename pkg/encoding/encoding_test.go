package encoding

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrimitives(t *testing.T) {
	w := NewWriter()
	w.U8(0xAB)
	w.Bool(true)
	w.Bool(false)
	w.U16(0xBEEF)
	w.U32(0xDEADBEEF)
	w.I32(-5)
	w.F32(1.5)
	w.Text("héllo")
	w.Raw([]byte{1, 2, 3})

	r := NewBytesReader(w.Bytes())

	u8, err := r.U8()
	require.NoError(t, err)
	assert.Equal(t, uint8(0xAB), u8)

	b, _ := r.Bool()
	assert.True(t, b)
	b, _ = r.Bool()
	assert.False(t, b)

	u16, _ := r.U16()
	assert.Equal(t, uint16(0xBEEF), u16)
	u32, _ := r.U32()
	assert.Equal(t, uint32(0xDEADBEEF), u32)
	i32, _ := r.I32()
	assert.Equal(t, int32(-5), i32)
	f32, _ := r.F32()
	assert.Equal(t, float32(1.5), f32)

	s, err := r.Text()
	require.NoError(t, err)
	assert.Equal(t, "héllo", s)

	raw, err := r.Bytes(3)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, raw)
	assert.Equal(t, int64(w.Len()), r.Position())
}

func TestLittleEndianLayout(t *testing.T) {
	w := NewWriter()
	w.U32(1)
	w.Text("ab")
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0, 'a', 'b'}, w.Bytes())
}

func TestTruncated(t *testing.T) {
	r := NewBytesReader([]byte{1, 2})
	_, err := r.U32()
	assert.ErrorIs(t, err, ErrTruncated)

	w := NewWriter()
	w.U32(100)
	w.Raw([]byte("short"))
	r = NewBytesReader(w.Bytes())
	_, err = r.Text()
	assert.ErrorIs(t, err, ErrTruncated)

	r = NewBytesReader([]byte{1, 2, 3})
	assert.ErrorIs(t, r.Skip(4), ErrTruncated)
}

func TestSkipKeepsPosition(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte{0, 0, 0, 0, 0, 7, 0, 0, 0}))
	require.NoError(t, r.Skip(5))
	assert.Equal(t, int64(5), r.Position())
	v, err := r.U32()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), v)
}

func TestInvalidUTF8(t *testing.T) {
	w := NewWriter()
	w.U32(2)
	w.Raw([]byte{0xff, 0xfe})
	_, err := NewBytesReader(w.Bytes()).Text()
	assert.ErrorIs(t, err, ErrInvalidString)
}

func TestWriterBufferReuse(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteString("stale")
	w := NewWriterBuffer(&buf)
	w.U8(9)
	assert.Equal(t, []byte{9}, w.Bytes())

	var out bytes.Buffer
	n, err := w.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, []byte{9}, out.Bytes())
}
