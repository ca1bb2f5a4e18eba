package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/rigsolve"
)

func TestRoundTrip(t *testing.T) {
	var buf []byte
	buf = AppendUint32(buf, 2)
	buf = AppendInt(buf, -7)
	buf = AppendFloat64(buf, 1.25)
	buf = AppendBool(buf, true)
	buf = AppendFloats(buf, []float64{1, 2, 3})

	r := NewReader(buf)
	assert.Equal(t, uint32(2), r.Version("test", 1, 2))
	assert.Equal(t, -7, r.Int("i"))
	assert.Equal(t, 1.25, r.Float64("f"))
	assert.True(t, r.Bool("b"))
	assert.Equal(t, []float64{1, 2, 3}, r.Floats("fs"))
	require.NoError(t, r.Err())
	assert.Zero(t, r.Remaining())
}

func TestUnknownVersion(t *testing.T) {
	r := NewReader(AppendUint32(nil, 9))
	r.Version("test", 1)
	assert.ErrorIs(t, r.Err(), rigsolve.ErrUnknownVersion)
}

func TestTruncated(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
		read func(r *Reader)
	}{
		{"short float", []byte{1, 2, 3}, func(r *Reader) { r.Float64("f") }},
		{"empty version", nil, func(r *Reader) { r.Version("x", 1) }},
		{"count beyond payload", AppendInt(nil, 1000), func(r *Reader) { r.Floats("fs") }},
		{"negative count", AppendInt(nil, -1), func(r *Reader) { r.Count("n", 1) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(tt.buf)
			tt.read(r)
			assert.ErrorIs(t, r.Err(), rigsolve.ErrTruncated)
		})
	}
}

func TestStickyError(t *testing.T) {
	r := NewReader([]byte{1})
	r.Uint32("a")
	first := r.Err()
	require.Error(t, first)
	r.Uint32("b")
	assert.Same(t, first, r.Err(), "Reader should keep the first error")
}

func TestAppendIntOverflowPanics(t *testing.T) {
	assert.Panics(t, func() { AppendInt(nil, 1<<40) })
}
