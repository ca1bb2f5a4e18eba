// Package codec implements the little-endian field encoding shared by the
// versioned binary layouts of persisted solver state.
//
// Every payload starts with a uint32 version tag. Writers append fields to a
// byte slice; the Reader consumes them in order and remembers the first
// failure so decoders can check once at the end.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/rigsolve"
)

// AppendUint32 appends v.
func AppendUint32(buf []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(buf, v)
}

// AppendInt appends v as a signed 32-bit value.
func AppendInt(buf []byte, v int) []byte {
	if v < math.MinInt32 || v > math.MaxInt32 {
		panic(fmt.Sprintf("codec: %d does not fit in 32 bits", v))
	}
	return binary.LittleEndian.AppendUint32(buf, uint32(int32(v)))
}

// AppendFloat64 appends the IEEE-754 bits of v.
func AppendFloat64(buf []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
}

// AppendBool appends v as one byte.
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendFloats appends a length-prefixed float64 slice.
func AppendFloats(buf []byte, vs []float64) []byte {
	buf = AppendInt(buf, len(vs))
	for _, v := range vs {
		buf = AppendFloat64(buf, v)
	}
	return buf
}

// Reader decodes fields written by the Append functions.
type Reader struct {
	data []byte
	off  int
	err  error
}

// NewReader returns a Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Err returns the first decoding failure, wrapped around rigsolve.ErrTruncated
// when the payload ended early.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = fmt.Errorf("codec: reading %s at offset %d: %w", field, r.off, rigsolve.ErrTruncated)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

// Uint32 reads a uint32.
func (r *Reader) Uint32(field string) uint32 {
	b := r.take(4, field)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

// Int reads a signed 32-bit value.
func (r *Reader) Int(field string) int {
	return int(int32(r.Uint32(field)))
}

// Count reads a non-negative length and checks that at least count·elemSize
// bytes remain, so corrupt lengths fail before any allocation.
func (r *Reader) Count(field string, elemSize int) int {
	n := r.Int(field)
	if r.err != nil {
		return 0
	}
	if n < 0 || n*elemSize > r.Remaining() {
		r.err = fmt.Errorf("codec: %s count %d exceeds payload: %w", field, n, rigsolve.ErrTruncated)
		return 0
	}
	return n
}

// Need fails unless at least n bytes remain.
func (r *Reader) Need(field string, n int) {
	if r.err == nil && (n < 0 || n > r.Remaining()) {
		r.err = fmt.Errorf("codec: %s needs %d bytes, %d remain: %w", field, n, r.Remaining(), rigsolve.ErrTruncated)
	}
}

// Float64 reads a float64.
func (r *Reader) Float64(field string) float64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// Bool reads one byte as a bool.
func (r *Reader) Bool(field string) bool {
	b := r.take(1, field)
	return b != nil && b[0] != 0
}

// Floats reads a length-prefixed float64 slice.
func (r *Reader) Floats(field string) []float64 {
	n := r.Count(field, 8)
	if r.err != nil {
		return nil
	}
	vs := make([]float64, n)
	for i := range vs {
		vs[i] = r.Float64(field)
	}
	return vs
}

// Version reads the leading version tag and fails with
// rigsolve.ErrUnknownVersion unless it is one of supported.
func (r *Reader) Version(what string, supported ...uint32) uint32 {
	v := r.Uint32(what + " version")
	if r.err != nil {
		return 0
	}
	for _, s := range supported {
		if v == s {
			return v
		}
	}
	r.err = fmt.Errorf("codec: %s version %d: %w", what, v, rigsolve.ErrUnknownVersion)
	return 0
}
