// Package archive implements the append-only byte buffer used to carry one
// batch-fragment's encoded rows. An Archive is single-use: a Writer is
// filled by the codec and handed to the transport; a Reader consumes it
// once on the receiving side.
//
// Integer and float widths are written in the machine's native byte order —
// the engine does not byte-swap.
package archive

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arrowshuffle/shuffle/pkg/shuffleerr"
)

// Writer accumulates encoded row bytes for a single archive.
type Writer struct {
	buf []byte
}

// NewWriter creates an empty archive writer.
func NewWriter() *Writer {
	return &Writer{}
}

// NewWriterWithCapacity creates an archive writer with a pre-sized backing
// buffer, to avoid repeated reallocation for large batches.
func NewWriterWithCapacity(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Bytes returns the accumulated archive. The Writer must not be used again
// after this call.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) grow(n int) []byte {
	off := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[off : off+n]
}

// PutInt64 appends a native-endian int64.
func (w *Writer) PutInt64(v int64) {
	binary.NativeEndian.PutUint64(w.grow(8), uint64(v))
}

// PutUint64 appends a native-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	binary.NativeEndian.PutUint64(w.grow(8), v)
}

// PutInt32 appends a native-endian int32.
func (w *Writer) PutInt32(v int32) {
	binary.NativeEndian.PutUint32(w.grow(4), uint32(v))
}

// PutUint32 appends a native-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	binary.NativeEndian.PutUint32(w.grow(4), v)
}

// PutFloat64 appends a native-endian float64 bit pattern.
func (w *Writer) PutFloat64(v float64) {
	binary.NativeEndian.PutUint64(w.grow(8), math.Float64bits(v))
}

// PutFloat32 appends a native-endian float32 bit pattern.
func (w *Writer) PutFloat32(v float32) {
	binary.NativeEndian.PutUint32(w.grow(4), math.Float32bits(v))
}

// PutBytes appends raw bytes verbatim (used for large_utf8 payloads after
// their length prefix).
func (w *Writer) PutBytes(b []byte) {
	copy(w.grow(len(b)), b)
}

// Reader consumes an archive sequentially; each Get* call advances the
// cursor. Running past the end of the buffer is fatal.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps an archive's bytes for sequential decoding.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left to read.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

func (r *Reader) take(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", shuffleerr.ErrDecodeTruncated, n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// GetInt64 reads a native-endian int64.
func (r *Reader) GetInt64() (int64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.NativeEndian.Uint64(b)), nil
}

// GetUint64 reads a native-endian uint64.
func (r *Reader) GetUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint64(b), nil
}

// GetInt32 reads a native-endian int32.
func (r *Reader) GetInt32() (int32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.NativeEndian.Uint32(b)), nil
}

// GetUint32 reads a native-endian uint32.
func (r *Reader) GetUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(b), nil
}

// GetFloat64 reads a native-endian float64.
func (r *Reader) GetFloat64() (float64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.NativeEndian.Uint64(b)), nil
}

// GetFloat32 reads a native-endian float32.
func (r *Reader) GetFloat32() (float32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.NativeEndian.Uint32(b)), nil
}

// GetBytes reads n raw bytes verbatim. The returned slice aliases the
// reader's backing buffer and must not be retained past the archive's
// lifetime without copying.
func (r *Reader) GetBytes(n int) ([]byte, error) {
	return r.take(n)
}
