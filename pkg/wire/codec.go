// Package wire implements the consensus byte encoding of Stacks transactions,
// post-conditions and Clarity values.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer   = errors.New("wire: unexpected end of input")
	ErrTrailingBytes = errors.New("wire: trailing bytes after value")
	ErrNameTooLong   = errors.New("wire: name exceeds 128 bytes")
)

// MaxNameLength bounds contract, function and asset names.
const MaxNameLength = 128

// Writer appends big-endian fields to a buffer.
type Writer struct {
	buf bytes.Buffer
}

func (w *Writer) Byte(b byte)           { w.buf.WriteByte(b) }
func (w *Writer) Raw(b []byte)          { w.buf.Write(b) }
func (w *Writer) Uint32(v uint32)       { w.buf.Write(binary.BigEndian.AppendUint32(nil, v)) }
func (w *Writer) Uint64(v uint64)       { w.buf.Write(binary.BigEndian.AppendUint64(nil, v)) }
func (w *Writer) Bytes() []byte         { return w.buf.Bytes() }
func (w *Writer) LenPrefixed4(b []byte) { w.Uint32(uint32(len(b))); w.Raw(b) }

// Name writes a 1-byte length prefixed name.
func (w *Writer) Name(s string) error {
	if len(s) > MaxNameLength {
		return fmt.Errorf("%w: %q", ErrNameTooLong, s)
	}
	w.Byte(byte(len(s)))
	w.Raw([]byte(s))
	return nil
}

// Reader consumes big-endian fields from a byte slice.
type Reader struct {
	b   []byte
	off int
}

func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) Len() int    { return len(r.b) - r.off }
func (r *Reader) Offset() int { return r.off }

func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || r.Len() < n {
		return nil, ErrShortBuffer
	}
	out := r.b[r.off : r.off+n]
	r.off += n
	return out, nil
}

func (r *Reader) Byte() (byte, error) {
	b, err := r.Next(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) Uint32() (uint32, error) {
	b, err := r.Next(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

func (r *Reader) Uint64() (uint64, error) {
	b, err := r.Next(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

func (r *Reader) Name() (string, error) {
	n, err := r.Byte()
	if err != nil {
		return "", err
	}
	if int(n) > MaxNameLength {
		return "", ErrNameTooLong
	}
	b, err := r.Next(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *Reader) LenPrefixed4() ([]byte, error) {
	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	return r.Next(int(n))
}

// Done fails if unread bytes remain.
func (r *Reader) Done() error {
	if r.Len() != 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingBytes, r.Len())
	}
	return nil
}
