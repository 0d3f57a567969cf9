package counter

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	longBytes   = 8
	doubleBytes = 8

	// EncodedSize is the length of the binary form of a Counter.
	EncodedSize = longBytes + 4*doubleBytes

	nOffset   = 0
	m2Offset  = longBytes
	sumOffset = longBytes + doubleBytes*1
	minOffset = longBytes + doubleBytes*2
	maxOffset = longBytes + doubleBytes*3
)

// ErrMalformedEncoding is returned when decoding bytes that are not a valid
// Counter encoding.
var ErrMalformedEncoding = errors.New("malformed counter encoding")

// ToBytes returns the fixed-size big-endian encoding of c.
func (c *Counter) ToBytes() []byte {
	b := make([]byte, EncodedSize)
	c.put(b)
	return b
}

func (c *Counter) put(b []byte) {
	binary.BigEndian.PutUint64(b[nOffset:], c.n)
	binary.BigEndian.PutUint64(b[m2Offset:], math.Float64bits(c.m2))
	binary.BigEndian.PutUint64(b[sumOffset:], math.Float64bits(c.sum))
	binary.BigEndian.PutUint64(b[minOffset:], math.Float64bits(c.min))
	binary.BigEndian.PutUint64(b[maxOffset:], math.Float64bits(c.max))
}

func decode(b []byte) (n uint64, m2, sum, lo, hi float64, err error) {
	if len(b) != EncodedSize {
		return 0, 0, 0, 0, 0, fmt.Errorf("%w: expected %d bytes, got %d", ErrMalformedEncoding, EncodedSize, len(b))
	}
	n = binary.BigEndian.Uint64(b[nOffset:])
	m2 = math.Float64frombits(binary.BigEndian.Uint64(b[m2Offset:]))
	sum = math.Float64frombits(binary.BigEndian.Uint64(b[sumOffset:]))
	lo = math.Float64frombits(binary.BigEndian.Uint64(b[minOffset:]))
	hi = math.Float64frombits(binary.BigEndian.Uint64(b[maxOffset:]))
	return n, m2, sum, lo, hi, nil
}

// FromBytes replaces the state of c with the decoded bytes.
// On error c is left untouched.
func (c *Counter) FromBytes(b []byte) error {
	n, m2, sum, lo, hi, err := decode(b)
	if err != nil {
		return err
	}
	c.n, c.m2, c.sum, c.min, c.max = n, m2, sum, lo, hi
	return nil
}

// MergeBytes decodes a peer counter and merges it into c.
// On error c is left untouched.
func (c *Counter) MergeBytes(b []byte) error {
	n, m2, sum, lo, hi, err := decode(b)
	if err != nil {
		return err
	}
	c.merge(n, m2, sum, lo, hi)
	return nil
}

// Decode returns a new Counter from its binary form.
func Decode(b []byte) (*Counter, error) {
	c := New()
	if err := c.FromBytes(b); err != nil {
		return nil, err
	}
	return c, nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c *Counter) MarshalBinary() ([]byte, error) {
	return c.ToBytes(), nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Counter) UnmarshalBinary(b []byte) error {
	return c.FromBytes(b)
}

// WriteTo writes the binary form of c to w.
func (c *Counter) WriteTo(w io.Writer) (int64, error) {
	var b [EncodedSize]byte
	c.put(b[:])
	n, err := w.Write(b[:])
	return int64(n), err
}

// ReadFrom reads exactly EncodedSize bytes from r and replaces the state of c.
func (c *Counter) ReadFrom(r io.Reader) (int64, error) {
	var b [EncodedSize]byte
	n, err := io.ReadFull(r, b[:])
	if err != nil {
		return int64(n), fmt.Errorf("%w: %w", ErrMalformedEncoding, err)
	}
	return int64(n), c.FromBytes(b[:])
}
