package cbor

import (
	"errors"
	"fmt"
)

// ErrDecode is the sentinel all decode failures wrap. Callers match it with
// errors.Is and treat any occurrence as malformed input.
var ErrDecode = errors.New("cbor decode error")

// Major types, per RFC 8949 §3.
const (
	majorUnsigned   = 0
	majorNegative   = 1
	majorByteString = 2
	majorTextString = 3
	majorArray      = 4
	majorMap        = 5
	majorTag        = 6
	majorSimple     = 7
)

// Simple values (major type 7).
const (
	simpleFalse = 20
	simpleTrue  = 21
	simpleNull  = 22
)

// cursor is a bounds-checked reader over the input buffer. Every read
// reports an error instead of panicking, so a partial parse of truncated
// input surfaces as ErrDecode rather than a slice-bounds fault.
type cursor struct {
	buf []byte
	off int
}

func (c *cursor) remaining() int {
	return len(c.buf) - c.off
}

func (c *cursor) readUint8() (byte, error) {
	if c.remaining() < 1 {
		return 0, fmt.Errorf("%w: unexpected end of input at offset %d", ErrDecode, c.off)
	}
	b := c.buf[c.off]
	c.off++
	return b, nil
}

func (c *cursor) readBytes(n int) ([]byte, error) {
	if n < 0 || c.remaining() < n {
		return nil, fmt.Errorf("%w: declared length %d exceeds remaining %d bytes", ErrDecode, n, c.remaining())
	}
	b := c.buf[c.off : c.off+n]
	c.off += n
	return b, nil
}

// readUint reads the unsigned argument for an item head. Additional-info
// values 0..23 encode the argument directly; 24..27 select a 1/2/4/8-byte
// big-endian extension.
func (c *cursor) readUint(ai byte) (uint64, error) {
	switch {
	case ai < 24:
		return uint64(ai), nil
	case ai == 24:
		b, err := c.readUint8()
		return uint64(b), err
	case ai == 25:
		b, err := c.readBytes(2)
		if err != nil {
			return 0, err
		}
		return uint64(b[0])<<8 | uint64(b[1]), nil
	case ai == 26:
		b, err := c.readBytes(4)
		if err != nil {
			return 0, err
		}
		return uint64(b[0])<<24 | uint64(b[1])<<16 | uint64(b[2])<<8 | uint64(b[3]), nil
	case ai == 27:
		b, err := c.readBytes(8)
		if err != nil {
			return 0, err
		}
		var v uint64
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
		return v, nil
	default:
		// 28..30 reserved, 31 indefinite-length: neither appears in
		// authenticator output.
		return 0, fmt.Errorf("%w: unsupported additional info %d", ErrDecode, ai)
	}
}

// Decode decodes a single item from buf starting at off and returns the
// value along with the offset of the first byte after the item. The consumed
// length is how callers locate data that trails an embedded item, such as
// the COSE key at the end of attested credential data.
func Decode(buf []byte, off int) (any, int, error) {
	if off < 0 || off > len(buf) {
		return nil, off, fmt.Errorf("%w: offset %d out of range", ErrDecode, off)
	}
	c := &cursor{buf: buf, off: off}
	v, err := decodeItem(c, 0)
	if err != nil {
		return nil, off, err
	}
	return v, c.off, nil
}

// maxNesting bounds recursion so adversarial input cannot exhaust the stack.
const maxNesting = 32

func decodeItem(c *cursor, depth int) (any, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("%w: nesting depth exceeds %d", ErrDecode, maxNesting)
	}

	head, err := c.readUint8()
	if err != nil {
		return nil, err
	}
	major := head >> 5
	ai := head & 0x1f

	switch major {
	case majorUnsigned:
		n, err := c.readUint(ai)
		if err != nil {
			return nil, err
		}
		if n > 1<<63-1 {
			return nil, fmt.Errorf("%w: unsigned value %d overflows int64", ErrDecode, n)
		}
		return int64(n), nil

	case majorNegative:
		n, err := c.readUint(ai)
		if err != nil {
			return nil, err
		}
		if n > 1<<63-1 {
			return nil, fmt.Errorf("%w: negative value -1-%d overflows int64", ErrDecode, n)
		}
		return -1 - int64(n), nil

	case majorByteString:
		n, err := c.readUint(ai)
		if err != nil {
			return nil, err
		}
		if n > uint64(c.remaining()) {
			return nil, fmt.Errorf("%w: byte string length %d exceeds remaining %d bytes", ErrDecode, n, c.remaining())
		}
		b, err := c.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		out := make([]byte, len(b))
		copy(out, b)
		return out, nil

	case majorTextString:
		n, err := c.readUint(ai)
		if err != nil {
			return nil, err
		}
		if n > uint64(c.remaining()) {
			return nil, fmt.Errorf("%w: text string length %d exceeds remaining %d bytes", ErrDecode, n, c.remaining())
		}
		b, err := c.readBytes(int(n))
		if err != nil {
			return nil, err
		}
		return string(b), nil

	case majorArray:
		n, err := c.readUint(ai)
		if err != nil {
			return nil, err
		}
		if n > uint64(c.remaining()) {
			return nil, fmt.Errorf("%w: array length %d exceeds remaining %d bytes", ErrDecode, n, c.remaining())
		}
		arr := make([]any, 0, int(n))
		for i := uint64(0); i < n; i++ {
			item, err := decodeItem(c, depth+1)
			if err != nil {
				return nil, err
			}
			arr = append(arr, item)
		}
		return arr, nil

	case majorMap:
		n, err := c.readUint(ai)
		if err != nil {
			return nil, err
		}
		if n > uint64(c.remaining()) {
			return nil, fmt.Errorf("%w: map length %d exceeds remaining %d bytes", ErrDecode, n, c.remaining())
		}
		m := make(map[any]any, int(n))
		for i := uint64(0); i < n; i++ {
			key, err := decodeItem(c, depth+1)
			if err != nil {
				return nil, err
			}
			switch key.(type) {
			case string, int64:
			default:
				return nil, fmt.Errorf("%w: map key must be a string or integer, got %T", ErrDecode, key)
			}
			val, err := decodeItem(c, depth+1)
			if err != nil {
				return nil, err
			}
			// Last occurrence wins on duplicate keys; real
			// authenticators are not canonical encoders.
			m[key] = val
		}
		return m, nil

	case majorSimple:
		switch ai {
		case simpleFalse:
			return false, nil
		case simpleTrue:
			return true, nil
		case simpleNull:
			return nil, nil
		default:
			return nil, fmt.Errorf("%w: unsupported simple value %d", ErrDecode, ai)
		}

	default: // majorTag
		return nil, fmt.Errorf("%w: unsupported major type %d", ErrDecode, major)
	}
}
