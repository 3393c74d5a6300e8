// Package registers decodes sigma-serialized constants stored in box
// registers R4..R9.
package registers

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ErrDecode is wrapped by every *DecodeError.
var ErrDecode = errors.New("register decode failed")

// DecodeError describes why a register value could not be decoded.
type DecodeError struct {
	Input  string
	Offset int
	Reason string
}

func (e *DecodeError) Error() string {
	in := e.Input
	if len(in) > 24 {
		in = in[:24] + "..."
	}
	return fmt.Sprintf("decode register %q at byte %d: %s", in, e.Offset, e.Reason)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// Kind is a sigma constant type tag.
type Kind byte

// Supported type tags.
const (
	KindBool      Kind = 0x01
	KindByte      Kind = 0x02
	KindShort     Kind = 0x03
	KindInt       Kind = 0x04
	KindLong      Kind = 0x05
	KindBytes     Kind = 0x0e // Coll[Byte]
	KindBytesColl Kind = 0x1a // Coll[Coll[Byte]]
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "Boolean"
	case KindByte:
		return "Byte"
	case KindShort:
		return "Short"
	case KindInt:
		return "Int"
	case KindLong:
		return "Long"
	case KindBytes:
		return "Coll[Byte]"
	case KindBytesColl:
		return "Coll[Coll[Byte]]"
	default:
		return fmt.Sprintf("type(0x%02x)", byte(k))
	}
}

// Names lists the non-mandatory registers in order.
var Names = []string{"R4", "R5", "R6", "R7", "R8", "R9"}

// Value is a decoded register constant.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64 // Byte, Short, Int and Long
	Bytes []byte
	Coll  [][]byte
}

// ErrNotText is returned by Text for values that are not UTF-8 byte
// collections.
var ErrNotText = errors.New("register value is not text")

// Text returns the value as a UTF-8 string. Only Coll[Byte] values
// holding valid UTF-8 are text.
func (v Value) Text() (string, error) {
	if v.Kind != KindBytes {
		return "", fmt.Errorf("%w: %s", ErrNotText, v.Kind)
	}
	if !utf8.Valid(v.Bytes) {
		return "", fmt.Errorf("%w: invalid utf-8", ErrNotText)
	}
	return string(v.Bytes), nil
}

// String renders the value for display: text when it is text, hex for
// other byte collections, the literal for scalars.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindByte, KindShort, KindInt, KindLong:
		return strconv.FormatInt(v.Int, 10)
	case KindBytes:
		if s, err := v.Text(); err == nil {
			return s
		}
		return hex.EncodeToString(v.Bytes)
	case KindBytesColl:
		parts := make([]string, len(v.Coll))
		for i, b := range v.Coll {
			parts[i] = hex.EncodeToString(b)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return ""
	}
}

// Decode parses one hex-encoded register constant. It never panics;
// malformed input yields a *DecodeError.
func Decode(hexStr string) (Value, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return Value{}, &DecodeError{Input: hexStr, Reason: "invalid hex: " + err.Error()}
	}
	if len(raw) == 0 {
		return Value{}, &DecodeError{Input: hexStr, Reason: "empty"}
	}

	r := &reader{buf: raw, pos: 1}
	v := Value{Kind: Kind(raw[0])}
	switch v.Kind {
	case KindBool:
		b, ok := r.byte()
		if !ok || b > 1 {
			return Value{}, r.fail(hexStr, "bad boolean")
		}
		v.Bool = b == 1
	case KindByte:
		b, ok := r.byte()
		if !ok {
			return Value{}, r.fail(hexStr, "truncated byte")
		}
		v.Int = int64(int8(b))
	case KindShort:
		n, ok := r.zigzag()
		if !ok || n < math.MinInt16 || n > math.MaxInt16 {
			return Value{}, r.fail(hexStr, "bad short")
		}
		v.Int = n
	case KindInt:
		n, ok := r.zigzag()
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return Value{}, r.fail(hexStr, "bad int")
		}
		v.Int = n
	case KindLong:
		n, ok := r.zigzag()
		if !ok {
			return Value{}, r.fail(hexStr, "bad long")
		}
		v.Int = n
	case KindBytes:
		b, ok := r.bytes()
		if !ok {
			return Value{}, r.fail(hexStr, "truncated byte collection")
		}
		v.Bytes = b
	case KindBytesColl:
		n, ok := r.uvarint()
		if !ok || n > uint64(r.remaining()) {
			return Value{}, r.fail(hexStr, "bad collection length")
		}
		v.Coll = make([][]byte, 0, n)
		for i := uint64(0); i < n; i++ {
			b, ok := r.bytes()
			if !ok {
				return Value{}, r.fail(hexStr, fmt.Sprintf("truncated element %d", i))
			}
			v.Coll = append(v.Coll, b)
		}
	default:
		return Value{}, &DecodeError{Input: hexStr, Reason: "unsupported type " + v.Kind.String()}
	}

	if r.remaining() != 0 {
		return Value{}, r.fail(hexStr, fmt.Sprintf("%d trailing bytes", r.remaining()))
	}
	return v, nil
}

type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) fail(input, reason string) *DecodeError {
	return &DecodeError{Input: input, Offset: r.pos, Reason: reason}
}

func (r *reader) byte() (byte, bool) {
	if r.remaining() < 1 {
		return 0, false
	}
	b := r.buf[r.pos]
	r.pos++
	return b, true
}

func (r *reader) uvarint() (uint64, bool) {
	n, size := binary.Uvarint(r.buf[r.pos:])
	if size <= 0 {
		return 0, false
	}
	r.pos += size
	return n, true
}

func (r *reader) zigzag() (int64, bool) {
	u, ok := r.uvarint()
	if !ok {
		return 0, false
	}
	return int64(u>>1) ^ -int64(u&1), true
}

func (r *reader) bytes() ([]byte, bool) {
	n, ok := r.uvarint()
	if !ok || n > uint64(r.remaining()) {
		return nil, false
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:])
	r.pos += int(n)
	return out, true
}
