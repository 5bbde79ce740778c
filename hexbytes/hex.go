// Package hexbytes provides the immutable byte-string datum that SODG
// vertices carry, together with the codecs for the primitive value types
// that the object calculus understands.
package hexbytes

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/xerrors"
)

// Hex is an immutable, finite byte sequence. The zero value is the empty
// datum. Values of this type are safe to copy and compare with Equals.
type Hex struct {
	b []byte
}

// Empty returns a datum with no bytes.
func Empty() Hex {
	return Hex{}
}

// FromBytes wraps a copy of the provided bytes into a Hex.
func FromBytes(b []byte) Hex {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Hex{b: cp}
}

// FromInt64 encodes v as an 8-byte big-endian integer.
func FromInt64(v int64) Hex {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	return Hex{b: buf[:]}
}

// FromFloat64 encodes v as an 8-byte big-endian IEEE-754 double.
func FromFloat64(v float64) Hex {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(v))
	return Hex{b: buf[:]}
}

// FromBool encodes v as a single 0x01 or 0x00 byte.
func FromBool(v bool) Hex {
	if v {
		return Hex{b: []byte{0x01}}
	}
	return Hex{b: []byte{0x00}}
}

// FromString encodes v as its UTF-8 bytes.
func FromString(v string) Hex {
	return Hex{b: []byte(v)}
}

// Parse decodes a dash-separated hexadecimal literal, e.g. "DE-AD-BE-EF"
// or "DEADBEEF". The literal "--" denotes the empty datum.
func Parse(s string) (Hex, error) {
	if s == "--" || s == "" {
		return Empty(), nil
	}
	clean := strings.ReplaceAll(s, "-", "")
	if len(clean)%2 != 0 {
		return Hex{}, xerrors.Errorf("hex literal %q has an odd number of digits", s)
	}
	out, err := hex.DecodeString(clean)
	if err != nil {
		return Hex{}, xerrors.Errorf("bad hex literal %q: %w", s, err)
	}
	return Hex{b: out}, nil
}

// Bytes returns a copy of the underlying bytes.
func (h Hex) Bytes() []byte {
	cp := make([]byte, len(h.b))
	copy(cp, h.b)
	return cp
}

// Len returns the number of bytes in the datum.
func (h Hex) Len() int { return len(h.b) }

// IsEmpty reports whether the datum carries no bytes.
func (h Hex) IsEmpty() bool { return len(h.b) == 0 }

// Equals reports whether two datums carry identical bytes.
func (h Hex) Equals(other Hex) bool {
	return bytes.Equal(h.b, other.b)
}

// Int64 decodes the datum as an 8-byte big-endian signed integer.
func (h Hex) Int64() (int64, error) {
	if len(h.b) != 8 {
		return 0, xerrors.Errorf("datum holds %d byte(s), can't make an int64 out of it", len(h.b))
	}
	return int64(binary.BigEndian.Uint64(h.b)), nil
}

// Float64 decodes the datum as an 8-byte big-endian IEEE-754 double.
func (h Hex) Float64() (float64, error) {
	if len(h.b) != 8 {
		return 0, xerrors.Errorf("datum holds %d byte(s), can't make a float64 out of it", len(h.b))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(h.b)), nil
}

// Bool decodes the datum as a single-byte boolean.
func (h Hex) Bool() (bool, error) {
	if len(h.b) != 1 {
		return false, xerrors.Errorf("datum holds %d byte(s), can't make a bool out of it", len(h.b))
	}
	return h.b[0] == 0x01, nil
}

// UTF8 decodes the datum as a UTF-8 string.
func (h Hex) UTF8() (string, error) {
	if !utf8.Valid(h.b) {
		return "", xerrors.Errorf("datum of %d byte(s) is not valid UTF-8", len(h.b))
	}
	return string(h.b), nil
}

// String renders the datum as dash-separated uppercase hex pairs, or "--"
// when the datum is empty.
func (h Hex) String() string {
	if len(h.b) == 0 {
		return "--"
	}
	var sb strings.Builder
	for i, b := range h.b {
		if i > 0 {
			sb.WriteByte('-')
		}
		fmt.Fprintf(&sb, "%02X", b)
	}
	return sb.String()
}
