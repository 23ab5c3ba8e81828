package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"
)

var (
	ErrUint128Overflow  = errors.New("uint128: overflow")
	ErrUint128Underflow = errors.New("uint128: underflow")
	ErrUint128Syntax    = errors.New("uint128: invalid decimal")
)

// Uint128 is an unsigned 128-bit token amount. The zero value is 0.
type Uint128 struct {
	v uint256.Int
}

// NewUint128 returns the amount for a small constant.
func NewUint128(v uint64) Uint128 {
	var out Uint128
	out.v.SetUint64(v)
	return out
}

// ParseUint128 parses a base-10 string.
func ParseUint128(s string) (Uint128, error) {
	var out Uint128
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-") {
		return out, fmt.Errorf("%w %q", ErrUint128Syntax, s)
	}
	if err := out.v.SetFromDecimal(trimmed); err != nil {
		return out, fmt.Errorf("%w %q: %v", ErrUint128Syntax, s, err)
	}
	if out.v.BitLen() > 128 {
		return Uint128{}, ErrUint128Overflow
	}
	return out, nil
}

// MustParseUint128 panics when s is not a valid amount.
func MustParseUint128(s string) Uint128 {
	out, err := ParseUint128(s)
	if err != nil {
		panic(err)
	}
	return out
}

// Uint128FromBig converts a non-negative big integer.
func Uint128FromBig(b *big.Int) (Uint128, error) {
	var out Uint128
	if b == nil {
		return out, nil
	}
	if b.Sign() < 0 {
		return out, ErrUint128Underflow
	}
	if b.BitLen() > 128 {
		return out, ErrUint128Overflow
	}
	out.v.SetFromBig(b)
	return out, nil
}

// Uint128FromUint256 narrows a 256-bit value.
func Uint128FromUint256(x *uint256.Int) (Uint128, error) {
	var out Uint128
	if x == nil {
		return out, nil
	}
	if x.BitLen() > 128 {
		return out, ErrUint128Overflow
	}
	out.v.Set(x)
	return out, nil
}

// Uint128FromBytes decodes a big-endian encoding produced by Bytes.
func Uint128FromBytes(b []byte) (Uint128, error) {
	var out Uint128
	if len(b) > 16 {
		return out, ErrUint128Overflow
	}
	out.v.SetBytes(b)
	return out, nil
}

// Bytes returns the minimal big-endian encoding. Zero encodes as an empty slice.
func (u Uint128) Bytes() []byte {
	if u.v.IsZero() {
		return []byte{}
	}
	return u.v.Bytes()
}

// Big returns a fresh big.Int holding the amount.
func (u Uint128) Big() *big.Int { return u.v.ToBig() }

// Uint256 returns a copy of the amount widened to 256 bits.
func (u Uint128) Uint256() *uint256.Int { return new(uint256.Int).Set(&u.v) }

func (u Uint128) String() string { return u.v.Dec() }

func (u Uint128) IsZero() bool { return u.v.IsZero() }

func (u Uint128) Cmp(other Uint128) int { return u.v.Cmp(&other.v) }

func (u Uint128) Equal(other Uint128) bool { return u.v.Eq(&other.v) }

// Add returns u+other, failing when the sum exceeds 128 bits.
func (u Uint128) Add(other Uint128) (Uint128, error) {
	var out Uint128
	out.v.Add(&u.v, &other.v)
	if out.v.BitLen() > 128 {
		return Uint128{}, ErrUint128Overflow
	}
	return out, nil
}

// Sub returns u-other, failing when other > u.
func (u Uint128) Sub(other Uint128) (Uint128, error) {
	if u.v.Lt(&other.v) {
		return Uint128{}, ErrUint128Underflow
	}
	var out Uint128
	out.v.Sub(&u.v, &other.v)
	return out, nil
}

// MarshalJSON encodes the amount as a decimal string.
func (u Uint128) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.String())
}

// UnmarshalJSON accepts decimal strings only.
func (u *Uint128) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: amount must be a string", ErrUint128Syntax)
	}
	parsed, err := ParseUint128(raw)
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// EncodeRLP stores the amount as a minimal big-endian byte string.
func (u Uint128) EncodeRLP(w io.Writer) error {
	return rlp.Encode(w, u.Bytes())
}

// DecodeRLP reverses EncodeRLP.
func (u *Uint128) DecodeRLP(s *rlp.Stream) error {
	raw, err := s.Bytes()
	if err != nil {
		return err
	}
	decoded, err := Uint128FromBytes(raw)
	if err != nil {
		return err
	}
	*u = decoded
	return nil
}
