package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/ethereum/go-ethereum/crypto"
)

// AddressPrefix is the human-readable part used when rendering accounts.
const AddressPrefix = "furya"

// AddressLength is the size of an account identifier in bytes.
const AddressLength = 20

var (
	ErrEmptyAddress   = errors.New("crypto: address required")
	ErrAddressPrefix  = errors.New("crypto: unsupported address prefix")
	ErrAddressLength  = errors.New("crypto: invalid address length")
	contractAddrLabel = []byte("contract:")
)

// Address identifies an account or a contract. The zero value is the empty
// address and never belongs to a participant.
type Address [AddressLength]byte

// BytesToAddress copies b into an Address. It fails unless b is exactly 20
// bytes long.
func BytesToAddress(b []byte) (Address, error) {
	var out Address
	if len(b) != AddressLength {
		return out, fmt.Errorf("%w: %d", ErrAddressLength, len(b))
	}
	copy(out[:], b)
	return out, nil
}

// ContractAddress derives the deterministic address of a contract instance from
// its label.
func ContractAddress(label string) Address {
	buf := make([]byte, 0, len(contractAddrLabel)+len(label))
	buf = append(buf, contractAddrLabel...)
	buf = append(buf, label...)
	hash := crypto.Keccak256(buf)
	var out Address
	copy(out[:], hash[12:])
	return out
}

// ParseAddress decodes a bech32 account string and validates the prefix and
// payload length.
func ParseAddress(addr string) (Address, error) {
	var out Address
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return out, ErrEmptyAddress
	}
	hrp, data, err := bech32.Decode(trimmed)
	if err != nil {
		return out, fmt.Errorf("decode bech32 address: %w", err)
	}
	if hrp != AddressPrefix {
		return out, fmt.Errorf("%w %q", ErrAddressPrefix, hrp)
	}
	decoded, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return out, fmt.Errorf("decode bech32 address: %w", err)
	}
	return BytesToAddress(decoded)
}

// MustParseAddress is ParseAddress for static inputs. It panics on error.
func MustParseAddress(addr string) Address {
	out, err := ParseAddress(addr)
	if err != nil {
		panic(err)
	}
	return out
}

func (a Address) String() string {
	conv, err := bech32.ConvertBits(a[:], 8, 5, true)
	if err != nil {
		panic(err)
	}
	encoded, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		panic(err)
	}
	return encoded
}

// Bytes returns a copy of the raw address bytes.
func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Equal reports whether two addresses match.
func (a Address) Equal(other Address) bool {
	return bytes.Equal(a[:], other[:])
}

// MarshalJSON renders the address as a bech32 string.
func (a Address) MarshalJSON() ([]byte, error) {
	if a.IsZero() {
		return json.Marshal("")
	}
	return json.Marshal(a.String())
}

// UnmarshalJSON parses a bech32 string. Empty strings decode to the zero
// address.
func (a *Address) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("address must be a string: %w", err)
	}
	if strings.TrimSpace(raw) == "" {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(raw)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// --- Key Management ---

type PrivateKey struct {
	*ecdsa.PrivateKey
}

type PublicKey struct {
	*ecdsa.PublicKey
}

func GeneratePrivateKey() (*PrivateKey, error) {
	key, err := ecdsa.GenerateKey(crypto.S256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}

// Bytes returns the byte representation of the private key.
func (k *PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(k.PrivateKey)
}

func (k *PrivateKey) PubKey() *PublicKey {
	return &PublicKey{&k.PrivateKey.PublicKey}
}

// Address derives the account controlled by the key.
func (k *PublicKey) Address() Address {
	var out Address
	copy(out[:], crypto.PubkeyToAddress(*k.PublicKey).Bytes())
	return out
}

func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{key}, nil
}
