package crypto

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/btcsuite/btcutil/bech32"
)

func TestAddressRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := key.PubKey().Address()
	encoded := addr.String()
	if !strings.HasPrefix(encoded, AddressPrefix+"1") {
		t.Fatalf("unexpected prefix: %s", encoded)
	}
	parsed, err := ParseAddress(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != addr {
		t.Fatalf("round trip mismatch: %x != %x", parsed, addr)
	}
}

func TestParseAddressRejectsForeignPrefix(t *testing.T) {
	conv, err := bech32.ConvertBits(make([]byte, AddressLength), 8, 5, true)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	foreign, err := bech32.Encode("cosmos", conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := ParseAddress(foreign); !errors.Is(err, ErrAddressPrefix) {
		t.Fatalf("expected prefix error, got %v", err)
	}
}

func TestParseAddressRejectsShortPayload(t *testing.T) {
	conv, err := bech32.ConvertBits(make([]byte, 8), 8, 5, true)
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	short, err := bech32.Encode(AddressPrefix, conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := ParseAddress(short); !errors.Is(err, ErrAddressLength) {
		t.Fatalf("expected length error, got %v", err)
	}
	if _, err := ParseAddress("   "); !errors.Is(err, ErrEmptyAddress) {
		t.Fatalf("expected empty error, got %v", err)
	}
	if _, err := ParseAddress("not-bech32"); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestContractAddressDeterministic(t *testing.T) {
	a := ContractAddress("generator-proxy")
	b := ContractAddress("generator-proxy")
	c := ContractAddress("lp-token")
	if a != b {
		t.Fatalf("expected identical derivation")
	}
	if a == c {
		t.Fatalf("expected distinct addresses for distinct labels")
	}
	if a.IsZero() {
		t.Fatalf("derived address must not be zero")
	}
}

func TestAddressJSON(t *testing.T) {
	addr := ContractAddress("reward-token")
	raw, err := json.Marshal(struct {
		Addr Address `json:"addr"`
	}{Addr: addr})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		Addr Address `json:"addr"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.Addr != addr {
		t.Fatalf("json mismatch")
	}
	if err := json.Unmarshal([]byte(`{"addr":"furya1bogus"}`), &decoded); err == nil {
		t.Fatalf("expected invalid address error")
	}
}
