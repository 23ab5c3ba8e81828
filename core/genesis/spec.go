package genesis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"genproxy/core/types"
	"genproxy/crypto"
	"genproxy/native/token"
)

// GenesisSpec describes the contracts a node deploys on first start.
type GenesisSpec struct {
	GenesisTime string      `json:"genesisTime"`
	Admin       string      `json:"admin"`
	Tokens      []TokenSpec `json:"tokens"`
	Farm        *FarmSpec   `json:"farm,omitempty"`
	Proxy       ProxySpec   `json:"proxy"`

	genesisTimestamp time.Time
	admin            crypto.Address
}

// TokenSpec deploys a ledger. Alloc maps bech32 holders to decimal amounts.
type TokenSpec struct {
	Label    string            `json:"label"`
	Name     string            `json:"name"`
	Symbol   string            `json:"symbol"`
	Decimals uint8             `json:"decimals"`
	Minter   string            `json:"minter,omitempty"`
	Alloc    map[string]string `json:"alloc,omitempty"`
}

// FarmSpec deploys the reference reward protocol. Token fields name labels.
type FarmSpec struct {
	Label       string `json:"label"`
	LPToken     string `json:"lpToken"`
	RewardToken string `json:"rewardToken"`
}

// ProxySpec deploys the generator proxy. Generator is a bech32 account; the
// remaining fields are contract labels defined earlier in the spec.
type ProxySpec struct {
	Label               string `json:"label"`
	Generator           string `json:"generator"`
	LPToken             string `json:"lpToken"`
	RewardProtocol      string `json:"rewardProtocol"`
	RewardProtocolEntry string `json:"rewardProtocolEntry,omitempty"`
	RewardToken         string `json:"rewardToken"`
}

// LoadGenesisSpec reads and validates the JSON document at path.
func LoadGenesisSpec(path string) (*GenesisSpec, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("genesis spec path must be provided")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read genesis spec %q: %w", path, err)
	}
	spec, err := ParseGenesisSpec(raw)
	if err != nil {
		return nil, fmt.Errorf("genesis spec %q: %w", path, err)
	}
	return spec, nil
}

// ParseGenesisSpec decodes raw strictly and validates it.
func ParseGenesisSpec(raw []byte) (*GenesisSpec, error) {
	var spec GenesisSpec
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := spec.validate(); err != nil {
		return nil, fmt.Errorf("invalid: %w", err)
	}
	return &spec, nil
}

// GenesisTimestamp is the parsed genesisTime.
func (s *GenesisSpec) GenesisTimestamp() time.Time { return s.genesisTimestamp }

// AdminAddress is the account allowed to migrate genesis contracts.
func (s *GenesisSpec) AdminAddress() crypto.Address { return s.admin }

func (s *GenesisSpec) validate() error {
	ts, err := parseGenesisTime(s.GenesisTime)
	if err != nil {
		return err
	}
	s.genesisTimestamp = ts
	if strings.TrimSpace(s.Admin) != "" {
		admin, err := crypto.ParseAddress(s.Admin)
		if err != nil {
			return fmt.Errorf("admin: %w", err)
		}
		s.admin = admin
	}

	labels := make(map[string]string)
	claim := func(label, kind string) error {
		label = strings.TrimSpace(label)
		if label == "" {
			return fmt.Errorf("%s label required", kind)
		}
		if _, ok := labels[label]; ok {
			return fmt.Errorf("duplicate label %q", label)
		}
		labels[label] = kind
		return nil
	}
	for i := range s.Tokens {
		tok := &s.Tokens[i]
		if err := claim(tok.Label, "token"); err != nil {
			return err
		}
		if err := tok.validate(); err != nil {
			return fmt.Errorf("token %q: %w", tok.Label, err)
		}
	}
	requireToken := func(field, label string) error {
		if labels[strings.TrimSpace(label)] != "token" {
			return fmt.Errorf("%s: %q is not a token label", field, label)
		}
		return nil
	}
	if s.Farm != nil {
		if err := claim(s.Farm.Label, "farm"); err != nil {
			return err
		}
		if err := requireToken("farm.lpToken", s.Farm.LPToken); err != nil {
			return err
		}
		if err := requireToken("farm.rewardToken", s.Farm.RewardToken); err != nil {
			return err
		}
	}
	if err := claim(s.Proxy.Label, "proxy"); err != nil {
		return err
	}
	if _, err := crypto.ParseAddress(s.Proxy.Generator); err != nil {
		return fmt.Errorf("proxy.generator: %w", err)
	}
	if err := requireToken("proxy.lpToken", s.Proxy.LPToken); err != nil {
		return err
	}
	if err := requireToken("proxy.rewardToken", s.Proxy.RewardToken); err != nil {
		return err
	}
	for field, label := range map[string]string{
		"proxy.rewardProtocol":      s.Proxy.RewardProtocol,
		"proxy.rewardProtocolEntry": s.Proxy.RewardProtocolEntry,
	} {
		if field == "proxy.rewardProtocolEntry" && strings.TrimSpace(label) == "" {
			continue
		}
		if _, ok := labels[strings.TrimSpace(label)]; !ok {
			return fmt.Errorf("%s: unknown label %q", field, label)
		}
	}
	return nil
}

func (t *TokenSpec) validate() error {
	if strings.TrimSpace(t.Symbol) == "" {
		return fmt.Errorf("symbol required")
	}
	if strings.TrimSpace(t.Minter) != "" {
		if _, err := crypto.ParseAddress(t.Minter); err != nil {
			return fmt.Errorf("minter: %w", err)
		}
	}
	for holder, amount := range t.Alloc {
		addr, err := crypto.ParseAddress(holder)
		if err != nil {
			return fmt.Errorf("alloc holder %q: %w", holder, err)
		}
		if addr.IsZero() {
			return fmt.Errorf("alloc holder %q: zero address", holder)
		}
		if _, err := types.ParseUint128(amount); err != nil {
			return fmt.Errorf("alloc amount for %q: %w", holder, err)
		}
	}
	if err := token.ValidateMetadata(t.instantiateMsg()); err != nil {
		return fmt.Errorf("symbol %q: %w", t.Symbol, err)
	}
	return nil
}

// instantiateMsg builds the ledger's instantiate message. It must only be
// called on a validated spec. A missing name defaults to the symbol.
func (t *TokenSpec) instantiateMsg() token.InstantiateMsg {
	msg := token.InstantiateMsg{Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals}
	if strings.TrimSpace(t.Name) == "" {
		msg.Name = t.Symbol
	}
	if strings.TrimSpace(t.Minter) != "" {
		msg.Mint = &token.MinterInfo{Minter: crypto.MustParseAddress(t.Minter)}
	}
	for _, holder := range t.sortedAlloc() {
		msg.InitialBalances = append(msg.InitialBalances, token.Balance{
			Address: crypto.MustParseAddress(holder),
			Amount:  types.MustParseUint128(t.Alloc[holder]),
		})
	}
	return msg
}

// sortedAlloc returns allocations ordered by holder so genesis is deterministic.
func (t *TokenSpec) sortedAlloc() []string {
	holders := make([]string, 0, len(t.Alloc))
	for holder := range t.Alloc {
		holders = append(holders, holder)
	}
	sort.Strings(holders)
	return holders
}

func parseGenesisTime(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, fmt.Errorf("genesisTime must be provided")
	}
	ts, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse genesisTime: %w", err)
	}
	return ts.UTC(), nil
}
