package genproxy

import (
	"fmt"
	"strings"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/state"
	"genproxy/crypto"
)

var keyConfig = []byte("config")

// Config holds the five participants of a proxy instance. It is written once
// by Instantiate and never changes afterwards.
type Config struct {
	Generator           crypto.Address
	LPPool              crypto.Address
	RewardProtocol      crypto.Address
	RewardProtocolEntry crypto.Address
	RewardToken         crypto.Address
}

// InstantiateMsg carries the participants as bech32 strings.
type InstantiateMsg struct {
	GeneratorContractAddr string `json:"generator_contract_addr"`
	LPTokenAddr           string `json:"lp_token_addr"`
	RewardContractAddr    string `json:"reward_contract_addr"`
	RewardEntryAddr       string `json:"reward_entry_addr"`
	RewardTokenAddr       string `json:"reward_token_addr"`
}

// Config validates every address and returns the resulting configuration. An
// empty reward_entry_addr defaults to the reward contract itself.
func (m InstantiateMsg) Config() (Config, error) {
	var cfg Config
	fields := []struct {
		name string
		raw  string
		dst  *crypto.Address
	}{
		{"generator_contract_addr", m.GeneratorContractAddr, &cfg.Generator},
		{"lp_token_addr", m.LPTokenAddr, &cfg.LPPool},
		{"reward_contract_addr", m.RewardContractAddr, &cfg.RewardProtocol},
		{"reward_entry_addr", m.RewardEntryAddr, &cfg.RewardProtocolEntry},
		{"reward_token_addr", m.RewardTokenAddr, &cfg.RewardToken},
	}
	for _, field := range fields {
		raw := strings.TrimSpace(field.raw)
		if raw == "" && field.dst == &cfg.RewardProtocolEntry {
			continue
		}
		addr, err := crypto.ParseAddress(raw)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s: %v", proxyerrors.ErrInvalidAddress, field.name, err)
		}
		if addr.IsZero() {
			return Config{}, fmt.Errorf("%w: %s: zero address", proxyerrors.ErrInvalidAddress, field.name)
		}
		*field.dst = addr
	}
	if cfg.RewardProtocolEntry.IsZero() {
		cfg.RewardProtocolEntry = cfg.RewardProtocol
	}
	return cfg, nil
}

func loadConfig(kv state.ReadKV) (Config, error) {
	var cfg Config
	ok, err := state.KVGet(kv, keyConfig, &cfg)
	if err != nil {
		return Config{}, err
	}
	if !ok {
		return Config{}, proxyerrors.ErrNotInitialized
	}
	return cfg, nil
}

func saveConfig(kv state.KV, cfg Config) error {
	ok, err := state.KVGet(kv, keyConfig, nil)
	if err != nil {
		return err
	}
	if ok {
		return proxyerrors.ErrAlreadyInitialized
	}
	return state.KVPut(kv, keyConfig, cfg)
}
