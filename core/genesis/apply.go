package genesis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/farm"
	"genproxy/native/genproxy"
	"genproxy/native/token"
)

// Deployment lists the addresses genesis registered, keyed by label.
type Deployment struct {
	Contracts map[string]crypto.Address
	Proxy     crypto.Address
	LPToken   crypto.Address
	Reward    crypto.Address
}

// Register hosts every contract named by spec on router without touching
// state. Nodes call it on every start so the router knows the code behind
// each address.
func Register(spec *GenesisSpec, router *vm.Router, protocol genproxy.RewardProtocol) (*Deployment, error) {
	if spec == nil || router == nil {
		return nil, fmt.Errorf("genesis: spec and router must not be nil")
	}
	d := &Deployment{Contracts: make(map[string]crypto.Address)}
	register := func(label string, code vm.Contract) error {
		addr, err := router.Register(label, code, spec.admin)
		if err != nil {
			return fmt.Errorf("genesis: register %q: %w", label, err)
		}
		d.Contracts[label] = addr
		return nil
	}
	for _, tok := range spec.Tokens {
		if err := register(tok.Label, token.New()); err != nil {
			return nil, err
		}
	}
	if spec.Farm != nil {
		if err := register(spec.Farm.Label, farm.New()); err != nil {
			return nil, err
		}
	}
	if err := register(spec.Proxy.Label, genproxy.New(protocol)); err != nil {
		return nil, err
	}
	d.Proxy = d.Contracts[spec.Proxy.Label]
	d.LPToken = d.Contracts[strings.TrimSpace(spec.Proxy.LPToken)]
	d.Reward = d.Contracts[strings.TrimSpace(spec.Proxy.RewardToken)]
	return d, nil
}

// Instantiate runs the instantiate message of every contract in dependency
// order: tokens, farm, proxy. Each contract commits on its own; callers that
// need all or nothing wrap the call in router.Atomic.
func Instantiate(ctx context.Context, spec *GenesisSpec, router *vm.Router, d *Deployment) error {
	run := func(label string, msg interface{}) error {
		raw, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("genesis: encode %q: %w", label, err)
		}
		if _, err := router.Instantiate(ctx, spec.admin, d.Contracts[label], raw); err != nil {
			return fmt.Errorf("genesis: instantiate %q: %w", label, err)
		}
		return nil
	}
	for i := range spec.Tokens {
		tok := &spec.Tokens[i]
		if err := run(tok.Label, tok.instantiateMsg()); err != nil {
			return err
		}
	}
	if spec.Farm != nil {
		msg := farm.InstantiateMsg{
			LPToken:     d.Contracts[spec.Farm.LPToken],
			RewardToken: d.Contracts[spec.Farm.RewardToken],
		}
		if err := run(spec.Farm.Label, msg); err != nil {
			return err
		}
	}
	msg := genproxy.InstantiateMsg{
		GeneratorContractAddr: spec.Proxy.Generator,
		LPTokenAddr:           d.Contracts[spec.Proxy.LPToken].String(),
		RewardContractAddr:    d.Contracts[spec.Proxy.RewardProtocol].String(),
		RewardTokenAddr:       d.Contracts[spec.Proxy.RewardToken].String(),
	}
	if entry := strings.TrimSpace(spec.Proxy.RewardProtocolEntry); entry != "" {
		msg.RewardEntryAddr = d.Contracts[entry].String()
	}
	return run(spec.Proxy.Label, msg)
}
