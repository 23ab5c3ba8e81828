package genproxy

import (
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/farm"
	"genproxy/native/token"
)

// RewardProtocol translates the proxy's abstract requests into messages for a
// concrete end reward protocol. Every builder returns exactly one follow-up
// message; queries run against the protocol's current state.
type RewardProtocol interface {
	// Stake forwards amount LP shares, already held by the proxy, into the
	// protocol's staking entry.
	Stake(cfg Config, amount types.Uint128) (vm.SubMsg, error)
	// Unstake asks the protocol to return amount LP shares to the proxy.
	Unstake(cfg Config, amount types.Uint128) (vm.SubMsg, error)
	// EmergencyUnstake is Unstake through the exit path that forfeits
	// pending yield.
	EmergencyUnstake(cfg Config, amount types.Uint128) (vm.SubMsg, error)
	// Accrue asks the protocol to pay pending yield to the proxy.
	Accrue(cfg Config) (vm.SubMsg, error)
	// Staked reports the LP shares the protocol holds for proxy.
	Staked(q vm.Querier, cfg Config, proxy crypto.Address) (types.Uint128, error)
	// Pending reports unrealised yield, or nil when the protocol does not
	// expose it.
	Pending(q vm.Querier, cfg Config, proxy crypto.Address) (*types.Uint128, error)
}

// FarmAdapter targets the bundled farm contract.
type FarmAdapter struct{}

var _ RewardProtocol = FarmAdapter{}

func (FarmAdapter) Stake(cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	return token.SendSubMsg(cfg.LPPool, cfg.RewardProtocolEntry, amount, farm.BondPayload())
}

func (FarmAdapter) Unstake(cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	return vm.ExecuteMsg(cfg.RewardProtocol, farm.ExecuteMsg{Unbond: &farm.UnbondMsg{Amount: amount}})
}

func (FarmAdapter) EmergencyUnstake(cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	return vm.ExecuteMsg(cfg.RewardProtocol, farm.ExecuteMsg{EmergencyUnbond: &farm.UnbondMsg{Amount: amount}})
}

func (FarmAdapter) Accrue(cfg Config) (vm.SubMsg, error) {
	return vm.ExecuteMsg(cfg.RewardProtocol, farm.ExecuteMsg{Claim: &struct{}{}})
}

func (a FarmAdapter) Staked(q vm.Querier, cfg Config, proxy crypto.Address) (types.Uint128, error) {
	info, err := a.stakerInfo(q, cfg, proxy)
	if err != nil {
		return types.Uint128{}, err
	}
	return info.Bonded, nil
}

func (a FarmAdapter) Pending(q vm.Querier, cfg Config, proxy crypto.Address) (*types.Uint128, error) {
	info, err := a.stakerInfo(q, cfg, proxy)
	if err != nil {
		return nil, err
	}
	pending := info.Pending
	return &pending, nil
}

func (FarmAdapter) stakerInfo(q vm.Querier, cfg Config, proxy crypto.Address) (farm.StakerInfoResponse, error) {
	var resp farm.StakerInfoResponse
	err := vm.QueryJSON(q, cfg.RewardProtocol, farm.QueryMsg{StakerInfo: &farm.StakerInfoQuery{Staker: proxy}}, &resp)
	return resp, err
}
