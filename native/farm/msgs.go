package farm

import (
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/token"
)

// InstantiateMsg names the ledgers the farm accepts stake and rewards from.
type InstantiateMsg struct {
	LPToken     crypto.Address `json:"lp_token"`
	RewardToken crypto.Address `json:"reward_token"`
}

// ExecuteMsg is the tagged union of farm operations.
type ExecuteMsg struct {
	Receive         *token.ReceiveMsg `json:"receive,omitempty"`
	Unbond          *UnbondMsg        `json:"unbond,omitempty"`
	EmergencyUnbond *UnbondMsg        `json:"emergency_unbond,omitempty"`
	Claim           *struct{}         `json:"claim,omitempty"`
}

// Kind implements vm.Variant.
func (m *ExecuteMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"receive":          m.Receive != nil,
		"unbond":           m.Unbond != nil,
		"emergency_unbond": m.EmergencyUnbond != nil,
		"claim":            m.Claim != nil,
	})
}

type UnbondMsg struct {
	Amount types.Uint128 `json:"amount"`
}

// HookMsg is the payload carried by a ledger Send into the farm. Bond is only
// accepted from the LP ledger, Distribute only from the reward ledger.
type HookMsg struct {
	Bond       *struct{} `json:"bond,omitempty"`
	Distribute *struct{} `json:"distribute,omitempty"`
}

// Kind implements vm.Variant.
func (m *HookMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"bond":       m.Bond != nil,
		"distribute": m.Distribute != nil,
	})
}

// QueryMsg is the tagged union of farm views.
type QueryMsg struct {
	StakerInfo *StakerInfoQuery `json:"staker_info,omitempty"`
	State      *struct{}        `json:"state,omitempty"`
}

// Kind implements vm.Variant.
func (m *QueryMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"staker_info": m.StakerInfo != nil,
		"state":       m.State != nil,
	})
}

type StakerInfoQuery struct {
	Staker crypto.Address `json:"staker"`
}

type StakerInfoResponse struct {
	Staker  crypto.Address `json:"staker"`
	Bonded  types.Uint128  `json:"bonded"`
	Pending types.Uint128  `json:"pending"`
}

type StateResponse struct {
	LPToken       crypto.Address `json:"lp_token"`
	RewardToken   crypto.Address `json:"reward_token"`
	TotalBonded   types.Uint128  `json:"total_bonded"`
	RewardIndex   string         `json:"reward_index"`
	Undistributed types.Uint128  `json:"undistributed"`
}

// BondPayload is the hook message a staker sends with its LP shares.
func BondPayload() HookMsg { return HookMsg{Bond: &struct{}{}} }

// DistributePayload is the hook message a funder sends with reward tokens.
func DistributePayload() HookMsg { return HookMsg{Distribute: &struct{}{}} }
