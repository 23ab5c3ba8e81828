package genproxy

import (
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/token"
)

// ExecuteMsg is the tagged union of proxy operations.
type ExecuteMsg struct {
	Receive           *token.ReceiveMsg `json:"receive,omitempty"`
	UpdateRewards     *struct{}         `json:"update_rewards,omitempty"`
	SendRewards       *AccountAmount    `json:"send_rewards,omitempty"`
	Withdraw          *AccountAmount    `json:"withdraw,omitempty"`
	EmergencyWithdraw *AccountAmount    `json:"emergency_withdraw,omitempty"`
}

// Kind implements vm.Variant.
func (m *ExecuteMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"receive":            m.Receive != nil,
		"update_rewards":     m.UpdateRewards != nil,
		"send_rewards":       m.SendRewards != nil,
		"withdraw":           m.Withdraw != nil,
		"emergency_withdraw": m.EmergencyWithdraw != nil,
	})
}

type AccountAmount struct {
	Account crypto.Address `json:"account"`
	Amount  types.Uint128  `json:"amount"`
}

// HookMsg is the payload the generator attaches to an LP Send.
type HookMsg struct {
	Deposit *struct{} `json:"deposit,omitempty"`
}

// Kind implements vm.Variant.
func (m *HookMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{"deposit": m.Deposit != nil})
}

// DepositPayload is the hook message for an LP Send into the proxy.
func DepositPayload() HookMsg { return HookMsg{Deposit: &struct{}{}} }

// QueryMsg is the tagged union of proxy views.
type QueryMsg struct {
	Deposit      *struct{} `json:"deposit,omitempty"`
	Reward       *struct{} `json:"reward,omitempty"`
	PendingToken *struct{} `json:"pending_token,omitempty"`
	RewardInfo   *struct{} `json:"reward_info,omitempty"`
}

// Kind implements vm.Variant.
func (m *QueryMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"deposit":       m.Deposit != nil,
		"reward":        m.Reward != nil,
		"pending_token": m.PendingToken != nil,
		"reward_info":   m.RewardInfo != nil,
	})
}

// Convenience constructors used by the RPC layer and tests.

func UpdateRewardsMsg() ExecuteMsg { return ExecuteMsg{UpdateRewards: &struct{}{}} }

func SendRewardsMsg(account crypto.Address, amount types.Uint128) ExecuteMsg {
	return ExecuteMsg{SendRewards: &AccountAmount{Account: account, Amount: amount}}
}

func WithdrawMsg(account crypto.Address, amount types.Uint128) ExecuteMsg {
	return ExecuteMsg{Withdraw: &AccountAmount{Account: account, Amount: amount}}
}

func EmergencyWithdrawMsg(account crypto.Address, amount types.Uint128) ExecuteMsg {
	return ExecuteMsg{EmergencyWithdraw: &AccountAmount{Account: account, Amount: amount}}
}
