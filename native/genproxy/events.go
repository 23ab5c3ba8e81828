package genproxy

import (
	"genproxy/core/types"
	"genproxy/crypto"
)

const (
	EventTypeDeposit           = "genproxy.deposit"
	EventTypeRewardsUpdated    = "genproxy.rewards_updated"
	EventTypeRewardsSent       = "genproxy.rewards_sent"
	EventTypeWithdraw          = "genproxy.withdraw"
	EventTypeEmergencyWithdraw = "genproxy.emergency_withdraw"
)

func newDepositEvent(cfg Config, amount types.Uint128) *types.Event {
	return types.NewEvent(EventTypeDeposit, map[string]string{
		"generator": cfg.Generator.String(),
		"protocol":  cfg.RewardProtocolEntry.String(),
		"amount":    amount.String(),
	})
}

func newRewardsUpdatedEvent(cfg Config, caller crypto.Address) *types.Event {
	return types.NewEvent(EventTypeRewardsUpdated, map[string]string{
		"protocol": cfg.RewardProtocol.String(),
		"caller":   caller.String(),
	})
}

func newPayoutEvent(kind string, ledger, account crypto.Address, amount types.Uint128) *types.Event {
	return types.NewEvent(kind, map[string]string{
		"ledger":  ledger.String(),
		"account": account.String(),
		"amount":  amount.String(),
	})
}
