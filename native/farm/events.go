package farm

import (
	"genproxy/core/types"
	"genproxy/crypto"
)

const (
	EventTypeBonded          = "farm.bonded"
	EventTypeUnbonded        = "farm.unbonded"
	EventTypeEmergencyUnbond = "farm.emergency_unbonded"
	EventTypeClaimed         = "farm.claimed"
	EventTypeDistributed     = "farm.distributed"
)

func newStakerEvent(kind string, staker crypto.Address, amount types.Uint128, extra map[string]string) *types.Event {
	attrs := map[string]string{
		"staker": staker.String(),
		"amount": amount.String(),
	}
	for k, v := range extra {
		attrs[k] = v
	}
	return types.NewEvent(kind, attrs)
}
