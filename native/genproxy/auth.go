package genproxy

import (
	"fmt"

	proxyerrors "genproxy/core/errors"
	"genproxy/crypto"
)

// Operation enumerates the mutating entry points guarded by Authorize.
type Operation uint8

const (
	OpDeposit Operation = iota + 1
	OpUpdateRewards
	OpSendRewards
	OpWithdraw
	OpEmergencyWithdraw
)

func (op Operation) String() string {
	switch op {
	case OpDeposit:
		return "deposit"
	case OpUpdateRewards:
		return "update_rewards"
	case OpSendRewards:
		return "send_rewards"
	case OpWithdraw:
		return "withdraw"
	case OpEmergencyWithdraw:
		return "emergency_withdraw"
	default:
		return "unknown"
	}
}

// Authorize decides whether caller may run op. For deposits caller is the
// account that initiated the ledger Send and ledger is the contract that
// delivered it; ledger is ignored for every other operation.
func Authorize(cfg Config, op Operation, caller, ledger crypto.Address) error {
	switch op {
	case OpDeposit:
		if caller != cfg.Generator || ledger != cfg.LPPool {
			return fmt.Errorf("%w: deposit must be sent by the generator through the lp ledger", proxyerrors.ErrUnauthorized)
		}
		return nil
	case OpUpdateRewards:
		return nil
	case OpSendRewards, OpWithdraw, OpEmergencyWithdraw:
		if caller != cfg.Generator {
			return fmt.Errorf("%w: %s requires the generator", proxyerrors.ErrUnauthorized, op)
		}
		return nil
	default:
		return fmt.Errorf("%w: operation %d", proxyerrors.ErrUnknownMessage, op)
	}
}
