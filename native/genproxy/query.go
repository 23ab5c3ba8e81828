package genproxy

import (
	"fmt"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/vm"
	"genproxy/native/token"
)

// Query serves the read-only views. deposit and pending_token are answered by
// the end protocol, reward by the reward ledger, reward_info from Config.
func (p *Proxy) Query(deps vm.QueryDeps, env vm.Env, raw []byte) ([]byte, error) {
	cfg, err := loadConfig(deps.Storage)
	if err != nil {
		return nil, err
	}
	var msg QueryMsg
	kind, err := vm.DecodeVariant(raw, &msg)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "deposit":
		staked, err := p.protocol.Staked(deps.Querier, cfg, env.Contract)
		if err != nil {
			return nil, err
		}
		return vm.Marshal(staked)
	case "reward":
		bal, err := token.QueryBalance(deps.Querier, cfg.RewardToken, env.Contract)
		if err != nil {
			return nil, err
		}
		return vm.Marshal(bal)
	case "pending_token":
		pending, err := p.protocol.Pending(deps.Querier, cfg, env.Contract)
		if err != nil {
			return nil, err
		}
		// nil marshals as JSON null: the protocol has no figure to report.
		return vm.Marshal(pending)
	case "reward_info":
		return vm.Marshal(cfg.RewardToken)
	default:
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownMessage, kind)
	}
}
