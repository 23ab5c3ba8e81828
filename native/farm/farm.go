// Package farm is a single-pool staking contract that pays a reward token pro
// rata to bonded LP shares. It is the end reward protocol the proxy forwards
// to in a default deployment.
package farm

import (
	"errors"
	"fmt"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/token"
)

var (
	keyConfig      = []byte("config")
	keyPool        = []byte("pool")
	stakerPrefix   = []byte("staker/")
	errUnknownHook = errors.New("farm: unsupported hook")
)

type config struct {
	LPToken     crypto.Address
	RewardToken crypto.Address
}

// Farm implements vm.Contract.
type Farm struct{}

func New() *Farm { return &Farm{} }

var _ vm.Contract = (*Farm)(nil)

func (f *Farm) Instantiate(deps vm.Deps, env vm.Env, info vm.MessageInfo, raw []byte) (*vm.Response, error) {
	var msg InstantiateMsg
	if err := vm.DecodeJSON(raw, &msg); err != nil {
		return nil, err
	}
	ok, err := state.KVGet(deps.Storage, keyConfig, nil)
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, proxyerrors.ErrAlreadyInitialized
	}
	if msg.LPToken.IsZero() || msg.RewardToken.IsZero() {
		return nil, fmt.Errorf("%w: farm ledgers", proxyerrors.ErrInvalidAddress)
	}
	if err := state.KVPut(deps.Storage, keyConfig, config{LPToken: msg.LPToken, RewardToken: msg.RewardToken}); err != nil {
		return nil, err
	}
	if err := state.KVPut(deps.Storage, keyPool, pool{}); err != nil {
		return nil, err
	}
	return vm.NewResponse().AddAttribute("action", "instantiate"), nil
}

func (f *Farm) Execute(deps vm.Deps, env vm.Env, info vm.MessageInfo, raw []byte) (*vm.Response, error) {
	var msg ExecuteMsg
	kind, err := vm.DecodeVariant(raw, &msg)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(deps.Storage)
	if err != nil {
		return nil, err
	}
	p, err := loadPool(deps.Storage)
	if err != nil {
		return nil, err
	}
	var resp *vm.Response
	switch kind {
	case "receive":
		resp, err = f.receive(deps, cfg, p, info.Sender, msg.Receive)
	case "unbond":
		resp, err = f.unbond(deps, cfg, p, info.Sender, msg.Unbond.Amount, false)
	case "emergency_unbond":
		resp, err = f.unbond(deps, cfg, p, info.Sender, msg.EmergencyUnbond.Amount, true)
	case "claim":
		resp, err = f.claim(deps, cfg, p, info.Sender)
	default:
		err = fmt.Errorf("%w: %s", proxyerrors.ErrUnknownMessage, kind)
	}
	if err != nil {
		return nil, err
	}
	if err := state.KVPut(deps.Storage, keyPool, p); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *Farm) receive(deps vm.Deps, cfg *config, p *pool, ledger crypto.Address, msg *token.ReceiveMsg) (*vm.Response, error) {
	var hook HookMsg
	kind, err := vm.DecodeVariant(msg.Msg, &hook)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", proxyerrors.ErrIncorrectPayloadVariant, err)
	}
	switch kind {
	case "bond":
		if ledger != cfg.LPToken {
			return nil, fmt.Errorf("%w: bond must arrive from the lp ledger", proxyerrors.ErrUnauthorized)
		}
		return f.bond(deps, p, msg.Sender, msg.Amount)
	case "distribute":
		if ledger != cfg.RewardToken {
			return nil, fmt.Errorf("%w: rewards must arrive from the reward ledger", proxyerrors.ErrUnauthorized)
		}
		if err := p.distribute(msg.Amount); err != nil {
			return nil, err
		}
		return vm.NewResponse().
			AddAttribute("action", "distribute").
			AddEvent(newStakerEvent(EventTypeDistributed, msg.Sender, msg.Amount, map[string]string{
				"reward_index": p.index().Dec(),
			})), nil
	default:
		return nil, fmt.Errorf("%w: %v", proxyerrors.ErrIncorrectPayloadVariant, errUnknownHook)
	}
}

func (f *Farm) bond(deps vm.Deps, p *pool, addr crypto.Address, amount types.Uint128) (*vm.Response, error) {
	s, err := loadStaker(deps.Storage, addr)
	if err != nil {
		return nil, err
	}
	if err := s.settle(p); err != nil {
		return nil, err
	}
	bonded, err := s.Bonded.Add(amount)
	if err != nil {
		return nil, err
	}
	total, err := p.TotalBonded.Add(amount)
	if err != nil {
		return nil, err
	}
	s.Bonded = bonded
	p.TotalBonded = total
	if err := saveStaker(deps.Storage, addr, s); err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "bond").
		AddEvent(newStakerEvent(EventTypeBonded, addr, amount, nil)), nil
}

// unbond returns amount LP shares to addr. The emergency path drops whatever
// the staker had pending; the forfeited rewards return to the undistributed
// pot and are shared on the next distribution.
func (f *Farm) unbond(deps vm.Deps, cfg *config, p *pool, addr crypto.Address, amount types.Uint128, emergency bool) (*vm.Response, error) {
	if amount.IsZero() {
		return nil, proxyerrors.ErrInvalidAmount
	}
	s, err := loadStaker(deps.Storage, addr)
	if err != nil {
		return nil, err
	}
	if err := s.settle(p); err != nil {
		return nil, err
	}
	if s.Bonded.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: %s bonded %s, requested %s", proxyerrors.ErrInsufficientBalance, addr, s.Bonded, amount)
	}
	bonded, err := s.Bonded.Sub(amount)
	if err != nil {
		return nil, err
	}
	total, err := p.TotalBonded.Sub(amount)
	if err != nil {
		return nil, err
	}
	s.Bonded = bonded
	p.TotalBonded = total

	action, eventType := "unbond", EventTypeUnbonded
	extra := map[string]string{}
	if emergency {
		action, eventType = "emergency_unbond", EventTypeEmergencyUnbond
		forfeited := s.Pending
		undistributed, err := p.Undistributed.Add(forfeited)
		if err != nil {
			return nil, err
		}
		p.Undistributed = undistributed
		s.Pending = types.Uint128{}
		extra["forfeited"] = forfeited.String()
	}
	if err := saveStaker(deps.Storage, addr, s); err != nil {
		return nil, err
	}
	refund, err := token.TransferSubMsg(cfg.LPToken, addr, amount)
	if err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", action).
		AddEvent(newStakerEvent(eventType, addr, amount, extra)).
		AddMessage(refund), nil
}

// claim pays out pending rewards. Nothing pending is a successful no-op.
func (f *Farm) claim(deps vm.Deps, cfg *config, p *pool, addr crypto.Address) (*vm.Response, error) {
	s, err := loadStaker(deps.Storage, addr)
	if err != nil {
		return nil, err
	}
	if err := s.settle(p); err != nil {
		return nil, err
	}
	amount := s.Pending
	resp := vm.NewResponse().AddAttribute("action", "claim").AddAttribute("amount", amount.String())
	if amount.IsZero() {
		return resp, saveStaker(deps.Storage, addr, s)
	}
	s.Pending = types.Uint128{}
	if err := saveStaker(deps.Storage, addr, s); err != nil {
		return nil, err
	}
	payout, err := token.TransferSubMsg(cfg.RewardToken, addr, amount)
	if err != nil {
		return nil, err
	}
	return resp.AddEvent(newStakerEvent(EventTypeClaimed, addr, amount, nil)).AddMessage(payout), nil
}

func (f *Farm) Query(deps vm.QueryDeps, env vm.Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	kind, err := vm.DecodeVariant(raw, &msg)
	if err != nil {
		return nil, err
	}
	cfg, err := loadConfig(deps.Storage)
	if err != nil {
		return nil, err
	}
	p, err := loadPool(deps.Storage)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "staker_info":
		addr := msg.StakerInfo.Staker
		s, err := loadStaker(deps.Storage, addr)
		if err != nil {
			return nil, err
		}
		if err := s.settle(p); err != nil {
			return nil, err
		}
		return vm.Marshal(StakerInfoResponse{Staker: addr, Bonded: s.Bonded, Pending: s.Pending})
	case "state":
		return vm.Marshal(StateResponse{
			LPToken:       cfg.LPToken,
			RewardToken:   cfg.RewardToken,
			TotalBonded:   p.TotalBonded,
			RewardIndex:   p.index().Dec(),
			Undistributed: p.Undistributed,
		})
	default:
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownMessage, kind)
	}
}

func (f *Farm) Migrate(deps vm.Deps, env vm.Env, raw []byte) (*vm.Response, error) {
	if _, err := loadConfig(deps.Storage); err != nil {
		return nil, err
	}
	return vm.NewResponse().AddAttribute("action", "migrate"), nil
}

func loadConfig(kv state.ReadKV) (*config, error) {
	cfg := new(config)
	ok, err := state.KVGet(kv, keyConfig, cfg)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, proxyerrors.ErrNotInitialized
	}
	return cfg, nil
}

func loadPool(kv state.ReadKV) (*pool, error) {
	p := new(pool)
	ok, err := state.KVGet(kv, keyPool, p)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, proxyerrors.ErrNotInitialized
	}
	return p, nil
}

func stakerKey(addr crypto.Address) []byte {
	key := make([]byte, 0, len(stakerPrefix)+crypto.AddressLength)
	key = append(key, stakerPrefix...)
	return append(key, addr[:]...)
}

func loadStaker(kv state.ReadKV, addr crypto.Address) (*staker, error) {
	s := new(staker)
	if _, err := state.KVGet(kv, stakerKey(addr), s); err != nil {
		return nil, err
	}
	return s, nil
}

func saveStaker(kv state.KV, addr crypto.Address, s *staker) error {
	return state.KVPut(kv, stakerKey(addr), s)
}
