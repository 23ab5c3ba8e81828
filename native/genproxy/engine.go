// Package genproxy implements the generator proxy: it takes LP shares the
// generator deposits, stakes them with an end reward protocol, withdraws them
// on the generator's request and relays the reward tokens that protocol pays.
//
// The proxy keeps no per-user ledger. Staked amounts and pending yield are
// always read from the end protocol.
package genproxy

import (
	"errors"
	"fmt"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/token"
	"genproxy/observability"
)

// Proxy implements vm.Contract on top of a RewardProtocol adapter.
type Proxy struct {
	protocol RewardProtocol
}

// New returns a proxy bound to protocol. A nil protocol selects FarmAdapter.
func New(protocol RewardProtocol) *Proxy {
	if protocol == nil {
		protocol = FarmAdapter{}
	}
	return &Proxy{protocol: protocol}
}

var (
	_ vm.Contract       = (*Proxy)(nil)
	_ vm.CommitObserver = (*Proxy)(nil)
)

func (p *Proxy) Instantiate(deps vm.Deps, env vm.Env, info vm.MessageInfo, raw []byte) (*vm.Response, error) {
	var msg InstantiateMsg
	if err := vm.DecodeJSON(raw, &msg); err != nil {
		return nil, err
	}
	cfg, err := msg.Config()
	if err != nil {
		return nil, err
	}
	if err := saveConfig(deps.Storage, cfg); err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "instantiate").
		AddAttribute("generator", cfg.Generator.String()).
		AddAttribute("reward_token", cfg.RewardToken.String()), nil
}

func (p *Proxy) Execute(deps vm.Deps, env vm.Env, info vm.MessageInfo, raw []byte) (*vm.Response, error) {
	cfg, err := loadConfig(deps.Storage)
	if err != nil {
		return nil, err
	}
	var msg ExecuteMsg
	kind, err := vm.DecodeVariant(raw, &msg)
	if err != nil {
		observability.Proxy().RecordOperation("unknown", outcomeOf(err))
		return nil, err
	}

	var (
		op   Operation
		resp *vm.Response
	)
	switch kind {
	case "receive":
		op = OpDeposit
		resp, err = p.receive(cfg, info.Sender, msg.Receive)
	case "update_rewards":
		op = OpUpdateRewards
		resp, err = p.updateRewards(cfg, info.Sender)
	case "send_rewards":
		op = OpSendRewards
		resp, err = p.sendRewards(cfg, info.Sender, msg.SendRewards)
	case "withdraw":
		op = OpWithdraw
		resp, err = p.withdraw(cfg, info.Sender, msg.Withdraw, false)
	case "emergency_withdraw":
		op = OpEmergencyWithdraw
		resp, err = p.withdraw(cfg, info.Sender, msg.EmergencyWithdraw, true)
	default:
		err = fmt.Errorf("%w: %s", proxyerrors.ErrUnknownMessage, kind)
	}
	if err != nil {
		observability.Proxy().RecordOperation(op.String(), outcomeOf(err))
		return nil, err
	}
	return resp, nil
}

// Committed counts a successful operation once the router has written it.
// Failures are counted in Execute since a failing handler never commits.
func (p *Proxy) Committed(resp *vm.Response) {
	action, ok := resp.Attr("action")
	if !ok || action == "instantiate" {
		return
	}
	observability.Proxy().RecordOperation(action, outcomeOf(nil))
	observability.Proxy().RecordForwarded(action, len(resp.Messages))
}

// receive handles an LP Send into the proxy. The payload is decoded before the
// caller is checked, so a foreign payload reports the variant error even when
// it also comes from the wrong party.
func (p *Proxy) receive(cfg Config, ledger crypto.Address, msg *token.ReceiveMsg) (*vm.Response, error) {
	var hook HookMsg
	kind, err := vm.DecodeVariant(msg.Msg, &hook)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", proxyerrors.ErrIncorrectPayloadVariant, err)
	}
	switch kind {
	case "deposit":
		if err := Authorize(cfg, OpDeposit, msg.Sender, ledger); err != nil {
			return nil, err
		}
		if msg.Amount.IsZero() {
			return nil, proxyerrors.ErrInvalidAmount
		}
		stake, err := p.protocol.Stake(cfg, msg.Amount)
		if err != nil {
			return nil, err
		}
		return vm.NewResponse().
			AddAttribute("action", "deposit").
			AddAttribute("amount", msg.Amount.String()).
			AddEvent(newDepositEvent(cfg, msg.Amount)).
			AddMessage(stake), nil
	default:
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrIncorrectPayloadVariant, kind)
	}
}

func (p *Proxy) updateRewards(cfg Config, caller crypto.Address) (*vm.Response, error) {
	if err := Authorize(cfg, OpUpdateRewards, caller, crypto.Address{}); err != nil {
		return nil, err
	}
	accrue, err := p.protocol.Accrue(cfg)
	if err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "update_rewards").
		AddEvent(newRewardsUpdatedEvent(cfg, caller)).
		AddMessage(accrue), nil
}

// sendRewards never accrues first; the reward ledger rejects an overdraft.
func (p *Proxy) sendRewards(cfg Config, caller crypto.Address, msg *AccountAmount) (*vm.Response, error) {
	if err := Authorize(cfg, OpSendRewards, caller, crypto.Address{}); err != nil {
		return nil, err
	}
	if err := validatePayout(msg); err != nil {
		return nil, err
	}
	transfer, err := token.TransferSubMsg(cfg.RewardToken, msg.Account, msg.Amount)
	if err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "send_rewards").
		AddAttribute("amount", msg.Amount.String()).
		AddEvent(newPayoutEvent(EventTypeRewardsSent, cfg.RewardToken, msg.Account, msg.Amount)).
		AddMessage(transfer), nil
}

// withdraw issues the unstake first and the LP transfer second. The router
// runs them in that order and reverts both if either fails.
func (p *Proxy) withdraw(cfg Config, caller crypto.Address, msg *AccountAmount, emergency bool) (*vm.Response, error) {
	op, action, eventType := OpWithdraw, "withdraw", EventTypeWithdraw
	if emergency {
		op, action, eventType = OpEmergencyWithdraw, "emergency_withdraw", EventTypeEmergencyWithdraw
	}
	if err := Authorize(cfg, op, caller, crypto.Address{}); err != nil {
		return nil, err
	}
	if err := validatePayout(msg); err != nil {
		return nil, err
	}
	var (
		unstake vm.SubMsg
		err     error
	)
	if emergency {
		unstake, err = p.protocol.EmergencyUnstake(cfg, msg.Amount)
	} else {
		unstake, err = p.protocol.Unstake(cfg, msg.Amount)
	}
	if err != nil {
		return nil, err
	}
	forward, err := token.TransferSubMsg(cfg.LPPool, msg.Account, msg.Amount)
	if err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", action).
		AddAttribute("amount", msg.Amount.String()).
		AddEvent(newPayoutEvent(eventType, cfg.LPPool, msg.Account, msg.Amount)).
		AddMessage(unstake).
		AddMessage(forward), nil
}

// Migrate is a no-op. Config is left exactly as it was.
func (p *Proxy) Migrate(deps vm.Deps, env vm.Env, raw []byte) (*vm.Response, error) {
	if _, err := loadConfig(deps.Storage); err != nil {
		return nil, err
	}
	return vm.NewResponse(), nil
}

func validatePayout(msg *AccountAmount) error {
	if msg.Account.IsZero() {
		return fmt.Errorf("%w: account", proxyerrors.ErrInvalidAddress)
	}
	if msg.Amount.IsZero() {
		return fmt.Errorf("%w: amount must be positive", proxyerrors.ErrInvalidAmount)
	}
	return nil
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, proxyerrors.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, proxyerrors.ErrIncorrectPayloadVariant):
		return "incorrect_payload"
	case errors.Is(err, proxyerrors.ErrInvalidAmount), errors.Is(err, proxyerrors.ErrInvalidAddress):
		return "invalid"
	case errors.Is(err, proxyerrors.ErrUnknownMessage):
		return "unknown_message"
	default:
		return "error"
	}
}
