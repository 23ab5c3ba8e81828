package rpc

import (
	"bytes"
	"context"
	"encoding/json"

	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
)

type handlerFunc func(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error)

type method struct {
	// mutating methods always require an authenticated caller.
	mutating bool
	handler  handlerFunc
}

func (s *Server) routes() map[string]method {
	methods := map[string]method{
		"proxy_deposit":           {mutating: true, handler: s.handleProxyDeposit},
		"proxy_updateRewards":     {mutating: true, handler: s.handleProxyUpdateRewards},
		"proxy_sendRewards":       {mutating: true, handler: s.handleProxySendRewards},
		"proxy_withdraw":          {mutating: true, handler: s.handleProxyWithdraw},
		"proxy_emergencyWithdraw": {mutating: true, handler: s.handleProxyEmergencyWithdraw},
		"proxy_getDeposit":        {handler: s.proxyView("deposit")},
		"proxy_getReward":         {handler: s.proxyView("reward")},
		"proxy_getPendingToken":   {handler: s.proxyView("pending_token")},
		"proxy_getRewardInfo":     {handler: s.proxyView("reward_info")},
		"token_balance":           {handler: s.handleTokenBalance},
		"token_transfer":          {mutating: true, handler: s.handleTokenTransfer},
		"vm_execute":              {mutating: true, handler: s.handleVMExecute},
		"vm_migrate":              {mutating: true, handler: s.handleVMMigrate},
		"vm_query":                {handler: s.handleVMQuery},
		"node_height":             {handler: s.handleNodeHeight},
		"node_contracts":          {handler: s.handleNodeContracts},
	}
	if s.events != nil {
		methods["events_list"] = method{handler: s.handleEventsList}
	}
	return methods
}

type amountParams struct {
	Amount types.Uint128 `json:"amount"`
}

type accountAmountParams struct {
	Account crypto.Address `json:"account"`
	Amount  types.Uint128  `json:"amount"`
}

type tokenBalanceParams struct {
	Token  string         `json:"token"`
	Holder crypto.Address `json:"holder"`
}

type tokenTransferParams struct {
	Token     string         `json:"token"`
	Recipient crypto.Address `json:"recipient"`
	Amount    types.Uint128  `json:"amount"`
}

type contractMsgParams struct {
	Contract string          `json:"contract"`
	Msg      json.RawMessage `json:"msg"`
}

type txResult struct {
	Height   uint64          `json:"height"`
	Messages int             `json:"messages"`
	Events   []*types.Event  `json:"events"`
	Data     json.RawMessage `json:"data,omitempty"`
}

type balanceResult struct {
	Token   string        `json:"token"`
	Holder  string        `json:"holder"`
	Balance types.Uint128 `json:"balance"`
}

// decodeParams expects exactly one parameter object and rejects unknown
// fields.
func decodeParams(params []json.RawMessage, out interface{}) error {
	if len(params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	dec := json.NewDecoder(bytes.NewReader(params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("%v", err)
	}
	return nil
}

// noParams accepts an empty list or a single empty object.
func noParams(params []json.RawMessage) error {
	if len(params) == 0 {
		return nil
	}
	var empty struct{}
	return decodeParams(params, &empty)
}

func toTxResult(res *vm.Result) *txResult {
	out := &txResult{Height: res.Height, Messages: res.Messages, Events: res.Events}
	if out.Events == nil {
		out.Events = []*types.Event{}
	}
	if len(res.Data) > 0 {
		if json.Valid(res.Data) {
			out.Data = json.RawMessage(res.Data)
		} else if encoded, err := json.Marshal(res.Data); err == nil {
			out.Data = encoded
		}
	}
	return out
}

func (s *Server) handleProxyDeposit(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p amountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := s.node.ProxyDeposit(ctx, caller, p.Amount)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) handleProxyUpdateRewards(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	if err := noParams(params); err != nil {
		return nil, err
	}
	res, err := s.node.ProxyUpdateRewards(ctx, caller)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) handleProxySendRewards(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := s.node.ProxySendRewards(ctx, caller, p.Account, p.Amount)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) handleProxyWithdraw(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := s.node.ProxyWithdraw(ctx, caller, p.Account, p.Amount)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) handleProxyEmergencyWithdraw(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p accountAmountParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	res, err := s.node.ProxyEmergencyWithdraw(ctx, caller, p.Account, p.Amount)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) proxyView(view string) handlerFunc {
	return func(_ context.Context, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
		if err := noParams(params); err != nil {
			return nil, err
		}
		return s.node.ProxyQuery(view)
	}
}

func (s *Server) handleTokenBalance(_ context.Context, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p tokenBalanceParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ledger, err := s.resolve(p.Token)
	if err != nil {
		return nil, err
	}
	balance, err := s.node.TokenBalance(ledger, p.Holder)
	if err != nil {
		return nil, err
	}
	return balanceResult{Token: ledger.String(), Holder: p.Holder.String(), Balance: balance}, nil
}

func (s *Server) handleTokenTransfer(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	var p tokenTransferParams
	if err := decodeParams(params, &p); err != nil {
		return nil, err
	}
	ledger, err := s.resolve(p.Token)
	if err != nil {
		return nil, err
	}
	res, err := s.node.TokenTransfer(ctx, ledger, caller, p.Recipient, p.Amount)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) decodeContractMsg(params []json.RawMessage) (crypto.Address, []byte, error) {
	var p contractMsgParams
	if err := decodeParams(params, &p); err != nil {
		return crypto.Address{}, nil, err
	}
	contract, err := s.resolve(p.Contract)
	if err != nil {
		return crypto.Address{}, nil, err
	}
	if len(bytes.TrimSpace(p.Msg)) == 0 {
		return crypto.Address{}, nil, invalidParams("msg required")
	}
	return contract, []byte(p.Msg), nil
}

func (s *Server) handleVMExecute(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	contract, msg, err := s.decodeContractMsg(params)
	if err != nil {
		return nil, err
	}
	res, err := s.node.Execute(ctx, caller, contract, msg)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) handleVMMigrate(ctx context.Context, caller crypto.Address, params []json.RawMessage) (interface{}, error) {
	contract, msg, err := s.decodeContractMsg(params)
	if err != nil {
		return nil, err
	}
	res, err := s.node.Migrate(ctx, caller, contract, msg)
	if err != nil {
		return nil, err
	}
	return toTxResult(res), nil
}

func (s *Server) handleVMQuery(_ context.Context, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	contract, msg, err := s.decodeContractMsg(params)
	if err != nil {
		return nil, err
	}
	reply, err := s.node.Query(contract, msg)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(reply), nil
}

func (s *Server) handleNodeHeight(_ context.Context, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	if err := noParams(params); err != nil {
		return nil, err
	}
	return s.node.Height(), nil
}

func (s *Server) handleNodeContracts(_ context.Context, _ crypto.Address, params []json.RawMessage) (interface{}, error) {
	if err := noParams(params); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for _, label := range s.node.Contracts() {
		addr, err := s.node.Resolve(label)
		if err != nil {
			return nil, err
		}
		out[label] = addr.String()
	}
	return out, nil
}

func (s *Server) resolve(nameOrAddr string) (crypto.Address, error) {
	if nameOrAddr == "" {
		return crypto.Address{}, invalidParams("contract or token required")
	}
	addr, err := s.node.Resolve(nameOrAddr)
	if err != nil {
		return crypto.Address{}, invalidParams("%v", err)
	}
	return addr, nil
}
