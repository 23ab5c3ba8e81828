// Package token implements a fungible ledger contract. It backs both the LP
// share pool and the reward token.
package token

import (
	"errors"
	"fmt"
	"strings"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
)

const maxDecimals = 18

var (
	keyInfo       = []byte("info")
	balancePrefix = []byte("balance/")

	errInvalidName   = errors.New("token: name must be 1-64 characters")
	errInvalidSymbol = errors.New("token: symbol must be 2-12 alphanumeric characters")
	errDecimals      = errors.New("token: decimals exceed 18")
	errNotMinter     = errors.New("token: caller is not the minter")
)

type tokenInfo struct {
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply types.Uint128
	Minter      crypto.Address
}

// Token is a stateless handler; balances live in the storage it is given.
type Token struct{}

// New returns a ledger contract ready for registration with a vm.Router.
func New() *Token { return &Token{} }

var (
	_ vm.Contract       = (*Token)(nil)
	_ vm.CommitObserver = (*Token)(nil)
)

func (t *Token) Instantiate(deps vm.Deps, env vm.Env, info vm.MessageInfo, raw []byte) (*vm.Response, error) {
	var msg InstantiateMsg
	if err := decodeStrict(raw, &msg); err != nil {
		return nil, err
	}
	existing, err := loadInfo(deps.Storage)
	if err == nil && existing != nil {
		return nil, proxyerrors.ErrAlreadyInitialized
	}
	if err != nil && !errors.Is(err, proxyerrors.ErrNotInitialized) {
		return nil, err
	}
	if err := ValidateMetadata(msg); err != nil {
		return nil, err
	}

	meta := newInfo(msg)
	resp := vm.NewResponse().AddAttribute("action", "instantiate").AddAttribute("symbol", meta.Symbol)
	for _, alloc := range msg.InitialBalances {
		if alloc.Address.IsZero() {
			return nil, fmt.Errorf("%w: initial balance holder", proxyerrors.ErrInvalidAddress)
		}
		if err := credit(deps.Storage, alloc.Address, alloc.Amount); err != nil {
			return nil, err
		}
		supply, err := meta.TotalSupply.Add(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("token: total supply: %w", err)
		}
		meta.TotalSupply = supply
	}
	if err := state.KVPut(deps.Storage, keyInfo, meta); err != nil {
		return nil, err
	}
	return resp.AddAttribute("total_supply", meta.TotalSupply.String()), nil
}

func (t *Token) Execute(deps vm.Deps, env vm.Env, info vm.MessageInfo, raw []byte) (*vm.Response, error) {
	var msg ExecuteMsg
	kind, err := vm.DecodeVariant(raw, &msg)
	if err != nil {
		return nil, err
	}
	meta, err := loadInfo(deps.Storage)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "transfer":
		return t.transfer(deps, meta, info.Sender, msg.Transfer)
	case "send":
		return t.send(deps, meta, info.Sender, msg.Send)
	case "mint":
		return t.mint(deps, meta, info.Sender, msg.Mint)
	case "burn":
		return t.burn(deps, meta, info.Sender, msg.Burn)
	default:
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownMessage, kind)
	}
}

func (t *Token) transfer(deps vm.Deps, meta *tokenInfo, sender crypto.Address, msg *TransferMsg) (*vm.Response, error) {
	if err := move(deps.Storage, sender, msg.Recipient, msg.Amount); err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "transfer").
		AddEvent(newMovementEvent(EventTypeTransfer, meta.Symbol, sender, msg.Recipient, msg.Amount)), nil
}

func (t *Token) send(deps vm.Deps, meta *tokenInfo, sender crypto.Address, msg *SendMsg) (*vm.Response, error) {
	if err := move(deps.Storage, sender, msg.Contract, msg.Amount); err != nil {
		return nil, err
	}
	hook, err := vm.ExecuteMsg(msg.Contract, receiveHook{Receive: &ReceiveMsg{
		Sender: sender,
		Amount: msg.Amount,
		Msg:    msg.Msg,
	}})
	if err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "send").
		AddEvent(newMovementEvent(EventTypeSend, meta.Symbol, sender, msg.Contract, msg.Amount)).
		AddMessage(hook), nil
}

func (t *Token) mint(deps vm.Deps, meta *tokenInfo, sender crypto.Address, msg *MintMsg) (*vm.Response, error) {
	if meta.Minter.IsZero() || meta.Minter != sender {
		return nil, fmt.Errorf("%w: %v", proxyerrors.ErrUnauthorized, errNotMinter)
	}
	if msg.Amount.IsZero() {
		return nil, proxyerrors.ErrInvalidAmount
	}
	if msg.Recipient.IsZero() {
		return nil, fmt.Errorf("%w: recipient", proxyerrors.ErrInvalidAddress)
	}
	supply, err := meta.TotalSupply.Add(msg.Amount)
	if err != nil {
		return nil, fmt.Errorf("token: total supply: %w", err)
	}
	if err := credit(deps.Storage, msg.Recipient, msg.Amount); err != nil {
		return nil, err
	}
	meta.TotalSupply = supply
	if err := state.KVPut(deps.Storage, keyInfo, meta); err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "mint").
		AddEvent(newMovementEvent(EventTypeMint, meta.Symbol, crypto.Address{}, msg.Recipient, msg.Amount)), nil
}

func (t *Token) burn(deps vm.Deps, meta *tokenInfo, sender crypto.Address, msg *BurnMsg) (*vm.Response, error) {
	if msg.Amount.IsZero() {
		return nil, proxyerrors.ErrInvalidAmount
	}
	if err := debit(deps.Storage, sender, msg.Amount); err != nil {
		return nil, err
	}
	supply, err := meta.TotalSupply.Sub(msg.Amount)
	if err != nil {
		return nil, fmt.Errorf("token: total supply: %w", err)
	}
	meta.TotalSupply = supply
	if err := state.KVPut(deps.Storage, keyInfo, meta); err != nil {
		return nil, err
	}
	return vm.NewResponse().
		AddAttribute("action", "burn").
		AddEvent(newMovementEvent(EventTypeBurn, meta.Symbol, sender, crypto.Address{}, msg.Amount)), nil
}

func (t *Token) Query(deps vm.QueryDeps, env vm.Env, raw []byte) ([]byte, error) {
	var msg QueryMsg
	kind, err := vm.DecodeVariant(raw, &msg)
	if err != nil {
		return nil, err
	}
	meta, err := loadInfo(deps.Storage)
	if err != nil {
		return nil, err
	}
	switch kind {
	case "balance":
		bal, err := balanceOf(deps.Storage, msg.Balance.Address)
		if err != nil {
			return nil, err
		}
		return vm.Marshal(BalanceResponse{Balance: bal})
	case "token_info":
		return vm.Marshal(TokenInfoResponse{
			Name:        meta.Name,
			Symbol:      meta.Symbol,
			Decimals:    meta.Decimals,
			TotalSupply: meta.TotalSupply,
			Minter:      meta.Minter,
		})
	default:
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownMessage, kind)
	}
}

// Migrate leaves the ledger untouched.
func (t *Token) Migrate(deps vm.Deps, env vm.Env, raw []byte) (*vm.Response, error) {
	if _, err := loadInfo(deps.Storage); err != nil {
		return nil, err
	}
	return vm.NewResponse().AddAttribute("action", "migrate"), nil
}

func newInfo(msg InstantiateMsg) *tokenInfo {
	meta := &tokenInfo{
		Name:     strings.TrimSpace(msg.Name),
		Symbol:   strings.TrimSpace(msg.Symbol),
		Decimals: msg.Decimals,
	}
	if msg.Mint != nil {
		meta.Minter = msg.Mint.Minter
	}
	return meta
}

// ValidateMetadata checks the name, symbol, decimals and minter of msg.
// Initial balances are checked while they are credited.
func ValidateMetadata(msg InstantiateMsg) error {
	name := strings.TrimSpace(msg.Name)
	if name == "" || len(name) > 64 {
		return errInvalidName
	}
	symbol := strings.TrimSpace(msg.Symbol)
	if len(symbol) < 2 || len(symbol) > 12 {
		return errInvalidSymbol
	}
	for _, r := range symbol {
		if !(r >= 'A' && r <= 'Z' || r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
			return errInvalidSymbol
		}
	}
	if msg.Decimals > maxDecimals {
		return errDecimals
	}
	if msg.Mint != nil && msg.Mint.Minter.IsZero() {
		return fmt.Errorf("%w: minter", proxyerrors.ErrInvalidAddress)
	}
	return nil
}

func loadInfo(kv state.ReadKV) (*tokenInfo, error) {
	meta := new(tokenInfo)
	ok, err := state.KVGet(kv, keyInfo, meta)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, proxyerrors.ErrNotInitialized
	}
	return meta, nil
}

func balanceKey(addr crypto.Address) []byte {
	key := make([]byte, 0, len(balancePrefix)+crypto.AddressLength)
	key = append(key, balancePrefix...)
	return append(key, addr[:]...)
}

func balanceOf(kv state.ReadKV, addr crypto.Address) (types.Uint128, error) {
	var bal types.Uint128
	if _, err := state.KVGet(kv, balanceKey(addr), &bal); err != nil {
		return types.Uint128{}, err
	}
	return bal, nil
}

func credit(kv state.KV, addr crypto.Address, amount types.Uint128) error {
	bal, err := balanceOf(kv, addr)
	if err != nil {
		return err
	}
	next, err := bal.Add(amount)
	if err != nil {
		return fmt.Errorf("token: credit %s: %w", addr, err)
	}
	return state.KVPut(kv, balanceKey(addr), next)
}

func debit(kv state.KV, addr crypto.Address, amount types.Uint128) error {
	bal, err := balanceOf(kv, addr)
	if err != nil {
		return err
	}
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s, needs %s", proxyerrors.ErrInsufficientBalance, addr, bal, amount)
	}
	next, err := bal.Sub(amount)
	if err != nil {
		return err
	}
	return state.KVPut(kv, balanceKey(addr), next)
}

func move(kv state.KV, from, to crypto.Address, amount types.Uint128) error {
	if amount.IsZero() {
		return proxyerrors.ErrInvalidAmount
	}
	if to.IsZero() {
		return fmt.Errorf("%w: recipient", proxyerrors.ErrInvalidAddress)
	}
	if err := debit(kv, from, amount); err != nil {
		return err
	}
	return credit(kv, to, amount)
}

func decodeStrict(raw []byte, out interface{}) error {
	if err := vm.DecodeJSON(raw, out); err != nil {
		return fmt.Errorf("token: %w", err)
	}
	return nil
}
