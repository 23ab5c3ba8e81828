package token

import (
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
)

// InstantiateMsg creates a ledger with optional initial balances and minter.
type InstantiateMsg struct {
	Name            string      `json:"name"`
	Symbol          string      `json:"symbol"`
	Decimals        uint8       `json:"decimals"`
	InitialBalances []Balance   `json:"initial_balances"`
	Mint            *MinterInfo `json:"mint,omitempty"`
}

// Balance is an allocation in InstantiateMsg.
type Balance struct {
	Address crypto.Address `json:"address"`
	Amount  types.Uint128  `json:"amount"`
}

// MinterInfo names the account allowed to mint.
type MinterInfo struct {
	Minter crypto.Address `json:"minter"`
}

// ExecuteMsg is the tagged union of ledger operations.
type ExecuteMsg struct {
	Transfer *TransferMsg `json:"transfer,omitempty"`
	Send     *SendMsg     `json:"send,omitempty"`
	Mint     *MintMsg     `json:"mint,omitempty"`
	Burn     *BurnMsg     `json:"burn,omitempty"`
}

// Kind implements vm.Variant.
func (m *ExecuteMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"transfer": m.Transfer != nil,
		"send":     m.Send != nil,
		"mint":     m.Mint != nil,
		"burn":     m.Burn != nil,
	})
}

// TransferMsg moves amount from the caller to Recipient.
type TransferMsg struct {
	Recipient crypto.Address `json:"recipient"`
	Amount    types.Uint128  `json:"amount"`
}

// SendMsg moves amount to Contract and invokes its receive hook with Msg.
type SendMsg struct {
	Contract crypto.Address `json:"contract"`
	Amount   types.Uint128  `json:"amount"`
	Msg      []byte         `json:"msg"`
}

type MintMsg struct {
	Recipient crypto.Address `json:"recipient"`
	Amount    types.Uint128  `json:"amount"`
}

type BurnMsg struct {
	Amount types.Uint128 `json:"amount"`
}

// ReceiveMsg is delivered to the recipient of a Send. Sender is the account
// that initiated the Send; the ledger itself is the message sender.
type ReceiveMsg struct {
	Sender crypto.Address `json:"sender"`
	Amount types.Uint128  `json:"amount"`
	Msg    []byte         `json:"msg"`
}

// receiveHook is the envelope the ledger executes on the recipient.
type receiveHook struct {
	Receive *ReceiveMsg `json:"receive"`
}

// QueryMsg is the tagged union of ledger views.
type QueryMsg struct {
	Balance   *BalanceQuery `json:"balance,omitempty"`
	TokenInfo *struct{}     `json:"token_info,omitempty"`
}

// Kind implements vm.Variant.
func (m *QueryMsg) Kind() (string, error) {
	return vm.SingleKind(map[string]bool{
		"balance":    m.Balance != nil,
		"token_info": m.TokenInfo != nil,
	})
}

type BalanceQuery struct {
	Address crypto.Address `json:"address"`
}

type BalanceResponse struct {
	Balance types.Uint128 `json:"balance"`
}

type TokenInfoResponse struct {
	Name        string         `json:"name"`
	Symbol      string         `json:"symbol"`
	Decimals    uint8          `json:"decimals"`
	TotalSupply types.Uint128  `json:"total_supply"`
	Minter      crypto.Address `json:"minter"`
}

// TransferSubMsg builds a follow-up Transfer on ledger.
func TransferSubMsg(ledger, recipient crypto.Address, amount types.Uint128) (vm.SubMsg, error) {
	return vm.ExecuteMsg(ledger, ExecuteMsg{Transfer: &TransferMsg{Recipient: recipient, Amount: amount}})
}

// SendSubMsg builds a follow-up Send on ledger carrying payload as the hook
// message. payload is JSON encoded.
func SendSubMsg(ledger, contract crypto.Address, amount types.Uint128, payload interface{}) (vm.SubMsg, error) {
	encoded, err := vm.Marshal(payload)
	if err != nil {
		return vm.SubMsg{}, err
	}
	return vm.ExecuteMsg(ledger, ExecuteMsg{Send: &SendMsg{Contract: contract, Amount: amount, Msg: encoded}})
}

// QueryBalance reads holder's balance on ledger.
func QueryBalance(q vm.Querier, ledger, holder crypto.Address) (types.Uint128, error) {
	var resp BalanceResponse
	if err := vm.QueryJSON(q, ledger, QueryMsg{Balance: &BalanceQuery{Address: holder}}, &resp); err != nil {
		return types.Uint128{}, err
	}
	return resp.Balance, nil
}
