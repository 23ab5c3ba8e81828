package token

import (
	"strings"

	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/observability"
)

const (
	EventTypeTransfer = "token.transfer"
	EventTypeSend     = "token.send"
	EventTypeMint     = "token.mint"
	EventTypeBurn     = "token.burn"
)

func newMovementEvent(kind, symbol string, from, to crypto.Address, amount types.Uint128) *types.Event {
	attrs := map[string]string{
		"symbol": symbol,
		"amount": amount.String(),
	}
	if !from.IsZero() {
		attrs["from"] = from.String()
	}
	if !to.IsZero() {
		attrs["to"] = to.String()
	}
	return types.NewEvent(kind, attrs)
}

// Committed counts the balance movements of a written operation.
func (t *Token) Committed(resp *vm.Response) {
	for _, evt := range resp.Events {
		if !strings.HasPrefix(evt.Type, "token.") {
			continue
		}
		observability.Ledger().RecordMovement(evt.Attributes["symbol"], strings.TrimPrefix(evt.Type, "token."))
	}
}
