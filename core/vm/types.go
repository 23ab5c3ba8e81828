package vm

import (
	"encoding/json"
	"fmt"

	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/crypto"
)

// Env describes the block context an operation executes in.
type Env struct {
	Contract crypto.Address
	Height   uint64
	Time     int64
}

// MessageInfo identifies the direct caller of an operation. For follow-up
// messages the caller is the contract that issued them.
type MessageInfo struct {
	Sender crypto.Address
}

// Querier lets a contract read another contract's public view.
type Querier interface {
	QuerySmart(contract crypto.Address, msg []byte) ([]byte, error)
}

// Deps is handed to mutating entry points.
type Deps struct {
	Storage state.KV
	Querier Querier
}

// QueryDeps is handed to queries. Storage is read-only.
type QueryDeps struct {
	Storage state.ReadKV
	Querier Querier
}

// Contract is implemented by every module the router can host.
type Contract interface {
	Instantiate(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error)
	Execute(deps Deps, env Env, info MessageInfo, msg []byte) (*Response, error)
	Query(deps QueryDeps, env Env, msg []byte) ([]byte, error)
	Migrate(deps Deps, env Env, msg []byte) (*Response, error)
}

// CommitObserver is implemented by contracts that account for their own
// responses. The router calls Committed once per successful handler, and only
// after the enclosing operation has been written.
type CommitObserver interface {
	Committed(resp *Response)
}

// SubMsg is an ordered follow-up request. The router executes it after the
// issuing handler returns, with the issuing contract as sender.
type SubMsg struct {
	Contract crypto.Address
	Msg      []byte
}

// Attribute is a key/value pair attached to a response.
type Attribute struct {
	Key   string
	Value string
}

// Response is what a handler returns on success.
type Response struct {
	Messages   []SubMsg
	Attributes []Attribute
	Events     []*types.Event
	Data       []byte
}

// NewResponse returns an empty response.
func NewResponse() *Response { return &Response{} }

// AddAttribute appends a key/value pair.
func (r *Response) AddAttribute(key, value string) *Response {
	r.Attributes = append(r.Attributes, Attribute{Key: key, Value: value})
	return r
}

// AddMessage appends an already-built follow-up message.
func (r *Response) AddMessage(msg SubMsg) *Response {
	r.Messages = append(r.Messages, msg)
	return r
}

// AddEvent appends a custom event.
func (r *Response) AddEvent(evt *types.Event) *Response {
	if evt != nil {
		r.Events = append(r.Events, evt)
	}
	return r
}

// Attr looks up the first attribute with key.
func (r *Response) Attr(key string) (string, bool) {
	if r == nil {
		return "", false
	}
	for _, attr := range r.Attributes {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return "", false
}

// ExecuteMsg JSON-encodes msg as a follow-up execution of contract.
func ExecuteMsg(contract crypto.Address, msg interface{}) (SubMsg, error) {
	if contract.IsZero() {
		return SubMsg{}, fmt.Errorf("vm: follow-up message requires a contract")
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return SubMsg{}, fmt.Errorf("vm: encode follow-up message: %w", err)
	}
	return SubMsg{Contract: contract, Msg: encoded}, nil
}

// QueryJSON runs a smart query and decodes the JSON reply into out.
func QueryJSON(q Querier, contract crypto.Address, msg interface{}, out interface{}) error {
	if q == nil {
		return fmt.Errorf("vm: querier not configured")
	}
	encoded, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("vm: encode query: %w", err)
	}
	raw, err := q.QuerySmart(contract, encoded)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("vm: decode query reply: %w", err)
	}
	return nil
}

// ContractEvent is the emitted form of an event produced by a contract.
type ContractEvent struct {
	Contract crypto.Address
	Label    string
	Height   uint64
	Event    *types.Event
}

// EventType satisfies events.Event.
func (e ContractEvent) EventType() string {
	if e.Event == nil {
		return ""
	}
	return e.Event.Type
}
