package genproxy

import (
	"encoding/json"
	"errors"
	"testing"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/token"
)

// stubProtocol records every request and never reports pending yield.
type stubProtocol struct {
	calls []string
}

func (s *stubProtocol) msg(kind string, cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	s.calls = append(s.calls, kind+":"+amount.String())
	return vm.ExecuteMsg(cfg.RewardProtocol, map[string]string{kind: amount.String()})
}

func (s *stubProtocol) Stake(cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	return s.msg("stake", cfg, amount)
}

func (s *stubProtocol) Unstake(cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	return s.msg("unstake", cfg, amount)
}

func (s *stubProtocol) EmergencyUnstake(cfg Config, amount types.Uint128) (vm.SubMsg, error) {
	return s.msg("emergency_unstake", cfg, amount)
}

func (s *stubProtocol) Accrue(cfg Config) (vm.SubMsg, error) {
	return s.msg("accrue", cfg, types.Uint128{})
}

func (s *stubProtocol) Staked(vm.Querier, Config, crypto.Address) (types.Uint128, error) {
	return types.NewUint128(7), nil
}

func (s *stubProtocol) Pending(vm.Querier, Config, crypto.Address) (*types.Uint128, error) {
	return nil, nil
}

type unitFixture struct {
	proxy    *Proxy
	protocol *stubProtocol
	deps     vm.Deps
	env      vm.Env
	cfg      Config
}

func newUnitFixture(t *testing.T) *unitFixture {
	t.Helper()
	protocol := &stubProtocol{}
	f := &unitFixture{
		proxy:    New(protocol),
		protocol: protocol,
		deps:     vm.Deps{Storage: state.NewNamespace(state.NewStore(nil), []byte("proxy"))},
		env:      vm.Env{Contract: crypto.Address{0x99}},
		cfg:      testConfig(),
	}
	msg := InstantiateMsg{
		GeneratorContractAddr: f.cfg.Generator.String(),
		LPTokenAddr:           f.cfg.LPPool.String(),
		RewardContractAddr:    f.cfg.RewardProtocol.String(),
		RewardTokenAddr:       f.cfg.RewardToken.String(),
	}
	if _, err := f.proxy.Instantiate(f.deps, f.env, vm.MessageInfo{Sender: f.cfg.Generator}, encode(t, msg)); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
	return f
}

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return raw
}

func (f *unitFixture) execute(t *testing.T, sender crypto.Address, msg interface{}) (*vm.Response, error) {
	t.Helper()
	return f.proxy.Execute(f.deps, f.env, vm.MessageInfo{Sender: sender}, encode(t, msg))
}

func (f *unitFixture) hook(t *testing.T, ledger, sender crypto.Address, amount uint64, payload interface{}) (*vm.Response, error) {
	t.Helper()
	msg := ExecuteMsg{Receive: &token.ReceiveMsg{Sender: sender, Amount: types.NewUint128(amount), Msg: encode(t, payload)}}
	return f.execute(t, ledger, msg)
}

func TestInstantiateDefaultsEntryToProtocol(t *testing.T) {
	f := newUnitFixture(t)
	cfg, err := loadConfig(f.deps.Storage)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg != f.cfg {
		t.Fatalf("config mismatch: %+v", cfg)
	}
}

func TestInstantiateRejectsMalformedAddress(t *testing.T) {
	deps := vm.Deps{Storage: state.NewNamespace(state.NewStore(nil), []byte("proxy"))}
	cfg := testConfig()
	msg := InstantiateMsg{
		GeneratorContractAddr: cfg.Generator.String(),
		LPTokenAddr:           "cosmos1notours",
		RewardContractAddr:    cfg.RewardProtocol.String(),
		RewardTokenAddr:       cfg.RewardToken.String(),
	}
	_, err := New(nil).Instantiate(deps, vm.Env{}, vm.MessageInfo{}, encode(t, msg))
	if !errors.Is(err, proxyerrors.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
	if _, err := loadConfig(deps.Storage); !errors.Is(err, proxyerrors.ErrNotInitialized) {
		t.Fatalf("config must not be persisted, got %v", err)
	}
}

func TestInstantiateTwiceRejected(t *testing.T) {
	f := newUnitFixture(t)
	msg := InstantiateMsg{
		GeneratorContractAddr: crypto.Address{0x42}.String(),
		LPTokenAddr:           f.cfg.LPPool.String(),
		RewardContractAddr:    f.cfg.RewardProtocol.String(),
		RewardTokenAddr:       f.cfg.RewardToken.String(),
	}
	if _, err := f.proxy.Instantiate(f.deps, f.env, vm.MessageInfo{}, encode(t, msg)); !errors.Is(err, proxyerrors.ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}
	cfg, _ := loadConfig(f.deps.Storage)
	if cfg.Generator != f.cfg.Generator {
		t.Fatalf("generator changed")
	}
}

func TestDepositIssuesSingleStake(t *testing.T) {
	f := newUnitFixture(t)
	resp, err := f.hook(t, f.cfg.LPPool, f.cfg.Generator, 1000, DepositPayload())
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(resp.Messages) != 1 {
		t.Fatalf("expected one stake message, got %d", len(resp.Messages))
	}
	if len(f.protocol.calls) != 1 || f.protocol.calls[0] != "stake:1000" {
		t.Fatalf("unexpected protocol calls %v", f.protocol.calls)
	}
}

func TestDepositUnauthorizedIssuesNothing(t *testing.T) {
	f := newUnitFixture(t)
	stranger := crypto.Address{0xee}
	cases := []struct{ ledger, sender crypto.Address }{
		{f.cfg.LPPool, stranger},
		{stranger, f.cfg.Generator},
		{f.cfg.RewardToken, f.cfg.Generator},
	}
	for _, tc := range cases {
		resp, err := f.hook(t, tc.ledger, tc.sender, 10, DepositPayload())
		if !errors.Is(err, proxyerrors.ErrUnauthorized) || resp != nil {
			t.Fatalf("expected unauthorized with no response, got %v %v", resp, err)
		}
	}
	if len(f.protocol.calls) != 0 {
		t.Fatalf("protocol must not be contacted: %v", f.protocol.calls)
	}
}

func TestDepositIncorrectPayloadVariant(t *testing.T) {
	f := newUnitFixture(t)
	payloads := []interface{}{
		map[string]struct{}{"withdraw": {}},
		map[string]struct{}{},
		"deposit",
		map[string]interface{}{"deposit": struct{}{}, "extra": 1},
	}
	for _, payload := range payloads {
		// The payload check runs before authorization.
		resp, err := f.hook(t, crypto.Address{0xee}, crypto.Address{0xee}, 10, payload)
		if !errors.Is(err, proxyerrors.ErrIncorrectPayloadVariant) || resp != nil {
			t.Fatalf("payload %v: expected incorrect variant, got %v", payload, err)
		}
	}
	msg := ExecuteMsg{Receive: &token.ReceiveMsg{Sender: f.cfg.Generator, Amount: types.NewUint128(1), Msg: []byte("{not json")}}
	if _, err := f.execute(t, f.cfg.LPPool, msg); !errors.Is(err, proxyerrors.ErrIncorrectPayloadVariant) {
		t.Fatalf("expected incorrect variant for undecodable payload, got %v", err)
	}
	if len(f.protocol.calls) != 0 {
		t.Fatalf("protocol must not be contacted: %v", f.protocol.calls)
	}
}

func TestGuardedOperationsRequireGenerator(t *testing.T) {
	f := newUnitFixture(t)
	account := crypto.Address{0x55}
	msgs := []ExecuteMsg{
		SendRewardsMsg(account, types.NewUint128(5)),
		WithdrawMsg(account, types.NewUint128(5)),
		EmergencyWithdrawMsg(account, types.NewUint128(5)),
	}
	for _, msg := range msgs {
		resp, err := f.execute(t, crypto.Address{0xee}, msg)
		if !errors.Is(err, proxyerrors.ErrUnauthorized) || resp != nil {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	}
	if len(f.protocol.calls) != 0 {
		t.Fatalf("protocol must not be contacted: %v", f.protocol.calls)
	}
}

func TestWithdrawOrdersUnstakeBeforeForward(t *testing.T) {
	f := newUnitFixture(t)
	account := crypto.Address{0x55}
	for _, tc := range []struct {
		msg  ExecuteMsg
		call string
	}{
		{WithdrawMsg(account, types.NewUint128(500)), "unstake:500"},
		{EmergencyWithdrawMsg(account, types.NewUint128(500)), "emergency_unstake:500"},
	} {
		f.protocol.calls = nil
		resp, err := f.execute(t, f.cfg.Generator, tc.msg)
		if err != nil {
			t.Fatalf("withdraw: %v", err)
		}
		if len(resp.Messages) != 2 {
			t.Fatalf("expected two messages, got %d", len(resp.Messages))
		}
		if resp.Messages[0].Contract != f.cfg.RewardProtocol || resp.Messages[1].Contract != f.cfg.LPPool {
			t.Fatalf("unexpected message order")
		}
		want, _ := token.TransferSubMsg(f.cfg.LPPool, account, types.NewUint128(500))
		if string(resp.Messages[1].Msg) != string(want.Msg) {
			t.Fatalf("unexpected forward %s", resp.Messages[1].Msg)
		}
		if len(f.protocol.calls) != 1 || f.protocol.calls[0] != tc.call {
			t.Fatalf("unexpected protocol calls %v", f.protocol.calls)
		}
	}
}

func TestPayoutRequiresPositiveAmountAndAccount(t *testing.T) {
	f := newUnitFixture(t)
	if _, err := f.execute(t, f.cfg.Generator, SendRewardsMsg(crypto.Address{0x55}, types.Uint128{})); !errors.Is(err, proxyerrors.ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := f.execute(t, f.cfg.Generator, WithdrawMsg(crypto.Address{}, types.NewUint128(1))); !errors.Is(err, proxyerrors.ErrInvalidAddress) {
		t.Fatalf("expected invalid address, got %v", err)
	}
}

func TestSendRewardsBuildsTransfer(t *testing.T) {
	f := newUnitFixture(t)
	resp, err := f.execute(t, f.cfg.Generator, SendRewardsMsg(crypto.Address{0x55}, types.NewUint128(50)))
	if err != nil {
		t.Fatalf("send rewards: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Contract != f.cfg.RewardToken {
		t.Fatalf("expected one reward transfer, got %+v", resp.Messages)
	}
}

func TestUpdateRewardsOpenToAnyone(t *testing.T) {
	f := newUnitFixture(t)
	resp, err := f.execute(t, crypto.Address{0xee}, UpdateRewardsMsg())
	if err != nil {
		t.Fatalf("update rewards: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Contract != f.cfg.RewardProtocol {
		t.Fatalf("expected one accrue message")
	}
}

func TestQueriesWithStubProtocol(t *testing.T) {
	f := newUnitFixture(t)
	qdeps := vm.QueryDeps{Storage: f.deps.Storage}
	raw, err := f.proxy.Query(qdeps, f.env, []byte(`{"pending_token":{}}`))
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("expected null pending, got %s", raw)
	}
	raw, err = f.proxy.Query(qdeps, f.env, []byte(`{"deposit":{}}`))
	if err != nil || string(raw) != `"7"` {
		t.Fatalf("deposit query: %s %v", raw, err)
	}
	raw, err = f.proxy.Query(qdeps, f.env, []byte(`{"reward_info":{}}`))
	if err != nil || string(raw) != `"`+f.cfg.RewardToken.String()+`"` {
		t.Fatalf("reward info: %s %v", raw, err)
	}
	if _, err := f.proxy.Query(qdeps, f.env, []byte(`{"config":{}}`)); !errors.Is(err, proxyerrors.ErrUnknownMessage) {
		t.Fatalf("expected unknown message, got %v", err)
	}
}

func TestMigrateLeavesConfig(t *testing.T) {
	f := newUnitFixture(t)
	if _, err := f.proxy.Migrate(f.deps, f.env, []byte(`{}`)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg, err := loadConfig(f.deps.Storage)
	if err != nil || cfg != f.cfg {
		t.Fatalf("config changed by migrate: %+v %v", cfg, err)
	}
}

func TestInstantiateRejectsZeroAddress(t *testing.T) {
	cfg := testConfig()
	zero := crypto.Address{}.String()
	valid := func() InstantiateMsg {
		return InstantiateMsg{
			GeneratorContractAddr: cfg.Generator.String(),
			LPTokenAddr:           cfg.LPPool.String(),
			RewardContractAddr:    cfg.RewardProtocol.String(),
			RewardTokenAddr:       cfg.RewardToken.String(),
		}
	}
	for name, mutate := range map[string]func(*InstantiateMsg){
		"generator": func(m *InstantiateMsg) { m.GeneratorContractAddr = zero },
		"lp token":  func(m *InstantiateMsg) { m.LPTokenAddr = zero },
		"protocol":  func(m *InstantiateMsg) { m.RewardContractAddr = zero },
		"entry":     func(m *InstantiateMsg) { m.RewardEntryAddr = zero },
		"reward":    func(m *InstantiateMsg) { m.RewardTokenAddr = zero },
	} {
		msg := valid()
		mutate(&msg)
		if _, err := msg.Config(); !errors.Is(err, proxyerrors.ErrInvalidAddress) {
			t.Fatalf("%s: expected invalid address, got %v", name, err)
		}
	}
}

// recordingQuerier answers every smart query with a fixed staker record and
// remembers which contract was asked.
type recordingQuerier struct {
	asked []crypto.Address
}

func (q *recordingQuerier) QuerySmart(contract crypto.Address, _ []byte) ([]byte, error) {
	q.asked = append(q.asked, contract)
	return []byte(`{"staker":"` + crypto.Address{0x99}.String() + `","bonded":"9","pending":"2"}`), nil
}

func TestFarmAdapterSplitsEntryFromProtocol(t *testing.T) {
	entry := crypto.Address{0x0e}
	f := &unitFixture{
		proxy: New(FarmAdapter{}),
		deps:  vm.Deps{Storage: state.NewNamespace(state.NewStore(nil), []byte("proxy"))},
		env:   vm.Env{Contract: crypto.Address{0x99}},
		cfg:   testConfig(),
	}
	f.cfg.RewardProtocolEntry = entry
	msg := InstantiateMsg{
		GeneratorContractAddr: f.cfg.Generator.String(),
		LPTokenAddr:           f.cfg.LPPool.String(),
		RewardContractAddr:    f.cfg.RewardProtocol.String(),
		RewardEntryAddr:       entry.String(),
		RewardTokenAddr:       f.cfg.RewardToken.String(),
	}
	if _, err := f.proxy.Instantiate(f.deps, f.env, vm.MessageInfo{}, encode(t, msg)); err != nil {
		t.Fatalf("instantiate: %v", err)
	}

	resp, err := f.hook(t, f.cfg.LPPool, f.cfg.Generator, 300, DepositPayload())
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].Contract != f.cfg.LPPool {
		t.Fatalf("expected one send on the LP ledger, got %+v", resp.Messages)
	}
	var send token.ExecuteMsg
	if err := json.Unmarshal(resp.Messages[0].Msg, &send); err != nil {
		t.Fatalf("decode stake: %v", err)
	}
	if send.Send == nil || send.Send.Contract != entry || send.Send.Amount.String() != "300" {
		t.Fatalf("stake must be sent to the entry, got %s", resp.Messages[0].Msg)
	}

	for _, op := range []ExecuteMsg{
		WithdrawMsg(crypto.Address{0x55}, types.NewUint128(10)),
		EmergencyWithdrawMsg(crypto.Address{0x55}, types.NewUint128(10)),
		UpdateRewardsMsg(),
	} {
		resp, err := f.execute(t, f.cfg.Generator, op)
		if err != nil {
			t.Fatalf("execute: %v", err)
		}
		if resp.Messages[0].Contract != f.cfg.RewardProtocol {
			t.Fatalf("expected %s to target the protocol, got %s", encode(t, op), resp.Messages[0].Contract)
		}
	}

	q := &recordingQuerier{}
	staked, err := FarmAdapter{}.Staked(q, f.cfg, f.env.Contract)
	if err != nil || staked.String() != "9" {
		t.Fatalf("staked %s %v", staked, err)
	}
	pending, err := FarmAdapter{}.Pending(q, f.cfg, f.env.Contract)
	if err != nil || pending == nil || pending.String() != "2" {
		t.Fatalf("pending %v %v", pending, err)
	}
	for _, asked := range q.asked {
		if asked != f.cfg.RewardProtocol {
			t.Fatalf("query sent to %s, want the protocol", asked)
		}
	}
}
