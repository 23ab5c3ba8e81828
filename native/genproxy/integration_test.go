package genproxy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/events"
	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/farm"
	"genproxy/native/token"
)

type deployment struct {
	router    *vm.Router
	recorder  *events.Recorder
	generator crypto.Address
	funder    crypto.Address
	lp        crypto.Address
	reward    crypto.Address
	farm      crypto.Address
	proxy     crypto.Address
}

func deploy(t *testing.T) *deployment {
	t.Helper()
	recorder := &events.Recorder{}
	router := vm.NewRouter(state.NewStore(nil), vm.WithEmitter(recorder))
	d := &deployment{
		router:    router,
		recorder:  recorder,
		generator: crypto.Address{0x6e},
		funder:    crypto.Address{0xf0},
	}
	register := func(label string, code vm.Contract) crypto.Address {
		addr, err := router.Register(label, code, d.generator)
		if err != nil {
			t.Fatalf("register %s: %v", label, err)
		}
		return addr
	}
	d.lp = register("lp-token", token.New())
	d.reward = register("reward-token", token.New())
	d.farm = register("farm", farm.New())
	d.proxy = register("generator-proxy", New(FarmAdapter{}))

	d.instantiate(t, d.lp, token.InstantiateMsg{Name: "Pool Share", Symbol: "LP", Decimals: 6,
		InitialBalances: []token.Balance{{Address: d.generator, Amount: types.NewUint128(5000)}}})
	d.instantiate(t, d.reward, token.InstantiateMsg{Name: "Reward", Symbol: "RWD", Decimals: 6,
		InitialBalances: []token.Balance{{Address: d.funder, Amount: types.NewUint128(1000)}}})
	d.instantiate(t, d.farm, farm.InstantiateMsg{LPToken: d.lp, RewardToken: d.reward})
	d.instantiate(t, d.proxy, InstantiateMsg{
		GeneratorContractAddr: d.generator.String(),
		LPTokenAddr:           d.lp.String(),
		RewardContractAddr:    d.farm.String(),
		RewardTokenAddr:       d.reward.String(),
	})
	recorder.Reset()
	return d
}

func (d *deployment) instantiate(t *testing.T, contract crypto.Address, msg interface{}) {
	t.Helper()
	if _, err := d.router.Instantiate(context.Background(), d.generator, contract, encode(t, msg)); err != nil {
		t.Fatalf("instantiate: %v", err)
	}
}

func (d *deployment) deposit(t *testing.T, from crypto.Address, ledger crypto.Address, amount uint64) (*vm.Result, error) {
	t.Helper()
	sub, err := token.SendSubMsg(ledger, d.proxy, types.NewUint128(amount), DepositPayload())
	if err != nil {
		t.Fatalf("build send: %v", err)
	}
	return d.router.Execute(context.Background(), from, ledger, sub.Msg)
}

func (d *deployment) exec(t *testing.T, sender crypto.Address, msg ExecuteMsg) (*vm.Result, error) {
	t.Helper()
	return d.router.Execute(context.Background(), sender, d.proxy, encode(t, msg))
}

func (d *deployment) query(t *testing.T, msg string, out interface{}) {
	t.Helper()
	raw, err := d.router.Query(d.proxy, []byte(msg))
	if err != nil {
		t.Fatalf("query %s: %v", msg, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", raw, err)
	}
}

func (d *deployment) staked(t *testing.T) string {
	t.Helper()
	var amount types.Uint128
	d.query(t, `{"deposit":{}}`, &amount)
	return amount.String()
}

func (d *deployment) rewardHeld(t *testing.T) string {
	t.Helper()
	var amount types.Uint128
	d.query(t, `{"reward":{}}`, &amount)
	return amount.String()
}

func (d *deployment) balance(t *testing.T, ledger, holder crypto.Address) string {
	t.Helper()
	bal, err := token.QueryBalance(d.router, ledger, holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return bal.String()
}

func (d *deployment) fundFarm(t *testing.T, amount uint64) {
	t.Helper()
	sub, err := token.SendSubMsg(d.reward, d.farm, types.NewUint128(amount), farm.DistributePayload())
	if err != nil {
		t.Fatalf("build distribute: %v", err)
	}
	if _, err := d.router.Execute(context.Background(), d.funder, d.reward, sub.Msg); err != nil {
		t.Fatalf("distribute: %v", err)
	}
}

func (d *deployment) countEvents(kind string) int {
	n := 0
	for _, evt := range d.recorder.Events() {
		if ce, ok := evt.(vm.ContractEvent); ok && ce.EventType() == kind {
			n++
		}
	}
	return n
}

func TestScenarioLegitimateDeposit(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if got := d.countEvents(farm.EventTypeBonded); got != 1 {
		t.Fatalf("expected exactly one stake at the farm, got %d", got)
	}
	if got := d.countEvents(EventTypeDeposit); got != 1 {
		t.Fatalf("expected one deposit event, got %d", got)
	}
	if got := d.staked(t); got != "1000" {
		t.Fatalf("deposit query returned %s", got)
	}
	if got := d.balance(t, d.lp, d.proxy); got != "0" {
		t.Fatalf("proxy should not keep LP shares, holds %s", got)
	}
	if got := d.balance(t, d.lp, d.farm); got != "1000" {
		t.Fatalf("farm holds %s", got)
	}
}

func TestDepositFromWrongPartyRevertsTransfer(t *testing.T) {
	d := deploy(t)
	stranger := crypto.Address{0xee}
	if _, err := d.router.Execute(context.Background(), d.generator, d.lp,
		encode(t, token.ExecuteMsg{Transfer: &token.TransferMsg{Recipient: stranger, Amount: types.NewUint128(300)}})); err != nil {
		t.Fatalf("fund stranger: %v", err)
	}
	d.recorder.Reset()
	_, err := d.deposit(t, stranger, d.lp, 300)
	if !errors.Is(err, proxyerrors.ErrUnauthorized) || !errors.Is(err, proxyerrors.ErrCollaboratorFailure) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := d.balance(t, d.lp, stranger); got != "300" {
		t.Fatalf("stranger's send should be reverted, holds %s", got)
	}
	if got := d.staked(t); got != "0" {
		t.Fatalf("nothing should be staked, got %s", got)
	}
	if len(d.recorder.Events()) != 0 {
		t.Fatalf("failed operation must not emit events")
	}
}

func TestDepositThroughWrongLedger(t *testing.T) {
	d := deploy(t)
	fake, err := d.router.Register("fake-lp", token.New(), crypto.Address{})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	d.instantiate(t, fake, token.InstantiateMsg{Name: "Fake", Symbol: "LP",
		InitialBalances: []token.Balance{{Address: d.generator, Amount: types.NewUint128(1000)}}})
	_, err = d.deposit(t, d.generator, fake, 1000)
	if !errors.Is(err, proxyerrors.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := d.staked(t); got != "0" {
		t.Fatalf("nothing should be staked, got %s", got)
	}
}

func TestDepositWithForeignPayload(t *testing.T) {
	d := deploy(t)
	sub, err := token.SendSubMsg(d.lp, d.proxy, types.NewUint128(10), farm.BondPayload())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = d.router.Execute(context.Background(), d.generator, d.lp, sub.Msg)
	if !errors.Is(err, proxyerrors.ErrIncorrectPayloadVariant) {
		t.Fatalf("expected incorrect payload variant, got %v", err)
	}
	if got := d.balance(t, d.lp, d.generator); got != "5000" {
		t.Fatalf("generator balance changed to %s", got)
	}
}

func TestScenarioUnauthorizedWithdraw(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d.recorder.Reset()
	x := crypto.Address{0x58}
	res, err := d.exec(t, x, WithdrawMsg(x, types.NewUint128(500)))
	if !errors.Is(err, proxyerrors.ErrUnauthorized) || res != nil {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if got := d.staked(t); got != "1000" {
		t.Fatalf("staked amount changed to %s", got)
	}
	if got := d.balance(t, d.lp, x); got != "0" {
		t.Fatalf("X received %s", got)
	}
	if len(d.recorder.Events()) != 0 {
		t.Fatalf("rejected withdraw emitted events")
	}
}

func TestWithdrawConservesShares(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	account := crypto.Address{0x5a}
	res, err := d.exec(t, d.generator, WithdrawMsg(account, types.NewUint128(400)))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Messages < 2 {
		t.Fatalf("expected unstake and forward, got %d messages", res.Messages)
	}
	if got := d.staked(t); got != "600" {
		t.Fatalf("staked %s, want 600", got)
	}
	if got := d.balance(t, d.lp, account); got != "400" {
		t.Fatalf("account received %s, want 400", got)
	}
	if got := d.balance(t, d.lp, d.proxy); got != "0" {
		t.Fatalf("proxy kept %s LP", got)
	}
}

func TestWithdrawAtomicWhenUnstakeFails(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	account := crypto.Address{0x5a}
	_, err := d.exec(t, d.generator, WithdrawMsg(account, types.NewUint128(1500)))
	if !errors.Is(err, proxyerrors.ErrCollaboratorFailure) || !errors.Is(err, proxyerrors.ErrInsufficientBalance) {
		t.Fatalf("expected collaborator failure, got %v", err)
	}
	var collab *proxyerrors.CollaboratorError
	if !errors.As(err, &collab) || collab.Contract != d.farm.String() {
		t.Fatalf("failure should name the farm, got %v", err)
	}
	if got := d.staked(t); got != "1000" {
		t.Fatalf("staked changed to %s", got)
	}
	if got := d.balance(t, d.lp, account); got != "0" {
		t.Fatalf("forward executed despite failed unstake: %s", got)
	}
}

func TestEmergencyWithdrawForfeitsPending(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d.fundFarm(t, 30)
	account := crypto.Address{0x5a}
	if _, err := d.exec(t, d.generator, EmergencyWithdrawMsg(account, types.NewUint128(1000))); err != nil {
		t.Fatalf("emergency withdraw: %v", err)
	}
	if got := d.balance(t, d.lp, account); got != "1000" {
		t.Fatalf("principal not recovered: %s", got)
	}
	var pending *types.Uint128
	d.query(t, `{"pending_token":{}}`, &pending)
	if pending == nil || !pending.IsZero() {
		t.Fatalf("pending should be forfeited, got %v", pending)
	}
	if _, err := d.exec(t, d.generator, UpdateRewardsMsg()); err != nil {
		t.Fatalf("update rewards: %v", err)
	}
	if got := d.rewardHeld(t); got != "0" {
		t.Fatalf("forfeited rewards reached the proxy: %s", got)
	}
}

func TestScenarioRewardRoundTrip(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d.fundFarm(t, 50)

	var pending *types.Uint128
	d.query(t, `{"pending_token":{}}`, &pending)
	if pending == nil || pending.String() != "50" {
		t.Fatalf("pending %v, want 50", pending)
	}

	anyone := crypto.Address{0x77}
	if _, err := d.exec(t, anyone, UpdateRewardsMsg()); err != nil {
		t.Fatalf("update rewards: %v", err)
	}
	if got := d.rewardHeld(t); got != "50" {
		t.Fatalf("reward query %s, want 50", got)
	}
	// Nothing new accrued: a second update is a successful no-op.
	if _, err := d.exec(t, anyone, UpdateRewardsMsg()); err != nil {
		t.Fatalf("second update rewards: %v", err)
	}
	if got := d.rewardHeld(t); got != "50" {
		t.Fatalf("reward query after idle update %s, want 50", got)
	}

	y := crypto.Address{0x59}
	if _, err := d.exec(t, d.generator, SendRewardsMsg(y, types.NewUint128(50))); err != nil {
		t.Fatalf("send rewards: %v", err)
	}
	if got := d.balance(t, d.reward, y); got != "50" {
		t.Fatalf("Y holds %s, want 50", got)
	}
	if got := d.rewardHeld(t); got != "0" {
		t.Fatalf("proxy still holds %s", got)
	}
}

func TestSendRewardsOverBalanceRejected(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d.fundFarm(t, 20)
	if _, err := d.exec(t, d.generator, UpdateRewardsMsg()); err != nil {
		t.Fatalf("update rewards: %v", err)
	}
	y := crypto.Address{0x59}
	_, err := d.exec(t, d.generator, SendRewardsMsg(y, types.NewUint128(21)))
	if !errors.Is(err, proxyerrors.ErrInsufficientBalance) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	if got := d.balance(t, d.reward, y); got != "0" {
		t.Fatalf("partial payout of %s", got)
	}
	if got := d.rewardHeld(t); got != "20" {
		t.Fatalf("proxy balance changed to %s", got)
	}
}

func TestRewardInfoAndMigrate(t *testing.T) {
	d := deploy(t)
	var addr crypto.Address
	d.query(t, `{"reward_info":{}}`, &addr)
	if addr != d.reward {
		t.Fatalf("reward info %s, want %s", addr, d.reward)
	}
	if _, err := d.router.Migrate(context.Background(), d.generator, d.proxy, []byte(`{}`)); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	d.query(t, `{"reward_info":{}}`, &addr)
	if addr != d.reward {
		t.Fatalf("migrate changed config")
	}
	if _, err := d.router.Migrate(context.Background(), crypto.Address{0xee}, d.proxy, []byte(`{}`)); err == nil {
		t.Fatalf("migrate by non-admin should fail")
	}
}

func TestSmallFundingRoundsStayClaimable(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 3); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	for i := 0; i < 3; i++ {
		d.fundFarm(t, 1)
	}

	var pending *types.Uint128
	d.query(t, `{"pending_token":{}}`, &pending)
	if pending == nil || pending.String() != "3" {
		t.Fatalf("pending %v, want 3", pending)
	}
	if got := d.balance(t, d.reward, d.farm); got != "3" {
		t.Fatalf("farm holds %s, want 3", got)
	}
	if _, err := d.exec(t, crypto.Address{0x77}, UpdateRewardsMsg()); err != nil {
		t.Fatalf("update rewards: %v", err)
	}
	if got := d.rewardHeld(t); got != "3" {
		t.Fatalf("reward query %s, want 3", got)
	}
}

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	next:
		for _, m := range family.GetMetric() {
			for _, pair := range m.GetLabel() {
				if want, ok := labels[pair.GetName()]; ok && want != pair.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestOperationMetricsFollowCommit(t *testing.T) {
	d := deploy(t)
	if _, err := d.deposit(t, d.generator, d.lp, 1000); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	d.fundFarm(t, 20)
	if _, err := d.exec(t, d.generator, UpdateRewardsMsg()); err != nil {
		t.Fatalf("update rewards: %v", err)
	}
	sent := map[string]string{"operation": "send_rewards", "outcome": "success"}
	moved := map[string]string{"symbol": "RWD", "action": "transfer"}
	beforeSent := counterValue(t, "genproxy_proxy_operations_total", sent)
	beforeMoved := counterValue(t, "genproxy_ledger_movements_total", moved)

	// The proxy handler succeeds but the reward ledger rejects the overdraft,
	// so the whole call is reverted.
	if _, err := d.exec(t, d.generator, SendRewardsMsg(crypto.Address{0x59}, types.NewUint128(21))); err == nil {
		t.Fatalf("expected overdraft to fail")
	}
	if got := counterValue(t, "genproxy_proxy_operations_total", sent); got != beforeSent {
		t.Fatalf("reverted send counted as success: %v -> %v", beforeSent, got)
	}
	if got := counterValue(t, "genproxy_ledger_movements_total", moved); got != beforeMoved {
		t.Fatalf("reverted transfer counted as movement: %v -> %v", beforeMoved, got)
	}

	if _, err := d.exec(t, d.generator, SendRewardsMsg(crypto.Address{0x59}, types.NewUint128(20))); err != nil {
		t.Fatalf("send rewards: %v", err)
	}
	if got := counterValue(t, "genproxy_proxy_operations_total", sent); got != beforeSent+1 {
		t.Fatalf("committed send not counted: %v -> %v", beforeSent, got)
	}
	if got := counterValue(t, "genproxy_ledger_movements_total", moved); got != beforeMoved+1 {
		t.Fatalf("committed transfer not counted: %v -> %v", beforeMoved, got)
	}
}
