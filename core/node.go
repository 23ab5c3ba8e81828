package core

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"genproxy/core/events"
	"genproxy/core/genesis"
	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/native/genproxy"
	"genproxy/native/token"
	"genproxy/storage"
)

var (
	keyHeight      = []byte("node/height")
	keyInitialized = []byte("node/genesis")

	errNilDatabase = errors.New("node: database not configured")
	errUnknownName = errors.New("node: unknown contract label")
)

// Node is the central controller. It owns the store and router, and
// serialises every operation so callers such as the RPC server may use it
// concurrently.
type Node struct {
	db         storage.Database
	store      *state.Store
	router     *vm.Router
	deployment *genesis.Deployment
	logger     *slog.Logger
	stateMu    sync.Mutex
}

// Option customises a Node.
type Option func(*nodeOptions)

type nodeOptions struct {
	emitter  events.Emitter
	logger   *slog.Logger
	protocol genproxy.RewardProtocol
	nowFn    func() int64
}

// WithEmitter forwards committed contract events (e.g. to the indexer).
func WithEmitter(emitter events.Emitter) Option {
	return func(o *nodeOptions) { o.emitter = emitter }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *nodeOptions) { o.logger = logger }
}

// WithRewardProtocol swaps the adapter the proxy uses for its end protocol.
func WithRewardProtocol(protocol genproxy.RewardProtocol) Option {
	return func(o *nodeOptions) { o.protocol = protocol }
}

// WithNowFunc overrides the block time source. Primarily intended for tests.
func WithNowFunc(now func() int64) Option {
	return func(o *nodeOptions) { o.nowFn = now }
}

// NewNode opens the node over db, registering the genesis contracts and
// instantiating them the first time db is used.
func NewNode(ctx context.Context, db storage.Database, spec *genesis.GenesisSpec, opts ...Option) (*Node, error) {
	if db == nil {
		return nil, errNilDatabase
	}
	if spec == nil {
		return nil, fmt.Errorf("node: genesis spec required")
	}
	o := nodeOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	height, err := loadHeight(db)
	if err != nil {
		return nil, err
	}
	store := state.NewStore(db)
	routerOpts := []vm.Option{vm.WithLogger(o.logger), vm.WithHeight(height), vm.WithEmitter(o.emitter)}
	if o.nowFn != nil {
		routerOpts = append(routerOpts, vm.WithNowFunc(o.nowFn))
	}
	router := vm.NewRouter(store, routerOpts...)
	deployment, err := genesis.Register(spec, router, o.protocol)
	if err != nil {
		return nil, err
	}
	n := &Node{db: db, store: store, router: router, deployment: deployment, logger: o.logger}

	initialized, err := has(db, keyInitialized)
	if err != nil {
		return nil, err
	}
	if !initialized {
		// Genesis and its marker are written together or not at all, so a
		// failed start leaves the database untouched.
		err := router.Atomic(ctx, func(ctx context.Context) error {
			if err := genesis.Instantiate(ctx, spec, router, deployment); err != nil {
				return err
			}
			if err := store.Set(keyInitialized, []byte{1}); err != nil {
				return err
			}
			return store.Set(keyHeight, encodeHeight(router.Height()))
		})
		if err != nil {
			return nil, err
		}
		n.logger.Info("genesis applied",
			slog.String("proxy", deployment.Proxy.String()),
			slog.Uint64("height", router.Height()))
	}
	return n, nil
}

// Deployment returns the genesis contract addresses.
func (n *Node) Deployment() *genesis.Deployment { return n.deployment }

// Height returns the number of committed operations.
func (n *Node) Height() uint64 {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.router.Height()
}

// Resolve maps a label or bech32 address to a contract address.
func (n *Node) Resolve(nameOrAddr string) (crypto.Address, error) {
	if addr, ok := n.deployment.Contracts[nameOrAddr]; ok {
		return addr, nil
	}
	addr, err := crypto.ParseAddress(nameOrAddr)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("%w: %q", errUnknownName, nameOrAddr)
	}
	return addr, nil
}

// Contracts lists registered labels.
func (n *Node) Contracts() []string { return n.router.Labels() }

// Execute runs msg against contract on behalf of sender.
func (n *Node) Execute(ctx context.Context, sender, contract crypto.Address, msg []byte) (*vm.Result, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	res, err := n.router.Execute(ctx, sender, contract, msg)
	if err != nil {
		return nil, err
	}
	if err := n.persistHeight(); err != nil {
		return nil, err
	}
	return res, nil
}

// Migrate runs the migrate entry point of contract.
func (n *Node) Migrate(ctx context.Context, sender, contract crypto.Address, msg []byte) (*vm.Result, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	res, err := n.router.Migrate(ctx, sender, contract, msg)
	if err != nil {
		return nil, err
	}
	if err := n.persistHeight(); err != nil {
		return nil, err
	}
	return res, nil
}

// Query runs a read-only view.
func (n *Node) Query(contract crypto.Address, msg []byte) ([]byte, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return n.router.Query(contract, msg)
}

func (n *Node) executeJSON(ctx context.Context, sender, contract crypto.Address, msg interface{}) (*vm.Result, error) {
	raw, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return n.Execute(ctx, sender, contract, raw)
}

// ProxyDeposit sends amount LP shares from sender into the proxy with a
// deposit payload. Only the generator's deposits are accepted.
func (n *Node) ProxyDeposit(ctx context.Context, sender crypto.Address, amount types.Uint128) (*vm.Result, error) {
	sub, err := token.SendSubMsg(n.deployment.LPToken, n.deployment.Proxy, amount, genproxy.DepositPayload())
	if err != nil {
		return nil, err
	}
	return n.Execute(ctx, sender, n.deployment.LPToken, sub.Msg)
}

func (n *Node) ProxyUpdateRewards(ctx context.Context, sender crypto.Address) (*vm.Result, error) {
	return n.executeJSON(ctx, sender, n.deployment.Proxy, genproxy.UpdateRewardsMsg())
}

func (n *Node) ProxySendRewards(ctx context.Context, sender, account crypto.Address, amount types.Uint128) (*vm.Result, error) {
	return n.executeJSON(ctx, sender, n.deployment.Proxy, genproxy.SendRewardsMsg(account, amount))
}

func (n *Node) ProxyWithdraw(ctx context.Context, sender, account crypto.Address, amount types.Uint128) (*vm.Result, error) {
	return n.executeJSON(ctx, sender, n.deployment.Proxy, genproxy.WithdrawMsg(account, amount))
}

func (n *Node) ProxyEmergencyWithdraw(ctx context.Context, sender, account crypto.Address, amount types.Uint128) (*vm.Result, error) {
	return n.executeJSON(ctx, sender, n.deployment.Proxy, genproxy.EmergencyWithdrawMsg(account, amount))
}

// ProxyQuery runs one of the proxy views by name (deposit, reward,
// pending_token, reward_info) and returns the raw JSON reply.
func (n *Node) ProxyQuery(view string) (json.RawMessage, error) {
	raw, err := json.Marshal(map[string]struct{}{view: {}})
	if err != nil {
		return nil, err
	}
	return n.Query(n.deployment.Proxy, raw)
}

// TokenBalance returns holder's balance on ledger.
func (n *Node) TokenBalance(ledger, holder crypto.Address) (types.Uint128, error) {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	return token.QueryBalance(n.router, ledger, holder)
}

// TokenTransfer moves amount on ledger from sender to recipient.
func (n *Node) TokenTransfer(ctx context.Context, ledger, sender, recipient crypto.Address, amount types.Uint128) (*vm.Result, error) {
	sub, err := token.TransferSubMsg(ledger, recipient, amount)
	if err != nil {
		return nil, err
	}
	return n.Execute(ctx, sender, ledger, sub.Msg)
}

// Close releases the underlying database.
func (n *Node) Close() {
	n.stateMu.Lock()
	defer n.stateMu.Unlock()
	n.db.Close()
}

func (n *Node) persistHeight() error {
	return n.db.Put(keyHeight, encodeHeight(n.router.Height()))
}

func encodeHeight(height uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, height)
	return buf
}

func loadHeight(db storage.Database) (uint64, error) {
	raw, err := db.Get(keyHeight)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("node: corrupt height record")
	}
	return binary.BigEndian.Uint64(raw), nil
}

func has(db storage.Database, key []byte) (bool, error) {
	_, err := db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
