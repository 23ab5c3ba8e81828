package vm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	proxyerrors "genproxy/core/errors"
	"genproxy/core/events"
	"genproxy/core/state"
	"genproxy/core/types"
	"genproxy/crypto"
	"genproxy/observability"
)

// DefaultMaxDepth bounds how deep follow-up messages may nest.
const DefaultMaxDepth = 16

const (
	kindInstantiate = "instantiate"
	kindExecute     = "execute"
	kindMigrate     = "migrate"
)

var (
	errNilStore         = errors.New("vm: store not configured")
	errDuplicateLabel   = errors.New("vm: contract label already registered")
	errMaxDepth         = errors.New("vm: follow-up message depth exceeded")
	errMigrateForbidden = errors.New("vm: only the contract admin may migrate")
	errNestedAtomic     = errors.New("vm: atomic section already open")
)

type instance struct {
	label string
	code  Contract
	admin crypto.Address
}

// Result summarises a committed top-level operation.
type Result struct {
	Height   uint64
	Data     []byte
	Events   []*types.Event
	Messages int
}

// Router hosts contracts and executes operations against them. Every top-level
// call is atomic: follow-up messages run in the order issued, depth first, and
// if any of them fails every write made by the call is reverted before the
// error is returned.
//
// Router is not safe for concurrent use; callers serialise access.
type Router struct {
	store     *state.Store
	contracts map[crypto.Address]*instance
	labels    map[string]crypto.Address
	emitter   events.Emitter
	logger    *slog.Logger
	tracer    trace.Tracer
	ops       metric.Int64Counter
	nowFn     func() int64
	maxDepth  int
	height    uint64
	batch     *batch
}

// batch collects the operations of an open Atomic section.
type batch struct {
	snap    int
	height  uint64
	settled []func()
}

// Option customises a Router.
type Option func(*Router)

// WithEmitter forwards committed contract events to emitter.
func WithEmitter(emitter events.Emitter) Option {
	return func(r *Router) {
		if emitter != nil {
			r.emitter = emitter
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithNowFunc overrides the block time source. Primarily intended for tests.
func WithNowFunc(now func() int64) Option {
	return func(r *Router) {
		if now != nil {
			r.nowFn = now
		}
	}
}

// WithMaxDepth overrides DefaultMaxDepth.
func WithMaxDepth(depth int) Option {
	return func(r *Router) {
		if depth > 0 {
			r.maxDepth = depth
		}
	}
}

// WithHeight sets the starting height, e.g. when resuming from disk.
func WithHeight(height uint64) Option {
	return func(r *Router) { r.height = height }
}

// NewRouter creates a router over store.
func NewRouter(store *state.Store, opts ...Option) *Router {
	r := &Router{
		store:     store,
		contracts: make(map[crypto.Address]*instance),
		labels:    make(map[string]crypto.Address),
		emitter:   events.NoopEmitter{},
		logger:    slog.Default(),
		tracer:    otel.Tracer("genproxy/core/vm"),
		nowFn:     func() int64 { return time.Now().Unix() },
		maxDepth:  DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(r)
	}
	ops, err := otel.Meter("genproxy/core/vm").Int64Counter("vm.operations",
		metric.WithDescription("Top-level router operations by entry point and outcome."))
	if err != nil {
		r.logger.Warn("vm operation counter unavailable", slog.Any("error", err))
	} else {
		r.ops = ops
	}
	return r
}

func (r *Router) countOperation(ctx context.Context, kind, outcome string) {
	if r.ops == nil {
		return
	}
	r.ops.Add(ctx, 1, metric.WithAttributes(
		attribute.String("vm.kind", kind),
		attribute.String("vm.outcome", outcome),
	))
}

// Register hosts code under the address derived from label. admin is the only
// account allowed to migrate the instance.
func (r *Router) Register(label string, code Contract, admin crypto.Address) (crypto.Address, error) {
	if code == nil {
		return crypto.Address{}, fmt.Errorf("vm: nil contract for %q", label)
	}
	if _, ok := r.labels[label]; ok {
		return crypto.Address{}, fmt.Errorf("%w: %q", errDuplicateLabel, label)
	}
	addr := crypto.ContractAddress(label)
	r.contracts[addr] = &instance{label: label, code: code, admin: admin}
	r.labels[label] = addr
	return addr, nil
}

// Lookup returns the address registered for label.
func (r *Router) Lookup(label string) (crypto.Address, bool) {
	addr, ok := r.labels[label]
	return addr, ok
}

// Labels lists registered labels in lexical order.
func (r *Router) Labels() []string {
	out := make([]string, 0, len(r.labels))
	for label := range r.labels {
		out = append(out, label)
	}
	sort.Strings(out)
	return out
}

// Height returns the height of the last committed operation.
func (r *Router) Height() uint64 { return r.height }

// Instantiate runs the contract's instantiate entry point.
func (r *Router) Instantiate(ctx context.Context, sender, contract crypto.Address, msg []byte) (*Result, error) {
	return r.run(ctx, kindInstantiate, sender, contract, msg)
}

// Execute runs a mutating operation on contract on behalf of sender.
func (r *Router) Execute(ctx context.Context, sender, contract crypto.Address, msg []byte) (*Result, error) {
	return r.run(ctx, kindExecute, sender, contract, msg)
}

// Migrate runs the contract's migrate entry point. Only the admin recorded at
// registration may call it.
func (r *Router) Migrate(ctx context.Context, sender, contract crypto.Address, msg []byte) (*Result, error) {
	inst, ok := r.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownContract, contract)
	}
	if inst.admin.IsZero() || inst.admin != sender {
		return nil, errMigrateForbidden
	}
	return r.run(ctx, kindMigrate, sender, contract, msg)
}

// Query runs a read-only view. Pending writes of an in-flight operation are
// visible, committed state otherwise.
func (r *Router) Query(contract crypto.Address, msg []byte) ([]byte, error) {
	return r.QuerySmart(contract, msg)
}

// QuerySmart satisfies Querier.
func (r *Router) QuerySmart(contract crypto.Address, msg []byte) ([]byte, error) {
	if r.store == nil {
		return nil, errNilStore
	}
	inst, ok := r.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownContract, contract)
	}
	deps := QueryDeps{
		Storage: state.ReadOnly{ReadKV: r.namespace(contract)},
		Querier: r,
	}
	return inst.code.Query(deps, r.env(contract, r.height), msg)
}

func (r *Router) run(ctx context.Context, kind string, sender, contract crypto.Address, msg []byte) (*Result, error) {
	if r.store == nil {
		return nil, errNilStore
	}
	if ctx == nil {
		ctx = context.Background()
	}
	label := r.labelOf(contract)
	ctx, span := r.tracer.Start(ctx, "vm."+kind, trace.WithAttributes(
		attribute.String("vm.contract", contract.String()),
		attribute.String("vm.label", label),
		attribute.String("vm.sender", sender.String()),
	))
	defer span.End()

	started := time.Now()
	height := r.height + 1
	snap := r.store.Snapshot()
	exec := &execution{router: r, height: height}
	data, err := exec.dispatch(kind, sender, contract, msg, 0)
	if err != nil {
		r.store.RevertToSnapshot(snap)
		r.countOperation(ctx, kind, "reverted")
		observability.VM().RecordExecution(kind, label, "error", time.Since(started))
		observability.VM().RecordRollback(kind)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Debug("vm operation reverted",
			slog.String("kind", kind),
			slog.String("contract", label),
			slog.String("sender", sender.String()),
			slog.Int("messages", exec.messages),
			slog.Any("error", err))
		return nil, err
	}
	span.SetAttributes(attribute.Int("vm.messages", exec.messages))
	result := &Result{Height: height, Data: data, Messages: exec.messages}
	for _, emitted := range exec.emitted {
		result.Events = append(result.Events, emitted.Event)
	}
	elapsed := time.Since(started)
	settle := func() {
		r.countOperation(ctx, kind, "committed")
		observability.VM().RecordExecution(kind, label, "success", elapsed)
		observability.VM().RecordSubMessages(label, exec.messages)
		exec.settle()
	}
	if r.batch != nil {
		r.height = height
		r.batch.settled = append(r.batch.settled, settle)
		return result, nil
	}
	if err := r.store.Commit(); err != nil {
		r.store.Discard()
		r.countOperation(ctx, kind, "commit_error")
		observability.VM().RecordExecution(kind, label, "error", time.Since(started))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	r.height = height
	settle()
	return result, nil
}

// Atomic runs fn as a single unit of work. Operations fn issues through the
// router are staged instead of written; if fn fails all of them are dropped
// and the height is restored, otherwise they are committed in one batch.
// Events and commit observers fire only after that write succeeds.
func (r *Router) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.store == nil {
		return errNilStore
	}
	if r.batch != nil {
		return errNestedAtomic
	}
	if ctx == nil {
		ctx = context.Background()
	}
	b := &batch{snap: r.store.Snapshot(), height: r.height}
	r.batch = b
	err := fn(ctx)
	r.batch = nil
	if err == nil {
		if err = r.store.Commit(); err != nil {
			err = fmt.Errorf("vm: atomic commit: %w", err)
		}
	}
	if err != nil {
		r.store.RevertToSnapshot(b.snap)
		r.height = b.height
		observability.VM().RecordRollback("atomic")
		return err
	}
	for _, settle := range b.settled {
		settle()
	}
	return nil
}

func (r *Router) namespace(contract crypto.Address) *state.Namespace {
	return state.NewNamespace(r.store, contract[:])
}

func (r *Router) env(contract crypto.Address, height uint64) Env {
	return Env{Contract: contract, Height: height, Time: r.nowFn()}
}

func (r *Router) labelOf(contract crypto.Address) string {
	if inst, ok := r.contracts[contract]; ok {
		return inst.label
	}
	return "unknown"
}

// execution tracks a single top-level operation.
type execution struct {
	router   *Router
	height   uint64
	messages int
	emitted  []ContractEvent
	handled  []handled
}

type handled struct {
	observer CommitObserver
	resp     *Response
}

// settle publishes the events of a written operation and hands every
// response to its contract's observer.
func (x *execution) settle() {
	r := x.router
	for _, emitted := range x.emitted {
		observability.Ledger().RecordCommitted(emitted.Label, emitted.Event.Type)
		r.emitter.Emit(emitted)
	}
	for _, h := range x.handled {
		h.observer.Committed(h.resp)
	}
}

func (x *execution) dispatch(kind string, sender, contract crypto.Address, msg []byte, depth int) ([]byte, error) {
	r := x.router
	if depth > r.maxDepth {
		return nil, errMaxDepth
	}
	inst, ok := r.contracts[contract]
	if !ok {
		return nil, fmt.Errorf("%w: %s", proxyerrors.ErrUnknownContract, contract)
	}
	deps := Deps{Storage: r.namespace(contract), Querier: r}
	env := r.env(contract, x.height)
	info := MessageInfo{Sender: sender}

	var (
		resp *Response
		err  error
	)
	switch kind {
	case kindInstantiate:
		resp, err = inst.code.Instantiate(deps, env, info, msg)
	case kindExecute:
		resp, err = inst.code.Execute(deps, env, info, msg)
	case kindMigrate:
		resp, err = inst.code.Migrate(deps, env, msg)
	default:
		return nil, fmt.Errorf("vm: unsupported entry point %q", kind)
	}
	if err != nil {
		return nil, err
	}
	if resp == nil {
		resp = NewResponse()
	}
	x.collect(contract, inst.label, resp)
	if observer, ok := inst.code.(CommitObserver); ok {
		x.handled = append(x.handled, handled{observer: observer, resp: resp})
	}

	// Follow-up messages execute strictly in order; the first failure stops
	// the queue and the caller reverts everything.
	for _, sub := range resp.Messages {
		x.messages++
		if _, err := x.dispatch(kindExecute, contract, sub.Contract, sub.Msg, depth+1); err != nil {
			return nil, proxyerrors.Collaborator(sub.Contract.String(), err)
		}
	}
	return resp.Data, nil
}

func (x *execution) collect(contract crypto.Address, label string, resp *Response) {
	if len(resp.Attributes) > 0 {
		attrs := make(map[string]string, len(resp.Attributes)+1)
		for _, attr := range resp.Attributes {
			attrs[attr.Key] = attr.Value
		}
		attrs["contract"] = contract.String()
		x.emitted = append(x.emitted, ContractEvent{
			Contract: contract,
			Label:    label,
			Height:   x.height,
			Event:    types.NewEvent("wasm", attrs),
		})
	}
	for _, evt := range resp.Events {
		attrs := make(map[string]string, len(evt.Attributes)+1)
		for k, v := range evt.Attributes {
			attrs[k] = v
		}
		attrs["contract"] = contract.String()
		x.emitted = append(x.emitted, ContractEvent{
			Contract: contract,
			Label:    label,
			Height:   x.height,
			Event:    types.NewEvent(evt.Type, attrs),
		})
	}
}
