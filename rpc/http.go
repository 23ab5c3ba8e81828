package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"genproxy/config"
	"genproxy/core/types"
	"genproxy/core/vm"
	"genproxy/crypto"
	"genproxy/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB

	requestIDHeader = "X-Request-ID"
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
	codeRateLimited    = -32020

	codeInsufficientBalance = -32030
	codeCollaboratorFailure = -32031
	codeIncorrectPayload    = -32032
)

// Backend is the node surface the server dispatches to. *core.Node satisfies
// it.
type Backend interface {
	Height() uint64
	Contracts() []string
	Resolve(nameOrAddr string) (crypto.Address, error)
	Execute(ctx context.Context, sender, contract crypto.Address, msg []byte) (*vm.Result, error)
	Migrate(ctx context.Context, sender, contract crypto.Address, msg []byte) (*vm.Result, error)
	Query(contract crypto.Address, msg []byte) ([]byte, error)
	ProxyDeposit(ctx context.Context, sender crypto.Address, amount types.Uint128) (*vm.Result, error)
	ProxyUpdateRewards(ctx context.Context, sender crypto.Address) (*vm.Result, error)
	ProxySendRewards(ctx context.Context, sender, account crypto.Address, amount types.Uint128) (*vm.Result, error)
	ProxyWithdraw(ctx context.Context, sender, account crypto.Address, amount types.Uint128) (*vm.Result, error)
	ProxyEmergencyWithdraw(ctx context.Context, sender, account crypto.Address, amount types.Uint128) (*vm.Result, error)
	ProxyQuery(view string) (json.RawMessage, error)
	TokenBalance(ledger, holder crypto.Address) (types.Uint128, error)
	TokenTransfer(ctx context.Context, ledger, sender, recipient crypto.Address, amount types.Uint128) (*vm.Result, error)
}

// ServerConfig controls authentication and throttling.
type ServerConfig struct {
	JWTSecret             string
	Issuer                string
	Audience              string
	AllowAnonymousQueries bool
	RateLimitPerSecond    float64
	RateLimitBurst        int
	ReadTimeout           time.Duration
	WriteTimeout          time.Duration
}

// ServerConfigFrom adapts the node configuration. secret is the resolved JWT
// secret.
func ServerConfigFrom(cfg config.RPCConfig, secret string) ServerConfig {
	return ServerConfig{
		JWTSecret:             secret,
		Issuer:                cfg.Issuer,
		Audience:              cfg.Audience,
		AllowAnonymousQueries: cfg.AllowAnonymousQueries,
		RateLimitPerSecond:    cfg.RateLimitPerSecond,
		RateLimitBurst:        cfg.RateLimitBurst,
		ReadTimeout:           time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout:          time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
}

type Server struct {
	node    Backend
	cfg     ServerConfig
	logger  *slog.Logger
	auth    *authenticator
	limiter *limiter
	methods map[string]method
	events  EventSource

	serverMu   sync.Mutex
	httpServer *http.Server
	closed     bool
}

// Option customises a Server.
type Option func(*Server)

// WithEventSource enables the events_list method.
func WithEventSource(src EventSource) Option {
	return func(s *Server) { s.events = src }
}

func NewServer(node Backend, cfg ServerConfig, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		node:    node,
		cfg:     cfg,
		logger:  logger,
		auth:    newAuthenticator(cfg.JWTSecret, cfg.Issuer, cfg.Audience),
		limiter: newLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.methods = s.routes()
	return s
}

// Handler returns the HTTP surface: JSON-RPC on POST /, plus health and
// metrics endpoints.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "proxyd-rpc")
}

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadTimeout:       s.cfg.ReadTimeout,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}
	s.serverMu.Lock()
	if s.closed {
		s.serverMu.Unlock()
		return listener.Close()
	}
	s.httpServer = srv
	s.serverMu.Unlock()

	s.logger.Info("json-rpc server listening", slog.String("addr", listener.Addr().String()))
	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on addr and serves until Shutdown.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("rpc: listen %s: %w", addr, err)
	}
	return s.Serve(listener)
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
	s.closed = true
	srv := s.httpServer
	s.serverMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message) }

// statusWriter remembers the status code for metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func writeError(w http.ResponseWriter, status int, id interface{}, code int, message string, data interface{}) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj}
	_ = json.NewEncoder(w).Encode(resp)
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	resp := RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result}
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) handle(rw http.ResponseWriter, r *http.Request) {
	start := time.Now()
	w := &statusWriter{ResponseWriter: rw, status: http.StatusOK}
	requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(requestIDHeader, requestID)
	w.Header().Set("Content-Type", "application/json")

	methodName := ""
	defer func() {
		module, name := splitMethod(methodName)
		observability.RPC().Observe(module, name, w.status, time.Since(start))
	}()

	source := clientSource(r)
	if !s.limiter.allow(source) {
		observability.RPC().RecordThrottle("rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	req, status, rpcErr := readRequest(w, r)
	if rpcErr != nil {
		var id interface{}
		if req != nil {
			id = req.ID
		}
		writeError(w, status, id, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}

	m, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("method %s not found", req.Method), nil)
		return
	}
	methodName = req.Method

	var caller crypto.Address
	if m.mutating || !s.cfg.AllowAnonymousQueries {
		addr, authErr := s.auth.caller(r)
		if authErr != nil {
			observability.RPC().RecordAuthDenied(req.Method)
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		caller = addr
	}

	logger := s.logger.With(
		slog.String("request_id", requestID),
		slog.String("method", req.Method),
	)
	if !caller.IsZero() {
		logger = logger.With(slog.String("sender", caller.String()))
	}

	result, err := m.handler(r.Context(), caller, req.Params)
	if err != nil {
		status, rpcErr := toRPCError(err)
		if status >= http.StatusInternalServerError {
			logger.Error("rpc request failed", slog.Any("error", err))
		} else {
			logger.Debug("rpc request rejected", slog.Int("code", rpcErr.Code), slog.Any("error", err))
		}
		writeError(w, status, req.ID, rpcErr.Code, rpcErr.Message, rpcErr.Data)
		return
	}
	logger.Debug("rpc request served", slog.Duration("elapsed", time.Since(start)))
	writeResult(w, req.ID, result)
}

func splitMethod(name string) (string, string) {
	if name == "" {
		return "", ""
	}
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return name, name
}

// clientSource keys rate limiting on the first X-Forwarded-For hop, falling
// back to the peer host.
func clientSource(r *http.Request) string {
	if first, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); strings.TrimSpace(first) != "" {
		return strings.TrimSpace(first)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// readRequest decodes a single JSON-RPC envelope from a size-capped body. On
// failure it returns the HTTP status and error to report; the request is
// returned too when its id could be recovered.
func readRequest(w http.ResponseWriter, r *http.Request) (*RPCRequest, int, *RPCError) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	var tooLarge *http.MaxBytesError
	switch {
	case errors.As(err, &tooLarge):
		return nil, http.StatusRequestEntityTooLarge, &RPCError{Code: codeInvalidRequest, Message: fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)}
	case err != nil:
		return nil, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "failed to read request body", Data: err.Error()}
	case len(bytes.TrimSpace(body)) == 0:
		return nil, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "request body required"}
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		return nil, http.StatusBadRequest, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()}
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		return req, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC}
	}
	if strings.TrimSpace(req.Method) == "" {
		return req, http.StatusBadRequest, &RPCError{Code: codeInvalidRequest, Message: "method required"}
	}
	return req, http.StatusOK, nil
}
