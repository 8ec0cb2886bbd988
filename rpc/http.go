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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"seaescrow/core"
	"seaescrow/core/types"
	"seaescrow/crypto"
	"seaescrow/native/escrow"
	"seaescrow/native/token"
	"seaescrow/observability"
	"seaescrow/rpc/middleware"
)

const (
	jsonRPCVersion      = "2.0"
	defaultMaxBodyBytes = 1 << 20
	submitLimitKey      = "submit"
	submitScope         = "escrow:submit"
)

const (
	codeParseError      = -32700
	codeInvalidRequest  = -32600
	codeMethodNotFound  = -32601
	codeInvalidParams   = -32602
	codeServerError     = -32000
	codeUnauthenticated = -32001
	codeRateLimited     = -32020
	codeNotFound        = -32022
	codeInvalidState    = -32031
	codeUnauthorized    = -32032
	codeAccountMismatch = -32033
	codeTransferFailed  = -32034
	codeNonce           = -32035
	codeAlreadyExists   = -32036
)

// Backend is the execution and query surface the server exposes.
type Backend interface {
	ProgramID() crypto.Address
	TokenProgramID() crypto.Address
	Execute(ctx context.Context, ix *types.Instruction) (*types.Receipt, error)
	Order(addr crypto.Address) (*escrow.Order, error)
	DeriveOrder(seller crypto.Address, orderID uint16) (crypto.Address, uint8, crypto.Address, error)
	SellerOrders(seller crypto.Address) ([]crypto.Address, error)
	TokenAccount(addr crypto.Address) (*token.Account, error)
	Mint(addr crypto.Address) (*token.Mint, error)
	OwnerAccounts(owner crypto.Address) ([]crypto.Address, error)
	DeriveTokenAccount(owner, mint crypto.Address) (crypto.Address, error)
	DeriveMint(authority crypto.Address, symbol string) (crypto.Address, error)
	Nonce(addr crypto.Address) (uint64, error)
}

// ReceiptStore reads the audit journal. A nil store disables the receipt
// methods.
type ReceiptStore interface {
	ListByOrder(ctx context.Context, order crypto.Address, limit int) ([]*types.Receipt, error)
	ListBySigner(ctx context.Context, signer crypto.Address, limit int) ([]*types.Receipt, error)
	Get(ctx context.Context, id string) (*types.Receipt, error)
}

type ServerConfig struct {
	MaxBodyBytes      int64
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	TrustProxyHeaders bool
	// SubmitRateLimit bounds escrow_submit calls per client.
	SubmitRateLimit middleware.RateLimit
	Auth            middleware.AuthConfig
	// Tracing wraps the router with otelhttp.
	Tracing bool
}

type Server struct {
	backend  Backend
	receipts ReceiptStore
	cfg      ServerConfig
	logger   *slog.Logger

	auth    *middleware.Authenticator
	limiter *middleware.RateLimiter
	obs     *middleware.Observability
	methods map[string]methodHandler
	handler http.Handler

	serverMu   sync.Mutex
	httpServer *http.Server
}

type methodHandler func(ctx context.Context, r *http.Request, req *RPCRequest) (interface{}, *RPCError)

func NewServer(backend Backend, receipts ReceiptStore, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if backend == nil {
		return nil, errors.New("rpc: backend required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.Auth.Enabled && strings.TrimSpace(cfg.Auth.HMACSecret) == "" {
		return nil, errors.New("rpc: auth enabled without an HMAC secret")
	}
	s := &Server{
		backend:  backend,
		receipts: receipts,
		cfg:      cfg,
		logger:   logger,
		auth:     middleware.NewAuthenticator(cfg.Auth, logger),
		limiter: middleware.NewRateLimiter(map[string]middleware.RateLimit{
			submitLimitKey: cfg.SubmitRateLimit,
		}, cfg.TrustProxyHeaders, logger),
		obs: middleware.NewObservability(middleware.ObservabilityConfig{LogRequests: true}, logger),
	}
	s.methods = map[string]methodHandler{
		"escrow_submit":       s.handleSubmit,
		"escrow_programInfo":  s.handleProgramInfo,
		"escrow_getOrder":     s.handleGetOrder,
		"escrow_deriveOrder":  s.handleDeriveOrder,
		"escrow_listOrders":   s.handleListOrders,
		"escrow_listReceipts": s.handleListReceipts,
		"escrow_getReceipt":   s.handleGetReceipt,
		"account_getNonce":    s.handleGetNonce,
		"token_getAccount":    s.handleGetTokenAccount,
		"token_listAccounts":  s.handleListTokenAccounts,
		"token_getMint":       s.handleGetMint,
		"token_deriveAccount": s.handleDeriveTokenAccount,
		"token_deriveMint":    s.handleDeriveMint,
	}
	s.handler = s.routes()
	return s, nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CORS(middleware.CORSConfig{}))
	r.Use(s.obs.Middleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Post("/rpc", s.handle)
	r.Post("/", s.handle)

	if s.cfg.Tracing {
		return otelhttp.NewHandler(r, "seaescrow-rpc")
	}
	return r
}

// Handler returns the HTTP handler serving JSON-RPC, health and metrics.
func (s *Server) Handler() http.Handler { return s.handler }

// Serve accepts connections on listener until Shutdown is called.
func (s *Server) Serve(listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}
	s.serverMu.Lock()
	s.httpServer = srv
	s.serverMu.Unlock()
	s.logger.Info("json-rpc server listening", slog.String("address", listener.Addr().String()))
	return srv.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMu.Lock()
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

func writeError(w http.ResponseWriter, status int, id interface{}, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() {
		_ = reader.Close()
	}()
	w.Header().Set("Content-Type", "application/json")

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, &RPCError{Code: codeInvalidRequest, Message: message})
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeInvalidRequest, Message: "request body required"})
		return
	}
	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		return
	}
	handler, ok := s.methods[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, &RPCError{Code: codeMethodNotFound, Message: "method not found", Data: req.Method})
		return
	}

	module, method := splitMethod(req.Method)
	start := time.Now()
	result, rpcErr := handler(r.Context(), r, req)
	code := 0
	if rpcErr != nil {
		code = rpcErr.Code
	}
	observability.ModuleMetrics().Observe(module, method, code, time.Since(start))
	if rpcErr != nil {
		writeError(w, statusForCode(rpcErr.Code), req.ID, rpcErr)
		return
	}
	writeResult(w, req.ID, result)
}

func splitMethod(name string) (string, string) {
	if idx := strings.IndexByte(name, '_'); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

func statusForCode(code int) int {
	switch code {
	case codeUnauthenticated:
		return http.StatusUnauthorized
	case codeRateLimited:
		return http.StatusTooManyRequests
	case codeNotFound:
		return http.StatusNotFound
	case codeServerError:
		return http.StatusInternalServerError
	case codeInvalidState, codeUnauthorized, codeAccountMismatch, codeTransferFailed, codeNonce, codeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

// errorCode maps an error class to its JSON-RPC code.
func errorCode(class string) int {
	switch class {
	case core.ClassNotFound:
		return codeNotFound
	case core.ClassInvalidState:
		return codeInvalidState
	case core.ClassUnauthorized:
		return codeUnauthorized
	case core.ClassAccountMismatch:
		return codeAccountMismatch
	case core.ClassTransferFailed:
		return codeTransferFailed
	case core.ClassNonce:
		return codeNonce
	case core.ClassAlreadyExists:
		return codeAlreadyExists
	case core.ClassInvalidArgument, core.ClassSignature:
		return codeInvalidParams
	default:
		return codeServerError
	}
}

func toRPCError(err error, data interface{}) *RPCError {
	class := core.Classify(err)
	return &RPCError{Code: errorCode(class), Message: class, Data: errorData(err, data)}
}

func errorData(err error, data interface{}) interface{} {
	if data != nil {
		return data
	}
	return err.Error()
}

func invalidParams(format string, args ...interface{}) *RPCError {
	return &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: fmt.Sprintf(format, args...)}
}

// decodeParams expects exactly one parameter object and rejects unknown
// fields and trailing data.
func decodeParams(req *RPCRequest, out interface{}) *RPCError {
	if len(req.Params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	dec := json.NewDecoder(bytes.NewReader(req.Params[0]))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return invalidParams("%v", err)
	}
	if err := dec.Decode(new(json.RawMessage)); !errors.Is(err, io.EOF) {
		return invalidParams("trailing data after parameter object")
	}
	return nil
}

func parseAddressParam(field, raw string) (crypto.Address, *RPCError) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return crypto.Address{}, invalidParams("%s: %v", field, err)
	}
	return addr, nil
}
