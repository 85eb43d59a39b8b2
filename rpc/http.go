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
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/net/netutil"

	"homeescrow/core"
	"homeescrow/eventlog"
	"homeescrow/native/common"
	"homeescrow/observability"
	"homeescrow/observability/logging"
	telemetry "homeescrow/observability/otel"
)

const requestIDHeader = "X-Request-ID"

// ServerConfig tunes authentication, throttling and transport behaviour.
type ServerConfig struct {
	AuthToken          string
	JWT                JWTConfig
	RateLimitPerSecond float64
	RateLimitBurst     int
	TrustProxyHeaders  bool
	ReadHeaderTimeout  time.Duration
	MaxConnections     int
	AllowedOrigins     []string
	EscrowQuota        common.Quota
	DeedQuota          common.Quota
}

// EventQuery serves escrow_listEvents. *eventlog.Store satisfies it.
type EventQuery interface {
	List(ctx context.Context, filter eventlog.Filter) ([]eventlog.Entry, error)
}

type Server struct {
	node   *core.Node
	events EventQuery
	cfg    ServerConfig
	logger *slog.Logger

	authToken   string
	jwt         *jwtVerifier
	limiter     *clientLimiter
	escrowQuota *common.QuotaTracker
	deedQuota   *common.QuotaTracker
	instruments *telemetry.Instruments
	now         func() time.Time
}

// NewServer builds the JSON-RPC server over node. events may be nil, in which
// case escrow_listEvents reports the log as unavailable.
func NewServer(node *core.Node, events EventQuery, cfg ServerConfig, logger *slog.Logger) (*Server, error) {
	if node == nil {
		return nil, fmt.Errorf("rpc: node required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	verifier, err := newJWTVerifier(cfg.JWT)
	if err != nil {
		return nil, err
	}
	instruments, err := telemetry.NewInstruments()
	if err != nil {
		return nil, fmt.Errorf("rpc: register instruments: %w", err)
	}
	s := &Server{
		node:        node,
		events:      events,
		cfg:         cfg,
		logger:      logger.With(slog.String("component", "rpc")),
		authToken:   strings.TrimSpace(cfg.AuthToken),
		jwt:         verifier,
		limiter:     newClientLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		escrowQuota: common.NewQuotaTracker(cfg.EscrowQuota),
		deedQuota:   common.NewQuotaTracker(cfg.DeedQuota),
		instruments: instruments,
		now:         time.Now,
	}
	if s.authToken == "" && s.jwt == nil {
		s.logger.Warn("no RPC credentials configured; mutating methods will be rejected")
	} else {
		s.logger.Info("RPC authentication enabled",
			logging.MaskField("token", s.authToken),
			slog.Bool("jwt", s.jwt != nil))
	}
	return s, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.corsMiddleware)
	r.Use(requestIDMiddleware)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws/events", s.handleEventsWS)
	r.Post("/", s.handle)
	return otelhttp.NewHandler(r, "escrowd.rpc")
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	readHeaderTimeout := s.cfg.ReadHeaderTimeout
	if readHeaderTimeout <= 0 {
		readHeaderTimeout = 5 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.cfg.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.cfg.MaxConnections)
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting JSON-RPC server",
			slog.String("addr", listener.Addr().String()),
			slog.Int("maxConnections", s.cfg.MaxConnections))
		errCh <- srv.Serve(listener)
	}()
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	fallback := "*"
	allowed := make(map[string]struct{}, len(s.cfg.AllowedOrigins))
	for _, origin := range s.cfg.AllowedOrigins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if len(allowed) == 0 {
			fallback = origin
		}
		allowed[origin] = struct{}{}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := fallback
		if requested := r.Header.Get("Origin"); requested != "" {
			if _, ok := allowed[requested]; ok {
				origin = requested
			}
		}
		if len(allowed) > 0 {
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func methodModule(method string) string {
	module, _, found := strings.Cut(method, "_")
	if !found {
		return "unknown"
	}
	return module
}

// handle is the main request handler that routes to specific handlers.
func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBytes)
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
			message = fmt.Sprintf("request body exceeds %d bytes", maxRequestBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return
	}

	module := methodModule(req.Method)
	if !s.limiter.allow(s.clientSource(r), s.now()) {
		observability.ModuleMetrics().RecordThrottle(module, "rate_limit")
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "rate limit exceeded", nil)
		return
	}

	start := s.now()
	ctx, span := telemetry.Tracer().Start(r.Context(), "rpc."+req.Method, trace.WithAttributes(
		attribute.String("rpc.method", req.Method),
		attribute.String("rpc.module", module),
		attribute.String("request.id", requestIDFrom(r.Context())),
	))
	recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.dispatch(recorder, r.WithContext(ctx), req)
	elapsed := s.now().Sub(start)

	span.SetAttributes(attribute.Int("http.status_code", recorder.status))
	if recorder.status >= http.StatusBadRequest {
		span.SetStatus(codes.Error, http.StatusText(recorder.status))
	}
	span.End()
	observability.ModuleMetrics().Observe(module, req.Method, recorder.status, elapsed)
	s.instruments.Record(ctx, req.Method, recorder.status >= http.StatusBadRequest, elapsed)
	s.logger.Debug("rpc call",
		slog.String("method", req.Method),
		slog.String("requestId", requestIDFrom(r.Context())),
		slog.Int("status", recorder.status),
		slog.Duration("elapsed", elapsed))
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	switch req.Method {
	case "escrow_list":
		s.withAuth(w, r, req, s.handleEscrowList)
	case "escrow_cancelListing":
		s.withAuth(w, r, req, s.handleEscrowCancelListing)
	case "escrow_approveSale":
		s.withAuth(w, r, req, s.handleEscrowApproveSale)
	case "escrow_depositEarnest":
		s.withAuth(w, r, req, s.handleEscrowDepositEarnest)
	case "escrow_fundListing":
		s.withAuth(w, r, req, s.handleEscrowFundListing)
	case "escrow_markInspected":
		s.withAuth(w, r, req, s.handleEscrowMarkInspected)
	case "escrow_updateInspection":
		s.withAuth(w, r, req, s.handleEscrowUpdateInspection)
	case "escrow_setInspectionComments":
		s.withAuth(w, r, req, s.handleEscrowSetInspectionComments)
	case "escrow_finalizeSale":
		s.withAuth(w, r, req, s.handleEscrowFinalizeSale)
	case "escrow_cancelSale":
		s.withAuth(w, r, req, s.handleEscrowCancelSale)
	case "escrow_getListing":
		s.handleEscrowGetListing(w, r, req)
	case "escrow_getApproval":
		s.handleEscrowGetApproval(w, r, req)
	case "escrow_getBalance":
		s.handleEscrowGetBalance(w, r, req)
	case "escrow_getRoles":
		s.handleEscrowGetRoles(w, r, req)
	case "escrow_listEvents":
		s.handleEscrowListEvents(w, r, req)
	case "deed_mint":
		s.withAuth(w, r, req, s.handleDeedMint)
	case "deed_approve":
		s.withAuth(w, r, req, s.handleDeedApprove)
	case "deed_setApprovalForAll":
		s.withAuth(w, r, req, s.handleDeedSetApprovalForAll)
	case "deed_ownerOf":
		s.handleDeedOwnerOf(w, r, req)
	case "account_getBalance":
		s.handleGetBalance(w, r, req)
	default:
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, fmt.Sprintf("unknown method %s", req.Method), nil)
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, req *RPCRequest)

func (s *Server) withAuth(w http.ResponseWriter, r *http.Request, req *RPCRequest, next handlerFunc) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	next(w, r, req)
}

// consumeQuota charges caller against the module quota. It writes the error
// response itself and reports whether the call may proceed.
func (s *Server) consumeQuota(w http.ResponseWriter, req *RPCRequest, tracker *common.QuotaTracker, caller [20]byte, value uint64) bool {
	if err := tracker.Consume(caller, s.now(), value); err != nil {
		reason := "quota_exceeded"
		if errors.Is(err, common.ErrQuotaValueCapExceeded) {
			reason = "value_cap_exceeded"
		}
		observability.ModuleMetrics().RecordThrottle(methodModule(req.Method), reason)
		writeError(w, http.StatusTooManyRequests, req.ID, codeRateLimited, "quota exceeded", err.Error())
		return false
	}
	return true
}

func (s *Server) clientSource(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			parts := strings.Split(forwarded, ",")
			if candidate := strings.TrimSpace(parts[0]); candidate != "" {
				return candidate
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	if len(req.Params) == 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "address parameter required", nil)
		return
	}
	var addrStr string
	if err := json.Unmarshal(req.Params[0], &addrStr); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid address parameter", err.Error())
		return
	}
	addr, err := parseBech32Address(addrStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "failed to decode address", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr[:])
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, BalanceResponse{
		Address: strings.TrimSpace(addrStr),
		Balance: amountString(account.Balance),
		Nonce:   account.Nonce,
	})
}
