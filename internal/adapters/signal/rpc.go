package signal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceAgent/internal/core"
)

// RPC error strings returned to the caller.
const (
	RPCErrUnsupportedMethod = "Method not supported"
	RPCErrResponseTimeout   = "Response timeout"
	RPCErrRateLimited       = "Rate limited"
	RPCErrQueueFull         = "Too many pending requests"
	RPCErrHandlerFailure    = "Application error in method handler"
)

// rpcRouter holds the registered handlers and serves requests one at a time.
type rpcRouter struct {
	mu       sync.RWMutex
	handlers map[string]core.RPCHandler

	queue    chan core.RPCInvocation
	respond  func(rpcResponseMessage)
	limiter  *CallerRateLimiter
	fallback time.Duration
	logger   zerolog.Logger

	once sync.Once
	done chan struct{}
}

func newRPCRouter(opts Options, respond func(rpcResponseMessage), logger zerolog.Logger) *rpcRouter {
	return &rpcRouter{
		handlers: make(map[string]core.RPCHandler),
		queue:    make(chan core.RPCInvocation, opts.RPCQueue),
		respond:  respond,
		limiter:  NewCallerRateLimiter(opts.RPCRateLimit, opts.RPCRateWindow),
		fallback: opts.RPCTimeout,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

func (r *rpcRouter) register(method string, h core.RPCHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[method]; ok {
		return core.ErrRPCMethodRegistered
	}
	r.handlers[method] = h
	return nil
}

func (r *rpcRouter) unregister(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

func (r *rpcRouter) lookup(method string) (core.RPCHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[method]
	return h, ok
}

func (r *rpcRouter) close() {
	r.once.Do(func() { close(r.done) })
}

func (r *rpcRouter) enqueue(inv core.RPCInvocation) {
	if !r.limiter.Allow(inv.CallerIdentity) {
		r.logger.Warn().Str("caller", inv.CallerIdentity).Str("method", inv.Method).Msg("rpc rate limited")
		r.respond(rpcResponseMessage{Type: msgRPCResponse, ID: inv.RequestID, Error: RPCErrRateLimited})
		return
	}
	select {
	case <-r.done:
	case r.queue <- inv:
	default:
		r.logger.Warn().Str("method", inv.Method).Msg("rpc queue full")
		r.respond(rpcResponseMessage{Type: msgRPCResponse, ID: inv.RequestID, Error: RPCErrQueueFull})
	}
}

func (r *rpcRouter) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case inv := <-r.queue:
			r.serve(ctx, inv)
		}
	}
}

// serve answers inv exactly once: with the handler's result, or with an
// error if the method is unknown or the handler outlives its deadline.
func (r *rpcRouter) serve(ctx context.Context, inv core.RPCInvocation) {
	logger := r.logger.With().Str("rpc_id", inv.RequestID).Str("method", inv.Method).Logger()
	h, ok := r.lookup(inv.Method)
	if !ok {
		logger.Warn().Msg("rpc method not supported")
		r.respond(rpcResponseMessage{Type: msgRPCResponse, ID: inv.RequestID, Error: RPCErrUnsupportedMethod})
		return
	}

	timeout := inv.ResponseTimeout
	if timeout <= 0 {
		timeout = r.fallback
	}
	hctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out := make(chan rpcResponseMessage, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				logger.Error().Interface("panic", p).Msg("rpc handler panicked")
				out <- rpcResponseMessage{Error: RPCErrHandlerFailure}
			}
		}()
		out <- rpcResponseMessage{Payload: h(hctx, inv)}
	}()

	select {
	case resp := <-out:
		resp.Type, resp.ID = msgRPCResponse, inv.RequestID
		r.respond(resp)
	case <-hctx.Done():
		logger.Warn().Dur("timeout", timeout).Msg("rpc handler timed out")
		r.respond(rpcResponseMessage{Type: msgRPCResponse, ID: inv.RequestID, Error: RPCErrResponseTimeout})
	}
}

func (h *Handle) handleRPCRequest(data []byte) {
	var p rpcRequestMessage
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Error().Err(err).Msg("bad rpc_request payload")
		return
	}
	h.rpc.enqueue(core.RPCInvocation{
		RequestID:       p.ID,
		Method:          p.Method,
		Payload:         p.Payload,
		CallerIdentity:  p.CallerIdentity,
		ResponseTimeout: time.Duration(p.ResponseTimeoutMs) * time.Millisecond,
	})
}

func (h *Handle) sendRPCResponse(resp rpcResponseMessage) {
	if err := h.sendJSON(resp); err != nil {
		h.logger.Warn().Err(err).Str("rpc_id", resp.ID).Msg("rpc response dropped")
	}
}
