// Package signal is the websocket transport handle: it joins the call,
// negotiates the audio peer connection and serves the agent's RPC requests.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/adapters/media"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotConnected = errors.New("not connected")
	ErrHandleUsed   = errors.New("handle already connected")

	errConnClosed = errors.New("connection closed")
	errAgentLeft  = errors.New("server ended the session")
	errMediaEnded = errors.New("media connection closed")
)

type Options struct {
	ReadLimit  int64
	PingPeriod time.Duration
	WriteWait  time.Duration
	SendBuffer int

	// RPCTimeout applies when a request carries no response timeout.
	RPCTimeout    time.Duration
	RPCQueue      int
	RPCRateLimit  int
	RPCRateWindow time.Duration

	WebRTC   webrtc.Configuration
	NewMedia func(cfg webrtc.Configuration, sid core.SessionID) (core.MediaConnection, error)
	Sinks    media.SinkFactory
	Dialer   *websocket.Dialer
}

func DefaultOptions() Options {
	return Options{
		ReadLimit:     1 << 20,
		PingPeriod:    30 * time.Second,
		WriteWait:     5 * time.Second,
		SendBuffer:    32,
		RPCTimeout:    10 * time.Second,
		RPCQueue:      16,
		RPCRateLimit:  20,
		RPCRateWindow: time.Second,
		WebRTC:        rtc.DefaultWebRTCConfig(),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ReadLimit <= 0 {
		o.ReadLimit = d.ReadLimit
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = d.PingPeriod
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	if o.RPCTimeout <= 0 {
		o.RPCTimeout = d.RPCTimeout
	}
	if o.RPCQueue <= 0 {
		o.RPCQueue = d.RPCQueue
	}
	if o.RPCRateWindow <= 0 {
		o.RPCRateWindow = d.RPCRateWindow
	}
	if o.NewMedia == nil {
		o.NewMedia = func(cfg webrtc.Configuration, sid core.SessionID) (core.MediaConnection, error) {
			return rtc.NewWebRTCConnection(cfg, sid)
		}
	}
	if o.Sinks == nil {
		o.Sinks = media.RecordTo("")
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

// Factory opens a fresh Handle per call attempt.
func Factory(opts Options) core.TransportFactory {
	return func() core.Transport { return NewHandle(opts) }
}

type wsSignalConn struct {
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

// Close stops accepting frames; the write pump flushes what is queued and
// then closes the socket.
func (c *wsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Handle implements core.Transport for one call attempt.
type Handle struct {
	opts   Options
	id     core.SessionID
	rpc    *rpcRouter
	logger zerolog.Logger

	mu        sync.Mutex
	conn      *wsSignalConn
	ctx       context.Context
	cancel    context.CancelFunc
	identity  domain.Identity
	media     core.MediaConnection
	capture   core.AudioCapture
	pending   []webrtc.ICECandidateInit
	remoteSet bool
	onDisc    func(error)
	closed    bool

	answers   chan webrtc.SessionDescription
	closeOnce sync.Once
}

var _ core.Transport = (*Handle)(nil)

func NewHandle(opts Options) *Handle {
	opts = opts.withDefaults()
	id := core.SessionID(uuid.NewString())
	h := &Handle{
		opts:    opts,
		id:      id,
		logger:  log.With().Str("module", "signal").Str("sid", string(id)).Logger(),
		answers: make(chan webrtc.SessionDescription, 1),
	}
	h.rpc = newRPCRouter(opts, h.sendRPCResponse, h.logger)
	return h
}

func (h *Handle) ID() core.SessionID { return h.id }

func (h *Handle) Connect(ctx context.Context, url, token string) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrNotConnected
	}
	if h.conn != nil {
		h.mu.Unlock()
		return ErrHandleUsed
	}
	h.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, resp, err := h.opts.Dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial signal: %s: %w", resp.Status, err)
		}
		return fmt.Errorf("dial signal: %w", err)
	}
	ws.SetReadLimit(h.opts.ReadLimit)

	joined, err := awaitJoined(ctx, ws)
	if err != nil {
		_ = ws.Close()
		return err
	}

	conn := &wsSignalConn{ws: ws, send: make(chan core.Frame, h.opts.SendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = ws.Close()
		return ErrNotConnected
	}
	h.conn = conn
	h.identity = domain.Identity(joined.Identity)
	h.ctx, h.cancel = context.WithCancel(context.Background())
	sctx := h.ctx
	h.mu.Unlock()

	h.logger.Info().Str("identity", joined.Identity).Str("room", joined.Room).Msg("joined")

	go h.writePump(conn)
	go h.readPump(sctx, conn)
	go h.rpc.run(sctx)
	return nil
}

// awaitJoined reads the server's first message, which must be "joined".
func awaitJoined(ctx context.Context, ws *websocket.Conn) (joinedMessage, error) {
	stop := context.AfterFunc(ctx, func() { _ = ws.SetReadDeadline(time.Now()) })
	defer stop()

	_, data, err := ws.ReadMessage()
	if err != nil {
		if ctx.Err() != nil {
			return joinedMessage{}, fmt.Errorf("await joined: %w", ctx.Err())
		}
		return joinedMessage{}, fmt.Errorf("await joined: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return joinedMessage{}, fmt.Errorf("await joined: %w", err)
	}
	switch env.Type {
	case msgJoined:
		var j joinedMessage
		if err := json.Unmarshal(data, &j); err != nil {
			return joinedMessage{}, fmt.Errorf("await joined: %w", err)
		}
		return j, nil
	case msgError:
		var e errorMessage
		_ = json.Unmarshal(data, &e)
		return joinedMessage{}, fmt.Errorf("signal rejected join: %s", e.Error)
	default:
		return joinedMessage{}, fmt.Errorf("await joined: unexpected %q", env.Type)
	}
}

func (h *Handle) RegisterRPCMethod(method string, fn core.RPCHandler) error {
	return h.rpc.register(method, fn)
}

func (h *Handle) UnregisterRPCMethod(method string) { h.rpc.unregister(method) }

func (h *Handle) SetAttributes(_ context.Context, attrs map[string]string) error {
	return h.sendJSON(attributesMessage{Type: msgAttributes, Attributes: attrs})
}

func (h *Handle) LocalIdentity() domain.Identity {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.identity
}

func (h *Handle) OnDisconnected(fn func(reason error)) {
	h.mu.Lock()
	h.onDisc = fn
	h.mu.Unlock()
}

// Disconnect tells the server we are leaving and releases every resource.
func (h *Handle) Disconnect() error {
	h.mu.Lock()
	conn := h.conn
	closed := h.closed
	h.mu.Unlock()
	if conn != nil && !closed {
		if err := h.sendJSON(leaveMessage{Type: msgLeave}); err != nil {
			h.logger.Warn().Err(err).Msg("send leave")
		}
	}
	h.shutdown(nil, false)
	return nil
}

// shutdown runs once. remote marks a disconnect not requested through Disconnect.
func (h *Handle) shutdown(reason error, remote bool) {
	h.closeOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		conn, mc, capture, cancel, onDisc := h.conn, h.media, h.capture, h.cancel, h.onDisc
		h.media, h.capture = nil, nil
		h.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if conn != nil {
			conn.Close()
		}
		if mc != nil {
			mc.Close()
		}
		if capture != nil {
			if err := capture.Release(); err != nil {
				h.logger.Warn().Err(err).Msg("release audio capture")
			}
		}
		h.rpc.close()

		ev := h.logger.Info().Bool("remote", remote)
		if reason != nil {
			ev = ev.Err(reason)
		}
		ev.Msg("handle closed")
		if remote && onDisc != nil {
			go onDisc(reason)
		}
	})
}
