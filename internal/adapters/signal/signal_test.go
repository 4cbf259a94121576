package signal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type testServer struct {
	*httptest.Server
	auth  chan string
	conns chan *websocket.Conn
}

// newTestServer greets every client with first and hands the socket to the test.
func newTestServer(t *testing.T, first any) *testServer {
	t.Helper()
	ts := &testServer{auth: make(chan string, 1), conns: make(chan *websocket.Conn, 1)}
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ts.auth <- r.Header.Get("Authorization")
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if err := ws.WriteJSON(first); err != nil {
			_ = ws.Close()
			return
		}
		ts.conns <- ws
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *testServer) url() string { return "ws" + strings.TrimPrefix(ts.URL, "http") }

func joined() joinedMessage {
	return joinedMessage{Type: msgJoined, Identity: "user-1", Room: "my-room1"}
}

func readMsg(t *testing.T, ws *websocket.Conn, want string) map[string]any {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err)
		var m map[string]any
		require.NoError(t, json.Unmarshal(data, &m))
		if m["type"] == want {
			return m
		}
	}
}

func connect(t *testing.T, opts Options) (*Handle, *websocket.Conn) {
	t.Helper()
	ts := newTestServer(t, joined())
	h := NewHandle(opts)
	require.NoError(t, h.Connect(context.Background(), ts.url(), "tok"))
	require.Equal(t, "Bearer tok", <-ts.auth)
	ws := <-ts.conns
	t.Cleanup(func() {
		_ = h.Disconnect()
		_ = ws.Close()
	})
	return h, ws
}

func TestConnectHandshake(t *testing.T) {
	h, _ := connect(t, Options{})
	require.Equal(t, domain.Identity("user-1"), h.LocalIdentity())
	require.ErrorIs(t, h.Connect(context.Background(), "ws://unused", "tok"), ErrHandleUsed)
}

func TestConnectRejected(t *testing.T) {
	ts := newTestServer(t, errorMessage{Type: msgError, Error: "invalid token"})
	h := NewHandle(Options{})
	err := h.Connect(context.Background(), ts.url(), "bad")
	require.ErrorContains(t, err, "invalid token")
}

func TestConnectUnreachable(t *testing.T) {
	ts := newTestServer(t, joined())
	u := ts.url()
	ts.Close()
	require.Error(t, NewHandle(Options{}).Connect(context.Background(), u, "tok"))
}

func TestRPCRoundTrip(t *testing.T) {
	h, ws := connect(t, Options{})
	var got core.RPCInvocation
	require.NoError(t, h.RegisterRPCMethod("echo", func(_ context.Context, inv core.RPCInvocation) string {
		got = inv
		return "re:" + inv.Payload
	}))
	require.ErrorIs(t, h.RegisterRPCMethod("echo", nil), core.ErrRPCMethodRegistered)

	require.NoError(t, ws.WriteJSON(rpcRequestMessage{
		Type: msgRPCRequest, ID: "1", Method: "echo", Payload: "hi",
		CallerIdentity: "agent", ResponseTimeoutMs: 1000,
	}))
	resp := readMsg(t, ws, msgRPCResponse)
	require.Equal(t, "1", resp["id"])
	require.Equal(t, "re:hi", resp["payload"])
	require.Nil(t, resp["error"])
	require.Equal(t, "agent", got.CallerIdentity)
	require.Equal(t, time.Second, got.ResponseTimeout)
}

func TestRPCUnsupportedMethod(t *testing.T) {
	h, ws := connect(t, Options{})
	require.NoError(t, h.RegisterRPCMethod("gone", func(context.Context, core.RPCInvocation) string { return "" }))
	h.UnregisterRPCMethod("gone")

	require.NoError(t, ws.WriteJSON(rpcRequestMessage{Type: msgRPCRequest, ID: "2", Method: "gone"}))
	resp := readMsg(t, ws, msgRPCResponse)
	require.Equal(t, "2", resp["id"])
	require.Equal(t, RPCErrUnsupportedMethod, resp["error"])
}

func TestRPCTimeout(t *testing.T) {
	h, ws := connect(t, Options{})
	release := make(chan struct{})
	defer close(release)
	require.NoError(t, h.RegisterRPCMethod("slow", func(ctx context.Context, _ core.RPCInvocation) string {
		<-release
		return "late"
	}))

	require.NoError(t, ws.WriteJSON(rpcRequestMessage{Type: msgRPCRequest, ID: "3", Method: "slow", ResponseTimeoutMs: 50}))
	resp := readMsg(t, ws, msgRPCResponse)
	require.Equal(t, "3", resp["id"])
	require.Equal(t, RPCErrResponseTimeout, resp["error"])
}

func TestRPCRequestsAreServedInOrder(t *testing.T) {
	h, ws := connect(t, Options{})
	var running atomic.Int32
	var overlap atomic.Bool
	require.NoError(t, h.RegisterRPCMethod("m", func(_ context.Context, inv core.RPCInvocation) string {
		if running.Add(1) > 1 {
			overlap.Store(true)
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return inv.Payload
	}))

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, ws.WriteJSON(rpcRequestMessage{Type: msgRPCRequest, ID: id, Method: "m", Payload: id}))
	}
	for _, id := range []string{"a", "b", "c"} {
		require.Equal(t, id, readMsg(t, ws, msgRPCResponse)["id"])
	}
	require.False(t, overlap.Load())
}

func TestRPCRateLimitedPerCaller(t *testing.T) {
	h, ws := connect(t, Options{RPCRateLimit: 1, RPCRateWindow: time.Hour})
	require.NoError(t, h.RegisterRPCMethod("m", func(context.Context, core.RPCInvocation) string { return "ok" }))

	require.NoError(t, ws.WriteJSON(rpcRequestMessage{Type: msgRPCRequest, ID: "1", Method: "m", CallerIdentity: "agent"}))
	require.Equal(t, "ok", readMsg(t, ws, msgRPCResponse)["payload"])
	require.NoError(t, ws.WriteJSON(rpcRequestMessage{Type: msgRPCRequest, ID: "2", Method: "m", CallerIdentity: "agent"}))
	require.Equal(t, RPCErrRateLimited, readMsg(t, ws, msgRPCResponse)["error"])
}

func TestSetAttributes(t *testing.T) {
	h, ws := connect(t, Options{})
	require.NoError(t, h.SetAttributes(context.Background(), map[string]string{"language": "ja"}))
	m := readMsg(t, ws, msgAttributes)
	require.Equal(t, map[string]any{"language": "ja"}, m["attributes"])
}

func TestRemoteCloseFiresOnDisconnected(t *testing.T) {
	h, ws := connect(t, Options{})
	fired := make(chan error, 2)
	h.OnDisconnected(func(err error) { fired <- err })

	require.NoError(t, ws.WriteJSON(leaveMessage{Type: msgLeave, Reason: "agent hung up"}))
	select {
	case err := <-fired:
		require.EqualError(t, err, "agent hung up")
	case <-time.After(2 * time.Second):
		t.Fatal("OnDisconnected not invoked")
	}
	require.NoError(t, h.Disconnect())
	require.ErrorIs(t, h.SetAttributes(context.Background(), nil), ErrNotConnected)
	require.Len(t, fired, 0)
}

func TestDisconnectSendsLeave(t *testing.T) {
	h, ws := connect(t, Options{})
	var fired atomic.Bool
	h.OnDisconnected(func(error) { fired.Store(true) })

	require.NoError(t, h.Disconnect())
	require.NoError(t, h.Disconnect())
	readMsg(t, ws, msgLeave)
	time.Sleep(20 * time.Millisecond)
	require.False(t, fired.Load())
}

func TestPublishAudioRequiresConnection(t *testing.T) {
	h := NewHandle(Options{})
	require.ErrorIs(t, h.PublishAudio(context.Background(), &fakeSource{}), ErrNotConnected)
	require.NoError(t, h.Disconnect())
}

func TestPublishAudioNegotiatesAndReleasesOnDisconnect(t *testing.T) {
	mc := &fakeMedia{}
	h, ws := connect(t, Options{
		NewMedia: func(webrtc.Configuration, core.SessionID) (core.MediaConnection, error) { return mc, nil },
	})
	src := &fakeSource{}

	done := make(chan error, 1)
	go func() { done <- h.PublishAudio(context.Background(), src) }()

	offer := readMsg(t, ws, msgOffer)
	require.Equal(t, "v=0 fake-offer", offer["sdp"])
	require.NoError(t, ws.WriteJSON(candidateMessage{Type: msgCandidate, Candidate: "candidate:1"}))
	require.NoError(t, ws.WriteJSON(sdpMessage{Type: msgAnswer, SDP: "v=0 fake-answer"}))
	require.NoError(t, <-done)

	require.Eventually(t, func() bool { return mc.candidates() == 1 }, time.Second, 5*time.Millisecond)
	require.Equal(t, "v=0 fake-answer", mc.answer)
	require.ErrorIs(t, h.PublishAudio(context.Background(), src), ErrAlreadyPublished)

	require.NoError(t, h.Disconnect())
	require.True(t, src.released())
	require.True(t, mc.IsClosed())
}

func TestPublishAudioAcquireFailure(t *testing.T) {
	h, _ := connect(t, Options{})
	err := h.PublishAudio(context.Background(), &fakeSource{err: errors.New("permission denied")})
	require.ErrorContains(t, err, "permission denied")
}

func TestRateLimiterWindow(t *testing.T) {
	rl := NewCallerRateLimiter(2, time.Minute)
	now := time.Now()
	rl.now = func() time.Time { return now }

	require.True(t, rl.Allow("a"))
	require.True(t, rl.Allow("a"))
	require.False(t, rl.Allow("a"))
	require.True(t, rl.Allow("b"))

	now = now.Add(2 * time.Minute)
	require.True(t, rl.Allow("a"))

	var nilLimiter *CallerRateLimiter
	require.True(t, nilLimiter.Allow("x"))
	require.Nil(t, NewCallerRateLimiter(0, time.Second))
}

type fakeSource struct {
	err error
	cap *fakeCapture
	mu  sync.Mutex
}

func (s *fakeSource) Acquire(context.Context) (core.AudioCapture, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cap = &fakeCapture{done: make(chan struct{})}
	return s.cap, nil
}

func (s *fakeSource) released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap != nil && s.cap.isReleased()
}

type fakeCapture struct {
	once sync.Once
	done chan struct{}
}

func (c *fakeCapture) ReadSample() (media.Sample, error) {
	select {
	case <-c.done:
		return media.Sample{}, errors.New("released")
	case <-time.After(20 * time.Millisecond):
		return media.Sample{Data: []byte{0xf8, 0xff, 0xfe}, Duration: 20 * time.Millisecond}, nil
	}
}

func (c *fakeCapture) Release() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeCapture) isReleased() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

type fakeMedia struct {
	mu       sync.Mutex
	cands    int
	answer   string
	closed   bool
	onClosed func()
}

func (f *fakeMedia) Start(context.Context) error { return nil }

func (f *fakeMedia) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	fn := f.onClosed
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (f *fakeMedia) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeMedia) AddICECandidate(webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cands++
	return nil
}

func (f *fakeMedia) candidates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cands
}

func (f *fakeMedia) ApplyAnswer(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answer = d.SDP
	return nil
}

func (f *fakeMedia) CreateAndSetOffer() (*webrtc.SessionDescription, error) {
	return &webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 fake-offer"}, nil
}

func (f *fakeMedia) OnICECandidate(func(webrtc.ICECandidateInit)) {}

func (f *fakeMedia) OnTrack(func(context.Context, *webrtc.TrackRemote, *webrtc.RTPReceiver)) {}

func (f *fakeMedia) AddLocalTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) { return nil, nil }

func (f *fakeMedia) OnClosed(fn func()) {
	f.mu.Lock()
	f.onClosed = fn
	f.mu.Unlock()
}
