// Package session owns the lifecycle of the one real-time call a client holds.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

const DefaultConnectTimeout = 15 * time.Second

var errLeft = errors.New("left before connected")

// Binder attaches the RPC handlers to an open transport.
type Binder interface {
	Attach(core.RPCRegistrar) error
	Detach()
}

type Alerter interface {
	Alert(msg string)
}

type Options struct {
	SignalURL      string
	Tokens         core.CredentialSource
	NewTransport   core.TransportFactory
	Audio          core.AudioSource
	RPC            Binder
	Alerts         Alerter
	Language       domain.Language
	ConnectTimeout time.Duration
}

// Manager holds at most one session. Join and Leave are serialized; Leave
// aborts a Join still in flight.
type Manager struct {
	opts Options

	opMu sync.Mutex

	mu         sync.Mutex
	sess       domain.Session
	handle     core.Transport
	cancelJoin context.CancelCauseFunc
	// attempt counts Joins; teardown only resets state it still owns.
	attempt uint64
}

func NewManager(opts Options) *Manager {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.Language == "" {
		opts.Language = domain.LanguageEnglish
	}
	return &Manager{
		opts: opts,
		sess: domain.Session{Phase: domain.PhaseDisconnected, Language: opts.Language},
	}
}

func (m *Manager) Session() domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess
}

// Join fetches a credential, opens a fresh transport, publishes the
// microphone and registers the RPC handlers. Any failure leaves the manager
// disconnected and queues one alert.
func (m *Manager) Join(ctx context.Context, roomHint domain.RoomName, userHint string) (domain.Session, error) {
	m.mu.Lock()
	if m.sess.Phase != domain.PhaseDisconnected {
		s := m.sess
		m.mu.Unlock()
		return s, domain.ErrSessionActive
	}
	jctx, cancel := context.WithCancelCause(ctx)
	m.attempt++
	attempt := m.attempt
	m.cancelJoin = cancel
	m.sess = domain.Session{
		Room:     roomHint,
		Identity: domain.Identity(userHint),
		Phase:    domain.PhaseConnecting,
		Language: m.sess.Language,
	}
	m.mu.Unlock()
	defer cancel(nil)

	m.opMu.Lock()
	defer m.opMu.Unlock()

	logger := log.With().Str("module", "app.session").Str("room", string(roomHint)).Str("user", userHint).Logger()
	logger.Info().Msg("joining")

	sess, err := m.connect(jctx, roomHint, userHint)
	if err != nil {
		m.teardown(attempt)
		if errors.Is(context.Cause(jctx), errLeft) {
			logger.Info().Msg("join aborted by leave")
			return m.Session(), err
		}
		logger.Error().Err(err).Msg("join failed")
		if m.opts.Alerts != nil {
			m.opts.Alerts.Alert("Could not connect to audio room: " + err.Error())
		}
		return m.Session(), err
	}
	logger.Info().Str("identity", string(sess.Identity)).Msg("joined")
	return sess, nil
}

func (m *Manager) connect(ctx context.Context, roomHint domain.RoomName, userHint string) (domain.Session, error) {
	if err := domain.ValidateHint(string(roomHint)); err != nil {
		return domain.Session{}, &domain.TokenFetchError{Reason: "invalid room hint", Err: err}
	}
	if err := domain.ValidateHint(userHint); err != nil {
		return domain.Session{}, &domain.TokenFetchError{Reason: "invalid user hint", Err: err}
	}

	cred, err := m.opts.Tokens.Fetch(ctx, roomHint, userHint)
	if err != nil {
		var tfe *domain.TokenFetchError
		if errors.As(err, &tfe) {
			return domain.Session{}, err
		}
		return domain.Session{}, &domain.TokenFetchError{Reason: "request failed", Err: err}
	}
	if cred.Token == "" {
		return domain.Session{}, &domain.TokenFetchError{Reason: "no token received"}
	}

	m.mu.Lock()
	if m.handle != nil {
		m.mu.Unlock()
		return domain.Session{}, &domain.ConnectError{Stage: "signal", Err: domain.ErrSessionActive}
	}
	h := m.opts.NewTransport()
	m.handle = h
	m.mu.Unlock()
	h.OnDisconnected(func(reason error) { m.onRemoteDisconnect(h, reason) })

	cctx, cancel := context.WithTimeout(ctx, m.opts.ConnectTimeout)
	defer cancel()
	if err := h.Connect(cctx, m.opts.SignalURL, cred.Token); err != nil {
		return domain.Session{}, &domain.ConnectError{Stage: "signal", Err: err}
	}
	if err := h.PublishAudio(cctx, m.opts.Audio); err != nil {
		return domain.Session{}, &domain.ConnectError{Stage: "audio", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return domain.Session{}, &domain.ConnectError{Stage: "join", Err: context.Cause(ctx)}
	}
	if err := m.opts.RPC.Attach(h); err != nil {
		return domain.Session{}, &domain.ConnectError{Stage: "rpc", Err: err}
	}

	m.mu.Lock()
	if cred.Room != "" {
		m.sess.Room = cred.Room
	}
	m.sess.Identity = h.LocalIdentity()
	if m.sess.Identity == "" {
		m.sess.Identity = cred.Identity
	}
	m.sess.Phase = domain.PhaseConnected
	m.cancelJoin = nil
	sess := m.sess
	m.mu.Unlock()

	m.pushLanguage(ctx, h, sess.Language)
	return sess, nil
}

// Leave tears the session down. Idempotent, and safe while a Join is running.
func (m *Manager) Leave() {
	m.mu.Lock()
	if m.cancelJoin != nil {
		m.cancelJoin(errLeft)
	}
	attempt := m.attempt
	m.mu.Unlock()

	m.opMu.Lock()
	defer m.opMu.Unlock()
	m.teardown(attempt)
}

// Close is the unmount path of the owning UI context.
func (m *Manager) Close() { m.Leave() }

// teardown detaches handlers before the transport goes away so none can run
// against a closed handle. It is a no-op once a later Join has started.
// Callers hold opMu.
func (m *Manager) teardown(attempt uint64) {
	m.mu.Lock()
	if m.attempt != attempt {
		m.mu.Unlock()
		return
	}
	h := m.handle
	m.handle = nil
	m.cancelJoin = nil
	wasPhase := m.sess.Phase
	m.sess.Phase = domain.PhaseDisconnected
	m.mu.Unlock()

	// A Join that starts now waits on opMu, so it cannot attach before this.
	m.opts.RPC.Detach()

	if h != nil {
		if err := h.Disconnect(); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("disconnect")
		}
	}
	if wasPhase != domain.PhaseDisconnected {
		log.Info().Str("module", "app.session").Str("from", wasPhase.String()).Msg("session closed")
	}
}

func (m *Manager) onRemoteDisconnect(h core.Transport, reason error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	current := m.handle == h
	attempt := m.attempt
	m.mu.Unlock()
	if !current {
		return
	}
	log.Warn().Err(reason).Str("module", "app.session").Msg("remote disconnect")
	m.teardown(attempt)
	if m.opts.Alerts != nil {
		msg := "Call ended"
		if reason != nil {
			msg = fmt.Sprintf("Call ended: %v", reason)
		}
		m.opts.Alerts.Alert(msg)
	}
}

// SetLanguage remembers tag and, when connected, propagates it to the agent.
// Propagation is best-effort.
func (m *Manager) SetLanguage(ctx context.Context, tag string) (domain.Language, error) {
	lang, err := domain.ParseLanguage(tag)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.sess.Language = lang
	h := m.handle
	connected := m.sess.Phase == domain.PhaseConnected
	m.mu.Unlock()

	if connected && h != nil {
		m.pushLanguage(ctx, h, lang)
	}
	return lang, nil
}

func (m *Manager) pushLanguage(ctx context.Context, h core.Transport, lang domain.Language) {
	if err := h.SetAttributes(ctx, map[string]string{domain.AttrLanguage: string(lang)}); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("language", string(lang)).Msg("set language attribute")
	}
}
