package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// SessionID tags one transport handle in logs.
type SessionID string

var ErrRPCMethodRegistered = errors.New("rpc method already registered")

// RPCInvocation is one request issued by the remote agent.
type RPCInvocation struct {
	RequestID       string
	Method          string
	Payload         string
	CallerIdentity  string
	ResponseTimeout time.Duration
}

// RPCHandler must always resolve a response string; the caller blocks on it.
type RPCHandler func(ctx context.Context, inv RPCInvocation) string

// RPCRegistrar is the inbound-call surface of an open transport.
type RPCRegistrar interface {
	// RegisterRPCMethod fails with ErrRPCMethodRegistered if method is taken.
	RegisterRPCMethod(method string, h RPCHandler) error
	UnregisterRPCMethod(method string)
}

// Transport is the real-time session handle. One instance serves one call attempt.
type Transport interface {
	RPCRegistrar

	Connect(ctx context.Context, url, token string) error
	// PublishAudio acquires the capture device and publishes it as the local track.
	// ctx bounds negotiation only; the capture lives until Disconnect.
	PublishAudio(ctx context.Context, src AudioSource) error
	// SetAttributes updates participant metadata; no acknowledgment is awaited.
	SetAttributes(ctx context.Context, attrs map[string]string) error
	LocalIdentity() domain.Identity
	// OnDisconnected is invoked once, on its own goroutine, when the remote side
	// or the network ends the session. It never fires for a local Disconnect.
	OnDisconnected(func(reason error))
	// Disconnect is idempotent and always releases the audio capture.
	Disconnect() error
}

// TransportFactory opens a fresh handle for every call attempt.
type TransportFactory func() Transport

// CredentialSource mints the access token used to open a transport.
type CredentialSource interface {
	// Fetch fails with *domain.TokenFetchError.
	Fetch(ctx context.Context, room domain.RoomName, user string) (domain.Credential, error)
}
