// Package rpc exposes the methods the remote agent calls into the client.
package rpc

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/app/contact"
	"github.com/dkeye/VoiceAgent/internal/app/results"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/rs/zerolog/log"
)

var ErrAttached = errors.New("rpc table already attached")

// Method identifies one agent-callable RPC. The string values are the wire names.
type Method string

const (
	MethodInitData             Method = "initData"
	MethodShowContactForm      Method = "showContactForm"
	MethodSubmitContactInfo    Method = "submitContactInfo"
	MethodContactFormSubmitted Method = "contactFormSubmitted"
	MethodGetContactInfo       Method = "getContactInfo"
)

// Methods is the fixed set registered on every session.
var Methods = []Method{
	MethodInitData,
	MethodShowContactForm,
	MethodSubmitContactInfo,
	MethodContactFormSubmitted,
	MethodGetContactInfo,
}

// Table binds the handlers to one open transport at a time.
type Table struct {
	Results *results.Cache
	Contact *contact.Machine

	mu       sync.Mutex
	attached core.RPCRegistrar
}

func NewTable(cache *results.Cache, machine *contact.Machine) *Table {
	return &Table{Results: cache, Contact: machine}
}

// Attach registers every method on reg. On failure nothing stays registered.
func (t *Table) Attach(reg core.RPCRegistrar) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached != nil {
		return ErrAttached
	}
	done := make([]Method, 0, len(Methods))
	for _, m := range Methods {
		if err := reg.RegisterRPCMethod(string(m), t.handler(m)); err != nil {
			for _, r := range done {
				reg.UnregisterRPCMethod(string(r))
			}
			log.Error().Err(err).Str("module", "app.rpc").Str("method", string(m)).Msg("register failed")
			return err
		}
		done = append(done, m)
	}
	t.attached = reg
	log.Info().Str("module", "app.rpc").Int("methods", len(done)).Msg("rpc methods registered")
	return nil
}

// Detach unregisters every method. Safe to call when not attached.
func (t *Table) Detach() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.attached == nil {
		return
	}
	for _, m := range Methods {
		t.attached.UnregisterRPCMethod(string(m))
	}
	t.attached = nil
	log.Info().Str("module", "app.rpc").Msg("rpc methods unregistered")
}

func (t *Table) Attached() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attached != nil
}

func (t *Table) handler(m Method) core.RPCHandler {
	return func(ctx context.Context, inv core.RPCInvocation) string {
		return t.Handle(ctx, m, inv.Payload)
	}
}

// Handle runs method m against payload and always returns the response string.
func (t *Table) Handle(ctx context.Context, m Method, payload string) (resp string) {
	logger := log.With().Str("module", "app.rpc").Str("method", string(m)).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("handler panicked")
			resp = errorResponse(errors.New("internal handler failure"))
		}
	}()

	switch m {
	case MethodInitData:
		resp = t.initData(payload)
	case MethodShowContactForm:
		resp = t.showContactForm(payload)
	case MethodSubmitContactInfo:
		resp = t.submitContactInfo(payload)
	case MethodContactFormSubmitted:
		resp = t.contactFormSubmitted()
	case MethodGetContactInfo:
		resp = t.getContactInfo()
	default:
		resp = "Error: Unknown method " + string(m)
	}
	logger.Debug().Str("response", resp).Msg("rpc handled")
	return resp
}
