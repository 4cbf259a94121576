// Package contact implements the contact-capture workflow negotiated between
// the agent (over RPC) and the local user (over the view API).
//
// Agent pushes and user actions are serialized per mutation; between the two
// origins the last write wins.
package contact

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	DefaultPromptDelay = time.Second

	SubmitPrompt = "Please say 'I have submitted my contact information' to the agent so they can acknowledge your submission."
)

type Mode int

const (
	ModeIdle Mode = iota
	ModeFormVisible
	ModeSubmitted
)

func (m Mode) String() string {
	switch m {
	case ModeFormVisible:
		return "form_visible"
	case ModeSubmitted:
		return "submitted"
	default:
		return "idle"
	}
}

func (m Mode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// State is the raw capture state.
type State struct {
	FormVisible bool   `json:"showContactForm"`
	Submitted   bool   `json:"contactSubmitted"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Message     string `json:"message"`
}

// Mode collapses the flags into the observable mode; Submitted wins over FormVisible.
func (s State) Mode() Mode {
	switch {
	case s.Submitted:
		return ModeSubmitted
	case s.FormVisible:
		return ModeFormVisible
	default:
		return ModeIdle
	}
}

// Complete reports whether both contact fields are present.
func (s State) Complete() bool { return s.Email != "" && s.Phone != "" }

// Alerter receives the delayed prompt after a local submission.
type Alerter interface {
	Alert(msg string)
}

type Machine struct {
	mu    sync.Mutex
	state State

	alerts      Alerter
	promptDelay time.Duration
	prompt      *time.Timer
}

func NewMachine(alerts Alerter, promptDelay time.Duration) *Machine {
	if promptDelay < 0 {
		promptDelay = DefaultPromptDelay
	}
	return &Machine{alerts: alerts, promptDelay: promptDelay}
}

func (m *Machine) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Mode() Mode { return m.Snapshot().Mode() }

// ShowForm applies the agent's showContactForm push.
func (m *Machine) ShowForm(visible bool, message string) {
	m.mu.Lock()
	m.state.FormVisible = visible
	m.state.Message = message
	mode := m.state.Mode()
	m.mu.Unlock()
	log.Info().Str("module", "app.contact").Bool("visible", visible).Str("mode", mode.String()).Msg("form pushed by agent")
}

// Apply sets every field at once from the agent's submitContactInfo push.
// A submitted state without both fields is refused.
func (m *Machine) Apply(next State) bool {
	if next.Submitted && !next.Complete() {
		log.Warn().Str("module", "app.contact").Msg("agent submission without email and phone refused")
		return false
	}
	m.mu.Lock()
	m.state = next
	m.mu.Unlock()
	log.Info().Str("module", "app.contact").Str("mode", next.Mode().String()).Msg("state pushed by agent")
	return true
}

// SetDraft stores in-progress form input without changing the mode.
func (m *Machine) SetDraft(email, phone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Email = email
	m.state.Phone = phone
}

// Submit is the local submit button. It is a no-op unless both fields are
// non-empty; no format validation is applied.
func (m *Machine) Submit(email, phone string) bool {
	if email == "" || phone == "" {
		return false
	}
	m.mu.Lock()
	m.state = State{
		Submitted: true,
		Email:     email,
		Phone:     phone,
		Message:   fmt.Sprintf("Thank you! We have received your contact information. Email: %s, Phone: %s", email, phone),
	}
	m.schedulePromptLocked()
	m.mu.Unlock()
	log.Info().Str("module", "app.contact").Msg("contact info submitted by user")
	return true
}

// schedulePromptLocked queues the only client-to-agent bridge: asking the user
// to confirm out loud.
func (m *Machine) schedulePromptLocked() {
	if m.alerts == nil {
		return
	}
	if m.prompt != nil {
		m.prompt.Stop()
	}
	alerts := m.alerts
	m.prompt = time.AfterFunc(m.promptDelay, func() { alerts.Alert(SubmitPrompt) })
}

// Cancel hides the form.
func (m *Machine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.FormVisible = false
}

// Dismiss closes the submission confirmation and returns to idle. A form the
// agent left visible alongside the confirmation is closed with it.
func (m *Machine) Dismiss() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.state.Submitted {
		return
	}
	m.state.Submitted = false
	m.state.FormVisible = false
}

// ContactInfo returns the captured pair when both are present.
func (m *Machine) ContactInfo() (email, phone string, ok bool) {
	s := m.Snapshot()
	if !s.Complete() {
		return "", "", false
	}
	return s.Email, s.Phone, true
}

// Close stops a pending prompt.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.prompt != nil {
		m.prompt.Stop()
		m.prompt = nil
	}
}
