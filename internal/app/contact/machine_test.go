package contact

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type alertRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (a *alertRecorder) Alert(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.msgs = append(a.msgs, msg)
}

func (a *alertRecorder) messages() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.msgs...)
}

func TestInitialModeIsIdle(t *testing.T) {
	m := NewMachine(nil, 0)
	require.Equal(t, ModeIdle, m.Mode())
	_, _, ok := m.ContactInfo()
	require.False(t, ok)
}

func TestAgentShowThenUserSubmit(t *testing.T) {
	alerts := &alertRecorder{}
	m := NewMachine(alerts, 10*time.Millisecond)
	defer m.Close()

	m.ShowForm(true, "Please provide contact info")
	s := m.Snapshot()
	require.Equal(t, ModeFormVisible, s.Mode())
	require.Equal(t, "Please provide contact info", s.Message)

	require.True(t, m.Submit("a@b.com", "555-1234"))
	s = m.Snapshot()
	require.Equal(t, ModeSubmitted, s.Mode())
	require.False(t, s.FormVisible)
	require.Contains(t, s.Message, "a@b.com")
	require.Contains(t, s.Message, "555-1234")

	require.Eventually(t, func() bool {
		msgs := alerts.messages()
		return len(msgs) == 1 && msgs[0] == SubmitPrompt
	}, time.Second, 5*time.Millisecond)

	email, phone, ok := m.ContactInfo()
	require.True(t, ok)
	require.Equal(t, "a@b.com", email)
	require.Equal(t, "555-1234", phone)

	m.Dismiss()
	require.Equal(t, ModeIdle, m.Mode())
}

func TestSubmitRequiresBothFields(t *testing.T) {
	alerts := &alertRecorder{}
	m := NewMachine(alerts, 0)
	m.ShowForm(true, "hi")
	before := m.Snapshot()

	for _, c := range []struct{ email, phone string }{
		{"", "555"},
		{"a@b.com", ""},
		{"", ""},
	} {
		require.False(t, m.Submit(c.email, c.phone))
		require.Equal(t, before, m.Snapshot())
	}
	time.Sleep(20 * time.Millisecond)
	require.Empty(t, alerts.messages())
}

func TestSubmitAcceptsAnyNonEmptyStrings(t *testing.T) {
	m := NewMachine(nil, 0)
	require.True(t, m.Submit("not-an-email", "x"))
	require.Equal(t, ModeSubmitted, m.Mode())
}

func TestCancelReturnsToIdle(t *testing.T) {
	m := NewMachine(nil, 0)
	m.ShowForm(true, "hi")
	m.Cancel()
	require.Equal(t, ModeIdle, m.Mode())
	require.Equal(t, "hi", m.Snapshot().Message)
}

func TestAgentApplyIsAtomic(t *testing.T) {
	m := NewMachine(nil, 0)
	ok := m.Apply(State{Submitted: true, Email: "x@y.z", Phone: "1", Message: "done"})
	require.True(t, ok)
	require.Equal(t, State{Submitted: true, Email: "x@y.z", Phone: "1", Message: "done"}, m.Snapshot())

	ok = m.Apply(State{FormVisible: true, Submitted: true, Email: "", Phone: "1"})
	require.False(t, ok)
	require.Equal(t, "x@y.z", m.Snapshot().Email)
}

func TestSubmittedWinsOverFormVisible(t *testing.T) {
	require.Equal(t, ModeSubmitted, State{FormVisible: true, Submitted: true}.Mode())
}

func TestDismissAfterAgentSubmitReturnsToIdle(t *testing.T) {
	m := NewMachine(nil, 0)
	require.True(t, m.Apply(State{FormVisible: true, Submitted: true, Email: "x@y.z", Phone: "1"}))
	require.Equal(t, ModeSubmitted, m.Mode())

	m.Dismiss()
	s := m.Snapshot()
	require.Equal(t, ModeIdle, s.Mode())
	require.False(t, s.FormVisible)
	require.Equal(t, "x@y.z", s.Email)
}

func TestDismissLeavesOpenFormAlone(t *testing.T) {
	m := NewMachine(nil, 0)
	m.ShowForm(true, "hi")
	m.Dismiss()
	require.Equal(t, ModeFormVisible, m.Mode())
}

func TestDraftKeepsMode(t *testing.T) {
	m := NewMachine(nil, 0)
	m.ShowForm(true, "hi")
	m.SetDraft("a@b.com", "")
	require.Equal(t, ModeFormVisible, m.Mode())
	_, _, ok := m.ContactInfo()
	require.False(t, ok)
}

// Agent and user writes are not sequenced against each other: whichever
// lands last is what the view sees.
func TestLastWriteWinsBetweenOrigins(t *testing.T) {
	m := NewMachine(nil, 0)

	m.ShowForm(true, "agent asks")
	m.Cancel()
	require.Equal(t, ModeIdle, m.Mode())

	m.Cancel()
	m.ShowForm(true, "agent asks again")
	require.Equal(t, ModeFormVisible, m.Mode())

	require.True(t, m.Submit("u@x.com", "1"))
	m.Apply(State{FormVisible: true, Message: "agent override"})
	require.Equal(t, ModeFormVisible, m.Mode())
	require.Equal(t, "agent override", m.Snapshot().Message)
}

func TestConcurrentMutationsStayConsistent(t *testing.T) {
	m := NewMachine(nil, time.Hour)
	defer m.Close()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			m.ShowForm(i%2 == 0, "agent")
		}()
		go func() {
			defer wg.Done()
			m.Submit("a@b.com", "555")
		}()
	}
	wg.Wait()
	s := m.Snapshot()
	if s.Submitted {
		require.True(t, strings.HasPrefix(s.Message, "Thank you!") || s.Message == "agent")
		require.True(t, s.Complete())
	}
}
