package orch

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceAgent/internal/app/alert"
	"github.com/dkeye/VoiceAgent/internal/app/contact"
	"github.com/dkeye/VoiceAgent/internal/app/results"
	"github.com/dkeye/VoiceAgent/internal/app/rpc"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type refusingTokens struct{ rooms []domain.RoomName }

func (r *refusingTokens) Fetch(_ context.Context, room domain.RoomName, _ string) (domain.Credential, error) {
	r.rooms = append(r.rooms, room)
	return domain.Credential{}, &domain.TokenFetchError{Status: 500, Reason: "Internal Server Error"}
}

func newOrchestrator(t *testing.T) (*Orchestrator, *refusingTokens) {
	t.Helper()
	alerts := alert.NewQueue(0)
	cache := results.NewCache()
	machine := contact.NewMachine(alerts, 0)
	tokens := &refusingTokens{}
	mgr := session.NewManager(session.Options{
		Tokens:       tokens,
		NewTransport: func() core.Transport { panic("no transport without a token") },
		RPC:          rpc.NewTable(cache, machine),
		Alerts:       alerts,
	})
	o := &Orchestrator{Session: mgr, Results: cache, Contact: machine, Alerts: alerts, RoomPrefix: "my-room"}
	t.Cleanup(o.Close)
	return o, tokens
}

func TestStartCallFailureSurfacesAlertOnce(t *testing.T) {
	o, tokens := newOrchestrator(t)

	_, err := o.StartCall(context.Background(), "")
	var tfe *domain.TokenFetchError
	require.True(t, errors.As(err, &tfe))
	require.Len(t, tokens.rooms, 1)
	require.True(t, strings.HasPrefix(string(tokens.rooms[0]), "my-room"))

	v := o.View()
	require.Equal(t, domain.PhaseDisconnected, v.Session.Phase)
	require.Len(t, v.Alerts, 1)
	require.Contains(t, v.Alerts[0].Message, "Could not connect to audio room")

	require.Empty(t, o.View().Alerts)
}

func TestFixedRoomIsUsed(t *testing.T) {
	o, tokens := newOrchestrator(t)
	o.Room = "lobby"
	_, _ = o.StartCall(context.Background(), "user-1")
	require.Equal(t, []domain.RoomName{"lobby"}, tokens.rooms)
}

func TestViewProjectsResultsAndGallery(t *testing.T) {
	o, _ := newOrchestrator(t)
	o.Results.Replace([]domain.Property{
		{Title: "A", Images: domain.StringList{"a1.jpg", "a2.jpg"}},
		{Title: "B"},
	})

	v := o.View()
	require.Len(t, v.Properties, 2)
	require.Equal(t, "a1.jpg", v.Properties[0].Thumbnail)
	require.Equal(t, domain.PlaceholderImage, v.Properties[1].Thumbnail)
	require.Nil(t, v.Selected)
	require.Nil(t, v.Media)

	p, err := o.SelectProperty(0)
	require.NoError(t, err)
	require.Equal(t, domain.Text("A"), p.Title)
	_, err = o.SelectProperty(5)
	require.ErrorIs(t, err, results.ErrIndexOutOfRange)

	cur, err := o.SelectMedia(domain.MediaPhotos, 1)
	require.NoError(t, err)
	require.Equal(t, "a2.jpg", cur.URL)
	cur, ok := o.NextMedia()
	require.True(t, ok)
	require.Equal(t, 0, cur.Index)
	cur, ok = o.PrevMedia()
	require.True(t, ok)
	require.Equal(t, 1, cur.Index)

	v = o.View()
	require.NotNil(t, v.Selected)
	require.NotNil(t, v.Media)
	require.Equal(t, "a2.jpg", v.Media.URL)

	o.CloseMedia()
	require.Nil(t, o.View().Media)
	o.CloseDetail()
	require.Nil(t, o.View().Selected)
}

func TestContactActions(t *testing.T) {
	o, _ := newOrchestrator(t)
	o.Contact.ShowForm(true, "Please provide contact info")
	require.Equal(t, contact.ModeFormVisible, o.View().Contact.Mode)

	o.SaveContactDraft("a@b.com", "")
	require.False(t, o.SubmitContact("a@b.com", ""))
	require.True(t, o.SubmitContact("a@b.com", "555"))
	v := o.View()
	require.Equal(t, contact.ModeSubmitted, v.Contact.Mode)
	require.Equal(t, "a@b.com", v.Contact.Email)

	o.DismissContact()
	require.Equal(t, contact.ModeIdle, o.View().Contact.Mode)

	o.Contact.ShowForm(true, "again")
	o.CancelContact()
	require.Equal(t, contact.ModeIdle, o.View().Contact.Mode)
}

func TestLanguageWhileDisconnected(t *testing.T) {
	o, _ := newOrchestrator(t)
	require.Equal(t, "English", o.View().LanguageLabel)

	lang, err := o.ToggleLanguage(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.LanguageJapanese, lang)
	require.Equal(t, domain.LanguageJapanese, o.View().Session.Language)

	_, err = o.SetLanguage(context.Background(), "xx")
	require.ErrorIs(t, err, domain.ErrUnsupportedLanguage)
}
