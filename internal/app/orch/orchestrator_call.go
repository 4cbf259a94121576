package orch

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/domain"
)

// StartCall joins with userHint, or a random one when empty.
func (o *Orchestrator) StartCall(ctx context.Context, userHint string) (domain.Session, error) {
	room := o.Room
	if room == "" {
		room = domain.NewRoomHint(o.RoomPrefix)
	}
	if userHint == "" {
		userHint = domain.NewUserHint(o.UserPrefix)
	}
	log.Info().Str("module", "app.orch").Str("room", string(room)).Str("user", userHint).Msg("start call")
	return o.Session.Join(ctx, room, userHint)
}

func (o *Orchestrator) EndCall() {
	log.Info().Str("module", "app.orch").Msg("end call")
	o.Session.Leave()
}

// CallPhase reports the session phase without draining alerts.
func (o *Orchestrator) CallPhase() domain.Phase { return o.Session.Session().Phase }

func (o *Orchestrator) SetLanguage(ctx context.Context, tag string) (domain.Language, error) {
	return o.Session.SetLanguage(ctx, tag)
}

func (o *Orchestrator) ToggleLanguage(ctx context.Context) (domain.Language, error) {
	next := o.Session.Session().Language.Toggle()
	return o.Session.SetLanguage(ctx, string(next))
}

func (o *Orchestrator) SaveContactDraft(email, phone string) { o.Contact.SetDraft(email, phone) }

// SubmitContact reports false when either field is empty; nothing changes then.
func (o *Orchestrator) SubmitContact(email, phone string) bool {
	return o.Contact.Submit(email, phone)
}

func (o *Orchestrator) CancelContact()  { o.Contact.Cancel() }
func (o *Orchestrator) DismissContact() { o.Contact.Dismiss() }
