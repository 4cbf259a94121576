// Package orch is the controller the view layer talks to. It owns no state of
// its own; every read is a projection of the session, the results and the
// contact form.
package orch

import (
	"github.com/dkeye/VoiceAgent/internal/app/alert"
	"github.com/dkeye/VoiceAgent/internal/app/contact"
	"github.com/dkeye/VoiceAgent/internal/app/results"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

type Orchestrator struct {
	Session *session.Manager
	Results *results.Cache
	Contact *contact.Machine
	Alerts  *alert.Queue

	// Room is the fixed room hint; empty draws a fresh one per call.
	Room       domain.RoomName
	RoomPrefix string
	UserPrefix string
}

type PropertyCard struct {
	Index     int             `json:"index"`
	Thumbnail string          `json:"thumbnail"`
	Property  domain.Property `json:"property"`
}

type ContactView struct {
	contact.State
	Mode contact.Mode `json:"mode"`
}

type View struct {
	Session       domain.Session       `json:"session"`
	LanguageLabel string               `json:"language_label"`
	Properties    []PropertyCard       `json:"properties"`
	Selected      *domain.Property     `json:"selected,omitempty"`
	Media         *results.MediaCursor `json:"media,omitempty"`
	Contact       ContactView          `json:"contact"`
	Alerts        []alert.Alert        `json:"alerts"`
}

// View snapshots everything the UI renders and drains pending alerts.
func (o *Orchestrator) View() View {
	sess := o.Session.Session()
	list := o.Results.List()
	cards := make([]PropertyCard, len(list))
	for i, p := range list {
		cards[i] = PropertyCard{Index: i, Thumbnail: p.Thumbnail(), Property: p}
	}

	v := View{
		Session:       sess,
		LanguageLabel: sess.Language.Label(),
		Properties:    cards,
		Alerts:        o.Alerts.Drain(),
	}
	if v.Alerts == nil {
		v.Alerts = []alert.Alert{}
	}
	if p, ok := o.Results.Selected(); ok {
		v.Selected = &p
	}
	if m, ok := o.Results.CurrentMedia(); ok {
		v.Media = &m
	}
	st := o.Contact.Snapshot()
	v.Contact = ContactView{State: st, Mode: st.Mode()}
	return v
}

// Close ends the call and stops pending timers.
func (o *Orchestrator) Close() {
	o.Session.Close()
	o.Contact.Close()
}
