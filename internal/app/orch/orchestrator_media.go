package orch

import (
	"github.com/dkeye/VoiceAgent/internal/app/results"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

func (o *Orchestrator) SelectProperty(index int) (domain.Property, error) {
	if err := o.Results.Select(index); err != nil {
		return domain.Property{}, err
	}
	p, _ := o.Results.Selected()
	return p, nil
}

func (o *Orchestrator) CloseDetail() { o.Results.CloseDetail() }

func (o *Orchestrator) SelectMedia(kind domain.MediaKind, index int) (results.MediaCursor, error) {
	return o.Results.SelectMedia(kind, index)
}

func (o *Orchestrator) NextMedia() (results.MediaCursor, bool) { return o.Results.NextMedia() }
func (o *Orchestrator) PrevMedia() (results.MediaCursor, bool) { return o.Results.PrevMedia() }
func (o *Orchestrator) CloseMedia()                            { o.Results.CloseMedia() }
