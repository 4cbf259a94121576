// Package results holds the listings pushed by the agent and the focused
// detail/gallery view over them.
package results

import (
	"errors"
	"sync"

	"github.com/dkeye/VoiceAgent/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNoSelection     = errors.New("no property selected")
	ErrUnknownMedia    = errors.New("unknown media kind")
)

// Observer is notified after every wholesale replacement.
type Observer interface {
	ResultsReplaced(records []domain.Property)
}

// MediaCursor points at one item of one gallery of the selected property.
type MediaCursor struct {
	Kind  domain.MediaKind `json:"kind"`
	Index int              `json:"index"`
	URL   string           `json:"url"`
}

// Cache is safe for concurrent use. The selected property is a copy, so a
// fresh Replace leaves an open detail view untouched.
type Cache struct {
	mu        sync.RWMutex
	records   []domain.Property
	selected  *domain.Property
	media     *MediaCursor
	observers []Observer
}

func NewCache(observers ...Observer) *Cache {
	return &Cache{observers: observers}
}

// Replace swaps the whole result set; no merge.
func (c *Cache) Replace(records []domain.Property) {
	next := make([]domain.Property, len(records))
	copy(next, records)

	c.mu.Lock()
	c.records = next
	observers := c.observers
	c.mu.Unlock()

	log.Info().Str("module", "app.results").Int("count", len(next)).Msg("results replaced")
	for _, o := range observers {
		o.ResultsReplaced(c.List())
	}
}

func (c *Cache) List() []domain.Property {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Property, len(c.records))
	copy(out, c.records)
	return out
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.records)
}

// Select opens the detail view for the record at index.
func (c *Cache) Select(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.records) {
		return ErrIndexOutOfRange
	}
	p := c.records[index]
	c.selected = &p
	c.media = nil
	return nil
}

func (c *Cache) Selected() (domain.Property, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.selected == nil {
		return domain.Property{}, false
	}
	return *c.selected, true
}

// CloseDetail clears the selected record and any open media item.
func (c *Cache) CloseDetail() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = nil
	c.media = nil
}

// SelectMedia opens item index of the kind gallery of the selected record.
func (c *Cache) SelectMedia(kind domain.MediaKind, index int) (MediaCursor, error) {
	if !kind.IsValid() {
		return MediaCursor{}, ErrUnknownMedia
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return MediaCursor{}, ErrNoSelection
	}
	items := c.selected.Media(kind)
	if index < 0 || index >= len(items) {
		return MediaCursor{}, ErrIndexOutOfRange
	}
	c.media = &MediaCursor{Kind: kind, Index: index, URL: items[index]}
	return *c.media, nil
}

func (c *Cache) NextMedia() (MediaCursor, bool) { return c.stepMedia(1) }

func (c *Cache) PrevMedia() (MediaCursor, bool) { return c.stepMedia(-1) }

func (c *Cache) stepMedia(delta int) (MediaCursor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil || c.media == nil {
		return MediaCursor{}, false
	}
	items := c.selected.Media(c.media.Kind)
	if len(items) == 0 {
		return MediaCursor{}, false
	}
	i := domain.WrapIndex(c.media.Index, delta, len(items))
	c.media.Index = i
	c.media.URL = items[i]
	return *c.media, true
}

func (c *Cache) CurrentMedia() (MediaCursor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.media == nil {
		return MediaCursor{}, false
	}
	return *c.media, true
}

func (c *Cache) CloseMedia() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.media = nil
}
