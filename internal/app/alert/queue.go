// Package alert queues user-facing messages for the view layer.
package alert

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const DefaultCapacity = 32

type Alert struct {
	ID      string    `json:"id"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Queue keeps the most recent alerts until the view drains them.
type Queue struct {
	mu       sync.Mutex
	items    []Alert
	capacity int
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity}
}

// Alert enqueues msg, dropping the oldest entry when full.
func (q *Queue) Alert(msg string) {
	a := Alert{ID: uuid.NewString(), Message: msg, At: time.Now()}
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.items = q.items[1:]
	}
	q.items = append(q.items, a)
	q.mu.Unlock()
	log.Info().Str("module", "app.alert").Str("alert_id", a.ID).Str("message", msg).Msg("alert queued")
}

func (q *Queue) Drain() []Alert {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
