package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceAgent/internal/core"
)

type SinkState int32

const (
	SinkStateOk SinkState = iota
	SinkStateDelete
)

// PacketSource is the read side of a remote track.
type PacketSource interface {
	ReadPacket() (*rtp.Packet, error)
}

// PacketSourceFunc adapts a plain function to PacketSource.
type PacketSourceFunc func() (*rtp.Packet, error)

func (f PacketSourceFunc) ReadPacket() (*rtp.Packet, error) { return f() }

type outSink struct {
	sink  core.AudioSink
	state atomic.Int32
}

func (o *outSink) getState() SinkState { return SinkState(o.state.Load()) }

// Relay reads the agent's audio and forwards each packet to every attached sink.
// A sink that fails a write is detached and closed.
type Relay struct {
	src PacketSource

	mu    sync.RWMutex
	sinks map[string]*outSink
}

func NewRelay(src PacketSource) *Relay {
	return &Relay{src: src, sinks: make(map[string]*outSink)}
}

func (r *Relay) AddSink(name string, s core.AudioSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sinks[name]; ok {
		old.state.Store(int32(SinkStateDelete))
		_ = old.sink.Close()
	}
	r.sinks[name] = &outSink{sink: s}
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sinks)
}

// Run forwards packets until ctx is done or the source fails, then closes every sink.
func (r *Relay) Run(ctx context.Context, logger *zerolog.Logger) {
	defer r.closeAll()
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("relay ctx done")
			return
		default:
		}
		pkt, err := r.src.ReadPacket()
		if err != nil {
			logger.Info().Err(err).Msg("relay source ended")
			return
		}
		r.forward(pkt, logger)
	}
}

func (r *Relay) forward(pkt *rtp.Packet, logger *zerolog.Logger) {
	r.mu.RLock()
	snapshot := make(map[string]*outSink, len(r.sinks))
	for k, v := range r.sinks {
		snapshot[k] = v
	}
	r.mu.RUnlock()

	var dirty []string
	for name, o := range snapshot {
		switch o.getState() {
		case SinkStateDelete:
			dirty = append(dirty, name)
		case SinkStateOk:
			if err := o.sink.WriteRTP(pkt); err != nil {
				logger.Error().Err(err).Str("sink", name).Msg("relay write error, detaching sink")
				o.state.Store(int32(SinkStateDelete))
				dirty = append(dirty, name)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanup(dirty, snapshot)
	}
}

func (r *Relay) cleanup(dirty []string, seen map[string]*outSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range dirty {
		if cur, ok := r.sinks[name]; ok && cur == seen[name] {
			delete(r.sinks, name)
			_ = cur.sink.Close()
		}
	}
}

func (r *Relay) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, o := range r.sinks {
		o.state.Store(int32(SinkStateDelete))
		_ = o.sink.Close()
		delete(r.sinks, name)
	}
}
