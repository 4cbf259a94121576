package media

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
)

const (
	sinkSampleRate = 48000
	sinkChannels   = 2
)

// SinkFactory opens the sink for the agent's audio in one call.
type SinkFactory func(sid core.SessionID) (core.AudioSink, error)

// OggSink records Opus RTP packets into an Ogg container.
type OggSink struct {
	mu     sync.Mutex
	w      *oggwriter.OggWriter
	closed bool
}

// NewOggSink writes to out, closing it on Close when it is an io.Closer.
func NewOggSink(out io.Writer) (*OggSink, error) {
	w, err := oggwriter.NewWith(out, sinkSampleRate, sinkChannels)
	if err != nil {
		return nil, err
	}
	return &OggSink{w: w}, nil
}

// RecordTo returns a factory writing agent-<sid>.ogg files under dir.
// An empty dir discards the audio.
func RecordTo(dir string) SinkFactory {
	if dir == "" {
		return func(core.SessionID) (core.AudioSink, error) { return Discard{}, nil }
	}
	return func(sid core.SessionID) (core.AudioSink, error) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, fmt.Sprintf("agent-%s.ogg", sid))
		f, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		sink, err := NewOggSink(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		log.Info().Str("module", "media").Str("path", path).Msg("recording agent audio")
		return sink, nil
	}
}

func (s *OggSink) WriteRTP(pkt *rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	return s.w.WriteRTP(pkt)
}

func (s *OggSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.w.Close()
}

// Discard drops every packet.
type Discard struct{}

func (Discard) WriteRTP(*rtp.Packet) error { return nil }
func (Discard) Close() error               { return nil }
