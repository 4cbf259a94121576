// Package media provides the local audio capture and the sink for the agent's audio.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceAgent/internal/core"
)

const (
	opusClockRate  = 48000
	opusFrame      = 20 * time.Millisecond
	opusTagsMarker = "OpusTags"
)

var ErrReleased = errors.New("capture released")

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// OggSource captures from an Ogg/Opus file, standing in for a microphone.
type OggSource struct {
	Path string
	Loop bool
	// Paced makes ReadSample block for each page's duration, as a live device would.
	Paced bool
}

func (s OggSource) Acquire(ctx context.Context) (core.AudioCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	r, hdr, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("read ogg header: %w", err)
	}
	log.Info().Str("module", "media").
		Str("path", s.Path).
		Uint8("channels", hdr.Channels).
		Uint32("sample_rate", hdr.SampleRate).
		Msg("audio capture acquired")
	return &oggCapture{src: s, file: f, reader: r, done: make(chan struct{})}, nil
}

type oggCapture struct {
	src    OggSource
	file   *os.File
	reader *oggreader.OggReader

	lastGranule uint64
	next        time.Time

	once sync.Once
	done chan struct{}
}

func (c *oggCapture) ReadSample() (media.Sample, error) {
	for {
		select {
		case <-c.done:
			return media.Sample{}, ErrReleased
		default:
		}
		page, hdr, err := c.reader.ParseNextPage()
		if errors.Is(err, io.EOF) && c.src.Loop {
			if err := c.rewind(); err != nil {
				return media.Sample{}, err
			}
			continue
		}
		if err != nil {
			return media.Sample{}, err
		}
		if len(page) >= len(opusTagsMarker) && string(page[:len(opusTagsMarker)]) == opusTagsMarker {
			c.lastGranule = hdr.GranulePosition
			continue
		}

		samples := hdr.GranulePosition - c.lastGranule
		c.lastGranule = hdr.GranulePosition
		d := time.Duration(float64(samples) / opusClockRate * float64(time.Second))
		if d <= 0 {
			d = opusFrame
		}
		if c.src.Paced {
			if err := c.wait(d); err != nil {
				return media.Sample{}, err
			}
		}
		return media.Sample{Data: page, Duration: d}, nil
	}
}

func (c *oggCapture) wait(d time.Duration) error {
	now := time.Now()
	if c.next.IsZero() {
		c.next = now
	}
	c.next = c.next.Add(d)
	t := time.NewTimer(c.next.Sub(now))
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-c.done:
		return ErrReleased
	}
}

func (c *oggCapture) rewind() error {
	if _, err := c.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r, _, err := oggreader.NewWith(c.file)
	if err != nil {
		return err
	}
	c.reader = r
	c.lastGranule = 0
	return nil
}

func (c *oggCapture) Release() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		err = c.file.Close()
		log.Info().Str("module", "media").Str("path", c.src.Path).Msg("audio capture released")
	})
	return err
}

// SilenceSource yields Opus silence in real time. Used when no capture is configured.
type SilenceSource struct{}

func (SilenceSource) Acquire(ctx context.Context) (core.AudioCapture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &silenceCapture{ticker: time.NewTicker(opusFrame), done: make(chan struct{})}, nil
}

type silenceCapture struct {
	ticker *time.Ticker
	once   sync.Once
	done   chan struct{}
}

func (c *silenceCapture) ReadSample() (media.Sample, error) {
	select {
	case <-c.done:
		return media.Sample{}, ErrReleased
	case <-c.ticker.C:
		return media.Sample{Data: opusSilence, Duration: opusFrame}, nil
	}
}

func (c *silenceCapture) Release() error {
	c.once.Do(func() {
		c.ticker.Stop()
		close(c.done)
	})
	return nil
}
