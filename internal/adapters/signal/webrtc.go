package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/dkeye/VoiceAgent/internal/adapters/media"
	"github.com/dkeye/VoiceAgent/internal/core"
)

var ErrAlreadyPublished = errors.New("audio already published")

var opusCapability = webrtc.RTPCodecCapability{
	MimeType:  webrtc.MimeTypeOpus,
	ClockRate: 48000,
	Channels:  2,
}

// PublishAudio acquires the capture, offers it as the local audio track and
// waits for the server's answer.
func (h *Handle) PublishAudio(ctx context.Context, src core.AudioSource) error {
	h.mu.Lock()
	conn, sctx, closed, published := h.conn, h.ctx, h.closed, h.media != nil || h.capture != nil
	h.mu.Unlock()
	if conn == nil || closed {
		return ErrNotConnected
	}
	if published {
		return ErrAlreadyPublished
	}
	if src == nil {
		return errors.New("no audio source")
	}

	capture, err := src.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire audio: %w", err)
	}
	if !h.adopt(func() { h.capture = capture }) {
		_ = capture.Release()
		return ErrNotConnected
	}

	mc, err := h.opts.NewMedia(h.opts.WebRTC, h.id)
	if err != nil {
		return fmt.Errorf("peer connection: %w", err)
	}
	if !h.adopt(func() { h.media = mc }) {
		mc.Close()
		return ErrNotConnected
	}
	mc.OnICECandidate(h.sendCandidate)
	mc.OnTrack(h.onRemoteTrack)
	// Close may run inside shutdown, which is not reentrant.
	mc.OnClosed(func() { go h.shutdown(errMediaEnded, true) })
	if err := mc.Start(sctx); err != nil {
		return fmt.Errorf("start peer connection: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(opusCapability, "audio", "voice-"+string(h.id))
	if err != nil {
		return fmt.Errorf("local track: %w", err)
	}
	sender, err := mc.AddLocalTrack(track)
	if err != nil {
		return fmt.Errorf("add local track: %w", err)
	}
	go drainRTCP(sender)

	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := h.sendJSON(sdpMessage{Type: msgOffer, SDP: offer.SDP}); err != nil {
		return fmt.Errorf("send offer: %w", err)
	}

	var answer webrtc.SessionDescription
	select {
	case answer = <-h.answers:
	case <-ctx.Done():
		return fmt.Errorf("await answer: %w", ctx.Err())
	case <-sctx.Done():
		return ErrNotConnected
	}
	if err := mc.ApplyAnswer(answer); err != nil {
		return fmt.Errorf("apply answer: %w", err)
	}
	h.flushCandidates(mc)

	go h.pumpAudio(sctx, track, capture)
	h.logger.Info().Msg("audio published")
	return nil
}

// adopt stores a resource under the lock unless the handle is already closed.
func (h *Handle) adopt(set func()) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	set()
	return true
}

func drainRTCP(sender *webrtc.RTPSender) {
	if sender == nil {
		return
	}
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (h *Handle) pumpAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample, capture core.AudioCapture) {
	for {
		if ctx.Err() != nil {
			return
		}
		s, err := capture.ReadSample()
		if err != nil {
			if errors.Is(err, io.EOF) {
				h.logger.Info().Msg("audio capture ended")
			} else if ctx.Err() == nil {
				h.logger.Warn().Err(err).Msg("audio capture read")
			}
			return
		}
		if err := track.WriteSample(s); err != nil {
			h.logger.Warn().Err(err).Msg("audio track write")
			return
		}
	}
}

func (h *Handle) onRemoteTrack(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	if track.Kind() != webrtc.RTPCodecTypeAudio {
		return
	}
	sink, err := h.opts.Sinks(h.id)
	if err != nil {
		h.logger.Error().Err(err).Msg("open agent audio sink")
		return
	}
	relay := media.NewRelay(media.PacketSourceFunc(func() (*rtp.Packet, error) {
		pkt, _, err := track.ReadRTP()
		return pkt, err
	}))
	relay.AddSink("agent", sink)

	logger := h.logger.With().Str("track_id", track.ID()).Logger()
	logger.Info().Msg("agent audio track")
	go relay.Run(ctx, &logger)
}

func (h *Handle) handleAnswer(data []byte) {
	var p sdpMessage
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Error().Err(err).Msg("bad answer payload")
		return
	}
	select {
	case h.answers <- webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: p.SDP}:
	default:
		h.logger.Warn().Msg("unexpected answer")
	}
}

func (h *Handle) sendCandidate(ci webrtc.ICECandidateInit) {
	if err := h.sendJSON(candidateMessage{
		Type:          msgCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	}); err != nil {
		h.logger.Debug().Err(err).Msg("send candidate")
	}
}

// handleCandidate applies a remote candidate, or holds it until the answer is applied.
func (h *Handle) handleCandidate(data []byte) {
	var p candidateMessage
	if err := json.Unmarshal(data, &p); err != nil {
		h.logger.Error().Err(err).Msg("bad candidate payload")
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}

	h.mu.Lock()
	mc := h.media
	if mc == nil || !h.remoteSet {
		h.pending = append(h.pending, cand)
		h.mu.Unlock()
		return
	}
	h.mu.Unlock()
	if err := mc.AddICECandidate(cand); err != nil {
		h.logger.Error().Err(err).Msg("add ice candidate")
	}
}

func (h *Handle) flushCandidates(mc core.MediaConnection) {
	h.mu.Lock()
	h.remoteSet = true
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, c := range pending {
		if err := mc.AddICECandidate(c); err != nil {
			h.logger.Error().Err(err).Msg("add ice candidate")
		}
	}
}
