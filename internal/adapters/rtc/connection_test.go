package rtc

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultWebRTCConfig()
	require.Equal(t, DefaultICEServers, cfg.ICEServers[0].URLs)

	cfg = DefaultWebRTCConfig("stun:example.org:3478")
	require.Equal(t, []string{"stun:example.org:3478"}, cfg.ICEServers[0].URLs)
}

func TestOfferCarriesAudioAndCloseIsIdempotent(t *testing.T) {
	c, err := NewWebRTCConnection(webrtc.Configuration{}, "test")
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "test")
	require.NoError(t, err)
	_, err = c.AddLocalTrack(track)
	require.NoError(t, err)

	offer, err := c.CreateAndSetOffer()
	require.NoError(t, err)
	require.Equal(t, webrtc.SDPTypeOffer, offer.Type)
	require.Contains(t, offer.SDP, "m=audio")

	closed := 0
	c.OnClosed(func() { closed++ })
	require.False(t, c.IsClosed())
	c.Close()
	c.Close()
	require.True(t, c.IsClosed())
	require.Equal(t, 1, closed)
}
