package webrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
)

const (
	videoPayloadType = 96
	videoClockRate   = 90000
	defaultMTU       = 1200
)

// peerLink wraps one pion peer connection behind the transport port. Tracks
// and the metadata channel attach to it before the answer is created; the
// session coordinator is the only holder of a link for its lifetime.
type peerLink struct {
	pc      *webrtc.PeerConnection
	mtu     uint16
	events  ports.TransportEvents
	metrics RTCPMetrics
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	drains []*rtcpDrain
	closed bool
}

func newPeerLink(pc *webrtc.PeerConnection, mtu uint16, events ports.TransportEvents, metrics RTCPMetrics, logger *zap.SugaredLogger) *peerLink {
	l := &peerLink{
		pc:      pc,
		mtu:     mtu,
		events:  events,
		metrics: metrics,
		logger:  logger,
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of gathering
		}
		init := c.ToJSON()
		if events.LocalCandidate != nil {
			events.LocalCandidate(domain.IceCandidate{
				SDPMid:        init.SDPMid,
				SDPMLineIndex: init.SDPMLineIndex,
				Candidate:     init.Candidate,
			})
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.Infow("peer connection state changed", "state", state.String())
		if events.StateChange != nil {
			events.StateChange(transportState(state))
		}
	})

	return l
}

func transportState(state webrtc.PeerConnectionState) domain.TransportState {
	switch state {
	case webrtc.PeerConnectionStateNew:
		return domain.TransportNew
	case webrtc.PeerConnectionStateConnecting:
		return domain.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return domain.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return domain.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return domain.TransportFailed
	default:
		return domain.TransportClosed
	}
}

// AddVideoTrack attaches an H.264 track and returns the sink that carries
// access units onto it. A drain goroutine watches the track's RTCP stream
// and turns PLI into keyframe requests.
func (l *peerLink) AddVideoTrack(enc ports.VideoEncoder, kf ports.KeyframeRequester) (ports.VideoSink, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   videoClockRate,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
		},
		"video",
		"arcast-camera",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create video track: %w", err)
	}

	sender, err := l.pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("failed to add video track: %w", err)
	}

	drain := newRTCPDrain(sender, kf, l.metrics, l.logger)
	drain.run()

	l.mu.Lock()
	l.drains = append(l.drains, drain)
	l.mu.Unlock()

	return newVideoSink(track, enc, l.mtu, l.logger), nil
}

// AddAudioTrack attaches an Opus track fed by the given chunk stream. The
// returned pump keeps copying until it or the chunk stream closes.
func (l *peerLink) AddAudioTrack(chunks <-chan domain.AudioChunk) (ports.AudioPump, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		"audio",
		"arcast-microphone",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio track: %w", err)
	}

	if _, err := l.pc.AddTrack(track); err != nil {
		return nil, fmt.Errorf("failed to add audio track: %w", err)
	}

	pump := newAudioPump(track, chunks, l.logger)
	pump.run()
	return pump, nil
}

// OpenMetadataChannel creates the ordered reliable data channel that carries
// tracking samples. The channel only becomes usable once SCTP negotiation
// finishes, which requires the client's offer to include a data channel.
func (l *peerLink) OpenMetadataChannel(label string) (ports.MetadataChannel, error) {
	ordered := true
	dc, err := l.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel: %w", err)
	}
	return newMetadataChannel(dc, l.logger), nil
}

// ApplyRemoteOffer runs the answerer side of negotiation: set the remote
// offer, create the answer and commit it locally. ICE gathering continues
// in the background; candidates flow out through the LocalCandidate event.
func (l *peerLink) ApplyRemoteOffer(ctx context.Context, sdp string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("failed to create answer: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return "", fmt.Errorf("failed to set local description: %w", err)
	}
	return answer.SDP, nil
}

func (l *peerLink) AddRemoteCandidate(cand domain.IceCandidate) error {
	return l.pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	})
}

// Close shuts the peer connection and waits for the RTCP drains to exit.
// Safe to call more than once.
func (l *peerLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	drains := l.drains
	l.drains = nil
	l.mu.Unlock()

	err := l.pc.Close()
	for _, d := range drains {
		d.wait()
	}
	return err
}
