package webrtc

import (
	"fmt"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"arcast/internal/core/ports"
)

// Config carries the transport settings the engine applies to every peer
// connection it builds.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	MTU uint16
}

// Engine builds peer connections from a shared pion API configured with the
// codecs the streamer produces: H.264 for video and Opus for audio. It
// implements the media transport port; one Engine serves the whole process
// and each NewPeerLink call hands out an independently owned link.
type Engine struct {
	api     *webrtc.API
	config  webrtc.Configuration
	mtu     uint16
	metrics RTCPMetrics
	logger  *zap.SugaredLogger
}

// RTCPMetrics receives transport quality feedback parsed from RTCP. The
// monitoring collector implements it; nil disables the counters.
type RTCPMetrics interface {
	RecordKeyframeRequest()
	RecordReceiverReport(fractionLost float64, jitter uint32)
}

func NewEngine(cfg Config, metrics RTCPMetrics, logger *zap.SugaredLogger) (*Engine, error) {
	mediaEngine := &webrtc.MediaEngine{}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeH264,
			ClockRate:   videoClockRate,
			SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42001f",
		},
		PayloadType: videoPayloadType,
	}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("failed to register H264 codec: %w", err)
	}

	if err := mediaEngine.RegisterCodec(webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:  webrtc.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		PayloadType: 111,
	}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("failed to register Opus codec: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("failed to set UDP port range: %w", err)
		}
	}

	iceServers := cfg.ICEServers
	if len(iceServers) == 0 {
		iceServers = []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		}
	}

	mtu := cfg.MTU
	if mtu == 0 {
		mtu = defaultMTU
	}

	return &Engine{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithSettingEngine(settingEngine),
		),
		config: webrtc.Configuration{
			ICEServers:   iceServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
		},
		mtu:     mtu,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// NewPeerLink creates a peer connection wired to the given event callbacks.
// The caller owns the returned link and must Close it.
func (e *Engine) NewPeerLink(events ports.TransportEvents) (ports.PeerLink, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return newPeerLink(pc, e.mtu, events, e.metrics, e.logger), nil
}
