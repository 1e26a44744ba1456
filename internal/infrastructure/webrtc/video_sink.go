package webrtc

import (
	"fmt"
	"sync"

	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
)

// rtpWriter is the slice of TrackLocalStaticRTP the sink needs. Tests
// substitute a packet recorder.
type rtpWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// videoSink packetizes H.264 access units onto one session's video track.
// Raw planar frames pass through the configured encoder first; pre-encoded
// Annex-B units go straight to packetization. The sink caches the latest
// SPS/PPS it sees and re-injects them before every IDR, so a client joining
// mid-stream can decode from the next keyframe.
type videoSink struct {
	track     rtpWriter
	encoder   ports.VideoEncoder
	payloader *codecs.H264Payloader
	sequencer rtp.Sequencer
	mtu       uint16
	logger    *zap.SugaredLogger

	mu     sync.Mutex
	sps    []byte
	pps    []byte
	closed bool
}

func newVideoSink(track rtpWriter, encoder ports.VideoEncoder, mtu uint16, logger *zap.SugaredLogger) *videoSink {
	return &videoSink{
		track:     track,
		encoder:   encoder,
		payloader: &codecs.H264Payloader{},
		sequencer: rtp.NewRandomSequencer(),
		mtu:       mtu,
		logger:    logger,
	}
}

// WriteFrame encodes a raw planar frame and packetizes the result. Without
// an encoder only pre-encoded capture is supported.
func (s *videoSink) WriteFrame(frame domain.PlanarFrame) error {
	if s.encoder == nil {
		return fmt.Errorf("%w: no encoder for raw %dx%d frame",
			domain.ErrUnsupportedPixelFormat, frame.Width, frame.Height)
	}
	au, err := s.encoder.Encode(frame)
	if err != nil {
		return fmt.Errorf("video encode failed: %w", err)
	}
	return s.WriteAccessUnit(au, frame.RTPTimestamp)
}

// WriteAccessUnit splits one Annex-B access unit into RTP packets sharing
// rtpTimestamp, with the marker bit on the last packet of the unit.
func (s *videoSink) WriteAccessUnit(au domain.AccessUnit, rtpTimestamp uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}

	var annexB h264.AnnexB
	if err := annexB.Unmarshal(au.Data); err != nil {
		return fmt.Errorf("failed to parse access unit: %w", err)
	}

	nalus := s.prepareNALUs(annexB)
	wire, err := h264.AnnexB(nalus).Marshal()
	if err != nil {
		return fmt.Errorf("failed to assemble access unit: %w", err)
	}

	payloads := s.payloader.Payload(s.mtu, wire)
	for i, payload := range payloads {
		pkt := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				PayloadType:    videoPayloadType,
				SequenceNumber: s.sequencer.NextSequenceNumber(),
				Timestamp:      rtpTimestamp,
				Marker:         i == len(payloads)-1,
			},
			Payload: payload,
		}
		if err := s.track.WriteRTP(pkt); err != nil {
			return fmt.Errorf("failed to write RTP packet: %w", err)
		}
	}
	return nil
}

// prepareNALUs refreshes the parameter-set cache from the unit and prepends
// the cached SPS/PPS when the unit carries an IDR without its own.
func (s *videoSink) prepareNALUs(nalus [][]byte) [][]byte {
	hasIDR := false
	hasSPS := false
	hasPPS := false
	for _, nalu := range nalus {
		if len(nalu) == 0 {
			continue
		}
		switch h264.NALUType(nalu[0] & 0x1F) {
		case h264.NALUTypeSPS:
			s.sps = append(s.sps[:0], nalu...)
			hasSPS = true
		case h264.NALUTypePPS:
			s.pps = append(s.pps[:0], nalu...)
			hasPPS = true
		case h264.NALUTypeIDR:
			hasIDR = true
		}
	}

	if hasIDR && !(hasSPS && hasPPS) && len(s.sps) > 0 && len(s.pps) > 0 {
		withParams := make([][]byte, 0, len(nalus)+2)
		withParams = append(withParams, s.sps, s.pps)
		withParams = append(withParams, nalus...)
		return withParams
	}
	return nalus
}

// Close detaches the sink from the track. Idempotent; writes after Close
// fail without touching the track.
func (s *videoSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// IsKeyframe reports whether an Annex-B access unit contains an IDR slice.
func IsKeyframe(data []byte) bool {
	var annexB h264.AnnexB
	if annexB.Unmarshal(data) != nil {
		return false
	}
	for _, nalu := range annexB {
		if len(nalu) > 0 && h264.NALUType(nalu[0]&0x1F) == h264.NALUTypeIDR {
			return true
		}
	}
	return false
}
