package webrtc

import (
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"arcast/internal/core/ports"
)

// rtcpDrain reads the RTCP feedback arriving on a video sender. Picture
// loss indications become keyframe requests on the capture side; receiver
// reports feed the quality metrics. The loop exits when the sender closes
// with the peer connection.
type rtcpDrain struct {
	sender    *webrtc.RTPSender
	keyframes ports.KeyframeRequester
	metrics   RTCPMetrics
	logger    *zap.SugaredLogger
	done      chan struct{}
}

func newRTCPDrain(sender *webrtc.RTPSender, keyframes ports.KeyframeRequester, metrics RTCPMetrics, logger *zap.SugaredLogger) *rtcpDrain {
	return &rtcpDrain{
		sender:    sender,
		keyframes: keyframes,
		metrics:   metrics,
		logger:    logger,
		done:      make(chan struct{}),
	}
}

func (d *rtcpDrain) run() {
	go d.loop()
}

func (d *rtcpDrain) wait() {
	<-d.done
}

func (d *rtcpDrain) loop() {
	defer close(d.done)

	buf := make([]byte, 1500)
	for {
		n, _, err := d.sender.Read(buf)
		if err != nil {
			// sender closed with the peer connection
			return
		}

		packets, err := rtcp.Unmarshal(buf[:n])
		if err != nil {
			d.logger.Debugw("failed to parse RTCP packet", "error", err)
			continue
		}
		d.process(packets)
	}
}

func (d *rtcpDrain) process(packets []rtcp.Packet) {
	for _, packet := range packets {
		switch p := packet.(type) {
		case *rtcp.PictureLossIndication:
			d.logger.Debugw("PLI received, requesting keyframe")
			if d.metrics != nil {
				d.metrics.RecordKeyframeRequest()
			}
			if d.keyframes != nil {
				d.keyframes.ForceKeyframe()
			}

		case *rtcp.ReceiverReport:
			for _, report := range p.Reports {
				if d.metrics != nil {
					d.metrics.RecordReceiverReport(float64(report.FractionLost)/255.0, report.Jitter)
				}
			}

		case *rtcp.TransportLayerNack:
			d.logger.Debugw("NACK received", "nacks", len(p.Nacks))
		}
	}
}
