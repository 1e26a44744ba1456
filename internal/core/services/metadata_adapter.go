package services

import (
	"errors"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
)

// metadataAdapter forwards tracking samples to the session's data channel.
// Samples that arrive before the channel opens or while its send buffer is
// above the saturation threshold are dropped and counted, never queued.
type metadataAdapter struct {
	log     *zap.SugaredLogger
	sub     *Subscription[domain.TrackingSample]
	channel ports.MetadataChannel
	metrics ports.MetricsSink
	done    chan struct{}
}

func newMetadataAdapter(log *zap.SugaredLogger, sub *Subscription[domain.TrackingSample], channel ports.MetadataChannel, metrics ports.MetricsSink) *metadataAdapter {
	return &metadataAdapter{
		log:     log,
		sub:     sub,
		channel: channel,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

func (a *metadataAdapter) run() {
	go a.loop()
}

func (a *metadataAdapter) stop() {
	a.sub.Cancel()
	<-a.done
}

func (a *metadataAdapter) loop() {
	defer close(a.done)
	for sample := range a.sub.C() {
		if a.channel.Closed() {
			return
		}
		if !a.channel.Ready() || a.channel.Saturated() {
			a.metrics.RecordTrackingSampleDropped()
			continue
		}
		payload, err := domain.EncodeTrackingSample(sample)
		if err != nil {
			a.log.Errorw("failed to encode tracking sample", "error", err)
			continue
		}
		if err := a.channel.Send(payload); err != nil {
			a.metrics.RecordMetadataMessageDropped()
			if !errors.Is(err, domain.ErrChannelNotOpen) {
				a.log.Warnw("failed to send tracking sample", "error", err)
			}
		}
	}
}
