package webrtc

import (
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
)

// saturationThreshold is the buffered byte count above which the channel
// reports itself saturated; the metadata adapter drops samples instead of
// letting the SCTP buffer grow.
const saturationThreshold = 256 * 1024

// metadataChannel adapts a pion data channel to the metadata channel port.
// Readiness flips on the channel's own open/close callbacks, never by
// polling, so a Send racing the open handshake fails cleanly.
type metadataChannel struct {
	dc     *webrtc.DataChannel
	logger *zap.SugaredLogger

	open   atomic.Bool
	closed atomic.Bool
	once   sync.Once
}

func newMetadataChannel(dc *webrtc.DataChannel, logger *zap.SugaredLogger) *metadataChannel {
	c := &metadataChannel{dc: dc, logger: logger}

	dc.OnOpen(func() {
		c.open.Store(true)
		logger.Infow("metadata channel open", "label", dc.Label())
	})
	dc.OnClose(func() {
		c.open.Store(false)
		c.closed.Store(true)
		logger.Infow("metadata channel closed", "label", dc.Label())
	})

	return c
}

func (c *metadataChannel) Send(payload []byte) error {
	if !c.open.Load() || c.closed.Load() {
		return domain.ErrChannelNotOpen
	}
	return c.dc.SendText(string(payload))
}

func (c *metadataChannel) Ready() bool {
	return c.open.Load() && !c.closed.Load()
}

func (c *metadataChannel) Saturated() bool {
	return c.dc.BufferedAmount() > saturationThreshold
}

func (c *metadataChannel) Closed() bool {
	return c.closed.Load()
}

func (c *metadataChannel) Close() error {
	var err error
	c.once.Do(func() {
		c.open.Store(false)
		c.closed.Store(true)
		err = c.dc.Close()
	})
	return err
}
