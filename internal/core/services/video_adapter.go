package services

import (
	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
	"arcast/pkg/optimize"
)

// videoAdapter drains one session's frame subscription into the transport
// sink. It converts one frame at a time; together with the size-one frame
// queue this keeps the video path latest-wins when conversion falls behind
// the camera.
type videoAdapter struct {
	log     *zap.SugaredLogger
	sub     *Subscription[*domain.MediaFrame]
	sink    ports.VideoSink
	metrics ports.MetricsSink
	done    chan struct{}

	// Chroma planes for NV21 de-interleaving come from a pool sized on the
	// first frame. The Y plane aliases the source buffer and is not copied.
	chromaPool *optimize.BytePool
	chromaSize int
}

func newVideoAdapter(log *zap.SugaredLogger, sub *Subscription[*domain.MediaFrame], sink ports.VideoSink, metrics ports.MetricsSink) *videoAdapter {
	return &videoAdapter{
		log:     log,
		sub:     sub,
		sink:    sink,
		metrics: metrics,
		done:    make(chan struct{}),
	}
}

func (a *videoAdapter) run() {
	go a.loop()
}

// stop cancels the frame subscription and waits for the in-flight frame, if
// any, to finish writing.
func (a *videoAdapter) stop() {
	a.sub.Cancel()
	<-a.done
}

func (a *videoAdapter) loop() {
	defer close(a.done)
	for frame := range a.sub.C() {
		a.process(frame)
	}
}

func (a *videoAdapter) process(frame *domain.MediaFrame) {
	defer frame.Release()

	switch frame.Format {
	case domain.PixelFormatH264:
		// Pre-encoded capture bypasses the raw pixel path entirely.
		au := domain.AccessUnit{Data: frame.Data}
		if err := a.sink.WriteAccessUnit(au, domain.RTPTime(frame.Timestamp)); err != nil {
			a.metrics.RecordVideoFrameDropped()
			a.log.Warnw("failed to write access unit", "error", err)
		}
	case domain.PixelFormatNV21:
		planar, u, v, ok := a.deinterleave(frame)
		if !ok {
			a.metrics.RecordVideoFrameDropped()
			return
		}
		if err := a.sink.WriteFrame(planar); err != nil {
			a.metrics.RecordVideoFrameDropped()
			a.log.Warnw("failed to write frame", "error", err)
		}
		a.chromaPool.Put(u)
		a.chromaPool.Put(v)
	case domain.PixelFormatI420:
		planar, ok := planesOf(frame)
		if !ok {
			a.metrics.RecordVideoFrameDropped()
			a.log.Errorw("short video buffer",
				"format", frame.Format.String(), "len", len(frame.Data))
			return
		}
		if err := a.sink.WriteFrame(planar); err != nil {
			a.metrics.RecordVideoFrameDropped()
			a.log.Warnw("failed to write frame", "error", err)
		}
	default:
		a.metrics.RecordVideoFrameDropped()
		a.log.Errorw("unsupported pixel format", "format", frame.Format.String())
	}
}

// deinterleave splits an NV21 buffer's interleaved VU plane into the planar
// chroma the sink expects. The returned U and V buffers belong to the
// adapter's pool and must be returned after the write completes.
func (a *videoAdapter) deinterleave(frame *domain.MediaFrame) (domain.PlanarFrame, []byte, []byte, bool) {
	lumaSize := frame.Width * frame.Height
	chromaSize := lumaSize / 4
	if len(frame.Data) < lumaSize+2*chromaSize {
		a.log.Errorw("short video buffer",
			"format", frame.Format.String(), "len", len(frame.Data))
		return domain.PlanarFrame{}, nil, nil, false
	}
	if a.chromaPool == nil || a.chromaSize != chromaSize {
		a.chromaPool = optimize.NewBytePool(chromaSize)
		a.chromaSize = chromaSize
	}
	u := a.chromaPool.Get()[:chromaSize]
	v := a.chromaPool.Get()[:chromaSize]
	vu := frame.Data[lumaSize : lumaSize+2*chromaSize]
	for i := 0; i < chromaSize; i++ {
		v[i] = vu[2*i]
		u[i] = vu[2*i+1]
	}
	return domain.PlanarFrame{
		Y:            frame.Data[:lumaSize],
		U:            u,
		V:            v,
		Width:        frame.Width,
		Height:       frame.Height,
		Rotation:     frame.Rotation,
		Timestamp:    frame.Timestamp,
		RTPTimestamp: domain.RTPTime(frame.Timestamp),
	}, u, v, true
}

// planesOf reslices an already-planar I420 buffer without copying.
func planesOf(frame *domain.MediaFrame) (domain.PlanarFrame, bool) {
	lumaSize := frame.Width * frame.Height
	chromaSize := lumaSize / 4
	if len(frame.Data) < lumaSize+2*chromaSize {
		return domain.PlanarFrame{}, false
	}
	return domain.PlanarFrame{
		Y:            frame.Data[:lumaSize],
		U:            frame.Data[lumaSize : lumaSize+chromaSize],
		V:            frame.Data[lumaSize+chromaSize : lumaSize+2*chromaSize],
		Width:        frame.Width,
		Height:       frame.Height,
		Rotation:     frame.Rotation,
		Timestamp:    frame.Timestamp,
		RTPTimestamp: domain.RTPTime(frame.Timestamp),
	}, true
}
