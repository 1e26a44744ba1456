package webrtc

import (
	"sync"
	"time"

	"github.com/pion/webrtc/v3/pkg/media"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
)

const defaultChunkDuration = 20 * time.Millisecond

// sampleWriter is the slice of TrackLocalStaticSample the pump needs.
type sampleWriter interface {
	WriteSample(s media.Sample) error
}

// audioPump copies encoded Opus chunks from the capture stream onto the
// audio track. The coordinator never touches the chunks; the pump is the
// whole audio data path between device and transport.
type audioPump struct {
	track  sampleWriter
	chunks <-chan domain.AudioChunk
	logger *zap.SugaredLogger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func newAudioPump(track sampleWriter, chunks <-chan domain.AudioChunk, logger *zap.SugaredLogger) *audioPump {
	return &audioPump{
		track:  track,
		chunks: chunks,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *audioPump) run() {
	go p.loop()
}

func (p *audioPump) loop() {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		case chunk, ok := <-p.chunks:
			if !ok {
				p.logger.Debugw("audio chunk stream closed")
				return
			}
			duration := chunk.Duration
			if duration <= 0 {
				duration = defaultChunkDuration
			}
			if err := p.track.WriteSample(media.Sample{Data: chunk.Data, Duration: duration}); err != nil {
				p.logger.Warnw("failed to write audio sample", "error", err)
			}
		}
	}
}

// Close stops the copy loop and waits for it to exit. Idempotent.
func (p *audioPump) Close() error {
	p.once.Do(func() {
		close(p.stop)
	})
	<-p.done
	return nil
}
