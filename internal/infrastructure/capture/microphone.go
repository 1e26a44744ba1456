package capture

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
)

const chunkDuration = 20 * time.Millisecond

// opusSilence is a complete Opus frame decoding to silence, the same
// padding frame browsers emit during discontinuous transmission.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// SilenceMicrophone is the in-tree microphone driver: a steady 20 ms
// cadence of Opus silence frames. It stands in for platform audio capture
// so the audio track and its pump can be exercised end to end.
type SilenceMicrophone struct {
	logger *zap.SugaredLogger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewSilenceMicrophone(logger *zap.SugaredLogger) *SilenceMicrophone {
	return &SilenceMicrophone{logger: logger}
}

// Start begins emitting chunks. Starting a running microphone fails with
// ErrCameraBusy's audio equivalent: the capture device is single-owner.
func (m *SilenceMicrophone) Start(ctx context.Context) (<-chan domain.AudioChunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stop != nil {
		return nil, domain.ErrSessionBusy
	}

	out := make(chan domain.AudioChunk, 4)
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.logger.Infow("microphone capture started")

	go m.emit(out, m.stop, m.done)
	return out, nil
}

// Stop halts emission and closes the chunk stream. No-op when idle.
func (m *SilenceMicrophone) Stop() error {
	m.mu.Lock()
	stop := m.stop
	done := m.done
	m.stop = nil
	m.done = nil
	m.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	m.logger.Infow("microphone capture stopped")
	return nil
}

func (m *SilenceMicrophone) emit(out chan<- domain.AudioChunk, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer close(out)

	ticker := time.NewTicker(chunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		chunk := domain.AudioChunk{Data: opusSilence, Duration: chunkDuration}
		select {
		case out <- chunk:
		default:
			// the pump fell behind; skip this chunk rather than block
		}
	}
}
