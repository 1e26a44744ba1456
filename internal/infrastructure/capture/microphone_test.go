package capture

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
)

func TestSilenceMicrophone_EmitsOpusSilence(t *testing.T) {
	mic := NewSilenceMicrophone(zap.NewNop().Sugar())
	chunks, err := mic.Start(context.Background())
	require.NoError(t, err)
	defer mic.Stop()

	select {
	case chunk := <-chunks:
		assert.Equal(t, opusSilence, chunk.Data)
		assert.Equal(t, chunkDuration, chunk.Duration)
	case <-time.After(time.Second):
		t.Fatal("no audio chunk emitted")
	}
}

func TestSilenceMicrophone_SingleOwner(t *testing.T) {
	mic := NewSilenceMicrophone(zap.NewNop().Sugar())
	_, err := mic.Start(context.Background())
	require.NoError(t, err)

	_, err = mic.Start(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionBusy)

	require.NoError(t, mic.Stop())

	// stopped microphone can be restarted
	_, err = mic.Start(context.Background())
	require.NoError(t, err)
	require.NoError(t, mic.Stop())
}

func TestSilenceMicrophone_StopClosesStream(t *testing.T) {
	mic := NewSilenceMicrophone(zap.NewNop().Sugar())
	chunks, err := mic.Start(context.Background())
	require.NoError(t, err)

	require.NoError(t, mic.Stop())
	require.NoError(t, mic.Stop(), "stop is idempotent")

	// the stream drains and closes
	deadline := time.After(time.Second)
	for {
		select {
		case _, open := <-chunks:
			if !open {
				return
			}
		case <-deadline:
			t.Fatal("chunk stream never closed")
		}
	}
}
