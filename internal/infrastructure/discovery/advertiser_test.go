package discovery

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct {
	mu        sync.Mutex
	shutdowns int
}

func (s *fakeServer) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdowns++
}

type fakeFactory struct {
	mu       sync.Mutex
	failures int // registrations to fail before succeeding
	attempts int
	server   *fakeServer
	txt      []string
	port     int
}

func (f *fakeFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("network unavailable")
	}
	f.server = &fakeServer{}
	f.txt = txt
	f.port = port
	return f.server, nil
}

func testConfig(factory ServerFactory) AdvertiserConfig {
	return AdvertiserConfig{
		Instance:      "arcast",
		Service:       "_arcast._tcp",
		Domain:        "local.",
		Port:          8080,
		SignalingPath: "/ws",
		DefaultMode:   "video_audio_tracking",
		Factory:       factory,
	}
}

func TestAdvertiser_RegistersWithMetadata(t *testing.T) {
	factory := &fakeFactory{}
	adv := NewAdvertiser(testConfig(factory), zap.NewNop().Sugar())

	require.NoError(t, adv.Start(context.Background()))
	defer adv.Shutdown()

	assert.Equal(t, 8080, factory.port)
	assert.Contains(t, factory.txt, "path=/ws")
	assert.Contains(t, factory.txt, "mode=video_audio_tracking")
}

func TestAdvertiser_StartIsIdempotent(t *testing.T) {
	factory := &fakeFactory{}
	adv := NewAdvertiser(testConfig(factory), zap.NewNop().Sugar())

	require.NoError(t, adv.Start(context.Background()))
	require.NoError(t, adv.Start(context.Background()))
	defer adv.Shutdown()

	assert.Equal(t, 1, factory.attempts)
}

func TestAdvertiser_RetriesTransientFailures(t *testing.T) {
	factory := &fakeFactory{failures: 2}
	adv := NewAdvertiser(testConfig(factory), zap.NewNop().Sugar())

	require.NoError(t, adv.Start(context.Background()))
	defer adv.Shutdown()

	assert.Equal(t, 3, factory.attempts)
}

func TestAdvertiser_GivesUpEventually(t *testing.T) {
	factory := &fakeFactory{failures: 100}
	adv := NewAdvertiser(testConfig(factory), zap.NewNop().Sugar())

	err := adv.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mDNS registration failed")
}

func TestAdvertiser_ShutdownWithdraws(t *testing.T) {
	factory := &fakeFactory{}
	adv := NewAdvertiser(testConfig(factory), zap.NewNop().Sugar())

	require.NoError(t, adv.Start(context.Background()))
	adv.Shutdown()
	adv.Shutdown() // safe to repeat

	assert.Equal(t, 1, factory.server.shutdowns)

	// a fresh Start re-registers
	require.NoError(t, adv.Start(context.Background()))
	assert.Equal(t, 2, factory.attempts)
	adv.Shutdown()
}

func TestAdvertiser_ShutdownWithoutStart(t *testing.T) {
	adv := NewAdvertiser(testConfig(&fakeFactory{}), zap.NewNop().Sugar())
	adv.Shutdown()
}
