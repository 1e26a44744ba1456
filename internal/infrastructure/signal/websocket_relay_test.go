package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/services"
)

type fakeController struct {
	mu         sync.Mutex
	offers     []string
	candidates []domain.IceCandidate
	offerErr   error
}

func (c *fakeController) Start(domain.StreamMode) error      { return nil }
func (c *fakeController) Stop() error                        { return nil }
func (c *fakeController) ChangeMode(domain.StreamMode) error { return nil }

func (c *fakeController) SubmitOffer(sdp string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offers = append(c.offers, sdp)
	return c.offerErr
}

func (c *fakeController) SubmitCandidate(cand domain.IceCandidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *fakeController) offerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.offers)
}

func (c *fakeController) candidateCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.candidates)
}

type relayFixture struct {
	relay      *WebSocketRelay
	controller *fakeController
	store      *services.StateStore
	server     *httptest.Server
}

func newRelayFixture(t *testing.T, cfg RelayConfig) *relayFixture {
	t.Helper()
	controller := &fakeController{}
	store := services.NewStateStore()
	relay := NewWebSocketRelay(cfg, controller, store, nil, zap.NewNop().Sugar())

	server := httptest.NewServer(http.HandlerFunc(relay.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		store.Close()
	})
	return &relayFixture{relay: relay, controller: controller, store: store, server: server}
}

func (f *relayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestRelay_RoutesOffer(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "offer", "sdp": "v=0..."}))

	require.Eventually(t, func() bool { return f.controller.offerCount() == 1 }, time.Second, 5*time.Millisecond)
	f.controller.mu.Lock()
	assert.Equal(t, "v=0...", f.controller.offers[0])
	f.controller.mu.Unlock()
}

func TestRelay_RoutesCandidate(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"sdpMid":        "0",
		"sdpMLineIndex": 0,
		"candidate":     "candidate:1 1 udp 2130706431 192.168.1.10 50000 typ host",
	}))

	require.Eventually(t, func() bool { return f.controller.candidateCount() == 1 }, time.Second, 5*time.Millisecond)
	f.controller.mu.Lock()
	cand := f.controller.candidates[0]
	f.controller.mu.Unlock()
	require.NotNil(t, cand.SDPMid)
	assert.Equal(t, "0", *cand.SDPMid)
}

func TestRelay_UnknownMessagesIgnored(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "offer", "sdp": "after"}))

	require.Eventually(t, func() bool { return f.controller.offerCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, f.controller.candidateCount())
}

func TestRelay_ControllerErrorSentToClient(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})
	f.controller.offerErr = domain.ErrSessionBusy
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "offer", "sdp": "v=0..."}))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var msg map[string]string
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, domain.UserMessage(domain.ErrSessionBusy), msg["message"])
}

func TestRelay_BroadcastReachesAllClients(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})
	conn1 := f.dial(t)
	conn2 := f.dial(t)

	require.Eventually(t, func() bool { return f.relay.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	f.relay.BroadcastAnswer("answer-sdp")

	for _, conn := range []*websocket.Conn{conn1, conn2} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		var msg map[string]string
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, "answer", msg["type"])
		assert.Equal(t, "answer-sdp", msg["sdp"])
	}
}

func TestRelay_BroadcastCandidateWireShape(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})
	conn := f.dial(t)
	require.Eventually(t, func() bool { return f.relay.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	mid := "0"
	idx := uint16(0)
	f.relay.BroadcastCandidate(domain.IceCandidate{SDPMid: &mid, SDPMLineIndex: &idx, Candidate: "candidate:1"})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var wire map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &wire))
	assert.Contains(t, wire, "sdpMid")
	assert.Contains(t, wire, "sdpMLineIndex")
	assert.Contains(t, wire, "candidate")
	assert.NotContains(t, wire, "type", "candidates have no envelope")
}

func TestRelay_ClientCountTracksConnections(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{})

	conn := f.dial(t)
	require.Eventually(t, func() bool {
		return f.store.Snapshot().ConnectedClients == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return f.store.Snapshot().ConnectedClients == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRelay_RateLimitDropsExcessMessages(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{MessagesPerSecond: 1, Burst: 2})
	conn := f.dial(t)

	for i := 0; i < 10; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "offer", "sdp": "flood"}))
	}

	// only the burst makes it through
	require.Eventually(t, func() bool { return f.controller.offerCount() >= 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, f.controller.offerCount(), 3)
}

func TestRelay_OversizeMessageDisconnects(t *testing.T) {
	f := newRelayFixture(t, RelayConfig{MaxMessageBytes: 64})
	conn := f.dial(t)

	big := strings.Repeat("x", 1024)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "offer", "sdp": big}))

	require.Eventually(t, func() bool { return f.relay.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	assert.Zero(t, f.controller.offerCount())
}
