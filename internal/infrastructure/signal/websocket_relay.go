package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
	"arcast/internal/core/services"
	"arcast/pkg/tracing"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // LAN service, no origin policy
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// RelayConfig tunes the per-connection behavior of the relay.
type RelayConfig struct {
	PingInterval      time.Duration
	PongTimeout       time.Duration
	WriteTimeout      time.Duration
	MessagesPerSecond float64
	Burst             int
	MaxMessageBytes   int64
}

// WebSocketRelay carries signaling between browser clients and the session
// coordinator. Inbound messages are routed by shape: offers and candidates
// go to the coordinator, anything else is logged and ignored. Outbound
// answers, candidates and errors broadcast to every connected client over a
// snapshot of the connection set, so a client disconnecting mid-broadcast
// never invalidates the iteration.
type WebSocketRelay struct {
	cfg        RelayConfig
	controller ports.StreamController
	store      *services.StateStore
	metrics    ports.MetricsSink
	logger     *zap.SugaredLogger

	connections map[domain.ClientID]*relayClient
	mu          sync.RWMutex
}

// relayClient is one connected signaling socket. writeMu serializes writes
// between the connection's own loop and broadcasts.
type relayClient struct {
	conn    *websocket.Conn
	limiter *rate.Limiter
	writeMu sync.Mutex
}

func NewWebSocketRelay(cfg RelayConfig, controller ports.StreamController, store *services.StateStore, metrics ports.MetricsSink, logger *zap.SugaredLogger) *WebSocketRelay {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 40
	}
	return &WebSocketRelay{
		cfg:         cfg,
		controller:  controller,
		store:       store,
		metrics:     metrics,
		logger:      logger,
		connections: make(map[domain.ClientID]*relayClient),
	}
}

// ClientCount returns how many signaling clients are connected.
func (s *WebSocketRelay) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *WebSocketRelay) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	clientID := domain.ClientID(uuid.NewString())
	client := &relayClient{
		conn:    conn,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.MessagesPerSecond), s.cfg.Burst),
	}

	s.mu.Lock()
	s.connections[clientID] = client
	count := len(s.connections)
	s.mu.Unlock()
	s.publishClientCount(count)

	s.logger.Infow("signaling client connected", "client_id", clientID, "clients", count)

	if s.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.cfg.MaxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.cfg.PingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan []byte, 10)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
			messageChan <- raw
		}
	}()

	for {
		select {
		case raw := <-messageChan:
			if !client.limiter.Allow() {
				s.logger.Warnw("signaling client over rate limit, dropping message",
					"client_id", clientID)
				continue
			}
			if err := s.handleMessage(clientID, raw); err != nil {
				s.logger.Infow("error handling signaling message",
					"client_id", clientID, "error", err)
				s.send(client, domain.ErrorMessage{Message: domain.UserMessage(err)})
			}

		case <-pingTicker.C:
			client.writeMu.Lock()
			conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			client.writeMu.Unlock()
			if err != nil {
				s.logger.Infow("error sending ping", "client_id", clientID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading signaling message", "client_id", clientID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.mu.Lock()
	delete(s.connections, clientID)
	count = len(s.connections)
	s.mu.Unlock()
	s.publishClientCount(count)

	s.logger.Infow("signaling client disconnected", "client_id", clientID, "clients", count)
}

func (s *WebSocketRelay) handleMessage(clientID domain.ClientID, raw []byte) error {
	switch domain.ClassifyInbound(raw) {
	case domain.InboundOffer:
		var offer domain.OfferMessage
		if err := json.Unmarshal(raw, &offer); err != nil {
			return err
		}
		ctx, span := tracing.TraceSignalingMessage(context.Background(), "offer", string(clientID))
		defer span.End()
		s.logger.Infow("offer received", "client_id", clientID, "sdp_length", len(offer.SDP))
		if err := s.controller.SubmitOffer(offer.SDP); err != nil {
			tracing.RecordError(ctx, err)
			return err
		}
		return nil

	case domain.InboundCandidate:
		var cand domain.IceCandidate
		if err := json.Unmarshal(raw, &cand); err != nil {
			return err
		}
		ctx, span := tracing.TraceSignalingMessage(context.Background(), "candidate", string(clientID))
		defer span.End()
		s.logger.Debugw("remote candidate received", "client_id", clientID)
		if err := s.controller.SubmitCandidate(cand); err != nil {
			tracing.RecordError(ctx, err)
			return err
		}
		return nil

	default:
		s.logger.Debugw("ignoring unrecognized signaling message",
			"client_id", clientID, "length", len(raw))
		return nil
	}
}

// BroadcastAnswer sends the local answer to every connected client.
func (s *WebSocketRelay) BroadcastAnswer(sdp string) {
	s.broadcast(domain.NewAnswerMessage(sdp))
}

// BroadcastCandidate sends a local ICE candidate to every connected client.
func (s *WebSocketRelay) BroadcastCandidate(cand domain.IceCandidate) {
	s.broadcast(cand)
}

// BroadcastError sends a user-facing error message to every connected
// client.
func (s *WebSocketRelay) BroadcastError(message string) {
	s.broadcast(domain.ErrorMessage{Message: message})
}

func (s *WebSocketRelay) broadcast(message interface{}) {
	s.mu.RLock()
	clients := make([]*relayClient, 0, len(s.connections))
	for _, c := range s.connections {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		s.send(c, message)
	}
}

func (s *WebSocketRelay) send(c *relayClient, message interface{}) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(message); err != nil {
		s.logger.Warnw("failed to write signaling message", "error", err)
	}
}

func (s *WebSocketRelay) publishClientCount(count int) {
	s.store.SetConnectedClients(count)
	if s.metrics != nil {
		s.metrics.RecordConnectedClients(count)
	}
}
