package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"arcast/internal/core/domain"
	"arcast/internal/core/ports"
	"arcast/pkg/tracing"
	"arcast/pkg/utils"
)

const (
	eventQueueSize     = 64
	negotiationTimeout = 10 * time.Second
)

type eventKind int

const (
	eventStart eventKind = iota
	eventStop
	eventChangeMode
	eventOffer
	eventCandidate
	eventLocalCandidate
	eventTransportState
	eventSourceFailure
	eventShutdown
)

// event is the single message type flowing through the coordinator queue.
// Only the fields relevant to the kind are set. Transport and source events
// carry the generation of the session that produced them so the loop can
// discard leftovers from a torn-down session.
type event struct {
	kind       eventKind
	mode       domain.StreamMode
	sdp        string
	candidate  domain.IceCandidate
	transport  domain.TransportState
	generation uint64
	source     string
	err        error
	reply      chan error
}

// CoordinatorConfig carries the capture profiles and channel naming the
// coordinator applies when it builds a session.
type CoordinatorConfig struct {
	DefaultMode   domain.StreamMode
	MetadataLabel string
	// VideoProfile drives the camera in the motion modes; ImageProfile is
	// the reduced-rate profile used by the stills mode.
	VideoProfile domain.CaptureProfile
	ImageProfile domain.CaptureProfile
}

// CoordinatorDeps bundles the devices and transport the coordinator drives.
// Encoder may be nil when the camera emits pre-encoded H.264. Metrics may be
// nil; counters are then discarded.
type CoordinatorDeps struct {
	Transport ports.MediaTransport
	Camera    ports.CameraDevice
	Audio     ports.AudioSource
	Encoder   ports.VideoEncoder
	Sampler   *PoseSampler
	VideoRate *FrameRateThrottler
	Metrics   ports.MetricsSink
}

// SessionCoordinator owns the single streaming session. All mutations of
// session state happen on one goroutine fed by an event queue, so no lock
// guards the session fields; public methods post events and wait for the
// loop's reply. At most one peer connection exists at a time: a new offer
// always disposes the previous session before negotiating the next one.
type SessionCoordinator struct {
	log   *zap.SugaredLogger
	cfg   CoordinatorConfig
	store *StateStore
	deps  CoordinatorDeps

	broadcaster ports.SignalingBroadcaster

	events    chan event
	stopped   chan struct{}
	closeOnce sync.Once

	// Owned by the event loop. Never touched from other goroutines.
	mode       domain.StreamMode
	state      domain.SessionState
	generation uint64
	sessionID  string
	link       ports.PeerLink
	video      *videoPipeline
	audio      *audioPipeline
	tracking   *trackingPipeline
}

func NewSessionCoordinator(log *zap.SugaredLogger, cfg CoordinatorConfig, store *StateStore, deps CoordinatorDeps) *SessionCoordinator {
	if deps.Metrics == nil {
		deps.Metrics = nopMetrics{}
	}
	if deps.VideoRate == nil {
		deps.VideoRate = NewFrameRateThrottler(nil)
	}
	c := &SessionCoordinator{
		log:         log,
		cfg:         cfg,
		store:       store,
		deps:        deps,
		broadcaster: nopBroadcaster{},
		events:      make(chan event, eventQueueSize),
		stopped:     make(chan struct{}),
		mode:        cfg.DefaultMode,
		state:       domain.StateIdle,
	}
	store.SetMode(cfg.DefaultMode)
	return c
}

// AttachBroadcaster wires the signaling fan-out. Call it before Run; until
// then outbound answers, candidates and error messages are discarded.
func (c *SessionCoordinator) AttachBroadcaster(b ports.SignalingBroadcaster) {
	if b != nil {
		c.broadcaster = b
	}
}

// Run starts the event loop. Events posted before Run sit in the queue.
func (c *SessionCoordinator) Run() {
	go c.loop()
}

// Shutdown tears down any active session and stops the event loop. Safe to
// call more than once.
func (c *SessionCoordinator) Shutdown(ctx context.Context) error {
	var err error
	c.closeOnce.Do(func() {
		reply := make(chan error, 1)
		select {
		case c.events <- event{kind: eventShutdown, reply: reply}:
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
		select {
		case <-reply:
		case <-ctx.Done():
			err = ctx.Err()
		}
	})
	return err
}

// Start records the desired stream mode. The session itself is built when a
// client submits an offer.
func (c *SessionCoordinator) Start(mode domain.StreamMode) error {
	return c.post(event{kind: eventStart, mode: mode})
}

// Stop disposes the current session, if any, and returns to idle.
func (c *SessionCoordinator) Stop() error {
	return c.post(event{kind: eventStop})
}

// ChangeMode switches the stream mode. While a session is active only the
// sources the new mode adds or removes are rebuilt; the peer connection is
// left alone.
func (c *SessionCoordinator) ChangeMode(mode domain.StreamMode) error {
	return c.post(event{kind: eventChangeMode, mode: mode})
}

// SubmitOffer hands a remote session description to the coordinator and
// blocks until negotiation finishes or fails.
func (c *SessionCoordinator) SubmitOffer(sdp string) error {
	return c.post(event{kind: eventOffer, sdp: sdp})
}

// SubmitCandidate forwards a remote ICE candidate. Candidates that arrive
// while no peer connection exists are counted and discarded.
func (c *SessionCoordinator) SubmitCandidate(cand domain.IceCandidate) error {
	if !c.postAsync(event{kind: eventCandidate, candidate: cand}) {
		c.deps.Metrics.RecordCandidateDropped()
	}
	return nil
}

func (c *SessionCoordinator) post(ev event) error {
	ev.reply = make(chan error, 1)
	select {
	case c.events <- ev:
	case <-c.stopped:
		return domain.ErrSessionClosed
	}
	select {
	case err := <-ev.reply:
		return err
	case <-c.stopped:
		return domain.ErrSessionClosed
	}
}

func (c *SessionCoordinator) postAsync(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.stopped:
	default:
	}
	return false
}

func (c *SessionCoordinator) loop() {
	defer close(c.stopped)
	for ev := range c.events {
		if ev.kind == eventShutdown {
			c.teardownSession()
			if ev.reply != nil {
				ev.reply <- nil
			}
			return
		}
		err := c.dispatch(ev)
		if ev.reply != nil {
			ev.reply <- err
		}
	}
}

func (c *SessionCoordinator) dispatch(ev event) error {
	switch ev.kind {
	case eventStart:
		return c.handleStart(ev.mode)
	case eventStop:
		c.teardownSession()
		return nil
	case eventChangeMode:
		return c.handleChangeMode(ev.mode)
	case eventOffer:
		return c.handleOffer(ev.sdp)
	case eventCandidate:
		return c.handleCandidate(ev.candidate)
	case eventLocalCandidate:
		c.handleLocalCandidate(ev)
		return nil
	case eventTransportState:
		c.handleTransportState(ev)
		return nil
	case eventSourceFailure:
		c.handleSourceFailure(ev)
		return nil
	default:
		return nil
	}
}

func (c *SessionCoordinator) handleStart(mode domain.StreamMode) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	if c.state != domain.StateIdle {
		return domain.ErrSessionBusy
	}
	c.mode = mode
	c.store.SetMode(mode)
	c.log.Infow("stream mode armed", "mode", mode.String())
	return nil
}

func (c *SessionCoordinator) handleChangeMode(mode domain.StreamMode) error {
	if !mode.Valid() {
		return domain.ErrInvalidMode
	}
	if mode == c.mode {
		return nil
	}
	old := c.mode
	c.mode = mode
	c.store.SetMode(mode)
	if c.state != domain.StateActive || c.link == nil {
		// No session to adjust; the mode takes effect on the next offer.
		c.log.Infow("stream mode changed", "from", old.String(), "to", mode.String())
		return nil
	}
	c.log.Infow("adjusting live session", "from", old.String(), "to", mode.String())
	return c.reconcilePipelines(old, mode)
}

// reconcilePipelines disposes the sources the new mode dropped and creates
// the ones it added, leaving shared sources untouched. A video profile
// switch rebuilds the video path even though both modes carry video.
func (c *SessionCoordinator) reconcilePipelines(old, mode domain.StreamMode) error {
	removeVideo := old.HasVideo() && !mode.HasVideo()
	addVideo := mode.HasVideo() && !old.HasVideo()
	if old.HasVideo() && mode.HasVideo() && c.profileFor(old) != c.profileFor(mode) {
		removeVideo, addVideo = true, true
	}

	if old.HasTracking() && !mode.HasTracking() && c.tracking != nil {
		c.tracking.Close()
		c.tracking = nil
	}
	if old.HasAudio() && !mode.HasAudio() && c.audio != nil {
		c.audio.Close()
		c.audio = nil
	}
	if removeVideo && c.video != nil {
		c.video.Close()
		c.video = nil
	}

	var firstErr error
	if addVideo {
		if err := c.buildVideo(c.generation); err != nil {
			c.reportSourceFailure("camera", err)
			firstErr = err
		}
	}
	if mode.HasAudio() && !old.HasAudio() {
		if err := c.buildAudio(); err != nil {
			c.reportSourceFailure("microphone", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if mode.HasTracking() && !old.HasTracking() {
		if err := c.buildTracking(); err != nil {
			c.reportSourceFailure("tracking", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *SessionCoordinator) handleOffer(sdp string) error {
	if c.link != nil {
		// A fresh offer supersedes whatever session exists.
		c.log.Infow("new offer received, disposing current session",
			"generation", c.generation)
		c.teardownSession()
	}

	c.generation++
	gen := c.generation
	c.sessionID = utils.GenerateSessionID()
	c.setState(domain.StateNegotiating)
	c.store.SetGeneration(gen, c.sessionID)
	c.deps.Metrics.RecordNegotiation()
	c.log.Infow("negotiating session",
		"session_id", c.sessionID, "generation", gen, "mode", c.mode.String())

	spanCtx, span := tracing.TraceSession(context.Background(), "negotiate", c.sessionID)
	defer span.End()
	tracing.AddSpanAttributes(spanCtx,
		tracing.ModeKey.String(c.mode.String()),
		tracing.GenerationKey.Int64(int64(gen)))
	start := time.Now()

	link, err := c.deps.Transport.NewPeerLink(c.transportEvents(gen))
	if err != nil {
		c.failSession("transport", err)
		return err
	}
	c.link = link

	// Source failures leave the session running with whatever could be
	// acquired; only negotiation failures kill it.
	if c.mode.HasVideo() {
		if err := c.buildVideo(gen); err != nil {
			c.reportSourceFailure("camera", err)
		}
	}
	if c.mode.HasAudio() {
		if err := c.buildAudio(); err != nil {
			c.reportSourceFailure("microphone", err)
		}
	}
	if c.mode.HasTracking() {
		if err := c.buildTracking(); err != nil {
			c.reportSourceFailure("tracking", err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), negotiationTimeout)
	defer cancel()
	answer, err := link.ApplyRemoteOffer(ctx, sdp)
	if err != nil {
		tracing.RecordError(spanCtx, err)
		c.failSession("negotiation", err)
		return err
	}
	c.broadcaster.BroadcastAnswer(answer)
	c.setState(domain.StateActive)
	tracing.MeasureDuration(spanCtx, start, "session.negotiate")
	c.log.Infow("session active", "session_id", c.sessionID, "generation", gen)
	return nil
}

func (c *SessionCoordinator) handleCandidate(cand domain.IceCandidate) error {
	if c.link == nil {
		c.deps.Metrics.RecordCandidateDropped()
		c.log.Debugw("dropping remote candidate, no peer connection")
		return nil
	}
	if err := c.link.AddRemoteCandidate(cand); err != nil {
		c.log.Warnw("failed to add remote candidate", "error", err)
	}
	return nil
}

func (c *SessionCoordinator) handleLocalCandidate(ev event) {
	if ev.generation != c.generation || c.link == nil {
		c.log.Debugw("dropping local candidate from stale session",
			"generation", ev.generation)
		return
	}
	c.broadcaster.BroadcastCandidate(ev.candidate)
}

func (c *SessionCoordinator) handleTransportState(ev event) {
	if ev.generation != c.generation || c.link == nil {
		c.log.Debugw("ignoring transport state from stale session",
			"state", ev.transport.String(), "generation", ev.generation)
		return
	}
	switch ev.transport {
	case domain.TransportConnected:
		c.log.Infow("peer transport connected", "generation", ev.generation)
	case domain.TransportDisconnected:
		// Disconnected can self-heal; only Failed is terminal.
		c.log.Warnw("peer transport disconnected, waiting for recovery",
			"generation", ev.generation)
	case domain.TransportFailed:
		c.failSession("transport", errors.New("peer transport failed"))
	default:
		c.log.Debugw("peer transport state", "state", ev.transport.String())
	}
}

func (c *SessionCoordinator) handleSourceFailure(ev event) {
	if ev.generation != c.generation {
		return
	}
	c.reportSourceFailure(ev.source, ev.err)
	// The dead source's pipeline is already broken; drop our half so its
	// resources are returned. Other sources keep streaming.
	if ev.source == "camera" && c.video != nil {
		c.video.Close()
		c.video = nil
	}
}

func (c *SessionCoordinator) transportEvents(generation uint64) ports.TransportEvents {
	return ports.TransportEvents{
		LocalCandidate: func(cand domain.IceCandidate) {
			if !c.postAsync(event{kind: eventLocalCandidate, candidate: cand, generation: generation}) {
				c.log.Warnw("event queue saturated, dropping local candidate")
			}
		},
		StateChange: func(state domain.TransportState) {
			if !c.postAsync(event{kind: eventTransportState, transport: state, generation: generation}) {
				c.log.Warnw("event queue saturated, dropping transport state",
					"state", state.String())
			}
		},
	}
}

func (c *SessionCoordinator) buildVideo(gen uint64) error {
	profile := c.profileFor(c.mode)
	source := NewFrameSource(c.log, c.deps.Camera, c.deps.VideoRate,
		c.deps.Metrics.RecordVideoFrameDropped,
		func(err error) {
			if !c.postAsync(event{kind: eventSourceFailure, source: "camera", err: err, generation: gen}) {
				c.log.Warnw("event queue saturated, dropping camera failure", "error", err)
			}
		})
	if err := source.Start(context.Background(), profile); err != nil {
		return err
	}

	var keyframes ports.KeyframeRequester
	if c.deps.Encoder != nil {
		keyframes = c.deps.Encoder
	} else if kf, ok := c.deps.Camera.(ports.KeyframeRequester); ok {
		keyframes = kf
	}
	sink, err := c.link.AddVideoTrack(c.deps.Encoder, keyframes)
	if err != nil {
		source.Stop()
		return err
	}

	adapter := newVideoAdapter(c.log, source.Subscribe(), sink, c.deps.Metrics)
	adapter.run()
	c.video = &videoPipeline{source: source, sink: sink, adapter: adapter, log: c.log}
	return nil
}

func (c *SessionCoordinator) buildAudio() error {
	chunks, err := c.deps.Audio.Start(context.Background())
	if err != nil {
		return err
	}
	pump, err := c.link.AddAudioTrack(chunks)
	if err != nil {
		if stopErr := c.deps.Audio.Stop(); stopErr != nil {
			c.log.Warnw("failed to stop audio source", "error", stopErr)
		}
		return err
	}
	c.audio = &audioPipeline{source: c.deps.Audio, pump: pump, log: c.log}
	return nil
}

func (c *SessionCoordinator) buildTracking() error {
	sampler := c.deps.Sampler
	if err := sampler.CreateSession(context.Background()); err != nil {
		return err
	}
	if err := sampler.Resume(); err != nil {
		return err
	}
	channel, err := c.link.OpenMetadataChannel(c.cfg.MetadataLabel)
	if err != nil {
		if pauseErr := sampler.Pause(); pauseErr != nil {
			c.log.Warnw("failed to pause tracking", "error", pauseErr)
		}
		return err
	}
	adapter := newMetadataAdapter(c.log, sampler.Subscribe(), channel, c.deps.Metrics)
	adapter.run()
	c.tracking = &trackingPipeline{sampler: sampler, channel: channel, adapter: adapter, log: c.log}
	return nil
}

// teardownSession returns the coordinator to idle, releasing everything the
// session acquired in the reverse of the order it was created: adapters are
// cancelled and awaited first, then channels and tracks, then the peer
// connection, then the capture devices held inside each pipeline.
func (c *SessionCoordinator) teardownSession() {
	if c.link == nil && c.state == domain.StateIdle {
		return
	}
	c.setState(domain.StateClosing)
	if c.tracking != nil {
		c.tracking.Close()
		c.tracking = nil
	}
	if c.audio != nil {
		c.audio.Close()
		c.audio = nil
	}
	if c.video != nil {
		c.video.Close()
		c.video = nil
	}
	if c.link != nil {
		if err := c.link.Close(); err != nil {
			c.log.Warnw("error closing peer connection", "error", err)
		}
		c.link = nil
	}
	c.store.SetVideoRate(0)
	c.store.SetTrackingRate(0)
	c.setState(domain.StateIdle)
	c.log.Infow("session disposed", "generation", c.generation)
}

func (c *SessionCoordinator) setState(state domain.SessionState) {
	c.state = state
	c.store.SetSessionState(state)
	c.deps.Metrics.RecordSessionState(state)
}

// reportSourceFailure surfaces a per-source acquisition failure without
// ending the session.
func (c *SessionCoordinator) reportSourceFailure(source string, err error) {
	msg := domain.UserMessage(err)
	c.log.Errorw("source unavailable", "source", source, "error", err)
	c.store.SetError(msg)
	c.broadcaster.BroadcastError(msg)
	c.deps.Metrics.RecordSessionFailure(source)
}

// failSession records a session-fatal error and disposes the session.
func (c *SessionCoordinator) failSession(reason string, err error) {
	msg := domain.UserMessage(err)
	c.log.Errorw("session failed", "reason", reason, "error", err)
	c.store.SetError(msg)
	c.broadcaster.BroadcastError(msg)
	c.deps.Metrics.RecordSessionFailure(reason)
	c.teardownSession()
}

func (c *SessionCoordinator) profileFor(mode domain.StreamMode) domain.CaptureProfile {
	if mode == domain.ModeImageOnly {
		return c.cfg.ImageProfile
	}
	return c.cfg.VideoProfile
}

// videoPipeline ties one session's camera, conversion loop and transport
// track together. Close releases them in reverse order of creation and is
// idempotent.
type videoPipeline struct {
	once    sync.Once
	source  *FrameSource
	sink    ports.VideoSink
	adapter *videoAdapter
	log     *zap.SugaredLogger
}

func (p *videoPipeline) Close() {
	p.once.Do(func() {
		p.adapter.stop()
		if err := p.sink.Close(); err != nil {
			p.log.Warnw("error closing video sink", "error", err)
		}
		p.source.Stop()
	})
}

type audioPipeline struct {
	once   sync.Once
	source ports.AudioSource
	pump   ports.AudioPump
	log    *zap.SugaredLogger
}

func (p *audioPipeline) Close() {
	p.once.Do(func() {
		if err := p.pump.Close(); err != nil {
			p.log.Warnw("error closing audio pump", "error", err)
		}
		if err := p.source.Stop(); err != nil {
			p.log.Warnw("error stopping audio source", "error", err)
		}
	})
}

type trackingPipeline struct {
	once    sync.Once
	sampler *PoseSampler
	channel ports.MetadataChannel
	adapter *metadataAdapter
	log     *zap.SugaredLogger
}

func (p *trackingPipeline) Close() {
	p.once.Do(func() {
		p.adapter.stop()
		if err := p.channel.Close(); err != nil {
			p.log.Warnw("error closing metadata channel", "error", err)
		}
		if err := p.sampler.Close(); err != nil {
			p.log.Warnw("error releasing tracking session", "error", err)
		}
	})
}

type nopMetrics struct{}

func (nopMetrics) RecordSessionState(domain.SessionState) {}
func (nopMetrics) RecordNegotiation()                     {}
func (nopMetrics) RecordSessionFailure(string)            {}
func (nopMetrics) RecordVideoFrameDropped()               {}
func (nopMetrics) RecordTrackingSampleDropped()           {}
func (nopMetrics) RecordMetadataMessageDropped()          {}
func (nopMetrics) RecordCandidateDropped()                {}
func (nopMetrics) RecordConnectedClients(int)             {}

type nopBroadcaster struct{}

func (nopBroadcaster) BroadcastAnswer(string)                 {}
func (nopBroadcaster) BroadcastCandidate(domain.IceCandidate) {}
func (nopBroadcaster) BroadcastError(string)                  {}
