package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"arcast/internal/core/domain"
	"arcast/internal/core/services"
	httphandlers "arcast/internal/handlers/http"
	"arcast/internal/infrastructure/capture"
	"arcast/internal/infrastructure/codec"
	"arcast/internal/infrastructure/discovery"
	"arcast/internal/infrastructure/middleware"
	"arcast/internal/infrastructure/monitoring"
	signaling "arcast/internal/infrastructure/signal"
	webrtcinfra "arcast/internal/infrastructure/webrtc"
	"arcast/pkg/config"
	"arcast/pkg/logger"
	"arcast/pkg/tracing"
)

func main() {
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"config.yaml",
	}
	if path := os.Getenv("ARCAST_CONFIG"); path != "" {
		configPaths = append([]string{path}, configPaths...)
	}

	var cfg *config.Config
	var err error
	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracer, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "arcast",
		JaegerURL:   cfg.Tracing.JaegerEndpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	collector := monitoring.NewPrometheusCollector()
	store := services.NewStateStore()

	defaultMode, err := domain.ParseStreamMode(cfg.Stream.DefaultMode)
	if err != nil {
		log.Fatalw("invalid default stream mode", "mode", cfg.Stream.DefaultMode, "error", err)
	}

	// Synthetic device set: test-pattern camera emitting pre-encoded H.264,
	// Opus silence microphone, scripted orbit tracking engine. Production
	// capture drivers implement the same ports out of tree.
	camera := capture.NewTestPatternCamera(domain.PixelFormatH264, domain.Rotation0, log)
	microphone := capture.NewSilenceMicrophone(log)
	trackingEngine := capture.NewOrbitTrackingEngine(log)
	encoder := codec.NewPassthrough(camera)

	videoRate := services.NewFrameRateThrottler(func(rate float64) {
		store.SetVideoRate(rate)
		collector.RecordVideoRate(rate)
	})
	trackingRate := services.NewFrameRateThrottler(func(rate float64) {
		store.SetTrackingRate(rate)
		collector.RecordTrackingRate(rate)
	})

	sampler := services.NewPoseSampler(log, trackingEngine, store, trackingRate, cfg.Tracking.PollInterval)

	engineCfg := webrtcinfra.Config{ICEServers: iceServers(cfg)}
	engineCfg.PortRange.Min = cfg.WebRTC.PortRange.Min
	engineCfg.PortRange.Max = cfg.WebRTC.PortRange.Max
	engine, err := webrtcinfra.NewEngine(engineCfg, collector, log)
	if err != nil {
		log.Fatalw("failed to build transport engine", "error", err)
	}

	coordinatorCfg := services.CoordinatorConfig{
		DefaultMode:   defaultMode,
		MetadataLabel: cfg.Stream.MetadataLabel,
		VideoProfile: domain.CaptureProfile{
			Width:     cfg.Capture.Width,
			Height:    cfg.Capture.Height,
			FrameRate: cfg.Capture.FrameRate,
		},
		// Stills mode reuses the configured resolution at a reduced rate.
		ImageProfile: domain.CaptureProfile{
			Width:     cfg.Capture.Width,
			Height:    cfg.Capture.Height,
			FrameRate: 1,
		},
	}
	coordinator := services.NewSessionCoordinator(log, coordinatorCfg, store, services.CoordinatorDeps{
		Transport: engine,
		Camera:    camera,
		Audio:     microphone,
		Encoder:   encoder,
		Sampler:   sampler,
		VideoRate: videoRate,
		Metrics:   collector,
	})

	relay := signaling.NewWebSocketRelay(signaling.RelayConfig{
		PingInterval:      cfg.Signaling.PingInterval,
		PongTimeout:       cfg.Signaling.PongTimeout,
		MessagesPerSecond: cfg.Signaling.MessagesPerSecond,
		Burst:             cfg.Signaling.Burst,
		MaxMessageBytes:   cfg.Signaling.MaxMessageBytes,
	}, coordinator, store, collector, log)

	coordinator.AttachBroadcaster(relay)
	coordinator.Run()

	health := monitoring.NewHealthChecker()
	health.AddCheck("session", func(ctx context.Context) error {
		_ = store.Snapshot()
		return nil
	}, 0)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	streamHandler := httphandlers.NewStreamHandler(coordinator, store, health, log)
	streamHandler.SetupRoutes(router)

	router.GET(cfg.Signaling.Path, gin.WrapF(relay.HandleWebSocket))

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	advertiser := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Instance:      cfg.Discovery.Instance,
		Service:       cfg.Discovery.Service,
		Domain:        cfg.Discovery.Domain,
		Port:          listenPort(cfg.Server.Address),
		SignalingPath: cfg.Signaling.Path,
		DefaultMode:   cfg.Stream.DefaultMode,
	}, log)
	if cfg.Discovery.Enabled {
		if err := advertiser.Start(context.Background()); err != nil {
			log.Warnw("service discovery unavailable", "error", err)
		}
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("arcast listening", "address", cfg.Server.Address, "mode", defaultMode.String())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("shutdown signal received", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		srv.Close()
	}

	advertiser.Shutdown()

	if err := coordinator.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error shutting down session coordinator", "error", err)
	}
	if err := sampler.Close(); err != nil {
		log.Errorw("error releasing tracking engine", "error", err)
	}
	store.Close()

	if err := tracer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("error shutting down tracer", "error", err)
	}

	log.Info("arcast stopped")
}

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	for _, s := range cfg.WebRTC.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

// listenPort extracts the TCP port from a listen address like ":8080".
func listenPort(address string) int {
	idx := strings.LastIndex(address, ":")
	if idx < 0 {
		return 8080
	}
	port, err := strconv.Atoi(address[idx+1:])
	if err != nil {
		return 8080
	}
	return port
}
