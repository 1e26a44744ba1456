package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"arcast/pkg/retry"
)

// MDNSServer is the running mDNS registration. The interface exists so
// tests can inject a fake server.
type MDNSServer interface {
	Shutdown()
}

// ServerFactory creates MDNSServer instances.
type ServerFactory interface {
	Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error)
}

type zeroconfFactory struct{}

func (zeroconfFactory) Register(instance, service, domain string, port int, txt []string, ifaces []net.Interface) (MDNSServer, error) {
	return zeroconf.Register(instance, service, domain, port, txt, ifaces)
}

// AdvertiserConfig names the service the streamer announces on the local
// network so clients can discover host and port without manual entry.
type AdvertiserConfig struct {
	Instance string // instance name, e.g. "arcast"
	Service  string // service type, e.g. "_arcast._tcp"
	Domain   string // almost always "local."
	Port     int

	// TXT metadata for clients: signaling path and default stream mode.
	SignalingPath string
	DefaultMode   string

	// Interfaces limits announcement to specific NICs; nil means all.
	Interfaces []net.Interface

	// Factory is replaced in tests; nil selects zeroconf.
	Factory ServerFactory
}

// Advertiser owns one mDNS service registration.
type Advertiser struct {
	cfg     AdvertiserConfig
	factory ServerFactory
	logger  *zap.SugaredLogger

	mu     sync.Mutex
	server MDNSServer
}

func NewAdvertiser(cfg AdvertiserConfig, logger *zap.SugaredLogger) *Advertiser {
	factory := cfg.Factory
	if factory == nil {
		factory = zeroconfFactory{}
	}
	return &Advertiser{
		cfg:     cfg,
		factory: factory,
		logger:  logger,
	}
}

// Start registers the service, retrying transient failures with backoff.
// Starting an already-advertising Advertiser is a no-op.
func (a *Advertiser) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		return nil
	}

	txt := []string{
		"path=" + a.cfg.SignalingPath,
		"mode=" + a.cfg.DefaultMode,
	}

	var server MDNSServer
	err := retry.Retry(ctx, retry.DefaultConfig(), func() error {
		var regErr error
		server, regErr = a.factory.Register(
			a.cfg.Instance, a.cfg.Service, a.cfg.Domain, a.cfg.Port, txt, a.cfg.Interfaces)
		return regErr
	})
	if err != nil {
		return fmt.Errorf("mDNS registration failed: %w", err)
	}

	a.server = server
	a.logger.Infow("service advertised",
		"instance", a.cfg.Instance, "service", a.cfg.Service, "port", a.cfg.Port)
	return nil
}

// Shutdown withdraws the registration. Safe without a prior Start.
func (a *Advertiser) Shutdown() {
	a.mu.Lock()
	server := a.server
	a.server = nil
	a.mu.Unlock()

	if server != nil {
		server.Shutdown()
		a.logger.Infow("service advertisement withdrawn", "instance", a.cfg.Instance)
	}
}
