// Package control implements the Control Plane: the six dedicated
// publish/subscribe channels (unit, application, network, device,
// device-route, network-route) every broker process subscribes to and
// publishes its own mutations on, reconciling routing caches and the
// manager lifecycle from what it receives. Built on a Watermill event bus,
// generalized from an open, application-defined event taxonomy to the
// broker's fixed six channels and their cache-invalidation/
// manager-lifecycle receiver policy.
package control

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/config"
	"github.com/sylvia-iot/broker-core/internal/logger"
	"github.com/sylvia-iot/broker-core/internal/mq"
)

const (
	chanUnit         = "unit"
	chanApplication  = "application"
	chanNetwork      = "network"
	chanDevice       = "device"
	chanDeviceRoute  = "device-route"
	chanNetworkRoute = "network-route"
)

// Plane owns the wire channels, the in-process bus, and the dispatcher that
// together implement one process's participation in the control plane.
type Plane struct {
	bus        *bus
	dispatcher *Dispatcher
	channels   map[string]*channel
}

// New constructs a Plane. cfg names each channel's broker endpoint;
// defaultPrefetch applies to any channel that leaves Prefetch unset. pool is
// shared with the network/application managers so control traffic to the
// same broker reuses a pooled connection. mgrs may be nil for a process that
// only needs cache invalidation.
func New(cfg config.MQChannels, defaultPrefetch int, pool *mq.Pool, rc *cache.Routing, mgrs ManagerLifecycle) *Plane {
	b := newBus()
	d := NewDispatcher(rc, mgrs)

	p := &Plane{bus: b, dispatcher: d, channels: make(map[string]*channel, 6)}
	p.addChannel(chanUnit, cfg.Unit, defaultPrefetch, pool, d.Unit)
	p.addChannel(chanApplication, cfg.Application, defaultPrefetch, pool, d.Application)
	p.addChannel(chanNetwork, cfg.Network, defaultPrefetch, pool, d.Network)
	p.addChannel(chanDevice, cfg.Device, defaultPrefetch, pool, d.Device)
	p.addChannel(chanDeviceRoute, cfg.DeviceRoute, defaultPrefetch, pool, d.DeviceRoute)
	p.addChannel(chanNetworkRoute, cfg.NetworkRoute, defaultPrefetch, pool, d.NetworkRoute)
	return p
}

func (p *Plane) addChannel(name string, settings config.ChannelSettings, defaultPrefetch int, pool *mq.Pool, handler Handler) {
	prefetch := settings.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}
	bus := p.bus
	onRecv := func(ctx context.Context, env Envelope) error {
		bus.dispatch(ctx, name, env)
		return nil
	}
	p.bus.subscribe(name, handler)
	p.channels[name] = newChannel(name, settings.URL, prefetch, pool, onRecv)
}

// Start connects every channel's wire queues. A channel whose URL is empty
// is skipped (the deployment doesn't route that channel over a broker,
// e.g. in a single-process test harness).
func (p *Plane) Start(ctx context.Context) error {
	for name, ch := range p.channels {
		if ch.hostURI == "" {
			logger.Warn("control channel has no broker URL configured, skipping", zap.String("channel", name))
			continue
		}
		if err := ch.start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Ready reports whether every configured channel has finished connecting,
// for the ambient /readyz probe.
func (p *Plane) Ready() bool {
	for _, ch := range p.channels {
		if !ch.ready() {
			return false
		}
	}
	return true
}

// Close tears down every channel and the in-process bus.
func (p *Plane) Close(ctx context.Context) {
	for _, ch := range p.channels {
		ch.close(ctx)
	}
	p.bus.close()
}

// publish sends env on the named channel. A channel that was never started
// (e.g. skipped for lacking a URL) silently drops the publish.
func (p *Plane) publish(ctx context.Context, name string, env Envelope) error {
	ch, ok := p.channels[name]
	if !ok || ch.send == nil {
		return nil
	}
	if env.Time == nil {
		now := time.Now().UTC()
		env.Time = &now
	}
	return ch.publish(ctx, env)
}

// PublishUnit announces a unit mutation on the unit channel.
func (p *Plane) PublishUnit(ctx context.Context, env Envelope) error {
	return p.publish(ctx, chanUnit, env)
}

// PublishApplication announces an application mutation on the application
// channel.
func (p *Plane) PublishApplication(ctx context.Context, env Envelope) error {
	return p.publish(ctx, chanApplication, env)
}

// PublishNetwork announces a network mutation on the network channel.
func (p *Plane) PublishNetwork(ctx context.Context, env Envelope) error {
	return p.publish(ctx, chanNetwork, env)
}

// PublishDevice announces a device mutation on the device channel.
func (p *Plane) PublishDevice(ctx context.Context, env Envelope) error {
	return p.publish(ctx, chanDevice, env)
}

// PublishDeviceRoute announces a device-route mutation on the device-route
// channel.
func (p *Plane) PublishDeviceRoute(ctx context.Context, env Envelope) error {
	return p.publish(ctx, chanDeviceRoute, env)
}

// PublishNetworkRoute announces a network-route mutation on the
// network-route channel.
func (p *Plane) PublishNetworkRoute(ctx context.Context, env Envelope) error {
	return p.publish(ctx, chanNetworkRoute, env)
}
