// Package routing implements the Routing Engine: the uplink, downlink and
// delivery-result pipelines that sit between a Network Manager and an
// Application Manager, plus the downlink-buffer expiry reaper. Its
// Resolver composes a cache-aside read (check cache, fall back to the
// data-model, repopulate) with a data-model write, generalized from a
// single-entity lookup to the uplink fan-out and downlink resolution
// joins.
package routing

import (
	"github.com/sylvia-iot/broker-core/internal/appmgr"
	"github.com/sylvia-iot/broker-core/internal/cache"
	"github.com/sylvia-iot/broker-core/internal/model"
	"github.com/sylvia-iot/broker-core/internal/netmgr"
)

// AppManagerLookup resolves the live Application Manager for a
// (unit_code, application_code) pair. internal/supervisor implements this.
type AppManagerLookup interface {
	AppManager(unitCode, applicationCode string) (*appmgr.Manager, bool)
}

// NetManagerLookup resolves the live Network Manager for a (unit_code,
// network_code) pair (public networks pass unitCode "_"). internal/supervisor
// implements this.
type NetManagerLookup interface {
	NetManager(unitCode, networkCode string) (*netmgr.Manager, bool)
}

// Engine wires the data-model, routing caches and live manager rosters
// together. One Engine instance serves every network/application manager in
// the process.
type Engine struct {
	model    *model.Model
	resolver *Resolver
	apps     AppManagerLookup
	nets     NetManagerLookup

	defaultExpiresIn int64 // ms
}

// New constructs a routing Engine. defaultExpiresInMillis is used when a
// downlink submission omits expiresIn (or sets it to zero).
func New(m *model.Model, rc *cache.Routing, apps AppManagerLookup, nets NetManagerLookup, defaultExpiresInMillis int64) *Engine {
	return &Engine{
		model:            m,
		resolver:         &Resolver{model: m, cache: rc},
		apps:             apps,
		nets:             nets,
		defaultExpiresIn: defaultExpiresInMillis,
	}
}
