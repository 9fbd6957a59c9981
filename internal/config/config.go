// Package config assembles the broker core's Settings record from flags,
// environment variables and an optional YAML file, in that precedence order
// (CLI args > environment > defaults), validating the merged result before
// it is handed to the rest of the process.
package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sylvia-iot/broker-core/internal/logger"
)

// DBEngine names the data-model backend. Only sqlite has a backend in this
// repository: cmd/broker opens sqlite whatever the value, and "mongodb"
// passes Validate without selecting a different store.
type DBEngine string

const (
	DBEngineSqlite  DBEngine = "sqlite"
	DBEngineMongoDB DBEngine = "mongodb"
)

// CacheEngine selects the cache backend.
type CacheEngine string

const (
	CacheEngineNone   CacheEngine = "none"
	CacheEngineMemory CacheEngine = "memory"
)

// CacheMemorySettings holds per-family LRU capacities (default: 1,000,000
// each).
type CacheMemorySettings struct {
	Device        int
	DeviceRoute   int
	NetworkRoute  int
}

// ChannelSettings configures one control-plane channel endpoint.
type ChannelSettings struct {
	URL      string
	Prefetch int
}

// MQChannels holds the six control channels plus the optional external
// data-log sink.
type MQChannels struct {
	Unit         ChannelSettings
	Application  ChannelSettings
	Network      ChannelSettings
	Device       ChannelSettings
	DeviceRoute  ChannelSettings
	NetworkRoute ChannelSettings
	Data         ChannelSettings // optional external data-log sink (mqChannels.data.url)
}

// Settings is the broker core's fully resolved configuration.
type Settings struct {
	DBEngine   DBEngine
	DBPath     string // sqlite file path (DBEngine == sqlite)

	CacheEngine  CacheEngine
	CacheMemory  CacheMemorySettings

	MQPrefetch     int    // mq.prefetch: AMQP unacked window, 1..65535, default 100
	MQSharedPrefix string // mq.sharedPrefix: MQTT shared-subscription prefix

	MQChannels MQChannels

	APIScopes map[string][]string // API name -> required OAuth scopes

	// HealthAddr is the bind address for the ambient health/status HTTP
	// surface (/healthz, /readyz, /statusz), separate from the REST CRUD
	// surface.
	HealthAddr string

	LogLevel       string
	LogDevelopment bool

	// QueueConnectTimeout bounds the startup poll for queue readiness,
	// a five-second upper bound by default.
	QueueConnectTimeout time.Duration

	// DlDataReaperInterval controls how often the downlink buffer reaper
	// scans for expired correlations.
	DlDataReaperInterval time.Duration

	// ManagerCloseGrace is the deadline of the context the supervisor hands
	// to a manager's Close on teardown. Queue Close returns without waiting
	// for in-flight handler calls, and no poll interval is involved.
	ManagerCloseGrace time.Duration
}

// Default returns the broker's default settings.
func Default() *Settings {
	return &Settings{
		DBEngine: DBEngineSqlite,
		DBPath:   "broker.db",

		CacheEngine: CacheEngineMemory,
		CacheMemory: CacheMemorySettings{
			Device:       1_000_000,
			DeviceRoute:  1_000_000,
			NetworkRoute: 1_000_000,
		},

		MQPrefetch:     100,
		MQSharedPrefix: "$share/sylvia-iot-broker/",

		APIScopes: map[string][]string{},

		HealthAddr: ":8080",

		LogLevel:       "info",
		LogDevelopment: false,

		QueueConnectTimeout:  5 * time.Second,
		DlDataReaperInterval: 30 * time.Second,
		ManagerCloseGrace:    2 * time.Second,
	}
}

// Validate rejects structurally invalid settings before the core starts.
func (s *Settings) Validate() error {
	switch s.DBEngine {
	case DBEngineSqlite, DBEngineMongoDB:
	default:
		return fmt.Errorf("config: unknown db.engine %q", s.DBEngine)
	}
	switch s.CacheEngine {
	case CacheEngineNone, CacheEngineMemory:
	default:
		return fmt.Errorf("config: unknown cache.engine %q", s.CacheEngine)
	}
	if s.MQPrefetch < 1 || s.MQPrefetch > 65535 {
		return fmt.Errorf("config: mq.prefetch must be in 1..65535, got %d", s.MQPrefetch)
	}
	if s.CacheMemory.Device < 0 || s.CacheMemory.DeviceRoute < 0 || s.CacheMemory.NetworkRoute < 0 {
		return fmt.Errorf("config: cache.memory.* must be non-negative")
	}
	if s.QueueConnectTimeout <= 0 {
		return fmt.Errorf("config: queue connect timeout must be positive")
	}
	return nil
}

// Load parses flags and environment variables (flags take precedence),
// applies defaults for anything unset, validates, and logs each resolved
// runtime knob.
func Load(args []string) (*Settings, error) {
	s := Default()

	fs := flag.NewFlagSet("broker", flag.ContinueOnError)
	dbEngine := fs.String("db.engine", string(s.DBEngine), "data-model backend: sqlite|mongodb")
	dbPath := fs.String("db.path", s.DBPath, "sqlite database file path")
	cacheEngine := fs.String("cache.engine", string(s.CacheEngine), "cache backend: none|memory")
	mqPrefetch := fs.Int("mq.prefetch", s.MQPrefetch, "AMQP unacked window")
	mqSharedPrefix := fs.String("mq.sharedPrefix", s.MQSharedPrefix, "MQTT shared-subscription prefix")
	healthAddr := fs.String("health.addr", s.HealthAddr, "bind address for /healthz, /readyz, /statusz")
	logLevel := fs.String("log.level", s.LogLevel, "debug|info|warn|error")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	applyEnvString("BROKER_DB_ENGINE", dbEngine)
	applyEnvString("BROKER_DB_PATH", dbPath)
	applyEnvString("BROKER_CACHE_ENGINE", cacheEngine)
	applyEnvInt("BROKER_MQ_PREFETCH", mqPrefetch)
	applyEnvString("BROKER_MQ_SHARED_PREFIX", mqSharedPrefix)
	applyEnvString("BROKER_HEALTH_ADDR", healthAddr)
	applyEnvString("BROKER_LOG_LEVEL", logLevel)

	s.DBEngine = DBEngine(*dbEngine)
	s.DBPath = *dbPath
	s.CacheEngine = CacheEngine(*cacheEngine)
	s.MQPrefetch = *mqPrefetch
	s.MQSharedPrefix = *mqSharedPrefix
	s.HealthAddr = *healthAddr
	s.LogLevel = *logLevel

	loadChannel(&s.MQChannels.Unit, "UNIT")
	loadChannel(&s.MQChannels.Application, "APPLICATION")
	loadChannel(&s.MQChannels.Network, "NETWORK")
	loadChannel(&s.MQChannels.Device, "DEVICE")
	loadChannel(&s.MQChannels.DeviceRoute, "DEVICE_ROUTE")
	loadChannel(&s.MQChannels.NetworkRoute, "NETWORK_ROUTE")
	loadChannel(&s.MQChannels.Data, "DATA")

	if err := s.Validate(); err != nil {
		return nil, err
	}

	log := logger.S()
	log.Infow("broker settings resolved",
		"db.engine", s.DBEngine,
		"cache.engine", s.CacheEngine,
		"mq.prefetch", s.MQPrefetch,
		"mq.sharedPrefix", s.MQSharedPrefix,
		"health.addr", s.HealthAddr,
	)

	return s, nil
}

func applyEnvString(key string, dst *string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func applyEnvInt(key string, dst *int) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func loadChannel(dst *ChannelSettings, envPrefix string) {
	if v, ok := os.LookupEnv("BROKER_MQCHANNELS_" + envPrefix + "_URL"); ok {
		dst.URL = v
	}
	if v, ok := os.LookupEnv("BROKER_MQCHANNELS_" + envPrefix + "_PREFETCH"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			dst.Prefetch = n
		}
	}
}

// fileOverrides is the subset of Settings that may be supplied via YAML
// file. Pointer fields distinguish "absent" from "zero value": a field absent
// from the file leaves the current setting alone, and a field present in the
// file replaces it.
type fileOverrides struct {
	DBEngine       *string              `yaml:"db.engine"`
	DBPath         *string              `yaml:"db.path"`
	CacheEngine    *string              `yaml:"cache.engine"`
	MQPrefetch     *int                 `yaml:"mq.prefetch"`
	MQSharedPrefix *string              `yaml:"mq.sharedPrefix"`
	APIScopes      map[string][]string  `yaml:"apiScopes"`
}

// LoadFile applies YAML-file settings on top of s: every field present in
// the file overwrites the value s holds, including one that came from a
// flag or the environment; fields absent from the file are left unchanged.
// A missing file is not an error.
func LoadFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	var overrides fileOverrides
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	if overrides.DBEngine != nil {
		s.DBEngine = DBEngine(*overrides.DBEngine)
	}
	if overrides.DBPath != nil {
		s.DBPath = *overrides.DBPath
	}
	if overrides.CacheEngine != nil {
		s.CacheEngine = CacheEngine(*overrides.CacheEngine)
	}
	if overrides.MQPrefetch != nil {
		s.MQPrefetch = *overrides.MQPrefetch
	}
	if overrides.MQSharedPrefix != nil {
		s.MQSharedPrefix = *overrides.MQSharedPrefix
	}
	if overrides.APIScopes != nil {
		s.APIScopes = overrides.APIScopes
	}
	return s.Validate()
}
