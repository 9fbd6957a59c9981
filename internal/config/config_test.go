package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestValidate_RejectsUnknownDBEngine(t *testing.T) {
	s := Default()
	s.DBEngine = "postgres"
	assert.Error(t, s.Validate())
}

func TestValidate_RejectsUnknownCacheEngine(t *testing.T) {
	s := Default()
	s.CacheEngine = "redis"
	assert.Error(t, s.Validate())
}

func TestValidate_RejectsOutOfRangePrefetch(t *testing.T) {
	s := Default()
	s.MQPrefetch = 0
	assert.Error(t, s.Validate())

	s.MQPrefetch = 70000
	assert.Error(t, s.Validate())
}

func TestValidate_RejectsNegativeCacheMemory(t *testing.T) {
	s := Default()
	s.CacheMemory.Device = -1
	assert.Error(t, s.Validate())
}

func TestValidate_RejectsNonPositiveQueueConnectTimeout(t *testing.T) {
	s := Default()
	s.QueueConnectTimeout = 0
	assert.Error(t, s.Validate())
}

func TestLoad_AppliesFlagOverrides(t *testing.T) {
	s, err := Load([]string{"-db.engine=mongodb", "-mq.prefetch=50"})
	require.NoError(t, err)
	assert.Equal(t, DBEngineMongoDB, s.DBEngine)
	assert.Equal(t, 50, s.MQPrefetch)
}

func TestLoad_EnvOverridesDefaultButNotFlag(t *testing.T) {
	t.Setenv("BROKER_DB_PATH", "/var/lib/broker/env.db")
	t.Setenv("BROKER_MQ_PREFETCH", "77")

	s, err := Load([]string{"-mq.prefetch=10"})
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/broker/env.db", s.DBPath)
	assert.Equal(t, 10, s.MQPrefetch)
}

func TestLoad_ChannelEnvVarsPopulateMQChannels(t *testing.T) {
	t.Setenv("BROKER_MQCHANNELS_UNIT_URL", "amqp://unit-broker")
	t.Setenv("BROKER_MQCHANNELS_UNIT_PREFETCH", "42")

	s, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "amqp://unit-broker", s.MQChannels.Unit.URL)
	assert.Equal(t, 42, s.MQChannels.Unit.Prefetch)
}

func TestLoad_InvalidEnvIntIsIgnored(t *testing.T) {
	t.Setenv("BROKER_MQ_PREFETCH", "not-a-number")
	s, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default().MQPrefetch, s.MQPrefetch)
}

func TestLoad_PropagatesValidationFailure(t *testing.T) {
	_, err := Load([]string{"-db.engine=invalid"})
	assert.Error(t, err)
}

func TestLoadFile_MissingFileIsNotAnError(t *testing.T) {
	s := Default()
	err := LoadFile(s, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.NoError(t, err)
}

func TestLoadFile_AppliesOverridesOnTopOfExistingSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db.path: /data/file.db\nmq.prefetch: 33\n"), 0o644))

	s := Default()
	require.NoError(t, LoadFile(s, path))
	assert.Equal(t, "/data/file.db", s.DBPath)
	assert.Equal(t, 33, s.MQPrefetch)
}

func TestLoadFile_InvalidYAMLIsAnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("not: [valid yaml"), 0o644))

	s := Default()
	assert.Error(t, LoadFile(s, path))
}

func TestLoadFile_ValidatesMergedResult(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mq.prefetch: 0\n"), 0o644))

	s := Default()
	assert.Error(t, LoadFile(s, path))
}
