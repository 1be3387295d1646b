package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
}

// Empty files produce the defaults.
func (s *ConfigTestSuite) TestDefaults() {
	cfg, err := Parse([]byte(``))
	s.Require().NoError(err)
	s.Equal(Default(), cfg)
	s.Equal("_id", cfg.Store.IDField)
	s.Equal(101, cfg.Store.DefaultBatchSize)
	s.Equal(time.Minute, cfg.TTL.SweepInterval)
	s.True(cfg.TTLEnabled())
	s.Equal(256, cfg.Matcher.RegexCacheSize)
	s.Equal("nop", cfg.Logging.Env)
	s.Equal("morphium", cfg.Metrics.Namespace)
}

// Every field is read, with ${VAR} references expanded.
func (s *ConfigTestSuite) TestParse() {
	s.T().Setenv("MORPHIUM_LOG_LEVEL", "warn")
	cfg, err := Parse([]byte(`
store:
  id_field: key
  default_batch_size: 10
ttl:
  enabled: false
  sweep_interval: 250ms
matcher:
  regex_cache_size: 16
logging:
  env: prod
  level: ${MORPHIUM_LOG_LEVEL}
metrics:
  enabled: true
  namespace: ${MORPHIUM_NS:-embedded}
`))
	s.Require().NoError(err)
	s.Equal("key", cfg.Store.IDField)
	s.Equal(10, cfg.Store.DefaultBatchSize)
	s.False(cfg.TTLEnabled())
	s.Equal(250*time.Millisecond, cfg.TTL.SweepInterval)
	s.Equal(16, cfg.Matcher.RegexCacheSize)
	s.Equal("prod", cfg.Logging.Env)
	s.Equal("warn", cfg.Logging.Level)
	s.True(cfg.Metrics.Enabled)
	s.Equal("embedded", cfg.Metrics.Namespace)
}

// Invalid settings are rejected.
func (s *ConfigTestSuite) TestValidate() {
	for name, data := range map[string]string{
		"IDField":  "store:\n  id_field: a.b\n",
		"Interval": "ttl:\n  sweep_interval: 1us\n",
		"Env":      "logging:\n  env: staging\n",
		"Syntax":   "store: [",
	} {
		s.Run(name, func() {
			_, err := Parse([]byte(data))
			s.Error(err)
		})
	}
}

// Files are read from disk.
func (s *ConfigTestSuite) TestLoad() {
	path := filepath.Join(s.T().TempDir(), "morphium.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("store:\n  id_field: key\n"), 0o600))
	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal("key", cfg.Store.IDField)

	_, err = Load(filepath.Join(s.T().TempDir(), "missing.yaml"))
	s.ErrorIs(err, os.ErrNotExist)
}

func TestConfigTestSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}
