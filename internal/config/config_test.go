// File: internal/config/config_test.go
package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "codebuddy", cfg.Logger.ServiceName)
	assert.Equal(t, "http://localhost:8000", cfg.Backend.BaseURL)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, "LeetCode", cfg.Observer.SiteName)
	assert.Equal(t, ".text-title-large a", cfg.Observer.TitleSelector)
	assert.Equal(t, `[data-e2e-locator="submission-result"]`, cfg.Observer.ResultSelector)
	assert.Equal(t, []string{`[data-mode-id="text/x-python"]`, `[data-mode-id="text/javascript"]`}, cfg.Observer.CodeSelectors)
	assert.Equal(t, time.Second, cfg.Observer.SettleDelay)
	assert.Equal(t, ".flexlayout__tabset_content .view-lines", cfg.Observer.CodeContainerSelector)
	assert.Equal(t, ".view-line", cfg.Observer.CodeLineSelector)
	assert.Equal(t, "code-buddy-learn-overlay", cfg.Overlay.LearnID)
	assert.Equal(t, "code-buddy-optimal-overlay", cfg.Overlay.OptimalID)
	assert.Equal(t, 5, cfg.Popup.SimilarLimit)

	assert.NoError(t, cfg.Validate(), "defaults must validate")
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Core Validation", func(t *testing.T) {
		cfg := NewDefaultConfig()
		require.NoError(t, cfg.Validate())

		noBackend := *cfg
		noBackend.Backend.BaseURL = "  "
		err := noBackend.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend.base_url is a required configuration field")

		badRate := *cfg
		badRate.Backend.RateLimit = 0
		err = badRate.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "backend.rate_limit must be positive")

		sameIDs := *cfg
		sameIDs.Overlay.OptimalID = sameIDs.Overlay.LearnID
		err = sameIDs.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "overlay identities must be distinct")

		badLimit := *cfg
		badLimit.Popup.SimilarLimit = 0
		err = badLimit.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "popup.similar_limit must be a positive integer")
	})

	t.Run("Store Validation", func(t *testing.T) {
		valid := StoreConfig{Driver: StoreDriverRedis, Origin: "https://leetcode.com", Redis: RedisConfig{Addr: "localhost:6379"}}
		assert.NoError(t, valid.Validate())

		unknown := valid
		unknown.Driver = "etcd"
		err := unknown.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown driver "etcd"`)

		noAddr := valid
		noAddr.Redis.Addr = ""
		err = noAddr.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis.addr is required")

		noOrigin := valid
		noOrigin.Origin = ""
		assert.Error(t, noOrigin.Validate())
	})

	t.Run("Observer Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Observer
		assert.NoError(t, valid.Validate())

		noSelectors := valid
		noSelectors.CodeSelectors = nil
		err := noSelectors.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least one code selector is required")

		noContainer := valid
		noContainer.CodeContainerSelector = ""
		err = noContainer.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "code_container_selector and code_line_selector are required")

		noDelay := valid
		noDelay.SettleDelay = 0
		err = noDelay.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "settle_delay must be a positive duration")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
backend:
  base_url: "http://backend.internal:9000"
observer:
  settle_delay: 1500ms
  code_selectors:
    - '[data-mode-id="text/x-java"]'
logger:
  log_file: ""
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.Equal(t, "http://backend.internal:9000", cfg.Backend.BaseURL)
		assert.Equal(t, 1500*time.Millisecond, cfg.Observer.SettleDelay)
		assert.Equal(t, []string{`[data-mode-id="text/x-java"]`}, cfg.Observer.CodeSelectors)
		// Check a default value was also loaded
		assert.Equal(t, "info", cfg.Logger.Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("store.driver", "sqlite")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
		assert.Contains(t, err.Error(), `unknown driver "sqlite"`)
	})

	t.Run("Environment Variable Binding", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		t.Setenv("CODEBUDDY_REDIS_PASSWORD", "hunter2")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "hunter2", cfg.Store.Redis.Password)
	})

	t.Run("Home Directory Expansion", func(t *testing.T) {
		homedir.DisableCache = true
		t.Cleanup(func() { homedir.DisableCache = false })
		t.Setenv("HOME", "/home/tester")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "/home/tester/.codebuddy/codebuddy.log", cfg.Logger.LogFile)
	})
}
