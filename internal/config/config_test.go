package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/truthlens/internal/decision"
	"github.com/cuongbtq/truthlens/internal/fusion"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
			wantErr:  false,
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)

				// Verify some key fields are populated
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
				assert.Equal(t, "truthlens-api", cfg.App.Name)
				assert.Equal(t, 5*time.Minute, cfg.Pipeline.JobTimeout)
				assert.True(t, cfg.Pipeline.CancelOnDisconnect)
				assert.Equal(t, fusion.Weights{CNN: 0.5, Semantic: 0.3, Frequency: 0.2}, cfg.Fusion)
				assert.Equal(t, decision.Thresholds{AI: 70, Real: 35}, cfg.Decision.Thresholds)
				assert.Equal(t, []string{ProviderLocal, ProviderMock}, cfg.ReverseSearch.Providers)
				assert.Equal(t, "truthlens.verdicts", cfg.Broker.Exchange.Name)
				assert.Equal(t, "truthlens.verdicts.audit", cfg.Broker.Queue.Name)
			}
		})
	}
}

func TestLoad_KeepsDefaults(t *testing.T) {
	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	defaults := Default()

	// Partially specified sections keep their remaining defaults
	assert.Equal(t, 80.0, cfg.Decision.Policy.SemanticAIMin)
	assert.Equal(t, defaults.Decision.Policy.CNNAIMin, cfg.Decision.Policy.CNNAIMin)
	assert.Equal(t, defaults.Pipeline.FacePadding, cfg.Pipeline.FacePadding)
	assert.Equal(t, defaults.Inference.CNNModel, cfg.Inference.CNNModel)
	assert.Equal(t, defaults.Broker.Connection.RetryAttempts, cfg.Broker.Connection.RetryAttempts)
	assert.Equal(t, defaults.Server.IdleTimeout, cfg.Server.IdleTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvReasoningAPIKey, "gsk-test")
	t.Setenv(EnvSerpAPIKey, "serp-test")
	t.Setenv(EnvRabbitMQPass, "secret")
	t.Setenv(EnvInferenceAPIKey, "")

	cfg, err := Load("testdata/valid_config.yaml")
	require.NoError(t, err)

	assert.Equal(t, "gsk-test", cfg.Reasoning.APIKey)
	assert.Equal(t, "serp-test", cfg.ReverseSearch.SerpAPIKey)
	assert.Equal(t, "secret", cfg.Broker.Password)
	assert.Empty(t, cfg.Inference.APIKey)
}

func validConfig() *Config {
	cfg := Default()
	return &cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantErr   bool
		errString string
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:      "invalid server port - too low",
			mutate:    func(c *Config) { c.Server.Port = 0 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "invalid server port - too high",
			mutate:    func(c *Config) { c.Server.Port = 70000 },
			wantErr:   true,
			errString: "invalid server port",
		},
		{
			name:      "zero upload limit",
			mutate:    func(c *Config) { c.Server.MaxUploadBytes = 0 },
			wantErr:   true,
			errString: "max_upload_bytes",
		},
		{
			name:      "zero job timeout",
			mutate:    func(c *Config) { c.Pipeline.JobTimeout = 0 },
			wantErr:   true,
			errString: "job_timeout",
		},
		{
			name:      "zero retention",
			mutate:    func(c *Config) { c.Pipeline.Retention = 0 },
			wantErr:   true,
			errString: "retention",
		},
		{
			name:      "no concurrency",
			mutate:    func(c *Config) { c.Pipeline.MaxConcurrentJobs = 0 },
			wantErr:   true,
			errString: "max_concurrent_jobs",
		},
		{
			name:      "weights do not sum to one",
			mutate:    func(c *Config) { c.Fusion.CNN = 0.9 },
			wantErr:   true,
			errString: "fusion weights must sum to 1",
		},
		{
			name:      "inverted thresholds",
			mutate:    func(c *Config) { c.Decision.Thresholds = decision.Thresholds{AI: 40, Real: 65} },
			wantErr:   true,
			errString: "invalid decision thresholds",
		},
		{
			name:      "missing inference url",
			mutate:    func(c *Config) { c.Inference.BaseURL = "" },
			wantErr:   true,
			errString: "inference base_url is required",
		},
		{
			name:      "unknown provider",
			mutate:    func(c *Config) { c.ReverseSearch.Providers = []string{"bing"} },
			wantErr:   true,
			errString: "unknown reverse search provider",
		},
		{
			name:    "broker disabled skips broker checks",
			mutate:  func(c *Config) { c.Broker.Host = "" },
			wantErr: false,
		},
		{
			name: "empty broker host",
			mutate: func(c *Config) {
				c.Broker.Enabled = true
				c.Broker.Host = ""
			},
			wantErr:   true,
			errString: "broker host is required",
		},
		{
			name: "empty exchange name",
			mutate: func(c *Config) {
				c.Broker.Enabled = true
				c.Broker.Host = "localhost"
				c.Broker.Exchange.Name = ""
			},
			wantErr:   true,
			errString: "broker exchange name is required",
		},
		{
			name:      "unknown tracing exporter",
			mutate:    func(c *Config) { c.Tracing.Exporter = "zipkin" },
			wantErr:   true,
			errString: "unknown tracing exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestLoad_ValidateIntegration(t *testing.T) {
	t.Run("load and validate valid config", func(t *testing.T) {
		cfg, err := Load("testdata/valid_config.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.NoError(t, err)
	})

	t.Run("load config with invalid port", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_port.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid server port")
	})

	t.Run("load config with invalid weights", func(t *testing.T) {
		cfg, err := Load("testdata/invalid_weights.yaml")
		require.NoError(t, err)
		require.NotNil(t, cfg)

		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fusion weights must sum to 1")
	})
}

func TestPortConstants(t *testing.T) {
	t.Run("port constants are correct", func(t *testing.T) {
		assert.Equal(t, 1, MinPort)
		assert.Equal(t, 65535, MaxPort)
	})

	t.Run("valid port range", func(t *testing.T) {
		validPorts := []int{1, 80, 443, 8080, 65535}
		for _, port := range validPorts {
			assert.GreaterOrEqual(t, port, MinPort)
			assert.LessOrEqual(t, port, MaxPort)
		}
	})

	t.Run("invalid port range", func(t *testing.T) {
		invalidPorts := []int{0, -1, 65536, 70000}
		for _, port := range invalidPorts {
			valid := port >= MinPort && port <= MaxPort
			assert.False(t, valid, "port %d should be invalid", port)
		}
	})
}
