package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cuongbtq/truthlens/internal/decision"
	"github.com/cuongbtq/truthlens/internal/fusion"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Environment variables that override empty secrets in the file
const (
	EnvReasoningAPIKey = "GROQ_API_KEY"
	EnvSerpAPIKey      = "SERPAPI_KEY"
	EnvRabbitMQPass    = "RABBITMQ_PASSWORD"
	EnvInferenceAPIKey = "INFERENCE_API_KEY"
)

// Reverse search provider names
const (
	ProviderLocal   = "local"
	ProviderSerpAPI = "serpapi"
	ProviderMock    = "mock"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Logging       LoggingConfig       `yaml:"logging"`
	App           AppConfig           `yaml:"app"`
	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Fusion        fusion.Weights      `yaml:"fusion"`
	Decision      DecisionConfig      `yaml:"decision"`
	Reasoning     ReasoningConfig     `yaml:"reasoning"`
	Inference     InferenceConfig     `yaml:"inference"`
	ReverseSearch ReverseSearchConfig `yaml:"reverse_search"`
	Broker        BrokerConfig        `yaml:"broker"`
	Tracing       TracingConfig       `yaml:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	Output       string `yaml:"output"`
	EnableCaller bool   `yaml:"enable_caller"`
	TimeFormat   string `yaml:"time_format"`
}

// AppConfig holds application metadata
type AppConfig struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Environment string `yaml:"environment"`
}

// PipelineConfig holds job execution settings
type PipelineConfig struct {
	JobTimeout          time.Duration `yaml:"job_timeout"`
	CollaboratorTimeout time.Duration `yaml:"collaborator_timeout"`
	MaxConcurrentJobs   int           `yaml:"max_concurrent_jobs"`
	Retention           time.Duration `yaml:"retention"`
	JanitorInterval     time.Duration `yaml:"janitor_interval"`
	CancelOnDisconnect  bool          `yaml:"cancel_on_disconnect"`
	ObserverBuffer      int           `yaml:"observer_buffer"`
	FacePadding         int           `yaml:"face_padding"`
	IndexCapacity       int           `yaml:"index_capacity"`
}

// DecisionConfig holds the fallback thresholds and reasoning guard rails
type DecisionConfig struct {
	Thresholds decision.Thresholds `yaml:",inline"`
	Policy     decision.Policy     `yaml:"policy"`
}

// ReasoningConfig holds the chat completions settings
type ReasoningConfig struct {
	Enabled     bool          `yaml:"enabled"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	APIKey      string        `yaml:"api_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

// InferenceConfig holds the model server settings
type InferenceConfig struct {
	BaseURL           string        `yaml:"base_url"`
	VisualizerBaseURL string        `yaml:"visualizer_base_url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	CNNModel          string        `yaml:"cnn_model"`
	SemanticModel     string        `yaml:"semantic_model"`
}

// ReverseSearchConfig holds the reverse search providers in query order
type ReverseSearchConfig struct {
	Providers  []string      `yaml:"providers"`
	SerpAPIKey string        `yaml:"serpapi_key"`
	SerpAPIURL string        `yaml:"serpapi_url"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
}

// BrokerConfig holds the RabbitMQ settings used to mirror terminal events
type BrokerConfig struct {
	Enabled    bool             `yaml:"enabled"`
	Host       string           `yaml:"host"`
	Port       int              `yaml:"port"`
	User       string           `yaml:"user"`
	Password   string           `yaml:"password"`
	VHost      string           `yaml:"vhost"`
	Exchange   ExchangeConfig   `yaml:"exchange"`
	Queue      QueueConfig      `yaml:"queue"`
	BindingKey string           `yaml:"binding_key"`
	Connection ConnectionConfig `yaml:"connection"`
	Publish    PublishConfig    `yaml:"publish"`
}

// ExchangeConfig holds RabbitMQ exchange configuration
type ExchangeConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
}

// QueueConfig holds RabbitMQ queue configuration
type QueueConfig struct {
	Name       string `yaml:"name"`
	Durable    bool   `yaml:"durable"`
	AutoDelete bool   `yaml:"auto_delete"`
	Exclusive  bool   `yaml:"exclusive"`
}

// ConnectionConfig holds RabbitMQ connection settings
type ConnectionConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	Heartbeat         time.Duration `yaml:"heartbeat"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
}

// PublishConfig holds RabbitMQ publish retry settings
type PublishConfig struct {
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	BackoffMultiplier float64       `yaml:"backoff_multiplier"`
}

// TracingConfig holds OpenTelemetry export settings
type TracingConfig struct {
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Default returns the configuration used for keys missing from the file
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    0, // event streams stay open
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxUploadBytes:  20 << 20,
			AllowedOrigins:  []string{"http://localhost:3000"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		App: AppConfig{
			Name:        "truthlens-api",
			Version:     "dev",
			Environment: "development",
		},
		Pipeline: PipelineConfig{
			JobTimeout:          10 * time.Minute,
			CollaboratorTimeout: 2 * time.Minute,
			MaxConcurrentJobs:   4,
			Retention:           time.Hour,
			JanitorInterval:     time.Minute,
			ObserverBuffer:      32,
			FacePadding:         30,
			IndexCapacity:       10000,
		},
		Fusion: fusion.DefaultWeights(),
		Decision: DecisionConfig{
			Thresholds: decision.DefaultThresholds(),
			Policy:     decision.DefaultPolicy(),
		},
		Reasoning: ReasoningConfig{
			Enabled:     true,
			BaseURL:     "https://api.groq.com/openai/v1",
			Model:       "llama-3.3-70b-versatile",
			Temperature: 0.1,
			Timeout:     45 * time.Second,
		},
		Inference: InferenceConfig{
			BaseURL:       "http://localhost:9000",
			Timeout:       2 * time.Minute,
			CNNModel:      "efficientnet",
			SemanticModel: "clip",
		},
		ReverseSearch: ReverseSearchConfig{
			Providers:  []string{ProviderLocal, ProviderSerpAPI},
			MaxResults: 5,
			Timeout:    20 * time.Second,
		},
		Broker: BrokerConfig{
			Port:  5672,
			VHost: "/",
			Exchange: ExchangeConfig{
				Name:    "truthlens.verdicts",
				Type:    "topic",
				Durable: true,
			},
			BindingKey: "verdict.#",
			Connection: ConnectionConfig{
				RetryAttempts: 5,
				RetryInterval: 2 * time.Second,
				Heartbeat:     10 * time.Second,
			},
			Publish: PublishConfig{
				RetryAttempts:     3,
				RetryInterval:     100 * time.Millisecond,
				BackoffMultiplier: 2,
			},
		},
		Tracing: TracingConfig{
			Exporter:    "none",
			SampleRatio: 1,
		},
	}
}

// Load reads and parses the configuration file. Keys missing from the file
// keep their defaults and empty secrets are taken from the environment.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyEnv()
	return &config, nil
}

func (c *Config) applyEnv() {
	setFromEnv(&c.Reasoning.APIKey, EnvReasoningAPIKey)
	setFromEnv(&c.ReverseSearch.SerpAPIKey, EnvSerpAPIKey)
	setFromEnv(&c.Broker.Password, EnvRabbitMQPass)
	setFromEnv(&c.Inference.APIKey, EnvInferenceAPIKey)
}

func setFromEnv(dst *string, key string) {
	if *dst != "" {
		return
	}
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port < MinPort || c.Server.Port > MaxPort {
		return fmt.Errorf("invalid server port: %d (must be between %d and %d)", c.Server.Port, MinPort, MaxPort)
	}

	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server max_upload_bytes must be greater than 0")
	}

	if err := c.Pipeline.validate(); err != nil {
		return err
	}

	if err := c.Fusion.Validate(); err != nil {
		return err
	}

	if err := c.Decision.Thresholds.Validate(); err != nil {
		return err
	}

	if c.Reasoning.Enabled && c.Reasoning.Timeout <= 0 {
		return fmt.Errorf("reasoning timeout must be greater than 0")
	}

	if c.Inference.BaseURL == "" {
		return fmt.Errorf("inference base_url is required")
	}

	if c.Inference.CNNModel == "" || c.Inference.SemanticModel == "" {
		return fmt.Errorf("inference cnn_model and semantic_model are required")
	}

	for _, p := range c.ReverseSearch.Providers {
		switch p {
		case ProviderLocal, ProviderSerpAPI, ProviderMock:
		default:
			return fmt.Errorf("unknown reverse search provider: %q", p)
		}
	}

	if c.Broker.Enabled {
		if err := c.Broker.validate(); err != nil {
			return err
		}
	}

	switch c.Tracing.Exporter {
	case "", "none", "stdout", "otlphttp", "http":
	default:
		return fmt.Errorf("unknown tracing exporter: %q", c.Tracing.Exporter)
	}

	return nil
}

func (p PipelineConfig) validate() error {
	if p.JobTimeout <= 0 {
		return fmt.Errorf("pipeline job_timeout must be greater than 0")
	}

	if p.CollaboratorTimeout <= 0 {
		return fmt.Errorf("pipeline collaborator_timeout must be greater than 0")
	}

	if p.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("pipeline max_concurrent_jobs must be greater than 0")
	}

	if p.Retention <= 0 {
		return fmt.Errorf("pipeline retention must be greater than 0")
	}

	if p.JanitorInterval <= 0 {
		return fmt.Errorf("pipeline janitor_interval must be greater than 0")
	}

	if p.FacePadding < 0 {
		return fmt.Errorf("pipeline face_padding must not be negative")
	}

	return nil
}

func (b BrokerConfig) validate() error {
	if b.Host == "" {
		return fmt.Errorf("broker host is required")
	}

	if b.Port < MinPort || b.Port > MaxPort {
		return fmt.Errorf("invalid broker port: %d (must be between %d and %d)", b.Port, MinPort, MaxPort)
	}

	if b.Exchange.Name == "" {
		return fmt.Errorf("broker exchange name is required")
	}

	return nil
}
