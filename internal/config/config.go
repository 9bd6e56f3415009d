package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the analysis engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tiers     TiersConfig     `yaml:"tiers"`
	Cache     CacheConfig     `yaml:"cache"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Oracle    OracleConfig    `yaml:"oracle"`
	Encoder   EncoderConfig   `yaml:"encoder"`
	Router    RouterConfig    `yaml:"router"`
	Rules     RulesConfig     `yaml:"rules"`
	LogSource LogSourceConfig `yaml:"logSource"`
	DocStore  DocStoreConfig  `yaml:"docStore"`
	Feedback  FeedbackConfig  `yaml:"feedback"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// TierConfig holds the latency budget, cache TTL, and similarity floor for
// one latency tier. All figures are defaults, not hard guarantees.
type TierConfig struct {
	Budget              time.Duration `yaml:"budget"`
	CacheTTL            time.Duration `yaml:"cacheTTL"`
	SimilarityThreshold float64       `yaml:"similarityThreshold"`
}

// TiersConfig groups the three latency tiers.
type TiersConfig struct {
	Critical TierConfig `yaml:"critical"`
	High     TierConfig `yaml:"high"`
	Standard TierConfig `yaml:"standard"`
}

// CacheConfig controls the two-level response cache and its optional
// Valkey-backed persistence.
type CacheConfig struct {
	Capacity            int           `yaml:"capacity"`
	ConfidenceFloor     float64       `yaml:"confidenceFloor"`
	ConfidenceIncrement float64       `yaml:"confidenceIncrement"`
	ConfidenceDecrement float64       `yaml:"confidenceDecrement"`
	PinThreshold        int           `yaml:"pinThreshold"`
	TTLExtension        time.Duration `yaml:"ttlExtension"`
	SweepInterval       time.Duration `yaml:"sweepInterval"`
	Valkey              ValkeyConfig  `yaml:"valkey"`
}

// ValkeyConfig controls the warm-snapshot persistence layer.
type ValkeyConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
}

// GatewayConfig controls oracle quota enforcement and batching.
type GatewayConfig struct {
	TenantRPM     int           `yaml:"tenantRPM"`
	GlobalRPM     int           `yaml:"globalRPM"`
	GlobalTPM     int           `yaml:"globalTPM"`
	QueueDepth    int           `yaml:"queueDepth"`
	MaxRetries    int           `yaml:"maxRetries"`
	RetryBase     time.Duration `yaml:"retryBase"`
	RetryCap      time.Duration `yaml:"retryCap"`
	BatchWindow   time.Duration `yaml:"batchWindow"`
	BatchMaxSize  int           `yaml:"batchMaxSize"`
	EnableBatches bool          `yaml:"enableBatches"`
}

// OracleConfig configures the external reasoning service.
type OracleConfig struct {
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseURL"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"maxTokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// EncoderConfig configures the external embedding encoder.
type EncoderConfig struct {
	APIKey     string        `yaml:"apiKey"`
	BaseURL    string        `yaml:"baseURL"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"maxRetries"`
}

// RouterConfig controls tier classification signals.
type RouterConfig struct {
	CriticalServices []string `yaml:"criticalServices"`
	FatalLexicon     []string `yaml:"fatalLexicon"`
}

// RulesConfig controls rule-pack loading for the fast path.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// LogSourceConfig configures the upstream log search API.
type LogSourceConfig struct {
	BaseURL       string        `yaml:"baseURL"`
	IncidentsPath string        `yaml:"incidentsPath"`
	SearchPath    string        `yaml:"searchPath"`
	Token         string        `yaml:"token"`
	Timeout       time.Duration `yaml:"timeout"`
}

// DocStoreConfig configures the Weaviate-backed document store.
type DocStoreConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

// FeedbackConfig controls the async promoter.
type FeedbackConfig struct {
	QueueDepth    int           `yaml:"queueDepth"`
	DedupeWindow  time.Duration `yaml:"dedupeWindow"`
	EnrichWorkers int           `yaml:"enrichWorkers"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SCOOBY_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Tiers: TiersConfig{
			Critical: TierConfig{Budget: 3 * time.Second, CacheTTL: 24 * time.Hour, SimilarityThreshold: 0.92},
			High:     TierConfig{Budget: 5 * time.Second, CacheTTL: 12 * time.Hour, SimilarityThreshold: 0.92},
			Standard: TierConfig{Budget: 45 * time.Second, CacheTTL: time.Hour, SimilarityThreshold: 0.80},
		},
		Cache: CacheConfig{
			Capacity:            4096,
			ConfidenceFloor:     0.2,
			ConfidenceIncrement: 0.1,
			ConfidenceDecrement: 0.15,
			PinThreshold:        3,
			TTLExtension:        time.Hour,
			SweepInterval:       time.Minute,
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
				MaxRetries:   2,
				SnapshotTTL:  24 * time.Hour,
			},
		},
		Gateway: GatewayConfig{
			TenantRPM:     15,
			GlobalRPM:     2000,
			GlobalTPM:     4000000,
			QueueDepth:    64,
			MaxRetries:    3,
			RetryBase:     250 * time.Millisecond,
			RetryCap:      8 * time.Second,
			BatchWindow:   150 * time.Millisecond,
			BatchMaxSize:  4,
			EnableBatches: true,
		},
		Oracle: OracleConfig{
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
			MaxTokens:   8192,
			Timeout:     60 * time.Second,
		},
		Encoder: EncoderConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 1536,
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Router: RouterConfig{
			FatalLexicon: []string{"fatal", "panic", "out of memory", "data loss", "segfault", "corruption"},
		},
		Rules:     RulesConfig{Path: "configs/rules/default.yaml"},
		LogSource: LogSourceConfig{IncidentsPath: "/api/v1/search/incidents", SearchPath: "/api/v1/search/logs", Timeout: 5 * time.Second},
		DocStore:  DocStoreConfig{Timeout: 5 * time.Second},
		Feedback: FeedbackConfig{
			QueueDepth:    256,
			DedupeWindow:  24 * time.Hour,
			EnrichWorkers: 2,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SCOOBY_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("SCOOBY_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SCOOBY_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SCOOBY_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SCOOBY_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("SCOOBY_ORACLE_API_KEY"); v != "" {
		cfg.Oracle.APIKey = v
	}
	if v := os.Getenv("SCOOBY_ORACLE_BASE_URL"); v != "" {
		cfg.Oracle.BaseURL = v
	}
	if v := os.Getenv("SCOOBY_ORACLE_MODEL"); v != "" {
		cfg.Oracle.Model = v
	}
	if v := os.Getenv("SCOOBY_ENCODER_API_KEY"); v != "" {
		cfg.Encoder.APIKey = v
	}
	if v := os.Getenv("SCOOBY_ENCODER_MODEL"); v != "" {
		cfg.Encoder.Model = v
	}
	if v := os.Getenv("SCOOBY_LOGSOURCE_BASE_URL"); v != "" {
		cfg.LogSource.BaseURL = v
	}
	if v := os.Getenv("SCOOBY_LOGSOURCE_TOKEN"); v != "" {
		cfg.LogSource.Token = v
	}
	if v := os.Getenv("SCOOBY_DOCSTORE_ENDPOINT"); v != "" {
		cfg.DocStore.Endpoint = v
	}
	if v := os.Getenv("SCOOBY_DOCSTORE_API_KEY"); v != "" {
		cfg.DocStore.APIKey = v
	}
	if v := os.Getenv("SCOOBY_VALKEY_ENABLED"); v != "" {
		cfg.Cache.Valkey.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("SCOOBY_VALKEY_ADDR"); v != "" {
		cfg.Cache.Valkey.Addr = v
	}
	if v := os.Getenv("SCOOBY_VALKEY_USERNAME"); v != "" {
		cfg.Cache.Valkey.Username = v
	}
	if v := os.Getenv("SCOOBY_VALKEY_PASSWORD"); v != "" {
		cfg.Cache.Valkey.Password = v
	}
	if v := os.Getenv("SCOOBY_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Valkey.DB = db
		}
	}
	if v := os.Getenv("SCOOBY_VALKEY_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.Valkey.TLS = true
	}
	if v := os.Getenv("SCOOBY_GATEWAY_TENANT_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.TenantRPM = n
		}
	}
	if v := os.Getenv("SCOOBY_GATEWAY_GLOBAL_RPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.GlobalRPM = n
		}
	}
	if v := os.Getenv("SCOOBY_GATEWAY_GLOBAL_TPM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.GlobalTPM = n
		}
	}
	if v := os.Getenv("SCOOBY_GATEWAY_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.QueueDepth = n
		}
	}
	if v := os.Getenv("SCOOBY_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.Capacity = n
		}
	}
	if v := os.Getenv("SCOOBY_CACHE_SWEEP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SweepInterval = d
		}
	}
	if v := os.Getenv("SCOOBY_TIER_CRITICAL_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tiers.Critical.Budget = d
		}
	}
	if v := os.Getenv("SCOOBY_TIER_HIGH_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tiers.High.Budget = d
		}
	}
	if v := os.Getenv("SCOOBY_TIER_STANDARD_BUDGET"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Tiers.Standard.Budget = d
		}
	}
}
