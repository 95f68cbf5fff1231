package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Embed     EmbedConfig     `yaml:"embed" mapstructure:"embed"`
	FileStore FileStoreConfig `yaml:"filestore" mapstructure:"filestore"`
	Notion    NotionConfig    `yaml:"notion" mapstructure:"notion"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the document store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// QueueConfig configures the message transport.
type QueueConfig struct {
	Transport string `yaml:"transport" mapstructure:"transport"`
	Region    string `yaml:"region" mapstructure:"region"`
	// QueueURLs maps topic name to SQS queue URL.
	QueueURLs map[string]string `yaml:"queue_urls" mapstructure:"queue_urls"`
	// WaitTimeSecs is the SQS long-poll receive wait.
	WaitTimeSecs int `yaml:"wait_time_secs" mapstructure:"wait_time_secs"`
}

// AnthropicConfig holds generation service settings.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// EmbedConfig holds embedding service settings.
type EmbedConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// FileStoreConfig holds file ingestion service settings.
type FileStoreConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NotionConfig holds the operator reporting database.
type NotionConfig struct {
	Token        string `yaml:"token" mapstructure:"token"`
	OperationsDB string `yaml:"operations_db" mapstructure:"operations_db"`
}

// IngestConfig configures document ingestion and batch polling.
type IngestConfig struct {
	FetchTimeoutSecs   int    `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	PollIntervalSecs   int    `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollMaxAttempts    int    `yaml:"poll_max_attempts" mapstructure:"poll_max_attempts"`
	ChunkMaxWords      int    `yaml:"chunk_max_words" mapstructure:"chunk_max_words"`
	ChunkOverlapWords  int    `yaml:"chunk_overlap_words" mapstructure:"chunk_overlap_words"`
	VendorCatalogStore string `yaml:"vendor_catalog_store" mapstructure:"vendor_catalog_store"`
}

// PipelineConfig configures stage behavior.
type PipelineConfig struct {
	MaxNewsItems       int `yaml:"max_news_items" mapstructure:"max_news_items"`
	MaxEvidenceItems   int `yaml:"max_evidence_items" mapstructure:"max_evidence_items"`
	MaxAnalysisChars   int `yaml:"max_analysis_chars" mapstructure:"max_analysis_chars"`
	MaxPriorCtxChars   int `yaml:"max_prior_ctx_chars" mapstructure:"max_prior_ctx_chars"`
	CompetitionContext int `yaml:"competition_context" mapstructure:"competition_context"`
	// MaxReceive is the delivery count after which a failing message is
	// reported as dead-lettered.
	MaxReceive int `yaml:"max_receive" mapstructure:"max_receive"`
}

// ServerConfig configures the HTTP trigger endpoint.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CUSTOMERINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("queue.transport", "sqs")
	v.SetDefault("queue.region", "eu-central-1")
	v.SetDefault("queue.wait_time_secs", 20)
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.requests_per_minute", 30)
	v.SetDefault("embed.model", "text-embedding-3-small")
	v.SetDefault("filestore.base_url", "https://api.openai.com/v1")
	v.SetDefault("ingest.fetch_timeout_secs", 8)
	v.SetDefault("ingest.poll_interval_secs", 10)
	v.SetDefault("ingest.poll_max_attempts", 30)
	v.SetDefault("ingest.chunk_max_words", 120)
	v.SetDefault("ingest.chunk_overlap_words", 25)
	v.SetDefault("pipeline.max_news_items", 12)
	v.SetDefault("pipeline.max_evidence_items", 12)
	v.SetDefault("pipeline.max_analysis_chars", 5000)
	v.SetDefault("pipeline.max_prior_ctx_chars", 1500)
	v.SetDefault("pipeline.competition_context", 3)
	v.SetDefault("pipeline.max_receive", 3)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
