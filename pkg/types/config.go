package types

import (
	"fmt"
	"time"
)

// Polling defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 30 * time.Minute
	DefaultClockSkew    = 60 * time.Second
	DefaultRetryBudget  = 3
)

// PollConfig controls one orchestration's poll loop. Supplied by the caller
// and validated before use.
type PollConfig struct {
	Interval           time.Duration `json:"interval"`
	MaxWait            time.Duration `json:"maxWait"`
	ClockSkew          time.Duration `json:"clockSkew"`
	RetryBudget        int           `json:"retryBudget"`
	CancelledIsFailure bool          `json:"cancelledIsFailure"`
}

// DefaultPollConfig returns a PollConfig with the package defaults applied.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    DefaultPollInterval,
		MaxWait:     DefaultMaxWait,
		ClockSkew:   DefaultClockSkew,
		RetryBudget: DefaultRetryBudget,
	}
}

// Validate checks the poll configuration for internal consistency.
func (c PollConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Interval)
	}
	if c.MaxWait <= c.Interval {
		return fmt.Errorf("max wait %s must exceed poll interval %s", c.MaxWait, c.Interval)
	}
	if c.ClockSkew < 0 {
		return fmt.Errorf("clock skew allowance must not be negative, got %s", c.ClockSkew)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("retry budget must not be negative, got %d", c.RetryBudget)
	}
	return nil
}

// PollSettings is the file-facing shape of PollConfig.
type PollSettings struct {
	PollIntervalSeconds int  `yaml:"pollIntervalSeconds,omitempty" json:"pollIntervalSeconds,omitempty"`
	MaxWaitMinutes      int  `yaml:"maxWaitMinutes,omitempty" json:"maxWaitMinutes,omitempty"`
	ClockSkewSeconds    int  `yaml:"clockSkewSeconds,omitempty" json:"clockSkewSeconds,omitempty"`
	RetryBudget         int  `yaml:"retryBudget,omitempty" json:"retryBudget,omitempty"`
	CancelledIsFailure  bool `yaml:"cancelledIsFailure,omitempty" json:"cancelledIsFailure,omitempty"`
}

// PollConfig converts the file-facing settings into a PollConfig, applying
// defaults for unset fields.
func (s PollSettings) PollConfig() PollConfig {
	cfg := DefaultPollConfig()
	if s.PollIntervalSeconds > 0 {
		cfg.Interval = time.Duration(s.PollIntervalSeconds) * time.Second
	}
	if s.MaxWaitMinutes > 0 {
		cfg.MaxWait = time.Duration(s.MaxWaitMinutes) * time.Minute
	}
	if s.ClockSkewSeconds > 0 {
		cfg.ClockSkew = time.Duration(s.ClockSkewSeconds) * time.Second
	}
	if s.RetryBudget > 0 {
		cfg.RetryBudget = s.RetryBudget
	}
	cfg.CancelledIsFailure = s.CancelledIsFailure
	return cfg
}

// BackendConfig declares one configured backend instance. Token-bearing
// fields hold secret references (env:NAME, file:/path, aws-sm:id, or a
// literal) resolved at load time.
type BackendConfig struct {
	Name        string      `yaml:"name" json:"name"`
	Kind        BackendKind `yaml:"kind" json:"kind"`
	BaseURL     string      `yaml:"baseUrl,omitempty" json:"baseUrl,omitempty"`
	Owner       string      `yaml:"owner,omitempty" json:"owner,omitempty"`
	Project     string      `yaml:"project,omitempty" json:"project,omitempty"`
	Username    string      `yaml:"username,omitempty" json:"username,omitempty"`
	Token       string      `yaml:"token,omitempty" json:"token,omitempty"`
	Region      string      `yaml:"region,omitempty" json:"region,omitempty"`
	ProjectID   string      `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	MaxInFlight int         `yaml:"maxInFlight,omitempty" json:"maxInFlight,omitempty"`
}

// AlertConfig declares one notice sink.
type AlertConfig struct {
	Type     SinkKind    `yaml:"type" json:"type"`
	MinLevel NoticeLevel `yaml:"minLevel,omitempty" json:"minLevel,omitempty"`
	// webhook
	URL string `yaml:"url,omitempty" json:"url,omitempty"`
	// file
	Path string `yaml:"path,omitempty" json:"path,omitempty"`
	// sns
	TopicARN string `yaml:"topicArn,omitempty" json:"topicArn,omitempty"`
	// eventbridge
	EventBus string `yaml:"eventBus,omitempty" json:"eventBus,omitempty"`
	// pubsub
	ProjectID string `yaml:"projectId,omitempty" json:"projectId,omitempty"`
	TopicID   string `yaml:"topicId,omitempty" json:"topicId,omitempty"`
	// s3
	Bucket string `yaml:"bucket,omitempty" json:"bucket,omitempty"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
}

// DynamoDBConfig configures the DynamoDB journal store.
type DynamoDBConfig struct {
	TableName   string `yaml:"tableName" json:"tableName"`
	Region      string `yaml:"region,omitempty" json:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"` // DynamoDB Local
	CreateTable bool   `yaml:"createTable,omitempty" json:"createTable,omitempty"`
}

// RedisConfig configures the Redis journal store.
type RedisConfig struct {
	Addr      string `yaml:"addr" json:"addr"`
	Password  string `yaml:"password,omitempty" json:"password,omitempty"`
	DB        int    `yaml:"db,omitempty" json:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty" json:"keyPrefix,omitempty"`
}

// PostgresConfig configures the Postgres journal store.
type PostgresConfig struct {
	DSN     string `yaml:"dsn" json:"dsn"`
	Migrate bool   `yaml:"migrate,omitempty" json:"migrate,omitempty"`
}

// FirestoreConfig configures the Firestore journal store.
type FirestoreConfig struct {
	ProjectID  string `yaml:"projectId" json:"projectId"`
	Collection string `yaml:"collection,omitempty" json:"collection,omitempty"`
	Emulator   string `yaml:"emulator,omitempty" json:"emulator,omitempty"`
}

// JournalConfig selects and configures the journal store.
type JournalConfig struct {
	Type      StoreKind        `yaml:"type,omitempty" json:"type,omitempty"`
	DynamoDB  *DynamoDBConfig  `yaml:"dynamodb,omitempty" json:"dynamodb,omitempty"`
	Redis     *RedisConfig     `yaml:"redis,omitempty" json:"redis,omitempty"`
	Postgres  *PostgresConfig  `yaml:"postgres,omitempty" json:"postgres,omitempty"`
	Firestore *FirestoreConfig `yaml:"firestore,omitempty" json:"firestore,omitempty"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	Addr         string `yaml:"addr,omitempty" json:"addr,omitempty"`
	APIKey       string `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	MaxBodyBytes int64  `yaml:"maxBodyBytes,omitempty" json:"maxBodyBytes,omitempty"`
}

// TelemetryConfig configures the OTLP trace/metric exporters.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Endpoint string `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty" json:"insecure,omitempty"`
}

// Config is the root configuration loaded from baton.yaml.
type Config struct {
	Defaults  PollSettings    `yaml:"defaults,omitempty" json:"defaults,omitempty"`
	Backends  []BackendConfig `yaml:"backends" json:"backends"`
	Alerts    []AlertConfig   `yaml:"alerts,omitempty" json:"alerts,omitempty"`
	Journal   JournalConfig   `yaml:"journal,omitempty" json:"journal,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty" json:"server,omitempty"`
	Telemetry TelemetryConfig `yaml:"telemetry,omitempty" json:"telemetry,omitempty"`
}
