package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/84hero/launchpad-indexer/pkg/chain"
	"github.com/84hero/launchpad-indexer/pkg/rpc"
	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/spf13/viper"
)

// Environments selecting which start block applies.
const (
	EnvTest       = "test"
	EnvProduction = "production"
)

// Contract version names, also used as checkpoint keys.
const (
	VersionV1 = "V1"
	VersionV2 = "V2"
)

// Scanner defaults used when neither the config nor a chain preset sets a value.
const (
	DefaultConfirmations = 5
	DefaultChunkSize     = 250
	DefaultChunkDelay    = 5 * time.Second
	DefaultScanInterval  = 10
	DefaultMaxRetries    = 3
	DefaultRetryDelay    = 2 * time.Second
	DefaultBlockRetries  = 3
	DefaultPollInterval  = 3 * time.Second
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Project     string           `mapstructure:"project"`
	Environment string           `mapstructure:"environment"`
	Chain       string           `mapstructure:"chain"`
	Log         LogConfig        `mapstructure:"log"`
	Scanner     ScannerConfig    `mapstructure:"scanner"`
	Contracts   ContractsConfig  `mapstructure:"contracts"`
	Oracle      OracleConfig     `mapstructure:"oracle"`
	Checkpoint  CheckpointConfig `mapstructure:"checkpoint"`
	Sink        SinkConfig       `mapstructure:"sink"`
	Notify      NotifyConfig     `mapstructure:"notify"`
	Metrics     MetricsConfig    `mapstructure:"metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

type ScannerConfig struct {
	// Confirmations: blocks below the head that are never scanned
	Confirmations uint64        `mapstructure:"confirmations"`
	ChunkSize     uint64        `mapstructure:"chunk_size"`
	ChunkDelay    time.Duration `mapstructure:"chunk_delay"`
	// ScanInterval: a reconciliation scan runs every N blocks
	ScanInterval uint64        `mapstructure:"scan_interval"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryDelay   time.Duration `mapstructure:"retry_delay"`
	BlockRetries int           `mapstructure:"block_retries"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type ContractsConfig struct {
	V1 VersionConfig `mapstructure:"v1"`
	V2 VersionConfig `mapstructure:"v2"`
}

// VersionConfig describes one deployed launchpad contract version.
type VersionConfig struct {
	Name            string           `mapstructure:"-"`
	Address         string           `mapstructure:"address"`
	InactiveAddress string           `mapstructure:"inactive_address"`
	RPCURL          string           `mapstructure:"rpc_url"`
	WSURL           string           `mapstructure:"ws_url"`
	RPCNodes        []rpc.NodeConfig `mapstructure:"rpc_nodes"`

	// Start blocks are strings so that a missing value can be told apart from 0.
	StartBlockTest       string `mapstructure:"start_block_test"`
	StartBlockProduction string `mapstructure:"start_block_production"`

	// ToBlock bounds the first backfill phase, 0 disables it
	ToBlock uint64 `mapstructure:"to_block"`
}

type OracleConfig struct {
	Address  string           `mapstructure:"address"`
	RPCURL   string           `mapstructure:"rpc_url"`
	RPCNodes []rpc.NodeConfig `mapstructure:"rpc_nodes"`
}

type CheckpointConfig struct {
	Backend       string `mapstructure:"backend"` // file, redis, postgres, memory
	Path          string `mapstructure:"path"`
	DedupPath     string `mapstructure:"dedup_path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	PostgresURL   string `mapstructure:"postgres_url"`
	// Prefix: PG table prefix or Redis key prefix
	Prefix string `mapstructure:"prefix"`
}

type SinkConfig struct {
	PostgresURL string `mapstructure:"postgres_url"`
}

type NotifyConfig struct {
	Console  bool           `mapstructure:"console"`
	File     string         `mapstructure:"file"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
}

type WebhookConfig struct {
	URL            string        `mapstructure:"url"`
	Secret         string        `mapstructure:"secret"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	Async          bool          `mapstructure:"async"`
	BufferSize     int           `mapstructure:"buffer_size"`
	Workers        int           `mapstructure:"workers"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
	Mode     string `mapstructure:"mode"` // pubsub, list
}

type KafkaConfig struct {
	Brokers  []string `mapstructure:"brokers"`
	Topic    string   `mapstructure:"topic"`
	User     string   `mapstructure:"user"`
	Password string   `mapstructure:"password"`
}

type RabbitMQConfig struct {
	URL        string `mapstructure:"url"`
	Exchange   string `mapstructure:"exchange"`
	RoutingKey string `mapstructure:"routing_key"`
	QueueName  string `mapstructure:"queue_name"`
	Durable    bool   `mapstructure:"durable"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

// envKeys are bound explicitly so that a deployment can run from the environment alone.
var envKeys = []string{
	"project", "environment", "chain",
	"log.level", "log.format",
	"scanner.confirmations", "scanner.chunk_size", "scanner.chunk_delay", "scanner.scan_interval",
	"scanner.max_retries", "scanner.retry_delay", "scanner.block_retries", "scanner.poll_interval",
	"oracle.address", "oracle.rpc_url",
	"checkpoint.backend", "checkpoint.path", "checkpoint.dedup_path", "checkpoint.redis_addr",
	"checkpoint.redis_password", "checkpoint.redis_db", "checkpoint.postgres_url", "checkpoint.prefix",
	"sink.postgres_url",
	"notify.console", "notify.file",
	"notify.webhook.url", "notify.webhook.secret", "notify.webhook.max_attempts",
	"notify.webhook.initial_backoff", "notify.webhook.max_backoff", "notify.webhook.async",
	"notify.webhook.buffer_size", "notify.webhook.workers",
	"notify.redis.addr", "notify.redis.password", "notify.redis.db", "notify.redis.channel", "notify.redis.mode",
	"notify.kafka.brokers", "notify.kafka.topic", "notify.kafka.user", "notify.kafka.password",
	"notify.rabbitmq.url", "notify.rabbitmq.exchange", "notify.rabbitmq.routing_key",
	"notify.rabbitmq.queue_name", "notify.rabbitmq.durable",
	"metrics.enabled", "metrics.addr", "metrics.path",
}

var versionKeys = []string{
	"address", "inactive_address", "rpc_url", "ws_url",
	"start_block_test", "start_block_production", "to_block",
}

// Load reads the configuration from an optional YAML file and the INDEXER_* environment.
// An empty path loads from the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}
	for _, version := range []string{"v1", "v2"} {
		for _, k := range versionKeys {
			_ = v.BindEnv("contracts." + version + "." + k)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults(v)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults(v *viper.Viper) {
	c.Contracts.V1.Name = VersionV1
	c.Contracts.V2.Name = VersionV2

	if c.Project == "" {
		c.Project = "launchpad-indexer"
	}
	if c.Environment == "" {
		c.Environment = EnvProduction
	}
	c.Environment = strings.ToLower(c.Environment)

	preset, hasPreset := chain.Get(c.Chain)

	if !v.IsSet("scanner.confirmations") {
		c.Scanner.Confirmations = DefaultConfirmations
		if hasPreset {
			c.Scanner.Confirmations = preset.Confirmations
		}
	}
	if c.Scanner.ChunkSize == 0 {
		c.Scanner.ChunkSize = DefaultChunkSize
		if hasPreset && preset.ChunkSize > 0 {
			c.Scanner.ChunkSize = preset.ChunkSize
		}
	}
	if !v.IsSet("scanner.chunk_delay") {
		c.Scanner.ChunkDelay = DefaultChunkDelay
	}
	if c.Scanner.ScanInterval == 0 {
		c.Scanner.ScanInterval = DefaultScanInterval
	}
	if c.Scanner.MaxRetries <= 0 {
		c.Scanner.MaxRetries = DefaultMaxRetries
	}
	if !v.IsSet("scanner.retry_delay") {
		c.Scanner.RetryDelay = DefaultRetryDelay
	}
	if c.Scanner.BlockRetries <= 0 {
		c.Scanner.BlockRetries = DefaultBlockRetries
	}
	if c.Scanner.PollInterval == 0 {
		c.Scanner.PollInterval = DefaultPollInterval
		if hasPreset && preset.BlockTime > 0 {
			c.Scanner.PollInterval = preset.BlockTime
		}
	}

	if c.Checkpoint.Backend == "" {
		c.Checkpoint.Backend = "file"
	}
	if c.Checkpoint.Path == "" {
		c.Checkpoint.Path = "data/checkpoint.json"
	}
	if c.Checkpoint.DedupPath == "" {
		c.Checkpoint.DedupPath = "data/processed.json"
	}
	if c.Checkpoint.Prefix == "" {
		c.Checkpoint.Prefix = strings.ReplaceAll(c.Project, "-", "_") + "_"
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
}

// Validate reports configuration errors that must stop the process.
func (c *Config) Validate() error {
	if c.Environment != EnvTest && c.Environment != EnvProduction {
		return fmt.Errorf("%w: unknown environment %q", ErrInvalidConfig, c.Environment)
	}
	for _, vc := range c.Versions() {
		if _, err := c.StartBlock(vc); err != nil {
			return err
		}
		if vc.Address != "" && !common.IsHexAddress(vc.Address) {
			return fmt.Errorf("%w: %s address %q is not a hex address", ErrInvalidConfig, vc.Name, vc.Address)
		}
		if vc.InactiveAddress != "" && !common.IsHexAddress(vc.InactiveAddress) {
			return fmt.Errorf("%w: %s inactive address %q is not a hex address", ErrInvalidConfig, vc.Name, vc.InactiveAddress)
		}
		if vc.Active() && len(vc.Nodes()) == 0 {
			return fmt.Errorf("%w: %s is active but has no rpc endpoint", ErrInvalidConfig, vc.Name)
		}
	}
	if c.Oracle.Address != "" && !common.IsHexAddress(c.Oracle.Address) {
		return fmt.Errorf("%w: oracle address %q is not a hex address", ErrInvalidConfig, c.Oracle.Address)
	}
	switch c.Checkpoint.Backend {
	case "file", "memory", "redis", "postgres":
	default:
		return fmt.Errorf("%w: unknown checkpoint backend %q", ErrInvalidConfig, c.Checkpoint.Backend)
	}
	return nil
}

// Versions returns both contract versions in V1, V2 order.
func (c *Config) Versions() []VersionConfig {
	return []VersionConfig{c.Contracts.V1, c.Contracts.V2}
}

// StartBlock resolves the configured start block of a version for the active environment.
func (c *Config) StartBlock(vc VersionConfig) (uint64, error) {
	raw := vc.StartBlockProduction
	key := "start_block_production"
	if c.Environment == EnvTest {
		raw = vc.StartBlockTest
		key = "start_block_test"
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s %s is required", ErrInvalidConfig, vc.Name, key)
	}
	n, ok := gethmath.ParseUint64(raw)
	if !ok {
		return 0, fmt.Errorf("%w: %s %s %q is not a non-negative integer", ErrInvalidConfig, vc.Name, key, raw)
	}
	return n, nil
}

// Nodes returns the RPC nodes of the version, including the rpc_url shortcut.
func (vc VersionConfig) Nodes() []rpc.NodeConfig {
	return mergeNodes(vc.RPCURL, vc.RPCNodes)
}

// Nodes returns the RPC nodes of the oracle, including the rpc_url shortcut.
func (oc OracleConfig) Nodes() []rpc.NodeConfig {
	return mergeNodes(oc.RPCURL, oc.RPCNodes)
}

func mergeNodes(url string, nodes []rpc.NodeConfig) []rpc.NodeConfig {
	out := make([]rpc.NodeConfig, 0, len(nodes)+1)
	if url != "" {
		out = append(out, rpc.NodeConfig{URL: url, Priority: 10})
	}
	for _, n := range nodes {
		if n.URL != "" {
			out = append(out, n)
		}
	}
	return out
}

// ContractAddress returns the parsed contract address.
func (vc VersionConfig) ContractAddress() common.Address {
	return common.HexToAddress(vc.Address)
}

// Sentinel returns the address that marks this version as disabled.
func (vc VersionConfig) Sentinel() common.Address {
	if vc.InactiveAddress == "" {
		return common.Address{}
	}
	return common.HexToAddress(vc.InactiveAddress)
}

// Active reports whether the version has a real contract to index.
func (vc VersionConfig) Active() bool {
	if vc.Address == "" {
		return false
	}
	addr := vc.ContractAddress()
	return addr != (common.Address{}) && addr != vc.Sentinel()
}
