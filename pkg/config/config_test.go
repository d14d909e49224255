package config

import (
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpFile.Name()) })

	_, err = tmpFile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpFile.Close())
	return tmpFile.Name()
}

const baseConfig = `
project: "test-proj"
environment: "production"
scanner:
  chunk_size: 100
  chunk_delay: "1s"
contracts:
  v1:
    address: "0x1111111111111111111111111111111111111111"
    rpc_url: "http://localhost:8545"
    start_block_production: "1000"
    start_block_test: "10"
    to_block: 5000
  v2:
    address: "0x2222222222222222222222222222222222222222"
    rpc_nodes:
      - url: "http://localhost:8546"
        priority: 5
        rate_limit: 10
    start_block_production: "0x7d0"
oracle:
  address: "0x3333333333333333333333333333333333333333"
  rpc_url: "http://localhost:8547"
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, baseConfig))
	require.NoError(t, err)

	assert.Equal(t, "test-proj", cfg.Project)
	assert.Equal(t, EnvProduction, cfg.Environment)
	assert.Equal(t, uint64(100), cfg.Scanner.ChunkSize)
	assert.Equal(t, 1*time.Second, cfg.Scanner.ChunkDelay)

	v1, v2 := cfg.Contracts.V1, cfg.Contracts.V2
	assert.Equal(t, VersionV1, v1.Name)
	assert.Equal(t, VersionV2, v2.Name)
	assert.Equal(t, uint64(5000), v1.ToBlock)
	assert.True(t, v1.Active())

	start, err := cfg.StartBlock(v1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), start)

	start, err = cfg.StartBlock(v2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2000), start)

	nodes := v2.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, 10.0, nodes[0].RateLimit)
	assert.Len(t, cfg.Oracle.Nodes(), 1)

	_, err = Load("non_existent_file.yaml")
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "invalid_yaml: [ unclosed bracket"))
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
contracts:
  v1:
    start_block_production: "0"
  v2:
    start_block_production: "0"
`))
	require.NoError(t, err)

	assert.Equal(t, "launchpad-indexer", cfg.Project)
	assert.Equal(t, uint64(DefaultConfirmations), cfg.Scanner.Confirmations)
	assert.Equal(t, uint64(DefaultChunkSize), cfg.Scanner.ChunkSize)
	assert.Equal(t, DefaultChunkDelay, cfg.Scanner.ChunkDelay)
	assert.Equal(t, uint64(DefaultScanInterval), cfg.Scanner.ScanInterval)
	assert.Equal(t, DefaultMaxRetries, cfg.Scanner.MaxRetries)
	assert.Equal(t, DefaultRetryDelay, cfg.Scanner.RetryDelay)
	assert.Equal(t, "file", cfg.Checkpoint.Backend)
	assert.Equal(t, "launchpad_indexer_", cfg.Checkpoint.Prefix)

	// No address: both versions are inactive and need no endpoint
	assert.False(t, cfg.Contracts.V1.Active())
	assert.False(t, cfg.Contracts.V2.Active())
}

func TestLoad_ChainPreset(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
chain: "bsc-mainnet"
contracts:
  v1: {start_block_production: "1"}
  v2: {start_block_production: "1"}
`))
	require.NoError(t, err)
	assert.Equal(t, uint64(15), cfg.Scanner.Confirmations)
	assert.Equal(t, uint64(200), cfg.Scanner.ChunkSize)
	assert.Equal(t, 3*time.Second, cfg.Scanner.PollInterval)
}

func TestLoad_ExplicitZeroConfirmations(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scanner:
  confirmations: 0
  chunk_delay: 0s
contracts:
  v1: {start_block_production: "1"}
  v2: {start_block_production: "1"}
`))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cfg.Scanner.Confirmations)
	assert.Equal(t, time.Duration(0), cfg.Scanner.ChunkDelay)
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("INDEXER_ENVIRONMENT", "test")
	t.Setenv("INDEXER_CONTRACTS_V1_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("INDEXER_CONTRACTS_V1_RPC_URL", "http://localhost:8545")
	t.Setenv("INDEXER_CONTRACTS_V1_START_BLOCK_TEST", "42")
	t.Setenv("INDEXER_CONTRACTS_V2_START_BLOCK_TEST", "7")
	t.Setenv("INDEXER_CONTRACTS_V2_TO_BLOCK", "900")
	t.Setenv("INDEXER_SCANNER_CHUNK_SIZE", "999")
	t.Setenv("INDEXER_NOTIFY_KAFKA_BROKERS", "a:9092,b:9092")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvTest, cfg.Environment)
	assert.Equal(t, uint64(999), cfg.Scanner.ChunkSize)
	assert.Equal(t, uint64(900), cfg.Contracts.V2.ToBlock)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Notify.Kafka.Brokers)

	start, err := cfg.StartBlock(cfg.Contracts.V1)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), start)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	t.Setenv("INDEXER_PROJECT", "env-project")
	t.Setenv("INDEXER_SCANNER_CHUNK_SIZE", "50")

	cfg, err := Load(writeConfig(t, baseConfig))
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.Project)
	assert.Equal(t, uint64(50), cfg.Scanner.ChunkSize)
}

func TestValidate_StartBlock(t *testing.T) {
	// Missing start block for the active environment is fatal
	_, err := Load(writeConfig(t, `
contracts:
  v1: {start_block_test: "1"}
  v2: {start_block_production: "1"}
`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "V1 start_block_production is required")

	// Negative values are rejected
	_, err = Load(writeConfig(t, `
contracts:
  v1: {start_block_production: "-5"}
  v2: {start_block_production: "1"}
`))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load(writeConfig(t, `
contracts:
  v1: {start_block_production: "abc"}
  v2: {start_block_production: "1"}
`))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]string{
		"environment": `
environment: staging
contracts: {v1: {start_block_production: "1"}, v2: {start_block_production: "1"}}`,
		"no endpoint": `
contracts:
  v1: {address: "0x1111111111111111111111111111111111111111", start_block_production: "1"}
  v2: {start_block_production: "1"}`,
		"bad address": `
contracts:
  v1: {address: "not-an-address", start_block_production: "1"}
  v2: {start_block_production: "1"}`,
		"backend": `
checkpoint: {backend: etcd}
contracts: {v1: {start_block_production: "1"}, v2: {start_block_production: "1"}}`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestVersionConfig_Active(t *testing.T) {
	vc := VersionConfig{Address: "0x1111111111111111111111111111111111111111"}
	assert.True(t, vc.Active())

	vc.InactiveAddress = vc.Address
	assert.False(t, vc.Active())

	vc = VersionConfig{Address: common.Address{}.Hex()}
	assert.False(t, vc.Active())
	assert.Equal(t, common.Address{}, vc.Sentinel())
}
