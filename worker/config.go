package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/snow-ghost/bindopt/core"
	"github.com/snow-ghost/bindopt/oracle"
	"github.com/snow-ghost/bindopt/pkg/limiter"
	"github.com/snow-ghost/bindopt/pkg/logging"
	"github.com/snow-ghost/bindopt/pkg/tracing"
	"github.com/snow-ghost/bindopt/residue"
	"github.com/snow-ghost/bindopt/worker/mutate"
	"github.com/snow-ghost/bindopt/worker/selector"
)

// RunConfig holds everything needed to build and run one optimization.
type RunConfig struct {
	SeedSequence string `yaml:"seed_sequence" toml:"seed_sequence" json:"seed_sequence"`
	Target       string `yaml:"target" toml:"target" json:"target"`
	WindowStart  int    `yaml:"window_start" toml:"window_start" json:"window_start"`
	WindowEnd    int    `yaml:"window_end" toml:"window_end" json:"window_end"`
	NumSeeds     int    `yaml:"num_seeds" toml:"num_seeds" json:"num_seeds"`
	Generations  int    `yaml:"generations" toml:"generations" json:"generations"`
	Seed         int64  `yaml:"seed" toml:"seed" json:"seed"`
	Workers      int    `yaml:"workers" toml:"workers" json:"workers"`

	Generator string            `yaml:"generator" toml:"generator" json:"generator"`
	BatchSize int               `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	Edits     mutate.EditConfig `yaml:"edits" toml:"edits" json:"edits"`
	Selection selector.Config   `yaml:"selection" toml:"selection" json:"selection"`

	Oracle    OracleConfig   `yaml:"oracle" toml:"oracle" json:"oracle"`
	Residue   ResidueConfig  `yaml:"residue" toml:"residue" json:"residue"`
	Snapshots SnapshotConfig `yaml:"snapshots" toml:"snapshots" json:"snapshots"`
	Output    OutputConfig   `yaml:"output" toml:"output" json:"output"`
	Server    ServerConfig   `yaml:"server" toml:"server" json:"-"`
	Logging   logging.Config `yaml:"logging" toml:"logging" json:"-"`
	Tracing   tracing.Config `yaml:"tracing" toml:"tracing" json:"-"`
}

// OracleConfig selects and configures the fitness oracle.
type OracleConfig struct {
	// Type is one of constant, length, http, embedding, wasm.
	Type      string                 `yaml:"type" toml:"type" json:"type"`
	Constant  float64                `yaml:"constant" toml:"constant" json:"constant"`
	BatchSize int                    `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
	CacheSize int                    `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	HTTP      oracle.HTTPConfig      `yaml:"http" toml:"http" json:"http"`
	Embedding oracle.EmbeddingConfig `yaml:"embedding" toml:"embedding" json:"embedding"`
	WASM      oracle.WASMConfig      `yaml:"wasm" toml:"wasm" json:"wasm"`
	Policy    limiter.Policy         `yaml:"policy" toml:"policy" json:"-"`
}

// ResidueConfig selects and configures the residue-distribution oracle used
// by the oracle-guided generators.
type ResidueConfig struct {
	// Type is http or profile.
	Type      string             `yaml:"type" toml:"type" json:"type"`
	HTTP      residue.HTTPConfig `yaml:"http" toml:"http" json:"http"`
	Profile   map[string]float64 `yaml:"profile" toml:"profile" json:"profile"`
	CacheSize int                `yaml:"cache_size" toml:"cache_size" json:"cache_size"`
	Policy    limiter.Policy     `yaml:"policy" toml:"policy" json:"-"`
}

// SnapshotConfig configures per-generation persistence.
type SnapshotConfig struct {
	Dir    string `yaml:"dir" toml:"dir" json:"dir"`
	Format string `yaml:"format" toml:"format" json:"format"` // csv or sqlite
	SQLite string `yaml:"sqlite_path" toml:"sqlite_path" json:"sqlite_path"`
}

// OutputConfig names the files a CLI run writes at the end.
type OutputConfig struct {
	Population string `yaml:"population" toml:"population" json:"population"`
	Acceptance string `yaml:"acceptance" toml:"acceptance" json:"acceptance"`
}

// ServerConfig configures the HTTP worker.
type ServerConfig struct {
	Addr        string        `yaml:"addr" toml:"addr"`
	MetricsAddr string        `yaml:"metrics_addr" toml:"metrics_addr"`
	JobTimeout  time.Duration `yaml:"job_timeout" toml:"job_timeout"`
}

// Generator type names. The legacy labels are accepted as aliases.
const (
	GeneratorEdit                 = "edit"
	GeneratorOracleSequential     = "oracle-sequential"
	GeneratorOracleSimultaneous   = "oracle-simultaneous"
	generatorAliasRandom          = "random"
	generatorAliasESMRandom       = "esm-random"
	generatorAliasESMSimultaneous = "esm-simultaneous-random"
)

// NormalizeGenerator maps a generator name or alias to its canonical name.
func NormalizeGenerator(name string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", GeneratorEdit, generatorAliasRandom:
		return GeneratorEdit, nil
	case GeneratorOracleSequential, generatorAliasESMRandom:
		return GeneratorOracleSequential, nil
	case GeneratorOracleSimultaneous, generatorAliasESMSimultaneous:
		return GeneratorOracleSimultaneous, nil
	default:
		return "", fmt.Errorf("generator must be one of %s, %s, %s (or random, esm-random, esm-simultaneous-random), got %q",
			GeneratorEdit, GeneratorOracleSequential, GeneratorOracleSimultaneous, name)
	}
}

// DefaultRunConfig returns the defaults every file and environment override
// is applied on top of.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		NumSeeds:    1,
		Generations: 30,
		Generator:   GeneratorEdit,
		BatchSize:   mutate.DefaultBatchSize,
		Edits:       mutate.DefaultEditConfig(),
		Selection:   selector.DefaultConfig(),
		Oracle: OracleConfig{
			Type:      "http",
			BatchSize: 16,
			CacheSize: 100000,
			Policy:    limiter.DefaultPolicy(),
		},
		Residue: ResidueConfig{
			Type:      "http",
			CacheSize: 10000,
			Policy:    limiter.DefaultPolicy(),
		},
		Snapshots: SnapshotConfig{Format: "csv"},
		Output: OutputConfig{
			Population: "optimized.csv",
			Acceptance: "acceptance_rates.csv",
		},
		Server: ServerConfig{
			Addr:       ":8081",
			JobTimeout: 30 * time.Minute,
		},
		Logging: logging.DefaultConfig(),
		Tracing: tracing.Config{ServiceName: "bindopt"},
	}
}

// LoadRunConfig reads path over the defaults (YAML, or TOML for a .toml
// extension) and then applies BINDOPT_* environment overrides. An empty path
// skips the file.
func LoadRunConfig(path string) (RunConfig, error) {
	config := DefaultRunConfig()
	if path != "" {
		// maps decode by merging, so a file listing only some edit counts
		// would otherwise keep the default keys
		defaults := config.Edits
		config.Edits.EditCounts, config.Edits.EditTypes = nil, nil

		data, err := os.ReadFile(path)
		if err != nil {
			return RunConfig{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".toml":
			if _, err := toml.Decode(string(data), &config); err != nil {
				return RunConfig{}, fmt.Errorf("failed to parse TOML config: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, &config); err != nil {
				return RunConfig{}, fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}

		if len(config.Edits.EditCounts) == 0 {
			config.Edits.EditCounts = defaults.EditCounts
		}
		if len(config.Edits.EditTypes) == 0 {
			config.Edits.EditTypes = defaults.EditTypes
		}
	}
	config.ApplyEnv()
	return config, nil
}

// ApplyEnv overrides fields from BINDOPT_* environment variables.
func (c *RunConfig) ApplyEnv() {
	c.SeedSequence = getEnv("BINDOPT_SEED_SEQUENCE", c.SeedSequence)
	c.Target = getEnv("BINDOPT_TARGET", c.Target)
	c.WindowStart = getEnvInt("BINDOPT_WINDOW_START", c.WindowStart)
	c.WindowEnd = getEnvInt("BINDOPT_WINDOW_END", c.WindowEnd)
	c.NumSeeds = getEnvInt("BINDOPT_NUM_SEEDS", c.NumSeeds)
	c.Generations = getEnvInt("BINDOPT_GENERATIONS", c.Generations)
	c.Seed = getEnvInt64("BINDOPT_SEED", c.Seed)
	c.Workers = getEnvInt("BINDOPT_WORKERS", c.Workers)
	c.Generator = getEnv("BINDOPT_GENERATOR", c.Generator)
	c.BatchSize = getEnvInt("BINDOPT_BATCH_SIZE", c.BatchSize)

	c.Selection.Objective = core.Objective(getEnv("BINDOPT_OBJECTIVE", string(c.Selection.Objective)))
	c.Selection.Temperature = getEnvFloat("BINDOPT_TEMPERATURE", c.Selection.Temperature)
	c.Selection.TemperatureDecay = getEnvFloat("BINDOPT_TEMPERATURE_DECAY", c.Selection.TemperatureDecay)

	c.Oracle.Type = getEnv("BINDOPT_ORACLE_TYPE", c.Oracle.Type)
	c.Oracle.HTTP.BaseURL = getEnv("BINDOPT_ORACLE_URL", c.Oracle.HTTP.BaseURL)
	c.Oracle.HTTP.APIKey = getEnv("BINDOPT_ORACLE_API_KEY", c.Oracle.HTTP.APIKey)
	c.Oracle.HTTP.Timeout = getEnvDuration("BINDOPT_ORACLE_TIMEOUT", c.Oracle.HTTP.Timeout)
	c.Oracle.Embedding.BaseURL = getEnv("BINDOPT_EMBEDDING_URL", c.Oracle.Embedding.BaseURL)
	c.Oracle.Embedding.Model = getEnv("BINDOPT_EMBEDDING_MODEL", c.Oracle.Embedding.Model)
	c.Oracle.Embedding.HeadPath = getEnv("BINDOPT_EMBEDDING_HEAD", c.Oracle.Embedding.HeadPath)
	c.Oracle.WASM.Path = getEnv("BINDOPT_WASM_PLUGIN", c.Oracle.WASM.Path)

	c.Residue.Type = getEnv("BINDOPT_RESIDUE_TYPE", c.Residue.Type)
	c.Residue.HTTP.BaseURL = getEnv("BINDOPT_RESIDUE_URL", c.Residue.HTTP.BaseURL)
	c.Residue.HTTP.APIKey = getEnv("BINDOPT_RESIDUE_API_KEY", c.Residue.HTTP.APIKey)

	c.Snapshots.Dir = getEnv("BINDOPT_SNAPSHOT_DIR", c.Snapshots.Dir)
	c.Snapshots.Format = getEnv("BINDOPT_SNAPSHOT_FORMAT", c.Snapshots.Format)
	c.Snapshots.SQLite = getEnv("BINDOPT_SNAPSHOT_SQLITE", c.Snapshots.SQLite)
	c.Output.Population = getEnv("BINDOPT_OUTPUT", c.Output.Population)
	c.Output.Acceptance = getEnv("BINDOPT_ACCEPTANCE_OUTPUT", c.Output.Acceptance)

	c.Server.Addr = getEnv("BINDOPT_ADDR", c.Server.Addr)
	c.Server.MetricsAddr = getEnv("BINDOPT_METRICS_ADDR", c.Server.MetricsAddr)
	c.Server.JobTimeout = getEnvDuration("BINDOPT_JOB_TIMEOUT", c.Server.JobTimeout)
	c.Logging.Level = getEnv("BINDOPT_LOG_LEVEL", c.Logging.Level)
	c.Logging.Format = getEnv("BINDOPT_LOG_FORMAT", c.Logging.Format)
	c.Tracing.JaegerEndpoint = getEnv("BINDOPT_JAEGER_ENDPOINT", c.Tracing.JaegerEndpoint)
}

// Validate checks the fields needed to start a run from a seed sequence.
func (c *RunConfig) Validate() error {
	switch {
	case c.SeedSequence == "":
		return fmt.Errorf("seed sequence is required")
	case c.Target == "":
		return fmt.Errorf("target sequence is required")
	case c.NumSeeds < 1:
		return fmt.Errorf("num_seeds should be positive, got %d", c.NumSeeds)
	case c.Generations < 0:
		return fmt.Errorf("generations should be non-negative, got %d", c.Generations)
	}
	if _, err := core.WindowMask(len(c.SeedSequence), c.WindowStart, c.WindowEnd); err != nil {
		return err
	}
	if _, err := NormalizeGenerator(c.Generator); err != nil {
		return err
	}
	if _, err := core.ParseObjective(string(c.Selection.Objective)); err != nil {
		return err
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
