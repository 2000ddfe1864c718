// Package config contains all knobs and defaults used to configure a load.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/jsonload/jsonload/internal/loader"
	"github.com/jsonload/jsonload/pkg/storage/dgraph"
	"github.com/jsonload/jsonload/pkg/upsert"
)

const (
	DefaultChunkSize   = loader.DefaultChunkSize
	DefaultConcurrency = loader.DefaultConcurrency
	DefaultMaxLineSize = loader.DefaultMaxLineSize

	DefaultConnectTimeout = 30 * time.Second

	DefaultMetricsAddr = "0.0.0.0:2112"
	DefaultOTLPAddr    = "0.0.0.0:4317"
)

// DatastoreConfig defines the target database.
type DatastoreConfig struct {
	// Engine is either 'dgraph' or 'memory'. The memory engine loads into an in-process
	// graph that is discarded on exit, which makes it a dry run.
	Engine string `validate:"oneof=dgraph memory"`
	// URI is the gRPC endpoint of a Dgraph Alpha.
	URI string

	Username  string
	Password  string
	Namespace uint64

	// ConnectTimeout bounds how long the startup health check keeps retrying.
	ConnectTimeout time.Duration `validate:"gte=0"`
}

// UpsertConfig selects deduplication keys. Keys and Patterns are mutually exclusive.
type UpsertConfig struct {
	// Keys are exact field names.
	Keys []string
	// Patterns are regular expressions matched against field names.
	Patterns []string
	// OpaqueTypes extends the GeoJSON type names treated as leaf values.
	OpaqueTypes []string
}

type RetryConfig struct {
	MinWait time.Duration `validate:"gte=0"`
	MaxWait time.Duration `validate:"gte=0"`
	// MaxAttempts caps retries of one transaction. Zero retries forever.
	MaxAttempts int `validate:"gte=0"`
}

type LogConfig struct {
	// Format is the log format to use in the log output (e.g. 'text' or 'json')
	Format string `validate:"oneof=text json"`

	// Level is the log level to use in the log output (e.g. 'none', 'debug', or 'info')
	Level string `validate:"oneof=none debug info warn error"`
}

type OTLPTraceConfig struct {
	Endpoint string
}

type TraceConfig struct {
	Enabled     bool
	OTLP        OTLPTraceConfig
	SampleRatio float64 `validate:"gte=0,lte=1"`
	ServiceName string
}

// MetricsConfig configures the prometheus endpoint served during the load.
type MetricsConfig struct {
	Enabled bool
	Addr    string `validate:"required_if=Enabled true"`
}

type Config struct {
	Datastore DatastoreConfig
	Upsert    UpsertConfig

	// ChunkSize is the number of documents committed per transaction.
	ChunkSize int `validate:"gt=0"`
	// Concurrency is the maximum number of transactions in flight.
	Concurrency int `validate:"gt=0"`
	Quiet       bool
	// Input is the file to read documents from, '-' for stdin.
	Input       string `validate:"required"`
	MaxLineSize int    `validate:"gt=0"`
	// RateLimit caps commit attempts per second. Zero means unlimited.
	RateLimit float64 `validate:"gte=0"`

	Retry   RetryConfig
	Log     LogConfig
	Trace   TraceConfig
	Metrics MetricsConfig
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Verify checks the configuration and returns the first problem found.
func (cfg *Config) Verify() error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("config '%s' is invalid: failed the '%s' check", configKey(fe.Namespace()), fieldTag(fe))
		}
		return err
	}

	if len(cfg.Upsert.Keys) > 0 && len(cfg.Upsert.Patterns) > 0 {
		return errors.New("config 'upsert.keys' and 'upsert.patterns' are mutually exclusive")
	}

	if _, err := upsert.NewPatternKeyMatcher(cfg.Upsert.Patterns); err != nil {
		return fmt.Errorf("config 'upsert.patterns': %w", err)
	}

	if cfg.Datastore.Engine == "dgraph" {
		if cfg.Datastore.URI == "" {
			return errors.New("config 'datastore.uri' is required for the dgraph engine")
		}
		if _, _, err := dgraph.ParseAddr(cfg.Datastore.URI); err != nil {
			return fmt.Errorf("config 'datastore.uri': %w", err)
		}
	}

	if cfg.Retry.MinWait > cfg.Retry.MaxWait {
		return fmt.Errorf(
			"config 'retry.minWait' (%s) cannot be greater than 'retry.maxWait' (%s)",
			cfg.Retry.MinWait,
			cfg.Retry.MaxWait,
		)
	}

	return nil
}

// KeyMatcher builds the deduplication key selection.
func (cfg *Config) KeyMatcher() (upsert.KeyMatcher, error) {
	return upsert.NewKeyMatcher(cfg.Upsert.Keys, cfg.Upsert.Patterns)
}

// Compiler builds the document compiler for this configuration.
func (cfg *Config) Compiler() (*upsert.Compiler, error) {
	keys, err := cfg.KeyMatcher()
	if err != nil {
		return nil, err
	}
	return upsert.NewCompiler(keys, upsert.NewClassifier(cfg.Upsert.OpaqueTypes...)), nil
}

func (cfg *Config) RetryPolicy() loader.RetryPolicy {
	return loader.RetryPolicy{
		MinWait:     cfg.Retry.MinWait,
		MaxWait:     cfg.Retry.MaxWait,
		MaxAttempts: cfg.Retry.MaxAttempts,
	}
}

func fieldTag(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// configKey turns a validator namespace such as 'Config.Retry.MinWait' into the
// configuration key 'retry.minWait'.
func configKey(namespace string) string {
	parts := strings.Split(namespace, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		switch {
		case p == "URI" || p == "OTLP":
			parts[i] = strings.ToLower(p)
		case p != "":
			r := []rune(p)
			r[0] = unicode.ToLower(r[0])
			parts[i] = string(r)
		}
	}
	return strings.Join(parts, ".")
}

func DefaultConfig() *Config {
	return &Config{
		Datastore: DatastoreConfig{
			Engine:         "dgraph",
			ConnectTimeout: DefaultConnectTimeout,
		},
		ChunkSize:   DefaultChunkSize,
		Concurrency: DefaultConcurrency,
		Input:       "-",
		MaxLineSize: DefaultMaxLineSize,
		Retry: RetryConfig{
			MinWait: loader.DefaultMinRetryWait,
			MaxWait: loader.DefaultMaxRetryWait,
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
		Trace: TraceConfig{
			Enabled:     false,
			OTLP:        OTLPTraceConfig{Endpoint: DefaultOTLPAddr},
			SampleRatio: 0.2,
			ServiceName: "jsonload",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    DefaultMetricsAddr,
		},
	}
}
