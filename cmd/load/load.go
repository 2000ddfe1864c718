// Package load contains the command that loads documents into the datastore.
package load

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fatih/color"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/jsonload/jsonload/internal/config"
	"github.com/jsonload/jsonload/internal/loader"
	"github.com/jsonload/jsonload/internal/progress"
	"github.com/jsonload/jsonload/pkg/logger"
	"github.com/jsonload/jsonload/pkg/storage"
	"github.com/jsonload/jsonload/pkg/storage/dgraph"
	"github.com/jsonload/jsonload/pkg/storage/memory"
	"github.com/jsonload/jsonload/pkg/telemetry"
)

func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load newline delimited JSON documents",
		Long: `Load newline delimited JSON documents.

Documents are read from standard input, or from --input, one JSON object per line.`,
		RunE: runLoad,
		Args: cobra.NoArgs,
	}

	bindLoadFlags(cmd)

	return cmd
}

// ReadConfig returns the load configuration from config.yaml, the environment and the
// command line flags, on top of the defaults.
func ReadConfig() (*config.Config, error) {
	cfg := config.DefaultConfig()

	viper.SetTypeByDefaultValue(true)
	err := viper.ReadInConfig()
	if err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := ReadConfig()
	if err != nil {
		return err
	}

	if err := cfg.Verify(); err != nil {
		return err
	}

	log := logger.MustNewLogger(cfg.Log.Format, cfg.Log.Level)
	defer func() {
		_ = log.Sync()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return Run(ctx, cfg, log, cmd.InOrStdin(), cmd.ErrOrStderr())
}

// Run loads the configured input. stdin is used when the input is '-'; progress and
// the final summary are written to stderr.
func Run(ctx context.Context, cfg *config.Config, baseLogger logger.Logger, stdin io.Reader, stderr io.Writer) error {
	runID := ulid.Make().String()
	log := baseLogger.With(zap.String("run_id", runID))

	if cfg.Trace.Enabled {
		log.Info(fmt.Sprintf("🕵 tracing enabled: sampling ratio is %v and sending traces to '%s'", cfg.Trace.SampleRatio, cfg.Trace.OTLP.Endpoint))

		tp := telemetry.MustNewTracerProvider(
			telemetry.WithOTLPEndpoint(cfg.Trace.OTLP.Endpoint),
			telemetry.WithServiceName(cfg.Trace.ServiceName),
			telemetry.WithSamplingRatio(cfg.Trace.SampleRatio),
		)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.ForceFlush(shutdownCtx); err != nil {
				log.Warn("failed to flush traces", zap.Error(err))
			}
			_ = tp.Shutdown(shutdownCtx)
		}()
	}

	compiler, err := cfg.Compiler()
	if err != nil {
		return err
	}

	input, closeInput, err := openInput(cfg.Input, stdin)
	if err != nil {
		return err
	}
	defer closeInput()

	upserter, dryRun, err := openDatastore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer upserter.Close()

	log.Info("starting load",
		zap.String("engine", cfg.Datastore.Engine),
		zap.String("input", cfg.Input),
		zap.Int("chunk_size", cfg.ChunkSize),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Strings("upsert_keys", cfg.Upsert.Keys),
		zap.Strings("upsert_patterns", cfg.Upsert.Patterns),
	)

	executor := loader.NewExecutor(upserter,
		loader.WithExecutorLogger(log),
		loader.WithRetryPolicy(cfg.RetryPolicy()),
		loader.WithRateLimit(cfg.RateLimit),
	)

	pipeline := loader.NewPipeline(compiler, executor,
		loader.WithChunkSize(cfg.ChunkSize),
		loader.WithConcurrency(cfg.Concurrency),
		loader.WithMaxLineSize(cfg.MaxLineSize),
		loader.WithReporter(progress.NewBar(stderr, cfg.Quiet, progress.WithThrottle(renderThrottle(stderr)))),
		loader.WithLogger(log),
	)

	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer stopMetrics()
	g, gctx := errgroup.WithContext(metricsCtx)

	if cfg.Metrics.Enabled {
		log.Info(fmt.Sprintf("📈 starting prometheus metrics server on '%s'", cfg.Metrics.Addr))
		g.Go(func() error {
			if err := telemetry.NewMetricsServer(cfg.Metrics.Addr).Run(gctx); err != nil {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	var totals loader.Totals
	g.Go(func() error {
		defer stopMetrics()

		var err error
		totals, err = pipeline.Run(gctx, input)
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("load failed", zap.Error(err))
		return err
	}

	if dryRun != nil {
		log.Info("dry run complete", zap.Int("nodes", len(dryRun.Nodes())))
	}

	if !cfg.Quiet {
		_, _ = color.New(color.FgGreen).Fprintf(stderr,
			"Loaded %d documents (%d N-Quads) in %d transactions, %d aborts\n",
			totals.Docs, totals.NQuads, totals.Txns, totals.Aborts)
	}

	return nil
}

// openDatastore returns the upserter for the configured engine. For the memory engine
// the backend is returned as well so the caller can report what a load would write.
func openDatastore(ctx context.Context, cfg *config.Config, log logger.Logger) (storage.Upserter, *memory.MemoryBackend, error) {
	switch cfg.Datastore.Engine {
	case "memory":
		backend := memory.New()
		return backend, backend, nil
	case "dgraph":
		client, err := dgraph.NewClient(ctx, dgraph.ClientConfig{
			Addr:             cfg.Datastore.URI,
			KeepaliveTime:    30 * time.Second,
			KeepaliveTimeout: 10 * time.Second,
			Username:         cfg.Datastore.Username,
			Password:         cfg.Datastore.Password,
			Namespace:        cfg.Datastore.Namespace,
		})
		if err != nil {
			return nil, nil, err
		}

		policy := backoff.NewExponentialBackOff()
		policy.MaxElapsedTime = cfg.Datastore.ConnectTimeout
		err = backoff.RetryNotify(func() error {
			return client.Ping(ctx)
		}, backoff.WithContext(policy, ctx), func(err error, wait time.Duration) {
			log.Warn("waiting for datastore", zap.Duration("wait", wait), zap.Error(err))
		})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("failed to initialize datastore connection: %w", err)
		}

		return client, nil, nil
	default:
		return nil, nil, fmt.Errorf("'%s' is not a supported datastore engine", cfg.Datastore.Engine)
	}
}

func openInput(path string, stdin io.Reader) (io.Reader, func(), error) {
	if path == "-" {
		return stdin, func() {}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}

// renderThrottle redraws the indicator often on a terminal and rarely otherwise, so
// redirected output stays readable.
func renderThrottle(w io.Writer) time.Duration {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return 100 * time.Millisecond
	}
	return 2 * time.Second
}
