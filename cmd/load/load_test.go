package load

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/jsonload/jsonload/internal/config"
	"github.com/jsonload/jsonload/pkg/logger"
	"github.com/jsonload/jsonload/pkg/upsert"
)

const people = `{"name":"Alice","dept":{"name":"Eng"}}
{"name":"Bob","dept":{"name":"Eng"}}
{"name":"Carol","age":41}
`

func memoryConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Datastore.Engine = "memory"
	cfg.Upsert.Keys = []string{"name"}
	cfg.Retry.MinWait = 0
	cfg.Retry.MaxWait = 0
	return cfg
}

func writeInput(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestRunDryRunFromStdin(t *testing.T) {
	var stderr bytes.Buffer
	log, logs := logger.NewObserverLogger("info")

	err := Run(context.Background(), memoryConfig(), log, strings.NewReader(people), &stderr)
	require.NoError(t, err)

	require.Contains(t, stderr.String(), "Loaded 3 documents (6 N-Quads) in 1 transactions, 0 aborts")
	require.Equal(t, 1, logs.FilterMessage("starting load").Len())

	done := logs.FilterMessage("dry run complete").All()
	require.Len(t, done, 1)
	// Both documents look up "Eng" in the same transaction, so each creates its own node.
	require.Equal(t, int64(5), done[0].ContextMap()["nodes"])
	require.NotEmpty(t, done[0].ContextMap()["run_id"])
}

func TestRunReadsInputFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.Input = writeInput(t, people)
	cfg.ChunkSize = 1

	var stderr bytes.Buffer
	err := Run(context.Background(), cfg, logger.NewNoopLogger(), strings.NewReader(""), &stderr)
	require.NoError(t, err)
	require.Contains(t, stderr.String(), "Loaded 3 documents (6 N-Quads) in 3 transactions")
}

func TestRunQuietWritesNothing(t *testing.T) {
	cfg := memoryConfig()
	cfg.Quiet = true

	var stderr bytes.Buffer
	require.NoError(t, Run(context.Background(), cfg, logger.NewNoopLogger(), strings.NewReader(people), &stderr))
	require.Empty(t, stderr.String())
}

func TestRunReportsStructuralErrors(t *testing.T) {
	var stderr bytes.Buffer
	err := Run(context.Background(), memoryConfig(), logger.NewNoopLogger(), strings.NewReader(`{"uid":"0x1"}`+"\n"), &stderr)
	require.ErrorIs(t, err, upsert.ErrReservedField)
	require.ErrorContains(t, err, "document 0")
}

func TestRunMissingInputFile(t *testing.T) {
	cfg := memoryConfig()
	cfg.Input = filepath.Join(t.TempDir(), "missing.json")

	err := Run(context.Background(), cfg, logger.NewNoopLogger(), nil, &bytes.Buffer{})
	require.ErrorContains(t, err, "failed to open input")
}

func TestRunServesMetricsDuringLoad(t *testing.T) {
	cfg := memoryConfig()
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = "127.0.0.1:0"

	err := Run(context.Background(), cfg, logger.NewNoopLogger(), strings.NewReader(people), &bytes.Buffer{})
	require.NoError(t, err)
}

func TestRunFailsWhenDgraphIsUnreachable(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Datastore.URI = "127.0.0.1:1"
	cfg.Datastore.ConnectTimeout = 100 * time.Millisecond

	err := Run(context.Background(), cfg, logger.NewNoopLogger(), strings.NewReader(people), &bytes.Buffer{})
	require.ErrorContains(t, err, "failed to initialize datastore connection")
}

func TestLoadCommand(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := NewLoadCommand()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{
		"--datastore-engine", "memory",
		"--input", writeInput(t, people),
		"--log-level", "none",
		"-k", "name",
		"-s", "2",
		"-c", "1",
		"--retry-min-wait", "0s",
		"--retry-max-wait", "0s",
	})

	require.NoError(t, cmd.Execute())
	require.Contains(t, stderr.String(), "Loaded 3 documents (6 N-Quads) in 2 transactions")
}

func TestLoadCommandReadsEnvironment(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("JSONLOAD_DATASTORE_ENGINE", "memory")
	t.Setenv("JSONLOAD_CHUNK_SIZE", "0")

	cmd := NewLoadCommand()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--log-level", "none"})

	require.EqualError(t, cmd.Execute(), "config 'chunkSize' is invalid: failed the 'gt=0' check")
}

func TestLoadCommandRejectsBothKeyModes(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := NewLoadCommand()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--datastore-engine", "memory", "-k", "a", "-U", "b"})

	err := cmd.Execute()
	require.ErrorContains(t, err, "none of the others can be")
}

func TestLoadCommandRequiresURIForDgraph(t *testing.T) {
	t.Cleanup(viper.Reset)

	cmd := NewLoadCommand()
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{})

	require.EqualError(t, cmd.Execute(), "config 'datastore.uri' is required for the dgraph engine")
}

func TestRenderThrottle(t *testing.T) {
	require.Equal(t, 2*time.Second, renderThrottle(&bytes.Buffer{}))
}
