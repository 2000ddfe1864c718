package util

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestMustBindPFlag(t *testing.T) {
	t.Cleanup(viper.Reset)

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("chunk-size", 100, "")
	MustBindPFlag("chunkSize", flags.Lookup("chunk-size"))

	require.NoError(t, flags.Parse([]string{"--chunk-size", "7"}))
	require.Equal(t, 7, viper.GetInt("chunkSize"))
}

func TestMustBindPFlagPanicsOnNilFlag(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.Panics(t, func() {
		MustBindPFlag("missing", nil)
	})
}

func TestMustBindEnv(t *testing.T) {
	t.Cleanup(viper.Reset)
	t.Setenv("JSONLOAD_TEST_CONCURRENCY", "9")

	MustBindEnv("concurrency", "JSONLOAD_TEST_CONCURRENCY")
	require.Equal(t, 9, viper.GetInt("concurrency"))
}

func TestMustBindEnvPanicsWithoutKey(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.Panics(t, func() {
		MustBindEnv()
	})
}
