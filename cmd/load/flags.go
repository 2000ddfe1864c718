package load

import (
	"github.com/spf13/cobra"

	"github.com/jsonload/jsonload/cmd/util"
	"github.com/jsonload/jsonload/internal/config"
)

// bindLoadFlags binds the cobra cmd flags to the equivalent config value being managed
// by viper. This bridges the config between cobra flags and viper flags.
func bindLoadFlags(command *cobra.Command) {
	defaultConfig := config.DefaultConfig()
	flags := command.Flags()

	flags.String("datastore-engine", defaultConfig.Datastore.Engine, "the datastore engine to load into, 'dgraph' or 'memory' for a dry run")
	util.MustBindPFlag("datastore.engine", flags.Lookup("datastore-engine"))
	util.MustBindEnv("datastore.engine", "JSONLOAD_DATASTORE_ENGINE")

	flags.StringP("datastore-uri", "a", defaultConfig.Datastore.URI, "the gRPC endpoint of the Dgraph Alpha, as host:port or an http(s) URL (https enables TLS)")
	util.MustBindPFlag("datastore.uri", flags.Lookup("datastore-uri"))
	util.MustBindEnv("datastore.uri", "JSONLOAD_DATASTORE_URI")

	flags.String("datastore-username", defaultConfig.Datastore.Username, "the user to log in as on an ACL-enabled cluster")
	util.MustBindPFlag("datastore.username", flags.Lookup("datastore-username"))
	util.MustBindEnv("datastore.username", "JSONLOAD_DATASTORE_USERNAME")

	flags.String("datastore-password", defaultConfig.Datastore.Password, "the password of the datastore user")
	util.MustBindPFlag("datastore.password", flags.Lookup("datastore-password"))
	util.MustBindEnv("datastore.password", "JSONLOAD_DATASTORE_PASSWORD")

	flags.Uint64("datastore-namespace", defaultConfig.Datastore.Namespace, "the namespace to log into")
	util.MustBindPFlag("datastore.namespace", flags.Lookup("datastore-namespace"))
	util.MustBindEnv("datastore.namespace", "JSONLOAD_DATASTORE_NAMESPACE")

	flags.Duration("datastore-connect-timeout", defaultConfig.Datastore.ConnectTimeout, "how long to wait for the datastore to answer its health check at startup")
	util.MustBindPFlag("datastore.connectTimeout", flags.Lookup("datastore-connect-timeout"))
	util.MustBindEnv("datastore.connectTimeout", "JSONLOAD_DATASTORE_CONNECT_TIMEOUT", "JSONLOAD_DATASTORE_CONNECTTIMEOUT")

	flags.StringSliceP("upsert-keys", "k", defaultConfig.Upsert.Keys, "field names used to find existing nodes (can be specified more than once)")
	util.MustBindPFlag("upsert.keys", flags.Lookup("upsert-keys"))
	util.MustBindEnv("upsert.keys", "JSONLOAD_UPSERT_KEYS")

	flags.StringSliceP("upsert-patterns", "U", defaultConfig.Upsert.Patterns, "regular expressions selecting field names used to find existing nodes (can be specified more than once)")
	util.MustBindPFlag("upsert.patterns", flags.Lookup("upsert-patterns"))
	util.MustBindEnv("upsert.patterns", "JSONLOAD_UPSERT_PATTERNS")

	command.MarkFlagsMutuallyExclusive("upsert-keys", "upsert-patterns")

	flags.StringSlice("upsert-opaque-types", defaultConfig.Upsert.OpaqueTypes, "additional 'type' values marking objects stored as values rather than nodes")
	util.MustBindPFlag("upsert.opaqueTypes", flags.Lookup("upsert-opaque-types"))
	util.MustBindEnv("upsert.opaqueTypes", "JSONLOAD_UPSERT_OPAQUE_TYPES", "JSONLOAD_UPSERT_OPAQUETYPES")

	flags.IntP("chunk-size", "s", defaultConfig.ChunkSize, "the number of documents to load in each transaction")
	util.MustBindPFlag("chunkSize", flags.Lookup("chunk-size"))
	util.MustBindEnv("chunkSize", "JSONLOAD_CHUNK_SIZE", "JSONLOAD_CHUNKSIZE")

	flags.IntP("concurrency", "c", defaultConfig.Concurrency, "how many transactions to run at once")
	util.MustBindPFlag("concurrency", flags.Lookup("concurrency"))
	util.MustBindEnv("concurrency", "JSONLOAD_CONCURRENCY")

	flags.BoolP("quiet", "q", defaultConfig.Quiet, "disable progress output")
	util.MustBindPFlag("quiet", flags.Lookup("quiet"))
	util.MustBindEnv("quiet", "JSONLOAD_QUIET")

	flags.StringP("input", "i", defaultConfig.Input, "the file to read documents from, '-' reads standard input")
	util.MustBindPFlag("input", flags.Lookup("input"))
	util.MustBindEnv("input", "JSONLOAD_INPUT")

	flags.Int("max-line-size", defaultConfig.MaxLineSize, "the longest accepted input line, in bytes")
	util.MustBindPFlag("maxLineSize", flags.Lookup("max-line-size"))
	util.MustBindEnv("maxLineSize", "JSONLOAD_MAX_LINE_SIZE", "JSONLOAD_MAXLINESIZE")

	flags.Float64("rate-limit", defaultConfig.RateLimit, "the maximum number of commit attempts per second, 0 disables the limit")
	util.MustBindPFlag("rateLimit", flags.Lookup("rate-limit"))
	util.MustBindEnv("rateLimit", "JSONLOAD_RATE_LIMIT", "JSONLOAD_RATELIMIT")

	flags.Duration("retry-min-wait", defaultConfig.Retry.MinWait, "the shortest wait before retrying an aborted transaction")
	util.MustBindPFlag("retry.minWait", flags.Lookup("retry-min-wait"))
	util.MustBindEnv("retry.minWait", "JSONLOAD_RETRY_MIN_WAIT", "JSONLOAD_RETRY_MINWAIT")

	flags.Duration("retry-max-wait", defaultConfig.Retry.MaxWait, "the longest wait before retrying an aborted transaction")
	util.MustBindPFlag("retry.maxWait", flags.Lookup("retry-max-wait"))
	util.MustBindEnv("retry.maxWait", "JSONLOAD_RETRY_MAX_WAIT", "JSONLOAD_RETRY_MAXWAIT")

	flags.Int("retry-max-attempts", defaultConfig.Retry.MaxAttempts, "the maximum number of retries of one transaction, 0 retries forever")
	util.MustBindPFlag("retry.maxAttempts", flags.Lookup("retry-max-attempts"))
	util.MustBindEnv("retry.maxAttempts", "JSONLOAD_RETRY_MAX_ATTEMPTS", "JSONLOAD_RETRY_MAXATTEMPTS")

	flags.String("log-format", defaultConfig.Log.Format, "the log format to output logs in, 'text' or 'json'")
	util.MustBindPFlag("log.format", flags.Lookup("log-format"))
	util.MustBindEnv("log.format", "JSONLOAD_LOG_FORMAT")

	flags.String("log-level", defaultConfig.Log.Level, "the log level to use, one of 'none', 'debug', 'info', 'warn' or 'error'")
	util.MustBindPFlag("log.level", flags.Lookup("log-level"))
	util.MustBindEnv("log.level", "JSONLOAD_LOG_LEVEL")

	flags.Bool("trace-enabled", defaultConfig.Trace.Enabled, "enable tracing")
	util.MustBindPFlag("trace.enabled", flags.Lookup("trace-enabled"))
	util.MustBindEnv("trace.enabled", "JSONLOAD_TRACE_ENABLED")

	flags.String("trace-otlp-endpoint", defaultConfig.Trace.OTLP.Endpoint, "the endpoint of the trace collector")
	util.MustBindPFlag("trace.otlp.endpoint", flags.Lookup("trace-otlp-endpoint"))
	util.MustBindEnv("trace.otlp.endpoint", "JSONLOAD_TRACE_OTLP_ENDPOINT")

	flags.Float64("trace-sample-ratio", defaultConfig.Trace.SampleRatio, "the fraction of traces to sample, between 0 and 1")
	util.MustBindPFlag("trace.sampleRatio", flags.Lookup("trace-sample-ratio"))
	util.MustBindEnv("trace.sampleRatio", "JSONLOAD_TRACE_SAMPLE_RATIO", "JSONLOAD_TRACE_SAMPLERATIO")

	flags.String("trace-service-name", defaultConfig.Trace.ServiceName, "the service name included in sampled traces")
	util.MustBindPFlag("trace.serviceName", flags.Lookup("trace-service-name"))
	util.MustBindEnv("trace.serviceName", "JSONLOAD_TRACE_SERVICE_NAME", "JSONLOAD_TRACE_SERVICENAME")

	flags.Bool("metrics-enabled", defaultConfig.Metrics.Enabled, "enable/disable prometheus metrics on the '/metrics' endpoint")
	util.MustBindPFlag("metrics.enabled", flags.Lookup("metrics-enabled"))
	util.MustBindEnv("metrics.enabled", "JSONLOAD_METRICS_ENABLED")

	flags.String("metrics-addr", defaultConfig.Metrics.Addr, "the host:port address to serve the prometheus metrics server on")
	util.MustBindPFlag("metrics.addr", flags.Lookup("metrics-addr"))
	util.MustBindEnv("metrics.addr", "JSONLOAD_METRICS_ADDR")
}
