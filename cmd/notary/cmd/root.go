package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/wartime-penguins/notary/engine/notary"
	"github.com/wartime-penguins/notary/engine/rollup"
	"github.com/wartime-penguins/notary/module/blobs"
	"github.com/wartime-penguins/notary/module/synthesizer"
)

const (
	flagRollupURL      = "rollup-url"
	flagIPFSURL        = "ipfs-url"
	flagStore          = "store"
	flagDatadir        = "datadir"
	flagArtifactPath   = "artifact-path"
	flagRequestTimeout = "request-timeout"
	flagPollRetries    = "poll-retries"
	flagFailFast       = "fail-fast"
	flagGIO            = "gio"
	flagInspectReport  = "inspect-report"
	flagFetchCacheSize = "fetch-cache-size"
	flagMetricsPort    = "metrics-port"
	flagLogLevel       = "log-level"
	flagWidth          = "width"
	flagHeight         = "height"
	flagFrames         = "frames"
)

// Blocks are at most one chunk, so the fetch cache holds at most
// defaultFetchCacheSize * blobs.DefaultChunkSize bytes (64 MiB).
const defaultFetchCacheSize = 256

// environment variables read in addition to the flags
var envBindings = map[string]string{
	flagRollupURL:      "ROLLUP_HTTP_SERVER_URL",
	flagIPFSURL:        "IPFS_API_URL",
	flagStore:          "NOTARY_STORE",
	flagDatadir:        "NOTARY_DATADIR",
	flagArtifactPath:   "NOTARY_ARTIFACT_PATH",
	flagRequestTimeout: "NOTARY_REQUEST_TIMEOUT",
	flagPollRetries:    "NOTARY_POLL_RETRIES",
	flagFailFast:       "NOTARY_FAIL_FAST",
	flagGIO:            "NOTARY_GIO",
	flagInspectReport:  "NOTARY_INSPECT_REPORT",
	flagFetchCacheSize: "NOTARY_FETCH_CACHE_SIZE",
	flagMetricsPort:    "NOTARY_METRICS_PORT",
	flagLogLevel:       "NOTARY_LOG_LEVEL",
}

var rootCmd = &cobra.Command{
	Use:   "notary",
	Short: "Render, publish and notarize penguin artifacts for a rollup",
	Long: `notary polls a rollup server for requests. For every advance request it
renders an artifact seeded by the request payload, publishes it to a
content-addressed store, verifies and hashes every published block and emits
a notice committing to the resulting manifest.`,
	SilenceUsage: true,
	RunE:         run,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		stop()
		os.Exit(1)
	}
}

func init() {
	addFlags(rootCmd.Flags())

	cobra.OnInitialize(initConfig)
}

func addFlags(flags *pflag.FlagSet) {
	synth := synthesizer.DefaultOptions()
	engine := notary.DefaultConfig()
	driver := rollup.DefaultConfig()

	flags.String(flagRollupURL, "", "base url of the rollup http server")
	flags.String(flagIPFSURL, "http://127.0.0.1:5001", "url of the ipfs node http api")
	flags.String(flagStore, storeIPFS, fmt.Sprintf("content store to publish to (%s|%s)", storeIPFS, storeLocal))
	flags.String(flagDatadir, "", "directory persisting the local store; in-memory when empty")
	flags.String(flagArtifactPath, engine.ArtifactPath, "file the rendered artifact is written to")
	flags.Duration(flagRequestTimeout, driver.RequestTimeout, "time limit for handling a single request (0 disables)")
	flags.Uint64(flagPollRetries, driver.PollRetries, "number of retries when the rollup server cannot be reached")
	flags.Bool(flagFailFast, driver.FailFast, "exit when a request cannot be handled instead of rejecting it")
	flags.Bool(flagGIO, engine.GIO, "register notarized blocks and manifests as keccak-256 preimages")
	flags.Bool(flagInspectReport, engine.InspectReport, "answer inspect requests with a report")
	flags.Int(flagFetchCacheSize, defaultFetchCacheSize, fmt.Sprintf(
		"number of fetched blocks kept in memory; each block is at most %d KiB", blobs.DefaultChunkSize/1024))
	flags.Uint(flagMetricsPort, 0, "port of the prometheus metrics server (0 disables)")
	flags.String(flagLogLevel, "info", "log level (trace|debug|info|warn|error)")
	flags.Int(flagWidth, synth.Width, "artifact width in pixels")
	flags.Int(flagHeight, synth.Height, "artifact height in pixels")
	flags.Int(flagFrames, synth.Frames, "number of artifact frames")
}

func initConfig() {
	// a missing .env file is not an error
	_ = godotenv.Load()

	viper.AutomaticEnv()
	for flag, env := range envBindings {
		_ = viper.BindEnv(flag, env)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("could not bind flags: %w", err)
	}

	config, err := LoadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	log, err := newLogger(config.LogLevel)
	if err != nil {
		return err
	}

	err = Run(cmd.Context(), log, config)
	if err != nil {
		log.Fatal().Err(err).Msg("notary failed")
	}
	return nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var log zerolog.Logger
	if fileInfo, _ := os.Stderr.Stat(); fileInfo != nil && fileInfo.Mode()&os.ModeCharDevice != 0 {
		log = zerolog.New(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
			w.Out = os.Stderr
		}))
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(lvl).With().Timestamp().Logger(), nil
}
