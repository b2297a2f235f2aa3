package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/wartime-penguins/notary/engine/notary"
	"github.com/wartime-penguins/notary/engine/rollup"
	"github.com/wartime-penguins/notary/module/synthesizer"
)

const (
	storeIPFS  = "ipfs"
	storeLocal = "local"
)

// Config is the resolved configuration of the notary.
type Config struct {
	RollupURL      string
	IPFSURL        string
	Store          string
	Datadir        string
	FetchCacheSize int
	MetricsPort    uint
	LogLevel       string

	Driver      rollup.Config
	Engine      notary.Config
	Synthesizer synthesizer.Options
}

// LoadConfig reads the configuration from v, where flags, environment
// variables and defaults have already been bound.
func LoadConfig(v *viper.Viper) (Config, error) {
	driver := rollup.DefaultConfig()
	driver.RequestTimeout = v.GetDuration(flagRequestTimeout)
	driver.PollRetries = v.GetUint64(flagPollRetries)
	driver.FailFast = v.GetBool(flagFailFast)

	engine := notary.DefaultConfig()
	if path := v.GetString(flagArtifactPath); path != "" {
		engine.ArtifactPath = path
	}
	engine.GIO = v.GetBool(flagGIO)
	engine.InspectReport = v.GetBool(flagInspectReport)

	synth := synthesizer.DefaultOptions()
	if width := v.GetInt(flagWidth); width != 0 {
		synth.Width = width
	}
	if height := v.GetInt(flagHeight); height != 0 {
		synth.Height = height
	}
	if frames := v.GetInt(flagFrames); frames != 0 {
		synth.Frames = frames
	}

	config := Config{
		RollupURL:      v.GetString(flagRollupURL),
		IPFSURL:        v.GetString(flagIPFSURL),
		Store:          v.GetString(flagStore),
		Datadir:        v.GetString(flagDatadir),
		FetchCacheSize: v.GetInt(flagFetchCacheSize),
		MetricsPort:    v.GetUint(flagMetricsPort),
		LogLevel:       v.GetString(flagLogLevel),
		Driver:         driver,
		Engine:         engine,
		Synthesizer:    synth,
	}

	if err := config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

func (c Config) validate() error {
	if c.RollupURL == "" {
		return errors.New("rollup server url is not set: use --rollup-url or ROLLUP_HTTP_SERVER_URL")
	}
	switch c.Store {
	case storeIPFS:
		if c.IPFSURL == "" {
			return errors.New("ipfs api url is not set: use --ipfs-url or IPFS_API_URL")
		}
	case storeLocal:
	default:
		return fmt.Errorf("unknown store %q (expected %s or %s)", c.Store, storeIPFS, storeLocal)
	}
	if c.FetchCacheSize <= 0 {
		return fmt.Errorf("fetch cache size must be positive, got %d", c.FetchCacheSize)
	}
	if c.Driver.RequestTimeout < 0 {
		return fmt.Errorf("request timeout must not be negative, got %s", c.Driver.RequestTimeout)
	}
	return nil
}

// requestTimeoutOrNone formats a request timeout for logging.
func requestTimeoutOrNone(d time.Duration) string {
	if d == 0 {
		return "none"
	}
	return d.String()
}
