package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/wartime-penguins/notary/engine/notary"
	"github.com/wartime-penguins/notary/engine/rollup"
	"github.com/wartime-penguins/notary/module/blobs"
	"github.com/wartime-penguins/notary/module/contentstore"
	"github.com/wartime-penguins/notary/module/contentstore/ipfs"
	"github.com/wartime-penguins/notary/module/irrecoverable"
	"github.com/wartime-penguins/notary/module/metrics"
	"github.com/wartime-penguins/notary/module/synthesizer"
)

// Run wires the notary together and drives requests until ctx is cancelled
// or an irrecoverable error occurs.
func Run(ctx context.Context, log zerolog.Logger, config Config) error {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewNotaryCollector(registry)

	if config.MetricsPort != 0 {
		server := metrics.NewServer(log, config.MetricsPort, registry)
		<-server.Ready()
		defer func() {
			<-server.Done()
		}()
	}

	store, closeStore, err := newStore(log, config)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error().Err(err).Msg("could not close content store")
		}
	}()

	fetcher, err := contentstore.NewCachedFetcher(store, config.FetchCacheSize)
	if err != nil {
		return fmt.Errorf("could not create fetch cache: %w", err)
	}

	synth, err := synthesizer.New(config.Synthesizer)
	if err != nil {
		return fmt.Errorf("invalid synthesizer options: %w", err)
	}

	client, err := rollup.NewClient(log, config.RollupURL, &http.Client{})
	if err != nil {
		return err
	}

	engine := notary.New(log, synth, store, fetcher, client, collector, config.Engine)
	driver := rollup.NewDriver(
		log,
		client,
		rollup.HandlerFunc(engine.Advance),
		rollup.HandlerFunc(engine.Inspect),
		collector,
		config.Driver,
	)

	signalerCtx, errChan := irrecoverable.WithSignaler(ctx)
	driver.Start(signalerCtx)

	log.Info().
		Str("rollup_url", config.RollupURL).
		Str("store", config.Store).
		Str("artifact_path", config.Engine.ArtifactPath).
		Str("request_timeout", requestTimeoutOrNone(config.Driver.RequestTimeout)).
		Bool("fail_fast", config.Driver.FailFast).
		Msg("notary started")

	<-driver.Done()

	select {
	case err := <-errChan:
		return fmt.Errorf("notary stopped: %w", err)
	default:
	}

	log.Info().
		Uint64("handled", driver.Handled()).
		Uint64("rejected", driver.Rejected()).
		Msg("notary stopped")
	return nil
}

func newStore(log zerolog.Logger, config Config) (contentstore.Store, func() error, error) {
	noop := func() error { return nil }

	switch config.Store {
	case storeIPFS:
		client, err := ipfs.NewClient(log, config.IPFSURL, &http.Client{})
		if err != nil {
			return nil, nil, err
		}
		return client, noop, nil

	case storeLocal:
		if config.Datadir == "" {
			log.Warn().Msg("using an in-memory local store, published content is lost on exit")
			return contentstore.NewLocal(blobs.NewMemoryBlobstore(), blobs.DefaultChunkSize), noop, nil
		}
		blobstore, err := blobs.NewBadgerBlobstore(config.Datadir)
		if err != nil {
			return nil, nil, err
		}
		return contentstore.NewLocal(blobstore, blobs.DefaultChunkSize), blobstore.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store %q", config.Store)
	}
}
