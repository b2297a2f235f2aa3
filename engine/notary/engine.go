package notary

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/ipfs/go-cid"
	"github.com/rs/zerolog"

	"github.com/wartime-penguins/notary/engine/rollup"
	"github.com/wartime-penguins/notary/model/hash"
	model "github.com/wartime-penguins/notary/model/rollup"
	"github.com/wartime-penguins/notary/module"
	"github.com/wartime-penguins/notary/module/contentstore"
	"github.com/wartime-penguins/notary/module/notice"
	"github.com/wartime-penguins/notary/module/verification"
)

// MetadataFileName is the name of the metadata document inside the published
// metadata directory.
const MetadataFileName = "metadata.json"

// Synthesizer renders the artifact for a seed.
type Synthesizer interface {
	Generate(seed uint64) ([]byte, error)
}

// Outbox is the part of the rollup server the engine reports to.
type Outbox interface {
	Notice(ctx context.Context, payload []byte) error
	Report(ctx context.Context, payload []byte) error
	GIO(ctx context.Context, domain uint16, data []byte) error
}

// Config configures the notary engine.
type Config struct {
	// ArtifactPath is where the rendered artifact is written before it is
	// published.
	ArtifactPath string
	// GIO registers every notarized block and the manifest as keccak-256
	// preimages with the rollup server.
	GIO bool
	// InspectReport answers inspect requests with a report.
	InspectReport bool
}

// DefaultConfig returns the engine configuration used by the notary command.
func DefaultConfig() Config {
	return Config{
		ArtifactPath:  "penguin_rush.gif",
		GIO:           true,
		InspectReport: false,
	}
}

// Result describes a notarized artifact.
type Result struct {
	Seed            uint64
	ImageAddress    cid.Cid
	MetadataAddress cid.Cid
	Manifest        notice.Manifest
	ManifestBytes   []byte
	Notice          notice.Notice
}

// Engine turns advance requests into notarized artifacts: it renders an
// artifact from the request payload, publishes it with a metadata document,
// verifies that every published block is keccak-256 addressed, hashes each
// block into a manifest and emits a notice committing to the manifest.
type Engine struct {
	log     zerolog.Logger
	synth   Synthesizer
	store   contentstore.Store
	fetcher contentstore.Fetcher
	outbox  Outbox
	metrics module.NotaryMetrics
	config  Config
}

// New returns an engine publishing to store. Blocks are read back through
// fetcher, which is typically a cache in front of store.
func New(
	log zerolog.Logger,
	synth Synthesizer,
	store contentstore.Store,
	fetcher contentstore.Fetcher,
	outbox Outbox,
	metrics module.NotaryMetrics,
	config Config,
) *Engine {
	if fetcher == nil {
		fetcher = store
	}
	return &Engine{
		log:     log.With().Str("engine", "notary").Logger(),
		synth:   synth,
		store:   store,
		fetcher: fetcher,
		outbox:  outbox,
		metrics: metrics,
		config:  config,
	}
}

// Advance notarizes the artifact derived from the request payload and emits
// the notice. Any error aborts the request before a notice is sent.
func (e *Engine) Advance(ctx context.Context, req *model.Request) (model.Status, error) {
	payload, err := req.Payload()
	if err != nil {
		return model.StatusReject, err
	}

	result, err := e.Notarize(ctx, payload)
	if err != nil {
		return model.StatusReject, err
	}

	if e.config.GIO {
		err = e.registerPreimages(ctx, result)
		if err != nil {
			return model.StatusReject, err
		}
	}

	encoded, err := notice.Encode(result.Notice)
	if err != nil {
		return model.StatusReject, err
	}
	err = e.outbox.Notice(ctx, encoded)
	if err != nil {
		return model.StatusReject, fmt.Errorf("could not emit notice: %w", err)
	}
	e.metrics.NoticeEmitted(len(result.Manifest))

	e.log.Info().
		Uint64("seed", result.Seed).
		Str("image", result.ImageAddress.String()).
		Str("metadata", result.MetadataAddress.String()).
		Int("blocks", len(result.Manifest)).
		Str("manifest_digest", result.Notice.ManifestDigest.Hex()).
		Msg("notice emitted")

	return model.StatusAccept, nil
}

// Inspect acknowledges an inspect request. It never touches the store and
// always accepts; a failed report is only logged.
func (e *Engine) Inspect(ctx context.Context, req *model.Request) (model.Status, error) {
	// inspect requests without a payload are still acknowledged
	payload, _ := req.Payload()

	e.log.Info().Int("payload_size", len(payload)).Msg("inspect request")

	if e.config.InspectReport {
		report := fmt.Sprintf("seed=%d", hash.Seed(payload))
		err := e.outbox.Report(ctx, []byte(report))
		if err != nil {
			e.log.Warn().Err(err).Msg("could not emit inspect report")
		}
	}

	return model.StatusAccept, nil
}

// Notarize renders, publishes and hashes the artifact for payload without
// emitting anything to the rollup server.
func (e *Engine) Notarize(ctx context.Context, payload []byte) (*Result, error) {
	seed := hash.Seed(payload)
	log := e.log.With().Uint64("seed", seed).Logger()

	start := time.Now()
	artifact, err := e.synth.Generate(seed)
	if err != nil {
		return nil, fmt.Errorf("could not synthesize artifact: %w", err)
	}
	e.metrics.ArtifactSynthesized(len(artifact), time.Since(start))
	log.Debug().Int("size", len(artifact)).Dur("duration", time.Since(start)).Msg("artifact synthesized")

	err = writeArtifact(e.config.ArtifactPath, artifact)
	if err != nil {
		return nil, err
	}

	imageAddress, err := e.store.Publish(ctx, filepath.Base(e.config.ArtifactPath), artifact)
	if err != nil {
		return nil, fmt.Errorf("could not publish artifact: %w", err)
	}

	metadata, err := newMetadata(seed, imageAddress)
	if err != nil {
		return nil, err
	}
	metadataAddress, err := e.store.PublishDirectory(ctx, []contentstore.File{
		{Name: MetadataFileName, Data: metadata},
	})
	if err != nil {
		return nil, fmt.Errorf("could not publish metadata: %w", err)
	}

	log.Debug().
		Str("image", imageAddress.String()).
		Str("metadata", metadataAddress.String()).
		Msg("artifact published")

	blocks, err := e.enumerate(ctx, imageAddress, metadataAddress)
	if err != nil {
		return nil, err
	}

	// every block is verified before any block is fetched
	err = verification.VerifyAll(blocks)
	if err != nil {
		if verification.IsWrongHashError(err) {
			e.metrics.BlockRejected()
		}
		return nil, fmt.Errorf("published blocks failed verification: %w", err)
	}
	e.metrics.BlocksVerified(len(blocks))

	manifest, err := notice.BuildManifest(ctx, e.fetcher, blocks)
	if err != nil {
		return nil, fmt.Errorf("could not build manifest: %w", err)
	}
	digest, manifestBytes, err := manifest.Digest()
	if err != nil {
		return nil, err
	}

	return &Result{
		Seed:            seed,
		ImageAddress:    imageAddress,
		MetadataAddress: metadataAddress,
		Manifest:        manifest,
		ManifestBytes:   manifestBytes,
		Notice: notice.Notice{
			MetadataAddress: metadataAddress.String(),
			ManifestDigest:  digest,
		},
	}, nil
}

// enumerate lists the blocks of all roots in order, dropping blocks shared
// between graphs.
func (e *Engine) enumerate(ctx context.Context, roots ...cid.Cid) ([]cid.Cid, error) {
	var all []cid.Cid
	seen := make(map[cid.Cid]struct{})

	for _, root := range roots {
		blocks, err := e.store.EnumerateBlocks(ctx, root)
		if err != nil {
			return nil, fmt.Errorf("could not enumerate blocks of %v: %w", root, err)
		}
		for _, c := range blocks {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			all = append(all, c)
		}
	}

	return all, nil
}

// registerPreimages hands every notarized block and the manifest itself to
// the rollup server so their digests can be resolved.
func (e *Engine) registerPreimages(ctx context.Context, result *Result) error {
	for _, entry := range result.Manifest {
		data, err := e.fetcher.Fetch(ctx, entry.Address)
		if err != nil {
			return fmt.Errorf("could not fetch block %v: %w", entry.Address, err)
		}
		err = e.outbox.GIO(ctx, rollup.DomainKeccak256Preimage, data)
		if err != nil {
			return fmt.Errorf("could not register block %v: %w", entry.Address, err)
		}
	}

	err := e.outbox.GIO(ctx, rollup.DomainKeccak256Preimage, result.ManifestBytes)
	if err != nil {
		return fmt.Errorf("could not register manifest: %w", err)
	}
	return nil
}

type metadataDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	Seed        string `json:"seed"`
}

func newMetadata(seed uint64, image cid.Cid) ([]byte, error) {
	doc := metadataDocument{
		Name:        fmt.Sprintf("Wartime Penguins #%d", seed),
		Description: "Penguins on the run through the snow, rendered from an on-chain seed.",
		Image:       "ipfs://" + image.String(),
		Seed:        strconv.FormatUint(seed, 10),
	}
	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("could not encode metadata: %w", err)
	}
	return encoded, nil
}

// writeArtifact writes data to path. The file is closed on every path and a
// failed close is reported along with any write error.
func writeArtifact(path string, data []byte) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create artifact file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = multierror.Append(err, fmt.Errorf("could not close artifact file: %w", closeErr))
		}
	}()

	_, err = f.Write(data)
	if err != nil {
		return fmt.Errorf("could not write artifact file: %w", err)
	}
	return nil
}
