package notary

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/wartime-penguins/notary/engine/rollup"
	"github.com/wartime-penguins/notary/model/hash"
	model "github.com/wartime-penguins/notary/model/rollup"
	"github.com/wartime-penguins/notary/module/blobs"
	"github.com/wartime-penguins/notary/module/contentstore"
	"github.com/wartime-penguins/notary/module/metrics"
	"github.com/wartime-penguins/notary/module/notice"
	"github.com/wartime-penguins/notary/module/synthesizer"
	"github.com/wartime-penguins/notary/module/verification"
	"github.com/wartime-penguins/notary/utils/unittest"
)

func smallSynthesizer(t testing.TB) *synthesizer.Synthesizer {
	synth, err := synthesizer.New(synthesizer.Options{
		Width:      96,
		Height:     64,
		Frames:     3,
		PixelSize:  4,
		Snowflakes: 20,
		Delay:      2,
	})
	require.NoError(t, err)
	return synth
}

type EngineSuite struct {
	suite.Suite

	server *unittest.RollupServer
	client *rollup.Client
	store  *contentstore.Local
	config Config
	engine *Engine
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.server = unittest.NewRollupServer(s.T())

	var err error
	s.client, err = rollup.NewClient(unittest.Logger(), s.server.URL, s.server.Client())
	s.Require().NoError(err)

	s.store = contentstore.NewLocal(blobs.NewMemoryBlobstore(), 512)
	s.config = DefaultConfig()
	s.config.ArtifactPath = filepath.Join(s.T().TempDir(), "penguin_rush.gif")
	s.engine = s.newEngine(s.store)
}

func (s *EngineSuite) newEngine(store contentstore.Store) *Engine {
	return New(unittest.Logger(), smallSynthesizer(s.T()), store, nil, s.client, metrics.NewNoopCollector(), s.config)
}

func (s *EngineSuite) TestAdvance() {
	ctx := context.Background()
	payload := []byte{0x01, 0x02}

	status, err := s.engine.Advance(ctx, model.NewRequest(model.KindAdvance, payload))
	s.Require().NoError(err)
	s.Assert().Equal(model.StatusAccept, status)

	notices := s.server.Notices()
	s.Require().Len(notices, 1)
	n, err := notice.Decode(notices[0])
	s.Require().NoError(err)

	metadataAddress, err := cid.Decode(n.MetadataAddress)
	s.Require().NoError(err)

	// the artifact on disk is the published image
	artifact, err := os.ReadFile(s.config.ArtifactPath)
	s.Require().NoError(err)
	expected, err := smallSynthesizer(s.T()).Generate(hash.Seed(payload))
	s.Require().NoError(err)
	s.Assert().Equal(expected, artifact)

	// the metadata document points at the image
	metadataBlocks, err := s.store.EnumerateBlocks(ctx, metadataAddress)
	s.Require().NoError(err)
	s.Require().Len(metadataBlocks, 2)
	raw, err := s.store.Fetch(ctx, metadataBlocks[1])
	s.Require().NoError(err)
	var doc metadataDocument
	s.Require().NoError(json.Unmarshal(raw, &doc))
	imageAddress, err := s.store.Publish(ctx, "penguin_rush.gif", artifact)
	s.Require().NoError(err)
	s.Assert().Equal("ipfs://"+imageAddress.String(), doc.Image)

	// the last preimage is the manifest committed to by the notice
	gios := s.server.GIOs()
	s.Require().NotEmpty(gios)
	manifestBytes := gios[len(gios)-1].Data
	s.Assert().Equal(n.ManifestDigest, hash.Keccak256(manifestBytes))

	manifest, err := notice.UnmarshalManifest(manifestBytes)
	s.Require().NoError(err)
	s.Require().Len(gios, len(manifest)+1)

	// the manifest covers the image graph then the metadata graph
	imageBlocks, err := s.store.EnumerateBlocks(ctx, imageAddress)
	s.Require().NoError(err)
	s.Require().Greater(len(imageBlocks), 1, "image should span several blocks")
	s.Assert().Equal(append(imageBlocks, metadataBlocks...), manifest.Addresses())

	for i, entry := range manifest {
		data, err := s.store.Fetch(ctx, entry.Address)
		s.Require().NoError(err)
		s.Assert().Equal(hash.Keccak256(data), entry.Digest)
		s.Assert().Equal(rollup.DomainKeccak256Preimage, gios[i].Domain)
		s.Assert().Equal(data, gios[i].Data)
		s.Assert().True(verification.Verify(entry.Address))
	}
}

func (s *EngineSuite) TestAdvanceIsDeterministic() {
	ctx := context.Background()
	payload := []byte{0x01, 0x02}

	first, err := s.engine.Notarize(ctx, payload)
	s.Require().NoError(err)

	other := s.newEngine(contentstore.NewLocal(blobs.NewMemoryBlobstore(), 512))
	second, err := other.Notarize(ctx, payload)
	s.Require().NoError(err)

	s.Assert().Equal(first.Notice, second.Notice)
	s.Assert().Equal(first.ManifestBytes, second.ManifestBytes)

	third, err := s.engine.Notarize(ctx, []byte{0x01, 0x03})
	s.Require().NoError(err)
	s.Assert().NotEqual(first.Notice, third.Notice)
}

func (s *EngineSuite) TestAdvanceWithoutGIO() {
	s.config.GIO = false
	s.engine = s.newEngine(s.store)

	status, err := s.engine.Advance(context.Background(), model.NewRequest(model.KindAdvance, []byte{0x01}))
	s.Require().NoError(err)
	s.Assert().Equal(model.StatusAccept, status)
	s.Assert().Len(s.server.Notices(), 1)
	s.Assert().Empty(s.server.GIOs())
}

func (s *EngineSuite) TestAdvanceMissingPayload() {
	status, err := s.engine.Advance(context.Background(), &model.Request{Kind: model.KindAdvance})
	s.Assert().ErrorIs(err, model.ErrMissingPayload)
	s.Assert().Equal(model.StatusReject, status)
	s.Assert().Empty(s.server.Notices())
}

func (s *EngineSuite) TestAdvanceUnwritableArtifact() {
	s.config.ArtifactPath = s.T().TempDir()
	s.engine = s.newEngine(s.store)

	status, err := s.engine.Advance(context.Background(), model.NewRequest(model.KindAdvance, []byte{0x01}))
	s.Assert().Error(err)
	s.Assert().Equal(model.StatusReject, status)
	s.Assert().Empty(s.server.Notices())
}

// TestVerificationShortCircuit checks that a graph containing a block that is
// not keccak-256 addressed is rejected before any block is fetched.
func (s *EngineSuite) TestVerificationShortCircuit() {
	sha, err := multihash.Sum([]byte("image"), multihash.SHA2_256, -1)
	s.Require().NoError(err)
	wrong := cid.NewCidV1(cid.Raw, sha)
	good := blobs.NewBlob([]byte("metadata")).Cid()

	store := &mockStore{}
	store.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(wrong, nil)
	store.On("PublishDirectory", mock.Anything, mock.Anything).Return(good, nil)
	store.On("EnumerateBlocks", mock.Anything, wrong).Return([]cid.Cid{wrong}, nil)
	store.On("EnumerateBlocks", mock.Anything, good).Return([]cid.Cid{good}, nil)

	engine := s.newEngine(store)
	status, err := engine.Advance(context.Background(), model.NewRequest(model.KindAdvance, []byte{0x01, 0x02}))
	s.Require().Error(err)
	s.Assert().True(verification.IsWrongHashError(err))
	s.Assert().Equal(model.StatusReject, status)

	store.AssertNotCalled(s.T(), "Fetch", mock.Anything, mock.Anything)
	store.AssertExpectations(s.T())
	s.Assert().Empty(s.server.Notices())
	s.Assert().Empty(s.server.GIOs())
}

func (s *EngineSuite) TestInspect() {
	store := &mockStore{}
	engine := s.newEngine(store)

	status, err := engine.Inspect(context.Background(), model.NewRequest(model.KindInspect, []byte{0x01, 0x02}))
	s.Require().NoError(err)
	s.Assert().Equal(model.StatusAccept, status)

	status, err = engine.Inspect(context.Background(), &model.Request{Kind: model.KindInspect})
	s.Require().NoError(err)
	s.Assert().Equal(model.StatusAccept, status)

	store.AssertNotCalled(s.T(), "Publish", mock.Anything, mock.Anything, mock.Anything)
	store.AssertNotCalled(s.T(), "PublishDirectory", mock.Anything, mock.Anything)
	store.AssertNotCalled(s.T(), "EnumerateBlocks", mock.Anything, mock.Anything)
	store.AssertNotCalled(s.T(), "Fetch", mock.Anything, mock.Anything)
	s.Assert().Empty(s.server.Notices())
	s.Assert().Empty(s.server.Reports())
}

func (s *EngineSuite) TestInspectReport() {
	s.config.InspectReport = true
	s.engine = s.newEngine(&mockStore{})

	payload := []byte{0x01, 0x02}
	status, err := s.engine.Inspect(context.Background(), model.NewRequest(model.KindInspect, payload))
	s.Require().NoError(err)
	s.Assert().Equal(model.StatusAccept, status)

	reports := s.server.Reports()
	s.Require().Len(reports, 1)
	s.Assert().Contains(string(reports[0]), "seed=")
}

// TestInspectReportFailure checks that a failed report does not turn an
// inspect request into a reject.
func (s *EngineSuite) TestInspectReportFailure() {
	s.config.InspectReport = true
	s.engine = s.newEngine(&mockStore{})
	s.server.FailReports()

	status, err := s.engine.Inspect(context.Background(), model.NewRequest(model.KindInspect, []byte{0x01, 0x02}))
	s.Require().NoError(err)
	s.Assert().Equal(model.StatusAccept, status)
	s.Assert().Empty(s.server.Reports())
}

// TestDriver runs advance and inspect requests through the rollup driver.
func TestDriver(t *testing.T) {
	server := unittest.NewRollupServer(t)
	server.EnqueueAdvance([]byte{0x01, 0x02})
	server.EnqueueInspect([]byte{0x01, 0x02})

	client, err := rollup.NewClient(unittest.Logger(), server.URL, server.Client())
	require.NoError(t, err)

	config := DefaultConfig()
	config.ArtifactPath = filepath.Join(t.TempDir(), "penguin_rush.gif")
	store := contentstore.NewLocal(blobs.NewMemoryBlobstore(), blobs.DefaultChunkSize)
	fetcher, err := contentstore.NewCachedFetcher(store, 64)
	require.NoError(t, err)

	collector := metrics.NewNoopCollector()
	engine := New(unittest.Logger(), smallSynthesizer(t), store, fetcher, client, collector, config)

	rollupConfig := rollup.DefaultConfig()
	rollupConfig.PollRetryBase = time.Millisecond
	driver := rollup.NewDriver(
		unittest.Logger(),
		client,
		rollup.HandlerFunc(engine.Advance),
		rollup.HandlerFunc(engine.Inspect),
		collector,
		rollupConfig,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errs := make(chan error, 1)
	go func() {
		errs <- driver.Run(ctx)
	}()

	select {
	case <-server.Drained():
	case err := <-errs:
		require.FailNow(t, "driver stopped early", "error: %v", err)
	case <-time.After(10 * time.Second):
		require.FailNow(t, "requests were not handled in time")
	}
	cancel()
	unittest.RequireReturnsBefore(t, func() { <-errs }, time.Second)

	assert.Equal(t, []string{"accept", "accept", "accept"}, server.Statuses()[:3])
	require.Len(t, server.Notices(), 1)
	assert.Equal(t, uint64(2), driver.Handled())
	assert.Greater(t, fetcher.Len(), 0)

	n, err := notice.Decode(server.Notices()[0])
	require.NoError(t, err)
	_, err = cid.Decode(n.MetadataAddress)
	assert.NoError(t, err)
}

func TestWriteArtifact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "artifact.gif")
	require.NoError(t, writeArtifact(path, []byte("GIF89a")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("GIF89a"), data)

	err = writeArtifact(filepath.Join(t.TempDir(), "missing", "artifact.gif"), []byte("GIF89a"))
	assert.Error(t, err)
}

type mockStore struct {
	mock.Mock
}

var _ contentstore.Store = (*mockStore)(nil)

func (m *mockStore) Publish(ctx context.Context, name string, data []byte) (cid.Cid, error) {
	args := m.Called(ctx, name, data)
	return args.Get(0).(cid.Cid), args.Error(1)
}

func (m *mockStore) PublishDirectory(ctx context.Context, files []contentstore.File) (cid.Cid, error) {
	args := m.Called(ctx, files)
	return args.Get(0).(cid.Cid), args.Error(1)
}

func (m *mockStore) EnumerateBlocks(ctx context.Context, root cid.Cid) ([]cid.Cid, error) {
	args := m.Called(ctx, root)
	cids, _ := args.Get(0).([]cid.Cid)
	return cids, args.Error(1)
}

func (m *mockStore) Fetch(ctx context.Context, c cid.Cid) ([]byte, error) {
	args := m.Called(ctx, c)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}
