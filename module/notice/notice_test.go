package notice_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wartime-penguins/notary/model/hash"
	"github.com/wartime-penguins/notary/module/blobs"
	"github.com/wartime-penguins/notary/module/contentstore"
	"github.com/wartime-penguins/notary/module/notice"
)

func TestNoticeRoundTrip(t *testing.T) {
	addresses := []string{
		"",
		"bafkrwia",
		blobs.NewNodeBlob([]byte("metadata")).Cid().String(),
		strings.Repeat("x", 100),
	}

	for i, address := range addresses {
		t.Run(fmt.Sprintf("address %d", i), func(t *testing.T) {
			n := notice.Notice{
				MetadataAddress: address,
				ManifestDigest:  hash.Keccak256([]byte(address)),
			}

			encoded, err := notice.Encode(n)
			require.NoError(t, err)

			decoded, err := notice.Decode(encoded)
			require.NoError(t, err)
			assert.Equal(t, n, decoded)

			encodedHex, err := notice.EncodeHex(n)
			require.NoError(t, err)
			assert.True(t, strings.HasPrefix(encodedHex, "0x"))
			assert.Equal(t, hexutil.Encode(encoded), encodedHex)

			decoded, err = notice.DecodeHex(encodedHex)
			require.NoError(t, err)
			assert.Equal(t, n, decoded)
		})
	}
}

// TestNoticeLayout checks the head/tail layout of an ABI encoded (string, bytes32) tuple.
func TestNoticeLayout(t *testing.T) {
	n := notice.Notice{
		MetadataAddress: "abc",
		ManifestDigest:  hash.Keccak256([]byte("manifest")),
	}

	encoded, err := notice.Encode(n)
	require.NoError(t, err)
	require.Len(t, encoded, 4*32)

	// offset of the string tail
	assert.Equal(t, byte(0x40), encoded[31])
	assert.Equal(t, n.ManifestDigest.Bytes(), encoded[32:64])
	// string length, then right padded content
	assert.Equal(t, byte(3), encoded[95])
	assert.Equal(t, []byte("abc"), encoded[96:99])
}

func TestNoticeIsDeterministic(t *testing.T) {
	n := notice.Notice{
		MetadataAddress: "address",
		ManifestDigest:  hash.Keccak256([]byte("digest")),
	}

	first, err := notice.Encode(n)
	require.NoError(t, err)
	second, err := notice.Encode(n)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := notice.Decode([]byte{0x01, 0x02})
	assert.Error(t, err)

	_, err = notice.DecodeHex("not hex")
	assert.Error(t, err)
}

type mapFetcher struct {
	blocks  map[cid.Cid][]byte
	fetched []cid.Cid
}

func (f *mapFetcher) Fetch(_ context.Context, c cid.Cid) ([]byte, error) {
	f.fetched = append(f.fetched, c)
	data, ok := f.blocks[c]
	if !ok {
		return nil, errors.New("not found")
	}
	return data, nil
}

var _ contentstore.Fetcher = (*mapFetcher)(nil)

func TestBuildManifest(t *testing.T) {
	ctx := context.Background()
	a := blobs.NewBlob([]byte("a"))
	b := blobs.NewBlob([]byte("b"))
	fetcher := &mapFetcher{blocks: map[cid.Cid][]byte{
		a.Cid(): a.RawData(),
		b.Cid(): b.RawData(),
	}}

	t.Run("digests are computed locally", func(t *testing.T) {
		manifest, err := notice.BuildManifest(ctx, fetcher, []cid.Cid{a.Cid(), b.Cid()})
		require.NoError(t, err)

		assert.Equal(t, notice.Manifest{
			{Address: a.Cid(), Digest: hash.Keccak256([]byte("a"))},
			{Address: b.Cid(), Digest: hash.Keccak256([]byte("b"))},
		}, manifest)
		assert.Equal(t, []cid.Cid{a.Cid(), b.Cid()}, manifest.Addresses())
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		_, err := notice.BuildManifest(ctx, fetcher, []cid.Cid{a.Cid(), a.Cid()})
		assert.Error(t, err)
	})

	t.Run("fetch errors abort", func(t *testing.T) {
		missing := blobs.NewBlob([]byte("missing")).Cid()
		_, err := notice.BuildManifest(ctx, fetcher, []cid.Cid{a.Cid(), missing, b.Cid()})
		assert.Error(t, err)
	})
}

func TestManifestEncoding(t *testing.T) {
	a := blobs.NewBlob([]byte("a")).Cid()
	b := blobs.NewNodeBlob([]byte("b")).Cid()
	manifest := notice.Manifest{
		{Address: a, Digest: hash.Keccak256([]byte("a"))},
		{Address: b, Digest: hash.Keccak256([]byte("b"))},
	}

	encoded, err := manifest.MarshalCBOR()
	require.NoError(t, err)

	t.Run("array of address and digest pairs", func(t *testing.T) {
		var generic []interface{}
		require.NoError(t, cbor.Unmarshal(encoded, &generic))
		require.Len(t, generic, 2)

		pair, ok := generic[0].([]interface{})
		require.True(t, ok)
		require.Len(t, pair, 2)
		assert.Equal(t, a.String(), pair[0])
		assert.Equal(t, manifest[0].Digest.Bytes(), pair[1])
	})

	t.Run("round trip", func(t *testing.T) {
		decoded, err := notice.UnmarshalManifest(encoded)
		require.NoError(t, err)
		assert.Equal(t, manifest, decoded)
	})

	t.Run("digest covers the encoding", func(t *testing.T) {
		digest, raw, err := manifest.Digest()
		require.NoError(t, err)
		assert.Equal(t, encoded, raw)
		assert.Equal(t, hash.Keccak256(encoded), digest)
	})

	t.Run("empty manifest", func(t *testing.T) {
		raw, err := notice.Manifest{}.MarshalCBOR()
		require.NoError(t, err)
		assert.Equal(t, []byte{0x80}, raw)
	})
}
