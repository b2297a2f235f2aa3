package blobs_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"testing"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wartime-penguins/notary/model/hash"
	"github.com/wartime-penguins/notary/module/blobs"
)

// TestBlobCIDLength tests that the CID length of a blob is equal to blobs.CidLength bytes.
// If this test fails, it means that the default CID length of a blob has changed, probably
// due to a change in the CID format used by our underlying dependencies.
func TestBlobCIDLength(t *testing.T) {
	data := make([]byte, 100)
	_, _ = rand.Read(data)

	assert.Equal(t, blobs.CidLength, blobs.NewBlob(data).Cid().ByteLen())
	assert.Equal(t, blobs.CidLength, blobs.NewNodeBlob(data).Cid().ByteLen())
}

func TestBlobIsKeccakAddressed(t *testing.T) {
	data := []byte("penguin")
	blob := blobs.NewBlob(data)

	prefix := blob.Cid().Prefix()
	assert.Equal(t, uint64(1), prefix.Version)
	assert.Equal(t, uint64(cid.Raw), prefix.Codec)
	assert.Equal(t, uint64(multihash.KECCAK_256), prefix.MhType)

	decoded, err := multihash.Decode(blob.Cid().Hash())
	require.NoError(t, err)
	digest := hash.Keccak256(data)
	assert.Equal(t, digest[:], decoded.Digest)
}

func TestBuilder_SingleChunk(t *testing.T) {
	ctx := context.Background()
	store := blobs.NewMemoryBlobstore()
	builder := blobs.NewBuilder(store, 16)

	data := []byte("small")
	root, err := builder.AddFile(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, blobs.NewBlob(data).Cid(), root)

	cids, err := blobs.Walk(ctx, store, root)
	require.NoError(t, err)
	assert.Equal(t, []cid.Cid{root}, cids)
}

func TestBuilder_ChunkedFile(t *testing.T) {
	ctx := context.Background()
	store := blobs.NewMemoryBlobstore()
	builder := blobs.NewBuilder(store, 4)

	// the two "abcd" chunks share a leaf
	data := []byte("abcdabcdxyz")
	root, err := builder.AddFile(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(cid.DagCBOR), root.Prefix().Codec)

	rootBlob, err := store.Get(ctx, root)
	require.NoError(t, err)
	node, err := blobs.DecodeNode(rootBlob)
	require.NoError(t, err)
	assert.Equal(t, blobs.NodeFile, node.Type)
	assert.Equal(t, uint64(len(data)), node.Size)
	require.Len(t, node.Links, 3)

	var reassembled bytes.Buffer
	for _, l := range node.Links {
		leaf, err := store.Get(ctx, l.Cid.Cid)
		require.NoError(t, err)
		reassembled.Write(leaf.RawData())
	}
	assert.Equal(t, data, reassembled.Bytes())

	cids, err := blobs.Walk(ctx, store, root)
	require.NoError(t, err)
	assert.Equal(t, []cid.Cid{
		root,
		blobs.NewBlob([]byte("abcd")).Cid(),
		blobs.NewBlob([]byte("xyz")).Cid(),
	}, cids)
}

func TestBuilder_Directory(t *testing.T) {
	ctx := context.Background()
	store := blobs.NewMemoryBlobstore()
	builder := blobs.NewBuilder(store, 0)

	entries := []blobs.DirEntry{
		{Name: "b.json", Data: []byte(`{"b":1}`)},
		{Name: "a.json", Data: []byte(`{"a":1}`)},
	}
	root, err := builder.AddDirectory(ctx, entries)
	require.NoError(t, err)

	t.Run("order independent", func(t *testing.T) {
		reversed, err := builder.AddDirectory(ctx, []blobs.DirEntry{entries[1], entries[0]})
		require.NoError(t, err)
		assert.Equal(t, root, reversed)
	})

	t.Run("links are named and sorted", func(t *testing.T) {
		rootBlob, err := store.Get(ctx, root)
		require.NoError(t, err)
		node, err := blobs.DecodeNode(rootBlob)
		require.NoError(t, err)

		assert.Equal(t, blobs.NodeDirectory, node.Type)
		require.Len(t, node.Links, 2)
		assert.Equal(t, "a.json", node.Links[0].Name)
		assert.Equal(t, "b.json", node.Links[1].Name)
	})

	t.Run("duplicate names are rejected", func(t *testing.T) {
		_, err := builder.AddDirectory(ctx, []blobs.DirEntry{entries[0], entries[0]})
		assert.Error(t, err)
	})
}

func TestBlobstore_NotFound(t *testing.T) {
	store := blobs.NewMemoryBlobstore()

	_, err := store.Get(context.Background(), blobs.NewBlob([]byte("missing")).Cid())
	assert.ErrorIs(t, err, blobs.ErrNotFound)
}
