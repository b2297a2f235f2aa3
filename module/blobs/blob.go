package blobs

import (
	"fmt"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"

	"github.com/wartime-penguins/notary/model/hash"
)

// CidLength is the byte length of every CID produced by this package:
// version, codec, multihash code and digest length (one varint byte each)
// followed by the 32 byte keccak-256 digest.
const CidLength = 36

type Blob = blocks.Block

// NewCid returns the CIDv1 of data for the given codec, addressed by its
// keccak-256 multihash.
func NewCid(codec uint64, data []byte) cid.Cid {
	return cid.NewCidV1(codec, hash.Keccak256(data).Multihash())
}

// NewBlob returns a raw-codec blob addressed by the keccak-256 digest of data.
func NewBlob(data []byte) Blob {
	return mustBlock(data, NewCid(cid.Raw, data))
}

// NewNodeBlob returns a dag-cbor blob addressed by the keccak-256 digest of data.
func NewNodeBlob(data []byte) Blob {
	return mustBlock(data, NewCid(cid.DagCBOR, data))
}

func mustBlock(data []byte, c cid.Cid) Blob {
	b, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		// only reachable with hash verification enabled on a mismatching cid
		panic(fmt.Errorf("could not create blob %v: %w", c, err))
	}
	return b
}
