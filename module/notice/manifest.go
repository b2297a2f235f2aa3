package notice

import (
	"context"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"

	"github.com/wartime-penguins/notary/model/hash"
	"github.com/wartime-penguins/notary/module/contentstore"
)

// Entry pairs a block address with the locally computed digest of its bytes.
type Entry struct {
	Address cid.Cid
	Digest  hash.Digest
}

// Manifest lists every block of a published graph, root first.
type Manifest []Entry

// wireEntry is the encoded form of an Entry: a two element CBOR array of
// the address string and the raw digest.
type wireEntry struct {
	_       struct{} `cbor:",toarray"`
	Address string
	Digest  []byte
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	decMode, err = cbor.DecOptions{
		DupMapKey: cbor.DupMapKeyEnforcedAPF,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}

// BuildManifest fetches every block and hashes its bytes. The store's own
// addressing is never trusted as the digest. cids must already be verified
// and free of duplicates; any fetch error aborts the whole manifest.
func BuildManifest(ctx context.Context, fetcher contentstore.Fetcher, cids []cid.Cid) (Manifest, error) {
	manifest := make(Manifest, 0, len(cids))
	seen := make(map[cid.Cid]struct{}, len(cids))

	for _, c := range cids {
		if _, ok := seen[c]; ok {
			return nil, fmt.Errorf("duplicate block %v in manifest", c)
		}
		seen[c] = struct{}{}

		data, err := fetcher.Fetch(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("could not fetch block %v: %w", c, err)
		}
		manifest = append(manifest, Entry{
			Address: c,
			Digest:  hash.Keccak256(data),
		})
	}

	return manifest, nil
}

// Addresses returns the manifest's addresses in order.
func (m Manifest) Addresses() []cid.Cid {
	cids := make([]cid.Cid, 0, len(m))
	for _, e := range m {
		cids = append(cids, e.Address)
	}
	return cids
}

// MarshalCBOR encodes the manifest as a canonical CBOR array of
// [address, digest] pairs.
func (m Manifest) MarshalCBOR() ([]byte, error) {
	wire := make([]wireEntry, 0, len(m))
	for _, e := range m {
		wire = append(wire, wireEntry{
			Address: e.Address.String(),
			Digest:  e.Digest.Bytes(),
		})
	}
	return encMode.Marshal(wire)
}

// Digest returns the keccak-256 digest of the encoded manifest.
func (m Manifest) Digest() (hash.Digest, []byte, error) {
	encoded, err := m.MarshalCBOR()
	if err != nil {
		return hash.Digest{}, nil, fmt.Errorf("could not encode manifest: %w", err)
	}
	return hash.Keccak256(encoded), encoded, nil
}

// UnmarshalManifest decodes a manifest produced by MarshalCBOR.
func UnmarshalManifest(data []byte) (Manifest, error) {
	var wire []wireEntry
	if err := decMode.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("could not decode manifest: %w", err)
	}

	m := make(Manifest, 0, len(wire))
	for i, w := range wire {
		c, err := cid.Decode(w.Address)
		if err != nil {
			return nil, fmt.Errorf("entry %d has invalid address %q: %w", i, w.Address, err)
		}
		if len(w.Digest) != hash.DigestSize {
			return nil, fmt.Errorf("entry %d has a %d byte digest, expected %d", i, len(w.Digest), hash.DigestSize)
		}
		var d hash.Digest
		copy(d[:], w.Digest)
		m = append(m, Entry{Address: c, Digest: d})
	}
	return m, nil
}
