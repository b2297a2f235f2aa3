package hash

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/multiformats/go-multihash"
)

// DigestSize is the length in bytes of a Keccak-256 digest.
const DigestSize = 32

// MultihashCode is the multihash code of the only hash algorithm accepted for
// published content.
const MultihashCode = multihash.KECCAK_256

// Digest is a Keccak-256 digest.
type Digest [DigestSize]byte

// Keccak256 computes the Keccak-256 digest of the concatenation of data.
// It uses the original Keccak padding, not the NIST SHA3-256 one, so digests
// match what EVM contracts compute with keccak256.
func Keccak256(data ...[]byte) Digest {
	return Digest(crypto.Keccak256Hash(data...))
}

// Seed derives the synthesizer seed from a request payload: the first eight
// bytes of the payload's Keccak-256 digest, read big-endian.
func Seed(payload []byte) uint64 {
	d := Keccak256(payload)
	return binary.BigEndian.Uint64(d[:8])
}

// Multihash wraps the digest in a keccak-256 multihash.
func (d Digest) Multihash() multihash.Multihash {
	// Encode only fails for unknown codes or mismatched lengths.
	mh, err := multihash.Encode(d[:], MultihashCode)
	if err != nil {
		panic(err)
	}
	return mh
}

func (d Digest) Bytes() []byte {
	return d[:]
}

func (d Digest) Hex() string {
	return "0x" + hex.EncodeToString(d[:])
}

func (d Digest) String() string {
	return d.Hex()
}
