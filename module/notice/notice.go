package notice

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/wartime-penguins/notary/model/hash"
)

// Notice attests to a published metadata document and the manifest of its
// blocks. It is ABI-encoded as (string, bytes32) so contracts can decode it.
type Notice struct {
	MetadataAddress string
	ManifestDigest  hash.Digest
}

var arguments abi.Arguments

func init() {
	stringType, err := abi.NewType("string", "", nil)
	if err != nil {
		panic(err)
	}
	bytes32Type, err := abi.NewType("bytes32", "", nil)
	if err != nil {
		panic(err)
	}
	arguments = abi.Arguments{
		{Name: "metadataAddress", Type: stringType},
		{Name: "manifestDigest", Type: bytes32Type},
	}
}

// Encode returns the ABI encoding of the notice.
func Encode(n Notice) ([]byte, error) {
	encoded, err := arguments.Pack(n.MetadataAddress, [hash.DigestSize]byte(n.ManifestDigest))
	if err != nil {
		return nil, fmt.Errorf("could not abi-encode notice: %w", err)
	}
	return encoded, nil
}

// EncodeHex returns the 0x-prefixed hex form of Encode.
func EncodeHex(n Notice) (string, error) {
	encoded, err := Encode(n)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(encoded), nil
}

// Decode parses an ABI-encoded notice.
func Decode(data []byte) (Notice, error) {
	values, err := arguments.Unpack(data)
	if err != nil {
		return Notice{}, fmt.Errorf("could not abi-decode notice: %w", err)
	}
	if len(values) != len(arguments) {
		return Notice{}, fmt.Errorf("decoded %d notice fields, expected %d", len(values), len(arguments))
	}

	address, ok := values[0].(string)
	if !ok {
		return Notice{}, fmt.Errorf("unexpected metadata address type %T", values[0])
	}
	digest, ok := values[1].([hash.DigestSize]byte)
	if !ok {
		return Notice{}, fmt.Errorf("unexpected manifest digest type %T", values[1])
	}

	return Notice{
		MetadataAddress: address,
		ManifestDigest:  hash.Digest(digest),
	}, nil
}

// DecodeHex parses the 0x-prefixed hex form of a notice.
func DecodeHex(s string) (Notice, error) {
	data, err := hexutil.Decode(s)
	if err != nil {
		return Notice{}, fmt.Errorf("invalid notice hex: %w", err)
	}
	return Decode(data)
}
