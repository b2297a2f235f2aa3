package verification

import (
	"errors"
	"fmt"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"github.com/wartime-penguins/notary/model/hash"
)

// WrongHashError is returned when an address declares a hash algorithm
// other than keccak-256.
type WrongHashError struct {
	Address cid.Cid
	Code    uint64
}

func (e *WrongHashError) Error() string {
	name, ok := multihash.Codes[e.Code]
	if !ok {
		name = "unknown"
	}
	return fmt.Sprintf("address %v declares hash %s (%#x), expected %s (%#x)",
		e.Address, name, e.Code, multihash.Codes[hash.MultihashCode], uint64(hash.MultihashCode))
}

func IsWrongHashError(err error) bool {
	var wrongHash *WrongHashError
	return errors.As(err, &wrongHash)
}

// Verify reports whether the address declares keccak-256. It looks at the
// multihash only and never fetches or re-hashes content.
func Verify(c cid.Cid) bool {
	return Check(c) == nil
}

// Check is Verify returning a descriptive error.
func Check(c cid.Cid) error {
	if !c.Defined() {
		return fmt.Errorf("address is undefined")
	}

	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return fmt.Errorf("could not decode multihash of %v: %w", c, err)
	}
	if decoded.Code != hash.MultihashCode {
		return &WrongHashError{Address: c, Code: decoded.Code}
	}
	if decoded.Length != hash.DigestSize {
		return fmt.Errorf("address %v declares a %d byte digest, expected %d", c, decoded.Length, hash.DigestSize)
	}
	return nil
}

// VerifyAll checks every address and returns the error of the first one
// that fails. Either all addresses declare keccak-256 or none may be used.
func VerifyAll(cids []cid.Cid) error {
	for _, c := range cids {
		if err := Check(c); err != nil {
			return err
		}
	}
	return nil
}
