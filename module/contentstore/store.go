package contentstore

import (
	"context"

	"github.com/ipfs/go-cid"
)

// File is a named file published under a directory.
type File struct {
	Name string
	Data []byte
}

// Fetcher retrieves the raw bytes of a single block.
type Fetcher interface {
	Fetch(ctx context.Context, c cid.Cid) ([]byte, error)
}

// Store publishes content to a content-addressed store and resolves the
// block graph of published roots. Every publish asks the store to address
// content with keccak-256 and CIDv1, but the addresses it returns are only
// used as lookup keys: callers verify and re-hash blocks themselves.
//
// No method retries: any error must abort the caller's batch.
type Store interface {
	Fetcher

	// Publish uploads data as a single file and returns its root address.
	Publish(ctx context.Context, name string, data []byte) (cid.Cid, error)

	// PublishDirectory uploads files wrapped in a directory and returns the
	// directory's address.
	PublishDirectory(ctx context.Context, files []File) (cid.Cid, error)

	// EnumerateBlocks returns every address reachable from root, root first,
	// without duplicates. The order is stable for a given graph.
	EnumerateBlocks(ctx context.Context, root cid.Cid) ([]cid.Cid, error)
}
