package contentstore

import (
	"context"
	"fmt"

	"github.com/ipfs/go-cid"

	"github.com/wartime-penguins/notary/module/blobs"
)

// Local is a Store kept in process on top of a Blobstore.
type Local struct {
	store   blobs.Blobstore
	builder *blobs.Builder
}

var _ Store = (*Local)(nil)

func NewLocal(store blobs.Blobstore, chunkSize int) *Local {
	return &Local{
		store:   store,
		builder: blobs.NewBuilder(store, chunkSize),
	}
}

func (l *Local) Publish(ctx context.Context, name string, data []byte) (cid.Cid, error) {
	c, err := l.builder.AddFile(ctx, data)
	if err != nil {
		return cid.Undef, fmt.Errorf("could not publish %q: %w", name, err)
	}
	return c, nil
}

func (l *Local) PublishDirectory(ctx context.Context, files []File) (cid.Cid, error) {
	entries := make([]blobs.DirEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, blobs.DirEntry{Name: f.Name, Data: f.Data})
	}

	c, err := l.builder.AddDirectory(ctx, entries)
	if err != nil {
		return cid.Undef, fmt.Errorf("could not publish directory: %w", err)
	}
	return c, nil
}

func (l *Local) EnumerateBlocks(ctx context.Context, root cid.Cid) ([]cid.Cid, error) {
	return blobs.Walk(ctx, l.store, root)
}

func (l *Local) Fetch(ctx context.Context, c cid.Cid) ([]byte, error) {
	blob, err := l.store.Get(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("could not fetch %v: %w", c, err)
	}
	return blob.RawData(), nil
}
