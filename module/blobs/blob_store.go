package blobs

import (
	"context"
	"errors"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/go-datastore"
	dssync "github.com/ipfs/go-datastore/sync"
	blockstore "github.com/ipfs/go-ipfs-blockstore"
	ipld "github.com/ipfs/go-ipld-format"
)

type Blobstore interface {
	Has(context.Context, cid.Cid) (bool, error)
	Get(context.Context, cid.Cid) (Blob, error)

	// GetSize returns the CIDs mapped BlobSize
	GetSize(context.Context, cid.Cid) (int, error)

	// Put puts a given blob to the underlying datastore
	Put(context.Context, Blob) error

	// PutMany puts a slice of blobs at the same time using batching
	// capabilities of the underlying datastore whenever possible.
	PutMany(context.Context, []Blob) error
}

var ErrNotFound = errors.New("blobstore: blob not found")

type blobstoreImpl struct {
	bs blockstore.Blockstore
}

func NewBlobstore(ds datastore.Batching) *blobstoreImpl {
	return &blobstoreImpl{bs: blockstore.NewBlockstore(ds)}
}

// NewMemoryBlobstore returns a Blobstore backed by a thread-safe in-memory datastore.
func NewMemoryBlobstore() *blobstoreImpl {
	return NewBlobstore(dssync.MutexWrap(datastore.NewMapDatastore()))
}

func (bs *blobstoreImpl) Has(ctx context.Context, c cid.Cid) (bool, error) {
	return bs.bs.Has(ctx, c)
}

func (bs *blobstoreImpl) Get(ctx context.Context, c cid.Cid) (Blob, error) {
	blob, err := bs.bs.Get(ctx, c)
	if ipld.IsNotFound(err) {
		return nil, ErrNotFound
	}

	return blob, err
}

func (bs *blobstoreImpl) GetSize(ctx context.Context, c cid.Cid) (int, error) {
	size, err := bs.bs.GetSize(ctx, c)
	if ipld.IsNotFound(err) {
		return 0, ErrNotFound
	}

	return size, err
}

func (bs *blobstoreImpl) Put(ctx context.Context, blob Blob) error {
	return bs.bs.Put(ctx, blob)
}

func (bs *blobstoreImpl) PutMany(ctx context.Context, blobs []Blob) error {
	return bs.bs.PutMany(ctx, blobs)
}
