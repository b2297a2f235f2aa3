package blobs

import (
	"fmt"

	badgerds "github.com/ipfs/go-ds-badger2"
)

// BadgerBlobstore is a Blobstore persisted in a badger database on disk.
type BadgerBlobstore struct {
	*blobstoreImpl
	ds *badgerds.Datastore
}

// NewBadgerBlobstore opens, or creates, the badger database at path.
func NewBadgerBlobstore(path string) (*BadgerBlobstore, error) {
	ds, err := badgerds.NewDatastore(path, &badgerds.DefaultOptions)
	if err != nil {
		return nil, fmt.Errorf("could not open badger datastore at %s: %w", path, err)
	}

	return &BadgerBlobstore{
		blobstoreImpl: NewBlobstore(ds),
		ds:            ds,
	}, nil
}

func (b *BadgerBlobstore) Close() error {
	return b.ds.Close()
}
