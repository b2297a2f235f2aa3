package blobs

import (
	"context"
	"fmt"
	"sort"

	"github.com/ipfs/go-cid"
)

// DefaultChunkSize matches the default fixed-size chunker of IPFS nodes.
const DefaultChunkSize = 256 * 1024

// Builder splits content into keccak-addressed blobs and stores them.
//
// Content that fits in a single chunk is stored as one raw leaf, which is
// also its root. Larger content becomes a file node linking its leaves in
// order.
type Builder struct {
	store     Blobstore
	chunkSize int
}

func NewBuilder(store Blobstore, chunkSize int) *Builder {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Builder{
		store:     store,
		chunkSize: chunkSize,
	}
}

// DirEntry is a named file added under a directory node.
type DirEntry struct {
	Name string
	Data []byte
}

// AddFile stores data and returns the CID of its root blob.
func (b *Builder) AddFile(ctx context.Context, data []byte) (cid.Cid, error) {
	root, _, err := b.addFile(ctx, data)
	return root, err
}

func (b *Builder) addFile(ctx context.Context, data []byte) (cid.Cid, uint64, error) {
	if len(data) <= b.chunkSize {
		leaf := NewBlob(data)
		if err := b.store.Put(ctx, leaf); err != nil {
			return cid.Undef, 0, fmt.Errorf("could not store leaf: %w", err)
		}
		return leaf.Cid(), uint64(len(data)), nil
	}

	leaves := make([]Blob, 0, len(data)/b.chunkSize+1)
	links := make([]Link, 0, cap(leaves))
	for start := 0; start < len(data); start += b.chunkSize {
		end := start + b.chunkSize
		if end > len(data) {
			end = len(data)
		}
		leaf := NewBlob(data[start:end])
		leaves = append(leaves, leaf)
		links = append(links, Link{
			Size: uint64(end - start),
			Cid:  CidLink{leaf.Cid()},
		})
	}

	if err := b.store.PutMany(ctx, leaves); err != nil {
		return cid.Undef, 0, fmt.Errorf("could not store %d leaves: %w", len(leaves), err)
	}

	node := &Node{
		Type:  NodeFile,
		Size:  uint64(len(data)),
		Links: links,
	}
	return b.putNode(ctx, node)
}

// AddDirectory stores every entry as a file and links them by name under a
// directory node. Entries are sorted by name so the directory CID does not
// depend on the order they were given in.
func (b *Builder) AddDirectory(ctx context.Context, entries []DirEntry) (cid.Cid, error) {
	sorted := make([]DirEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Name < sorted[j].Name
	})

	node := &Node{
		Type:  NodeDirectory,
		Links: make([]Link, 0, len(sorted)),
	}
	for i, entry := range sorted {
		if entry.Name == "" {
			return cid.Undef, fmt.Errorf("directory entry %d has no name", i)
		}
		if i > 0 && sorted[i-1].Name == entry.Name {
			return cid.Undef, fmt.Errorf("duplicate directory entry %q", entry.Name)
		}

		c, size, err := b.addFile(ctx, entry.Data)
		if err != nil {
			return cid.Undef, fmt.Errorf("could not add %q: %w", entry.Name, err)
		}
		node.Size += size
		node.Links = append(node.Links, Link{
			Name: entry.Name,
			Size: size,
			Cid:  CidLink{c},
		})
	}

	root, _, err := b.putNode(ctx, node)
	return root, err
}

func (b *Builder) putNode(ctx context.Context, node *Node) (cid.Cid, uint64, error) {
	blob, err := node.Encode()
	if err != nil {
		return cid.Undef, 0, err
	}
	if err := b.store.Put(ctx, blob); err != nil {
		return cid.Undef, 0, fmt.Errorf("could not store %s node: %w", node.Type, err)
	}
	return blob.Cid(), node.Size, nil
}

// Walk returns every CID reachable from root, root first, in depth-first
// pre-order with duplicates removed.
func Walk(ctx context.Context, store Blobstore, root cid.Cid) ([]cid.Cid, error) {
	seen := make(map[cid.Cid]struct{})
	var out []cid.Cid

	stack := []cid.Cid{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)

		blob, err := store.Get(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("could not get blob %v: %w", c, err)
		}
		links, err := Links(blob)
		if err != nil {
			return nil, err
		}
		// push in reverse so the first link is visited first
		for i := len(links) - 1; i >= 0; i-- {
			stack = append(stack, links[i])
		}
	}

	return out, nil
}
