package blobs

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/ipfs/go-cid"
)

// cidTag is the CBOR tag dag-cbor reserves for links.
const cidTag = 42

// Link is a named, sized reference to another blob. It encodes as a dag-cbor
// link: tag 42 over the binary CID prefixed with the multibase identity byte.
type Link struct {
	Name string  `cbor:"Name"`
	Size uint64  `cbor:"Size"`
	Cid  CidLink `cbor:"Hash"`
}

type CidLink struct {
	cid.Cid
}

func (l CidLink) MarshalCBOR() ([]byte, error) {
	if !l.Defined() {
		return nil, fmt.Errorf("cannot encode undefined cid link")
	}
	return encMode.Marshal(cbor.Tag{
		Number:  cidTag,
		Content: append([]byte{0x00}, l.Bytes()...),
	})
}

func (l *CidLink) UnmarshalCBOR(data []byte) error {
	var tag cbor.RawTag
	if err := decMode.Unmarshal(data, &tag); err != nil {
		return fmt.Errorf("could not decode cid link: %w", err)
	}
	if tag.Number != cidTag {
		return fmt.Errorf("unexpected cbor tag %d for cid link", tag.Number)
	}

	var raw []byte
	if err := decMode.Unmarshal(tag.Content, &raw); err != nil {
		return fmt.Errorf("could not decode cid link content: %w", err)
	}
	if len(raw) == 0 || raw[0] != 0x00 {
		return fmt.Errorf("cid link is missing the identity multibase prefix")
	}

	c, err := cid.Cast(raw[1:])
	if err != nil {
		return fmt.Errorf("could not cast cid link: %w", err)
	}
	l.Cid = c
	return nil
}

// Node is an interior dag-cbor blob. File nodes link to their chunks in
// order, directory nodes link to their named entries.
type Node struct {
	Type  NodeType `cbor:"Type"`
	Size  uint64   `cbor:"Size"`
	Links []Link   `cbor:"Links"`
}

type NodeType uint8

const (
	NodeFile NodeType = iota + 1
	NodeDirectory
)

func (t NodeType) String() string {
	switch t {
	case NodeFile:
		return "file"
	case NodeDirectory:
		return "directory"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
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
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

// Encode returns the canonical dag-cbor blob for the node.
func (n *Node) Encode() (Blob, error) {
	data, err := encMode.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("could not encode %s node: %w", n.Type, err)
	}
	return NewNodeBlob(data), nil
}

// DecodeNode decodes a dag-cbor blob into a Node.
func DecodeNode(blob Blob) (*Node, error) {
	if blob.Cid().Prefix().Codec != cid.DagCBOR {
		return nil, fmt.Errorf("blob %v is not a dag-cbor node", blob.Cid())
	}

	var n Node
	if err := decMode.Unmarshal(blob.RawData(), &n); err != nil {
		return nil, fmt.Errorf("could not decode node %v: %w", blob.Cid(), err)
	}
	return &n, nil
}

// Links returns the CIDs a blob links to, in order. Raw leaves have none.
func Links(blob Blob) ([]cid.Cid, error) {
	switch blob.Cid().Prefix().Codec {
	case cid.Raw:
		return nil, nil
	case cid.DagCBOR:
		n, err := DecodeNode(blob)
		if err != nil {
			return nil, err
		}
		cids := make([]cid.Cid, 0, len(n.Links))
		for _, l := range n.Links {
			cids = append(cids, l.Cid.Cid)
		}
		return cids, nil
	default:
		return nil, fmt.Errorf("unsupported codec %#x for blob %v", blob.Cid().Prefix().Codec, blob.Cid())
	}
}
