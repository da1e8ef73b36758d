package graph

import (
	"encoding/json"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Dataset is one fetched graph: nodes and edges in payload order. It is
// immutable once built; every derived view is recomputed from it.
type Dataset struct {
	Nodes []*Node
	Edges []*Edge

	nodeByID    map[string]*Node
	edgeByID    map[string]*Edge
	fingerprint uint64
}

// NewDataset builds a dataset from decoded elements. Duplicate node or edge
// ids keep their first occurrence.
func NewDataset(elements []Element) *Dataset {
	ds := &Dataset{
		nodeByID: make(map[string]*Node),
		edgeByID: make(map[string]*Edge),
	}
	for _, el := range elements {
		switch v := el.(type) {
		case *Node:
			if _, dup := ds.nodeByID[v.ID]; dup {
				continue
			}
			ds.nodeByID[v.ID] = v
			ds.Nodes = append(ds.Nodes, v)
		case *Edge:
			if _, dup := ds.edgeByID[v.ID]; dup {
				continue
			}
			ds.edgeByID[v.ID] = v
			ds.Edges = append(ds.Edges, v)
		}
	}
	ds.fingerprint = fingerprint(ds)
	return ds
}

// DecodeDataset parses a payload straight into a dataset.
func DecodeDataset(data []byte) (*Dataset, DecodeReport, error) {
	els, rep, err := DecodeElements(data)
	if err != nil {
		return nil, rep, err
	}
	return NewDataset(els), rep, nil
}

// Node looks up a node by id.
func (d *Dataset) Node(id string) (*Node, bool) {
	n, ok := d.nodeByID[id]
	return n, ok
}

// Edge looks up an edge by id.
func (d *Dataset) Edge(id string) (*Edge, bool) {
	e, ok := d.edgeByID[id]
	return e, ok
}

// Element looks up a node or an edge by id. Nodes win on collision.
func (d *Dataset) Element(id string) (Element, bool) {
	if n, ok := d.nodeByID[id]; ok {
		return n, true
	}
	if e, ok := d.edgeByID[id]; ok {
		return e, true
	}
	return nil, false
}

// Empty reports whether the dataset has no nodes.
func (d *Dataset) Empty() bool {
	return d == nil || len(d.Nodes) == 0
}

// Fingerprint identifies the dataset by value.
func (d *Dataset) Fingerprint() uint64 {
	return d.fingerprint
}

// FingerprintHex is Fingerprint formatted for logs and storage.
func (d *Dataset) FingerprintHex() string {
	return strconv.FormatUint(d.fingerprint, 16)
}

// Elements returns nodes followed by edges.
func (d *Dataset) Elements() []Element {
	out := make([]Element, 0, len(d.Nodes)+len(d.Edges))
	for _, n := range d.Nodes {
		out = append(out, n)
	}
	for _, e := range d.Edges {
		out = append(out, e)
	}
	return out
}

// Payload renders the dataset in the backend wire format.
func (d *Dataset) Payload() Payload {
	return EncodeElements(d.Elements())
}

// MarshalJSON encodes the dataset as a wire payload.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Payload())
}

// fingerprint hashes the canonical encoding. encoding/json sorts map keys,
// so equal datasets hash equally regardless of property insertion order.
func fingerprint(d *Dataset) uint64 {
	h := xxhash.New()
	enc := json.NewEncoder(h)
	for _, el := range d.Elements() {
		// Encoding into a hash cannot fail for these types.
		_ = enc.Encode(EncodeElements([]Element{el}).Elements[0])
	}
	return h.Sum64()
}
