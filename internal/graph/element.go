package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ElementKind distinguishes the two element variants.
type ElementKind string

const (
	KindNode ElementKind = "node"
	KindEdge ElementKind = "edge"
)

// Element is either a *Node or an *Edge. The interface is sealed; callers
// switch on the concrete type.
type Element interface {
	ElementID() string
	Kind() ElementKind
	DisplayLabel() string
	Props() map[string]any
	element()
}

// ============================ WIRE FORMAT =================================

// Payload is the element document exchanged with the graph backend:
// {"elements": [{"data": {...}}, ...]}.
type Payload struct {
	Elements []WireElement `json:"elements"`
}

// WireElement wraps one element's data the way the rendering library
// expects it.
type WireElement struct {
	Data WireData `json:"data"`
}

// WireData is the union of node and edge fields. Presence of Source and
// Target decides the variant.
type WireData struct {
	ID         looseString    `json:"id,omitempty"`
	Label      looseString    `json:"label,omitempty"`
	Type       string         `json:"type,omitempty"`
	Labels     []string       `json:"labels,omitempty"`
	Source     looseString    `json:"source,omitempty"`
	Target     looseString    `json:"target,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// looseString accepts JSON strings and numbers. Graph stores hand out
// numeric identifiers as often as string ones.
type looseString string

func (s *looseString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}
	if data[0] == '"' {
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = looseString(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*s = looseString(n.String())
	return nil
}

// DecodeReport counts what the ingestion boundary dropped.
type DecodeReport struct {
	Nodes          int `json:"nodes"`
	Edges          int `json:"edges"`
	MissingID      int `json:"missing_id"`
	DanglingEnd    int `json:"dangling_end"`
	DuplicateNode  int `json:"duplicate_node"`
	SynthesizedIDs int `json:"synthesized_ids"`
}

// Dropped returns the number of elements that did not survive decoding.
func (r DecodeReport) Dropped() int {
	return r.MissingID + r.DanglingEnd + r.DuplicateNode
}

// DecodeElements parses a backend payload into typed elements. It fails only
// on invalid JSON; elements of the wrong shape are dropped and counted.
func DecodeElements(data []byte) ([]Element, DecodeReport, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, DecodeReport{}, fmt.Errorf("graph: decode payload: %w", err)
	}
	els, rep := p.Decode()
	return els, rep, nil
}

// Decode converts wire elements into typed elements.
func (p Payload) Decode() ([]Element, DecodeReport) {
	var rep DecodeReport
	out := make([]Element, 0, len(p.Elements))
	seenNodes := make(map[string]bool)

	for i, we := range p.Elements {
		d := we.Data
		src, tgt := string(d.Source), string(d.Target)

		switch {
		case src == "" && tgt == "":
			id := string(d.ID)
			if id == "" {
				rep.MissingID++
				continue
			}
			if seenNodes[id] {
				rep.DuplicateNode++
				continue
			}
			seenNodes[id] = true
			label := string(d.Label)
			if label == "" {
				label = id
			}
			out = append(out, &Node{
				ID:         id,
				Label:      label,
				Type:       Category(d.Type),
				Labels:     d.Labels,
				Properties: d.Properties,
			})
			rep.Nodes++

		case src != "" && tgt != "":
			id := string(d.ID)
			label := string(d.Label)
			if id == "" {
				id = EdgeID(src, tgt, label, i)
				rep.SynthesizedIDs++
			}
			out = append(out, &Edge{
				ID:         id,
				Source:     src,
				Target:     tgt,
				Label:      label,
				Properties: d.Properties,
			})
			rep.Edges++

		default:
			rep.DanglingEnd++
		}
	}
	return out, rep
}

// EncodeElements renders typed elements back into the wire format.
func EncodeElements(elements []Element) Payload {
	p := Payload{Elements: make([]WireElement, 0, len(elements))}
	for _, el := range elements {
		switch v := el.(type) {
		case *Node:
			p.Elements = append(p.Elements, WireElement{Data: WireData{
				ID:         looseString(v.ID),
				Label:      looseString(v.Label),
				Type:       string(v.Type),
				Labels:     v.Labels,
				Properties: v.Properties,
			}})
		case *Edge:
			p.Elements = append(p.Elements, WireElement{Data: WireData{
				ID:         looseString(v.ID),
				Label:      looseString(v.Label),
				Source:     looseString(v.Source),
				Target:     looseString(v.Target),
				Properties: v.Properties,
			}})
		}
	}
	return p
}
