package canvas

import (
	"encoding/json"
	"fmt"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
)

// Snapshot is the persisted form of a Document.
type Snapshot struct {
	Nodes    []Node    `json:"nodes"`
	Edges    []Edge    `json:"edges"`
	Viewport *Viewport `json:"viewport,omitempty"`
}

// Snapshot captures the document graph and viewport.
func (d *Document) Snapshot() Snapshot {
	vp := d.viewport
	return Snapshot{Nodes: d.Nodes(), Edges: d.Edges(), Viewport: &vp}
}

// Clone returns an independent deep copy of the document.
func (d *Document) Clone() *Document {
	c := New(d.reg, WithIDGenerator(d.newID))
	c.viewport = d.viewport
	for _, id := range d.nodeOrder {
		n := d.nodes[id].clone()
		c.nodes[id] = &n
	}
	c.nodeOrder = append(c.nodeOrder, d.nodeOrder...)
	for _, id := range d.edgeOrder {
		e := *d.edges[id]
		c.edges[id] = &e
	}
	c.edgeOrder = append(c.edgeOrder, d.edgeOrder...)
	return c
}

// Marshal encodes the snapshot as JSON.
func (s Snapshot) Marshal() ([]byte, error) {
	if s.Nodes == nil {
		s.Nodes = []Node{}
	}
	if s.Edges == nil {
		s.Edges = []Edge{}
	}
	return json.Marshal(s)
}

// DecodeSnapshot parses persisted JSON.
func DecodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("%w: %v", apperr.ErrMalformedSnapshot, err)
	}
	return s, nil
}

// Restore rebuilds a document from snap. Missing collections and viewport
// take their defaults and node content is normalised to its schema. A node
// with an unknown type, an empty id or a duplicate id makes the snapshot
// malformed. Edges that dangle, loop or repeat are dropped.
func Restore(reg *blocks.Registry, snap Snapshot, opts ...Option) (*Document, error) {
	d := New(reg, opts...)
	for _, n := range snap.Nodes {
		if n.ID == "" {
			return nil, fmt.Errorf("%w: node without id", apperr.ErrMalformedSnapshot)
		}
		if _, dup := d.nodes[n.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate node %s", apperr.ErrMalformedSnapshot, n.ID)
		}
		tpl, err := reg.Lookup(n.BlockType)
		if err != nil {
			return nil, fmt.Errorf("%w: node %s: %w", apperr.ErrMalformedSnapshot, n.ID, err)
		}
		if n.Label == "" {
			n.Label = tpl.Title
		}
		n.Content = blocks.Normalize(n.BlockType, n.Content)
		d.nodes[n.ID] = &n
		d.nodeOrder = append(d.nodeOrder, n.ID)
	}
	for _, e := range snap.Edges {
		_, okS := d.nodes[e.Source]
		_, okT := d.nodes[e.Target]
		_, dupID := d.edges[e.ID]
		if e.ID == "" || dupID || !okS || !okT || e.Source == e.Target || d.hasEdge(e.Source, e.Target) {
			continue
		}
		if e.Style.Type == "" {
			e.Style = DefaultEdgeStyle
		}
		d.edges[e.ID] = &e
		d.edgeOrder = append(d.edgeOrder, e.ID)
	}
	if snap.Viewport != nil {
		d.SetViewport(*snap.Viewport)
	}
	return d, nil
}
