// Package canvas is the in-memory graph of a requirements document: block
// nodes placed on a 2D plane and directed edges between them.
package canvas

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
)

// Default edge style applied by Connect.
const (
	EdgeTypeSmoothStep = "smoothstep"
)

// Point is a position in canvas or screen space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one placed block.
type Node struct {
	ID        string         `json:"id"`
	BlockType blocks.Type    `json:"blockType"`
	Content   blocks.Content `json:"content"`
	Position  Point          `json:"position"`
	Label     string         `json:"label"`
}

func (n Node) clone() Node {
	n.Content = n.Content.Clone()
	return n
}

// EdgeStyle carries the rendering hints of an edge.
type EdgeStyle struct {
	Type     string `json:"type"`
	Animated bool   `json:"animated"`
}

// Edge is a directed connection from Source's output to Target's input.
type Edge struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Target string    `json:"target"`
	Style  EdgeStyle `json:"style"`
}

// DefaultEdgeStyle is the style given to newly connected edges.
var DefaultEdgeStyle = EdgeStyle{Type: EdgeTypeSmoothStep, Animated: true}

// Document owns the nodes, edges and viewport of one requirements document.
// It is not safe for concurrent use; callers serialise access.
type Document struct {
	reg *blocks.Registry

	nodes     map[string]*Node
	nodeOrder []string
	edges     map[string]*Edge
	edgeOrder []string
	viewport  Viewport

	newID func() string
}

// Option configures a Document.
type Option func(*Document)

// WithIDGenerator overrides the node and edge id source.
func WithIDGenerator(fn func() string) Option {
	return func(d *Document) { d.newID = fn }
}

// New returns an empty document bound to reg.
func New(reg *blocks.Registry, opts ...Option) *Document {
	d := &Document{
		reg:      reg,
		nodes:    make(map[string]*Node),
		edges:    make(map[string]*Edge),
		viewport: DefaultViewport,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Registry returns the template registry the document validates against.
func (d *Document) Registry() *blocks.Registry { return d.reg }

// AddNode places a new block of type t at pos, with the template's default
// content and title.
func (d *Document) AddNode(t blocks.Type, pos Point) (Node, error) {
	tpl, err := d.reg.Lookup(t)
	if err != nil {
		return Node{}, err
	}
	n := &Node{
		ID:        d.newID(),
		BlockType: t,
		Content:   tpl.DefaultContent,
		Position:  pos,
		Label:     tpl.Title,
	}
	d.nodes[n.ID] = n
	d.nodeOrder = append(d.nodeOrder, n.ID)
	return n.clone(), nil
}

// RemoveNode deletes the node and every edge touching it.
func (d *Document) RemoveNode(id string) error {
	if _, ok := d.nodes[id]; !ok {
		return unknownNode(id)
	}
	delete(d.nodes, id)
	d.nodeOrder = slices.DeleteFunc(d.nodeOrder, func(s string) bool { return s == id })
	for _, e := range d.EdgesOf(id) {
		d.Disconnect(e.ID)
	}
	return nil
}

// UpdateNodeContent coerces patch against the node's schema and merges it
// into the node content. Keys absent from patch are kept.
func (d *Document) UpdateNodeContent(id string, patch blocks.Content) (Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, unknownNode(id)
	}
	coerced, err := blocks.ValidatePatch(n.BlockType, patch)
	if err != nil {
		return Node{}, err
	}
	for k, v := range coerced {
		n.Content[k] = v
	}
	return n.clone(), nil
}

// MoveNode sets the node position.
func (d *Document) MoveNode(id string, pos Point) (Node, error) {
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, unknownNode(id)
	}
	n.Position = pos
	return n.clone(), nil
}

// Connect adds a directed edge from source to target.
func (d *Document) Connect(source, target string) (Edge, error) {
	if _, ok := d.nodes[source]; !ok {
		return Edge{}, unknownNode(source)
	}
	if _, ok := d.nodes[target]; !ok {
		return Edge{}, unknownNode(target)
	}
	if source == target {
		return Edge{}, fmt.Errorf("%w: %s", apperr.ErrSelfLoop, source)
	}
	if d.hasEdge(source, target) {
		return Edge{}, fmt.Errorf("%w: %s -> %s", apperr.ErrDuplicateEdge, source, target)
	}
	e := &Edge{ID: d.newID(), Source: source, Target: target, Style: DefaultEdgeStyle}
	d.edges[e.ID] = e
	d.edgeOrder = append(d.edgeOrder, e.ID)
	return *e, nil
}

// Disconnect removes the edge and reports whether it existed.
func (d *Document) Disconnect(id string) bool {
	if _, ok := d.edges[id]; !ok {
		return false
	}
	delete(d.edges, id)
	d.edgeOrder = slices.DeleteFunc(d.edgeOrder, func(s string) bool { return s == id })
	return true
}

// Node returns a copy of the node with the given id.
func (d *Document) Node(id string) (Node, bool) {
	n, ok := d.nodes[id]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Nodes returns copies of all nodes in insertion order.
func (d *Document) Nodes() []Node {
	out := make([]Node, 0, len(d.nodeOrder))
	for _, id := range d.nodeOrder {
		out = append(out, d.nodes[id].clone())
	}
	return out
}

// Edges returns all edges in insertion order.
func (d *Document) Edges() []Edge {
	out := make([]Edge, 0, len(d.edgeOrder))
	for _, id := range d.edgeOrder {
		out = append(out, *d.edges[id])
	}
	return out
}

// EdgesOf returns the edges with id as source or target.
func (d *Document) EdgesOf(id string) []Edge {
	var out []Edge
	for _, eid := range d.edgeOrder {
		e := d.edges[eid]
		if e.Source == id || e.Target == id {
			out = append(out, *e)
		}
	}
	return out
}

// Len returns the node and edge counts.
func (d *Document) Len() (nodes, edges int) {
	return len(d.nodes), len(d.edges)
}

// Viewport returns the current pan/zoom state.
func (d *Document) Viewport() Viewport { return d.viewport }

// SetViewport replaces the pan/zoom state. Zoom is clamped to the
// supported range.
func (d *Document) SetViewport(v Viewport) {
	v.Zoom = ClampZoom(v.Zoom)
	d.viewport = v
}

func (d *Document) hasEdge(source, target string) bool {
	for _, e := range d.edges {
		if e.Source == source && e.Target == target {
			return true
		}
	}
	return false
}

func unknownNode(id string) error {
	return fmt.Errorf("%w: %s", apperr.ErrUnknownNode, id)
}
