// Package interaction translates canvas gestures (palette drag and drop,
// pointer drags, clicks, zoom controls, field edits) into document
// operations.
package interaction

import (
	"log/slog"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
)

// EffectMove is the only drag affordance the canvas offers.
const EffectMove = "move"

// DragPayload is attached to a palette drag.
type DragPayload struct {
	BlockType blocks.Type `json:"blockType"`
	Effect    string      `json:"effect"`
}

// PaletteDragStart tags a drag starting on the palette entry for t.
func PaletteDragStart(t blocks.Type) DragPayload {
	return DragPayload{BlockType: t, Effect: EffectMove}
}

// DragOver answers the affordance for a drag hovering the canvas.
func DragOver() string { return EffectMove }

// Region names the part of the canvas a pointer event hit.
type Region string

const (
	RegionCanvas       Region = "canvas"
	RegionNodeBody     Region = "node"
	RegionNodeContent  Region = "content"
	RegionNodeDelete   Region = "delete"
	RegionOutputAnchor Region = "source_handle"
	RegionInputAnchor  Region = "target_handle"
)

// Target is the hit-test result of a pointer event.
type Target struct {
	Region Region `json:"region"`
	NodeID string `json:"nodeId,omitempty"`
}

// Gesture is the kind of pointer gesture in progress.
type Gesture string

const (
	GestureNone    Gesture = "none"
	GesturePan     Gesture = "pan"
	GestureDrag    Gesture = "drag"
	GestureConnect Gesture = "connect"
)

// ClickResult reports whether a click should reach canvas-level handlers.
type ClickResult struct {
	Propagate bool `json:"propagate"`
}

type pointerState struct {
	kind   Gesture
	nodeID string
	last   canvas.Point
}

// Controller applies gestures to one document. Like the document, it is
// not safe for concurrent use.
type Controller struct {
	doc      *canvas.Document
	logger   *slog.Logger
	selected string
	pointer  pointerState
}

// NewController returns a controller for doc.
func NewController(doc *canvas.Document, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{doc: doc, logger: logger, pointer: pointerState{kind: GestureNone}}
}

// Document returns the controlled document.
func (c *Controller) Document() *canvas.Document { return c.doc }

// Selection returns the selected node id, or "".
func (c *Controller) Selection() string { return c.selected }

// Gesture returns the gesture in progress.
func (c *Controller) Gesture() Gesture { return c.pointer.kind }

// Drop places a block from a palette drag released at screen. An empty
// payload or an unknown block type is ignored.
func (c *Controller) Drop(p *DragPayload, screen canvas.Point) (canvas.Node, bool) {
	if p == nil || p.BlockType == "" {
		c.logger.Debug("interaction: drop without payload")
		return canvas.Node{}, false
	}
	pos := canvas.ToCanvasSpace(screen, c.doc.Viewport())
	n, err := c.doc.AddNode(p.BlockType, pos)
	if err != nil {
		c.logger.Debug("interaction: drop ignored",
			slog.String("block_type", string(p.BlockType)),
			slog.String("error", err.Error()))
		return canvas.Node{}, false
	}
	return n, true
}

// QuickAdd places a block of type t at the default position.
func (c *Controller) QuickAdd(t blocks.Type) (canvas.Node, error) {
	return c.doc.AddNode(t, canvas.DefaultPosition)
}

// PointerDown starts the gesture implied by the hit target.
func (c *Controller) PointerDown(t Target, screen canvas.Point) Gesture {
	c.pointer = pointerState{kind: GestureNone, last: screen}
	switch t.Region {
	case RegionCanvas:
		c.pointer.kind = GesturePan
	case RegionNodeBody:
		if _, ok := c.doc.Node(t.NodeID); ok {
			c.pointer.kind = GestureDrag
			c.pointer.nodeID = t.NodeID
		}
	case RegionOutputAnchor:
		if _, ok := c.doc.Node(t.NodeID); ok {
			c.pointer.kind = GestureConnect
			c.pointer.nodeID = t.NodeID
		}
	}
	return c.pointer.kind
}

// PointerMove advances a drag or pan. It reports whether the document
// changed.
func (c *Controller) PointerMove(screen canvas.Point) bool {
	dx := screen.X - c.pointer.last.X
	dy := screen.Y - c.pointer.last.Y
	c.pointer.last = screen
	if dx == 0 && dy == 0 {
		return false
	}
	switch c.pointer.kind {
	case GesturePan:
		c.doc.SetViewport(canvas.Pan(c.doc.Viewport(), dx, dy))
		return true
	case GestureDrag:
		n, ok := c.doc.Node(c.pointer.nodeID)
		if !ok {
			c.pointer.kind = GestureNone
			return false
		}
		zoom := canvas.ClampZoom(c.doc.Viewport().Zoom)
		pos := canvas.Point{X: n.Position.X + dx/zoom, Y: n.Position.Y + dy/zoom}
		if _, err := c.doc.MoveNode(n.ID, pos); err != nil {
			return false
		}
		return true
	}
	return false
}

// Release is the outcome of PointerUp.
type Release struct {
	// Edge is the connection made, if any.
	Edge *canvas.Edge `json:"edge"`
	// Moved is set when the final pointer position moved a node or panned.
	Moved bool `json:"moved"`
}

// Changed reports whether the release altered the document.
func (r Release) Changed() bool { return r.Edge != nil || r.Moved }

// PointerUp ends the current gesture. A connection gesture released on
// another node's input anchor connects the two nodes; released anywhere
// else it is dropped and the release carries no edge.
func (c *Controller) PointerUp(t Target, screen canvas.Point) (Release, error) {
	state := c.pointer
	rel := Release{Moved: c.PointerMove(screen)}
	c.pointer = pointerState{kind: GestureNone}

	if state.kind != GestureConnect {
		return rel, nil
	}
	if t.Region != RegionInputAnchor || t.NodeID == "" || t.NodeID == state.nodeID {
		c.logger.Debug("interaction: connection released off target",
			slog.String("source", state.nodeID))
		return rel, nil
	}
	e, err := c.doc.Connect(state.nodeID, t.NodeID)
	if err != nil {
		return rel, err
	}
	rel.Edge = &e
	return rel, nil
}

// Click handles a click on t. The delete control removes its node and
// clicks inside node content never reach the canvas.
func (c *Controller) Click(t Target) (ClickResult, error) {
	switch t.Region {
	case RegionNodeDelete:
		if err := c.doc.RemoveNode(t.NodeID); err != nil {
			return ClickResult{}, err
		}
		if c.selected == t.NodeID {
			c.selected = ""
		}
		return ClickResult{Propagate: false}, nil
	case RegionNodeContent:
		return ClickResult{Propagate: false}, nil
	case RegionNodeBody, RegionInputAnchor, RegionOutputAnchor:
		if _, ok := c.doc.Node(t.NodeID); ok {
			c.selected = t.NodeID
		}
		return ClickResult{Propagate: false}, nil
	default:
		c.selected = ""
		return ClickResult{Propagate: true}, nil
	}
}

// EditField applies one field edit to a node.
func (c *Controller) EditField(nodeID, key string, value any) (canvas.Node, error) {
	return c.doc.UpdateNodeContent(nodeID, blocks.Content{key: value})
}

// ZoomIn zooms by one step around anchor.
func (c *Controller) ZoomIn(anchor canvas.Point) canvas.Viewport {
	return c.zoom(canvas.ZoomFactor, anchor)
}

// ZoomOut zooms out by one step around anchor.
func (c *Controller) ZoomOut(anchor canvas.Point) canvas.Viewport {
	return c.zoom(1/canvas.ZoomFactor, anchor)
}

func (c *Controller) zoom(factor float64, anchor canvas.Point) canvas.Viewport {
	vp := canvas.ZoomAt(c.doc.Viewport(), factor, anchor)
	c.doc.SetViewport(vp)
	return vp
}
