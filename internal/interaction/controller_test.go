package interaction

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
)

func newController(t *testing.T) *Controller {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewController(canvas.New(blocks.Default()), logger)
}

func TestPaletteDrag(t *testing.T) {
	p := PaletteDragStart(blocks.UserStory)
	assert.Equal(t, DragPayload{BlockType: blocks.UserStory, Effect: "move"}, p)
	assert.Equal(t, "move", DragOver())
}

func TestDropConvertsToCanvasSpace(t *testing.T) {
	c := newController(t)
	c.Document().SetViewport(canvas.Viewport{X: 100, Y: 50, Zoom: 2})

	p := PaletteDragStart(blocks.FunctionalReq)
	n, ok := c.Drop(&p, canvas.Point{X: 300, Y: 250})
	require.True(t, ok)
	assert.Equal(t, canvas.Point{X: 100, Y: 100}, n.Position)
	assert.Equal(t, blocks.FunctionalReq, n.BlockType)
}

func TestDropIgnoresBadPayload(t *testing.T) {
	c := newController(t)

	_, ok := c.Drop(nil, canvas.Point{})
	assert.False(t, ok)
	_, ok = c.Drop(&DragPayload{}, canvas.Point{})
	assert.False(t, ok)
	_, ok = c.Drop(&DragPayload{BlockType: "EPIC", Effect: EffectMove}, canvas.Point{})
	assert.False(t, ok)

	nodes, _ := c.Document().Len()
	assert.Zero(t, nodes)
}

func TestQuickAdd(t *testing.T) {
	c := newController(t)
	n, err := c.QuickAdd(blocks.Notes)
	require.NoError(t, err)
	assert.Equal(t, canvas.DefaultPosition, n.Position)
}

func TestConnectGesture(t *testing.T) {
	c := newController(t)
	a, _ := c.QuickAdd(blocks.FunctionalReq)
	b, _ := c.QuickAdd(blocks.UserStory)

	g := c.PointerDown(Target{Region: RegionOutputAnchor, NodeID: a.ID}, canvas.Point{})
	assert.Equal(t, GestureConnect, g)
	rel, err := c.PointerUp(Target{Region: RegionInputAnchor, NodeID: b.ID}, canvas.Point{X: 40})
	require.NoError(t, err)
	require.NotNil(t, rel.Edge)
	assert.Equal(t, a.ID, rel.Edge.Source)
	assert.Equal(t, b.ID, rel.Edge.Target)
	assert.True(t, rel.Changed())
	assert.Equal(t, GestureNone, c.Gesture())

	// Released on the canvas: nothing happens.
	c.PointerDown(Target{Region: RegionOutputAnchor, NodeID: b.ID}, canvas.Point{})
	rel, err = c.PointerUp(Target{Region: RegionCanvas}, canvas.Point{X: 80, Y: 20})
	require.NoError(t, err)
	assert.Nil(t, rel.Edge)
	assert.False(t, rel.Changed())

	// Released on its own input anchor: nothing happens.
	c.PointerDown(Target{Region: RegionOutputAnchor, NodeID: b.ID}, canvas.Point{})
	rel, err = c.PointerUp(Target{Region: RegionInputAnchor, NodeID: b.ID}, canvas.Point{})
	require.NoError(t, err)
	assert.False(t, rel.Changed())

	// Repeating the connection reports the duplicate.
	c.PointerDown(Target{Region: RegionOutputAnchor, NodeID: a.ID}, canvas.Point{})
	_, err = c.PointerUp(Target{Region: RegionInputAnchor, NodeID: b.ID}, canvas.Point{})
	require.ErrorIs(t, err, apperr.ErrDuplicateEdge)

	assert.Len(t, c.Document().Edges(), 1)
}

func TestNodeDragUsesZoom(t *testing.T) {
	c := newController(t)
	c.Document().SetViewport(canvas.Viewport{Zoom: 2})
	n, _ := c.QuickAdd(blocks.Notes)

	assert.Equal(t, GestureDrag, c.PointerDown(Target{Region: RegionNodeBody, NodeID: n.ID}, canvas.Point{X: 10, Y: 10}))
	assert.True(t, c.PointerMove(canvas.Point{X: 30, Y: 50}))
	rel, err := c.PointerUp(Target{Region: RegionNodeBody, NodeID: n.ID}, canvas.Point{X: 30, Y: 50})
	require.NoError(t, err)
	assert.False(t, rel.Moved, "release at the last pointer position moves nothing")

	got, _ := c.Document().Node(n.ID)
	assert.Equal(t, canvas.Point{X: 110, Y: 120}, got.Position)
}

func TestCanvasDragPans(t *testing.T) {
	c := newController(t)
	assert.Equal(t, GesturePan, c.PointerDown(Target{Region: RegionCanvas}, canvas.Point{X: 0, Y: 0}))
	assert.True(t, c.PointerMove(canvas.Point{X: 15, Y: -5}))
	assert.Equal(t, canvas.Viewport{X: 15, Y: -5, Zoom: 1}, c.Document().Viewport())
	assert.False(t, c.PointerMove(canvas.Point{X: 15, Y: -5}), "zero delta is not a change")

	rel, err := c.PointerUp(Target{Region: RegionCanvas}, canvas.Point{X: 20, Y: -5})
	require.NoError(t, err)
	assert.True(t, rel.Moved)
	assert.Equal(t, canvas.Viewport{X: 20, Y: -5, Zoom: 1}, c.Document().Viewport())
}

func TestContentAreaStartsNoGesture(t *testing.T) {
	c := newController(t)
	n, _ := c.QuickAdd(blocks.Notes)

	assert.Equal(t, GestureNone, c.PointerDown(Target{Region: RegionNodeContent, NodeID: n.ID}, canvas.Point{}))
	assert.False(t, c.PointerMove(canvas.Point{X: 100, Y: 100}))

	got, _ := c.Document().Node(n.ID)
	assert.Equal(t, canvas.DefaultPosition, got.Position)
	assert.Equal(t, canvas.DefaultViewport, c.Document().Viewport())

	res, err := c.Click(Target{Region: RegionNodeContent, NodeID: n.ID})
	require.NoError(t, err)
	assert.False(t, res.Propagate)
	assert.Empty(t, c.Selection())
}

func TestDeleteClick(t *testing.T) {
	c := newController(t)
	a, _ := c.QuickAdd(blocks.Notes)
	b, _ := c.QuickAdd(blocks.Notes)
	_, _ = c.Document().Connect(a.ID, b.ID)

	_, err := c.Click(Target{Region: RegionNodeBody, NodeID: a.ID})
	require.NoError(t, err)
	assert.Equal(t, a.ID, c.Selection())

	res, err := c.Click(Target{Region: RegionNodeDelete, NodeID: a.ID})
	require.NoError(t, err)
	assert.False(t, res.Propagate)
	assert.Empty(t, c.Selection())
	assert.Empty(t, c.Document().Edges())

	_, err = c.Click(Target{Region: RegionNodeDelete, NodeID: a.ID})
	require.ErrorIs(t, err, apperr.ErrUnknownNode)
}

func TestCanvasClickClearsSelection(t *testing.T) {
	c := newController(t)
	n, _ := c.QuickAdd(blocks.Notes)
	_, _ = c.Click(Target{Region: RegionNodeBody, NodeID: n.ID})

	res, err := c.Click(Target{Region: RegionCanvas})
	require.NoError(t, err)
	assert.True(t, res.Propagate)
	assert.Empty(t, c.Selection())
}

func TestEditField(t *testing.T) {
	c := newController(t)
	n, _ := c.QuickAdd(blocks.UserStory)

	got, err := c.EditField(n.ID, "points", -5)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Content["points"])

	_, err = c.EditField(n.ID, "points", "many")
	require.ErrorIs(t, err, apperr.ErrInvalidValue)
}

func TestZoomControls(t *testing.T) {
	c := newController(t)
	vp := c.ZoomIn(canvas.Point{})
	assert.InDelta(t, 1.2, vp.Zoom, 1e-9)
	for range 10 {
		vp = c.ZoomOut(canvas.Point{})
	}
	assert.Equal(t, canvas.MinZoom, vp.Zoom)
}
