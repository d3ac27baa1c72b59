package render

import (
	"bytes"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
)

func TestPNGEmptyDocument(t *testing.T) {
	var buf bytes.Buffer
	err := PNG(&buf, canvas.Snapshot{}, blocks.Default())
	require.ErrorIs(t, err, ErrNothingToExport)
	assert.Zero(t, buf.Len())
}

func TestPNGDrawsNodesAndEdges(t *testing.T) {
	doc := canvas.New(blocks.Default())
	a, err := doc.AddNode(blocks.FunctionalReq, canvas.Point{X: 0, Y: 0})
	require.NoError(t, err)
	b, err := doc.AddNode(blocks.UserStory, canvas.Point{X: 500, Y: 200})
	require.NoError(t, err)
	_, err = doc.UpdateNodeContent(b.ID, blocks.Content{
		"story": "As a reviewer I want to export the canvas so that I can attach it to a ticket without opening the editor",
	})
	require.NoError(t, err)
	_, err = doc.Connect(a.ID, b.ID)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, PNG(&buf, doc.Snapshot(), blocks.Default()))

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	bounds := img.Bounds()
	assert.GreaterOrEqual(t, bounds.Dx(), int(500+NodeWidth))
	assert.Greater(t, bounds.Dy(), 200)
}

func TestPNGUnknownTypeAndDanglingEdge(t *testing.T) {
	snap := canvas.Snapshot{
		Nodes: []canvas.Node{{ID: "x", BlockType: "EPIC", Content: blocks.Content{"text": "legacy"}}},
		Edges: []canvas.Edge{{ID: "e", Source: "x", Target: "gone"}},
	}
	var buf bytes.Buffer
	require.NoError(t, PNG(&buf, snap, blocks.Default()))
	_, err := png.Decode(&buf)
	require.NoError(t, err)
}

func TestPNGScalesLargeCanvas(t *testing.T) {
	snap := canvas.Snapshot{Nodes: []canvas.Node{
		{ID: "a", BlockType: blocks.Notes, Position: canvas.Point{X: 0, Y: 0}},
		{ID: "b", BlockType: blocks.Notes, Position: canvas.Point{X: 40000, Y: 0}},
	}}
	var buf bytes.Buffer
	require.NoError(t, PNG(&buf, snap, blocks.Default()))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.LessOrEqual(t, img.Bounds().Dx(), int(maxImageDim))
}
