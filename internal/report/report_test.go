package report

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/storage"
)

func TestTemplatesListsPaletteInOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Templates(&buf, blocks.Default()))
	out := buf.String()

	prev := -1
	for _, tpl := range blocks.Default().Templates() {
		i := bytes.Index(buf.Bytes(), []byte(tpl.Title))
		require.GreaterOrEqual(t, i, 0, "missing %s", tpl.Title)
		assert.Greater(t, i, prev, "%s out of order", tpl.Title)
		prev = i
	}
	assert.Contains(t, out, "Story Points")
	assert.Contains(t, out, "high|medium|low")
}

func TestDocumentSummary(t *testing.T) {
	doc := canvas.New(blocks.Default())
	a, err := doc.AddNode(blocks.UseCase, canvas.Point{X: 10, Y: 20})
	require.NoError(t, err)
	_, err = doc.UpdateNodeContent(a.ID, blocks.Content{"actor": "Reviewer"})
	require.NoError(t, err)
	b, err := doc.AddNode(blocks.Constraints, canvas.Point{X: 400, Y: 20})
	require.NoError(t, err)
	_, err = doc.Connect(a.ID, b.ID)
	require.NoError(t, err)

	key := storage.Key{ProjectID: "p", StageID: "s", DocumentID: "d"}
	var buf bytes.Buffer
	require.NoError(t, Document(&buf, key, doc.Snapshot(), blocks.Default()))
	out := buf.String()

	assert.Contains(t, out, "document-p-s-d")
	assert.Contains(t, out, "2 blocks · 1 connections")
	assert.Contains(t, out, "Actor: Reviewer")
	assert.NotContains(t, out, "Steps:", "empty fields are omitted")
	assert.Contains(t, out, "Impact: medium")
	assert.Contains(t, out, "Use Case")
	assert.Contains(t, out, "→")
}
