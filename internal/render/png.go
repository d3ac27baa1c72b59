// Package render draws a canvas snapshot as a PNG image.
package render

import (
	"errors"
	"fmt"
	"image/color"
	"io"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
)

// ErrNothingToExport is returned for a snapshot without nodes.
var ErrNothingToExport = errors.New("nothing to export")

const (
	// NodeWidth matches the on-screen card width.
	NodeWidth = 320.0

	margin      = 40.0
	pad         = 10.0
	headerH     = 28.0
	lineH       = 16.0
	maxFieldLn  = 3
	maxImageDim = 8192.0
	arrowSize   = 8.0
)

var headerColors = map[blocks.Type]color.RGBA{
	blocks.FunctionalReq:    {R: 0x3b, G: 0x82, B: 0xf6, A: 0xff},
	blocks.NonFunctionalReq: {R: 0x8b, G: 0x5c, B: 0xf6, A: 0xff},
	blocks.UserStory:        {R: 0x10, G: 0xb9, B: 0x81, A: 0xff},
	blocks.UseCase:          {R: 0xf5, G: 0x9e, B: 0x0b, A: 0xff},
	blocks.Constraints:      {R: 0xef, G: 0x44, B: 0x44, A: 0xff},
	blocks.Notes:            {R: 0x64, G: 0x74, B: 0x8b, A: 0xff},
	blocks.Dependencies:     {R: 0x06, G: 0xb6, B: 0xd4, A: 0xff},
}

var parseFont = sync.OnceValues(func() (*truetype.Font, error) {
	return truetype.Parse(gomono.TTF)
})

type card struct {
	node  canvas.Node
	title string
	lines []string
	x, y  float64
	h     float64
}

// PNG renders snap to w. Nodes are drawn as cards at their canvas
// positions and edges run from the source's right side to the target's
// left side.
func PNG(w io.Writer, snap canvas.Snapshot, reg *blocks.Registry) error {
	if len(snap.Nodes) == 0 {
		return ErrNothingToExport
	}
	ttf, err := parseFont()
	if err != nil {
		return fmt.Errorf("render: parse font: %w", err)
	}
	face := truetype.NewFace(ttf, &truetype.Options{Size: 12, DPI: 72, Hinting: font.HintingFull})
	defer face.Close()

	// Measuring needs a context with the face set.
	measure := gg.NewContext(1, 1)
	measure.SetFontFace(face)

	cards := make(map[string]*card, len(snap.Nodes))
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	order := make([]*card, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		c := layout(measure, n, reg)
		cards[n.ID] = c
		order = append(order, c)
		minX = math.Min(minX, c.x)
		minY = math.Min(minY, c.y)
		maxX = math.Max(maxX, c.x+NodeWidth)
		maxY = math.Max(maxY, c.y+c.h)
	}

	width := maxX - minX + 2*margin
	height := maxY - minY + 2*margin
	scale := math.Min(1, maxImageDim/math.Max(width, height))

	dc := gg.NewContext(int(math.Ceil(width*scale)), int(math.Ceil(height*scale)))
	dc.SetColor(color.White)
	dc.Clear()
	dc.Scale(scale, scale)
	dc.Translate(margin-minX, margin-minY)
	dc.SetFontFace(face)

	// Edges first so cards are drawn on top.
	for _, e := range snap.Edges {
		src, ok1 := cards[e.Source]
		dst, ok2 := cards[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		drawEdge(dc, src, dst)
	}
	for _, c := range order {
		drawCard(dc, c)
	}
	return dc.EncodePNG(w)
}

func layout(dc *gg.Context, n canvas.Node, reg *blocks.Registry) *card {
	title := n.Label
	if title == "" {
		if tpl, err := reg.Lookup(n.BlockType); err == nil {
			title = tpl.Title
		} else {
			title = string(n.BlockType)
		}
	}
	var lines []string
	for _, f := range blocks.Render(n.BlockType, n.Content) {
		text := fmt.Sprintf("%s: %v", f.Label, f.Value)
		wrapped := dc.WordWrap(text, NodeWidth-2*pad)
		if len(wrapped) > maxFieldLn {
			wrapped = append(wrapped[:maxFieldLn-1:maxFieldLn-1], wrapped[maxFieldLn-1]+"…")
		}
		lines = append(lines, wrapped...)
	}
	return &card{
		node:  n,
		title: title,
		lines: lines,
		x:     n.Position.X,
		y:     n.Position.Y,
		h:     headerH + pad + float64(len(lines))*lineH + pad,
	}
}

func drawCard(dc *gg.Context, c *card) {
	dc.SetColor(color.White)
	dc.DrawRoundedRectangle(c.x, c.y, NodeWidth, c.h, 6)
	dc.Fill()

	header, ok := headerColors[c.node.BlockType]
	if !ok {
		header = headerColors[blocks.Notes]
	}
	dc.SetColor(header)
	dc.DrawRectangle(c.x, c.y, NodeWidth, headerH)
	dc.Fill()

	dc.SetColor(color.Black)
	dc.SetLineWidth(1)
	dc.DrawRoundedRectangle(c.x, c.y, NodeWidth, c.h, 6)
	dc.Stroke()

	dc.SetColor(color.White)
	dc.DrawStringAnchored(c.title, c.x+pad, c.y+headerH/2, 0, 0.35)

	dc.SetColor(color.RGBA{R: 0x1f, G: 0x29, B: 0x37, A: 0xff})
	y := c.y + headerH + pad + lineH*0.75
	for _, ln := range c.lines {
		dc.DrawString(ln, c.x+pad, y)
		y += lineH
	}
}

// drawEdge draws a step path from src's output anchor to dst's input
// anchor and an arrowhead at the target.
func drawEdge(dc *gg.Context, src, dst *card) {
	sx, sy := src.x+NodeWidth, src.y+src.h/2
	tx, ty := dst.x, dst.y+dst.h/2
	mx := (sx + tx) / 2

	dc.SetColor(color.RGBA{R: 0x94, G: 0xa3, B: 0xb8, A: 0xff})
	dc.SetLineWidth(2)
	dc.MoveTo(sx, sy)
	dc.LineTo(mx, sy)
	dc.LineTo(mx, ty)
	dc.LineTo(tx, ty)
	dc.Stroke()

	fromX, fromY := mx, ty
	if math.Abs(tx-mx) < 0.1 {
		fromY = sy
	}
	drawArrow(dc, fromX, fromY, tx, ty)
}

func drawArrow(dc *gg.Context, fx, fy, tx, ty float64) {
	dx, dy := tx-fx, ty-fy
	length := math.Hypot(dx, dy)
	if length < 0.1 {
		return
	}
	dx /= length
	dy /= length
	const spread = 0.5

	dc.MoveTo(tx, ty)
	dc.LineTo(tx-arrowSize*dx+arrowSize*dy*spread, ty-arrowSize*dy-arrowSize*dx*spread)
	dc.LineTo(tx-arrowSize*dx-arrowSize*dy*spread, ty-arrowSize*dy+arrowSize*dx*spread)
	dc.ClosePath()
	dc.Fill()
}
