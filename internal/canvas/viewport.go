package canvas

// Viewport is the pan offset and zoom factor mapping canvas space to the
// screen: screen = canvas*zoom + offset.
type Viewport struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// Zoom limits and step.
const (
	MinZoom    = 0.5
	MaxZoom    = 2.0
	ZoomFactor = 1.2
)

// DefaultViewport has no pan and unit zoom.
var DefaultViewport = Viewport{Zoom: 1}

// DefaultPosition is where quick-added blocks are placed.
var DefaultPosition = Point{X: 100, Y: 100}

func effectiveZoom(z float64) float64 {
	if z <= 0 {
		return 1
	}
	return z
}

// ToCanvasSpace converts a screen point to canvas coordinates under vp.
// A non-positive zoom is treated as 1.
func ToCanvasSpace(p Point, vp Viewport) Point {
	z := effectiveZoom(vp.Zoom)
	return Point{X: (p.X - vp.X) / z, Y: (p.Y - vp.Y) / z}
}

// ToScreenSpace is the inverse of ToCanvasSpace.
func ToScreenSpace(p Point, vp Viewport) Point {
	z := effectiveZoom(vp.Zoom)
	return Point{X: p.X*z + vp.X, Y: p.Y*z + vp.Y}
}

// ClampZoom limits z to [MinZoom, MaxZoom]; non-positive values become 1.
func ClampZoom(z float64) float64 {
	return min(max(effectiveZoom(z), MinZoom), MaxZoom)
}

// ZoomAt scales vp by factor keeping the screen point anchor fixed.
func ZoomAt(vp Viewport, factor float64, anchor Point) Viewport {
	before := ToCanvasSpace(anchor, vp)
	next := Viewport{Zoom: ClampZoom(effectiveZoom(vp.Zoom) * factor)}
	next.X = anchor.X - before.X*next.Zoom
	next.Y = anchor.Y - before.Y*next.Zoom
	return next
}

// Pan shifts the viewport by a screen-space delta.
func Pan(vp Viewport, dx, dy float64) Viewport {
	vp.X += dx
	vp.Y += dy
	return vp
}
