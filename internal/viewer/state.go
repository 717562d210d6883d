// Package viewer implements the diagram viewer shell: the pan/zoom/
// selection transform, content-space cropping, and the fetch/decode
// pipeline that turns a URL into rendered payload markup.
package viewer

import "math"

// Scale bounds for the view transform.
const (
	MinScale = 0.25
	MaxScale = 4.0
)

// Fit-to-view keeps this much container padding around the content.
// Embed mode runs tighter since the frame itself provides margins.
const (
	fitPadding      = 40.0
	fitPaddingEmbed = 16.0
)

// zoomStepFactor is the per-click factor of the toolbar zoom buttons.
const zoomStepFactor = 1.2

// minSelectionPx: a release this close to the press, in screen pixels,
// is a click-through, not a drag.
const minSelectionPx = 2.0

// Rect is an axis-aligned rectangle in content-space units (an SVG's
// view-box coordinates or an image's natural pixels).
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// ViewerState holds the transform of one viewer instance. A content
// point c projects to screen space as c*Scale + Pan.
type ViewerState struct {
	Scale     float64
	PanX      float64
	PanY      float64
	Selection *Rect

	anchorX, anchorY float64
	selecting        bool
}

// NewViewerState returns a state at scale 1, pan origin.
func NewViewerState() *ViewerState {
	return &ViewerState{Scale: 1}
}

// Reset returns scale to 1 and pan to origin, dropping any selection.
func (s *ViewerState) Reset() {
	s.Scale = 1
	s.PanX, s.PanY = 0, 0
	s.ClearSelection()
}

func clampScale(v float64) float64 {
	return math.Min(MaxScale, math.Max(MinScale, v))
}

// ToContent maps a screen point into content space under the current
// transform.
func (s *ViewerState) ToContent(sx, sy float64) (float64, float64) {
	return (sx - s.PanX) / s.Scale, (sy - s.PanY) / s.Scale
}

// ToScreen maps a content point to screen space.
func (s *ViewerState) ToScreen(cx, cy float64) (float64, float64) {
	return cx*s.Scale + s.PanX, cy*s.Scale + s.PanY
}

// PanBy shifts the view by a screen-space delta.
func (s *ViewerState) PanBy(dx, dy float64) {
	s.PanX += dx
	s.PanY += dy
}

// ZoomAt multiplies the scale by factor anchored at screen point
// (sx, sy): the content point under the cursor keeps its screen
// position after the transform update.
func (s *ViewerState) ZoomAt(factor, sx, sy float64) {
	next := clampScale(s.Scale * factor)
	if next == s.Scale {
		return
	}
	ratio := next / s.Scale
	s.PanX = sx - (sx-s.PanX)*ratio
	s.PanY = sy - (sy-s.PanY)*ratio
	s.Scale = next
}

// ZoomStep applies one toolbar zoom click anchored at the container
// center.
func (s *ViewerState) ZoomStep(in bool, containerW, containerH float64) {
	factor := zoomStepFactor
	if !in {
		factor = 1 / zoomStepFactor
	}
	s.ZoomAt(factor, containerW/2, containerH/2)
}

// FitTo scales the content to fit the container, never upscaling past
// 1x, and centers it. The content keeps a fixed padding from the
// container edges, tighter in embed mode.
func (s *ViewerState) FitTo(contentW, contentH, containerW, containerH float64, embed bool) {
	if contentW <= 0 || contentH <= 0 || containerW <= 0 || containerH <= 0 {
		s.Reset()
		return
	}

	pad := fitPadding
	if embed {
		pad = fitPaddingEmbed
	}
	availW, availH := containerW-pad, containerH-pad
	if availW <= 0 || availH <= 0 {
		availW, availH = containerW, containerH
	}

	scale := math.Min(availW/contentW, availH/contentH)
	if scale > 1 {
		scale = 1
	}
	s.Scale = clampScale(scale)
	s.PanX = (containerW - contentW*s.Scale) / 2
	s.PanY = (containerH - contentH*s.Scale) / 2
}

// Zoom100 restores 1x scale with the content centered.
func (s *ViewerState) Zoom100(contentW, contentH, containerW, containerH float64) {
	s.Scale = 1
	s.PanX = (containerW - contentW) / 2
	s.PanY = (containerH - contentH) / 2
}

// BeginSelection starts crop tracking at a screen point. The anchor is
// recorded in content space so the selection stays correct while the
// user zooms mid-drag.
func (s *ViewerState) BeginSelection(sx, sy float64) {
	cx, cy := s.ToContent(sx, sy)
	s.anchorX, s.anchorY = cx, cy
	s.selecting = true
	s.Selection = &Rect{X: cx, Y: cy}
}

// UpdateSelection recomputes the selection rectangle from the anchor
// to the current pointer position.
func (s *ViewerState) UpdateSelection(sx, sy float64) {
	if !s.selecting {
		return
	}
	cx, cy := s.ToContent(sx, sy)
	s.Selection = &Rect{
		X: math.Min(s.anchorX, cx),
		Y: math.Min(s.anchorY, cy),
		W: math.Abs(cx - s.anchorX),
		H: math.Abs(cy - s.anchorY),
	}
}

// EndSelection finalizes the drag. Selections smaller than two screen
// pixels in either dimension are discarded as accidental clicks; the
// return reports whether a selection survived.
func (s *ViewerState) EndSelection(sx, sy float64) bool {
	if !s.selecting {
		return false
	}
	s.UpdateSelection(sx, sy)
	s.selecting = false

	sel := s.Selection
	if sel == nil || sel.W*s.Scale < minSelectionPx || sel.H*s.Scale < minSelectionPx {
		s.Selection = nil
		return false
	}
	return true
}

// ClearSelection drops the selection and any in-progress drag.
func (s *ViewerState) ClearSelection() {
	s.Selection = nil
	s.selecting = false
}

// ZoomToSelection fits the current selection into the container,
// centers it, and consumes the selection. Returns false when there is
// no selection to zoom to.
func (s *ViewerState) ZoomToSelection(containerW, containerH float64) bool {
	if s.Selection == nil || s.Selection.Empty() {
		return false
	}
	sel := *s.Selection

	s.Scale = clampScale(math.Min(containerW/sel.W, containerH/sel.H))
	s.PanX = (containerW-sel.W*s.Scale)/2 - sel.X*s.Scale
	s.PanY = (containerH-sel.H*s.Scale)/2 - sel.Y*s.Scale
	s.ClearSelection()
	return true
}
