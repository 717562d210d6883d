package viewer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestViewerState_ZoomAnchoring(t *testing.T) {
	s := NewViewerState()

	// The content point under screen (100, 100) must keep its screen
	// position through the zoom.
	cx, cy := s.ToContent(100, 100)
	s.ZoomAt(1.5, 100, 100)

	sx, sy := s.ToScreen(cx, cy)
	assert.InDelta(t, 100.0, sx, 1e-9)
	assert.InDelta(t, 100.0, sy, 1e-9)
	assert.InDelta(t, 1.5, s.Scale, 1e-9)
}

func TestViewerState_ZoomAnchoringRepeated(t *testing.T) {
	s := NewViewerState()
	s.PanBy(37, -12)
	s.ZoomAt(1.3, 250, 40)

	cx, cy := s.ToContent(420, 310)
	for _, factor := range []float64{1.25, 0.8, 1.1, 1.1} {
		s.ZoomAt(factor, 420, 310)
		sx, sy := s.ToScreen(cx, cy)
		assert.InDelta(t, 420.0, sx, 1e-6)
		assert.InDelta(t, 310.0, sy, 1e-6)
	}
}

func TestViewerState_ZoomClamped(t *testing.T) {
	s := NewViewerState()

	s.ZoomAt(100, 0, 0)
	assert.Equal(t, MaxScale, s.Scale)

	// At the bound the transform must not drift.
	panX, panY := s.PanX, s.PanY
	s.ZoomAt(2, 300, 300)
	assert.Equal(t, MaxScale, s.Scale)
	assert.Equal(t, panX, s.PanX)
	assert.Equal(t, panY, s.PanY)

	s.ZoomAt(0.0001, 0, 0)
	assert.Equal(t, MinScale, s.Scale)
}

func TestViewerState_ScreenContentRoundTrip(t *testing.T) {
	s := NewViewerState()
	s.ZoomAt(2.5, 80, 60)
	s.PanBy(-15, 33)

	cx, cy := s.ToContent(123, 456)
	sx, sy := s.ToScreen(cx, cy)
	assert.InDelta(t, 123.0, sx, 1e-9)
	assert.InDelta(t, 456.0, sy, 1e-9)
}

func TestViewerState_FitToScalesDown(t *testing.T) {
	s := NewViewerState()
	s.FitTo(2000, 1000, 800, 600, false)

	// 760x560 available after padding; width is the tighter ratio.
	assert.InDelta(t, 0.38, s.Scale, 1e-9)
	assert.InDelta(t, 20.0, s.PanX, 1e-9)
	assert.InDelta(t, 110.0, s.PanY, 1e-9)
}

func TestViewerState_FitToNeverUpscales(t *testing.T) {
	s := NewViewerState()
	s.FitTo(100, 100, 800, 600, false)

	assert.Equal(t, 1.0, s.Scale)
	assert.InDelta(t, 350.0, s.PanX, 1e-9)
	assert.InDelta(t, 250.0, s.PanY, 1e-9)
}

func TestViewerState_FitToEmbedPadding(t *testing.T) {
	standalone := NewViewerState()
	standalone.FitTo(2000, 1000, 800, 600, false)

	embed := NewViewerState()
	embed.FitTo(2000, 1000, 800, 600, true)

	// Embed mode reserves less padding, so the content fits larger.
	assert.Greater(t, embed.Scale, standalone.Scale)
}

func TestViewerState_FitToClampsAtMinScale(t *testing.T) {
	s := NewViewerState()
	s.FitTo(10000, 10000, 500, 500, false)
	assert.Equal(t, MinScale, s.Scale)
}

func TestViewerState_FitToTinyContainer(t *testing.T) {
	s := NewViewerState()
	// Padding would exceed the container; fall back to the full box.
	s.FitTo(100, 100, 30, 30, false)
	assert.InDelta(t, 0.3, s.Scale, 1e-9)
}

func TestViewerState_FitToInvalidDimensions(t *testing.T) {
	s := NewViewerState()
	s.ZoomAt(2, 50, 50)
	s.FitTo(0, 100, 800, 600, false)

	assert.Equal(t, 1.0, s.Scale)
	assert.Equal(t, 0.0, s.PanX)
	assert.Equal(t, 0.0, s.PanY)
}

func TestViewerState_Zoom100Centers(t *testing.T) {
	s := NewViewerState()
	s.ZoomAt(3, 10, 10)
	s.Zoom100(200, 100, 800, 600)

	assert.Equal(t, 1.0, s.Scale)
	assert.InDelta(t, 300.0, s.PanX, 1e-9)
	assert.InDelta(t, 250.0, s.PanY, 1e-9)
}

func TestViewerState_ZoomStepRoundTrip(t *testing.T) {
	s := NewViewerState()
	s.ZoomStep(true, 800, 600)
	assert.InDelta(t, 1.2, s.Scale, 1e-9)

	s.ZoomStep(false, 800, 600)
	assert.InDelta(t, 1.0, s.Scale, 1e-9)
}

func TestViewerState_SelectionBasic(t *testing.T) {
	s := NewViewerState()
	s.BeginSelection(10, 10)
	s.UpdateSelection(110, 60)
	require.True(t, s.EndSelection(110, 60))

	require.NotNil(t, s.Selection)
	assert.Equal(t, Rect{X: 10, Y: 10, W: 100, H: 50}, *s.Selection)
}

func TestViewerState_SelectionNormalizesDirection(t *testing.T) {
	s := NewViewerState()
	s.BeginSelection(100, 100)
	require.True(t, s.EndSelection(40, 30))

	require.NotNil(t, s.Selection)
	assert.Equal(t, Rect{X: 40, Y: 30, W: 60, H: 70}, *s.Selection)
}

func TestViewerState_SelectionInContentSpace(t *testing.T) {
	s := NewViewerState()
	s.Scale = 2
	s.PanX, s.PanY = 5, 5

	s.BeginSelection(25, 25)
	require.True(t, s.EndSelection(65, 45))

	require.NotNil(t, s.Selection)
	assert.Equal(t, Rect{X: 10, Y: 10, W: 20, H: 10}, *s.Selection)
}

func TestViewerState_SelectionSubTwoPixelsDiscarded(t *testing.T) {
	s := NewViewerState()
	s.BeginSelection(10, 10)
	assert.False(t, s.EndSelection(11, 11))
	assert.Nil(t, s.Selection)
}

func TestViewerState_SelectionDiscardUsesScreenPixels(t *testing.T) {
	s := NewViewerState()
	s.Scale = MinScale

	// 6.4 content units is still only 1.6 screen pixels at 0.25x.
	s.BeginSelection(0, 0)
	assert.False(t, s.EndSelection(1.6, 1.6))
	assert.Nil(t, s.Selection)
}

func TestViewerState_SelectionEndWithoutBegin(t *testing.T) {
	s := NewViewerState()
	assert.False(t, s.EndSelection(50, 50))
}

func TestViewerState_ClearSelection(t *testing.T) {
	s := NewViewerState()
	s.BeginSelection(0, 0)
	require.True(t, s.EndSelection(40, 40))
	require.NotNil(t, s.Selection)

	s.ClearSelection()
	assert.Nil(t, s.Selection)
}

func TestViewerState_ZoomToSelection(t *testing.T) {
	s := NewViewerState()
	s.Selection = &Rect{X: 100, Y: 100, W: 200, H: 100}
	require.True(t, s.ZoomToSelection(800, 600))

	assert.Equal(t, 4.0, s.Scale)

	// The selection center lands on the container center.
	sx, sy := s.ToScreen(200, 150)
	assert.InDelta(t, 400.0, sx, 1e-9)
	assert.InDelta(t, 300.0, sy, 1e-9)
	assert.Nil(t, s.Selection)
}

func TestViewerState_ZoomToSelectionWithoutSelection(t *testing.T) {
	s := NewViewerState()
	assert.False(t, s.ZoomToSelection(800, 600))
}

func TestViewerState_Reset(t *testing.T) {
	s := NewViewerState()
	s.ZoomAt(2, 40, 40)
	s.BeginSelection(0, 0)
	s.EndSelection(100, 100)

	s.Reset()
	assert.Equal(t, 1.0, s.Scale)
	assert.Equal(t, 0.0, s.PanX)
	assert.Equal(t, 0.0, s.PanY)
	assert.Nil(t, s.Selection)
}
