package eyetrack

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
)

func pngBytes(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURI(raw []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
}

type fakeDetector struct {
	mu     sync.Mutex
	lm     *Landmarks
	err    error
	delay  time.Duration
	calls  int
	sizes  []image.Point
	closed bool
}

func (f *fakeDetector) Detect(rgb gocv.Mat) (*Landmarks, error) {
	f.mu.Lock()
	f.calls++
	f.sizes = append(f.sizes, image.Pt(rgb.Cols(), rgb.Rows()))
	f.mu.Unlock()
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.lm, f.err
}

func (f *fakeDetector) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// syntheticFace lays out both eyes on a 100x100 frame. lid is the half
// height of the eye opening in pixels and shift moves both irises along x.
func syntheticFace(n int, lid, shift float64) *Landmarks {
	pts := make([]Landmark, n)
	for i := range pts {
		pts[i] = Landmark{X: 0.5, Y: 0.5}
	}
	place := func(idx [6]int, x0 float64) {
		layout := [6]Point{
			{x0, 40}, {x0 + 2, 40 - lid}, {x0 + 4, 40 - lid},
			{x0 + 6, 40}, {x0 + 4, 40 + lid}, {x0 + 2, 40 + lid},
		}
		for k, i := range idx {
			pts[i] = Landmark{X: layout[k].X / 100, Y: layout[k].Y / 100}
		}
	}
	placeIris := func(idx [5]int, cx float64) {
		if idx[4] >= n {
			return
		}
		for k, p := range iris(cx, 40) {
			pts[idx[k]] = Landmark{X: p.X / 100, Y: p.Y / 100}
		}
	}
	place(LeftEyeIndices, 30)
	place(RightEyeIndices, 60)
	placeIris(LeftIrisIndices, 33+shift)
	placeIris(RightIrisIndices, 63+shift)
	return &Landmarks{Points: pts, Score: 0.9}
}

type overlapCounter struct {
	mu      sync.Mutex
	active  int
	highest int
}

func (p *overlapCounter) Detect(gocv.Mat) (*Landmarks, error) {
	p.mu.Lock()
	p.active++
	p.highest = max(p.highest, p.active)
	p.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	p.mu.Lock()
	p.active--
	p.mu.Unlock()
	return nil, nil
}

func (p *overlapCounter) Close() error { return nil }

func (p *overlapCounter) maxActive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highest
}
