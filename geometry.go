package eyetrack

import "math"

const (
	GazeThreshold          = 0.3
	GlassesVarianceCutoff  = 0.0001
	glassesConfidenceTrue  = 0.7
	glassesConfidenceFalse = 0.3
)

const (
	GazeCenter = "center"
	GazeLeft   = "left"
	GazeRight  = "right"
	GazeUp     = "up"
	GazeDown   = "down"
)

func dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// EyeAspectRatio returns (|p1-p5| + |p2-p4|) / (2|p0-p3|) for the six eye
// points. A zero-width eye yields 0.
func EyeAspectRatio(eye [6]Point) float64 {
	h := dist(eye[0], eye[3])
	if h == 0 {
		return 0
	}
	v1 := dist(eye[1], eye[5])
	v2 := dist(eye[2], eye[4])
	return (v1 + v2) / (2 * h)
}

// PupilPosition locates the iris center inside the eye's bounding box.
// X and Y are in [-1, 1] with 0 at the box center; a flat box axis maps to 0.
func PupilPosition(iris [5]Point, eye [6]Point) Pupil {
	var cx, cy float64
	for _, p := range iris {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(iris))
	cy /= float64(len(iris))

	left, right := eye[0].X, eye[0].X
	top, bottom := eye[0].Y, eye[0].Y
	for _, p := range eye[1:] {
		left = math.Min(left, p.X)
		right = math.Max(right, p.X)
		top = math.Min(top, p.Y)
		bottom = math.Max(bottom, p.Y)
	}

	px, py := 0.5, 0.5
	if w := right - left; w > 0 {
		px = (cx - left) / w
	}
	if h := bottom - top; h > 0 {
		py = (cy - top) / h
	}
	return Pupil{
		X:      (px - 0.5) * 2,
		Y:      (py - 0.5) * 2,
		Center: [2]float64{cx, cy},
	}
}

// ClassifyGaze maps an averaged pupil offset to a direction. The horizontal
// axis wins when both axes pass the threshold.
func ClassifyGaze(x, y float64) string {
	switch {
	case math.Abs(x) > GazeThreshold:
		if x > 0 {
			return GazeRight
		}
		return GazeLeft
	case math.Abs(y) > GazeThreshold:
		if y > 0 {
			return GazeDown
		}
		return GazeUp
	}
	return GazeCenter
}

// NoseBridgeVariance is the population variance of the nose bridge y values.
func NoseBridgeVariance(ys [4]float64) float64 {
	var mean float64
	for _, y := range ys {
		mean += y
	}
	mean /= float64(len(ys))
	var v float64
	for _, y := range ys {
		d := y - mean
		v += d * d
	}
	return v / float64(len(ys))
}

// DetectGlasses flags eyewear from nose bridge landmark geometry. Confidence
// is fixed per outcome.
func DetectGlasses(ys [4]float64) Glasses {
	if NoseBridgeVariance(ys) > GlassesVarianceCutoff {
		return Glasses{Detected: true, Confidence: glassesConfidenceTrue}
	}
	return Glasses{Detected: false, Confidence: glassesConfidenceFalse}
}
