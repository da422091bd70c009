package eyetrack

import "fmt"

// MediaPipe face mesh indices. Eye sets are ordered outer corner, two upper
// lid points, inner corner, two lower lid points.
var (
	LeftEyeIndices    = [6]int{33, 160, 158, 133, 153, 144}
	RightEyeIndices   = [6]int{362, 385, 387, 263, 373, 380}
	LeftIrisIndices   = [5]int{468, 469, 470, 471, 472}
	RightIrisIndices  = [5]int{473, 474, 475, 476, 477}
	NoseBridgeIndices = [4]int{6, 168, 197, 195}
)

const (
	MeshLandmarks    = 468
	RefinedLandmarks = 478
)

// Landmark is a point in normalized image coordinates (0..1 on both axes).
type Landmark struct {
	X float64
	Y float64
	Z float64
}

// Point is a 2D position in pixel space.
type Point struct {
	X float64
	Y float64
}

// Landmarks is the landmark set of a single face.
type Landmarks struct {
	Points []Landmark
	// Score is the detector's confidence that the set belongs to a face.
	Score float64
}

func (l *Landmarks) Len() int { return len(l.Points) }

func (l *Landmarks) HasIris() bool { return len(l.Points) >= RefinedLandmarks }

func (l *Landmarks) at(i int) (Landmark, error) {
	if i < 0 || i >= len(l.Points) {
		return Landmark{}, fmt.Errorf("%w: index %d of %d", ErrMissingLandmarks, i, len(l.Points))
	}
	return l.Points[i], nil
}

func (l *Landmarks) pixel(i, width, height int) (Point, error) {
	p, err := l.at(i)
	if err != nil {
		return Point{}, err
	}
	return Point{X: p.X * float64(width), Y: p.Y * float64(height)}, nil
}

func (l *Landmarks) eyePoints(idx [6]int, width, height int) ([6]Point, error) {
	var out [6]Point
	for k, i := range idx {
		p, err := l.pixel(i, width, height)
		if err != nil {
			return out, err
		}
		out[k] = p
	}
	return out, nil
}

func (l *Landmarks) irisPoints(idx [5]int, width, height int) ([5]Point, error) {
	var out [5]Point
	for k, i := range idx {
		p, err := l.pixel(i, width, height)
		if err != nil {
			return out, err
		}
		out[k] = p
	}
	return out, nil
}

func (l *Landmarks) noseBridgeY() ([4]float64, error) {
	var out [4]float64
	for k, i := range NoseBridgeIndices {
		p, err := l.at(i)
		if err != nil {
			return out, err
		}
		out[k] = p.Y
	}
	return out, nil
}
