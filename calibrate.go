package eyetrack

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

const MinCalibrationPoints = 5

// Calibration acknowledges a set of calibration points. Nothing is kept.
type Calibration struct {
	ID              string
	PointsCollected int
}

// Calibrate validates the point count and derives an identifier from the
// points' content, so the same points always map to the same id.
func Calibrate(points []json.RawMessage) (*Calibration, error) {
	if len(points) < MinCalibrationPoints {
		return nil, fmt.Errorf("%w: need at least %d, got %d", ErrInsufficientPoints, MinCalibrationPoints, len(points))
	}
	h := xxhash.New()
	var buf bytes.Buffer
	for _, p := range points {
		buf.Reset()
		if err := json.Compact(&buf, p); err != nil {
			buf.Reset()
			buf.Write(p)
		}
		buf.WriteByte(0)
		h.Write(buf.Bytes())
	}
	return &Calibration{
		ID:              fmt.Sprintf("calibration_%016x", h.Sum64()),
		PointsCollected: len(points),
	}, nil
}
