package eyetrack

import "errors"

var (
	ErrDecode             = errors.New("invalid image")
	ErrMissingLandmarks   = errors.New("missing landmark")
	ErrNoIris             = errors.New("landmark set has no iris points")
	ErrDetectTimeout      = errors.New("face detection timed out")
	ErrDetectorClosed     = errors.New("detector closed")
	ErrInsufficientPoints = errors.New("insufficient calibration points")
)
