package eyetrack

const NoFaceMessage = "No face detected in image"

type Result struct {
	FaceDetected bool
	Message      string
	Analysis     *Analysis
}

type Analysis struct {
	Eyes        Eyes        `json:"eyes"`
	Gaze        Gaze        `json:"gaze"`
	Glasses     Glasses     `json:"glasses"`
	FaceQuality FaceQuality `json:"face_quality"`
}

type Eyes struct {
	Left     EyeRecord `json:"left"`
	Right    EyeRecord `json:"right"`
	BothOpen bool      `json:"both_open"`
	Blinking bool      `json:"blinking"`
}

type EyeRecord struct {
	Open        bool    `json:"open"`
	AspectRatio float64 `json:"aspect_ratio"`
	Pupil       Pupil   `json:"pupil"`
}

// Pupil holds the normalized offset and the iris center in pixels.
type Pupil struct {
	X      float64    `json:"x"`
	Y      float64    `json:"y"`
	Center [2]float64 `json:"center"`
}

type Gaze struct {
	Direction string  `json:"direction"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

type Glasses struct {
	Detected   bool    `json:"detected"`
	Confidence float64 `json:"confidence"`
}

type FaceQuality struct {
	LandmarksCount      int     `json:"landmarks_count"`
	HasIrisTracking     bool    `json:"has_iris_tracking"`
	DetectionConfidence float64 `json:"detection_confidence"`
}

// Measure derives the eye metrics from one landmark set on a width x height
// frame.
func Measure(lm *Landmarks, width, height int, policy Policy) (*Analysis, error) {
	if !lm.HasIris() {
		return nil, ErrNoIris
	}
	leftEye, err := lm.eyePoints(LeftEyeIndices, width, height)
	if err != nil {
		return nil, err
	}
	rightEye, err := lm.eyePoints(RightEyeIndices, width, height)
	if err != nil {
		return nil, err
	}
	leftIris, err := lm.irisPoints(LeftIrisIndices, width, height)
	if err != nil {
		return nil, err
	}
	rightIris, err := lm.irisPoints(RightIrisIndices, width, height)
	if err != nil {
		return nil, err
	}
	bridge, err := lm.noseBridgeY()
	if err != nil {
		return nil, err
	}

	leftEAR := EyeAspectRatio(leftEye)
	rightEAR := EyeAspectRatio(rightEye)
	state := policy.Classify(leftEAR, rightEAR)

	leftPupil := PupilPosition(leftIris, leftEye)
	rightPupil := PupilPosition(rightIris, rightEye)
	gx := (leftPupil.X + rightPupil.X) / 2
	gy := (leftPupil.Y + rightPupil.Y) / 2

	return &Analysis{
		Eyes: Eyes{
			Left:     EyeRecord{Open: state.LeftOpen, AspectRatio: leftEAR, Pupil: leftPupil},
			Right:    EyeRecord{Open: state.RightOpen, AspectRatio: rightEAR, Pupil: rightPupil},
			BothOpen: state.BothOpen,
			Blinking: state.Blinking,
		},
		Gaze:    Gaze{Direction: ClassifyGaze(gx, gy), X: gx, Y: gy},
		Glasses: DetectGlasses(bridge),
		FaceQuality: FaceQuality{
			LandmarksCount:      lm.Len(),
			HasIrisTracking:     lm.HasIris(),
			DetectionConfidence: lm.Score,
		},
	}, nil
}
