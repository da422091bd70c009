package eyetrack

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

const (
	LayoutNHWC = "nhwc"
	LayoutNCHW = "nchw"
)

// MeshMetadata describes the tensors of a face mesh ONNX export. Landmark
// and iris output values are in input pixel units of the square crop.
//
// NumLandmarks counts the points in the landmarks output. Exports that emit
// the iris separately (MediaPipe attention mesh) name LeftIrisOutput and
// RightIrisOutput; their five points each are appended after the mesh, so
// a 468 point mesh becomes the refined 478 point set.
type MeshMetadata struct {
	InputName       string  `json:"input_name"`
	LandmarksOutput string  `json:"landmarks_output"`
	ScoreOutput     string  `json:"score_output"`
	LeftIrisOutput  string  `json:"left_iris_output"`
	RightIrisOutput string  `json:"right_iris_output"`
	InputSize       int     `json:"input_size"`
	Layout          string  `json:"layout"`
	NumLandmarks    int     `json:"num_landmarks"`
	LandmarkDims    int     `json:"landmark_dims"`
	IrisDims        int     `json:"iris_dims"`
	LandmarksShape  []int64 `json:"landmarks_shape"`
	ScoreShape      []int64 `json:"score_shape"`
	IrisShape       []int64 `json:"iris_shape"`
	ScoreIsLogit    bool    `json:"score_is_logit"`
}

const irisPoints = 5

func LoadMeshMetadata(path string) (MeshMetadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return MeshMetadata{}, fmt.Errorf("failed to read mesh metadata: %w", err)
	}
	var meta MeshMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return MeshMetadata{}, fmt.Errorf("failed to parse mesh metadata: %w", err)
	}
	meta.setDefaults()
	return meta, meta.validate()
}

func (m *MeshMetadata) setDefaults() {
	if m.Layout == "" {
		m.Layout = LayoutNHWC
	}
	if m.LandmarkDims == 0 {
		m.LandmarkDims = 3
	}
	if m.IrisDims == 0 {
		m.IrisDims = 2
	}
	if len(m.LandmarksShape) == 0 {
		m.LandmarksShape = []int64{1, int64(m.NumLandmarks * m.LandmarkDims)}
	}
	if len(m.ScoreShape) == 0 {
		m.ScoreShape = []int64{1, 1}
	}
	if len(m.IrisShape) == 0 {
		m.IrisShape = []int64{1, int64(irisPoints * m.IrisDims)}
	}
}

func elements(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return n
}

func (m MeshMetadata) hasIrisOutputs() bool {
	return m.LeftIrisOutput != "" && m.RightIrisOutput != ""
}

// Total is the number of landmarks produced once iris outputs are appended.
func (m MeshMetadata) Total() int {
	if m.hasIrisOutputs() {
		return m.NumLandmarks + 2*irisPoints
	}
	return m.NumLandmarks
}

func (m MeshMetadata) validate() error {
	switch {
	case m.InputName == "" || m.LandmarksOutput == "" || m.ScoreOutput == "":
		return errors.New("mesh metadata: tensor names are required")
	case (m.LeftIrisOutput == "") != (m.RightIrisOutput == ""):
		return errors.New("mesh metadata: iris outputs come in pairs")
	case m.InputSize <= 0:
		return fmt.Errorf("mesh metadata: invalid input size %d", m.InputSize)
	case m.Layout != LayoutNHWC && m.Layout != LayoutNCHW:
		return fmt.Errorf("mesh metadata: unknown layout %q", m.Layout)
	case m.NumLandmarks < MeshLandmarks:
		return fmt.Errorf("mesh metadata: need at least %d landmarks, got %d", MeshLandmarks, m.NumLandmarks)
	case m.LandmarkDims < 2 || m.IrisDims < 2:
		return fmt.Errorf("mesh metadata: invalid landmark dims %d/%d", m.LandmarkDims, m.IrisDims)
	case elements(m.LandmarksShape) != int64(m.NumLandmarks*m.LandmarkDims):
		return fmt.Errorf("mesh metadata: landmarks shape %v does not hold %d x %d values", m.LandmarksShape, m.NumLandmarks, m.LandmarkDims)
	case elements(m.ScoreShape) < 1:
		return fmt.Errorf("mesh metadata: invalid score shape %v", m.ScoreShape)
	case m.hasIrisOutputs() && elements(m.IrisShape) != int64(irisPoints*m.IrisDims):
		return fmt.Errorf("mesh metadata: iris shape %v does not hold %d x %d values", m.IrisShape, irisPoints, m.IrisDims)
	}
	return nil
}

func (m MeshMetadata) inputShape() ort.Shape {
	s := int64(m.InputSize)
	if m.Layout == LayoutNCHW {
		return ort.NewShape(1, 3, s, s)
	}
	return ort.NewShape(1, s, s, 3)
}

// tensorize writes an interleaved RGB crop of InputSize x InputSize pixels
// into dst, scaled to 0..1.
func (m MeshMetadata) tensorize(rgb []byte, dst []float32) error {
	plane := m.InputSize * m.InputSize
	if len(rgb) != plane*3 || len(dst) != plane*3 {
		return fmt.Errorf("mesh input: expected %d values, got %d pixel bytes and %d slots", plane*3, len(rgb), len(dst))
	}
	if m.Layout == LayoutNHWC {
		for i, v := range rgb {
			dst[i] = float32(v) / 255
		}
		return nil
	}
	for px := 0; px < plane; px++ {
		dst[px] = float32(rgb[px*3]) / 255
		dst[plane+px] = float32(rgb[px*3+1]) / 255
		dst[2*plane+px] = float32(rgb[px*3+2]) / 255
	}
	return nil
}

func (m MeshMetadata) presence(raw float32) float64 {
	s := float64(raw)
	if m.ScoreIsLogit {
		return 1 / (1 + math.Exp(-s))
	}
	return s
}

// accept converts the raw face flag into a probability and reports whether
// it reaches threshold.
func (m MeshMetadata) accept(raw, threshold float32) (float64, bool) {
	p := m.presence(raw)
	return p, p >= float64(threshold)
}

// meshOutput is one inference result in crop pixel units.
type meshOutput struct {
	Mesh      []float32
	LeftIris  []float32
	RightIris []float32
	Score     float32
}

// project maps raw crop landmarks back to normalized coordinates of the
// width x height frame the crop was taken from. Iris points, when present,
// follow the mesh points left eye first.
func (m MeshMetadata) project(out meshOutput, crop image.Rectangle, width, height int) *Landmarks {
	size := float64(m.InputSize)
	sx := float64(crop.Dx()) / size
	sy := float64(crop.Dy()) / size
	w, h := float64(width), float64(height)

	point := func(raw []float32, o, dims int) Landmark {
		p := Landmark{
			X: (float64(crop.Min.X) + float64(raw[o])*sx) / w,
			Y: (float64(crop.Min.Y) + float64(raw[o+1])*sy) / h,
		}
		if dims > 2 {
			p.Z = float64(raw[o+2]) * sx / w
		}
		return p
	}

	n := min(m.NumLandmarks, len(out.Mesh)/m.LandmarkDims)
	points := make([]Landmark, 0, n+2*irisPoints)
	for i := 0; i < n; i++ {
		points = append(points, point(out.Mesh, i*m.LandmarkDims, m.LandmarkDims))
	}
	if m.hasIrisOutputs() && n == m.NumLandmarks {
		for _, iris := range [][]float32{out.LeftIris, out.RightIris} {
			if len(iris) < irisPoints*m.IrisDims {
				break
			}
			for i := 0; i < irisPoints; i++ {
				points = append(points, point(iris, i*m.IrisDims, m.IrisDims))
			}
		}
	}
	return &Landmarks{Points: points}
}

// meshSession wraps one onnxruntime session with preallocated tensors whose
// shapes come from the metadata.
type meshSession struct {
	meta      MeshMetadata
	session   *ort.AdvancedSession
	input     *ort.Tensor[float32]
	landmarks *ort.Tensor[float32]
	score     *ort.Tensor[float32]
	leftIris  *ort.Tensor[float32]
	rightIris *ort.Tensor[float32]
}

func newMeshSession(modelPath string, meta MeshMetadata) (*meshSession, error) {
	s := &meshSession{meta: meta}
	var err error
	if s.input, err = ort.NewEmptyTensor[float32](meta.inputShape()); err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	if s.landmarks, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.LandmarksShape...)); err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create landmarks tensor: %w", err)
	}
	if s.score, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.ScoreShape...)); err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create score tensor: %w", err)
	}

	names := []string{meta.LandmarksOutput, meta.ScoreOutput}
	outputs := []ort.ArbitraryTensor{s.landmarks, s.score}
	if meta.hasIrisOutputs() {
		if s.leftIris, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.IrisShape...)); err != nil {
			s.destroy()
			return nil, fmt.Errorf("failed to create left iris tensor: %w", err)
		}
		if s.rightIris, err = ort.NewEmptyTensor[float32](ort.NewShape(meta.IrisShape...)); err != nil {
			s.destroy()
			return nil, fmt.Errorf("failed to create right iris tensor: %w", err)
		}
		names = append(names, meta.LeftIrisOutput, meta.RightIrisOutput)
		outputs = append(outputs, s.leftIris, s.rightIris)
	}

	s.session, err = ort.NewAdvancedSession(modelPath,
		[]string{meta.InputName}, names,
		[]ort.ArbitraryTensor{s.input}, outputs,
		nil)
	if err != nil {
		s.destroy()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	return s, nil
}

func copyData(t *ort.Tensor[float32]) []float32 {
	if t == nil {
		return nil
	}
	out := make([]float32, len(t.GetData()))
	copy(out, t.GetData())
	return out
}

// run returns copies of the raw outputs for one crop.
func (s *meshSession) run(rgb []byte) (meshOutput, error) {
	if err := s.meta.tensorize(rgb, s.input.GetData()); err != nil {
		return meshOutput{}, err
	}
	if err := s.session.Run(); err != nil {
		return meshOutput{}, fmt.Errorf("mesh inference failed: %w", err)
	}
	return meshOutput{
		Mesh:      copyData(s.landmarks),
		LeftIris:  copyData(s.leftIris),
		RightIris: copyData(s.rightIris),
		Score:     s.score.GetData()[0],
	}, nil
}

func (s *meshSession) destroy() {
	for _, t := range []*ort.Tensor[float32]{s.input, s.landmarks, s.score, s.leftIris, s.rightIris} {
		if t != nil {
			t.Destroy()
		}
	}
	if s.session != nil {
		s.session.Destroy()
	}
}
