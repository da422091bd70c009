package eyetrack

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

// Detector finds the landmarks of at most one face in an RGB frame. A nil
// set with a nil error means no face passed the thresholds.
type Detector interface {
	Detect(rgb gocv.Mat) (*Landmarks, error)
	Close() error
}

type MeshOptions struct {
	// FaceModel is the YuNet face detection ONNX file.
	FaceModel string
	// MeshModel and MeshMetadata point to the face mesh ONNX export and its
	// tensor description.
	MeshModel    string
	MeshMetadata string
	// SharedLibrary overrides the onnxruntime library location.
	SharedLibrary string

	DetectionConfidence float32
	TrackingConfidence  float32
	NMSThreshold        float32
	TopK                int
	PaddingPct          float64
}

func DefaultMeshOptions() MeshOptions {
	return MeshOptions{
		FaceModel:           "models/face_detection_yunet_2023mar.onnx",
		MeshModel:           "models/face_landmark_with_attention.onnx",
		MeshMetadata:        "models/face_landmark_with_attention.json",
		DetectionConfidence: StandardProfile.DetectionConfidence,
		TrackingConfidence:  StandardProfile.TrackingConfidence,
		NMSThreshold:        0.3,
		TopK:                5000,
		PaddingPct:          0.25,
	}
}

// MeshDetector locates the best face box with YuNet and runs a face mesh
// model on the padded square crop around it. Calls are serialized.
type MeshDetector struct {
	opts   MeshOptions
	mu     sync.Mutex
	faces  gocv.FaceDetectorYN
	mesh   *meshSession
	closed bool
}

func NewMeshDetector(opts *MeshOptions) (*MeshDetector, error) {
	if opts == nil {
		def := DefaultMeshOptions()
		opts = &def
	}
	if opts.FaceModel == "" || opts.MeshModel == "" || opts.MeshMetadata == "" {
		slog.Error("empty model path", "face", opts.FaceModel, "mesh", opts.MeshModel)
		return nil, errors.New("face and mesh models are required")
	}
	meta, err := LoadMeshMetadata(opts.MeshMetadata)
	if err != nil {
		return nil, err
	}

	if opts.SharedLibrary != "" {
		ort.SetSharedLibraryPath(opts.SharedLibrary)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	mesh, err := newMeshSession(opts.MeshModel, meta)
	if err != nil {
		return nil, err
	}

	// Input size is reset per frame before detection.
	faces := gocv.NewFaceDetectorYNWithParams(opts.FaceModel, "", image.Pt(320, 320),
		opts.DetectionConfidence, opts.NMSThreshold, opts.TopK, 0, 0)

	slog.Info("face mesh detector ready",
		"face_model", opts.FaceModel,
		"mesh_model", opts.MeshModel,
		"landmarks", meta.NumLandmarks,
		"detection_confidence", opts.DetectionConfidence,
		"tracking_confidence", opts.TrackingConfidence)
	return &MeshDetector{opts: *opts, faces: faces, mesh: mesh}, nil
}

func (d *MeshDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.mesh.destroy()
	d.faces.Close()
	return nil
}

func (d *MeshDetector) Detect(rgb gocv.Mat) (*Landmarks, error) {
	W, H := rgb.Cols(), rgb.Rows()
	if W == 0 || H == 0 {
		return nil, errors.New("invalid frame dimensions")
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(rgb, &bgr, gocv.ColorRGBToBGR)

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDetectorClosed
	}

	found := gocv.NewMat()
	defer found.Close()
	d.faces.SetInputSize(image.Pt(W, H))
	if n := d.faces.Detect(bgr, &found); n == 0 || found.Rows() == 0 {
		return nil, nil
	}
	box, ok := bestFace(found)
	if !ok {
		return nil, nil
	}

	crop := squareCrop(box, W, H, d.opts.PaddingPct)
	if crop.Dx() <= 1 || crop.Dy() <= 1 {
		return nil, nil
	}
	roi := rgb.Region(crop)
	defer roi.Close()

	// A crop clamped at the frame edge is padded back to a square so the
	// mesh sees the face with its aspect ratio intact.
	square, pad := letterbox(crop)
	face := roi
	if pad != (border{}) {
		padded := gocv.NewMat()
		defer padded.Close()
		gocv.CopyMakeBorder(roi, &padded, pad.Top, pad.Bottom, pad.Left, pad.Right,
			gocv.BorderConstant, color.RGBA{})
		face = padded
	}

	size := d.mesh.meta.InputSize
	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(face, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationLinear)

	out, err := d.mesh.run(resized.ToBytes())
	if err != nil {
		return nil, err
	}
	score, ok := d.mesh.meta.accept(out.Score, d.opts.TrackingConfidence)
	if !ok {
		return nil, nil
	}
	lm := d.mesh.meta.project(out, square, W, H)
	lm.Score = score
	return lm, nil
}

type border struct {
	Top, Bottom, Left, Right int
}

// letterbox returns the square that centers crop and the border needed on
// each side of crop to fill it. The square may extend past the frame.
func letterbox(crop image.Rectangle) (image.Rectangle, border) {
	side := max(crop.Dx(), crop.Dy())
	var b border
	b.Left = (side - crop.Dx()) / 2
	b.Right = side - crop.Dx() - b.Left
	b.Top = (side - crop.Dy()) / 2
	b.Bottom = side - crop.Dy() - b.Top
	origin := image.Pt(crop.Min.X-b.Left, crop.Min.Y-b.Top)
	return image.Rectangle{Min: origin, Max: origin.Add(image.Pt(side, side))}, b
}

// YuNet rows hold x, y, w, h, five landmark pairs and the score.
const yunetScoreCol = 14

func bestFace(found gocv.Mat) (image.Rectangle, bool) {
	best := -1
	var bestScore float32
	for r := 0; r < found.Rows(); r++ {
		if s := found.GetFloatAt(r, yunetScoreCol); best < 0 || s > bestScore {
			best, bestScore = r, s
		}
	}
	if best < 0 {
		return image.Rectangle{}, false
	}
	x := int(math.Round(float64(found.GetFloatAt(best, 0))))
	y := int(math.Round(float64(found.GetFloatAt(best, 1))))
	w := int(math.Round(float64(found.GetFloatAt(best, 2))))
	h := int(math.Round(float64(found.GetFloatAt(best, 3))))
	if w <= 0 || h <= 0 {
		return image.Rectangle{}, false
	}
	return image.Rect(x, y, x+w, y+h), true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// squareCrop grows box into a padded square around its center, shifts it
// back inside the W x H frame and clamps what still does not fit.
func squareCrop(box image.Rectangle, W, H int, paddingPct float64) image.Rectangle {
	p := paddingPct
	if p < 0 {
		p = 0
	}
	side := int(math.Round(float64(max(box.Dx(), box.Dy())) * (1 + 2*p)))
	cx := box.Min.X + box.Dx()/2
	cy := box.Min.Y + box.Dy()/2

	x1 := cx - side/2
	y1 := cy - side/2
	x2 := x1 + side
	y2 := y1 + side

	if x1 < 0 {
		x2 -= x1
		x1 = 0
	}
	if y1 < 0 {
		y2 -= y1
		y1 = 0
	}
	if x2 > W {
		x1 -= x2 - W
		x2 = W
	}
	if y2 > H {
		y1 -= y2 - H
		y2 = H
	}

	x1 = clamp(x1, 0, W)
	y1 = clamp(y1, 0, H)
	x2 = clamp(x2, 0, W)
	y2 = clamp(y2, 0, H)
	return image.Rect(x1, y1, x2, y2)
}
