package eyetrack

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeta(layout string) MeshMetadata {
	m := MeshMetadata{
		InputName:       "input_1",
		LandmarksOutput: "landmarks",
		ScoreOutput:     "face_flag",
		InputSize:       2,
		Layout:          layout,
		NumLandmarks:    RefinedLandmarks,
		LandmarkDims:    3,
	}
	m.setDefaults()
	return m
}

// attentionMeta mirrors a MediaPipe attention mesh export: a 468 point mesh
// in a 4-D tensor plus separate iris tensors.
func attentionMeta() MeshMetadata {
	m := MeshMetadata{
		InputName:       "input_1",
		LandmarksOutput: "output_mesh_identity",
		ScoreOutput:     "conv_faceflag",
		LeftIrisOutput:  "output_left_iris",
		RightIrisOutput: "output_right_iris",
		InputSize:       192,
		NumLandmarks:    MeshLandmarks,
		LandmarksShape:  []int64{1, 1, 1, 1404},
		ScoreShape:      []int64{1, 1, 1, 1},
		IrisShape:       []int64{1, 1, 1, 10},
		ScoreIsLogit:    true,
	}
	m.setDefaults()
	return m
}

func TestLoadMeshMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"input_name": "input_12",
		"landmarks_output": "Identity",
		"score_output": "Identity_1",
		"input_size": 192,
		"num_landmarks": 478,
		"score_is_logit": true
	}`), 0o644))

	meta, err := LoadMeshMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, LayoutNHWC, meta.Layout)
	assert.Equal(t, 3, meta.LandmarkDims)
	assert.Equal(t, 192, meta.InputSize)
	assert.Equal(t, []int64{1, 1434}, meta.LandmarksShape)
	assert.Equal(t, []int64{1, 1}, meta.ScoreShape)
	assert.Equal(t, RefinedLandmarks, meta.Total())
	assert.True(t, meta.ScoreIsLogit)
}

func TestLoadMeshMetadata_AttentionMesh(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mesh.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"input_name": "input_1",
		"landmarks_output": "output_mesh_identity",
		"score_output": "conv_faceflag",
		"left_iris_output": "output_left_iris",
		"right_iris_output": "output_right_iris",
		"input_size": 192,
		"num_landmarks": 468,
		"landmarks_shape": [1, 1, 1, 1404],
		"score_shape": [1, 1, 1, 1],
		"iris_shape": [1, 1, 1, 10],
		"score_is_logit": true
	}`), 0o644))

	meta, err := LoadMeshMetadata(path)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 1, 1, 1404}, meta.LandmarksShape)
	assert.Equal(t, []int64{1, 1, 1, 1}, meta.ScoreShape)
	assert.Equal(t, 2, meta.IrisDims)
	assert.Equal(t, RefinedLandmarks, meta.Total())
}

func TestMeshMetadataValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MeshMetadata)
	}{
		{"no names", func(m *MeshMetadata) { m.InputName = "" }},
		{"no size", func(m *MeshMetadata) { m.InputSize = 0 }},
		{"bad layout", func(m *MeshMetadata) { m.Layout = "chw" }},
		{"too few landmarks", func(m *MeshMetadata) { m.NumLandmarks = 68 }},
		{"flat landmarks", func(m *MeshMetadata) { m.LandmarkDims = 1 }},
		{"landmarks shape mismatch", func(m *MeshMetadata) { m.LandmarksShape = []int64{1, 1, 1, 1404} }},
		{"empty score shape", func(m *MeshMetadata) { m.ScoreShape = []int64{1, 0} }},
		{"single iris output", func(m *MeshMetadata) { m.LeftIrisOutput = "left" }},
		{"iris shape mismatch", func(m *MeshMetadata) {
			m.LeftIrisOutput, m.RightIrisOutput = "left", "right"
			m.IrisShape = []int64{1, 71, 2}
		}},
	}
	require.NoError(t, testMeta(LayoutNHWC).validate())
	require.NoError(t, attentionMeta().validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMeta(LayoutNHWC)
			tt.mutate(&m)
			assert.Error(t, m.validate())
		})
	}
}

func TestTensorize(t *testing.T) {
	// 2x2 pixels, interleaved RGB.
	rgb := []byte{
		255, 0, 0, 0, 255, 0,
		0, 0, 255, 51, 102, 153,
	}

	nhwc := make([]float32, 12)
	require.NoError(t, testMeta(LayoutNHWC).tensorize(rgb, nhwc))
	assert.InDelta(t, 1.0, nhwc[0], 1e-6)
	assert.InDelta(t, 1.0, nhwc[4], 1e-6)
	assert.InDelta(t, 0.6, nhwc[11], 1e-6)

	nchw := make([]float32, 12)
	require.NoError(t, testMeta(LayoutNCHW).tensorize(rgb, nchw))
	assert.InDelta(t, 1.0, nchw[0], 1e-6)  // R of pixel 0
	assert.InDelta(t, 0.2, nchw[3], 1e-6)  // R of pixel 3
	assert.InDelta(t, 1.0, nchw[5], 1e-6)  // G of pixel 1
	assert.InDelta(t, 1.0, nchw[10], 1e-6) // B of pixel 2

	assert.Error(t, testMeta(LayoutNHWC).tensorize(rgb[:6], nhwc))
}

func TestPresence(t *testing.T) {
	m := testMeta(LayoutNHWC)
	assert.InDelta(t, 0.8, m.presence(0.8), 1e-6)

	m.ScoreIsLogit = true
	assert.InDelta(t, 0.5, m.presence(0), 1e-9)
	assert.Greater(t, m.presence(4), 0.98)
	assert.Less(t, m.presence(-4), 0.02)
}

func TestAccept(t *testing.T) {
	tests := []struct {
		name      string
		logit     bool
		raw       float32
		threshold float32
		want      bool
	}{
		{"probability above", false, 0.6, 0.5, true},
		{"probability equal", false, 0.5, 0.5, true},
		{"probability below", false, 0.4, 0.5, false},
		{"logit above low-light gate", true, -0.5, 0.3, true},
		{"logit below standard gate", true, -0.5, 0.5, false},
		{"logit confident", true, 6, 0.5, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testMeta(LayoutNHWC)
			m.ScoreIsLogit = tt.logit
			p, ok := m.accept(tt.raw, tt.threshold)
			assert.Equal(t, tt.want, ok)
			assert.InDelta(t, m.presence(tt.raw), p, 1e-12)
		})
	}
}

func TestProject(t *testing.T) {
	m := testMeta(LayoutNHWC)
	m.InputSize = 192
	raw := make([]float32, RefinedLandmarks*3)
	raw[0], raw[1], raw[2] = 96, 48, 19.2
	raw[3], raw[4] = 192, 192

	crop := image.Rect(100, 50, 292, 242)
	lm := m.project(meshOutput{Mesh: raw}, crop, 400, 300)
	require.Equal(t, RefinedLandmarks, lm.Len())
	assert.True(t, lm.HasIris())

	assert.InDelta(t, (100.0+96)/400, lm.Points[0].X, 1e-9)
	assert.InDelta(t, (50.0+48)/300, lm.Points[0].Y, 1e-9)
	assert.InDelta(t, 19.2/400, lm.Points[0].Z, 1e-6)
	assert.InDelta(t, 292.0/400, lm.Points[1].X, 1e-9)
	assert.InDelta(t, 242.0/300, lm.Points[1].Y, 1e-9)
}

func TestProject_AppendsIris(t *testing.T) {
	m := attentionMeta()
	mesh := make([]float32, MeshLandmarks*3)
	mesh[3*(MeshLandmarks-1)] = 10
	left := make([]float32, 10)
	right := make([]float32, 10)
	for i := 0; i < 5; i++ {
		left[2*i], left[2*i+1] = 60+float32(i), 80
		right[2*i], right[2*i+1] = 130+float32(i), 82
	}

	crop := image.Rect(0, 0, 192, 192)
	lm := m.project(meshOutput{Mesh: mesh, LeftIris: left, RightIris: right}, crop, 192, 192)
	require.Equal(t, RefinedLandmarks, lm.Len())
	assert.True(t, lm.HasIris())

	assert.InDelta(t, 10.0/192, lm.Points[MeshLandmarks-1].X, 1e-9)
	for i, idx := range LeftIrisIndices {
		assert.InDelta(t, (60.0+float64(i))/192, lm.Points[idx].X, 1e-9)
		assert.InDelta(t, 80.0/192, lm.Points[idx].Y, 1e-9)
		assert.Zero(t, lm.Points[idx].Z)
	}
	for i, idx := range RightIrisIndices {
		assert.InDelta(t, (130.0+float64(i))/192, lm.Points[idx].X, 1e-9)
		assert.InDelta(t, 82.0/192, lm.Points[idx].Y, 1e-9)
	}
}

func TestProject_AttentionMeshFeedsMeasure(t *testing.T) {
	m := attentionMeta()
	mesh := make([]float32, MeshLandmarks*3)
	set := func(i int, x, y float32) { mesh[3*i], mesh[3*i+1] = x, y }
	for k, i := range LeftEyeIndices {
		set(i, [6]float32{30, 32, 34, 36, 34, 32}[k], [6]float32{40, 39, 39, 40, 41, 41}[k])
	}
	for k, i := range RightEyeIndices {
		set(i, [6]float32{60, 62, 64, 66, 64, 62}[k], [6]float32{40, 39, 39, 40, 41, 41}[k])
	}
	irisAt := func(cx float32) []float32 {
		return []float32{cx, 40, cx + 1, 40, cx, 41, cx - 1, 40, cx, 39}
	}

	lm := m.project(meshOutput{Mesh: mesh, LeftIris: irisAt(33), RightIris: irisAt(63)}, image.Rect(0, 0, 192, 192), 192, 192)
	an, err := Measure(lm, 192, 192, DualThreshold)
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3.0, an.Eyes.Left.AspectRatio, 1e-6)
	assert.Equal(t, GazeCenter, an.Gaze.Direction)
	assert.Equal(t, RefinedLandmarks, an.FaceQuality.LandmarksCount)
}

func TestProject_MissingIrisOutputs(t *testing.T) {
	m := attentionMeta()
	lm := m.project(meshOutput{Mesh: make([]float32, MeshLandmarks*3)}, image.Rect(0, 0, 192, 192), 192, 192)
	assert.Equal(t, MeshLandmarks, lm.Len())
	assert.False(t, lm.HasIris())
}
