package eyetrack

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	// DarkLumaThreshold is the mean luma (0..255) under which the gamma
	// curve is applied after equalization.
	DarkLumaThreshold = 80.0
	LowLightGamma     = 1.5

	claheClipLimit = 2.0
	claheTileGrid  = 8
)

// EnhanceLowLight equalizes the luma channel of a BGR frame with CLAHE and
// brightens the result with a gamma curve when it is still dark. The caller
// owns the returned Mat.
func EnhanceLowLight(src gocv.Mat) (gocv.Mat, error) {
	if src.Empty() || src.Channels() != 3 {
		return gocv.NewMat(), fmt.Errorf("enhance: expected a 3-channel frame, got %d channels", src.Channels())
	}

	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(src, &ycrcb, gocv.ColorBGRToYCrCb)

	planes := gocv.Split(ycrcb)
	defer func() {
		for _, p := range planes {
			p.Close()
		}
	}()

	clahe := gocv.NewCLAHEWithParams(claheClipLimit, image.Pt(claheTileGrid, claheTileGrid))
	defer clahe.Close()

	luma := gocv.NewMat()
	defer luma.Close()
	clahe.Apply(planes[0], &luma)
	meanLuma := luma.Mean().Val1

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{luma, planes[1], planes[2]}, &merged)

	out := gocv.NewMat()
	gocv.CvtColor(merged, &out, gocv.ColorYCrCbToBGR)
	if meanLuma >= DarkLumaThreshold {
		return out, nil
	}

	lut, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8U, gammaTable(LowLightGamma))
	if err != nil {
		out.Close()
		return gocv.NewMat(), fmt.Errorf("enhance: gamma table: %w", err)
	}
	defer lut.Close()

	bright := gocv.NewMat()
	gocv.LUT(out, lut, &bright)
	out.Close()
	return bright, nil
}

// gammaTable maps every 8-bit level v to 255 * (v/255)^(1/gamma).
func gammaTable(gamma float64) []byte {
	table := make([]byte, 256)
	inv := 1 / gamma
	for v := range table {
		table[v] = byte(math.Round(255 * math.Pow(float64(v)/255, inv)))
	}
	return table
}
