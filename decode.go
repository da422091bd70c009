package eyetrack

import (
	"encoding/base64"
	"fmt"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"gocv.io/x/gocv"
)

var acceptedTypes = []string{"image/png", "image/jpeg", "image/webp", "image/bmp", "image/tiff"}

// DecodePayload strips an optional data URI header (anything up to and
// including the first comma) and base64-decodes the rest.
func DecodePayload(encoded string) ([]byte, error) {
	if i := strings.IndexByte(encoded, ','); i >= 0 {
		encoded = encoded[i+1:]
	}
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(encoded, "="))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %w", ErrDecode, err)
		}
	}
	return raw, nil
}

// DecodeBytes decodes an encoded image into a 3-channel BGR Mat. The caller
// owns the returned Mat.
func DecodeBytes(raw []byte) (gocv.Mat, error) {
	if len(raw) == 0 {
		return gocv.NewMat(), fmt.Errorf("%w: empty image", ErrDecode)
	}
	mtype := mimetype.Detect(raw)
	if !slices.Contains(acceptedTypes, mtype.String()) {
		return gocv.NewMat(), fmt.Errorf("%w: unsupported content type %s", ErrDecode, mtype.String())
	}
	img, err := gocv.IMDecode(raw, gocv.IMReadColor)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if img.Empty() {
		img.Close()
		return gocv.NewMat(), fmt.Errorf("%w: decoder returned no pixels", ErrDecode)
	}
	return img, nil
}

// DecodeImage runs DecodePayload followed by DecodeBytes.
func DecodeImage(encoded string) (gocv.Mat, error) {
	raw, err := DecodePayload(encoded)
	if err != nil {
		return gocv.NewMat(), err
	}
	return DecodeBytes(raw)
}
