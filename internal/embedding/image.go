package embedding

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

const defaultImageMaxSide = 512

// imageDataURI decodes raw image bytes (any format the image package can
// read), fits the picture inside a maxSide square, and re-encodes it as a
// base64 PNG data URI suitable for multimodal embedding APIs.
func imageDataURI(raw []byte, maxSide int) (string, error) {
	if len(raw) == 0 {
		return "", fmt.Errorf("empty image")
	}
	if maxSide <= 0 {
		maxSide = defaultImageMaxSide
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > maxSide || b.Dy() > maxSide {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode image: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
