package ai

import (
	"bytes"
	"log/slog"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// prepareImage shrinks photos whose longest side exceeds maxDim and re-encodes
// them as JPEG. Anything that fails to decode is sent as is.
func prepareImage(data []byte, mediaType string, maxDim int) ([]byte, string) {
	if mediaType == "" {
		mediaType = "image/jpeg"
	}
	if maxDim <= 0 {
		return data, mediaType
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		slog.Debug("image not decodable, sending original", "error", err)
		return data, mediaType
	}
	b := img.Bounds()
	if b.Dx() <= maxDim && b.Dy() <= maxDim {
		return data, mediaType
	}

	resized := imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		slog.Warn("re-encode image failed, sending original", "error", err)
		return data, mediaType
	}
	return buf.Bytes(), "image/jpeg"
}
