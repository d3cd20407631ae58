package tutorsite

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"

	"golang.org/x/image/draw"
)

const (
	maxImageWidth = 800
	jpegQuality   = 80
)

// processImage decodes an image from src, resizes it to at most
// maxImageWidth wide, and re-encodes it as JPEG. Uploaded photos of
// worksheets tend to come straight off a phone camera, so this keeps
// the stored objects small without asking the operator to pre-shrink.
func processImage(src io.Reader) ([]byte, error) {
	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	if w > maxImageWidth {
		newH := h * maxImageWidth / w
		dst := image.NewRGBA(image.Rect(0, 0, maxImageWidth, newH))
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
		img = dst
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// isResizableImage reports whether processImage can handle the content type.
// GIFs pass through untouched so animations survive.
func isResizableImage(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/png":
		return true
	}
	return false
}
