package annotate

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const DefaultJPEGQuality = 85

// EncodeJPEG compresses img for transport.
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}
