package detections

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/Tutortoise/live-detection-service/models"
)

// CropArea returns the largest width/height pair within width x height that
// matches targetAspectRatio (width/height). Width is held first; if the
// derived height does not fit, height is held and width derived instead.
func CropArea(width, height int, targetAspectRatio float64) image.Point {
	targetH := int(math.Round(float64(width) / targetAspectRatio))
	if targetH <= height {
		return image.Pt(width, targetH)
	}
	return image.Pt(int(math.Round(float64(height)*targetAspectRatio)), height)
}

// Geometry maps a capture frame onto the detector input. All fields are
// derived together by NewGeometry.
type Geometry struct {
	Capture image.Point
	Input   image.Point
	Crop    image.Point
	Margin  image.Point
	ScaleX  float64
	ScaleY  float64
}

func NewGeometry(capture, input image.Point) (Geometry, error) {
	if capture.X <= 0 || capture.Y <= 0 {
		return Geometry{}, fmt.Errorf("invalid capture size %v", capture)
	}
	if input.X <= 0 || input.Y <= 0 {
		return Geometry{}, fmt.Errorf("invalid model input size %v", input)
	}

	crop := CropArea(capture.X, capture.Y, float64(input.X)/float64(input.Y))
	return Geometry{
		Capture: capture,
		Input:   input,
		Crop:    crop,
		Margin:  image.Pt((capture.X-crop.X)/2, (capture.Y-crop.Y)/2),
		ScaleX:  float64(input.X) / float64(crop.X),
		ScaleY:  float64(input.Y) / float64(crop.Y),
	}, nil
}

// CropRect is the centered crop in capture coordinates.
func (g Geometry) CropRect() image.Rectangle {
	return image.Rectangle{Min: g.Margin, Max: g.Margin.Add(g.Crop)}
}

// Prepare crops the centered region of frame and scales it to the model input size.
func (g Geometry) Prepare(frame image.Image) *image.NRGBA {
	cropRect := g.CropRect().Add(frame.Bounds().Min)
	cropped := imaging.Crop(frame, cropRect)
	if cropped.Bounds().Size() == g.Input {
		return cropped
	}
	return imaging.Resize(cropped, g.Input.X, g.Input.Y, imaging.Linear)
}

// ToFrame translates a crop-relative box into capture pixel coordinates.
// The result is not rounded or clamped.
func (g Geometry) ToFrame(r models.Rect) (left, top, right, bottom float64) {
	cw, ch := float64(g.Crop.X), float64(g.Crop.Y)
	mx, my := float64(g.Margin.X), float64(g.Margin.Y)
	return float64(r.Left)*cw + mx,
		float64(r.Top)*ch + my,
		float64(r.Right)*cw + mx,
		float64(r.Bottom)*ch + my
}
