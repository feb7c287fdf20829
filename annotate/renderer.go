// Package annotate draws detections onto capture frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/Tutortoise/live-detection-service/detections"
	"github.com/Tutortoise/live-detection-service/models"
)

const (
	strokeWidth = 2
	textMargin  = 1
)

var (
	marginShade       = color.NRGBA{A: 0x66}
	captionBackground = color.RGBA{A: 0xff}
	captionText       = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Filter keeps detections whose confidence is at least threshold.
func Filter(dets []models.Detection, threshold float32) []models.Detection {
	kept := make([]models.Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence >= threshold {
			kept = append(kept, d)
		}
	}
	return kept
}

// Renderer draws onto frames of the capture size described by its geometry.
type Renderer struct {
	geom    detections.Geometry
	palette *Palette
	face    font.Face
}

func NewRenderer(geom detections.Geometry, palette *Palette) *Renderer {
	if palette == nil {
		palette = NewPalette()
	}
	return &Renderer{geom: geom, palette: palette, face: basicfont.Face7x13}
}

// Annotate filters dets by threshold, renders the survivors and encodes the
// result as JPEG. The kept detections are returned with the image.
func (r *Renderer) Annotate(frame image.Image, dets []models.Detection, threshold float32, quality int) ([]byte, []models.Detection, error) {
	kept := Filter(dets, threshold)
	img, err := EncodeJPEG(r.Render(frame, kept), quality)
	if err != nil {
		return nil, nil, err
	}
	return img, kept, nil
}

// Render paints frame as the background, shades the area outside the crop
// and draws each detection with its caption.
func (r *Renderer) Render(frame image.Image, dets []models.Detection) *image.RGBA {
	b := frame.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), frame, b.Min, draw.Src)

	r.shadeMargins(canvas)
	for _, d := range dets {
		r.drawDetection(canvas, d)
	}
	return canvas
}

func (r *Renderer) shadeMargins(canvas *image.RGBA) {
	w, h := canvas.Bounds().Dx(), canvas.Bounds().Dy()
	m, c := r.geom.Margin, r.geom.Crop
	shade := image.NewUniform(marginShade)
	strips := []image.Rectangle{
		image.Rect(0, 0, w, m.Y),
		image.Rect(0, c.Y+m.Y, w, h),
		image.Rect(0, m.Y, m.X, c.Y+m.Y),
		image.Rect(m.X+c.X, m.Y, w, c.Y+m.Y),
	}
	for _, s := range strips {
		draw.Draw(canvas, s, shade, image.Point{}, draw.Over)
	}
}

func (r *Renderer) drawDetection(canvas *image.RGBA, d models.Detection) {
	left, top, right, bottom := r.geom.ToFrame(d.Location)
	box := image.Rect(round(left), round(top), round(right), round(bottom))
	strokeRect(canvas, box, r.palette.Color(d.Label), strokeWidth)

	caption := fmt.Sprintf("%s: %.1f%%", d.Label, d.Confidence*100)
	textW := font.MeasureString(r.face, caption).Ceil()
	textH := r.face.Metrics().Height.Ceil()
	bg := image.Rect(box.Min.X, box.Min.Y+textMargin, box.Min.X+textW+2*textMargin, box.Min.Y+textH+2*textMargin)
	draw.Draw(canvas, bg, image.NewUniform(captionBackground), image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(captionText),
		Face: r.face,
		Dot:  fixed.P(box.Min.X+textMargin, box.Min.Y+textH),
	}
	drawer.DrawString(caption)
}

// strokeRect outlines rect with a stroke of width centered on its edges.
func strokeRect(dst draw.Image, rect image.Rectangle, c color.Color, width int) {
	src := image.NewUniform(c)
	o := rect.Inset(-width / 2)
	for _, band := range []image.Rectangle{
		image.Rect(o.Min.X, o.Min.Y, o.Max.X, o.Min.Y+width),
		image.Rect(o.Min.X, o.Max.Y-width, o.Max.X, o.Max.Y),
		image.Rect(o.Min.X, o.Min.Y, o.Min.X+width, o.Max.Y),
		image.Rect(o.Max.X-width, o.Min.Y, o.Max.X, o.Max.Y),
	} {
		draw.Draw(dst, band, src, image.Point{}, draw.Src)
	}
}

func round(v float64) int {
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(math.Round(v))
}
