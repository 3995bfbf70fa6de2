package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"

	"gocv.io/x/gocv"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

type Alignment int

const (
	Left   Alignment = 1
	Center Alignment = 2
	Right  Alignment = 3
)

// Font defines the parameters for rendering text on an image using GoCV
type Font struct {
	Face      gocv.HersheyFont
	Scale     float64
	Color     color.RGBA
	Thickness int
	LineType  gocv.LineType
	// Padding to place around text
	LeftPad   int
	RightPad  int
	TopPad    int
	BottomPad int
	// Alignment of the text label to the bounding box
	Alignment Alignment
}

// DefaultFont returns default font settings
func DefaultFont() Font {
	return Font{
		Face:      gocv.FontHersheySimplex,
		Scale:     0.5,
		Color:     White,
		Thickness: 1,
		LineType:  gocv.LineAA,
		LeftPad:   4,
		RightPad:  4,
		TopPad:    4,
		BottomPad: 6,
		Alignment: Left,
	}
}

// TTFFont renders text with a TrueType font face, which unlike the Hershey
// fonts supports non Latin characters
type TTFFont struct {
	face  font.Face
	Color color.RGBA
}

// NewTTFFont loads the TTF font file at the given point size.  An empty path
// uses the embedded Go Regular font
func NewTTFFont(path string, size float64) (*TTFFont, error) {

	data := goregular.TTF

	if path != "" {
		var err error

		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load font: %w", err)
		}
	}

	f, err := opentype.Parse(data)

	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to create type face: %w", err)
	}

	return &TTFFont{face: face, Color: White}, nil
}

// Measure returns the width and height in pixels of the rendered text
func (t *TTFFont) Measure(text string) image.Point {

	adv := font.MeasureString(t.face, text)
	m := t.face.Metrics()

	return image.Pt(adv.Ceil(), (m.Ascent + m.Descent).Ceil())
}

// PutText draws the text with its baseline starting at pt.  Only the text
// bounds are copied through Go memory
func (t *TTFFont) PutText(img *gocv.Mat, text string, pt image.Point) error {

	size := t.Measure(text)
	ascent := t.face.Metrics().Ascent.Ceil()

	// text bounds clipped to the image
	bounds := image.Rect(pt.X, pt.Y-ascent, pt.X+size.X, pt.Y-ascent+size.Y).
		Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))

	if bounds.Empty() {
		return nil
	}

	region := img.Region(bounds)
	defer region.Close()

	// region is not continuous, clone it before reading its bytes
	bg := region.Clone()
	defer bg.Close()

	src, err := bg.ToImage()

	if err != nil {
		return fmt.Errorf("error converting region to image: %w", err)
	}

	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, src.Bounds().Min, draw.Src)

	dr := &font.Drawer{
		Dst:  rgba,
		Src:  image.NewUniform(t.Color),
		Face: t.face,
		Dot: fixed.Point26_6{
			X: fixed.I(pt.X - bounds.Min.X),
			Y: fixed.I(pt.Y - bounds.Min.Y),
		},
	}
	dr.DrawString(text)

	out, err := gocv.ImageToMatRGB(rgba)

	if err != nil {
		return fmt.Errorf("error creating Mat from RGBA: %w", err)
	}

	defer out.Close()
	out.CopyTo(&region)

	return nil
}

// Close frees the font face
func (t *TTFFont) Close() error {
	return t.face.Close()
}
