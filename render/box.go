package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/swdee/go-siamtrack/tracker"
	"gocv.io/x/gocv"
)

// boxLabel defines where the object label should be rendered on the source
// image
type boxLabel struct {
	rect    image.Rectangle
	clr     color.RGBA
	text    string
	textPos image.Point
}

// labelText returns the label of a tracked object, its class name if it has
// one followed by the score
func labelText(res *tracker.Result) string {

	if res.Object.ClassName != "" {
		return fmt.Sprintf("%s %.2f", res.Object.ClassName, res.Score)
	}

	return fmt.Sprintf("%.2f", res.Score)
}

// placeLabel calculates the label position above the box according to the
// font alignment
func placeLabel(box image.Rectangle, text string, textSize image.Point,
	clr color.RGBA, font Font, lineThickness int) boxLabel {

	var centerX int

	switch font.Alignment {
	case Center:
		centerX = (box.Min.X + box.Max.X) / 2

	case Right:
		centerX = box.Max.X - (textSize.X / 2) - font.RightPad + (lineThickness / 2)

	case Left:
		fallthrough
	default:
		centerX = box.Min.X + (textSize.X / 2) + font.LeftPad - (lineThickness / 2)
	}

	return boxLabel{
		rect: image.Rect(centerX-textSize.X/2-font.LeftPad,
			box.Min.Y-textSize.Y-font.TopPad-font.BottomPad,
			centerX+textSize.X/2+font.RightPad, box.Min.Y),
		clr:     clr,
		text:    text,
		textPos: image.Pt(centerX-textSize.X/2, box.Min.Y-font.BottomPad),
	}
}

// TrackerBoxes renders the axis aligned bounding boxes of the tracker
// results with a label of the class name and score
func TrackerBoxes(img *gocv.Mat, results []*tracker.Result, font Font,
	lineThickness int) {

	// keep a record of all box labels for later rendering
	boxLabels := make([]boxLabel, 0, len(results))

	for _, res := range results {

		useClr := objectColor(res.Object.ID)
		box := res.Box.Image()

		gocv.Rectangle(img, box, useClr, lineThickness)

		text := labelText(res)
		textSize := gocv.GetTextSize(text, font.Face, font.Scale, font.Thickness)

		boxLabels = append(boxLabels, placeLabel(box, text, textSize, useClr,
			font, lineThickness))
	}

	// draw labels last so they are the top most layer
	for _, box := range boxLabels {
		gocv.Rectangle(img, box.rect, box.clr, -1)

		gocv.PutTextWithParams(img, box.text, box.textPos,
			font.Face, font.Scale, font.Color, font.Thickness,
			font.LineType, false)
	}
}

// TrackerBoxesTTF renders the bounding boxes like TrackerBoxes but draws the
// labels with a TrueType font
func TrackerBoxesTTF(img *gocv.Mat, results []*tracker.Result, font Font,
	ttf *TTFFont, lineThickness int) error {

	for _, res := range results {

		useClr := objectColor(res.Object.ID)
		box := res.Box.Image()

		gocv.Rectangle(img, box, useClr, lineThickness)

		text := labelText(res)
		label := placeLabel(box, text, ttf.Measure(text), useClr, font, lineThickness)

		gocv.Rectangle(img, label.rect, label.clr, -1)

		if err := ttf.PutText(img, text, label.textPos); err != nil {
			return fmt.Errorf("error drawing label: %w", err)
		}
	}

	return nil
}
