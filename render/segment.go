package render

import (
	"github.com/swdee/go-siamtrack/tracker"
	"gocv.io/x/gocv"
)

// SegmentMask renders the SiamMask masks of the tracker results as a
// transparent overlay.  Results without a mask are skipped
func SegmentMask(img *gocv.Mat, results []*tracker.Result, alpha float32) {

	width := img.Cols()
	height := img.Rows()

	// it is too slow to manipulate pixel by pixel using GoCV due to slowness
	// over CGO.  So we copy the bytes from the source image and manipulate
	// the bytes directly before copying back to a Mat
	imgData := img.ToBytes()
	changed := false

	for _, res := range results {

		if !res.HasMask() || res.Mask.Cols() != width || res.Mask.Rows() != height {
			continue
		}

		mask := res.Mask.ToBytes()
		clr := objectColor(res.Object.ID)

		for idx, v := range mask {

			if v == 0 {
				continue
			}

			pixelPos := idx * 3
			b, g, r := imgData[pixelPos+0], imgData[pixelPos+1], imgData[pixelPos+2]

			// calculate blended colors based on alpha transparency
			imgData[pixelPos+0] = uint8(float32(b)*(1-alpha) + float32(clr.B)*alpha)
			imgData[pixelPos+1] = uint8(float32(g)*(1-alpha) + float32(clr.G)*alpha)
			imgData[pixelPos+2] = uint8(float32(r)*(1-alpha) + float32(clr.R)*alpha)
		}

		changed = true
	}

	if !changed {
		return
	}

	// copy back to the original mat
	tmpImg, _ := gocv.NewMatFromBytes(height, width, gocv.MatTypeCV8UC3, imgData)
	defer tmpImg.Close()
	tmpImg.CopyTo(img)
}

// SegmentOutline renders the mask contours of the tracker results, keeping
// only contours of at least minArea
func SegmentOutline(img *gocv.Mat, results []*tracker.Result, minArea float64,
	lineThickness int) {

	for _, res := range results {

		if !res.HasMask() {
			continue
		}

		useClr := objectColor(res.Object.ID)

		for i := 0; i < res.Contours.Size(); i++ {
			contour := res.Contours.At(i)

			// filter out small contours picked up from aliasing/noise in binary mask
			if gocv.ContourArea(contour) < minArea {
				continue
			}

			approx := gocv.ApproxPolyDP(contour, 3, true)
			ptsVec := gocv.NewPointsVector()
			ptsVec.Append(approx)

			gocv.Polylines(img, ptsVec, true, useClr, lineThickness)

			approx.Close()
			ptsVec.Close()
		}
	}
}

// RotatedBoxes renders the rotated rectangle polygon of each tracker result.
// For SiamRPN++ results this is the axis aligned box
func RotatedBoxes(img *gocv.Mat, results []*tracker.Result, lineThickness int) {

	for _, res := range results {

		if len(res.Polygon) < 2 {
			continue
		}

		pv := gocv.NewPointVectorFromPoints(res.Polygon)
		ptsVec := gocv.NewPointsVector()
		ptsVec.Append(pv)

		gocv.Polylines(img, ptsVec, true, objectColor(res.Object.ID), lineThickness)

		pv.Close()
		ptsVec.Close()
	}
}
