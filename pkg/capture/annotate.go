package capture

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// overlay is one box-plus-label to draw on a frame.
type overlay struct {
	box      image.Rectangle
	label    string
	accepted bool
}

var (
	acceptedColor = color.RGBA{R: 0, G: 200, B: 0}
	rejectedColor = color.RGBA{R: 255, G: 165, B: 0}
	bannerColor   = color.RGBA{R: 220, G: 40, B: 40}
)

// annotateFrame draws detection overlays in place. Accepted detections get a
// green box, everything else orange. A non-empty banner is drawn across the
// top, used when no locator is loaded.
func annotateFrame(img *gocv.Mat, overlays []overlay, banner string) {
	for _, o := range overlays {
		c := rejectedColor
		if o.accepted {
			c = acceptedColor
		}
		gocv.Rectangle(img, o.box, c, 2)

		if o.label == "" {
			continue
		}
		size := gocv.GetTextSize(o.label, gocv.FontHersheySimplex, 0.6, 2)
		pt := image.Pt(o.box.Min.X, o.box.Min.Y-6)
		if pt.Y < size.Y {
			// Box touches the top edge; put the label below instead.
			pt.Y = o.box.Max.Y + size.Y + 6
		}
		gocv.PutText(img, o.label, pt, gocv.FontHersheySimplex, 0.6, c, 2)
	}

	if banner != "" {
		gocv.PutText(img, banner, image.Pt(10, 30), gocv.FontHersheySimplex, 0.8, bannerColor, 2)
	}
}

// encodeFrame JPEG-encodes a frame for the live stream.
func encodeFrame(img *gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *img, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}
