// Package detect wraps the plate-locating and text-reading capabilities.
//
// Both are external models the service does not own: a YOLO network loaded
// through the OpenCV DNN module locates plates, and an OCR sidecar reads the
// cropped regions. This package adapts them to the capture loop's interfaces.
package detect

import (
	"context"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

// Detection is one located object in a frame.
type Detection struct {
	Box        image.Rectangle
	Confidence float32
	Label      string
}

// Locator finds candidate plate regions in a frame.
type Locator interface {
	// Locate returns all detections in the frame, any class.
	Locate(frame *gocv.Mat) ([]Detection, error)

	// Close releases model resources.
	Close() error
}

// Reader recognizes the text in a cropped plate region. The context bounds
// any remote calls the implementation makes.
type Reader interface {
	Read(ctx context.Context, crop *gocv.Mat) (string, error)
}

// IsPlateLabel reports whether a detection class counts as a license plate.
// Models in the wild name the class "license-plate", "license_plate", or
// "License Plate"; match loosely the way the class filter always has.
func IsPlateLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "license")
}

// ClampBox intersects a detection box with the frame bounds so cropping
// never reads outside the pixel buffer.
func ClampBox(box image.Rectangle, cols, rows int) image.Rectangle {
	return box.Intersect(image.Rect(0, 0, cols, rows))
}
