package detect

import (
	"image"

	"gocv.io/x/gocv"
)

// OCR works best on crops with a readable character height. Crops are scaled
// so their height lands in this band before binarization.
const (
	minOCRHeight = 60
	maxOCRHeight = 200
)

// PreprocessForOCR prepares a plate crop for recognition: height
// normalization, grayscale, bilateral denoise, CLAHE contrast, adaptive
// binarization, and a morphological cleanup. The caller owns the returned
// Mat and must Close it.
func PreprocessForOCR(crop *gocv.Mat) gocv.Mat {
	work := crop.Clone()

	h := work.Rows()
	if h > 0 && h < minOCRHeight {
		scale := float64(minOCRHeight) / float64(h)
		gocv.Resize(work, &work, image.Pt(int(float64(work.Cols())*scale), minOCRHeight), 0, 0, gocv.InterpolationCubic)
	} else if h > maxOCRHeight {
		scale := float64(maxOCRHeight) / float64(h)
		gocv.Resize(work, &work, image.Pt(int(float64(work.Cols())*scale), maxOCRHeight), 0, 0, gocv.InterpolationCubic)
	}

	gray := gocv.NewMat()
	gocv.CvtColor(work, &gray, gocv.ColorBGRToGray)
	work.Close()

	filtered := gocv.NewMat()
	gocv.BilateralFilter(gray, &filtered, 11, 17, 17)
	gray.Close()

	clahe := gocv.NewCLAHEWithParams(3.0, image.Pt(8, 8))
	defer clahe.Close()
	clahe.Apply(filtered, &filtered)

	binary := gocv.NewMat()
	gocv.AdaptiveThreshold(filtered, &binary, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, 11, 2)
	filtered.Close()

	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Pt(2, 2))
	defer kernel.Close()
	gocv.MorphologyEx(binary, &binary, gocv.MorphClose, kernel)
	gocv.MorphologyEx(binary, &binary, gocv.MorphOpen, kernel)

	return binary
}
