package detect

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// YOLOLocator runs a YOLOv8 plate-detection model through the OpenCV DNN
// module.
type YOLOLocator struct {
	net       gocv.Net
	config    YOLOConfig
	mu        sync.Mutex
	inputSize image.Point
}

// YOLOConfig holds locator configuration.
type YOLOConfig struct {
	ModelPath        string
	ConfidenceThresh float32
	NMSThresh        float32
	InputWidth       int
	InputHeight      int
	// ClassNames maps model class ids to labels. Plate detectors ship a
	// single "license-plate" class.
	ClassNames []string
}

// DefaultYOLOConfig returns production defaults for the plate detector.
func DefaultYOLOConfig(modelPath string) YOLOConfig {
	return YOLOConfig{
		ModelPath:        modelPath,
		ConfidenceThresh: 0.35,
		NMSThresh:        0.45,
		InputWidth:       640,
		InputHeight:      640,
		ClassNames:       []string{"license-plate"},
	}
}

// NewYOLO loads the ONNX model. A missing or unloadable model is an error
// the caller may treat as non-fatal: the loop runs without a locator and
// overlays an error banner instead.
func NewYOLO(cfg YOLOConfig) (*YOLOLocator, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load model from %s", cfg.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &YOLOLocator{
		net:       net,
		config:    cfg,
		inputSize: image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// Locate runs one forward pass over the frame.
func (l *YOLOLocator) Locate(frame *gocv.Mat) ([]Detection, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if frame.Empty() {
		return nil, fmt.Errorf("empty frame")
	}

	imgW := float32(frame.Cols())
	imgH := float32(frame.Rows())

	blob := gocv.BlobFromImage(*frame, 1.0/255.0, l.inputSize, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	l.net.SetInput(blob, "")
	output := l.net.Forward("")
	defer output.Close()

	return l.parseOutput(output, imgW, imgH), nil
}

// parseOutput decodes the YOLOv8 output tensor.
// Shape: [1, 4+numClasses, 8400] - transposed relative to detection order.
func (l *YOLOLocator) parseOutput(output gocv.Mat, imgW, imgH float32) []Detection {
	var boxes []image.Rectangle
	var confidences []float32
	var classIDs []int

	rows := output.Cols() // 8400 candidate detections
	cols := output.Rows() // 4 bbox + class scores

	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil
	}

	for i := 0; i < rows; i++ {
		maxScore := float32(0)
		maxClassID := 0
		for c := 4; c < cols; c++ {
			score := data[c*rows+i]
			if score > maxScore {
				maxScore = score
				maxClassID = c - 4
			}
		}

		if maxScore < l.config.ConfidenceThresh {
			continue
		}

		// Center format to corners, scaled back to frame size.
		cx := data[0*rows+i]
		cy := data[1*rows+i]
		w := data[2*rows+i]
		h := data[3*rows+i]

		x1 := int((cx - w/2) * imgW / float32(l.config.InputWidth))
		y1 := int((cy - h/2) * imgH / float32(l.config.InputHeight))
		x2 := int((cx + w/2) * imgW / float32(l.config.InputWidth))
		y2 := int((cy + h/2) * imgH / float32(l.config.InputHeight))

		boxes = append(boxes, image.Rect(x1, y1, x2, y2))
		confidences = append(confidences, maxScore)
		classIDs = append(classIDs, maxClassID)
	}

	if len(boxes) == 0 {
		return nil
	}

	indices := gocv.NMSBoxes(boxes, confidences, l.config.ConfidenceThresh, l.config.NMSThresh)

	detections := make([]Detection, 0, len(indices))
	for _, idx := range indices {
		detections = append(detections, Detection{
			Box:        boxes[idx],
			Confidence: confidences[idx],
			Label:      l.className(classIDs[idx]),
		})
	}
	return detections
}

func (l *YOLOLocator) className(id int) string {
	if id >= 0 && id < len(l.config.ClassNames) {
		return l.config.ClassNames[id]
	}
	return fmt.Sprintf("class-%d", id)
}

// Close releases the network.
func (l *YOLOLocator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.net.Close()
}
