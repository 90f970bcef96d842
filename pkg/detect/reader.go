package detect

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"platewatch/pkg/ocr"
	"platewatch/pkg/plate"
)

// plateAllowlist restricts the engines to characters a plate can contain.
const plateAllowlist = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ-"

// ocrClient is the slice of ocr.Client the ladder needs.
type ocrClient interface {
	Read(ctx context.Context, jpeg []byte, opts ocr.Options) ([]ocr.Result, error)
}

// strategy is one rung of the recognition ladder: engine parameters plus a
// picker that turns raw fragments into a candidate, or "" to fall through.
type strategy struct {
	name          string
	preprocess    bool
	minConfidence float64
	opts          ocr.Options
	pick          func(results []ocr.Result, minConfidence float64) string
}

// ladder is ordered strictest first. Earlier rungs demand a grammar match;
// the last rung merely wants something plate-shaped.
var ladder = []strategy{
	{
		name:          "primary-strict",
		preprocess:    true,
		minConfidence: 0.6,
		opts: ocr.Options{
			Engine:    ocr.EnginePrimary,
			Allowlist: plateAllowlist,
			WidthThs:  0.7,
			HeightThs: 0.7,
		},
		pick: pickLongestValid,
	},
	{
		name:          "secondary-engine",
		preprocess:    true,
		minConfidence: 0,
		opts: ocr.Options{
			Engine:    ocr.EngineSecondary,
			Allowlist: plateAllowlist,
		},
		pick: pickLongestValid,
	},
	{
		name:          "primary-loosened",
		preprocess:    false,
		minConfidence: 0.4,
		opts: ocr.Options{
			Engine:    ocr.EnginePrimary,
			Allowlist: plateAllowlist,
			WidthThs:  0.5,
			HeightThs: 0.5,
		},
		pick: pickFirstPlausible,
	},
	{
		name:          "last-resort",
		preprocess:    false,
		minConfidence: 0.3,
		opts: ocr.Options{
			Engine:    ocr.EnginePrimary,
			WidthThs:  0.3,
			HeightThs: 0.3,
			MagRatio:  1.5,
		},
		pick: pickConcatenated,
	},
}

// LadderReader recognizes plate text by walking an ordered list of engine
// strategies and taking the first rung that yields a usable candidate.
type LadderReader struct {
	client ocrClient
	log    zerolog.Logger
}

// NewLadderReader creates a Reader over the OCR sidecar client.
func NewLadderReader(client *ocr.Client, log zerolog.Logger) *LadderReader {
	return &LadderReader{client: client, log: log}
}

// Read runs the ladder over the crop. It returns "" with no error when no
// rung produced a candidate; the caller treats that as an unreadable plate.
func (r *LadderReader) Read(ctx context.Context, crop *gocv.Mat) (string, error) {
	if crop.Empty() {
		return "", nil
	}

	raw, err := encodeJPEG(crop)
	if err != nil {
		return "", fmt.Errorf("encode crop: %w", err)
	}

	var processed []byte // encoded lazily, only the first rung that needs it pays

	for _, s := range ladder {
		img := raw
		if s.preprocess {
			if processed == nil {
				prepared := PreprocessForOCR(crop)
				processed, err = encodeJPEG(&prepared)
				prepared.Close()
				if err != nil {
					return "", fmt.Errorf("encode preprocessed crop: %w", err)
				}
			}
			img = processed
		}

		results, err := r.client.Read(ctx, img, s.opts)
		if err != nil {
			r.log.Debug().Err(err).Str("strategy", s.name).Msg("ocr strategy failed")
			continue
		}

		if text := s.pick(results, s.minConfidence); text != "" {
			r.log.Debug().Str("strategy", s.name).Str("text", text).Msg("ocr candidate")
			return text, nil
		}
	}

	return "", nil
}

// pickLongestValid keeps the longest cleaned fragment that matches the plate
// grammar.
func pickLongestValid(results []ocr.Result, minConfidence float64) string {
	best := ""
	for _, res := range results {
		if res.Confidence <= minConfidence {
			continue
		}
		cleaned := plate.Clean(res.Text)
		if cleaned != "" && plate.Valid(cleaned) && len(cleaned) > len(best) {
			best = cleaned
		}
	}
	return best
}

// pickFirstPlausible takes the first fragment that validates, or failing
// that looks long enough to be a garbled plate worth correcting.
func pickFirstPlausible(results []ocr.Result, minConfidence float64) string {
	for _, res := range results {
		if res.Confidence <= minConfidence {
			continue
		}
		cleaned := plate.Clean(res.Text)
		if cleaned == "" {
			continue
		}
		if plate.Valid(cleaned) || len(cleaned) >= 6 {
			return cleaned
		}
	}
	return ""
}

// pickConcatenated glues all confident fragments together; engines split
// plates at the separator often enough that the halves recombine here.
func pickConcatenated(results []ocr.Result, minConfidence float64) string {
	var sb strings.Builder
	for _, res := range results {
		if res.Confidence > minConfidence {
			sb.WriteString(strings.ReplaceAll(strings.ToUpper(res.Text), " ", ""))
		}
	}
	if sb.Len() == 0 {
		return ""
	}
	cleaned := plate.Clean(sb.String())
	if len(cleaned) >= 5 {
		return cleaned
	}
	return ""
}

func encodeJPEG(img *gocv.Mat) ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	data := make([]byte, len(buf.GetBytes()))
	copy(data, buf.GetBytes())
	return data, nil
}
