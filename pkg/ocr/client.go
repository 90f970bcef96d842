// Package ocr is the client for the text-recognition sidecar.
//
// Character recognition itself is an external capability: a small HTTP
// service wrapping the OCR engines. This client submits a JPEG crop with
// per-request engine parameters and returns the recognized text fragments.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"

	"platewatch/internal/httpc"
)

// Engine names understood by the sidecar.
const (
	EnginePrimary   = "easyocr"
	EngineSecondary = "tesseract"
)

// Options tune a single recognition request.
type Options struct {
	Engine    string  `json:"engine"`
	Allowlist string  `json:"allowlist,omitempty"`
	WidthThs  float64 `json:"width_ths,omitempty"`
	HeightThs float64 `json:"height_ths,omitempty"`
	MagRatio  float64 `json:"mag_ratio,omitempty"`
}

// Result is one recognized text fragment.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Client talks to the OCR sidecar.
type Client struct {
	endpoint string
	http     *http.Client
}

// NewClient creates a client for the sidecar at endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		http:     httpc.NewClient(httpc.DefaultTimeout),
	}
}

type request struct {
	Image string `json:"image"` // base64 JPEG
	Options
}

type response struct {
	Results []Result `json:"results"`
	Error   string   `json:"error,omitempty"`
}

// Read submits a JPEG crop and returns the recognized fragments.
func (c *Client) Read(ctx context.Context, jpeg []byte, opts Options) ([]Result, error) {
	body, err := json.Marshal(request{
		Image:   base64.StdEncoding.EncodeToString(jpeg),
		Options: opts,
	})
	if err != nil {
		return nil, fmt.Errorf("encode ocr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/ocr", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ocr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ocr sidecar returned %s", resp.Status)
	}

	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode ocr response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ocr sidecar: %s", out.Error)
	}
	return out.Results, nil
}
