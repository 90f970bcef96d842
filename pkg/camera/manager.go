// Package camera owns the single active video source.
//
// The Manager opens sources by configured identifier, reads and downsizes
// frames, and recovers from transient link drops with one automatic reselect.
// It assumes a single caller (the capture loop); there is no locking here.
package camera

import (
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// Errors surfaced to the capture loop.
var (
	ErrUnknownSource     = errors.New("camera source not configured")
	ErrSourceUnavailable = errors.New("camera source unavailable")
	ErrFrameRead         = errors.New("frame read failed")
)

// State describes the lifecycle of the owned source.
type State int

const (
	Closed State = iota
	Opening
	Open
	Degraded
)

func (s State) String() string {
	switch s {
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Degraded:
		return "degraded"
	default:
		return "closed"
	}
}

// Frames wider than this are downscaled to bound detection cost.
const maxFrameWidth = 800

// networkSettleDelay gives IP cameras a moment to start streaming after the
// transport connects; reading immediately tends to return garbage frames.
const networkSettleDelay = 1 * time.Second

// Device is the capture backend. *gocv.VideoCapture satisfies it.
type Device interface {
	Read(m *gocv.Mat) bool
	IsOpened() bool
	Close() error
}

// Frame is one captured image. The caller owns Mat for a single loop
// iteration and must Close it.
type Frame struct {
	Mat    gocv.Mat
	Source string
	Seq    uint64
	Time   time.Time
}

// Close releases the pixel buffer. Call exactly once per frame.
func (f *Frame) Close() {
	f.Mat.Close()
}

// Manager owns at most one open video source at a time.
type Manager struct {
	sources map[string]string // identifier -> endpoint
	log     zerolog.Logger

	active string
	state  State
	dev    Device
	seq    uint64

	// open and sleep are replaceable for tests.
	open  func(endpoint string) (Device, error)
	sleep func(time.Duration)
}

// NewManager creates a Manager over the configured source map.
func NewManager(sources map[string]string, log zerolog.Logger) *Manager {
	return &Manager{
		sources: sources,
		log:     log,
		open:    openDevice,
		sleep:   time.Sleep,
	}
}

func openDevice(endpoint string) (Device, error) {
	// gocv resolves numeric strings to device indexes and everything else
	// to stream URLs or file paths.
	cap, err := gocv.OpenVideoCapture(endpoint)
	if err != nil {
		return nil, err
	}
	return cap, nil
}

// Active returns the identifier of the currently open source, or "".
func (m *Manager) Active() string {
	if m.state != Open && m.state != Degraded {
		return ""
	}
	return m.active
}

// State returns the lifecycle state of the owned source.
func (m *Manager) State() State {
	return m.state
}

// Select makes sourceID the active source. It is idempotent: selecting the
// already-open source succeeds without reopening. Otherwise the current
// source is released first, so failure leaves the manager Closed.
func (m *Manager) Select(sourceID string) error {
	if m.active == sourceID && m.dev != nil && m.dev.IsOpened() {
		return nil
	}

	m.Release()

	endpoint, ok := m.sources[sourceID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSource, sourceID)
	}

	m.state = Opening
	m.log.Info().Str("source", sourceID).Str("endpoint", endpoint).Msg("opening video source")

	dev, err := m.open(endpoint)
	if err != nil {
		m.state = Closed
		return fmt.Errorf("%w: %q: %v", ErrSourceUnavailable, sourceID, err)
	}

	if isNetworkEndpoint(endpoint) {
		m.sleep(networkSettleDelay)
	}

	if !dev.IsOpened() {
		dev.Close()
		m.state = Closed
		return fmt.Errorf("%w: %q", ErrSourceUnavailable, sourceID)
	}

	m.dev = dev
	m.active = sourceID
	m.state = Open
	m.log.Info().Str("source", sourceID).Msg("video source open")
	return nil
}

// NextFrame reads one frame from the open source, downscaling wide frames
// with area resampling. On a read failure it attempts exactly one reselect of
// the same source and returns ErrFrameRead regardless of the reselect
// outcome; the caller decides whether to retry.
func (m *Manager) NextFrame() (*Frame, error) {
	if m.dev == nil || !m.dev.IsOpened() {
		return nil, fmt.Errorf("%w: no open source", ErrFrameRead)
	}

	img := gocv.NewMat()
	if ok := m.dev.Read(&img); !ok || img.Empty() {
		img.Close()
		source := m.active
		m.log.Warn().Str("source", source).Msg("frame read failed, reselecting source")

		// One recovery attempt for transient link drops. Release first so
		// Select does not take the idempotent shortcut.
		m.state = Degraded
		m.Release()
		if err := m.Select(source); err != nil {
			m.log.Warn().Err(err).Str("source", source).Msg("reselect failed")
		}
		return nil, fmt.Errorf("%w: source %q", ErrFrameRead, source)
	}

	if w := img.Cols(); w > maxFrameWidth {
		h := img.Rows() * maxFrameWidth / w
		gocv.Resize(img, &img, image.Pt(maxFrameWidth, h), 0, 0, gocv.InterpolationArea)
	}

	m.seq++
	return &Frame{
		Mat:    img,
		Source: m.active,
		Seq:    m.seq,
		Time:   time.Now(),
	}, nil
}

// Release closes the current source. Calling it with nothing open is a no-op.
func (m *Manager) Release() {
	if m.dev != nil {
		m.log.Info().Str("source", m.active).Msg("releasing video source")
		m.dev.Close()
		m.dev = nil
	}
	m.active = ""
	m.state = Closed
}

func isNetworkEndpoint(endpoint string) bool {
	for _, prefix := range []string{"http://", "https://", "rtsp://", "rtmp://", "tcp://", "udp://"} {
		if strings.HasPrefix(endpoint, prefix) {
			return true
		}
	}
	return false
}
