// Package capture runs the recognition pipeline: frames in, plate records and
// annotated frames out.
//
// The loop is a single goroutine and the sole owner of the video source.
// Control arrives as messages on an inbox polled once per iteration, so HTTP
// handlers never touch loop state directly.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gocv.io/x/gocv"

	"platewatch/pkg/camera"
	"platewatch/pkg/dedup"
	"platewatch/pkg/detect"
	"platewatch/pkg/plate"
)

const (
	// frameInterval targets roughly 30 iterations per second.
	frameInterval = 33 * time.Millisecond

	// captureBackoff is the pause after a failed frame read before the next
	// attempt. Read failures are not fatal; the source manager already did
	// its one reselect.
	captureBackoff = 500 * time.Millisecond

	// inboxSize bounds queued control commands.
	inboxSize = 8
)

// ErrInboxFull is returned when a control command cannot be queued.
var ErrInboxFull = errors.New("capture loop inbox full")

// Source is the video source owned by the loop. *camera.Manager satisfies it.
type Source interface {
	Select(sourceID string) error
	NextFrame() (*camera.Frame, error)
	Release()
	Active() string
}

// Config carries the loop tunables.
type Config struct {
	// SaveDir is where accepted plate crops are archived as JPEGs.
	SaveDir string
	// JPEGQuality applies to both archived crops and streamed frames.
	JPEGQuality int
	// DedupWindow is the initial suppression window; adjustable at runtime
	// via SetWindow.
	DedupWindow time.Duration
}

// Loop is the capture orchestrator. Construct with New, drive with Run, and
// control through Start, Stop and Switch.
type Loop struct {
	source  Source
	locator detect.Locator // nil when no model is loaded
	reader  detect.Reader
	cache   *dedup.Cache
	sink    Sink
	log     zerolog.Logger

	saveDir string
	quality int

	windowSeconds atomic.Int64

	inbox chan Command

	mu      sync.Mutex
	running bool
	active  string

	// sleep is replaceable for tests.
	sleep func(time.Duration)
}

// New creates a Loop. A nil locator is allowed: frames then carry an error
// banner and produce no detections.
func New(source Source, locator detect.Locator, reader detect.Reader, cache *dedup.Cache, sink Sink, cfg Config, log zerolog.Logger) *Loop {
	l := &Loop{
		source:  source,
		locator: locator,
		reader:  reader,
		cache:   cache,
		sink:    sink,
		log:     log,
		saveDir: cfg.SaveDir,
		quality: cfg.JPEGQuality,
		inbox:   make(chan Command, inboxSize),
		sleep:   time.Sleep,
	}
	l.windowSeconds.Store(int64(cfg.DedupWindow / time.Second))
	return l
}

// Start queues a start command for the given source.
func (l *Loop) Start(sourceID string) error {
	return l.send(Command{Op: OpStart, Source: sourceID})
}

// Stop queues a stop command.
func (l *Loop) Stop() error {
	return l.send(Command{Op: OpStop})
}

// Switch queues a source change without stopping the stream.
func (l *Loop) Switch(sourceID string) error {
	return l.send(Command{Op: OpSwitch, Source: sourceID})
}

func (l *Loop) send(cmd Command) error {
	select {
	case l.inbox <- cmd:
		return nil
	default:
		return ErrInboxFull
	}
}

// Window returns the current dedup suppression window.
func (l *Loop) Window() time.Duration {
	return time.Duration(l.windowSeconds.Load()) * time.Second
}

// WindowSeconds returns the window in whole seconds, for the settings API.
func (l *Loop) WindowSeconds() int {
	return int(l.windowSeconds.Load())
}

// SetWindow updates the dedup window. Bounds checking is the caller's job.
func (l *Loop) SetWindow(seconds int) {
	l.windowSeconds.Store(int64(seconds))
	l.log.Info().Int("seconds", seconds).Msg("dedup window updated")
}

// Status reports whether the loop is streaming and from which source.
func (l *Loop) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{Running: l.running, Source: l.active}
}

func (l *Loop) setState(running bool, source string) {
	l.mu.Lock()
	l.running = running
	l.active = source
	l.mu.Unlock()
}

// Run drives the loop until ctx is cancelled. Idle between streams, it blocks
// on the inbox; while streaming, the inbox is polled at the top of each
// iteration.
func (l *Loop) Run(ctx context.Context) {
	if l.saveDir != "" {
		if err := os.MkdirAll(l.saveDir, 0o755); err != nil {
			l.log.Error().Err(err).Str("dir", l.saveDir).Msg("cannot create capture dir")
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-l.inbox:
			if cmd.Op != OpStart {
				continue
			}
			l.stream(ctx, cmd.Source)
		}
	}
}

// stream runs one Running episode. It returns when stopped, cancelled, or the
// source fails fatally; the source is always released and a terminal status
// emitted on the way out.
func (l *Loop) stream(ctx context.Context, sourceID string) {
	l.log.Info().Str("source", sourceID).Msg("capture starting")

	desired := sourceID
	var fatal string

	defer func() {
		l.source.Release()
		l.setState(false, "")
		l.sink.OnStatus(Status{Running: false, Error: fatal})
		l.log.Info().Msg("capture stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-l.inbox:
			switch cmd.Op {
			case OpStop:
				return
			case OpStart, OpSwitch:
				desired = cmd.Source
			}
		default:
		}

		if l.source.Active() != desired {
			if err := l.source.Select(desired); err != nil {
				l.log.Error().Err(err).Str("source", desired).Msg("source select failed")
				fatal = err.Error()
				return
			}
			l.setState(true, desired)
			l.sink.OnStatus(Status{Running: true, Source: desired})
		}

		frame, err := l.source.NextFrame()
		if err != nil {
			l.log.Warn().Err(err).Msg("frame read failed, backing off")
			l.sleep(captureBackoff)
			continue
		}

		l.processFrame(ctx, frame)
		frame.Close()

		l.sleep(frameInterval)
	}
}

// processFrame runs locate, read, normalize and dedup over one frame, then
// forwards the iteration's accepted records and the annotated frame.
func (l *Loop) processFrame(ctx context.Context, frame *camera.Frame) {
	detections := l.locate(frame)

	var records []Record
	var overlays []overlay

	for _, d := range detections {
		rec, ov := l.recognize(ctx, frame, d)
		overlays = append(overlays, ov)
		if rec != nil {
			records = append(records, *rec)
		}
	}

	for _, rec := range records {
		if !l.sink.OnRecord(rec) {
			l.log.Warn().Str("plate", rec.Code).Msg("sink rejected record")
		}
	}

	banner := ""
	if l.locator == nil {
		banner = "detector model not loaded"
	}
	annotateFrame(&frame.Mat, overlays, banner)

	jpeg, err := encodeFrame(&frame.Mat, l.quality)
	if err != nil {
		l.log.Warn().Err(err).Msg("frame encode failed")
		return
	}
	l.sink.OnFrame(jpeg)
}

// locate returns the plate-labelled detections in the frame, boxes clamped to
// the frame bounds. Locator errors skip the frame's detections, never the loop.
func (l *Loop) locate(frame *camera.Frame) []detect.Detection {
	if l.locator == nil {
		return nil
	}

	found, err := l.locator.Locate(&frame.Mat)
	if err != nil {
		l.log.Warn().Err(err).Msg("locator failed")
		return nil
	}

	cols, rows := frame.Mat.Cols(), frame.Mat.Rows()
	plates := found[:0]
	for _, d := range found {
		if !detect.IsPlateLabel(d.Label) {
			continue
		}
		d.Box = detect.ClampBox(d.Box, cols, rows)
		if d.Box.Empty() {
			continue
		}
		plates = append(plates, d)
	}
	return plates
}

// recognize handles a single detection. Reader errors and unreadable or
// duplicate plates produce only an overlay; an accepted sighting also archives
// the crop and yields a record.
func (l *Loop) recognize(ctx context.Context, frame *camera.Frame, d detect.Detection) (*Record, overlay) {
	ov := overlay{box: d.Box}

	crop := frame.Mat.Region(d.Box)
	defer crop.Close()

	raw, err := l.reader.Read(ctx, &crop)
	if err != nil {
		l.log.Warn().Err(err).Msg("plate read failed")
		return nil, ov
	}

	code := plate.Normalize(raw)
	if code == "" {
		return nil, ov
	}
	ov.label = fmt.Sprintf("%s (%.2f)", code, d.Confidence)

	imageRef := fmt.Sprintf("%s_%s.jpg", code, uuid.New().String()[:8])
	if !l.cache.ShouldAccept(ctx, code, frame.Source, l.Window(), imageRef) {
		return nil, ov
	}
	ov.accepted = true

	l.archiveCrop(crop, imageRef)

	l.log.Info().Str("plate", code).Str("source", frame.Source).
		Float32("confidence", d.Confidence).Msg("plate accepted")

	return &Record{
		Code:       code,
		Source:     frame.Source,
		Confidence: d.Confidence,
		Time:       frame.Time,
		ImageRef:   imageRef,
	}, ov
}

// archiveCrop writes the accepted plate crop under the capture dir. Failures
// are logged; the record keeps its reference either way.
func (l *Loop) archiveCrop(crop gocv.Mat, name string) {
	if l.saveDir == "" {
		return
	}
	path := filepath.Join(l.saveDir, name)
	if ok := gocv.IMWriteWithParams(path, crop, []int{gocv.IMWriteJpegQuality, l.quality}); !ok {
		l.log.Warn().Str("path", path).Msg("crop archive failed")
	}
}
