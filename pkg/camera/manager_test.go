package camera

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gocv.io/x/gocv"
)

// fakeDevice scripts Read results without touching real hardware.
type fakeDevice struct {
	reads     []bool // result per Read call, last value repeats
	readCalls int
	opened    bool
	closed    bool
}

func (d *fakeDevice) Read(m *gocv.Mat) bool {
	i := d.readCalls
	d.readCalls++
	if i >= len(d.reads) {
		i = len(d.reads) - 1
	}
	if i < 0 || !d.reads[i] {
		return false
	}
	filled := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer filled.Close()
	filled.CopyTo(m)
	return true
}

func (d *fakeDevice) IsOpened() bool { return d.opened && !d.closed }
func (d *fakeDevice) Close() error   { d.closed = true; return nil }

type openRecorder struct {
	devices   []*fakeDevice
	openCalls int
	failAfter int // fail opens at index >= failAfter; -1 never fails
}

func (r *openRecorder) open(string) (Device, error) {
	i := r.openCalls
	r.openCalls++
	if r.failAfter >= 0 && i >= r.failAfter {
		return nil, errors.New("connection refused")
	}
	dev := &fakeDevice{reads: []bool{true}, opened: true}
	r.devices = append(r.devices, dev)
	return dev, nil
}

func newTestManager(rec *openRecorder) *Manager {
	m := NewManager(map[string]string{
		"webcam": "0",
		"ip_cam": "http://192.0.2.10:8080/video",
	}, zerolog.Nop())
	m.open = rec.open
	m.sleep = func(time.Duration) {}
	return m
}

func TestSelect_Idempotent(t *testing.T) {
	rec := &openRecorder{failAfter: -1}
	m := newTestManager(rec)

	if err := m.Select("webcam"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	if err := m.Select("webcam"); err != nil {
		t.Fatalf("second Select: %v", err)
	}

	if rec.openCalls != 1 {
		t.Errorf("open calls: got %d, want 1 (second select must be a no-op)", rec.openCalls)
	}
	if m.Active() != "webcam" || m.State() != Open {
		t.Errorf("state after select: active=%q state=%v", m.Active(), m.State())
	}
}

func TestSelect_SwitchReleasesPrevious(t *testing.T) {
	rec := &openRecorder{failAfter: -1}
	m := newTestManager(rec)

	if err := m.Select("webcam"); err != nil {
		t.Fatalf("Select webcam: %v", err)
	}
	if err := m.Select("ip_cam"); err != nil {
		t.Fatalf("Select ip_cam: %v", err)
	}

	if !rec.devices[0].closed {
		t.Error("previous device not released on switch")
	}
	if m.Active() != "ip_cam" {
		t.Errorf("active: got %q, want ip_cam", m.Active())
	}
}

func TestSelect_UnknownSource(t *testing.T) {
	rec := &openRecorder{failAfter: -1}
	m := newTestManager(rec)

	err := m.Select("nonexistent")
	if !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("error: got %v, want ErrUnknownSource", err)
	}
	if m.State() != Closed {
		t.Errorf("state: got %v, want Closed", m.State())
	}
}

func TestSelect_Unavailable(t *testing.T) {
	rec := &openRecorder{failAfter: 0}
	m := newTestManager(rec)

	err := m.Select("webcam")
	if !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("error: got %v, want ErrSourceUnavailable", err)
	}
	if m.State() != Closed || m.Active() != "" {
		t.Errorf("state after failed open: active=%q state=%v", m.Active(), m.State())
	}
}

func TestNextFrame_ReadsAndStamps(t *testing.T) {
	rec := &openRecorder{failAfter: -1}
	m := newTestManager(rec)

	if err := m.Select("webcam"); err != nil {
		t.Fatalf("Select: %v", err)
	}

	frame, err := m.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame: %v", err)
	}
	defer frame.Close()

	if frame.Source != "webcam" {
		t.Errorf("source: got %q, want webcam", frame.Source)
	}
	if frame.Seq != 1 {
		t.Errorf("seq: got %d, want 1", frame.Seq)
	}
	if frame.Mat.Empty() {
		t.Error("frame mat is empty")
	}
}

func TestNextFrame_SingleReselectOnFailure(t *testing.T) {
	rec := &openRecorder{failAfter: -1}
	m := newTestManager(rec)

	if err := m.Select("webcam"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	// First device fails its next read.
	rec.devices[0].reads = []bool{false}

	_, err := m.NextFrame()
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("error: got %v, want ErrFrameRead", err)
	}

	// Exactly one reselect: the failed device was replaced by a fresh open.
	if rec.openCalls != 2 {
		t.Errorf("open calls: got %d, want 2", rec.openCalls)
	}
	if !rec.devices[0].closed {
		t.Error("failed device not released")
	}

	// The reselected source recovers on the next read.
	frame, err := m.NextFrame()
	if err != nil {
		t.Fatalf("NextFrame after recovery: %v", err)
	}
	frame.Close()
}

func TestNextFrame_FailureEvenWhenReselectFails(t *testing.T) {
	rec := &openRecorder{failAfter: 1}
	m := newTestManager(rec)

	if err := m.Select("webcam"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	rec.devices[0].reads = []bool{false}

	_, err := m.NextFrame()
	if !errors.Is(err, ErrFrameRead) {
		t.Fatalf("error: got %v, want ErrFrameRead", err)
	}
	if m.State() != Closed {
		t.Errorf("state after failed reselect: got %v, want Closed", m.State())
	}
}

func TestRelease_Idempotent(t *testing.T) {
	rec := &openRecorder{failAfter: -1}
	m := newTestManager(rec)

	m.Release() // nothing open, no panic

	if err := m.Select("webcam"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	m.Release()
	m.Release()

	if m.State() != Closed || m.Active() != "" {
		t.Errorf("state after release: active=%q state=%v", m.Active(), m.State())
	}
}
