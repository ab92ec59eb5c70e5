package chatview

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/yigit/educhat/internal/app/models"
)

// Voice message naming
const (
	RecordingName     = "audio-message.webm"
	RecordingMimeType = "audio/webm"
)

var (
	ErrRecordingActive = errors.New("a recording is already in progress")
	ErrNotRecording    = errors.New("no recording in progress")
)

// CaptureDevice is an audio source. Stop returns everything captured since Start.
type CaptureDevice interface {
	Start(ctx context.Context) error
	Stop() ([]byte, error)
}

// Recording is a finished voice capture ready for upload
type Recording struct {
	Name     string
	MimeType string
	Data     []byte
	Duration time.Duration
}

// Reader returns the captured bytes
func (r Recording) Reader() io.Reader {
	return bytes.NewReader(r.Data)
}

// Draft turns an uploaded recording into an audio message draft
func (r Recording) Draft(sender string, ref models.FileRef) models.MessageDraft {
	return models.MessageDraft{
		Sender: sender,
		Type:   models.MessageTypeAudio,
		File:   &ref,
	}
}

// Recorder allows one capture session at a time. There is no cancel: Stop
// always finalizes and emits what was captured.
type Recorder struct {
	mu      sync.Mutex
	active  atomic.Bool
	device  CaptureDevice
	started time.Time
	now     func() time.Time
}

// NewRecorder creates a Recorder over device
func NewRecorder(device CaptureDevice) *Recorder {
	return &Recorder{device: device, now: time.Now}
}

// Recording reports whether a session is active
func (r *Recorder) Recording() bool {
	return r.active.Load()
}

// Start acquires the device. A second Start while recording fails with
// ErrRecordingActive.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active.CAS(false, true) {
		return ErrRecordingActive
	}
	if err := r.device.Start(ctx); err != nil {
		r.active.Store(false)
		return err
	}
	r.started = r.now()
	return nil
}

// Stop releases the device and emits the capture. A device error is
// returned along with whatever was captured.
func (r *Recorder) Stop() (Recording, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.active.Load() {
		return Recording{}, ErrNotRecording
	}
	data, err := r.device.Stop()
	r.active.Store(false)

	return Recording{
		Name:     RecordingName,
		MimeType: RecordingMimeType,
		Data:     data,
		Duration: r.now().Sub(r.started),
	}, err
}

// ReaderDevice captures from an io.Reader, such as a prerecorded file
type ReaderDevice struct {
	src io.Reader
	buf bytes.Buffer
}

// NewReaderDevice creates a device that captures src
func NewReaderDevice(src io.Reader) *ReaderDevice {
	return &ReaderDevice{src: src}
}

// Start reads src into the capture buffer
func (d *ReaderDevice) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.buf.Reset()
	_, err := d.buf.ReadFrom(d.src)
	return err
}

// Stop returns the captured bytes
func (d *ReaderDevice) Stop() ([]byte, error) {
	return bytes.Clone(d.buf.Bytes()), nil
}
