// Package capture records microphone audio.
//
// A Recorder owns at most one open device stream at a time. Fragments read
// from the stream are buffered until Stop, then joined into a single Blob
// and handed to the submit function. The stream is released on every path
// out of a recording.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/status"
)

// Upload defaults for recorded clips.
const (
	DefaultMIMEType = "audio/wav"
	DefaultFilename = "recording.wav"
)

// ErrNotRecording is returned by Stop when nothing is being recorded.
var ErrNotRecording = errors.New("not recording")

// ErrNoAudio is returned through Wait when a recording captured nothing.
var ErrNoAudio = errors.New("no audio was captured")

// Blob is a finished recording.
type Blob struct {
	Data     []byte
	MIMEType string
	Filename string
}

// Stream is an open capture device.
type Stream interface {
	// Fragments yields raw audio in capture order. It is closed once the
	// stream has flushed after Finalize, or when the device fails.
	Fragments() <-chan []byte
	// Finalize asks the device to stop capturing and flush.
	Finalize() error
	// Err reports why Fragments closed, after it has closed. Nil after a
	// clean Finalize.
	Err() error
	// Release frees the device. It is safe to call more than once.
	Release() error
}

// Device opens capture streams.
type Device interface {
	Open(ctx context.Context) (Stream, error)
}

// DeviceError is a failure to access or read the microphone.
type DeviceError struct {
	Op  string // "open", "read", "finalize"
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("microphone %s: %v", e.Op, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// Reporter receives user-facing status updates.
type Reporter interface {
	Show(text string, level status.Level)
}

// SubmitFunc receives each finished recording along with the context the
// recording was started with.
type SubmitFunc func(ctx context.Context, blob Blob) error

// Status texts.
const (
	msgRecording     = "Recording..."
	msgProcessing    = "Processing audio..."
	msgDeviceFailure = "Could not access the microphone. Please check the recording permissions."
)

// recording is the transient state of one capture, from Start until its
// blob has been produced or it was aborted.
type recording struct {
	ctx       context.Context
	stream    Stream
	fragments [][]byte
	stopped   bool // Stop was called
	aborted   bool // Abort was called; discard everything
	done      chan struct{}
	err       error // outcome, set before done is closed
}

// Recorder is the record/stop toggle.
type Recorder struct {
	device Device
	report Reporter
	submit SubmitFunc
	logger *zap.Logger

	mu   sync.Mutex
	cur  *recording // active recording, nil when idle
	last *recording // most recent recording, for Wait
}

// NewRecorder returns an idle Recorder.
func NewRecorder(device Device, report Reporter, submit SubmitFunc, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{device: device, report: report, submit: submit, logger: logger}
}

// Active reports whether a recording is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}

// Toggle stops an active recording or starts a new one.
func (r *Recorder) Toggle(ctx context.Context) error {
	if r.Active() {
		return r.Stop()
	}
	return r.Start(ctx)
}

// Start opens the device and begins buffering. Starting while already
// recording is a no-op. A device failure is reported and leaves the Recorder
// idle.
func (r *Recorder) Start(ctx context.Context) error {
	if r.Active() {
		return nil
	}

	stream, err := r.device.Open(ctx)
	if err != nil {
		r.logger.Warn("microphone unavailable", zap.Error(err))
		r.report.Show(msgDeviceFailure, status.LevelError)
		return &DeviceError{Op: "open", Err: err}
	}

	rec := &recording{ctx: ctx, stream: stream, done: make(chan struct{})}
	r.mu.Lock()
	if r.cur != nil {
		// Lost a race with another Start.
		r.mu.Unlock()
		stream.Release()
		return nil
	}
	r.cur = rec
	r.last = rec
	r.mu.Unlock()

	go r.collect(rec)

	r.logger.Debug("recording started")
	r.report.Show(msgRecording, status.LevelInfo)
	return nil
}

// Stop asks the device to finalize. The blob is produced asynchronously once
// the stream has flushed; use Wait to block until it has been submitted.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	rec := r.cur
	if rec == nil {
		r.mu.Unlock()
		return ErrNotRecording
	}
	rec.stopped = true
	r.cur = nil
	r.mu.Unlock()

	r.report.Show(msgProcessing, status.LevelInfo)
	if err := rec.stream.Finalize(); err != nil {
		r.logger.Warn("finalize recording", zap.Error(err))
		// Releasing closes Fragments, which ends collect.
		rec.stream.Release()
		return &DeviceError{Op: "finalize", Err: err}
	}
	return nil
}

// Abort discards the active recording, if any, without submitting it.
func (r *Recorder) Abort() {
	r.mu.Lock()
	rec := r.cur
	if rec != nil {
		rec.aborted = true
		r.cur = nil
	}
	r.mu.Unlock()
	if rec != nil {
		rec.stream.Release()
	}
}

// Wait blocks until the most recent recording has been submitted or
// discarded and returns its outcome.
func (r *Recorder) Wait(ctx context.Context) error {
	r.mu.Lock()
	rec := r.last
	r.mu.Unlock()
	if rec == nil {
		return ErrNotRecording
	}
	select {
	case <-rec.done:
		return rec.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// collect drains one recording's stream and then finishes it.
func (r *Recorder) collect(rec *recording) {
	var err error
	defer func() {
		rec.err = err
		close(rec.done)
	}()

	for frag := range rec.stream.Fragments() {
		if len(frag) == 0 {
			continue
		}
		r.mu.Lock()
		rec.fragments = append(rec.fragments, frag)
		r.mu.Unlock()
	}
	streamErr := rec.stream.Err()
	if relErr := rec.stream.Release(); relErr != nil {
		r.logger.Debug("release microphone", zap.Error(relErr))
	}

	r.mu.Lock()
	fragments := rec.fragments
	rec.fragments = nil
	stopped, aborted := rec.stopped, rec.aborted
	if r.cur == rec {
		// The device ended on its own.
		r.cur = nil
	}
	r.mu.Unlock()

	switch {
	case aborted:
		err = context.Canceled
		return
	case streamErr != nil && !stopped:
		r.logger.Warn("recording interrupted", zap.Error(streamErr))
		r.report.Show(msgDeviceFailure, status.LevelError)
		err = &DeviceError{Op: "read", Err: streamErr}
		return
	}

	data := bytes.Join(fragments, nil)
	if len(data) == 0 {
		r.report.Show("Error: "+ErrNoAudio.Error(), status.LevelError)
		err = ErrNoAudio
		return
	}

	blob := Blob{Data: data, MIMEType: DefaultMIMEType, Filename: DefaultFilename}
	r.logger.Debug("recording finished", zap.Int("bytes", len(data)), zap.Int("fragments", len(fragments)))
	if r.submit != nil {
		err = r.submit(rec.ctx, blob)
	}
}
