package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/tutor/internal/status"
)

// fakeStream is driven by the test: push fragments, then Finalize or fail.
type fakeStream struct {
	frags chan []byte

	mu        sync.Mutex
	closed    bool
	err       error
	released  int
	finalized bool
}

func newFakeStream() *fakeStream {
	return &fakeStream{frags: make(chan []byte, 64)}
}

func (s *fakeStream) Fragments() <-chan []byte { return s.frags }

func (s *fakeStream) push(b string) { s.frags <- []byte(b) }

func (s *fakeStream) close(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.err = err
	s.closed = true
	close(s.frags)
}

func (s *fakeStream) Finalize() error {
	s.mu.Lock()
	s.finalized = true
	s.mu.Unlock()
	s.close(nil)
	return nil
}

func (s *fakeStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *fakeStream) Release() error {
	s.mu.Lock()
	s.released++
	s.mu.Unlock()
	s.close(s.Err())
	return nil
}

func (s *fakeStream) releaseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type fakeDevice struct {
	err     error
	streams []*fakeStream
}

func (d *fakeDevice) Open(ctx context.Context) (Stream, error) {
	if d.err != nil {
		return nil, d.err
	}
	s := newFakeStream()
	d.streams = append(d.streams, s)
	return s, nil
}

type recordedStatus struct {
	mu    sync.Mutex
	texts []string
	last  status.Level
}

func (r *recordedStatus) Show(text string, level status.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.texts = append(r.texts, text)
	r.last = level
}

func (r *recordedStatus) lastLevel() status.Level {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

type blobSink struct {
	mu    sync.Mutex
	blobs []Blob
}

func (b *blobSink) submit(ctx context.Context, blob Blob) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs = append(b.blobs, blob)
	return nil
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestRecordStopSubmitsCombinedBlob(t *testing.T) {
	dev := &fakeDevice{}
	rep := &recordedStatus{}
	sink := &blobSink{}
	r := NewRecorder(dev, rep, sink.submit, nil)

	if err := r.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle (start): %v", err)
	}
	if !r.Active() {
		t.Fatal("recorder not active after start")
	}
	s := dev.streams[0]
	s.push("RIFF")
	s.push("data")

	if err := r.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle (stop): %v", err)
	}
	if r.Active() {
		t.Error("recorder still active after stop")
	}
	if err := r.Wait(waitCtx(t)); err != nil {
		t.Fatalf("Wait: %v", err)
	}

	if len(sink.blobs) != 1 {
		t.Fatalf("submitted %d blobs, want 1", len(sink.blobs))
	}
	b := sink.blobs[0]
	if string(b.Data) != "RIFFdata" || b.MIMEType != DefaultMIMEType || b.Filename != DefaultFilename {
		t.Errorf("blob = %+v", b)
	}
	if s.releaseCount() == 0 {
		t.Error("stream was not released after stop")
	}
	if rep.texts[0] != msgRecording || rep.texts[1] != msgProcessing {
		t.Errorf("status texts = %q", rep.texts)
	}
}

func TestStartFailureLeavesIdle(t *testing.T) {
	dev := &fakeDevice{err: errors.New("permission denied")}
	rep := &recordedStatus{}
	r := NewRecorder(dev, rep, nil, nil)

	err := r.Start(context.Background())
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Op != "open" {
		t.Fatalf("err = %v, want *DeviceError(open)", err)
	}
	if r.Active() {
		t.Error("recorder active after failed start")
	}
	if rep.lastLevel() != status.LevelError {
		t.Errorf("last status level = %v, want error", rep.lastLevel())
	}
}

func TestStopWhenIdle(t *testing.T) {
	r := NewRecorder(&fakeDevice{}, &recordedStatus{}, nil, nil)
	if err := r.Stop(); !errors.Is(err, ErrNotRecording) {
		t.Errorf("Stop() = %v, want ErrNotRecording", err)
	}
}

func TestDeviceFailureMidRecording(t *testing.T) {
	dev := &fakeDevice{}
	rep := &recordedStatus{}
	sink := &blobSink{}
	r := NewRecorder(dev, rep, sink.submit, nil)

	r.Start(context.Background())
	s := dev.streams[0]
	s.push("partial")
	s.close(errors.New("device unplugged"))

	err := r.Wait(waitCtx(t))
	var devErr *DeviceError
	if !errors.As(err, &devErr) || devErr.Op != "read" {
		t.Fatalf("Wait = %v, want *DeviceError(read)", err)
	}
	if r.Active() {
		t.Error("recorder still active after device failure")
	}
	if len(sink.blobs) != 0 {
		t.Error("interrupted recording was submitted")
	}
	if s.releaseCount() == 0 {
		t.Error("stream not released after failure")
	}
}

func TestAbortDiscards(t *testing.T) {
	dev := &fakeDevice{}
	sink := &blobSink{}
	r := NewRecorder(dev, &recordedStatus{}, sink.submit, nil)

	r.Start(context.Background())
	dev.streams[0].push("abc")
	r.Abort()

	if err := r.Wait(waitCtx(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait = %v, want context.Canceled", err)
	}
	if len(sink.blobs) != 0 {
		t.Error("aborted recording was submitted")
	}
}

func TestEmptyRecordingNotSubmitted(t *testing.T) {
	dev := &fakeDevice{}
	sink := &blobSink{}
	r := NewRecorder(dev, &recordedStatus{}, sink.submit, nil)

	r.Start(context.Background())
	r.Stop()
	if err := r.Wait(waitCtx(t)); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("Wait = %v, want ErrNoAudio", err)
	}
	if len(sink.blobs) != 0 {
		t.Error("empty recording was submitted")
	}
}

// Each recording submits exactly its own fragments, never a leftover from a
// previous one.
func TestFragmentsDoNotLeakAcrossRecordings(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		dev := &fakeDevice{}
		sink := &blobSink{}
		r := NewRecorder(dev, &recordedStatus{}, sink.submit, nil)

		rounds := rapid.IntRange(1, 5).Draw(t, "rounds")
		var want []string
		for i := 0; i < rounds; i++ {
			if err := r.Start(context.Background()); err != nil {
				t.Fatalf("Start: %v", err)
			}
			s := dev.streams[i]
			frags := rapid.SliceOfN(rapid.StringMatching(`[a-z]{1,5}`), 1, 6).Draw(t, "frags")
			joined := ""
			for _, f := range frags {
				s.push(f)
				joined += f
			}
			want = append(want, joined)
			if err := r.Stop(); err != nil {
				t.Fatalf("Stop: %v", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := r.Wait(ctx)
			cancel()
			if err != nil {
				t.Fatalf("Wait: %v", err)
			}
		}
		if len(sink.blobs) != rounds {
			t.Fatalf("got %d blobs, want %d", len(sink.blobs), rounds)
		}
		for i, b := range sink.blobs {
			if string(b.Data) != want[i] {
				t.Fatalf("blob %d = %q, want %q", i, b.Data, want[i])
			}
		}
	})
}
