package playback

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeFetcher struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeFetcher) FetchAudio(ctx context.Context, audioURL string) (io.ReadCloser, error) {
	f.mu.Lock()
	f.calls = append(f.calls, audioURL)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("ID3" + audioURL)), nil
}

type runRecord struct {
	name string
	args []string
}

func recordingRunner(runs chan<- runRecord) Runner {
	return func(ctx context.Context, name string, args ...string) error {
		runs <- runRecord{name: name, args: args}
		return nil
	}
}

func TestPlayWithoutClipIsNoop(t *testing.T) {
	f := &fakeFetcher{}
	p := New(Options{Fetcher: f, CacheDir: t.TempDir()})
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if len(f.calls) != 0 {
		t.Error("fetched audio with nothing set")
	}
	if p.Visible() {
		t.Error("controls visible with nothing set")
	}
}

func TestPlayDownloadsAndRuns(t *testing.T) {
	dir := t.TempDir()
	f := &fakeFetcher{}
	runs := make(chan runRecord, 4)
	p := New(Options{Fetcher: f, CacheDir: dir, Command: []string{"mpv", "--no-video"}, Runner: recordingRunner(runs)})

	p.Set("/audio/abc1.mp3")
	if !p.Visible() || p.Last() != "/audio/abc1.mp3" {
		t.Fatalf("Set did not take: last=%q visible=%v", p.Last(), p.Visible())
	}
	if err := p.Play(context.Background()); err != nil {
		t.Fatalf("Play: %v", err)
	}

	select {
	case r := <-runs:
		if r.name != "mpv" || len(r.args) != 2 || r.args[0] != "--no-video" {
			t.Fatalf("runner got %s %q", r.name, r.args)
		}
		file := r.args[1]
		if filepath.Dir(file) != dir || filepath.Ext(file) != ".mp3" {
			t.Errorf("played %q, want a .mp3 in %q", file, dir)
		}
		data, err := os.ReadFile(file)
		if err != nil || string(data) != "ID3/audio/abc1.mp3" {
			t.Errorf("cached file = %q, %v", data, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("player never ran")
	}
	p.Wait(context.Background())

	// A second play reuses the cached file.
	p.Play(context.Background())
	<-runs
	p.Wait(context.Background())
	if len(f.calls) != 1 {
		t.Errorf("fetched %d times, want 1", len(f.calls))
	}
}

func TestPlayFetchError(t *testing.T) {
	f := &fakeFetcher{err: errors.New("404")}
	p := New(Options{Fetcher: f, CacheDir: t.TempDir(), Runner: func(context.Context, string, ...string) error {
		t.Error("runner called after failed download")
		return nil
	}})
	p.Set("/missing.mp3")
	if err := p.Play(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewPlayStopsPrevious(t *testing.T) {
	started := make(chan struct{}, 2)
	cancelled := make(chan struct{}, 2)
	runner := func(ctx context.Context, name string, args ...string) error {
		started <- struct{}{}
		<-ctx.Done()
		cancelled <- struct{}{}
		return ctx.Err()
	}
	var reported []error
	p := New(Options{Fetcher: &fakeFetcher{}, CacheDir: t.TempDir(), Runner: runner, OnError: func(err error) {
		reported = append(reported, err)
	}})

	p.Set("/a.mp3")
	p.Play(context.Background())
	<-started
	p.Set("/b.mp3")
	p.Play(context.Background())

	select {
	case <-cancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("first playback was not stopped")
	}
	<-started
	p.Stop()
	if len(reported) != 0 {
		t.Errorf("cancellation reported as failure: %v", reported)
	}
}

func TestPlayerFailureReported(t *testing.T) {
	errs := make(chan error, 1)
	p := New(Options{
		Fetcher:  &fakeFetcher{},
		CacheDir: t.TempDir(),
		Runner:   func(context.Context, string, ...string) error { return errors.New("exit status 1") },
		OnError:  func(err error) { errs <- err },
	})
	p.Set("/a.ogg")
	p.Play(context.Background())
	select {
	case err := <-errs:
		if !strings.Contains(err.Error(), "exit status 1") {
			t.Errorf("err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("failure never reported")
	}
}

func TestCacheNameStable(t *testing.T) {
	a, b := cacheName("/static/outputs/x.wav"), cacheName("/static/outputs/x.wav")
	if a != b || filepath.Ext(a) != ".wav" {
		t.Errorf("cacheName unstable or wrong extension: %q %q", a, b)
	}
	if cacheName("/static/outputs/y") == a {
		t.Error("different urls share a cache name")
	}
}

func TestCacheDirHonoursXDG(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", tmp)
	dir, err := CacheDir()
	if err != nil {
		t.Fatalf("CacheDir: %v", err)
	}
	if dir != filepath.Join(tmp, "tutor", "audio") {
		t.Errorf("CacheDir = %q", dir)
	}
}
