// Package playback plays the tutor's spoken replies.
//
// The Player remembers the most recent reply clip. Playing downloads the clip
// into a cache directory and hands the file to an external player program.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultPlayCommand plays a file without a window and exits when done.
var DefaultPlayCommand = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}

// Fetcher downloads a clip by URL.
type Fetcher interface {
	FetchAudio(ctx context.Context, audioURL string) (io.ReadCloser, error)
}

// Runner runs the player program until it exits or ctx is cancelled.
// This abstraction allows mocking in tests.
type Runner func(ctx context.Context, name string, args ...string) error

func defaultRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

// Player holds the last reply clip and plays it.
type Player struct {
	fetcher  Fetcher
	cacheDir string
	command  []string
	run      Runner
	logger   *zap.Logger
	onError  func(error)

	mu      sync.Mutex
	last    string
	visible bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// Options configures a Player.
type Options struct {
	Fetcher  Fetcher
	CacheDir string   // defaults to CacheDir()
	Command  []string // defaults to DefaultPlayCommand
	Runner   Runner   // defaults to running Command as a subprocess
	Logger   *zap.Logger
	// OnError is called from the playback goroutine when the player fails.
	OnError func(error)
}

// New returns a Player with nothing to play.
func New(opts Options) *Player {
	p := &Player{
		fetcher:  opts.Fetcher,
		cacheDir: opts.CacheDir,
		command:  opts.Command,
		run:      opts.Runner,
		logger:   opts.Logger,
		onError:  opts.OnError,
	}
	if len(p.command) == 0 {
		p.command = DefaultPlayCommand
	}
	if p.run == nil {
		p.run = defaultRunner
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	return p
}

// Set replaces the last reply clip and reveals the playback controls.
func (p *Player) Set(audioURL string) {
	p.mu.Lock()
	p.last = audioURL
	p.visible = audioURL != ""
	p.mu.Unlock()
}

// Last returns the URL of the last reply clip.
func (p *Player) Last() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Visible reports whether playback controls should be shown.
func (p *Player) Visible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

// Play downloads the last clip and starts playing it in the background,
// stopping whatever was playing. It does nothing when there is no clip.
func (p *Player) Play(ctx context.Context) error {
	audioURL := p.Last()
	if audioURL == "" {
		return nil
	}
	file, err := p.localCopy(ctx, audioURL)
	if err != nil {
		return err
	}

	p.Stop()

	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	args := append(append([]string(nil), p.command[1:]...), file)
	go func() {
		defer close(done)
		defer cancel()
		p.logger.Debug("playing reply", zap.String("url", audioURL), zap.String("file", file))
		if err := p.run(playCtx, p.command[0], args...); err != nil && playCtx.Err() == nil {
			p.logger.Warn("player failed", zap.Error(err))
			if p.onError != nil {
				p.onError(fmt.Errorf("play audio: %w", err))
			}
		}
	}()
	return nil
}

// Stop ends the current playback, if any, and waits for the player to exit.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

// Wait blocks until the current playback finishes.
func (p *Player) Wait(ctx context.Context) error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// localCopy returns a cached file for audioURL, downloading it if needed.
func (p *Player) localCopy(ctx context.Context, audioURL string) (string, error) {
	if p.fetcher == nil {
		return "", errors.New("play audio: no fetcher configured")
	}
	dir := p.cacheDir
	if dir == "" {
		d, err := CacheDir()
		if err != nil {
			return "", fmt.Errorf("resolving cache directory: %w", err)
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache directory: %w", err)
	}

	dest := filepath.Join(dir, cacheName(audioURL))
	if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
		return dest, nil
	}

	rc, err := p.fetcher.FetchAudio(ctx, audioURL)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	if err := writeAtomic(dest, rc); err != nil {
		return "", fmt.Errorf("saving audio: %w", err)
	}
	return dest, nil
}

// cacheName derives a stable file name from the URL, keeping its extension.
func cacheName(audioURL string) string {
	ext := ".mp3"
	if u, err := url.Parse(audioURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = e
		}
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(audioURL)).String() + ext
}

// writeAtomic writes r to a temp file in the same directory and renames it
// into place.
func writeAtomic(dest string, r io.Reader) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), "audio-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, dest)
}

// CacheDir returns the tutor-specific XDG cache directory for reply audio.
// Path: $XDG_CACHE_HOME/tutor/audio or ~/.cache/tutor/audio
func CacheDir() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "tutor", "audio"), nil
}
