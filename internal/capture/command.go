package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// DefaultRecordCommand captures CD-quality WAV from the default ALSA device.
var DefaultRecordCommand = []string{"arecord", "-q", "-f", "cd", "-t", "wav", "-"}

// chunkSize is how much of the recorder's stdout is read per fragment.
const chunkSize = 16 << 10

// CommandDevice records by running an external program that writes audio
// to stdout until it is interrupted.
type CommandDevice struct {
	Command []string // program and args; DefaultRecordCommand when empty
}

// Open starts the recorder process.
func (d *CommandDevice) Open(ctx context.Context) (Stream, error) {
	argv := d.Command
	if len(argv) == 0 {
		argv = DefaultRecordCommand
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, fmt.Errorf("recorder %q not found: %w", argv[0], err)
	}

	cmd := exec.Command(path, argv[1:]...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	s := &commandStream{cmd: cmd, frags: make(chan []byte, 16), waitDone: make(chan struct{})}
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}

	go s.read(stdout)
	go func() {
		// Cancelling the context releases the device.
		select {
		case <-ctx.Done():
			s.Release()
		case <-s.exited():
		}
	}()
	return s, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	frags  chan []byte
	stderr bytes.Buffer

	mu        sync.Mutex
	finalized bool
	err       error

	waitOnce sync.Once
	waitDone chan struct{} // closed once the process has been reaped
}

func (s *commandStream) exited() <-chan struct{} { return s.waitDone }

func (s *commandStream) Fragments() <-chan []byte { return s.frags }

// read forwards stdout as fragments until EOF, then reaps the process.
func (s *commandStream) read(stdout io.Reader) {
	defer close(s.frags)
	for {
		buf := make([]byte, chunkSize)
		n, err := stdout.Read(buf)
		if n > 0 {
			s.frags <- buf[:n]
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				s.setErr(err)
			}
			break
		}
	}
	s.wait()
}

func (s *commandStream) wait() {
	s.waitOnce.Do(func() {
		err := s.cmd.Wait()
		s.mu.Lock()
		if err != nil && !s.finalized {
			msg := strings.TrimSpace(s.stderr.String())
			if msg != "" {
				err = fmt.Errorf("%w: %s", err, msg)
			}
			if s.err == nil {
				s.err = err
			}
		}
		s.mu.Unlock()
		close(s.waitDone)
	})
}

func (s *commandStream) setErr(err error) {
	s.mu.Lock()
	if s.err == nil && !s.finalized {
		s.err = err
	}
	s.mu.Unlock()
}

// Finalize interrupts the recorder so it flushes and exits. Windows has no
// interrupt signal, so the process is killed there.
func (s *commandStream) Finalize() error {
	s.mu.Lock()
	s.finalized = true
	s.mu.Unlock()
	if s.cmd.Process == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return s.cmd.Process.Kill()
	}
	if err := s.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (s *commandStream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Release kills the recorder if it is still running.
func (s *commandStream) Release() error {
	select {
	case <-s.exited():
		return nil
	default:
	}
	if s.cmd.Process != nil {
		if err := s.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
	}
	return nil
}
