package tui

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/chat"
	"github.com/fakeyudi/tutor/internal/config"
	"github.com/fakeyudi/tutor/internal/status"
)

// RunOptions wires the TUI to a controller.
type RunOptions struct {
	Controller *chat.Controller
	Notifier   *status.Notifier
	Confirmer  *Confirmer
	// ConfigPath is watched for voice changes when set.
	ConfigPath string
	// Resolve layers a reloaded config file with everything else that
	// decides the voice. When nil only the file's own voice is used.
	Resolve func(file *config.Config) (config.Config, error)
	Logger  *zap.Logger
}

// Run starts the chat TUI and blocks until the user quits.
func Run(ctx context.Context, opts RunOptions) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	statusC := make(chan status.Status, 1)
	if opts.Notifier != nil {
		opts.Notifier.Subscribe(func(s status.Status) { offerLatest(statusC, s) })
	}

	m := New(ctx, opts.Controller, opts.Confirmer, statusC)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))

	if opts.ConfigPath != "" {
		go func() {
			err := config.Watch(ctx, opts.ConfigPath,
				func(file *config.Config) {
					v, err := reloadedVoice(opts.Resolve, file)
					if err != nil {
						logger.Warn("config reload rejected", zap.Error(err))
						return
					}
					p.Send(voiceMsg(v))
				},
				func(err error) { logger.Debug("config reload skipped", zap.Error(err)) },
			)
			if err != nil {
				logger.Warn("config watch unavailable", zap.String("path", opts.ConfigPath), zap.Error(err))
			}
		}()
	}

	_, err := p.Run()
	opts.Controller.Close()
	return err
}

// reloadedVoice returns the voice to use after the config file changed. An
// empty result leaves the current voice alone.
func reloadedVoice(resolve func(*config.Config) (config.Config, error), file *config.Config) (string, error) {
	if resolve == nil {
		if file == nil {
			return "", nil
		}
		return file.Voice, nil
	}
	c, err := resolve(file)
	if err != nil {
		return "", err
	}
	return c.Voice, nil
}

// offerLatest puts s in ch, replacing an unread older value. It never blocks.
func offerLatest(ch chan status.Status, s status.Status) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
