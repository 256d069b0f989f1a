package cmd

import (
	"errors"
	"os"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/capture"
	"github.com/fakeyudi/tutor/internal/chat"
	"github.com/fakeyudi/tutor/internal/config"
	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/playback"
	"github.com/fakeyudi/tutor/internal/status"
	"github.com/fakeyudi/tutor/internal/tui"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the interactive tutor (the default command)",
	Args:  cobra.NoArgs,
	RunE:  runChat,
}

// runChat starts the full-screen chat UI.
func runChat(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(os.Stdout.Fd()) {
		return errors.New("chat needs an interactive terminal; use 'tutor ask' or 'tutor record' instead")
	}

	client, err := newClient()
	if err != nil {
		return err
	}

	notifier := status.New(cfg.HideDelay())
	player := playback.New(playback.Options{
		Fetcher: client,
		Command: cfg.PlayCommand,
		Logger:  logger.Named("playback"),
		OnError: func(err error) { notifier.Show("Error: "+gateway.ErrorText(err), status.LevelError) },
	})
	defer player.Stop()

	confirm := tui.NewConfirmer()
	ctrl := chat.New(chat.Options{
		Backend:        client,
		Status:         notifier,
		Player:         player,
		Confirmer:      confirm,
		Device:         &capture.CommandDevice{Command: cfg.RecordCommand},
		Voice:          cfg.Voice,
		Logger:         logger.Named("chat"),
		ManualPlayback: activeProfile != nil && !activeProfile.AutoPlay,
	})

	configPath, err := config.GlobalPath()
	if err != nil {
		logger.Warn("config path unavailable", zap.Error(err))
		configPath = ""
	}

	logger.Info("chat started", zap.String("server", client.BaseURL()))
	return tui.Run(cmd.Context(), tui.RunOptions{
		Controller: ctrl,
		Notifier:   notifier,
		Confirmer:  confirm,
		ConfigPath: configPath,
		Resolve:    reloadConfig,
		Logger:     logger.Named("tui"),
	})
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
