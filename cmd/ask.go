package cmd

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tutor/internal/capture"
	"github.com/fakeyudi/tutor/internal/chat"
	"github.com/fakeyudi/tutor/internal/playback"
	"github.com/fakeyudi/tutor/internal/status"
	"github.com/fakeyudi/tutor/internal/transcript"
)

var (
	askSession string
	askPlay    bool
)

var askCmd = &cobra.Command{
	Use:   "ask <text>",
	Short: "Send a typed question and print the tutor's reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(strings.Join(args, " "))
		if text == "" {
			return fmt.Errorf("nothing to send")
		}
		shot, err := newOneShot(cmd, askSession, askPlay, nil)
		if err != nil {
			return err
		}
		return shot.run(cmd.Context(), func(ctx context.Context) error {
			return shot.ctrl.SendText(ctx, text)
		})
	},
}

var (
	recordSession string
	recordPlay    bool
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record a spoken question until Enter and print the tutor's reply",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		device := &capture.CommandDevice{Command: cfg.RecordCommand}
		shot, err := newOneShot(cmd, recordSession, recordPlay, device)
		if err != nil {
			return err
		}
		return shot.run(cmd.Context(), func(ctx context.Context) error {
			if err := shot.ctrl.ToggleRecording(ctx); err != nil {
				return err
			}
			shot.progress.Show("Press Enter to stop.", status.LevelInfo)
			_, _ = bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
			if shot.ctrl.Recording() {
				if err := shot.ctrl.ToggleRecording(ctx); err != nil {
					return err
				}
			}
			return shot.ctrl.WaitRecording(ctx)
		})
	},
}

// oneShot is a controller wired for a single exchange on the command line.
type oneShot struct {
	cmd      *cobra.Command
	ctrl     *chat.Controller
	player   *playback.Player
	progress *printer
	play     bool
}

func newOneShot(cmd *cobra.Command, sessionID string, play bool, device capture.Device) (*oneShot, error) {
	client, err := newClient()
	if err != nil {
		return nil, err
	}
	player := playback.New(playback.Options{
		Fetcher: client,
		Command: cfg.PlayCommand,
		Logger:  logger.Named("playback"),
	})
	progress := newPrinter(cmd.ErrOrStderr())
	opts := chat.Options{
		Backend:        client,
		Status:         progress,
		Player:         player,
		Voice:          cfg.Voice,
		Logger:         logger.Named("chat"),
		Device:         device,
		ManualPlayback: true,
	}
	t := &oneShot{cmd: cmd, ctrl: chat.New(opts), player: player, progress: progress, play: play}
	if sessionID != "" {
		if err := t.ctrl.OpenSession(cmd.Context(), sessionID); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// run performs submit, prints the new turns and optionally plays the reply.
func (t *oneShot) run(ctx context.Context, submit func(context.Context) error) error {
	defer t.ctrl.Close()
	prev := t.ctrl.Snapshot()
	before := len(prev.Transcript)
	if err := submit(ctx); err != nil {
		return err
	}
	st := t.ctrl.Snapshot()
	added := st.Transcript[min(before, len(st.Transcript)):]
	fmt.Fprint(t.cmd.OutOrStdout(), transcript.Plain(lastTurns(added, 2), false))
	if st.CurrentSession != chat.NewSessionID {
		t.progress.Show("session "+st.CurrentSession, status.LevelInfo)
	}
	if !t.play || st.LastAudio == "" || st.LastAudio == prev.LastAudio {
		return nil
	}
	if err := t.ctrl.PlayAudio(ctx); err != nil {
		return err
	}
	return t.player.Wait(ctx)
}

func init() {
	askCmd.Flags().StringVarP(&askSession, "session", "s", "", "session id to continue (default: a new session)")
	askCmd.Flags().BoolVarP(&askPlay, "play", "p", false, "play the spoken reply")
	recordCmd.Flags().StringVarP(&recordSession, "session", "s", "", "session id to continue (default: a new session)")
	recordCmd.Flags().BoolVarP(&recordPlay, "play", "p", false, "play the spoken reply")
	rootCmd.AddCommand(askCmd, recordCmd)
}
