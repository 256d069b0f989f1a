package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/chat"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"ls"},
	Short:   "List chat sessions, newest first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		sessions, err := client.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(sessions) == 0 {
			fmt.Fprintln(out, "No sessions yet. Start one with 'tutor new'.")
			return nil
		}
		width := len("ID")
		for _, s := range sessions {
			width = max(width, len(s.ID))
		}
		fmt.Fprintf(out, "%-*s  %s\n", width, "ID", "TITLE")
		for _, s := range sessions {
			fmt.Fprintf(out, "%-*s  %s\n", width, s.ID, s.Title)
		}
		return nil
	},
}

var newTitle string

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create a chat session and print its id",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		title := strings.TrimSpace(newTitle)
		if title == "" {
			title = chat.SessionTitle(time.Now())
		}
		id, err := client.CreateSession(cmd.Context(), title)
		if err != nil {
			return err
		}
		logger.Info("session created", zap.String("session_id", id))
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	},
}

var deleteYes bool

var deleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a chat session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		confirm := promptConfirmer(cmd.InOrStdin(), cmd.OutOrStdout())
		if deleteYes {
			confirm = func(context.Context, string) bool { return true }
		}
		ctrl := chat.New(chat.Options{
			Backend:   client,
			Status:    newPrinter(cmd.ErrOrStderr()),
			Confirmer: confirm,
			Logger:    logger.Named("chat"),
		})
		err = ctrl.DeleteSession(cmd.Context(), args[0])
		if errors.Is(err, chat.ErrCancelled) {
			fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
			return nil
		}
		return err
	},
}

// promptConfirmer asks on out and reads a y/n answer from in. Anything but
// y or yes, including EOF, is a no.
func promptConfirmer(in io.Reader, out io.Writer) chat.ConfirmFunc {
	r := bufio.NewReader(in)
	return func(ctx context.Context, prompt string) bool {
		fmt.Fprintf(out, "%s (y/n): ", prompt)
		line, _ := r.ReadString('\n')
		ans := strings.ToLower(strings.TrimSpace(line))
		return ans == "y" || ans == "yes"
	}
}

func init() {
	newCmd.Flags().StringVar(&newTitle, "title", "", "session title (default: Conversation <now>)")
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "delete without asking")
	rootCmd.AddCommand(sessionsCmd, newCmd, deleteCmd)
}
