package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/export"
	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/transcript"
)

var showFile string

var showCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Print a session transcript, or an exported one with --file",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if showFile != "" {
			if len(args) > 0 {
				return errors.New("give either a session id or --file, not both")
			}
			return showExported(cmd, showFile)
		}
		if len(args) == 0 {
			return errors.New("a session id is required (see 'tutor sessions')")
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		msgs, err := client.FetchSession(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if title := sessionTitle(cmd.Context(), client, args[0]); title != "" {
			fmt.Fprintf(out, "# %s\n\n", title)
		}
		fmt.Fprint(out, transcript.Plain(historyEntries(msgs)))
		return nil
	},
}

// showExported prints a transcript file written by 'tutor export'.
func showExported(cmd *cobra.Command, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", path)
		}
		return err
	}
	t, err := export.Parse(data)
	if err != nil {
		return err
	}
	msgs := make([]gateway.Message, 0, len(t.Messages))
	for _, m := range t.Messages {
		msgs = append(msgs, gateway.Message{Role: m.Role, Content: m.Content, Timestamp: m.Timestamp, AudioPath: m.AudioURL})
	}
	out := cmd.OutOrStdout()
	title := t.Title
	if title == "" {
		title = "Session " + t.SessionID
	}
	fmt.Fprintf(out, "# %s\n\n", title)
	fmt.Fprint(out, transcript.Plain(historyEntries(msgs)))
	return nil
}

// sessionTitle looks id up in the session list. It returns "" when the list
// is unavailable or does not contain id.
func sessionTitle(ctx context.Context, client *gateway.Client, id string) string {
	sessions, err := client.ListSessions(ctx)
	if err != nil {
		logger.Debug("session title lookup failed", zap.Error(err))
		return ""
	}
	for _, s := range sessions {
		if s.ID == id {
			return s.Title
		}
	}
	return ""
}

var (
	exportFormat string
	exportOutput string
)

var exportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Save a session transcript as Markdown or JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := exportFormat
		if format == "" {
			format = cfg.DefaultFormat
		}
		renderer, err := export.ForFormat(format)
		if err != nil {
			return err
		}
		dir := exportOutput
		if dir == "" {
			dir = cfg.ExportDir
		}

		client, err := newClient()
		if err != nil {
			return err
		}
		id := args[0]
		msgs, err := client.FetchSession(cmd.Context(), id)
		if err != nil {
			return err
		}
		t := export.FromMessages(id, sessionTitle(cmd.Context(), client, id), msgs, time.Now())
		if activeProfile != nil {
			t.Author = activeProfile.Name
		}
		path, err := export.Write(dir, t, renderer)
		if err != nil {
			return fmt.Errorf("writing transcript: %w", err)
		}
		logger.Info("transcript exported", zap.String("session_id", id), zap.String("path", path))
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d messages to %s\n", len(t.Messages), path)
		return nil
	},
}

var voicesCmd = &cobra.Command{
	Use:   "voices",
	Short: "List the voices the tutor can speak with",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClient()
		if err != nil {
			return err
		}
		voices, err := client.ListVoices(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(voices) == 0 {
			fmt.Fprintln(out, "The server offers no voice choices.")
			return nil
		}
		for _, v := range voices {
			mark := " "
			if v.ID == cfg.Voice {
				mark = "*"
			}
			fmt.Fprintf(out, "%s %-12s %s\n", mark, v.ID, v.Name)
		}
		return nil
	},
}

func init() {
	showCmd.Flags().StringVarP(&showFile, "file", "f", "", "read an exported transcript instead of the server")
	exportCmd.Flags().StringVar(&exportFormat, "format", "", "markdown or json (default from config)")
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "output directory (default from config)")
	rootCmd.AddCommand(showCmd, exportCmd, voicesCmd)
}
