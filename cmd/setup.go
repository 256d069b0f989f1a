package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/profile"
)

// voiceLookupTimeout bounds the voice hint request during setup.
const voiceLookupTimeout = 3 * time.Second

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure tutor (re-run anytime to edit settings)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSetup(cmd, false)
	},
}

// runSetup runs the interactive setup wizard on the command's stdin.
// If firstRun is true, a welcome message is shown.
func runSetup(cmd *cobra.Command, firstRun bool) error {
	out := cmd.OutOrStdout()
	if firstRun {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "  Let's get you set up.")
	}

	// Load existing profile as defaults if present.
	var existing *profile.Profile
	if profile.Exists() {
		p, err := profile.Load()
		if err == nil {
			existing = p
		}
	}

	server := profile.Defaults().ServerURL
	if existing != nil && existing.ServerURL != "" {
		server = existing.ServerURL
	}
	if serverFlag != "" {
		server = serverFlag
	}

	prof, err := profile.RunSetup(cmd.InOrStdin(), out, existing, lookupVoices(cmd.Context(), server))
	if err != nil {
		return fmt.Errorf("setup cancelled: %w", err)
	}

	if err := profile.Save(prof); err != nil {
		return fmt.Errorf("saving profile: %w", err)
	}
	fmt.Fprintln(out, "  ✓ Profile saved.")
	fmt.Fprintln(out, "  Setup complete. Run 'tutor' to start talking.")
	fmt.Fprintln(out)
	return nil
}

// lookupVoices asks the server for its voices. The wizard works without
// them, so any failure yields nil.
func lookupVoices(ctx context.Context, server string) []string {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := gateway.New(server, gateway.WithTimeout(voiceLookupTimeout))
	if err != nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, voiceLookupTimeout)
	defer cancel()
	voices, err := client.ListVoices(ctx)
	if err != nil {
		return nil
	}
	ids := make([]string, 0, len(voices))
	for _, v := range voices {
		ids = append(ids, v.ID)
	}
	return ids
}

func init() {
	rootCmd.AddCommand(setupCmd)
}
