package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/x/term"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fakeyudi/tutor/internal/config"
	"github.com/fakeyudi/tutor/internal/gateway"
	"github.com/fakeyudi/tutor/internal/logging"
	"github.com/fakeyudi/tutor/internal/profile"
)

// cfg holds the merged configuration, populated in PersistentPreRunE.
var cfg config.Config

// activeProfile holds the loaded user profile.
var activeProfile *profile.Profile

// logger is built from cfg and the logging flags.
var logger = logging.Nop()

var (
	serverFlag  string
	voiceFlag   string
	verboseFlag bool
	logFileFlag string
)

var rootCmd = &cobra.Command{
	Use:          "tutor",
	Short:        "Talk to the AI tutor from your terminal",
	SilenceUsage: true,
	RunE:         runChat,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip setup check for the setup command itself.
		if cmd.Name() == "setup" {
			return nil
		}

		// First run: no profile yet. Only ask when stdin is a terminal.
		if !profile.Exists() && isTerminal(cmd.InOrStdin()) {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprintln(cmd.OutOrStdout(), "  Welcome to tutor! Looks like this is your first time.")
			if err := runSetup(cmd, true); err != nil {
				return err
			}
		}

		activeProfile = nil
		if profile.Exists() {
			p, err := profile.Load()
			if err != nil {
				return fmt.Errorf("loading profile: %w", err)
			}
			activeProfile = p
		}

		// Profile values sit under the config files.
		c, err := config.Load(activeProfile.Config())
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		applyFlags(&c)
		cfg = c

		path := logFileFlag
		if path == "" {
			if path, err = logging.DefaultPath(); err != nil {
				return err
			}
		}
		l, err := logging.New(cfg.LogLevel, path)
		if err != nil {
			return err
		}
		logger = l.With(zap.String("command", cmd.Name()))
		logger.Debug("config loaded", zap.String("server", cfg.ServerURL), zap.String("voice", cfg.Voice))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// applyFlags puts the persistent flag overrides on top of c.
func applyFlags(c *config.Config) {
	if serverFlag != "" {
		c.ServerURL = serverFlag
	}
	if voiceFlag != "" {
		c.Voice = voiceFlag
	}
	if verboseFlag {
		c.LogLevel = "debug"
	}
}

// reloadConfig rebuilds the full configuration around a freshly read global
// file, with the same layering as startup.
func reloadConfig(global *config.Config) (config.Config, error) {
	c, err := config.LoadOver(activeProfile.Config(), global)
	if err != nil {
		return config.Config{}, err
	}
	applyFlags(&c)
	return c, nil
}

// isTerminal reports whether r is an interactive terminal.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(f.Fd())
}

// newClient builds a gateway client for the configured server.
func newClient() (*gateway.Client, error) {
	return gateway.New(cfg.ServerURL,
		gateway.WithTimeout(cfg.Timeout()),
		gateway.WithLogger(logger.Named("gateway")),
	)
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&serverFlag, "server", "", "tutor server URL (overrides config)")
	pf.StringVar(&voiceFlag, "voice", "", "voice for spoken replies (overrides config)")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "log at debug level")
	pf.StringVar(&logFileFlag, "log-file", "", `log file path, "-" for stderr (default $XDG_STATE_HOME/tutor/tutor.log)`)
}
