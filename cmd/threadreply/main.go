package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nhle/thread-reply/internal/logging"
	"github.com/nhle/thread-reply/internal/model"
)

var (
	// Set via -ldflags at build time.
	version = "dev"
	commit  = ""
)

// env is the state shared by every subcommand once the config is loaded.
type env struct {
	configPath string
	logLevel   string

	cfg    *model.AppConfig
	log    *logrus.Entry
	closer io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{}
	err := rootCmd(e).ExecuteContext(ctx)
	if e.closer != nil {
		_ = e.closer.Close()
	}
	if err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "threadreply",
		Short:   "Reply to client threads with correct threading headers",
		Version: version,
		Long: `threadreply finds the messages previously sent to a recipient under a
subject and sends the new draft as a reply to the one you pick, so the
client's mail program keeps the conversation together.

Run without a subcommand to open the interactive composer.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.load(cmd.Name() == "threadreply")
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), e)
		},
	}
	if commit != "" {
		cmd.Version = version + " (" + commit + ")"
	}

	cmd.PersistentFlags().StringVar(&e.configPath, "config", model.DefaultConfigPath(), "Path to the config file")
	cmd.PersistentFlags().StringVar(&e.logLevel, "log-level", "", "Override logging.level (trace, debug, info, warn, error)")

	cmd.AddCommand(
		searchCmd(e),
		replyCmd(e),
		historyCmd(e),
		loginCmd(e),
		authCmd(e),
		checkCmd(e),
		initCmd(e),
	)
	return cmd
}

// load reads the config and sets up logging. The interactive UI owns
// the terminal, so its log goes to a file next to the config unless one
// is configured.
func (e *env) load(interactive bool) error {
	cfg, err := model.LoadConfig(e.configPath)
	if err != nil {
		return err
	}
	if e.logLevel != "" {
		cfg.Logging.Level = e.logLevel
	}
	if interactive && cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(model.ConfigDir(), "threadreply.log")
	}

	logger, closer, err := logging.Setup(cfg.Logging, os.Stderr)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	e.cfg = cfg
	e.closer = closer
	e.log = logrus.NewEntry(logger)
	return nil
}

func (e *env) requireAccount() error {
	if e.cfg.Account.Email == "" {
		return fmt.Errorf("account.email is not set; add it to %s or set %s_ACCOUNT_EMAIL", e.configPath, model.EnvPrefix)
	}
	return nil
}
