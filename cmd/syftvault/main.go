package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/openmined/syftvault/internal/config"
	"github.com/openmined/syftvault/internal/manifest"
	"github.com/openmined/syftvault/internal/utils"
	"github.com/openmined/syftvault/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	exitOK      = 0
	exitFailure = 1
	// exitIndexNotSaved means objects were uploaded but the remote index
	// was left behind. The next run repairs it.
	exitIndexNotSaved = 2
)

// flagKeys maps command line flags to config keys.
var flagKeys = map[string]string{
	"to":          "root",
	"from":        "root",
	"passphrase":  "passphrase",
	"exclude":     "exclude",
	"ignore-file": "ignore_file",
	"verbose":     "verbose",
	"dry-run":     "dry_run",
	"state-dir":   "state_dir",
	"temp-dir":    "temp_dir",
	"hash-cache":  "hash_cache",
	"log-file":    "log_file",
	"retries":     "retries",
	"ssh-key":     "ssh_key",
	"known-hosts": "known_hosts",
}

type configKey struct{}

// logFile is the open log file of this invocation, if any.
var logFile io.Closer

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "syftvault",
		Short:         "Whole-file backups to local and remote storage",
		Version:       version.Detailed(),
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := setupLogging(cfg); err != nil {
				return err
			}
			slog.Debug("config", "config", cfg, "file", cfg.Path)
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.SortFlags = false
	pf.StringP("config", "c", "", "config file (default ~/.syftvault/config.*)")
	pf.StringP("passphrase", "p", "", "encryption passphrase, prefer SYFTVAULT_PASSPHRASE")
	pf.BoolP("verbose", "v", false, "debug logging")
	pf.String("log-file", "", "also write logs to this file")
	pf.String("state-dir", config.DefaultStateDir, "directory for locks and caches")
	pf.String("temp-dir", "", "directory for encoded artifacts (default system temp)")
	pf.Int("retries", config.DefaultRetries, "index save attempts when not prompting")
	pf.String("ssh-key", "", "private key for sftp roots")
	pf.String("known-hosts", "", "known_hosts file for sftp roots")

	cmd.AddCommand(newBackupCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, red.Bold(true).Render("Error:"), err)
	}

	if logFile != nil {
		logFile.Close()
	}
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, manifest.ErrSaveAborted):
		return exitIndexNotSaved
	default:
		return exitFailure
	}
}

// loadConfig merges flags over environment, .env and config file. The
// result is not validated.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	configFile, _ := cmd.Flags().GetString("config")
	v, err := config.NewViper(configFile)
	if err != nil {
		return nil, err
	}
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}
	return config.FromViper(v), nil
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// runConfig returns the validated config stored by the pre-run hook.
func runConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, ok := cmd.Context().Value(configKey{}).(*config.Config)
	if !ok {
		return nil, errors.New("config not loaded")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) error {
	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler = tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	if cfg.LogFile != "" {
		path, err := utils.ResolvePath(cfg.LogFile)
		if err != nil {
			return err
		}
		fileHandler, f, err := utils.NewLogFileHandler(path, slog.LevelDebug)
		if err != nil {
			return err
		}
		logFile = f
		handler = utils.NewMultiLogHandler(handler, fileHandler)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}
