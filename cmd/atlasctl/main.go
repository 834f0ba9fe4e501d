// Command atlasctl is the operator CLI for atlasbot: it syncs the catalog
// snapshot, resolves tokens and maintains the nickname file without
// connecting to Discord.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/MrWong99/atlasbot/internal/app"
	"github.com/MrWong99/atlasbot/internal/config"
)

var version = "dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// cli carries the persistent flags and test injections shared by every
// subcommand.
type cli struct {
	configPath string
	verbose    bool
	appOpts    []app.Option
}

func newRootCmd(appOpts ...app.Option) *cobra.Command {
	c := &cli{appOpts: appOpts}

	root := &cobra.Command{
		Use:           "atlasctl",
		Short:         "Operate the atlasbot catalog and nickname directory",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			lvl := slog.LevelWarn
			if c.verbose {
				lvl = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})))
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "atlasbot.yaml", "Path to the YAML configuration file")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		c.newSyncCmd(),
		c.newResolveCmd(),
		c.newNamesCmd(),
		c.newAddNameCmd(),
	)
	return root
}

// withApp loads the config and builds the application for one command.
func (c *cli) withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, err := config.Load(c.configPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = config.Default(), nil
	}
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := app.New(ctx, cfg, c.appOpts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Shutdown(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()
	return fn(a)
}
