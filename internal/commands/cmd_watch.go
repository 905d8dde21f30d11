package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/filesession/pkg/iojson"
)

type WatchCmd struct {
	flags *Flags

	// flags
	pattern string
}

// NewWatchCmd creates a new watch command
func NewWatchCmd(flags *Flags) *WatchCmd {
	return &WatchCmd{flags: flags}
}

// Register adds the watch command to the application
func (cmd *WatchCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "watch",
		Usage:     "Stream session changes as JSON lines",
		UsageText: "filesession watch [--pattern GLOB]",
		Description: `Watches the store directory and prints one JSON object per saved or removed
session, including changes made by other processes. Runs until interrupted.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "pattern",
				Usage:       "only report ids matching this glob",
				Value:       "*",
				Destination: &cmd.pattern,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *WatchCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	w, err := cmd.flags.Store.NewWatcher()
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = w.Close() }()

	events, err := w.Watch(ctx, cmd.pattern)
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	out := c.Root().Writer
	for event := range events {
		if err := iojson.WriteLine(out, event); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}

	return nil
}
