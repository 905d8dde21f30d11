package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

type SweepCmd struct {
	flags *Flags

	// flags
	tempAge time.Duration
}

// NewSweepCmd creates a new sweep command
func NewSweepCmd(flags *Flags) *SweepCmd {
	return &SweepCmd{flags: flags}
}

// Register adds the sweep command to the application
func (cmd *SweepCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "sweep",
		Usage:     "Delete expired sessions",
		UsageText: "filesession sweep [--temp-age DURATION]",
		Description: `Removes every expired record with its marker, plus markers whose record is
gone. With --temp-age, leftover temp files from interrupted saves older
than the given age are removed too.`,
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:        "temp-age",
				Usage:       "also remove temp files older than this (0 = keep)",
				Destination: &cmd.tempAge,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *SweepCmd) run(ctx context.Context, c *cli.Command) error {
	removed, err := cmd.flags.Store.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	_, _ = fmt.Fprintf(c.Root().Writer, "removed %d expired session(s)\n", removed)

	if cmd.tempAge > 0 {
		n, err := cmd.flags.Store.RemoveStaleTemp(cmd.tempAge)
		if err != nil {
			return fmt.Errorf("remove temp files: %w", err)
		}
		_, _ = fmt.Fprintf(c.Root().Writer, "removed %d temp file(s)\n", n)
	}

	return nil
}
