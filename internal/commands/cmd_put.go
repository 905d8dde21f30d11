package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/filesession/pkg/iojson"
)

type PutCmd struct {
	flags *Flags
	input iojson.FileReader[map[string]any]

	// flags
	id  string
	ttl time.Duration
}

// NewPutCmd creates a new put command
func NewPutCmd(flags *Flags) *PutCmd {
	return &PutCmd{flags: flags}
}

// Register adds the put command to the application
func (cmd *PutCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "put",
		Usage:     "Save a JSON object as a session",
		UsageText: "filesession put [--id ID] [--ttl DURATION] [-f FILE]",
		Description: `Reads a JSON object from a file or stdin and saves it as a session payload.
Prints the id to use from now on.

With --id naming a live session its payload is replaced. An unknown or
expired --id is never reused; a fresh id is generated instead.

--ttl 0 saves without expiry. Without --ttl the configured default applies.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "existing session id to update",
				Destination: &cmd.id,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "session lifetime (0 = no expiry)",
				Destination: &cmd.ttl,
			},
			cmd.input.Flag(),
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *PutCmd) run(ctx context.Context, c *cli.Command) error {
	payload, err := cmd.input.Read()
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}

	ttl := cmd.flags.Store.DefaultTTL()
	if c.IsSet("ttl") {
		ttl = cmd.ttl
	}

	id, err := cmd.flags.Store.Save(ctx, cmd.id, payload, ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(c.Root().Writer, id)
	return err
}
