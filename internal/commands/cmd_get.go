package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/filesession/pkg/iojson"
)

type GetCmd struct {
	flags *Flags
}

// NewGetCmd creates a new get command
func NewGetCmd(flags *Flags) *GetCmd {
	return &GetCmd{flags: flags}
}

// Register adds the get command to the application
func (cmd *GetCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "get",
		Usage:     "Print a session record as JSON",
		UsageText: "filesession get <id>",
		Description: `Loads the session stored under <id> and prints it as JSON.

Exits with status 1 when the id is unknown, expired, or its record is
unreadable. Loading an expired session deletes it.`,
		Action: cmd.run,
	})

	return app
}

type recordJSON struct {
	ID        string         `json:"id"`
	Session   map[string]any `json:"session"`
	CreatedAt time.Time      `json:"created_at"`
}

func (cmd *GetCmd) run(ctx context.Context, c *cli.Command) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("session id is required")
	}

	rec, ok := cmd.flags.Store.Load(ctx, id)
	if !ok {
		_, _ = fmt.Fprintf(c.Root().ErrWriter, "session %q not found\n", id)
		return cli.Exit("", 1)
	}

	return iojson.WriteWith(c.Root().Writer, os.Stderr, recordJSON{
		ID:        id,
		Session:   rec.Payload,
		CreatedAt: rec.CreatedAt,
	})
}
