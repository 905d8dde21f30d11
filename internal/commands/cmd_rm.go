package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/filesession/internal/store/filestore"
)

type RmCmd struct {
	flags *Flags
}

// NewRmCmd creates a new rm command
func NewRmCmd(flags *Flags) *RmCmd {
	return &RmCmd{flags: flags}
}

// Register adds the rm command to the application
func (cmd *RmCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:        "rm",
		Usage:       "Invalidate sessions",
		UsageText:   "filesession rm <id>...",
		Description: "Deletes the record and expiration marker of each id. Unknown ids are ignored.",
		Action:      cmd.run,
	})

	return app
}

func (cmd *RmCmd) run(ctx context.Context, c *cli.Command) error {
	ids := c.Args().Slice()
	if len(ids) == 0 {
		return fmt.Errorf("at least one session id is required")
	}

	for _, id := range ids {
		if !filestore.ValidID(id) {
			_, _ = fmt.Fprintf(c.Root().ErrWriter, "skipping invalid id %q\n", id)
			continue
		}
		cmd.flags.Store.Invalidate(ctx, id)
	}

	return nil
}
