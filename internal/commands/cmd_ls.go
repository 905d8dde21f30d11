package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/filesession/internal/core/styles"
	"github.com/colonyops/filesession/internal/store/filestore"
	"github.com/colonyops/filesession/pkg/iojson"
)

type LsCmd struct {
	flags *Flags

	// flags
	jsonOutput bool
}

// NewLsCmd creates a new ls command
func NewLsCmd(flags *Flags) *LsCmd {
	return &LsCmd{flags: flags}
}

// Register adds the ls command to the application
func (cmd *LsCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "ls",
		Usage:     "List all sessions",
		UsageText: "filesession ls [--json]",
		Description: `Displays a table of every session file in the store directory with its
creation time, expiry, and state. Listing never deletes anything; expired
and corrupt records are shown as such.

Use --json for one JSON object per line.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "output as JSON lines",
				Destination: &cmd.jsonOutput,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *LsCmd) run(ctx context.Context, c *cli.Command) error {
	entries, err := cmd.flags.Store.List(ctx)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	out := c.Root().Writer

	if cmd.jsonOutput {
		for _, e := range entries {
			if err := iojson.WriteLine(out, e); err != nil {
				return fmt.Errorf("encode session: %w", err)
			}
		}
		return nil
	}

	if len(entries) == 0 {
		_, _ = fmt.Fprintln(c.Root().ErrWriter, "No sessions found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCREATED\tEXPIRES\tSTATE")

	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.ID, formatTime(e.CreatedAt), formatTime(e.ExpiresAt), entryState(e))
	}

	return w.Flush()
}

func entryState(e filestore.Entry) string {
	switch {
	case e.Corrupt:
		return styles.TextErrorStyle.Render("corrupt")
	case e.Expired:
		return styles.TextWarningStyle.Render("expired")
	default:
		return styles.TextSuccessStyle.Render("live")
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.DateTime)
}
