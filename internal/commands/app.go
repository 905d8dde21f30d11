package commands

import (
	"github.com/urfave/cli/v3"
)

// NewApp builds the root command with global flags bound to flags and every
// subcommand registered. The caller supplies Before/After hooks that fill
// flags.Config and flags.Store.
func NewApp(flags *Flags) *cli.Command {
	app := &cli.Command{
		Name:      appName,
		Usage:     "Inspect and serve file backed sessions",
		UsageText: "filesession [global options] command [command options]",
		Description: `filesession keeps web sessions as plain files, one per session id, with an
optional companion file holding the expiry time.

Use it to inspect, edit, and clean a session directory, or run 'filesession
serve' for a demo app using the HTTP session middleware.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("FILESESSION_LOG_LEVEL"),
				Value:       "info",
				Destination: &flags.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (defaults to <data-dir>/filesession.log)",
				Sources:     cli.EnvVars("FILESESSION_LOG_FILE"),
				Destination: &flags.LogFile,
			},
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to config file",
				Sources:     cli.EnvVars("FILESESSION_CONFIG"),
				Value:       DefaultConfigPath(),
				Destination: &flags.ConfigPath,
			},
			&cli.StringFlag{
				Name:        "data-dir",
				Usage:       "path to data directory",
				Sources:     cli.EnvVars("FILESESSION_DATA_DIR"),
				Value:       DefaultDataDir(),
				Destination: &flags.DataDir,
			},
		},
	}

	app = NewGetCmd(flags).Register(app)
	app = NewPutCmd(flags).Register(app)
	app = NewRmCmd(flags).Register(app)
	app = NewLsCmd(flags).Register(app)
	app = NewSweepCmd(flags).Register(app)
	app = NewWatchCmd(flags).Register(app)
	app = NewServeCmd(flags).Register(app)
	app = NewDoctorCmd(flags).Register(app)
	app = NewConfigValidateCmd(flags).Register(app)

	return app
}
