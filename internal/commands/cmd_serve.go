package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/colonyops/filesession/internal/core/logging"
	"github.com/colonyops/filesession/internal/httpsession"
	"github.com/colonyops/filesession/internal/server"
	"github.com/colonyops/filesession/internal/sweep"
)

const shutdownTimeout = 5 * time.Second

type ServeCmd struct {
	flags *Flags

	// flags
	addr  string
	pprof bool
}

// NewServeCmd creates a new serve command
func NewServeCmd(flags *Flags) *ServeCmd {
	return &ServeCmd{flags: flags}
}

// Register adds the serve command to the application
func (cmd *ServeCmd) Register(app *cli.Command) *cli.Command {
	app.Commands = append(app.Commands, &cli.Command{
		Name:      "serve",
		Usage:     "Run the demo counter app behind the session middleware",
		UsageText: "filesession serve [--addr HOST:PORT] [--pprof]",
		Description: `Starts an HTTP server whose sessions live in the store directory.

GET / increments a per session visit counter; POST /logout invalidates the
session. The background sweeper runs at sweep.interval while serving.`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address (defaults to http.addr from config)",
				Destination: &cmd.addr,
			},
			&cli.BoolFlag{
				Name:        "pprof",
				Usage:       "mount net/http/pprof under /debug/pprof/",
				Destination: &cmd.pprof,
			},
		},
		Action: cmd.run,
	})

	return app
}

func (cmd *ServeCmd) run(ctx context.Context, c *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := cmd.flags.Config
	store := cmd.flags.Store

	addr := cfg.HTTP.Addr
	if cmd.addr != "" {
		addr = cmd.addr
	}

	cookie := cfg.HTTP.Cookie
	opts := httpsession.Options{
		CookieName: cookie.Name,
		Path:       cookie.Path,
		Domain:     cookie.Domain,
		Secure:     cookie.Secure,
		HTTPOnly:   cookie.IsHTTPOnly(),
		SameSite:   cookie.SameSiteMode(),
	}

	handler := httpsession.New(store, opts)(server.CounterApp())
	if cmd.pprof {
		handler = server.WithPprof(handler)
	}

	srv := server.New(addr, handler, logging.Component("server"))
	if err := srv.Start(ctx); err != nil {
		return err
	}

	go sweep.Start(ctx, store, cfg.Sweep.Interval, logging.Component("sweep"))

	_, _ = fmt.Fprintf(c.Root().ErrWriter, "listening on http://%s\n", srv.Addr())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
