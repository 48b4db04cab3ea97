package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/quickview/desktop/app"
	"github.com/quickview/desktop/sidecar"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zapcore"
)

func main() {
	cliApp := &cli.App{
		Name:  "quickview",
		Usage: "desktop launcher for the QuickView trame server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "sidecar",
				Usage:   "Name or path of the server executable to launch.",
				Value:   sidecar.TrameCommand,
				EnvVars: []string{"QUICKVIEW_SIDECAR"},
			},
			&cli.StringFlag{
				Name:    "frontend-dir",
				Usage:   "Directory holding the frontend served to the main window. Empty serves a placeholder page.",
				EnvVars: []string{"QUICKVIEW_FRONTEND_DIR"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Minimum log level. One of [debug,info,warn,error].",
				Value:   "info",
				EnvVars: []string{"QUICKVIEW_LOG_LEVEL"},
			},
			&cli.IntFlag{
				Name:    "width",
				Usage:   "Main window width.",
				Value:   1280,
				EnvVars: []string{"QUICKVIEW_WIDTH"},
			},
			&cli.IntFlag{
				Name:    "height",
				Usage:   "Main window height.",
				Value:   800,
				EnvVars: []string{"QUICKVIEW_HEIGHT"},
			},
			&cli.BoolFlag{
				Name:    "probe-session",
				Usage:   "Check that the announced session accepts WebSocket connections and log the result.",
				EnvVars: []string{"QUICKVIEW_PROBE_SESSION"},
			},
		},
		Action: func(ctx *cli.Context) error {
			level, err := zapcore.ParseLevel(ctx.String("log-level"))
			if err != nil {
				return fmt.Errorf("parsing log level: %w", err)
			}
			width := ctx.Int("width")
			height := ctx.Int("height")
			if width <= 0 || height <= 0 {
				return fmt.Errorf("invalid window size %dx%d", width, height)
			}

			a, err := app.New(
				app.WithLogLevel(level),
				app.WithSidecar(ctx.String("sidecar")),
				app.WithFrontendDir(ctx.String("frontend-dir")),
				app.WithWindowSize(width, height),
				app.WithSessionProbe(ctx.Bool("probe-session")),
			)
			if err != nil {
				return fmt.Errorf("building app: %w", err)
			}

			runCtx, stop := signal.NotifyContext(ctx.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Run(runCtx)
		},
	}
	if err := cliApp.RunContext(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
