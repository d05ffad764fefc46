package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/sessionrelay/internal/app"
	"github.com/florianilch/sessionrelay/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	return newRootCommand().Run(ctx, args)
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "sessionrelay",
		Usage: "Bearer session relay with single-flight token refresh",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "upstream--base-url",
				Usage: "upstream API base URL",
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "refresh token storage (file|keyring|diskv|redis|memory)",
				Value: string(app.DefaultConfigAuthStorage),
			},
		},
		Commands: []*cli.Command{
			proxyStartCommand(),
			loginCommand(),
			logoutCommand(),
			statusCommand(),
			requestCommand(),
		},
	}
}

func proxyStartCommand() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "run the authenticating reverse proxy",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "server--host",
				Usage: "server host",
				Value: app.DefaultConfigServerHost,
			},
			&cli.IntFlag{
				Name:  "server--port",
				Usage: "server port",
				Value: int(app.DefaultConfigServerPort),
			},
		},
		Action: proxyStartAction,
	}
}

func proxyStartAction(ctx context.Context, cmd *cli.Command) error {
	return withApp(ctx, cmd, func(ctx context.Context, application *app.App) error {
		slog.InfoContext(ctx, "starting")

		if err := application.Start(ctx); err != nil {
			return fmt.Errorf("app failed to start: %w", err)
		}

		slog.InfoContext(ctx, "stopped gracefully")
		return nil
	})
}

// withApp loads config, sets up logging and runs fn with a fresh App.
func withApp(ctx context.Context, cmd *cli.Command, fn func(context.Context, *app.App) error) (err error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdownLogs, err := observability.Instrument(ctx, cfg.LogLevel, string(cfg.LogFormat))
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		if shutdownErr := shutdownLogs(context.WithoutCancel(ctx)); shutdownErr != nil && err == nil {
			err = fmt.Errorf("flushing logs: %w", shutdownErr)
		}
	}()

	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() { _ = application.Close() }()

	return fn(ctx, application)
}
