package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"feedshelf/internal/apperror"
	"feedshelf/internal/config"

	"github.com/urfave/cli"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load config",
			"error", err)

		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(log)

	r := &runner{ctx: ctx, cancel: cancel, cfg: cfg, log: log}

	app := cli.NewApp()
	app.Name = "feedshelf"
	app.Usage = "read RSS feeds, take notes and chat about articles"
	app.Version = "0.1.0"
	app.Commands = r.commands()

	if err = app.Run(os.Args); err != nil {
		log.ErrorContext(ctx, "Command failed",
			"error", err,
			"kind", apperror.KindOf(err).String())
		fmt.Fprintln(os.Stderr, apperror.UserMessage(err))

		os.Exit(1)
	}
}
