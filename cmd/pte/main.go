package main

import (
	"context"
	"fmt"
	"os"

	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/cli"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/config"
	"github.com/AdamManuel-dev/prompt-template-engine-sub000/pkg/observability"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	app, err := cli.NewApp(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := observability.SignalContext(context.Background())
	app.Load(ctx)

	err = app.Execute(ctx, os.Args[1:])
	if closeErr := app.Close(); closeErr != nil {
		app.Log.WithError(closeErr).Warn("Shutdown incomplete")
	}
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
