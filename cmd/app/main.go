// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"log"
	"os"

	"codeberg.org/oliverandrich/model-judge/internal/config"
	"codeberg.org/oliverandrich/model-judge/internal/server"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	// Root flags are inherited by the subcommands
	cmd := &cli.Command{
		Name:   "app",
		Usage:  "Ask two AI models and keep the better answer",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP server (default)",
				Action: server.Run,
			},
			{
				Name:   "repair-roots",
				Usage:  "Turn stored records without a thread root into roots of their own",
				Action: server.RepairRoots,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
