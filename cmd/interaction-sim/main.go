package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/Swind/go-interaction-manager/cmd/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cmd := commands.NewRootCommand()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "interaction-sim:", err)
		os.Exit(1)
	}
}
