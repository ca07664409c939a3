package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/ovaphlow/pitchfork/service-attendance-go/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", cli.Describe(err))
		os.Exit(cli.GetExitCode(err))
	}
}
