// Command renamer searches the metadata source, processes a show folder in
// the foreground and lists recorded jobs. It shares configuration and the job
// database with the web server.
//
// Usage:
//
//	renamer search "breaking bad"
//	renamer process "/tv/Breaking Bad" --show-id 1396
//	renamer jobs
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
