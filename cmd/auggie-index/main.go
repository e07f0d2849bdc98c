// Command auggie-index builds and serves semantic search indexes over
// local directories, hosted Git repositories, and crawled websites.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/augmentcode/auggie-index/cmd/auggie-index/cmd"
	"github.com/augmentcode/auggie-index/internal/apperrors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(apperrors.ExitCode(err))
	}
}
