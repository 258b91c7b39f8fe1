// ./main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xkilldash9x/codebuddy-cli/cmd"
)

// main lets `go install github.com/xkilldash9x/codebuddy-cli@latest` produce
// a working binary. cmd/codebuddy is the fuller entry point with panic logging.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cmd.Execute(ctx)
	stop()
	if err != nil && ctx.Err() == nil {
		os.Exit(1)
	}
}
