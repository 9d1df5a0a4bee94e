package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"assent/internal/assentctl"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := assentctl.Run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "assentctl:", err)
		os.Exit(1)
	}
}
