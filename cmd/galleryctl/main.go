package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	logs "github.com/danmuck/urigallery/internal/logging"
)

func main() {
	logs.ConfigureRuntime()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp(os.Stdout)
	if err := a.run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "galleryctl: %v\n", err)
		os.Exit(1)
	}
}
