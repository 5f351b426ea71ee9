package main

import (
	"context"
	"os"
	"syscall"

	"github.com/charmbracelet/fang"
	"github.com/lehigh-university-libraries/facekiosk/cmd"
)

// set at build time with -ldflags "-X main.version=... -X main.commit=..."
var (
	version = "0.1.0"
	commit  = ""
)

func main() {
	options := []fang.Option{
		fang.WithVersion(version),
		// supervisors stop the kiosk with SIGTERM
		fang.WithNotifySignal(os.Interrupt, syscall.SIGTERM),
	}
	if commit != "" {
		options = append(options, fang.WithCommit(commit))
	}

	if err := fang.Execute(context.Background(), cmd.NewRootCmd(), options...); err != nil {
		os.Exit(1)
	}
}
