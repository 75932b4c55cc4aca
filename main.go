package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	dispatchservice "ride-dispatch/cmd/dispatch_service"
	"ride-dispatch/internal/cli"
)

func main() {
	// quick path for global help
	if len(os.Args) == 2 && (os.Args[1] == "--help" || os.Args[1] == "-h") {
		cli.PrintUsage(os.Stdout)
		os.Exit(0)
	}

	// parse mode and collect the remaining args for that mode
	mode, modeArgs, err := cli.ParseMode(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// context cancelled on SIGINT/SIGTERM for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch mode {

	case cli.ModeDispatch:
		fs := flag.NewFlagSet(cli.ModeDispatch, flag.ContinueOnError)
		configPath := fs.String("config", "config/config.yaml", "Path to the YAML config file")
		maxConc := fs.Int("max-concurrent", 0, "Maximum number of concurrent HTTP requests (0 uses server.max_concurrent)")
		cli.AttachUsage(fs, cli.ModeDispatch)

		if err := fs.Parse(modeArgs); err != nil {
			if errors.Is(err, flag.ErrHelp) {
				os.Exit(0)
			}
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(2)
		}
		if *maxConc < 0 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 0")
			fs.Usage()
			os.Exit(2)
		}
		if err := dispatchservice.Run(ctx, dispatchservice.Options{ConfigPath: *configPath, MaxConcurrent: *maxConc}); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeToken:
		if code := cli.RunToken(modeArgs, os.Stdout, os.Stderr); code != 0 {
			os.Exit(code)
		}

	default:
		// should not happen because ParseMode validates known modes
		fmt.Fprintln(os.Stderr, "Error: unknown mode")
		os.Exit(2)
	}

	// tiny delay to let deferred logs flush on very fast exits
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}
