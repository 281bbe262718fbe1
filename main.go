package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"campus-transport/cmd/mirrortail"
	"campus-transport/cmd/routeinfo"
	trackerapp "campus-transport/cmd/tracker"
	"campus-transport/internal/cli"
)

const defaultConfigPath = "config/config.yaml"

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

	case cli.ModeTracker:
		fs := flag.NewFlagSet(cli.ModeTracker, flag.ContinueOnError)
		configPath := fs.String("config", defaultConfigPath, "Path to the YAML configuration file")
		maxConc := fs.Int("max-concurrent", 64, "Maximum number of concurrent HTTP requests to process")
		cli.AttachUsage(fs, cli.ModeTracker)

		parseOrExit(fs, modeArgs)
		if *maxConc < 1 {
			fmt.Fprintln(os.Stderr, "Error: --max-concurrent must be >= 1")
			fs.Usage()
			os.Exit(2)
		}
		if err := trackerapp.Run(ctx, *configPath, *maxConc); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeRouteInfo:
		fs := flag.NewFlagSet(cli.ModeRouteInfo, flag.ContinueOnError)
		var p routeinfo.Params
		fs.StringVar(&p.ConfigPath, "config", defaultConfigPath, "Path to the YAML configuration file")
		fs.StringVar(&p.File, "file", "", "Read the route from this YAML file instead of the configured source")
		fs.BoolVar(&p.Save, "save", false, "Store the route in Postgres under its version")
		fs.BoolVar(&p.JSON, "json", false, "Print JSON instead of text")
		cli.AttachUsage(fs, cli.ModeRouteInfo)

		parseOrExit(fs, modeArgs)
		if err := routeinfo.Run(ctx, p, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	case cli.ModeMirrorTail:
		fs := flag.NewFlagSet(cli.ModeMirrorTail, flag.ContinueOnError)
		configPath := fs.String("config", defaultConfigPath, "Path to the YAML configuration file")
		cli.AttachUsage(fs, cli.ModeMirrorTail)

		parseOrExit(fs, modeArgs)
		if err := mirrortail.Run(ctx, *configPath, os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(1)
		}

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown mode %q\n", mode)
		cli.PrintUsage(os.Stderr)
		os.Exit(2)
	}

	// tiny delay to let deferred logs flush on very fast exits
	select {
	case <-ctx.Done():
	case <-time.After(10 * time.Millisecond):
	}
}

func parseOrExit(fs *flag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}
}
