package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
)

const (
	ModeTracker    = "tracker"
	ModeRouteInfo  = "route-info"
	ModeMirrorTail = "mirror-tail"
)

// isKnownMode checks if the provided mode name is known.
func isKnownMode(s string) (string, bool) {
	switch s {
	case ModeTracker, "track", "t":
		return ModeTracker, true
	case ModeRouteInfo, "route", "routes":
		return ModeRouteInfo, true
	case ModeMirrorTail, "tail", "mirror":
		return ModeMirrorTail, true
	default:
		return "", false
	}
}

// ParseMode supports:
//
//	--mode=<value>
//	<value> (subcommand shorthand), e.g., `tracker --config=config/config.yaml`
func ParseMode(args []string) (string, []string, error) {
	var mode string
	var out []string

	for i := range args {
		arg := args[i]
		if after, ok := strings.CutPrefix(arg, "--mode="); ok {
			mode = after
			continue
		}

		if mode == "" {
			if m, ok := isKnownMode(arg); ok {
				mode = m
				continue
			}
		}
		out = append(out, arg)
	}

	if mode == "" {
		return "", out, errors.New("no mode specified: use --mode=<mode>")
	}

	if m, ok := isKnownMode(mode); ok {
		mode = m
	}

	return mode, out, nil
}

// PrintUsage prints the usage information with examples.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, "\033[36m") // cyan

	fmt.Fprintln(w, `Usage:
  ./campus-transport --mode=<mode> [flags]

Modes:
  tracker        Follow the live fleet and serve the map frame over HTTP
  route-info     Print the configured route layout, optionally store it in Postgres
  mirror-tail    Print events republished to the RabbitMQ mirror exchange

Examples:
  ./campus-transport --mode=tracker --config=config/config.yaml --max-concurrent=64
  ./campus-transport --mode=route-info --file=config/route.yaml --save
  ./campus-transport --mode=mirror-tail`)

	fmt.Fprint(w, "\033[0m") // reset
}

// AttachUsage wires a concise per-mode usage to a FlagSet.
func AttachUsage(fs *flag.FlagSet, mode string) {
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: ./campus-transport --mode=%s [flags]\n", mode)
		fs.PrintDefaults()
	}
}
