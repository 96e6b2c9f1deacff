// Command earlink-log views and analyzes earlink capture files.
//
// Capture files are written by earlinkctl when capture.file is set in the
// configuration or -capture is passed.
//
// Usage:
//
//	earlink-log <command> [flags] <file.elog>
//
// Commands:
//
//	view     View capture in human-readable format
//	export   Export capture to JSONL or CSV
//	filter   Filter capture and write to new file
//	stats    Show statistics about the capture
//
// Examples:
//
//	# View only decoded capability operations
//	earlink-log view --layer plugin qc35.elog
//
//	# View traffic for one headset
//	earlink-log view --device 04:52:C7:00:00:01 qc35.elog
//
//	# Export to CSV
//	earlink-log export --format csv -o qc35.csv qc35.elog
//
//	# Keep only noise cancellation commands
//	earlink-log filter --capability noiseCancellation -o nc.elog qc35.elog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/earlink/earlink-go/cmd/earlink-log/commands"
)

const usage = `earlink-log - earlink capture analyzer

Usage:
  earlink-log <command> [flags] <file.elog>

Commands:
  view     View capture in human-readable format
  export   Export capture to JSONL or CSV
  filter   Filter capture and write to new file
  stats    Show statistics about the capture

Use "earlink-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

func newFlagSet(name, summary, synopsis string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "earlink-log %s - %s\n\nUsage:\n  earlink-log %s\n\nFlags:\n", name, summary, synopsis)
		fs.PrintDefaults()
	}
	return fs
}

// capturePath parses args and returns the single positional capture path.
func capturePath(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: capture file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := newFlagSet("view", "View capture in human-readable format", "view [flags] <file.elog>")
	var opts commands.FilterOptions
	bindSelectors(fs, &opts)
	path := capturePath(fs, args)

	filter, err := opts.Filter()
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := newFlagSet("export", "Export capture to JSONL or CSV", "export [flags] <file.elog>")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := capturePath(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := newFlagSet("filter", "Filter capture and write to new file", "filter [flags] -o <out.elog> <file.elog>")
	var opts commands.FilterOptions
	fs.StringVar(&opts.Output, "o", "", "Output file (required)")
	fs.StringVar(&opts.ConnID, "conn-id", "", "Filter by connection ID")
	fs.StringVar(&opts.TimeStart, "time-start", "", "Filter by start time (RFC3339)")
	fs.StringVar(&opts.TimeEnd, "time-end", "", "Filter by end time (RFC3339)")
	bindSelectors(fs, &opts)
	path := capturePath(fs, args)

	if opts.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}
	n, err := commands.RunFilter(path, opts)
	if err != nil {
		fail(err)
	}
	fmt.Printf("Filtered %d events to %s\n", n, opts.Output)
}

func runStats(args []string) {
	fs := newFlagSet("stats", "Show statistics about the capture", "stats <file.elog>")
	path := capturePath(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

func bindSelectors(fs *flag.FlagSet, opts *commands.FilterOptions) {
	fs.StringVar(&opts.Layer, "layer", "", "Filter by layer (channel, plugin, connection)")
	fs.StringVar(&opts.Direction, "direction", "", "Filter by direction (in, out)")
	fs.StringVar(&opts.Category, "category", "", "Filter by category (frame, command, state, error)")
	fs.StringVar(&opts.Device, "device", "", "Filter by headset address")
	fs.StringVar(&opts.Plugin, "plugin", "", "Filter by plugin ID")
	fs.StringVar(&opts.Capability, "capability", "", "Filter by capability ID")
}
