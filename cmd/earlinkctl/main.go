// Command earlinkctl controls Bluetooth headsets through earlink.
//
// It loads the configuration, registers the built-in and bundled plugins,
// and reaches headsets either through network bridges or through the
// built-in simulator.
//
// Usage:
//
//	earlinkctl [flags]
//
// Flags:
//
//	-config string       Configuration file path
//	-simulate string     Comma-separated simulator presets ("all" for every preset)
//	-capture string      Protocol capture file (overrides capture.file)
//	-log-level string    Log level: debug, info, warn, error
//	-connect string      Device to connect on startup (index, address or name)
//	-serve string        Serve the simulated headsets as a bridge on this address
//	-advertise string    mDNS instance name for -serve
//	-interactive         Run the interactive shell (default true)
//
// Examples:
//
//	# Try the shell against simulated headsets
//	earlinkctl -simulate qc35ii,wh1000xm4
//
//	# Run a simulated bridge for another machine to find
//	earlinkctl -simulate all -serve :7070 -advertise desk -interactive=false
//
//	# Connect through configured bridges, capturing traffic
//	earlinkctl -config /etc/earlink/earlink.yaml -capture qc35.elog -connect 04:52:C7:00:00:36
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/earlink/earlink-go/internal/config"
	"github.com/earlink/earlink-go/pkg/simulator"
)

var (
	configFile  = flag.String("config", "", "Configuration file path")
	simulate    = flag.String("simulate", "", "Comma-separated simulator presets (\"all\" for every preset)")
	captureFile = flag.String("capture", "", "Protocol capture file (overrides capture.file)")
	logLevel    = flag.String("log-level", "", "Log level: debug, info, warn, error")
	connectTo   = flag.String("connect", "", "Device to connect on startup (index, address or name)")
	serveAddr   = flag.String("serve", "", "Serve the simulated headsets as a bridge on this address")
	advertise   = flag.String("advertise", "", "mDNS instance name for -serve")
	interactive = flag.Bool("interactive", true, "Run the interactive shell")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return err
		}
	}
	if *logLevel != "" {
		if _, err := config.ParseLevel(*logLevel); err != nil {
			return err
		}
		cfg.Log.Level = *logLevel
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var out io.Writer = os.Stdout
	var logOut io.Writer = os.Stderr
	var rl *readline.Instance
	if *interactive {
		r, err := newReadline()
		if err != nil {
			return err
		}
		defer r.Close()
		rl = r
		out, logOut = r.Stdout(), r.Stderr()
	}
	logger := cfg.NewLogger(logOut)

	a, err := newApp(cfg, options{Simulate: presets(*simulate), Capture: *captureFile}, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Warn("shutdown", "error", err)
		}
	}()

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	if *serveAddr != "" {
		srv, err := a.serveBridge(ctx, *serveAddr, *advertise)
		if err != nil {
			return err
		}
		defer srv.Stop()
		logger.Info("bridge serving", "addr", srv.Addr(), "instance", *advertise)
	}

	sh := newShell(a, out)
	if *connectTo != "" {
		sh.Execute(ctx, "connect "+*connectTo)
	}

	if rl != nil {
		sh.Run(ctx, rl)
		cancel()
	} else {
		<-ctx.Done()
		logger.Info("shutting down")
	}
	return <-done
}

// presets expands the -simulate flag.
func presets(s string) []string {
	if s == "" {
		return nil
	}
	if s == "all" {
		names := make([]string, len(simulator.Presets))
		for i, p := range simulator.Presets {
			names[i] = p.Name
		}
		return names
	}
	var names []string
	for _, name := range strings.Split(s, ",") {
		if name = strings.TrimSpace(name); name != "" {
			names = append(names, name)
		}
	}
	return names
}
