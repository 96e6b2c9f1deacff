package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/chzyer/readline"

	"github.com/earlink/earlink-go/pkg/capability"
	"github.com/earlink/earlink-go/pkg/connection"
	"github.com/earlink/earlink-go/pkg/fault"
	"github.com/earlink/earlink-go/pkg/plugin"
)

// shell is the interactive command interpreter.
type shell struct {
	app *app
	out io.Writer
}

func newShell(a *app, out io.Writer) *shell {
	return &shell{app: a, out: out}
}

func newReadline() (*readline.Instance, error) {
	caps := make([]readline.PrefixCompleterInterface, 0, len(capability.All))
	for _, id := range capability.All {
		caps = append(caps, readline.PcItem(string(id)))
	}
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "earlink> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("help"),
			readline.PcItem("devices"),
			readline.PcItem("plugins"),
			readline.PcItem("bridges"),
			readline.PcItem("connect"),
			readline.PcItem("disconnect"),
			readline.PcItem("status"),
			readline.PcItem("caps"),
			readline.PcItem("get", caps...),
			readline.PcItem("set", caps...),
			readline.PcItem("sim", readline.PcItem("drop"), readline.PcItem("battery"), readline.PcItem("mute")),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return rl, nil
}

// Run reads commands from rl until quit, EOF or ctx is done.
func (s *shell) Run(ctx context.Context, rl *readline.Instance) {
	s.printHelp()
	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(s.out, "Exiting...")
			return
		}
		if !s.Execute(ctx, line) {
			return
		}
	}
}

// Execute runs one command line. It returns false when the shell should
// exit.
func (s *shell) Execute(ctx context.Context, line string) bool {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return true
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help", "?":
		s.printHelp()
	case "devices", "d":
		s.cmdDevices()
	case "plugins", "p":
		s.cmdPlugins()
	case "bridges", "b":
		s.cmdBridges()
	case "connect", "c":
		s.cmdConnect(ctx, args)
	case "disconnect", "dc":
		s.app.manager.Disconnect()
		fmt.Fprintln(s.out, "Disconnected")
	case "status", "s":
		s.cmdStatus()
	case "caps":
		s.cmdCaps()
	case "get", "g":
		s.cmdGet(ctx, args)
	case "set":
		s.cmdSet(ctx, args)
	case "sim":
		s.cmdSim(args)
	case "quit", "exit", "q":
		fmt.Fprintln(s.out, "Exiting...")
		return false
	default:
		fmt.Fprintf(s.out, "Unknown command: %s (type 'help' for commands)\n", cmd)
	}
	return true
}

func (s *shell) printHelp() {
	fmt.Fprintln(s.out, `
earlink Commands:
  Devices:
    devices              - List known headsets
    connect <n|addr>     - Connect to a headset by index, address or name
    disconnect           - Disconnect and save settings
    status               - Show connection status

  Capabilities:
    caps                 - List capabilities of the connected headset
    get <cap|all>        - Read a capability
    set <cap> <value>    - Write a capability

  Infrastructure:
    plugins              - List registered plugins
    bridges              - List known bridges
    sim drop <n>         - Simulate link loss
    sim battery <n> <%>  - Set simulated battery level
    sim mute <n> on|off  - Make a simulated headset stop answering

    help                 - Show this help
    quit                 - Exit`)
}

func (s *shell) table() *tabwriter.Writer {
	return tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
}

func (s *shell) cmdDevices() {
	devices := s.app.Devices()
	if len(devices) == 0 {
		fmt.Fprintln(s.out, "No known devices (connect <address> reaches a bridged headset)")
		return
	}
	current := s.app.manager.Status().Device
	tw := s.table()
	fmt.Fprintln(tw, "#\tNAME\tADDRESS\tPLUGIN\t")
	for i, dev := range devices {
		pluginID := "-"
		if p, err := s.app.registry.FindPlugin(dev); err == nil {
			pluginID = p.ID()
		}
		mark := ""
		if current != nil && current.Address == dev.Address {
			mark = "*"
		}
		fmt.Fprintf(tw, "%d%s\t%s\t%s\t%s\t\n", i+1, mark, orDash(dev.Name), dev.Address, pluginID)
	}
	tw.Flush()
}

func (s *shell) cmdPlugins() {
	active := s.app.registry.Active()
	tw := s.table()
	fmt.Fprintln(tw, "ID\tNAME\tCHANNELS\tMODELS\t")
	for _, p := range s.app.registry.Plugins() {
		var channels []string
		for _, t := range p.ChannelTypes() {
			channels = append(channels, t.String())
		}
		id := p.ID()
		if active != nil && active.ID() == id {
			id += " *"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t\n", id, p.DisplayName(), strings.Join(channels, ","), len(p.Identifiers()))
	}
	tw.Flush()

	if s.app.watcher != nil {
		bundles := s.app.watcher.Bundles()
		paths := make([]string, 0, len(bundles))
		for path := range bundles {
			paths = append(paths, path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			fmt.Fprintf(s.out, "bundle %s -> %s\n", path, orDash(bundles[path]))
		}
	}
}

func (s *shell) cmdBridges() {
	if s.app.bridges == nil {
		fmt.Fprintln(s.out, "Running on the simulator")
		return
	}
	bridges := s.app.bridges.Bridges()
	if len(bridges) == 0 {
		fmt.Fprintln(s.out, "No bridges known")
		return
	}
	tw := s.table()
	fmt.Fprintln(tw, "INSTANCE\tENDPOINT\tCHANNELS\tDEVICES\t")
	for _, b := range bridges {
		var channels []string
		for _, t := range b.Channels {
			channels = append(channels, t.String())
		}
		devices := "any"
		if len(b.Devices) > 0 {
			devices = strings.Join(b.Devices, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", b.Instance, b.Endpoint(), strings.Join(channels, ","), devices)
	}
	tw.Flush()
}

func (s *shell) cmdConnect(ctx context.Context, args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.out, "Usage: connect <index|address|name>")
		return
	}
	dev, err := s.app.Resolve(strings.Join(args, " "))
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	fmt.Fprintf(s.out, "Connecting to %s...\n", dev)
	if err := s.app.manager.Connect(ctx, dev); err != nil {
		fmt.Fprintf(s.out, "Connect failed: %v\n", describe(err))
		return
	}
	st := s.app.manager.Status()
	fmt.Fprintf(s.out, "Connected via %s (%s)\n", st.Plugin.DisplayName(), st.Channel.Type())
}

func (s *shell) cmdStatus() {
	st := s.app.manager.Status()
	fmt.Fprintf(s.out, "State:   %s\n", st.State)
	if st.Device != nil {
		fmt.Fprintf(s.out, "Device:  %s (%s)\n", st.Device, st.Device.Address)
	}
	if st.Plugin != nil {
		fmt.Fprintf(s.out, "Plugin:  %s\n", st.Plugin.DisplayName())
	}
	if st.Channel != nil {
		fmt.Fprintf(s.out, "Channel: %s\n", st.Channel.Type())
	}
	if st.State == connection.StateConnecting && st.Attempt > 0 {
		fmt.Fprintf(s.out, "Attempt: %d\n", st.Attempt)
	}
	if marked := s.app.manager.Failures().Marked(); len(marked) > 0 {
		fmt.Fprintf(s.out, "Unrecoverable plugins: %s\n", strings.Join(marked, ", "))
	}
	if last := s.app.reporter.Last(); last != nil && last.UserVisible() {
		fmt.Fprintf(s.out, "Last error: %s [%s]\n", last.Message, last.Kind)
	}
}

// connected returns the active plugin or reports that none is connected.
func (s *shell) connected() plugin.Plugin {
	p := s.app.manager.Plugin()
	if p == nil {
		fmt.Fprintln(s.out, "Not connected")
	}
	return p
}

func (s *shell) cmdCaps() {
	p := s.connected()
	if p == nil {
		return
	}
	tw := s.table()
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tACCESS\t")
	for _, c := range p.Capabilities() {
		if !c.Supported {
			continue
		}
		access := "rw"
		if c.ID.ReadOnly() {
			access = "r"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", c.ID, c.DisplayName, describeType(c.ValueType), access)
	}
	tw.Flush()
}

func (s *shell) cmdGet(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(s.out, "Usage: get <capability|all>")
		return
	}
	p := s.connected()
	if p == nil {
		return
	}
	if strings.EqualFold(args[0], "all") {
		for _, c := range p.Capabilities() {
			if c.Supported {
				s.get(ctx, p, c.ID)
			}
		}
		return
	}
	id, ok := capability.Parse(args[0])
	if !ok {
		fmt.Fprintf(s.out, "Unknown capability: %s\n", args[0])
		return
	}
	s.get(ctx, p, id)
}

func (s *shell) get(ctx context.Context, p plugin.Plugin, id capability.ID) {
	v, err := p.Get(ctx, id)
	if err != nil {
		s.app.reporter.Report(err, "capability", id)
		fmt.Fprintf(s.out, "%s: error: %v\n", id, describe(err))
		return
	}
	fmt.Fprintf(s.out, "%s = %s\n", id, formatValue(v))
}

func (s *shell) cmdSet(ctx context.Context, args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: set <capability> <value>")
		fmt.Fprintln(s.out, "  Example: set noiseCancellation high")
		return
	}
	p := s.connected()
	if p == nil {
		return
	}
	id, ok := capability.Parse(args[0])
	if !ok {
		fmt.Fprintf(s.out, "Unknown capability: %s\n", args[0])
		return
	}
	cfg, ok := capabilityConfig(p, id)
	if !ok {
		fmt.Fprintf(s.out, "%s is not supported by this headset\n", id)
		return
	}
	v, err := cfg.ValueType.ParseValue(strings.Join(args[1:], " "))
	if err != nil {
		fmt.Fprintf(s.out, "Invalid value: %v\n", err)
		return
	}
	if err := p.Set(ctx, id, v); err != nil {
		s.app.reporter.Report(err, "capability", id)
		fmt.Fprintf(s.out, "Set failed: %v\n", describe(err))
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func (s *shell) cmdSim(args []string) {
	if s.app.sim == nil {
		fmt.Fprintln(s.out, "Simulator not enabled (start with -simulate)")
		return
	}
	if len(args) < 2 {
		fmt.Fprintln(s.out, "Usage: sim drop|battery|mute <n> [value]")
		return
	}
	dev, err := s.app.Resolve(args[1])
	if err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}
	h, ok := s.app.sim.Headset(dev.Address)
	if !ok {
		fmt.Fprintf(s.out, "No simulated headset at %s\n", dev.Address)
		return
	}
	switch strings.ToLower(args[0]) {
	case "drop":
		h.Drop(errors.New("simulated link loss"))
	case "battery":
		if len(args) < 3 {
			fmt.Fprintln(s.out, "Usage: sim battery <n> <0-100>")
			return
		}
		level, err := strconv.Atoi(args[2])
		if err != nil || level < 0 || level > 100 {
			fmt.Fprintf(s.out, "Invalid level: %s\n", args[2])
			return
		}
		h.SetBattery(uint8(level))
	case "mute":
		h.SetMute(len(args) < 3 || args[2] != "off")
	default:
		fmt.Fprintf(s.out, "Unknown sim command: %s\n", args[0])
		return
	}
	fmt.Fprintln(s.out, "OK")
}

func capabilityConfig(p plugin.Plugin, id capability.ID) (capability.Config, bool) {
	for _, c := range p.Capabilities() {
		if c.ID == id && c.Supported {
			return c, true
		}
	}
	return capability.Config{}, false
}

func describeType(vt capability.ValueType) string {
	switch vt.Kind {
	case capability.KindDiscrete:
		return strings.Join(vt.Options, "|")
	case capability.KindContinuous:
		return fmt.Sprintf("%d..%d/%d", vt.Min, vt.Max, vt.Step)
	default:
		return vt.Kind.String()
	}
}

func formatValue(v any) string {
	switch x := v.(type) {
	case bool:
		if x {
			return "on"
		}
		return "off"
	case []string:
		if len(x) == 0 {
			return "(none)"
		}
		return strings.Join(x, ", ")
	default:
		return fmt.Sprint(v)
	}
}

// describe adds the error kind to user-facing messages.
func describe(err error) string {
	kind := fault.KindOf(err)
	if kind == fault.KindUnknown {
		return err.Error()
	}
	return fmt.Sprintf("%s [%s]", err, kind)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
