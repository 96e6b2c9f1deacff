package commands

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/earlink/earlink-go/pkg/log"
)

// Stats holds aggregate statistics about a capture.
type Stats struct {
	Header            *log.Header
	TotalEvents       int
	EventsByLayer     map[log.Layer]int
	EventsByCategory  map[log.Category]int
	EventsByDirection map[log.Direction]int
	Commands          map[string]int
	Connections       map[string]*ConnectionStats
	Errors            int
	Degraded          int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// ConnectionStats holds statistics for a single connection.
type ConnectionStats struct {
	FirstSeen time.Time
	LastSeen  time.Time
	Events    int
	Device    string
	Plugin    string
	Model     string
}

// Collect reads every event of path into a Stats.
func Collect(path string) (*Stats, error) {
	reader, err := log.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByLayer:     make(map[log.Layer]int),
		EventsByCategory:  make(map[log.Category]int),
		EventsByDirection: make(map[log.Direction]int),
		Commands:          make(map[string]int),
		Connections:       make(map[string]*ConnectionStats),
		Header:            reader.Header(),
	}
	err = each(reader, func(event log.Event) error {
		stats.add(event)
		return nil
	})
	return stats, err
}

func (s *Stats) add(event log.Event) {
	s.TotalEvents++
	s.EventsByLayer[event.Layer]++
	s.EventsByCategory[event.Category]++
	s.EventsByDirection[event.Direction]++

	if s.TimeRange.Start.IsZero() || event.Timestamp.Before(s.TimeRange.Start) {
		s.TimeRange.Start = event.Timestamp
	}
	if event.Timestamp.After(s.TimeRange.End) {
		s.TimeRange.End = event.Timestamp
	}

	conn, ok := s.Connections[event.ConnectionID]
	if !ok {
		conn = &ConnectionStats{FirstSeen: event.Timestamp, LastSeen: event.Timestamp}
		s.Connections[event.ConnectionID] = conn
	}
	conn.Events++
	if event.Timestamp.After(conn.LastSeen) {
		conn.LastSeen = event.Timestamp
	}
	if conn.Device == "" {
		conn.Device = event.DeviceAddress
	}
	if event.PluginID != "" {
		conn.Plugin = event.PluginID
	}
	if event.Model != "" {
		conn.Model = event.Model
	}

	if event.Command != nil {
		s.Commands[event.Command.Op.String()+" "+event.Command.Capability]++
		if event.Command.Degraded {
			s.Degraded++
		}
	}
	if event.Error != nil {
		s.Errors++
	}
}

// RunStats analyzes the capture and prints statistics.
func RunStats(path string, w io.Writer) error {
	stats, err := Collect(path)
	if err != nil {
		return err
	}
	printStats(w, stats)
	return nil
}

func printStats(out io.Writer, s *Stats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	defer w.Flush()

	if h := s.Header; h != nil {
		fmt.Fprintf(w, "capture\tformat %d, created %s on %s\n", h.Format, h.Created.Format(time.RFC3339), orDash(h.Host))
	}
	fmt.Fprintf(w, "events\t%d\n", s.TotalEvents)
	if s.TotalEvents > 0 {
		span := s.TimeRange.End.Sub(s.TimeRange.Start).Round(time.Second)
		fmt.Fprintf(w, "span\t%s .. %s (%s)\n",
			s.TimeRange.Start.Format(time.RFC3339), s.TimeRange.End.Format(time.RFC3339), span)
	}
	fmt.Fprintf(w, "errors\t%d\n", s.Errors)
	fmt.Fprintf(w, "defaults substituted\t%d\n", s.Degraded)

	tally(w, "by layer", []log.Layer{log.LayerChannel, log.LayerPlugin, log.LayerConnection}, s.EventsByLayer)
	tally(w, "by category", []log.Category{log.CategoryFrame, log.CategoryCommand, log.CategoryState, log.CategoryError}, s.EventsByCategory)
	tally(w, "by direction", []log.Direction{log.DirectionIn, log.DirectionOut}, s.EventsByDirection)

	if len(s.Commands) > 0 {
		fmt.Fprintln(w, "\ncommands")
		names := make([]string, 0, len(s.Commands))
		for name := range s.Commands {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(w, "  %s\t%d\n", name, s.Commands[name])
		}
	}

	ids := make([]string, 0, len(s.Connections))
	for id := range s.Connections {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return s.Connections[ids[i]].FirstSeen.Before(s.Connections[ids[j]].FirstSeen)
	})
	fmt.Fprintf(w, "\nconnections\t%d\n", len(ids))
	for _, id := range ids {
		c := s.Connections[id]
		fmt.Fprintf(w, "  %s\t%d events\t%s\t%s\t%s\n", shortenConnID(id), c.Events,
			c.LastSeen.Sub(c.FirstSeen).Round(time.Millisecond),
			orDash(c.Device), strings.TrimSpace(c.Plugin+" "+c.Model))
	}
}

// tally prints the non-zero counts of m in the given order.
func tally[K interface {
	comparable
	fmt.Stringer
}](w io.Writer, title string, order []K, m map[K]int) {
	fmt.Fprintf(w, "\n%s\n", title)
	for _, k := range order {
		if n := m[k]; n > 0 {
			fmt.Fprintf(w, "  %s\t%d\n", k, n)
		}
	}
}
