package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/dustin/go-humanize/english"
	"github.com/fgeck/gostation-homelab/internal/alias"
	"github.com/fgeck/gostation-homelab/internal/models"
	"github.com/fgeck/gostation-homelab/internal/services/poller"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var dumpOutput string

var dumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Poll the station dump once and print the clients",
	Long: `Run a single fetch and parse cycle against the configured access point
and print every associated client. Useful for checking the tool path,
SSH access and aliases before starting the monitor.`,
	RunE: dumpStations,
}

func init() {
	dumpCmd.Flags().StringVarP(&dumpOutput, "output", "o", "table", "output format: table, json or yaml")
}

type dumpEntry struct {
	MAC           string         `json:"mac" yaml:"mac"`
	Name          string         `json:"name" yaml:"name"`
	State         string         `json:"state" yaml:"state"`
	Interface     string         `json:"interface,omitempty" yaml:"interface,omitempty"`
	Signal        *int           `json:"signal" yaml:"signal"`
	Authorized    bool           `json:"authorized" yaml:"authorized"`
	Authenticated bool           `json:"authenticated" yaml:"authenticated"`
	Attributes    map[string]any `json:"attributes" yaml:"attributes"`
}

func dumpStations(cmd *cobra.Command, args []string) error {
	switch dumpOutput {
	case "table", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", dumpOutput)
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	aliases, err := alias.New(cfg.Clients)
	if err != nil {
		log.Error().Err(err).Msg("invalid client aliases")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	p := poller.New(log.Logger, newFetcher(log.Logger, cfg.Station), aliases, cfg.Station)

	update, err := p.PollOnce(ctx)
	if err != nil {
		log.Error().Err(err).Msg("station dump failed")
		return err
	}

	entries := dumpEntries(update.Snapshot, aliases)
	out := cmd.OutOrStdout()
	switch dumpOutput {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(entries)
	default:
		return writeTable(out, entries, update.Duration)
	}
}

func dumpEntries(snapshot *models.Snapshot, aliases alias.Resolver) []dumpEntry {
	records := snapshot.Records()
	entries := make([]dumpEntry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, dumpEntry{
			MAC:           rec.MAC,
			Name:          aliases.Resolve(rec.MAC),
			State:         rec.State(),
			Interface:     rec.Interface,
			Signal:        rec.Signal,
			Authorized:    rec.Authorized,
			Authenticated: rec.Authenticated,
			Attributes:    rec.Attributes,
		})
	}
	return entries
}

func writeTable(out io.Writer, entries []dumpEntry, took time.Duration) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MAC\tNAME\tSIGNAL\tRX\tTX\tCONNECTED\tAUTHORIZED")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%v\n",
			e.MAC,
			e.Name,
			formatSignal(e.Signal),
			formatBytes(e.Attributes["rx_bytes"]),
			formatBytes(e.Attributes["tx_bytes"]),
			formatSeconds(e.Attributes["connected_time"]),
			e.Authorized,
		)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\n%s in %s\n", english.Plural(len(entries), "client", "clients"), took.Round(time.Millisecond))
	return err
}

func formatSignal(signal *int) string {
	if signal == nil {
		return "-"
	}
	return strconv.Itoa(*signal) + " dBm"
}

func formatBytes(v any) string {
	n, ok := v.(int64)
	if !ok || n < 0 {
		return "-"
	}
	return humanize.IBytes(uint64(n))
}

func formatSeconds(v any) string {
	n, ok := v.(int64)
	if !ok {
		return "-"
	}
	return (time.Duration(n) * time.Second).String()
}
