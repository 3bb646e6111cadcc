// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/vchene/divelog-convert/internal/format"
	"github.com/vchene/divelog-convert/pkg/types"
)

var infoCmd = &cobra.Command{
	Use:   "info [input]",
	Short: "Print a summary of a dive-log file",
	Long: `Info parses a dive-log file and prints a per-dive summary table. With
--json or --yaml the full canonical logbook is printed instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runInfo,
}

func init() {
	infoCmd.Flags().String("input-format", "", "force the parser instead of inferring from the extension")
	infoCmd.Flags().Bool("lenient", false, "skip unparseable records instead of failing")
	infoCmd.Flags().Bool("json", false, "output the full logbook as JSON")
	infoCmd.Flags().Bool("yaml", false, "output the full logbook as YAML")

	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	inputFormat, _ := cmd.Flags().GetString("input-format")
	lenient, _ := cmd.Flags().GetBool("lenient")
	asJSON, _ := cmd.Flags().GetBool("json")
	asYAML, _ := cmd.Flags().GetBool("yaml")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	reg := format.NewRegistry(cfg)
	p, err := reg.ParserFor(inputFormat, path)
	if err != nil {
		return err
	}
	log, err := p.Parse(data, path, format.Options{Strict: !lenient, Warnings: os.Stderr})
	if err != nil {
		return err
	}

	switch {
	case asJSON:
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(log)
	case asYAML:
		data, err := yaml.Marshal(log)
		if err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	default:
		formatLogTable(log, os.Stdout)
		return nil
	}
}

// formatLogTable writes a human-readable per-dive summary to w.
func formatLogTable(log *types.DiveLog, w io.Writer) {
	fmt.Fprintf(w, "Format: %s  Source: %s\n", log.Source.Format, log.Source.Source)
	if len(log.Dives) == 0 {
		fmt.Fprintln(w, "No dives.")
		return
	}

	fmt.Fprintf(w, "%-4s  %-16s  %-8s  %-9s  %-7s  %-8s  %s\n",
		"#", "Start", "Duration", "Max depth", "Temp", "Samples", "Site")
	fmt.Fprintln(w, strings.Repeat("-", 78))

	for i, d := range log.Dives {
		num := d.Number
		if num == 0 {
			num = i + 1
		}
		temp := ""
		if d.WaterTemp != nil {
			temp = fmt.Sprintf("%.1f C", *d.WaterTemp)
		}
		site := truncate(d.Site.Name, 24)
		fmt.Fprintf(w, "%-4d  %-16s  %-8s  %-9s  %-7s  %-8d  %s\n",
			num,
			d.Start.Format("2006-01-02 15:04"),
			fmt.Sprintf("%d min", d.DurationMin()),
			fmt.Sprintf("%.1f m", d.MaxDepth),
			temp,
			len(d.Samples),
			site)
	}

	fmt.Fprintf(w, "\n%d dives, %d gas mixes", len(log.Dives), len(log.Mixes))
	if n := len(log.Source.Skipped); n > 0 {
		fmt.Fprintf(w, " (%d records skipped)", n)
	}
	fmt.Fprintln(w)
}

// truncate shortens s to at most max characters, counting runes so a
// multi-byte site name is never cut mid-rune.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
