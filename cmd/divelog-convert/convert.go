// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vchene/divelog-convert/internal/archive"
	"github.com/vchene/divelog-convert/internal/convert"
	"github.com/vchene/divelog-convert/internal/format"
)

var convertCmd = &cobra.Command{
	Use:   "convert [inputs...]",
	Short: "Convert dive-log files to another format",
	Long: `Convert parses one or more dive-log files (or zip bundles of them),
merges the dives in input order, and writes the result in the requested
output format. Input formats are inferred from file extensions unless
--input-format is given.

Formats that hold one dive per file (diverlog) produce one numbered output
file per dive; with a .zip output path the files are bundled instead.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().StringP("output", "o", "", "output path (default: first input with the output format's extension)")
	convertCmd.Flags().String("input-format", "", "force the parser instead of inferring from extensions")
	convertCmd.Flags().String("output-format", "uddf", "output format tag")
	convertCmd.Flags().Bool("lenient", false, "skip unparseable records and sources instead of failing")

	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("output")
	inputFormat, _ := cmd.Flags().GetString("input-format")
	outputFormat, _ := cmd.Flags().GetString("output-format")
	lenient, _ := cmd.Flags().GetBool("lenient")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	inputs := make([]convert.Input, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		inputs = append(inputs, convert.Input{Data: data, Source: path, Format: inputFormat})
	}

	opts := format.Options{Strict: !lenient, Warnings: os.Stderr}
	conv := convert.New(format.NewRegistry(cfg), opts)
	out, err := conv.Convert(inputs, outputFormat)
	if err != nil {
		return err
	}

	if outPath == "" {
		outPath = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + out.Extension
	}
	if err := writeUnits(out, outPath); err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "converted %d dives from %d sources", len(out.Log.Dives), out.Parsed)
	if out.Skipped > 0 {
		fmt.Fprintf(os.Stderr, " (%d sources skipped)", out.Skipped)
	}
	if n := len(out.Log.Source.Skipped); n > 0 {
		fmt.Fprintf(os.Stderr, " (%d records skipped)", n)
	}
	fmt.Fprintln(os.Stderr)
	return nil
}

// writeUnits writes a single-unit result to outPath directly. Multi-unit
// results become numbered sibling files, or one zip bundle when outPath
// has a .zip extension.
func writeUnits(out *convert.Output, outPath string) error {
	if len(out.Units) == 1 && !archive.IsArchive(outPath) {
		return writeFile(outPath, out.Units[0].Data)
	}

	if archive.IsArchive(outPath) {
		stem := strings.TrimSuffix(filepath.Base(outPath), filepath.Ext(outPath))
		members := make([]archive.Member, len(out.Units))
		for i, u := range out.Units {
			members[i] = archive.Member{Name: unitName(stem, u, i, out.Extension), Data: u.Data}
		}
		data, err := archive.Bundle(members)
		if err != nil {
			return err
		}
		return writeFile(outPath, data)
	}

	stem := strings.TrimSuffix(outPath, filepath.Ext(outPath))
	dir := filepath.Dir(outPath)
	for i, u := range out.Units {
		path := filepath.Join(dir, unitName(filepath.Base(stem), u, i, out.Extension))
		if err := writeFile(path, u.Data); err != nil {
			return err
		}
	}
	return nil
}

func unitName(stem string, u format.Unit, i int, ext string) string {
	if u.Name != "" {
		return fmt.Sprintf("%s_%s%s", stem, u.Name, ext)
	}
	return fmt.Sprintf("%s_%d%s", stem, i+1, ext)
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", path)
	return nil
}
