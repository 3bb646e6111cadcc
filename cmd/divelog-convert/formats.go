// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vchene/divelog-convert/internal/format"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List the supported input and output formats",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg := format.NewRegistry(cfg)

		fmt.Fprintln(os.Stdout, "Parsers:")
		for _, p := range reg.Parsers() {
			fmt.Fprintf(os.Stdout, "  %-10s %s\n", p.Name(), strings.Join(p.Extensions(), " "))
		}
		fmt.Fprintln(os.Stdout, "Serializers:")
		for _, s := range reg.Serializers() {
			suffix := ""
			if _, ok := s.(format.MultiSerializer); ok {
				suffix = "  (one file per dive)"
			}
			fmt.Fprintf(os.Stdout, "  %-10s %s%s\n", s.Name(), strings.Join(s.Extensions(), " "), suffix)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}
