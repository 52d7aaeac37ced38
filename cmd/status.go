package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/JakeFAU/literature-crawler/internal/crawler"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Probes every configured source and prints an availability table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return writeStatus(cmd.OutOrStdout(), appInstance.GetStatus(cmd.Context()))
		},
	}
}

func writeStatus(w io.Writer, status crawler.Status) error {
	var b strings.Builder
	fmt.Fprintf(&b, "crawler enabled: %t\n", status.Enabled)
	fmt.Fprintf(&b, "classify enabled: %t\n", status.ClassifyEnabled)
	fmt.Fprintf(&b, "max per source: %d\n\n", status.MaxPerSource)

	rows := [][]string{{"SOURCE", "ENABLED", "AVAILABLE"}}
	for _, s := range status.SourceStatuses {
		rows = append(rows, []string{s.Name, yesNo(s.Enabled), yesNo(s.Available)})
	}
	writeTable(&b, rows)

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}

// writeTable left-aligns columns by display width so wide runes line up.
func writeTable(b *strings.Builder, rows [][]string) {
	var widths []int
	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				widths = append(widths, 0)
			}
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, row := range rows {
		for i, cell := range row {
			if i == len(row)-1 {
				b.WriteString(cell)
				continue
			}
			b.WriteString(runewidth.FillRight(cell, widths[i]+2))
		}
		b.WriteString("\n")
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
