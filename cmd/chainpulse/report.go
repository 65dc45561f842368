package main

import (
	"fmt"
	"os"
	"time"

	"github.com/chainpulse/chainpulse/internal/alerts"
	"github.com/chainpulse/chainpulse/internal/reporting"
	"github.com/spf13/cobra"
)

var (
	reportInput  string
	reportOutput string
	reportWindow int
	reportTenant string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate a PDF alert report from an exported alert file",
	Long:  `Reads an alert export (produced by the alert export API), computes statistics and trends over the requested window and writes a PDF summary.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReport()
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportInput, "input", "i", "", "Path to the alert export JSON file (required)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "report.pdf", "Path of the PDF to write")
	reportCmd.Flags().IntVarP(&reportWindow, "window", "w", 24, "Statistics window in hours")
	reportCmd.Flags().StringVarP(&reportTenant, "tenant", "t", "default", "Tenant name shown on the report")
	reportCmd.MarkFlagRequired("input")
}

func runReport() error {
	raw, err := os.ReadFile(reportInput)
	if err != nil {
		return fmt.Errorf("failed to read alert export: %w", err)
	}

	engine := alerts.NewEngine()
	result, err := engine.ImportJSON(raw, false)
	if err != nil {
		return fmt.Errorf("failed to import alerts: %w", err)
	}
	if result.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "Warning: %d malformed alert records skipped\n", result.Skipped)
	}

	data := &reporting.Data{
		Tenant:      reportTenant,
		GeneratedAt: time.Now(),
		WindowHours: reportWindow,
		Stats:       engine.Stats(reportWindow),
		Trends:      engine.Trends(reportWindow, trendInterval(reportWindow)),
		Alerts:      engine.List(alerts.ListOptions{IncludeResolved: true}),
	}

	pdf, err := reporting.NewGenerator().Generate(data)
	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}
	if err := os.WriteFile(reportOutput, pdf, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	fmt.Printf("Report written to %s (%d alerts, %dh window)\n", reportOutput, result.Imported, reportWindow)
	return nil
}

// trendInterval picks a bucket width that keeps the chart readable.
func trendInterval(windowHours int) int {
	switch {
	case windowHours <= 6:
		return 1
	case windowHours <= 48:
		return 2
	case windowHours <= 168:
		return 6
	default:
		return 24
	}
}
