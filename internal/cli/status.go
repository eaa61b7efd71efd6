package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/outagewatch/internal/server"
	"github.com/ogulcanaydogan/outagewatch/pkg/budget"
	"github.com/ogulcanaydogan/outagewatch/pkg/model"
	"github.com/ogulcanaydogan/outagewatch/pkg/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show monthly usage and tracked outages",
	Long:  `Print the notification budget for the current month and every outage in the stored state. State is never written.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().StringP("output", "o", "table", "Output format (table, json, yaml)")
}

type statusReport struct {
	Month         string         `json:"month" yaml:"month"`
	Notifications int            `json:"notifications" yaml:"notifications"`
	Limit         int            `json:"limit" yaml:"limit"`
	Remaining     int            `json:"remaining" yaml:"remaining"`
	UsagePct      float64        `json:"usage_pct" yaml:"usage_pct"`
	Band          budget.Band    `json:"band" yaml:"band"`
	LastCheck     time.Time      `json:"last_check" yaml:"last_check"`
	Outages       []outageReport `json:"outages" yaml:"outages"`
}

type outageReport struct {
	ID       string   `json:"id" yaml:"id"`
	Date     string   `json:"date" yaml:"date"`
	Status   string   `json:"status" yaml:"status"`
	Title    string   `json:"title" yaml:"title"`
	Area     string   `json:"area,omitempty" yaml:"area,omitempty"`
	URL      string   `json:"url" yaml:"url"`
	Notified []string `json:"notified_statuses" yaml:"notified_statuses"`
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	output, _ := cmd.Flags().GetString("output")

	policy, err := budget.NewPolicy(cfg.Notify.MonthlyLimit)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	backend, err := initBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	defer backend.Close()

	logger := newLogger(cfg)
	store, res := state.Load(ctx, backend, state.WithLogger(logger))
	if res.Source == state.LoadedRecovered {
		return fmt.Errorf("read state: %w", res.Err)
	}

	report := buildStatusReport(store.Snapshot(), policy, time.Now())
	return writeStatus(cmd.OutOrStdout(), report, output, logger)
}

func buildStatusReport(snap *model.Snapshot, policy *budget.Policy, now time.Time) statusReport {
	stats := server.BuildStats(snap, policy, now)
	report := statusReport{
		Month:         stats.Month,
		Notifications: stats.Notifications,
		Limit:         stats.Limit,
		Remaining:     stats.Remaining,
		UsagePct:      stats.UsagePct,
		Band:          stats.Band,
		LastCheck:     stats.LastCheck,
		Outages:       []outageReport{},
	}
	for _, o := range server.SortedOutages(snap) {
		report.Outages = append(report.Outages, outageReport{
			ID:       o.ID,
			Date:     o.Date,
			Status:   o.Status,
			Title:    o.Title,
			Area:     o.Area,
			URL:      o.URL,
			Notified: o.NotifiedStatuses.Sorted(),
		})
	}
	return report
}

func writeStatus(w io.Writer, report statusReport, output string, logger *slog.Logger) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()
	case "table":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	logger.Debug("rendering status table", "outages", len(report.Outages))

	fmt.Fprintf(w, "=== Notifications (%s) ===\n", report.Month)
	fmt.Fprintf(w, "Sent:       %d / %d\n", report.Notifications, report.Limit)
	fmt.Fprintf(w, "Remaining:  %d\n", report.Remaining)
	fmt.Fprintf(w, "Usage:      %.1f%% [%s]\n", report.UsagePct, report.Band)
	if !report.LastCheck.IsZero() {
		fmt.Fprintf(w, "Last check: %s\n", report.LastCheck.Format(time.RFC3339))
	}

	if len(report.Outages) == 0 {
		fmt.Fprintln(w, "\nNo outages tracked.")
		return nil
	}

	fmt.Fprintf(w, "\nTracked outages:\n")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "  ID\tDATE\tSTATUS\tTITLE\tAREA\n")
	for _, o := range report.Outages {
		status := o.Status
		if status == "" {
			status = "進行中"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", o.ID, o.Date, status, o.Title, o.Area)
	}
	return tw.Flush()
}
