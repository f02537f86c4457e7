package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/civicsync/internal/app"
	"github.com/jmerrifield20/civicsync/internal/config"
	"github.com/jmerrifield20/civicsync/internal/logging"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	cfgFile      string
	outputFormat string
	logLevel     string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "civic",
	Short: "Civic reports CLI",
	Long: `civic files and browses civic reports through the local civicsync cache.

Reports created while the backend is unreachable are stored with a local id
(local-N) and pushed by "civic sync" or by civicsyncd once the connection
returns.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./civicsync.yaml or ./configs/civicsync.yaml)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level written to stderr")

	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(categoriesCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

// withApp opens the shared services for the duration of fn.
func withApp(fn func(ctx context.Context, a *app.App, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger, err := logging.New(logLevel, "console")
		if err != nil {
			return err
		}
		defer logger.Sync() //nolint:errcheck

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		a, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Error("close", zap.Error(err))
			}
		}()
		return fn(ctx, a, args)
	}
}

// ── sync ─────────────────────────────────────────────────────────────────────

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push reports created offline and refresh your report list",
	RunE: withApp(func(ctx context.Context, a *app.App, _ []string) error {
		res, err := a.Reports.SyncPending(ctx)
		if err != nil {
			return fmt.Errorf("sync pending: %w", err)
		}
		refreshed, refreshErr := a.Reports.RefreshMine(ctx)
		catsOK := a.Categories.Sync(ctx)

		if outputFormat == "json" {
			out := map[string]any{
				"pushed":             res.Pushed,
				"failed":             res.Failed,
				"refreshed":          refreshed,
				"categories_updated": catsOK,
			}
			if refreshErr != nil {
				out["refresh_error"] = refreshErr.Error()
			}
			return printJSON(out)
		}

		fmt.Printf("Pushed:     %d\n", res.Pushed)
		fmt.Printf("Failed:     %d\n", res.Failed)
		if refreshErr != nil {
			fmt.Printf("Refresh:    skipped (%v)\n", refreshErr)
		} else {
			fmt.Printf("Refreshed:  %d\n", refreshed)
		}
		fmt.Printf("Categories: %s\n", yesNo(catsOK, "updated", "unchanged (backend unreachable)"))
		return nil
	}),
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("civic %s\n", version)
	},
}

// ── output helpers ───────────────────────────────────────────────────────────

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printReports(list []model.Report, tier string) error {
	if outputFormat == "json" {
		return printJSON(map[string]any{"reports": list, "tier": tier})
	}
	if len(list) == 0 {
		fmt.Println("No reports.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tCATEGORY\tCREATED\tTITLE")
	for _, r := range list {
		cat := ""
		if r.Category != nil {
			cat = r.Category.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.Priority, cat, r.CreatedAt.Local().Format("2006-01-02 15:04"), truncate(r.Title, 48))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if tier != "" {
		fmt.Printf("\n(%d reports, served from %s)\n", len(list), tier)
	}
	return nil
}

func printReport(r model.Report) error {
	if outputFormat == "json" {
		return printJSON(r)
	}
	fmt.Printf("ID:          %s\n", r.ID)
	fmt.Printf("Title:       %s\n", r.Title)
	fmt.Printf("Status:      %s\n", r.Status)
	fmt.Printf("Priority:    %s\n", r.Priority)
	if r.Category != nil {
		fmt.Printf("Category:    %s (%d)\n", r.Category.Name, r.CategoryID)
	} else {
		fmt.Printf("Category:    %d\n", r.CategoryID)
	}
	fmt.Printf("Location:    %.6f, %.6f\n", r.Location.Latitude, r.Location.Longitude)
	if r.Address != "" {
		fmt.Printf("Address:     %s\n", r.Address)
	}
	if r.Zone != nil && r.Zone.Name != "" {
		fmt.Printf("Zone:        %s\n", r.Zone.Name)
	}
	fmt.Printf("Created:     %s\n", r.CreatedAt.Local().Format(time.RFC1123))
	if r.ID.Pending() {
		fmt.Println("Sync:        pending")
	}
	for _, img := range r.Images {
		fmt.Printf("Image:       %s\n", img)
	}
	fmt.Printf("\n%s\n", r.Description)
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func yesNo(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// parseDate accepts RFC 3339 timestamps and plain dates. A plain end date
// covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", s)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
