package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmerrifield20/civicsync/internal/app"
	"github.com/jmerrifield20/civicsync/internal/model"
	"github.com/jmerrifield20/civicsync/internal/validation"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Create and browse civic reports",
}

func init() {
	reportCmd.AddCommand(reportCreateCmd)
	reportCmd.AddCommand(reportGetCmd)
	reportCmd.AddCommand(reportListCmd)
	reportCmd.AddCommand(reportMineCmd)
	reportCmd.AddCommand(reportMapCmd)
	reportCmd.AddCommand(reportStatusCmd)

	createDraft.register(reportCreateCmd.Flags())
	validateDraft.register(validateCmd.Flags())

	for _, c := range []*cobra.Command{reportListCmd, reportMineCmd, reportMapCmd} {
		ff := &filterFlags{}
		ff.register(c.Flags())
		filters[c] = ff
	}
}

// ── draft flags ──────────────────────────────────────────────────────────────

// draftFlags collects the fields of a report draft from the command line.
type draftFlags struct {
	title       string
	description string
	categoryID  int64
	lat, lng    float64
	address     string
	image       string
	photos      []string
	priority    string
	phone       string
	email       string
	fields      map[string]string
}

var (
	createDraft   = &draftFlags{}
	validateDraft = &draftFlags{}
)

func (f *draftFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.title, "title", "", "Short summary of the problem")
	fs.StringVar(&f.description, "description", "", "What is happening and where")
	fs.Int64Var(&f.categoryID, "category", 0, "Category id (see: civic categories list)")
	fs.Float64Var(&f.lat, "lat", 0, "Latitude")
	fs.Float64Var(&f.lng, "lng", 0, "Longitude")
	fs.StringVar(&f.address, "address", "", "Street address")
	fs.StringVar(&f.image, "image", "", "Main photo (path or URL)")
	fs.StringSliceVar(&f.photos, "photo", nil, "Additional photo (repeatable)")
	fs.StringVar(&f.priority, "priority", "", "Priority: low, medium, high or critical (default: category priority)")
	fs.StringVar(&f.phone, "phone", "", "Contact phone")
	fs.StringVar(&f.email, "email", "", "Contact email")
	fs.StringToStringVar(&f.fields, "field", nil, "Category-specific field as key=value (repeatable)")
}

// draft builds the draft. Location is only set when --lat or --lng was given.
func (f *draftFlags) draft(fs *pflag.FlagSet, owner model.OwnerRef) model.Draft {
	d := model.Draft{
		Title:        f.title,
		Description:  f.description,
		CategoryID:   f.categoryID,
		Address:      f.address,
		Image:        f.image,
		Photos:       f.photos,
		CustomFields: f.fields,
		Priority:     model.Priority(f.priority),
		Owner:        owner,
	}
	if fs.Changed("lat") || fs.Changed("lng") {
		d.Location = &model.GeoPoint{Latitude: f.lat, Longitude: f.lng}
	}
	if f.phone != "" || f.email != "" {
		d.Contact = &model.Contact{Phone: f.phone, Email: f.email}
	}
	return d
}

// ── filter flags ─────────────────────────────────────────────────────────────

type filterFlags struct {
	status     string
	priority   string
	categoryID int64
	text       string
	from, to   string
	lat, lng   float64
	radiusKm   float64
}

var filters = map[*cobra.Command]*filterFlags{}

func (f *filterFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.status, "status", "", "Only reports in this status")
	fs.StringVar(&f.priority, "priority", "", "Only reports with this priority")
	fs.Int64Var(&f.categoryID, "category", 0, "Only reports in this category")
	fs.StringVarP(&f.text, "query", "q", "", "Case-insensitive text search in title and description")
	fs.StringVar(&f.from, "from", "", "Created on or after (YYYY-MM-DD or RFC 3339)")
	fs.StringVar(&f.to, "to", "", "Created on or before (YYYY-MM-DD or RFC 3339)")
	fs.Float64Var(&f.lat, "lat", 0, "Latitude of the search centre")
	fs.Float64Var(&f.lng, "lng", 0, "Longitude of the search centre")
	fs.Float64Var(&f.radiusKm, "radius", 0, "Only reports within this many km of --lat/--lng")
}

func (f *filterFlags) filter() (*model.Filter, error) {
	out := &model.Filter{
		Status:   model.ReportStatus(f.status),
		Priority: model.Priority(f.priority),
		Text:     strings.TrimSpace(f.text),
	}
	if out.Status != "" && !out.Status.Valid() {
		return nil, fmt.Errorf("unknown status %q", f.status)
	}
	if out.Priority != "" && !out.Priority.Valid() {
		return nil, fmt.Errorf("unknown priority %q", f.priority)
	}
	if f.categoryID != 0 {
		id := f.categoryID
		out.CategoryID = &id
	}
	var err error
	if out.DateFrom, err = parseDate(f.from, false); err != nil {
		return nil, err
	}
	if out.DateTo, err = parseDate(f.to, true); err != nil {
		return nil, err
	}
	if f.radiusKm < 0 {
		return nil, errors.New("--radius must be positive")
	}
	if f.radiusKm > 0 {
		out.Near = &model.GeoRadius{
			Center:   model.GeoPoint{Latitude: f.lat, Longitude: f.lng},
			RadiusKm: f.radiusKm,
		}
	}
	return out, nil
}

// ── report create ────────────────────────────────────────────────────────────

var reportCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "File a new report (stored locally when the backend is unreachable)",
	Example: `  civic report create --title "Hueco en la vía" \
    --description "Hay un hueco profundo frente al parque" \
    --category 1 --lat 4.6097 --lng -74.0817 --image ./hueco.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App, _ []string) error {
			res := a.Reports.Create(ctx, createDraft.draft(cmd.Flags(), a.Session.Owner()))
			if outputFormat == "json" {
				if err := printJSON(res); err != nil {
					return err
				}
			} else {
				for _, w := range res.Warnings {
					fmt.Printf("warning: %s\n", w)
				}
				if res.Success {
					fmt.Printf("Report %s created (%s).\n", res.Report.ID, res.Tier)
				}
			}
			if !res.Success {
				if len(res.Reasons) > 0 {
					return fmt.Errorf("%s: %s", res.Error, strings.Join(res.Reasons, "; "))
				}
				return errors.New(res.Error)
			}
			return nil
		})(cmd, args)
	},
}

// ── report get ───────────────────────────────────────────────────────────────

var reportGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a report from the local cache (ids like 42 or local-3)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(_ context.Context, a *app.App, args []string) error {
		id, err := model.ParseReportID(args[0])
		if err != nil {
			return err
		}
		rep, ok := a.Reports.Get(id)
		if !ok {
			return fmt.Errorf("report %s not found", id)
		}
		return printReport(rep)
	}),
}

// ── report list / mine / map ─────────────────────────────────────────────────

var reportListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all reports (backend first, cache when offline)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App, _ []string) error {
			f, err := filters[cmd].filter()
			if err != nil {
				return err
			}
			l, err := a.Reports.ListAll(ctx, f)
			if err != nil {
				return err
			}
			return printReports(l.Reports, string(l.Tier))
		})(cmd, args)
	},
}

var reportMineCmd = &cobra.Command{
	Use:   "mine",
	Short: "List the reports you filed from this device, including unsynced ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(_ context.Context, a *app.App, _ []string) error {
			f, err := filters[cmd].filter()
			if err != nil {
				return err
			}
			return printReports(a.Reports.ListMine(f), "")
		})(cmd, args)
	},
}

var reportMapCmd = &cobra.Command{
	Use:   "map",
	Short: "List validated reports shown on the public map",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App, _ []string) error {
			f, err := filters[cmd].filter()
			if err != nil {
				return err
			}
			l, err := a.Reports.ListForMap(ctx, f)
			if err != nil {
				return err
			}
			return printReports(l.Reports, string(l.Tier))
		})(cmd, args)
	},
}

// ── report status ────────────────────────────────────────────────────────────

var reportStatusCmd = &cobra.Command{
	Use:   "status <id> <new|in_process|resolved|rejected>",
	Short: "Change the status of a cached report",
	Args:  cobra.ExactArgs(2),
	RunE: withApp(func(ctx context.Context, a *app.App, args []string) error {
		id, err := model.ParseReportID(args[0])
		if err != nil {
			return err
		}
		found, err := a.Reports.UpdateStatus(ctx, id, model.ReportStatus(args[1]))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("report %s not found", id)
		}
		fmt.Printf("Report %s is now %s.\n", id, args[1])
		return nil
	}),
}

// ── validate ─────────────────────────────────────────────────────────────────

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score a draft report without filing it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(func(ctx context.Context, a *app.App, _ []string) error {
			d := validateDraft.draft(cmd.Flags(), a.Session.Owner())

			var cat *model.Category
			if c, _, err := a.Categories.Lookup(ctx, d.CategoryID); err == nil {
				cat = &c
			}
			v := a.Validator.Validate(d, cat)
			dec := a.Validator.Decide(v)
			recs := a.Validator.Recommendations(v)

			if outputFormat == "json" {
				return printJSON(map[string]any{
					"verdict":         v,
					"decision":        dec,
					"recommendations": recs,
					"min_score":       a.Validator.MinScore(),
				})
			}
			printVerdict(v, dec, recs, a.Validator.MinScore())
			return nil
		})(cmd, args)
	},
}

func printVerdict(v validation.Verdict, dec validation.Decision, recs []string, minScore int) {
	fmt.Printf("Score:      %d/100 (minimum %d)\n", v.Score, minScore)
	fmt.Printf("Can submit: %s\n", yesNo(dec.CanSubmit, "yes", "no"))
	for _, d := range v.Diagnostics {
		fmt.Printf("  [%-10s %-6s] %s\n", d.Kind, d.Severity, d.Message)
	}
	for _, r := range dec.RejectionReasons {
		fmt.Printf("Rejected:   %s\n", r)
	}
	for _, r := range recs {
		fmt.Printf("Tip:        %s\n", r)
	}
}
