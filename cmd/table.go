package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sells-group/lead-qualifier/internal/calibrate"
	"github.com/sells-group/lead-qualifier/internal/model"
	"github.com/sells-group/lead-qualifier/internal/scoring"
)

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

// formatRuns writes a table of runs to out.
func formatRuns(out io.Writer, runs []model.Run) {
	t := newTable(out, table.Row{"ID", "Mode", "Status", "Seeds", "Qualified", "Dropped", "Deferred", "Ops", "Cost", "Started", "Duration"})
	for _, r := range runs {
		dur := ""
		if r.CompletedAt != nil {
			dur = r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			truncateID(r.ID),
			r.Mode,
			runStatus(r),
			fmt.Sprintf("%d/%d", r.SeedsHandled, r.SeedsLoaded),
			r.Qualified,
			r.Dropped,
			r.Deferred,
			r.OpsUsed,
			fmt.Sprintf("$%.4f", r.CostUSD),
			r.StartedAt.Format("2006-01-02 15:04"),
			dur,
		})
	}
	t.Render()
}

func runStatus(r model.Run) string {
	if r.StopReason != "" {
		return fmt.Sprintf("%s (%s)", r.Status, r.StopReason)
	}
	return string(r.Status)
}

// formatRunSummary writes the outcome of a single run.
func formatRunSummary(out io.Writer, r model.Run) {
	t := newTable(out, table.Row{"Field", "Value"})
	t.AppendRows([]table.Row{
		{"Run", r.ID},
		{"Mode", r.Mode},
		{"Status", runStatus(r)},
		{"Weights", r.WeightsVer},
		{"Seeds handled", fmt.Sprintf("%d/%d", r.SeedsHandled, r.SeedsLoaded)},
		{"Groups", r.Groups},
		{"Qualified", r.Qualified},
		{"Dropped", r.Dropped},
		{"Deferred", r.Deferred},
		{"Ops", formatOps(r.OpsUsed, r.OpsByKind)},
		{"Cost", fmt.Sprintf("$%.4f", r.CostUSD)},
		{"Errors", r.ErrorCount},
	})
	t.Render()
}

func formatOps(used int, byKind map[string]int) string {
	if len(byKind) == 0 {
		return fmt.Sprint(used)
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = fmt.Sprintf("%s=%d", k, byKind[k])
	}
	return fmt.Sprintf("%d (%s)", used, strings.Join(parts, ", "))
}

// formatLeads writes case files. Scores and confidence only appear in
// test mode.
func formatLeads(out io.Writer, cfs []model.CaseFile, mode model.Mode) {
	header := table.Row{"ID", "Company", "Org", "Trigger", "Role", "Stars", "Status"}
	if mode == model.ModeTest {
		header = append(header, "C", "E", "W", "V", "R", "Reason")
	}
	t := newTable(out, header)
	for _, cf := range cfs {
		row := table.Row{
			truncateID(cf.ID),
			truncate(cf.CompanyName, 30),
			cf.OrgNumber,
			cf.Trigger,
			cf.SuggestedRole,
			strings.Repeat("*", cf.Stars),
			cf.Status,
		}
		if mode == model.ModeTest {
			row = append(row,
				fmt.Sprintf("%.2f", cf.Confidence),
				fmt.Sprintf("%.2f", cf.Scores.E),
				fmt.Sprintf("%.2f", cf.Scores.W),
				fmt.Sprintf("%.2f", cf.Scores.V),
				fmt.Sprintf("%.2f", cf.Scores.R),
				cf.DropReason,
			)
		}
		t.AppendRow(row)
	}
	t.Render()
}

// formatWeights writes the prior table sorted by source type.
func formatWeights(out io.Writer, w *scoring.Weights) {
	_, _ = fmt.Fprintf(out, "Version: %s\n", w.Version)
	if !w.UpdatedAt.IsZero() {
		_, _ = fmt.Fprintf(out, "Updated: %s\n", w.UpdatedAt.Format(time.RFC3339))
	}
	sources := make([]string, 0, len(w.Sources))
	for s := range w.Sources {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	t := newTable(out, table.Row{"Source", "E0", "W0", "R0"})
	for _, s := range sources {
		p := w.Sources[s]
		t.AppendRow(table.Row{s, fmt.Sprintf("%.2f", p.E0), fmt.Sprintf("%.2f", p.W0), fmt.Sprintf("%.2f", p.R0)})
	}
	t.Render()
}

// formatCalibration writes the outcome of a calibration pass.
func formatCalibration(out io.Writer, res *calibrate.Result) {
	if !res.Ran {
		_, _ = fmt.Fprintf(out, "Calibration skipped: %s (%d items)\n", res.Reason, res.Items)
		return
	}
	_, _ = fmt.Fprintf(out, "Weights %s -> %s, %d of %d grades consumed\n", res.OldVersion, res.NewVersion, res.Consumed, res.Items)

	stats := newTable(out, table.Row{"Source", "Total", "Relevant", "Partial", "Irrelevant", "Relevance"})
	for _, s := range res.Stats {
		stats.AppendRow(table.Row{s.SourceType, s.Total, s.Relevant, s.Partial, s.Irrelevant, fmt.Sprintf("%.2f", s.Relevance)})
	}
	stats.Render()

	if len(res.Changes) == 0 {
		return
	}
	changes := newTable(out, table.Row{"Source", "Action", "E0", "W0", "R0"})
	for _, ch := range res.Changes {
		changes.AppendRow(table.Row{
			ch.SourceType,
			ch.Action,
			fmt.Sprintf("%.2f -> %.2f", ch.Before.E0, ch.After.E0),
			fmt.Sprintf("%.2f -> %.2f", ch.Before.W0, ch.After.W0),
			fmt.Sprintf("%.2f -> %.2f", ch.Before.R0, ch.After.R0),
		})
	}
	changes.Render()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
