package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/stonezone/batchgen/batch"
	"github.com/stonezone/batchgen/job"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("105")). // Purple
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	tableHeaderStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("62")).
				Bold(true)

	statusStyles = map[string]lipgloss.Style{
		"pending":   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),  // Yellow
		"running":   lipgloss.NewStyle().Foreground(lipgloss.Color("39")),  // Cyan
		"completed": lipgloss.NewStyle().Foreground(lipgloss.Color("10")),  // Green
		"failed":    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		"cancelled": lipgloss.NewStyle().Foreground(lipgloss.Color("240")), // Gray
	}
)

// renderer prints tables and records as styled text or JSON.
type renderer struct {
	w            io.Writer
	json         bool
	colorEnabled bool
}

func newRenderer(w io.Writer, jsonOutput, colorEnabled bool) *renderer {
	return &renderer{w: w, json: jsonOutput, colorEnabled: colorEnabled}
}

func (r *renderer) style(s lipgloss.Style, text string) string {
	if !r.colorEnabled {
		return text
	}
	return s.Render(text)
}

func (r *renderer) status(s string) string {
	st, ok := statusStyles[s]
	if !ok {
		return s
	}
	return r.style(st, s)
}

func (r *renderer) printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.w, string(data))
	return err
}

func (r *renderer) printTable(headers []string, rows [][]string) {
	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	head := make([]string, len(headers))
	for i, h := range headers {
		head[i] = r.style(tableHeaderStyle, strings.ToUpper(h))
	}
	_, _ = fmt.Fprintln(w, strings.Join(head, "\t"))
	for _, row := range rows {
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	_ = w.Flush()
}

func (r *renderer) printFields(title string, fields [][2]string) {
	_, _ = fmt.Fprintln(r.w, r.style(headerStyle, title))
	w := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", r.style(labelStyle, f[0]+":"), f[1])
	}
	_ = w.Flush()
}

func (r *renderer) message(format string, args ...any) {
	_, _ = fmt.Fprintf(r.w, format+"\n", args...)
}

// ──────────────────────────────────────────────────
// Batches and jobs
// ──────────────────────────────────────────────────

func (r *renderer) batchList(bs []*batch.Batch) error {
	if r.json {
		return r.printJSON(bs)
	}
	if len(bs) == 0 {
		r.message("no batches")
		return nil
	}
	rows := make([][]string, 0, len(bs))
	for _, b := range bs {
		rows = append(rows, []string{
			b.ID,
			b.Name,
			r.status(string(b.Status)),
			percent(b.Progress()),
			jobCounts(b),
			formatTime(&b.CreatedAt),
		})
	}
	r.printTable([]string{"id", "name", "status", "progress", "jobs", "created"}, rows)
	return nil
}

func (r *renderer) batchDetail(b *batch.Batch) error {
	if r.json {
		return r.printJSON(b)
	}
	r.printFields("Batch "+b.ID, [][2]string{
		{"Name", b.Name},
		{"Description", b.Description},
		{"Status", r.status(string(b.Status))},
		{"Progress", percent(b.Progress())},
		{"Jobs", jobCounts(b)},
		{"Estimated cost", fmt.Sprintf("%.2f", b.EstimatedCost)},
		{"Created", formatTime(&b.CreatedAt)},
		{"Started", formatTime(b.StartedAt)},
		{"Completed", formatTime(b.CompletedAt)},
	})
	_, _ = fmt.Fprintln(r.w)

	rows := make([][]string, 0, len(b.Jobs))
	for _, j := range b.Jobs {
		rows = append(rows, []string{
			j.ID,
			j.Name,
			r.status(string(j.Status)),
			formatElapsed(j),
			truncate(j.ErrorMessage, 60),
		})
	}
	r.printTable([]string{"job", "name", "status", "elapsed", "error"}, rows)
	return nil
}

func (r *renderer) jobDetail(j *job.Job) error {
	if r.json {
		return r.printJSON(j)
	}
	result := ""
	if j.Result != nil {
		result = j.Result.String()
	}
	r.printFields("Job "+j.ID, [][2]string{
		{"Name", j.Name},
		{"Batch", j.BatchID},
		{"Status", r.status(string(j.Status))},
		{"Progress", percent(j.Progress)},
		{"Params", j.Params.String()},
		{"Result", result},
		{"Error", j.ErrorMessage},
		{"Created", formatTime(&j.CreatedAt)},
		{"Started", formatTime(j.StartedAt)},
		{"Completed", formatTime(j.CompletedAt)},
		{"Elapsed", formatElapsed(j)},
	})
	return nil
}

func jobCounts(b *batch.Batch) string {
	s := fmt.Sprintf("%d/%d done", b.CompletedJobs, b.TotalJobs)
	if b.FailedJobs > 0 {
		s += fmt.Sprintf(", %d failed", b.FailedJobs)
	}
	if b.CancelledJobs > 0 {
		s += fmt.Sprintf(", %d cancelled", b.CancelledJobs)
	}
	return s
}

func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Local().Format(time.DateTime)
}

func formatElapsed(j *job.Job) string {
	if j.StartedAt == nil || j.CompletedAt == nil || j.CancelledBeforeStart() {
		return ""
	}
	return j.CompletedAt.Sub(*j.StartedAt).Round(time.Millisecond).String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
