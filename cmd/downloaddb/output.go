package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slipstream/downloaddb/internal/download"
	"github.com/slipstream/downloaddb/internal/repository"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatYAML:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

type taskView struct {
	ID         string        `json:"id" yaml:"id"`
	URL        string        `json:"url" yaml:"url"`
	TargetPath string        `json:"targetPath" yaml:"targetPath"`
	Status     string        `json:"status" yaml:"status"`
	CreatedAt  string        `json:"createdAt" yaml:"createdAt"`
	UpdatedAt  string        `json:"updatedAt" yaml:"updatedAt"`
	Progress   *progressView `json:"progress,omitempty" yaml:"progress,omitempty"`
}

type progressView struct {
	DownloadedBytes uint64   `json:"downloadedBytes" yaml:"downloadedBytes"`
	TotalBytes      *uint64  `json:"totalBytes,omitempty" yaml:"totalBytes,omitempty"`
	SpeedBPS        uint64   `json:"speedBps" yaml:"speedBps"`
	ETASeconds      *uint64  `json:"etaSeconds,omitempty" yaml:"etaSeconds,omitempty"`
	Percentage      *float64 `json:"percentage,omitempty" yaml:"percentage,omitempty"`
	UpdatedAt       string   `json:"updatedAt" yaml:"updatedAt"`
}

type statsView struct {
	Total    int64            `json:"total" yaml:"total"`
	ByStatus []statusCountRow `json:"byStatus" yaml:"byStatus"`
}

type statusCountRow struct {
	Status string `json:"status" yaml:"status"`
	Count  int64  `json:"count" yaml:"count"`
}

func newTaskView(t *download.Task) taskView {
	return taskView{
		ID:         t.ID.String(),
		URL:        t.URL,
		TargetPath: t.TargetPath,
		Status:     t.Status.String(),
		CreatedAt:  t.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  t.UpdatedAt.Format(time.RFC3339),
	}
}

func newProgressView(p *download.Progress) *progressView {
	v := &progressView{
		DownloadedBytes: p.DownloadedBytes,
		TotalBytes:      p.TotalBytes,
		SpeedBPS:        p.SpeedBPS,
		ETASeconds:      p.ETASeconds,
		UpdatedAt:       p.UpdatedAt.Format(time.RFC3339),
	}
	if pct, ok := p.CompletionPercentage(); ok {
		v.Percentage = &pct
	}
	return v
}

func newStatsView(total int64, counts []repository.StatusCount) statsView {
	v := statsView{Total: total, ByStatus: make([]statusCountRow, 0, len(counts))}
	for _, c := range counts {
		v.ByStatus = append(v.ByStatus, statusCountRow{Status: c.Label(), Count: c.Count})
	}
	return v
}

// printer renders views in the selected output format.
type printer struct {
	w      io.Writer
	format string
}

func (a *app) printer(w io.Writer) *printer {
	return &printer{w: w, format: a.output}
}

// encode writes v as json or yaml. It reports false for table output.
func (p *printer) encode(v any) (bool, error) {
	switch p.format {
	case formatJSON:
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(p.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return true, err
		}
		return true, enc.Close()
	default:
		return false, nil
	}
}

func (p *printer) tasks(tasks []taskView) error {
	if done, err := p.encode(tasks); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tURL\tTARGET\tCREATED")
	for _, t := range tasks {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", t.ID, t.Status, t.URL, t.TargetPath, t.CreatedAt)
	}
	return tw.Flush()
}

func (p *printer) task(t taskView) error {
	if done, err := p.encode(t); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", t.ID)
	fmt.Fprintf(tw, "URL:\t%s\n", t.URL)
	fmt.Fprintf(tw, "Target:\t%s\n", t.TargetPath)
	fmt.Fprintf(tw, "Status:\t%s\n", t.Status)
	fmt.Fprintf(tw, "Created:\t%s\n", t.CreatedAt)
	fmt.Fprintf(tw, "Updated:\t%s\n", t.UpdatedAt)
	if t.Progress != nil {
		writeProgressRows(tw, t.Progress)
	}
	return tw.Flush()
}

func (p *printer) progress(v *progressView) error {
	if done, err := p.encode(v); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	writeProgressRows(tw, v)
	return tw.Flush()
}

func (p *printer) stats(v statsView) error {
	if done, err := p.encode(v); done {
		return err
	}

	tw := tabwriter.NewWriter(p.w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tCOUNT")
	for _, row := range v.ByStatus {
		fmt.Fprintf(tw, "%s\t%d\n", row.Status, row.Count)
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", v.Total)
	return tw.Flush()
}

// message prints a one-line confirmation, or {"message": ...} for structured formats.
func (p *printer) message(format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if done, err := p.encode(map[string]string{"message": msg}); done {
		return err
	}
	_, err := fmt.Fprintln(p.w, msg)
	return err
}

func writeProgressRows(w io.Writer, v *progressView) {
	fmt.Fprintf(w, "Downloaded:\t%d bytes\n", v.DownloadedBytes)
	fmt.Fprintf(w, "Total:\t%s\n", optionalUint(v.TotalBytes, " bytes"))
	fmt.Fprintf(w, "Speed:\t%d B/s\n", v.SpeedBPS)
	fmt.Fprintf(w, "ETA:\t%s\n", optionalUint(v.ETASeconds, "s"))
	if v.Percentage != nil {
		fmt.Fprintf(w, "Complete:\t%.1f%%\n", *v.Percentage)
	} else {
		fmt.Fprintln(w, "Complete:\tunknown")
	}
	fmt.Fprintf(w, "Progress updated:\t%s\n", v.UpdatedAt)
}

func optionalUint(v *uint64, unit string) string {
	if v == nil {
		return "unknown"
	}
	return strconv.FormatUint(*v, 10) + unit
}
