package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/slipstream/downloaddb/internal/download"
	"github.com/slipstream/downloaddb/internal/repository"
)

func newDemoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Walk through the store API against a throwaway in-memory database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := a.memoryStore(cmd.Context())
			if err != nil {
				return err
			}
			return runDemo(cmd.Context(), repo, cmd.OutOrStdout())
		},
	}
}

func runDemo(ctx context.Context, repo *repository.Repository, w io.Writer) error {
	step := 0
	say := func(format string, args ...any) {
		step++
		fmt.Fprintf(w, "%d. "+format+"\n", append([]any{step}, args...)...)
	}

	say("Schema initialized on an in-memory database")

	archive := download.NewTask("https://example.com/large-file.zip", "/downloads/large-file.zip")
	doc := download.NewTask("https://example.com/document.pdf", "/downloads/document.pdf")
	for _, task := range []*download.Task{archive, doc} {
		if _, err := repo.SaveTask(ctx, task); err != nil {
			return err
		}
	}
	say("Saved 2 tasks")

	dup, err := repo.SaveTask(ctx, download.NewTask(archive.URL, "/elsewhere/large-file.zip"))
	if err != nil {
		return err
	}
	say("Saving %s again merged=%t, kept task %s", archive.URL, dup.Merged, dup.Task.ID)

	snapshots := map[download.TaskID]*download.Progress{
		archive.ID: {DownloadedBytes: 5120, TotalBytes: download.Uint64Ptr(10240), SpeedBPS: 1024, ETASeconds: download.Uint64Ptr(5)},
		doc.ID:     {DownloadedBytes: 2048, TotalBytes: download.Uint64Ptr(4096), SpeedBPS: 512, ETASeconds: download.Uint64Ptr(4)},
	}
	for id, p := range snapshots {
		if err := repo.SaveProgress(ctx, id, p); err != nil {
			return err
		}
	}
	say("Saved progress for both tasks")

	tasks, err := repo.ListTasks(ctx)
	if err != nil {
		return err
	}
	say("Found %d tasks:", len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(w, "   - %s (%s)\n", task.URL, task.Status)
		p, err := repo.GetProgress(ctx, task.ID)
		if err != nil {
			if repository.IsNotFound(err) {
				continue
			}
			return err
		}
		if pct, ok := p.CompletionPercentage(); ok {
			fmt.Fprintf(w, "     progress %.1f%% (%d/%d bytes)\n", pct, p.DownloadedBytes, *p.TotalBytes)
		}
	}

	if err := repo.UpdateStatus(ctx, doc.ID, download.Completed()); err != nil {
		return err
	}
	say("Marked %s as %s", doc.URL, download.Completed())

	total, err := repo.CountTasks(ctx)
	if err != nil {
		return err
	}
	counts, err := repo.CountTasksByStatus(ctx)
	if err != nil {
		return err
	}
	say("Total tasks: %d", total)
	for _, c := range counts {
		fmt.Fprintf(w, "   - %s: %d\n", c.Label(), c.Count)
	}

	if err := repo.DeleteTask(ctx, archive.ID); err != nil {
		return err
	}
	remaining, err := repo.CountTasks(ctx)
	if err != nil {
		return err
	}
	say("Deleted %s, %d task(s) remain", archive.ID, remaining)

	if err := repo.ClearAll(ctx); err != nil {
		return err
	}
	final, err := repo.CountTasks(ctx)
	if err != nil {
		return err
	}
	say("Cleared all data, final count: %d", final)

	return nil
}
