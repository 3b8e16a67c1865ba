package main

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/slipstream/downloaddb/internal/database"
	"github.com/slipstream/downloaddb/internal/download"
	"github.com/slipstream/downloaddb/internal/repository"
)

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create or migrate the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if _, err := a.store(ctx); err != nil {
				return err
			}

			version, err := database.SchemaVersion(ctx, a.db.Conn())
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).message("database %s ready at schema version %d", a.db.Path(), version)
		},
	}
}

func newAddCmd(a *app) *cobra.Command {
	var statusLabel string

	cmd := &cobra.Command{
		Use:   "add <url> <target-path>",
		Short: "Track a new download; an already tracked URL returns the existing task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task := download.NewTask(args[0], args[1])
			if statusLabel != "" {
				status, err := download.ParseStatus(statusLabel)
				if err != nil {
					return err
				}
				task.Status = status
			}

			repo, err := a.store(cmd.Context())
			if err != nil {
				return err
			}
			res, err := repo.SaveTask(cmd.Context(), task)
			if err != nil {
				return err
			}
			if res.Merged {
				fmt.Fprintf(cmd.ErrOrStderr(), "url already tracked by task %s\n", res.Task.ID)
			}
			return a.printer(cmd.OutOrStdout()).task(newTaskView(res.Task))
		},
	}

	cmd.Flags().StringVar(&statusLabel, "status", "", "initial status (waiting, active, paused, completed, cancelled, failed:<reason>)")
	return cmd
}

func newListCmd(a *app) *cobra.Command {
	var statusLabel string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, err := a.store(ctx)
			if err != nil {
				return err
			}

			var tasks []*download.Task
			if statusLabel != "" {
				status, perr := download.ParseStatus(statusLabel)
				if perr != nil {
					return perr
				}
				tasks, err = repo.ListTasksByStatus(ctx, status)
			} else {
				tasks, err = repo.ListTasks(ctx)
			}
			if err != nil {
				return err
			}

			views := make([]taskView, 0, len(tasks))
			for _, t := range tasks {
				views = append(views, newTaskView(t))
			}
			return a.printer(cmd.OutOrStdout()).tasks(views)
		},
	}

	cmd.Flags().StringVar(&statusLabel, "status", "", "only list tasks with this status")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task and its progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := download.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			repo, err := a.store(ctx)
			if err != nil {
				return err
			}

			task, err := repo.GetTask(ctx, id)
			if err != nil {
				return err
			}
			view := newTaskView(task)

			progress, err := repo.GetProgress(ctx, id)
			switch {
			case err == nil:
				view.Progress = newProgressView(progress)
			case !repository.IsNotFound(err):
				return err
			}
			return a.printer(cmd.OutOrStdout()).task(view)
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Change the status of a task",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := download.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			status, err := download.ParseStatus(args[1])
			if err != nil {
				return err
			}
			repo, err := a.store(ctx)
			if err != nil {
				return err
			}

			if err := repo.UpdateStatus(ctx, id, status); err != nil {
				return err
			}
			task, err := repo.GetTask(ctx, id)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).task(newTaskView(task))
		},
	}
}

func newRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task and its progress",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := download.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			repo, err := a.store(cmd.Context())
			if err != nil {
				return err
			}

			if err := repo.DeleteTask(cmd.Context(), id); err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).message("deleted %s", id)
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count tasks in total and per status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			repo, err := a.store(ctx)
			if err != nil {
				return err
			}

			total, err := repo.CountTasks(ctx)
			if err != nil {
				return err
			}
			counts, err := repo.CountTasksByStatus(ctx)
			if err != nil {
				return err
			}

			view := newStatsView(total, counts)
			sort.Slice(view.ByStatus, func(i, j int) bool {
				return view.ByStatus[i].Status < view.ByStatus[j].Status
			})
			return a.printer(cmd.OutOrStdout()).stats(view)
		},
	}
}

func newClearCmd(a *app) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every task and progress snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("refusing to clear the store without --yes")
			}
			repo, err := a.store(cmd.Context())
			if err != nil {
				return err
			}

			if err := repo.ClearAll(cmd.Context()); err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).message("store cleared")
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "confirm deleting all data")
	return cmd
}
