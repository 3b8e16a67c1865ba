package main

import (
	"github.com/spf13/cobra"

	"github.com/slipstream/downloaddb/internal/download"
)

func newProgressCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Manage the progress snapshot of a task",
	}

	cmd.AddCommand(
		newProgressSetCmd(a),
		newProgressShowCmd(a),
		newProgressRemoveCmd(a),
	)
	return cmd
}

func newProgressSetCmd(a *app) *cobra.Command {
	var downloaded, total, speed, eta uint64

	cmd := &cobra.Command{
		Use:   "set <id>",
		Short: "Record the latest progress of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := download.ParseTaskID(args[0])
			if err != nil {
				return err
			}

			progress := &download.Progress{
				DownloadedBytes: downloaded,
				SpeedBPS:        speed,
			}
			// Unset flags mean unknown, not zero.
			if cmd.Flags().Changed("total") {
				progress.TotalBytes = download.Uint64Ptr(total)
			}
			if cmd.Flags().Changed("eta") {
				progress.ETASeconds = download.Uint64Ptr(eta)
			}

			repo, err := a.store(ctx)
			if err != nil {
				return err
			}
			if _, err := repo.GetTask(ctx, id); err != nil {
				return err
			}
			if err := repo.SaveProgress(ctx, id, progress); err != nil {
				return err
			}

			stored, err := repo.GetProgress(ctx, id)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).progress(newProgressView(stored))
		},
	}

	flags := cmd.Flags()
	flags.Uint64Var(&downloaded, "downloaded", 0, "bytes downloaded so far")
	flags.Uint64Var(&total, "total", 0, "total size in bytes (omit if unknown)")
	flags.Uint64Var(&speed, "speed", 0, "current speed in bytes per second")
	flags.Uint64Var(&eta, "eta", 0, "estimated seconds remaining (omit if unknown)")
	return cmd
}

func newProgressShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show the progress snapshot of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := download.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			repo, err := a.store(cmd.Context())
			if err != nil {
				return err
			}

			progress, err := repo.GetProgress(cmd.Context(), id)
			if err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).progress(newProgressView(progress))
		},
	}
}

func newProgressRemoveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rm <id>",
		Short: "Delete the progress snapshot of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := download.ParseTaskID(args[0])
			if err != nil {
				return err
			}
			repo, err := a.store(cmd.Context())
			if err != nil {
				return err
			}

			if err := repo.DeleteProgress(cmd.Context(), id); err != nil {
				return err
			}
			return a.printer(cmd.OutOrStdout()).message("progress removed for %s", id)
		},
	}
}
