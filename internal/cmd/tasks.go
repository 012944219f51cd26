package cmd

import (
	"fmt"
	"io"

	"github.com/makeasinger/sunoflow/internal/model"
	"github.com/makeasinger/sunoflow/internal/service"
	"github.com/spf13/cobra"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect and maintain the local task queue",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending and recently finished tasks",
	Args:  cobra.NoArgs,
	RunE:  runTasksList,
}

var tasksPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove finished tasks older than --keep-days",
	Args:  cobra.NoArgs,
	RunE:  runTasksPrune,
}

var tasksResumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Wait for a pending task and save its clips",
	Long: `Wait for a pending task and save its clips. The maximum wait is measured
from now, so a task that timed out earlier can be picked up again.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasksResume,
}

var tasksRemoveCmd = &cobra.Command{
	Use:   "remove <task-id>",
	Short: "Drop a pending task without touching the remote job",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksRemove,
}

var tasksRecoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Queue background polls for every pending task",
	Args:  cobra.NoArgs,
	RunE:  runTasksRecover,
}

var (
	tasksRecent   int
	tasksKeepDays int
)

func init() {
	tasksListCmd.Flags().IntVar(&tasksRecent, "recent", 10, "Number of finished tasks to show")
	tasksPruneCmd.Flags().IntVar(&tasksKeepDays, "keep-days", -1, "Days to keep (default from tasks.keep_days)")

	tasksCmd.AddCommand(tasksListCmd, tasksPruneCmd, tasksResumeCmd, tasksRemoveCmd, tasksRecoverCmd)
	rootCmd.AddCommand(tasksCmd)
}

func runTasksList(cmd *cobra.Command, _ []string) error {
	_, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	list := a.Generation.ListTasks(tasksRecent)
	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, list)
	}

	fmt.Fprintf(out, "Pending (%d/%d):\n", list.ActiveCount, a.Tasks.MaxConcurrent())
	printTasks(out, list.Pending)
	fmt.Fprintln(out, "Recent:")
	printTasks(out, list.Completed)
	return nil
}

func printTasks(w io.Writer, tasks []model.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, t := range tasks {
		fmt.Fprintf(w, "  %s  %-9s  %s  %s\n", t.TaskID, t.Status, t.CreatedAt, t.Title)
		if t.Error != "" {
			fmt.Fprintf(w, "      error: %s\n", t.Error)
		}
	}
}

func runTasksPrune(cmd *cobra.Command, _ []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	keep := tasksKeepDays
	if keep < 0 {
		keep = a.Config.Tasks.KeepDays
	}
	removed, err := a.Generation.PruneTasks(ctx, keep)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd.OutOrStdout(), model.PruneResponse{Removed: removed})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %d tasks older than %d days\n", removed, keep)
	return nil
}

func runTasksResume(cmd *cobra.Command, args []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	resp, err := a.Generation.ResumeTask(ctx, args[0])
	if err != nil {
		return err
	}
	return printGenerate(cmd.OutOrStdout(), resp)
}

func runTasksRemove(cmd *cobra.Command, args []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	removed, err := a.Tasks.RemoveTask(ctx, args[0])
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: %s is not pending", service.ErrTaskNotFound, args[0])
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	return nil
}

func runTasksRecover(cmd *cobra.Command, _ []string) error {
	ctx, a, done, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer done()

	n, err := a.Generation.Recover(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued %d pending tasks\n", n)
	return nil
}
