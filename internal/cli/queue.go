package cli

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/approval"
	"github.com/gzhole/migclean/internal/execution"
	"github.com/gzhole/migclean/internal/pipeline"
)

var (
	queueConfirm []string
	queueDryRun  bool
	executeYes   bool
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Build and inspect action queues",
	Long: `A queue lists the actions that will run, in order. The first action always
creates a system restore point; if it fails nothing else runs. Items marked
REMOVE_STAGE_1 or REMOVE_STAGE_2 are included; REVIEW items only when you
confirm them; BLOCKED and KEEP items never.

Examples:
  migclean queue build --dry-run
  migclean queue build --confirm app:oldtool --confirm drv:oem12.inf
  migclean queue show`,
}

var queueBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build a queue from the current plan",
	RunE:  queueBuild,
}

var queueShowCmd = &cobra.Command{
	Use:   "show [queue-id]",
	Short: "Show a queue (default: the latest)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  queueShow,
}

var executeCmd = &cobra.Command{
	Use:   "execute [queue-id]",
	Short: "Run a pending queue (default: the latest)",
	Long: `Run the actions of a pending queue one at a time. LIVE queues ask for
confirmation first. Press Ctrl-C to stop after the current action; remaining
actions are marked CANCELLED.`,
	Args: cobra.MaximumNArgs(1),
	RunE: executeCommand,
}

func init() {
	queueBuildCmd.Flags().StringArrayVar(&queueConfirm, "confirm", nil, "REVIEW item to include (repeatable)")
	queueBuildCmd.Flags().BoolVar(&queueDryRun, "dry-run", false, "Describe the commands without running them")
	executeCmd.Flags().BoolVarP(&executeYes, "yes", "y", false, "Run a LIVE queue without the confirmation prompt")

	queueCmd.AddCommand(queueBuildCmd)
	queueCmd.AddCommand(queueShowCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(executeCmd)
}

func queueBuild(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	mode := execution.ModeLive
	if queueDryRun {
		mode = execution.ModeDryRun
	}
	q, err := a.svc.BuildQueue(cmd.Context(), sess.ID, pipeline.QueueRequest{Mode: mode, Confirm: queueConfirm})
	if err != nil {
		return err
	}
	fmt.Printf("\xe2\x9c\x85 Queue %s built (%s).\n\n", q.ID, q.Mode)
	printQueue(q)
	return nil
}

func (a *app) queue(cmd *cobra.Command, args []string) (*execution.Queue, error) {
	if len(args) == 1 {
		return a.svc.GetQueue(cmd.Context(), args[0])
	}
	sess, err := a.session(cmd.Context())
	if err != nil {
		return nil, err
	}
	return a.svc.LatestQueue(cmd.Context(), sess.ID)
}

func queueShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.queue(cmd, args)
	if err != nil {
		return err
	}
	printQueue(q)
	return nil
}

func printQueue(q *execution.Queue) {
	fmt.Printf("  Queue %s  mode=%s  status=%s\n", q.ID, q.Mode, q.Status)
	fmt.Println(strings.Repeat("─", 80))
	for _, act := range q.Actions {
		fmt.Printf("  %2d. %-10s %s\n", act.Order, act.Status, act.DisplayName)
		if act.Command != "" {
			fmt.Printf("      $ %s\n", act.Command)
		}
		if act.ErrorMessage != "" {
			fmt.Printf("      ! %s\n", act.ErrorMessage)
		}
	}
	fmt.Println(strings.Repeat("─", 80))
}

func executeCommand(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	q, err := a.queue(cmd, args)
	if err != nil {
		return err
	}
	if q.Status != execution.StatusPending {
		return fmt.Errorf("queue %s is %s; build a new queue with 'migclean queue build'", q.ID, q.Status)
	}

	if q.Mode == execution.ModeLive && !executeYes {
		details := make([]string, 0, len(q.Actions))
		for _, act := range q.Actions {
			details = append(details, act.DisplayName)
		}
		res := approval.Ask(approval.Prompt{
			Title:   "Execute cleanup",
			Subject: fmt.Sprintf("Queue %s will run %d action(s) on this machine:", q.ID, len(q.Actions)),
			Details: details,
			Warning: "Removal cannot be undone except through the restore point.",
		})
		if !res.Approved {
			fmt.Fprintf(os.Stderr, "\n\xe2\x9d\x8c Execution cancelled (%s)\n", res.UserAction)
			return nil
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done, err := a.svc.Execute(ctx, q.ID)
	if done != nil {
		fmt.Println()
		printQueue(done)
	}
	if err != nil {
		return err
	}
	switch done.Status {
	case execution.StatusFailed:
		return fmt.Errorf("queue %s failed; see 'migclean log'", done.ID)
	case execution.StatusCancelled:
		return fmt.Errorf("queue %s cancelled", done.ID)
	}
	if done.Mode == execution.ModeLive {
		fmt.Println("\nReboot, then run 'migclean scan' again and 'migclean report delta' to verify the result.")
	}
	return nil
}
