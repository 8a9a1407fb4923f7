package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/audit"
)

var (
	logFilterStatus string
	logLast         int
	logSummary      bool
	logJSON         bool
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View the audit log of the current session",
	Long: `View the append-only audit log. Every action writes a RUNNING entry and
one terminal entry (COMPLETED, FAILED, CANCELLED or DRY_RUN).

Examples:
  migclean log                        # Show all entries
  migclean log --last 20              # Show last 20 entries
  migclean log --status FAILED        # Show only failures
  migclean log --summary              # Show counts per status`,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logFilterStatus, "status", "", "Filter by status (RUNNING, COMPLETED, FAILED, CANCELLED, DRY_RUN)")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N entries")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Print entries as JSON")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	entries, err := a.svc.AuditLog(cmd.Context(), sess.ID)
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No audit log entries found.")
		return nil
	}

	filtered := filterEntries(entries, logFilterStatus)
	if logLast > 0 && logLast < len(filtered) {
		filtered = filtered[len(filtered)-logLast:]
	}

	if logSummary {
		printSummary(entries, filtered)
		return nil
	}
	if logJSON {
		return printJSON(filtered)
	}
	printEntries(filtered)
	return nil
}

func filterEntries(entries []audit.Entry, status string) []audit.Entry {
	if status == "" {
		return entries
	}
	var out []audit.Entry
	for _, e := range entries {
		if strings.EqualFold(e.Status, status) {
			out = append(out, e)
		}
	}
	return out
}

func statusIcon(status string) string {
	switch status {
	case "COMPLETED":
		return "\xe2\x9c\x85"
	case "FAILED":
		return "\xe2\x9d\x8c"
	case "CANCELLED":
		return "\xe2\x8f\xb9\xef\xb8\x8f "
	case "DRY_RUN":
		return "\xf0\x9f\x94\x8d"
	}
	return "\xe2\x96\xb6\xef\xb8\x8f "
}

func printEntries(entries []audit.Entry) {
	for _, e := range entries {
		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		fmt.Printf("%s %s %-10s %-26s %s\n", ts, statusIcon(e.Status), e.Status, e.ActionType, e.TargetID)
		if e.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", e.ErrorMessage)
		}
		if e.Output != "" {
			out := strings.TrimSpace(e.Output)
			if len(out) > 200 {
				out = out[:200] + "..."
			}
			fmt.Printf("    output: %s\n", out)
		}
	}
}

func printSummary(all, filtered []audit.Entry) {
	counts := make(map[string]int)
	for _, e := range filtered {
		counts[e.Status]++
	}
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  Audit Log Summary")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Printf("  Total entries:  %d\n", len(all))
	if len(filtered) != len(all) {
		fmt.Printf("  Shown:          %d\n", len(filtered))
	}
	for _, s := range []string{"RUNNING", "COMPLETED", "DRY_RUN", "FAILED", "CANCELLED"} {
		if counts[s] > 0 {
			fmt.Printf("  %s %-12s %d\n", statusIcon(s), s, counts[s])
		}
	}
}
