package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	reportBaseline string
	reportMarkdown bool
	reportOut      string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Reports on cleanup results",
}

var reportDeltaCmd = &cobra.Command{
	Use:   "delta",
	Short: "Compare the latest scan with the scan taken before execution",
	Long: `Classify every item as REMOVED, CHANGED, UNCHANGED or ADDED between a
baseline snapshot and the latest rescan, and suggest next steps.

Examples:
  migclean report delta
  migclean report delta --markdown --out delta.md
  migclean report delta --baseline <snapshot-id>`,
	RunE: reportDelta,
}

func init() {
	reportDeltaCmd.Flags().StringVar(&reportBaseline, "baseline", "", "Baseline snapshot id (default: the snapshot before the latest)")
	reportDeltaCmd.Flags().BoolVar(&reportMarkdown, "markdown", false, "Render the report as markdown")
	reportDeltaCmd.Flags().StringVarP(&reportOut, "out", "o", "", "Write the report to a file instead of stdout")
	reportCmd.AddCommand(reportDeltaCmd)
	rootCmd.AddCommand(reportCmd)
}

func reportDelta(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	rep, err := a.svc.DeltaReport(cmd.Context(), sess.ID, reportBaseline)
	if err != nil {
		return err
	}

	out := os.Stdout
	if reportOut != "" {
		f, err := os.OpenFile(reportOut, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	if reportMarkdown {
		_, err = fmt.Fprint(out, rep.Markdown())
	} else {
		err = jsonEncoder(out).Encode(rep)
	}
	if err != nil {
		return err
	}
	if reportOut != "" {
		fmt.Printf("Report written to %s\n", reportOut)
	}
	return nil
}
