package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/approval"
	"github.com/gzhole/migclean/internal/guard"
	"github.com/gzhole/migclean/internal/proposal"
)

var (
	proposalFile      string
	proposalYes       bool
	proposalWithFacts bool
)

var proposalCmd = &cobra.Command{
	Use:   "proposal",
	Short: "Review advisor proposals",
	Long: `Proposals are bounded sets of plan changes (at most five) suggested by the
advisor or written by hand. They are checked by the safety guard when created,
must be approved by you, and only change the plan when merged.

Examples:
  migclean proposal create --file changes.json
  migclean proposal list
  migclean proposal show <id>
  migclean proposal approve <id>
  migclean proposal merge <id> --with-facts`,
}

var proposalCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a proposal from a JSON file",
	RunE:  proposalCreate,
}

var proposalListCmd = &cobra.Command{
	Use:   "list",
	Short: "List proposals of the current session",
	RunE:  proposalList,
}

var proposalShowCmd = &cobra.Command{
	Use:   "show <proposal-id>",
	Short: "Show a proposal",
	Args:  cobra.ExactArgs(1),
	RunE:  proposalShow,
}

var proposalApproveCmd = &cobra.Command{
	Use:   "approve <proposal-id>",
	Short: "Approve a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE:  proposalApprove,
}

var proposalRejectCmd = &cobra.Command{
	Use:   "reject <proposal-id>",
	Short: "Reject a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE:  proposalReject,
}

var proposalMergeCmd = &cobra.Command{
	Use:   "merge <proposal-id>",
	Short: "Merge an approved proposal into the current plan",
	Args:  cobra.ExactArgs(1),
	RunE:  proposalMerge,
}

func init() {
	proposalCreateCmd.Flags().StringVarP(&proposalFile, "file", "f", "", "JSON file with {title, changes, evidence}")
	_ = proposalCreateCmd.MarkFlagRequired("file")
	proposalApproveCmd.Flags().BoolVarP(&proposalYes, "yes", "y", false, "Approve without the interactive prompt")
	proposalMergeCmd.Flags().BoolVar(&proposalWithFacts, "with-facts", false, "The changes are backed by recorded user facts (raises the delta ceiling)")

	proposalCmd.AddCommand(proposalCreateCmd)
	proposalCmd.AddCommand(proposalListCmd)
	proposalCmd.AddCommand(proposalShowCmd)
	proposalCmd.AddCommand(proposalApproveCmd)
	proposalCmd.AddCommand(proposalRejectCmd)
	proposalCmd.AddCommand(proposalMergeCmd)
	rootCmd.AddCommand(proposalCmd)
}

func proposalCreate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(proposalFile)
	if err != nil {
		return err
	}
	var req proposal.CreateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return fmt.Errorf("parse %s: %w", proposalFile, err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	p, err := a.svc.CreateProposal(cmd.Context(), sess.ID, req)
	if err != nil {
		var verr *guard.ValidationError
		if errors.As(err, &verr) {
			fmt.Println("\xe2\x9d\x8c Proposal rejected by the safety guard:")
			for _, v := range verr.Violations {
				fmt.Printf("  • %s\n", v)
			}
		}
		return err
	}
	fmt.Printf("\xe2\x9c\x85 Proposal %s created (risk %s). Awaiting approval.\n", p.ID, p.Risk)
	return nil
}

func proposalList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	list, err := a.svc.ListProposals(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No proposals.")
		return nil
	}
	for _, p := range list {
		fmt.Printf("  %s  %-9s %-6s %d change(s)  %s\n", p.ID, p.Status, p.Risk, len(p.Changes), p.Title)
	}
	return nil
}

func proposalShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.svc.GetProposal(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return printJSON(p)
}

func describeChange(c proposal.Change) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", c.Type, c.TargetID)
	switch c.Type {
	case proposal.ChangeScoreDelta:
		fmt.Fprintf(&b, " %+d", c.DeltaValue())
	case proposal.ChangeRecommendation:
		fmt.Fprintf(&b, " -> %s", c.Value)
	case proposal.ChangeNoteAdd:
		fmt.Fprintf(&b, " %q", c.Note)
	}
	fmt.Fprintf(&b, ": %s", c.Reason)
	return b.String()
}

func proposalApprove(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	p, err := a.svc.GetProposal(ctx, args[0])
	if err != nil {
		return err
	}
	if !proposalYes {
		details := make([]string, 0, len(p.Changes))
		for _, c := range p.Changes {
			details = append(details, describeChange(c))
		}
		res := approval.Ask(approval.Prompt{
			Title:   "Approve proposal",
			Subject: fmt.Sprintf("%s (risk %s)", p.Title, p.Risk),
			Details: details,
		})
		if !res.Approved {
			fmt.Fprintf(os.Stderr, "\n\xe2\x9d\x8c Proposal not approved (%s)\n", res.UserAction)
			return nil
		}
	}
	if _, err := a.svc.ApproveProposal(ctx, p.ID); err != nil {
		return err
	}
	fmt.Printf("\xe2\x9c\x85 Proposal %s approved. Run 'migclean proposal merge %s' to apply it.\n", p.ID, p.ID)
	return nil
}

func proposalReject(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.svc.RejectProposal(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Proposal %s rejected.\n", args[0])
	return nil
}

func proposalMerge(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.svc.MergeProposal(cmd.Context(), args[0], proposalWithFacts)
	if err != nil {
		return err
	}
	fmt.Printf("Merged proposal %s: %d applied, %d skipped.\n", res.ProposalID, len(res.Applied), len(res.Skipped))
	for _, c := range res.Applied {
		fmt.Printf("  \xe2\x9c\x85 %s %s: %s\n", c.Change.Type, c.Change.TargetID, c.Message)
	}
	for _, c := range res.Skipped {
		fmt.Printf("  \xe2\x9d\x8c %s %s: %s\n", c.Change.Type, c.Change.TargetID, c.Message)
	}
	return nil
}
