package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/plan"
)

var (
	planJSON    bool
	planVerbose bool
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate and inspect the decision plan",
	Long: `The decision plan scores every item of the latest snapshot and assigns a
recommendation: REMOVE_STAGE_1, REMOVE_STAGE_2, REVIEW, KEEP or BLOCKED.
Items with any hard block are always BLOCKED.

Examples:
  migclean plan generate
  migclean plan show --verbose
  migclean plan hardblocks drv:oem12.inf`,
}

var planGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a plan from the latest snapshot",
	RunE:  planGenerate,
}

var planShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current plan",
	RunE:  planShow,
}

var planHardBlocksCmd = &cobra.Command{
	Use:   "hardblocks <item-id>",
	Short: "Show the hard blocks of one item",
	Args:  cobra.ExactArgs(1),
	RunE:  planHardBlocks,
}

func init() {
	planShowCmd.Flags().BoolVar(&planJSON, "json", false, "Print the plan as JSON")
	planShowCmd.Flags().BoolVarP(&planVerbose, "verbose", "v", false, "Include rationale for every item")
	planCmd.AddCommand(planGenerateCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planHardBlocksCmd)
	rootCmd.AddCommand(planCmd)
}

func planGenerate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	p, err := a.svc.GeneratePlan(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\xe2\x9c\x85 Plan %s generated.\n\n", p.ID)
	printPlan(p, false)
	return nil
}

func planShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	p, err := a.svc.CurrentPlan(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	if planJSON {
		return printJSON(p)
	}
	printPlan(p, planVerbose)
	return nil
}

func planHardBlocks(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	p, err := a.svc.CurrentPlan(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	it := p.Item(args[0])
	if it == nil {
		return fmt.Errorf("item %s is not in the current plan", args[0])
	}
	if !it.Blocked() {
		fmt.Printf("%s has no hard blocks.\n", it.ItemID)
		return nil
	}
	for _, hb := range it.HardBlocks {
		fmt.Printf("  \xf0\x9f\x94\x92 %-26s %s\n", hb.Code, hb.Message)
	}
	return nil
}

func printPlan(p *plan.Plan, verbose bool) {
	counts := make(map[string]int)
	fmt.Printf("  %-40s %6s %6s %6s  %s\n", "ITEM", "BASE", "AI", "FINAL", "RECOMMENDATION")
	fmt.Println(strings.Repeat("─", 80))
	for _, it := range p.Items {
		counts[string(it.Recommendation)]++
		fmt.Printf("  %-40s %6d %+6d %6d  %s\n", it.ItemID, it.BaselineScore, it.AIScoreDelta, it.FinalScore, it.Recommendation)
		if !verbose {
			continue
		}
		for _, r := range it.EngineRationale {
			fmt.Printf("      engine: %s\n", r)
		}
		for _, r := range it.AIRationale {
			fmt.Printf("      advisor: %s\n", r)
		}
		for _, n := range it.Notes {
			fmt.Printf("      note: %s\n", n)
		}
	}
	fmt.Println(strings.Repeat("─", 80))
	for _, rec := range []string{"REMOVE_STAGE_1", "REMOVE_STAGE_2", "REVIEW", "KEEP", "BLOCKED"} {
		if counts[rec] > 0 {
			fmt.Printf("  %-16s %d\n", rec, counts[rec])
		}
	}
}
