package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/inventory"
)

var factSource string

var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Record migration context that scoring can use",
	Long: `User facts describe the previous machine. Signals in the rule set may
require them (for example old_platform_vendor=intel), and a merge run with
--with-facts allows larger advisor score deltas.

Examples:
  migclean facts add old_platform_vendor intel
  migclean facts add old_gpu_vendor nvidia
  migclean facts list`,
}

var factsAddCmd = &cobra.Command{
	Use:   "add <key> <value>",
	Short: "Add a fact to the current session",
	Args:  cobra.ExactArgs(2),
	RunE:  factsAdd,
}

var factsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the facts of the current session",
	RunE:  factsList,
}

func init() {
	factsAddCmd.Flags().StringVar(&factSource, "source", string(inventory.FactSourceUser), "Who supplied the fact: USER or AI")
	factsCmd.AddCommand(factsAddCmd)
	factsCmd.AddCommand(factsListCmd)
	rootCmd.AddCommand(factsCmd)
}

func factsAdd(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	f, err := a.svc.AddFact(cmd.Context(), sess.ID, args[0], args[1], inventory.FactSource(strings.ToUpper(factSource)))
	if err != nil {
		return err
	}
	fmt.Printf("Fact %s=%s recorded (%s).\n", f.Key, f.Value, f.Source)
	return nil
}

func factsList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	facts, err := a.svc.ListFacts(cmd.Context(), sess.ID)
	if err != nil {
		return err
	}
	if len(facts) == 0 {
		fmt.Println("No facts recorded.")
		return nil
	}
	for _, f := range facts {
		fmt.Printf("  %-25s %-20s %s\n", f.Key, f.Value, f.Source)
	}
	return nil
}
