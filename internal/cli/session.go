package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Create and inspect cleanup sessions",
	Long: `A session tracks one cleanup from scan to execution:

  NEW -> SCANNED -> PLANNED -> PENDING_APPROVALS -> READY_TO_EXECUTE -> EXECUTING -> COMPLETED

Examples:
  migclean session new        # Start a new session
  migclean session show       # Show the current session
  migclean session reset      # Move a FAILED session back to NEW`,
}

var sessionNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Start a new session",
	RunE:  sessionNew,
}

var sessionShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current session",
	RunE:  sessionShow,
}

var sessionResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Move a FAILED session back to NEW",
	RunE:  sessionReset,
}

func init() {
	sessionCmd.AddCommand(sessionNewCmd)
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionResetCmd)
	rootCmd.AddCommand(sessionCmd)
}

func sessionNew(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.svc.StartSession(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Printf("\xe2\x9c\x85 Session %s created.\n", sess.ID)
	return nil
}

func sessionShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	sess, err := a.session(ctx)
	if err != nil {
		return err
	}

	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Println("  migclean Session")
	fmt.Println("═══════════════════════════════════════════════════════")
	fmt.Printf("  ID:       %s\n", sess.ID)
	fmt.Printf("  Status:   %s\n", sess.Status)
	fmt.Printf("  Created:  %s\n", sess.CreatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Updated:  %s\n", sess.UpdatedAt.Local().Format("2006-01-02 15:04:05"))
	fmt.Printf("  Version:  %s\n", sess.AppVersion)

	snaps, err := a.svc.ListSnapshots(ctx, sess.ID)
	if err != nil {
		return err
	}
	fmt.Printf("  Scans:    %d\n", len(snaps))

	facts, err := a.svc.ListFacts(ctx, sess.ID)
	if err != nil {
		return err
	}
	if len(facts) > 0 {
		pairs := make([]string, 0, len(facts))
		for _, f := range facts {
			pairs = append(pairs, f.Key+"="+f.Value)
		}
		fmt.Printf("  Facts:    %s\n", strings.Join(pairs, ", "))
	}
	return nil
}

func sessionReset(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}
	if _, err := a.svc.ResetSession(cmd.Context(), sess.ID); err != nil {
		return err
	}
	fmt.Printf("Session %s reset to NEW.\n", sess.ID)
	return nil
}
