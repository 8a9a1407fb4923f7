package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/advisor"
	"github.com/gzhole/migclean/internal/pipeline"
)

var _ advisor.Backend = (*pipeline.Service)(nil)

var adviseJSON bool

var adviseCmd = &cobra.Command{
	Use:   "advise [message]",
	Short: "Ask the AI advisor about the current plan",
	Long: `Ask an OpenAI-compatible model about the current session. The advisor can
read the inventory, the plan and hard blocks, and may create proposals. It
can never approve, merge or execute anything; those steps stay with you.

The API key is read from the environment variable named by advisor.api_key_env
in the config file (default OPENAI_API_KEY).

Examples:
  migclean advise "Why is oem12.inf only REVIEW?"
  migclean advise                       # interactive conversation`,
	RunE: advise,
}

func init() {
	adviseCmd.Flags().BoolVar(&adviseJSON, "json", false, "Print the advisor result as JSON")
	rootCmd.AddCommand(adviseCmd)
}

func advise(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.session(cmd.Context())
	if err != nil {
		return err
	}

	client, err := advisor.NewOpenAIClient(advisor.OpenAIConfig{
		APIKey:  a.cfg.APIKey(),
		BaseURL: a.cfg.Advisor.BaseURL,
		Model:   a.cfg.Advisor.Model,
		Retries: a.cfg.Advisor.MaxRetries,
	}, a.log)
	if err != nil {
		return fmt.Errorf("advisor unavailable (set %s): %w", a.cfg.Advisor.APIKeyEnv, err)
	}
	policy := a.svc.Policy()
	adv := advisor.New(client, advisor.NewDispatcher(a.svc, policy), policy, "", a.log)

	if len(args) > 0 {
		return adviseOnce(cmd, adv, sess.ID, strings.Join(args, " "))
	}

	fmt.Printf("Advisor for session %s. Type 'exit' to quit, 'reset' to start over.\n", sess.ID)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			continue
		case "exit", "quit":
			return nil
		case "reset":
			adv.Reset()
			fmt.Println("Conversation cleared.")
			continue
		}
		if err := adviseOnce(cmd, adv, sess.ID, line); err != nil {
			fmt.Fprintf(os.Stderr, "\xe2\x9d\x8c %v\n", err)
		}
	}
}

func adviseOnce(cmd *cobra.Command, adv *advisor.Advisor, sessionID, message string) error {
	res, err := adv.Chat(cmd.Context(), sessionID, message)
	if err != nil {
		return err
	}
	if adviseJSON {
		return printJSON(res)
	}

	for _, tc := range res.ToolCalls {
		fmt.Printf("  \xf0\x9f\x94\xa7 %s(%s)\n", tc.Name, tc.Arguments)
	}
	if res.Content != "" {
		fmt.Println(res.Content)
	}
	if len(res.Violations) > 0 {
		fmt.Println()
		for _, v := range res.Violations {
			fmt.Printf("  \xe2\x9a\xa0\xef\xb8\x8f  %s\n", v)
		}
	}
	if res.Blocked {
		fmt.Println("\xf0\x9f\x9b\x91 This response was blocked and must not be acted on.")
	}
	return nil
}
