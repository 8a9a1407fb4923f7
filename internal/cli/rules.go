package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/migclean/internal/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate scoring rules",
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Validate a rule set file (default: the configured rule set and enabled packs)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  rulesValidate,
}

var packsCmd = &cobra.Command{
	Use:   "packs",
	Short: "Manage rule packs",
	Long: `Rule packs are YAML overlays that add signals, hard blocks and keyword
sets to the base rule set. Packs live in ~/.migclean/rules.d/; a file whose
name starts with "_" is disabled.

Examples:
  migclean rules packs list
  migclean rules packs enable amd-legacy
  migclean rules packs disable amd-legacy
  migclean rules packs show amd-legacy`,
}

var packsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed rule packs",
	RunE:  packsList,
}

var packsEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packsEnable,
}

var packsDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a rule pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packsDisable,
}

var packsShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show a rule pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packsShow,
}

func init() {
	packsCmd.AddCommand(packsListCmd, packsEnableCmd, packsDisableCmd, packsShowCmd)
	rulesCmd.AddCommand(rulesValidateCmd, packsCmd)
	rootCmd.AddCommand(rulesCmd)
}

func rulesValidate(cmd *cobra.Command, args []string) error {
	if len(args) == 1 {
		rs, err := rules.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("\xe2\x9c\x85 %s: %d signals, %d hard blocks, %d bands\n", args[0], len(rs.Signals), len(rs.HardBlocks), len(rs.Bands))
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rs, err := loadRules(cfg)
	if err != nil {
		return err
	}
	fmt.Printf("\xe2\x9c\x85 rule set v%d: %d signals, %d hard blocks, %d bands\n", rs.Version, len(rs.Signals), len(rs.HardBlocks), len(rs.Bands))
	return nil
}

func packsDir() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(cfg.PacksDir, 0700); err != nil {
		return "", err
	}
	return cfg.PacksDir, nil
}

func packsList(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	_, infos, err := rules.LoadPacks(dir, rules.Default())
	if err != nil && len(infos) == 0 {
		return fmt.Errorf("failed to load packs: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No rule packs installed.")
		fmt.Printf("\nTo install packs, copy YAML files to: %s\n", dir)
		return nil
	}

	fmt.Println("Installed Rule Packs:")
	fmt.Println(strings.Repeat("─", 60))
	for _, info := range infos {
		status := "\xe2\x9c\x85"
		if !info.Enabled {
			status = "\xe2\x9d\x8c"
		}
		fmt.Printf("  %s  %-25s %s\n", status, info.Name, info.Description)
		if info.Err != nil {
			fmt.Printf("       error: %v\n", info.Err)
			continue
		}
		if info.Version != "" {
			fmt.Printf("       v%s  (%d signals, %d hard blocks)\n", info.Version, info.SignalCount, info.BlockCount)
		}
	}
	fmt.Println(strings.Repeat("─", 60))
	if err != nil {
		fmt.Printf("\n\xe2\x9a\xa0\xef\xb8\x8f  merged rule set is invalid: %v\n", err)
	}
	fmt.Printf("\nPacks directory: %s\n", dir)
	return nil
}

func packsEnable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	name := args[0]
	disabledPath := filepath.Join(dir, "_"+name+".yaml")
	enabledPath := filepath.Join(dir, name+".yaml")

	if _, err := os.Stat(disabledPath); err == nil {
		if err := os.Rename(disabledPath, enabledPath); err != nil {
			return fmt.Errorf("failed to enable pack: %w", err)
		}
		fmt.Printf("\xe2\x9c\x85 Pack '%s' enabled.\n", name)
		return nil
	}
	if _, err := os.Stat(enabledPath); err == nil {
		fmt.Printf("Pack '%s' is already enabled.\n", name)
		return nil
	}
	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packsDisable(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	name := args[0]
	enabledPath := filepath.Join(dir, name+".yaml")
	disabledPath := filepath.Join(dir, "_"+name+".yaml")

	if _, err := os.Stat(enabledPath); err == nil {
		if err := os.Rename(enabledPath, disabledPath); err != nil {
			return fmt.Errorf("failed to disable pack: %w", err)
		}
		fmt.Printf("\xe2\x9d\x8c Pack '%s' disabled.\n", name)
		return nil
	}
	if _, err := os.Stat(disabledPath); err == nil {
		fmt.Printf("Pack '%s' is already disabled.\n", name)
		return nil
	}
	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}

func packsShow(cmd *cobra.Command, args []string) error {
	dir, err := packsDir()
	if err != nil {
		return err
	}

	name := args[0]
	for _, candidate := range []string{name + ".yaml", "_" + name + ".yaml"} {
		data, err := os.ReadFile(filepath.Join(dir, candidate))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	}
	return fmt.Errorf("pack '%s' not found in %s", name, dir)
}
