package cli

import (
	"fmt"
	"runtime/debug"
	"slices"
	"strings"

	"github.com/spf13/cobra"
)

var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionDeps bool

// buildInfo is what `migclean version` reports. Link-time values win over
// the VCS stamp recorded by the go command.
type buildInfo struct {
	Version   string            `json:"version"`
	Commit    string            `json:"commit"`
	Built     string            `json:"built"`
	Modified  bool              `json:"modified,omitempty"`
	GoVersion string            `json:"goVersion,omitempty"`
	Deps      map[string]string `json:"deps,omitempty"`
}

func collectBuildInfo(bi *debug.BuildInfo, ok bool) buildInfo {
	info := buildInfo{Version: Version, Commit: GitCommit, Built: BuildDate}
	if !ok || bi == nil {
		return info
	}
	info.GoVersion = bi.GoVersion
	if info.Version == "0.1.0-dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = strings.TrimPrefix(bi.Main.Version, "v")
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.Built == "unknown" {
				info.Built = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
	if len(bi.Deps) > 0 {
		info.Deps = make(map[string]string, len(bi.Deps))
		for _, d := range bi.Deps {
			v := d.Version
			if d.Replace != nil {
				v = d.Replace.Path + "@" + d.Replace.Version
			}
			info.Deps[d.Path] = v
		}
	}
	return info
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print migclean version",
	Run: func(cmd *cobra.Command, args []string) {
		info := collectBuildInfo(debug.ReadBuildInfo())
		commit := info.Commit
		if info.Modified {
			commit += " (modified)"
		}
		fmt.Printf("migclean %s\n", info.Version)
		fmt.Printf("  Commit: %s\n", commit)
		fmt.Printf("  Built:  %s\n", info.Built)
		if info.GoVersion != "" {
			fmt.Printf("  Go:     %s\n", info.GoVersion)
		}
		if versionDeps {
			for _, path := range sortedKeys(info.Deps) {
				fmt.Printf("  %s %s\n", path, info.Deps[path])
			}
		}
	},
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func init() {
	versionCmd.Flags().BoolVar(&versionDeps, "deps", false, "Also list module dependencies")
	rootCmd.AddCommand(versionCmd)
}
