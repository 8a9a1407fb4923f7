package rules

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is an overlay that adds signals, hard blocks and keyword sets to a
// base rule set. Packs cannot change limits or bands.
type Pack struct {
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	PackVersion string              `yaml:"version"`
	HardBlocks  []HardBlockDef      `yaml:"hard_blocks"`
	KeywordSets map[string][]string `yaml:"keyword_sets"`
	Signals     []Signal            `yaml:"signals"`
}

// PackInfo summarises a pack for listing.
type PackInfo struct {
	Name        string
	Description string
	Version     string
	Enabled     bool
	Path        string
	SignalCount int
	BlockCount  int
	Err         error
}

// LoadPacks merges every enabled *.yaml pack in dir into a copy of base.
// Files whose name starts with "_" are listed but not applied. The merged
// rule set is re-validated; a pack that introduces a duplicate signal id
// fails the whole load.
func LoadPacks(dir string, base *RuleSet) (*RuleSet, []PackInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil, nil
		}
		return nil, nil, err
	}

	result := cloneRuleSet(base)
	var infos []PackInfo

	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		baseName := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		enabled := !strings.HasPrefix(baseName, "_")

		pack, err := loadPack(path)
		if err != nil {
			infos = append(infos, PackInfo{Name: baseName, Enabled: enabled, Path: path, Err: err})
			continue
		}
		info := PackInfo{
			Name:        pack.Name,
			Description: pack.Description,
			Version:     pack.PackVersion,
			Enabled:     enabled,
			Path:        path,
			SignalCount: len(pack.Signals),
			BlockCount:  len(pack.HardBlocks),
		}
		if info.Name == "" {
			info.Name = baseName
		}
		infos = append(infos, info)

		if enabled {
			mergePackInto(result, pack)
		}
	}

	if err := result.Validate(); err != nil {
		return nil, infos, err
	}
	return result, infos, nil
}

func loadPack(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pack %s: %w", path, err)
	}
	return &pack, nil
}

// mergePackInto appends signals and hard blocks after the base ones and
// unions keyword sets word by word.
func mergePackInto(target *RuleSet, pack *Pack) {
	target.Signals = append(target.Signals, pack.Signals...)
	target.HardBlocks = append(target.HardBlocks, pack.HardBlocks...)

	for name, words := range pack.KeywordSets {
		existing := make(map[string]bool)
		for _, w := range target.KeywordSets[name] {
			existing[strings.ToLower(w)] = true
		}
		for _, w := range words {
			if !existing[strings.ToLower(w)] {
				target.KeywordSets[name] = append(target.KeywordSets[name], w)
				existing[strings.ToLower(w)] = true
			}
		}
	}
}

func cloneRuleSet(rs *RuleSet) *RuleSet {
	clone := &RuleSet{
		Version:   rs.Version,
		Limits:    rs.Limits,
		PostRules: rs.PostRules,
	}
	clone.Bands = append([]Band(nil), rs.Bands...)
	clone.HardBlocks = append([]HardBlockDef(nil), rs.HardBlocks...)
	clone.Signals = append([]Signal(nil), rs.Signals...)
	clone.KeywordSets = make(map[string][]string, len(rs.KeywordSets))
	for k, v := range rs.KeywordSets {
		clone.KeywordSets[k] = append([]string(nil), v...)
	}
	return clone
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
