// Package config holds the merge policy knobs that are data rather than
// code: which archive namespaces are scratch or protected, and which bonus
// mapping rows the augmentation step appends.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// BonusMapping names one field row to append to the mapping table: the
// field's intermediate name in the existing table and the friendly name it
// should be published under.
type BonusMapping struct {
	Intermediate string `yaml:"intermediate"`
	Name         string `yaml:"name"`
}

type Mappings struct {
	// Suffix marks already-augmented intermediate names; seeing it makes
	// the augmentation step a no-op.
	Suffix string         `yaml:"suffix"`
	Bonus  []BonusMapping `yaml:"bonus"`
}

type Config struct {
	// ScratchPrefixes are patch-archive namespaces excluded from entry
	// algebra entirely.
	ScratchPrefixes []string `yaml:"scratchPrefixes"`
	// MetadataPrefixes are namespaces where the base archive's copy always
	// wins, protecting its manifest and signature area.
	MetadataPrefixes []string `yaml:"metadataPrefixes"`
	Mappings         Mappings `yaml:"mappings"`
}

// Default is the policy used when no config file is given.
func Default() Config {
	return Config{
		ScratchPrefixes:  []string{"srg/"},
		MetadataPrefixes: []string{"META-INF/"},
		Mappings: Mappings{
			Suffix: "_OF",
			Bonus: []BonusMapping{
				{Intermediate: "field_1937", Name: "CLOUDS"},
				{Intermediate: "field_4062", Name: "renderDistance"},
			},
		},
	}
}

// Load reads a policy file, filling unset fields from Default. A missing
// file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if file.ScratchPrefixes != nil {
		cfg.ScratchPrefixes = file.ScratchPrefixes
	}
	if file.MetadataPrefixes != nil {
		cfg.MetadataPrefixes = file.MetadataPrefixes
	}
	if file.Mappings.Suffix != "" {
		cfg.Mappings.Suffix = file.Mappings.Suffix
	}
	if file.Mappings.Bonus != nil {
		cfg.Mappings.Bonus = file.Mappings.Bonus
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	for _, p := range append(append([]string{}, c.ScratchPrefixes...), c.MetadataPrefixes...) {
		if p == "" || !strings.HasSuffix(p, "/") {
			return fmt.Errorf("prefix %q must be a non-empty directory prefix ending in /", p)
		}
	}
	for _, b := range c.Mappings.Bonus {
		if b.Intermediate == "" || b.Name == "" {
			return fmt.Errorf("bonus mapping needs both intermediate and name, got %+v", b)
		}
	}
	return nil
}
