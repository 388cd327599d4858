package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	cfg := Default()
	if len(cfg.ScratchPrefixes) != 1 || cfg.ScratchPrefixes[0] != "srg/" {
		t.Fatalf("scratch prefixes = %v", cfg.ScratchPrefixes)
	}
	if len(cfg.MetadataPrefixes) != 1 || cfg.MetadataPrefixes[0] != "META-INF/" {
		t.Fatalf("metadata prefixes = %v", cfg.MetadataPrefixes)
	}
	if cfg.Mappings.Suffix != "_OF" || len(cfg.Mappings.Bonus) != 2 {
		t.Fatalf("mappings = %+v", cfg.Mappings)
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ScratchPrefixes) != 1 || cfg.ScratchPrefixes[0] != "srg/" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadOverridesAndFills(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := "scratchPrefixes: [tmp/, gen/]\nmappings:\n  suffix: _X\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.ScratchPrefixes) != 2 || cfg.ScratchPrefixes[1] != "gen/" {
		t.Fatalf("scratch prefixes = %v", cfg.ScratchPrefixes)
	}
	if cfg.Mappings.Suffix != "_X" {
		t.Fatalf("suffix = %q", cfg.Mappings.Suffix)
	}
	// Unset sections keep their defaults.
	if len(cfg.MetadataPrefixes) != 1 || cfg.MetadataPrefixes[0] != "META-INF/" {
		t.Fatalf("metadata prefixes = %v", cfg.MetadataPrefixes)
	}
	if len(cfg.Mappings.Bonus) != 2 {
		t.Fatalf("bonus rows = %v", cfg.Mappings.Bonus)
	}
}

func TestLoadRejectsBadPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("scratchPrefixes: [noslash]\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("prefix without trailing slash accepted")
	}
}
