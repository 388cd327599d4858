// Package main provides the class-merger CLI that merges a compiled patch
// archive into an obfuscated base archive, reconciling every shared class
// member by member.
//
// Typical run:
//
//	class-merger --base client.jar --patch patch.jar --out merged.jar
//
// Key design goals:
//   - Deterministic output (sorted entry order, per-member merge decisions)
//   - No half-built output: a failed merge removes the partial archive
//   - Reporting as data (JSON manifest, unified bytecode diffs) rather than
//     console noise
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
	"github.com/tliron/commonlog"

	"class-merger/internal/config"
	"class-merger/internal/mappings"
	"class-merger/internal/merge"
	"class-merger/internal/report"

	_ "github.com/tliron/commonlog/simple"
)

type options struct {
	base      string
	patch     string
	reference string
	out       string
	conf      string
	manifest  string
	reportTo  string
	context   int
	mapFile   string
	force     bool
	verbose   int
}

func parseFlags() (*options, error) {
	opts := &options{}

	pflag.StringVarP(&opts.base, "base", "b", "", "Base archive (obfuscated original).")
	pflag.StringVarP(&opts.patch, "patch", "p", "", "Patch archive to merge in.")
	pflag.StringVarP(&opts.reference, "reference", "r", "", "Optional reference archive for resolving ambiguous links.")
	pflag.StringVarP(&opts.out, "out", "o", "", "Merged output archive. Skipped when it already exists (see --force).")
	pflag.StringVarP(&opts.conf, "config", "c", "", "Merge policy YAML; built-in defaults when absent.")
	pflag.StringVar(&opts.manifest, "manifest", "", "Write the per-class change manifest as JSON to this path.")
	pflag.StringVar(&opts.reportTo, "report", "", "Write a textual change report with bytecode diffs to this path ('-' for stdout).")
	pflag.IntVar(&opts.context, "context", 4, "Context lines in report diffs.")
	pflag.StringVar(&opts.mapFile, "mappings", "", "Tiny mapping file to augment with bonus field rows after the merge.")
	pflag.BoolVarP(&opts.force, "force", "f", false, "Re-merge even when the output archive already exists.")
	pflag.CountVarP(&opts.verbose, "verbose", "v", "Increase log verbosity (repeatable).")

	pflag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s --base base.jar --patch patch.jar --out merged.jar [flags]\n", name)
		fmt.Fprintln(os.Stderr, "\nMerges a compiled patch archive into a base archive, class by class.")
		fmt.Fprintln(os.Stderr, "\nFlags:")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if opts.base == "" || opts.patch == "" || opts.out == "" {
		return nil, fmt.Errorf("--base, --patch and --out are required")
	}
	if pflag.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", pflag.Args())
	}
	return opts, nil
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "class-merger: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	opts, err := parseFlags()
	if err != nil {
		pflag.Usage()
		return err
	}
	commonlog.Configure(opts.verbose, nil)

	cfg := config.Default()
	if opts.conf != "" {
		if cfg, err = config.Load(opts.conf); err != nil {
			return err
		}
	}

	merged := true
	if _, err := os.Stat(opts.out); err == nil {
		if !opts.force {
			commonlog.NewInfoMessage(0, "merged output already exists, skipping merge")
			merged = false
		} else if err := os.Remove(opts.out); err != nil {
			return fmt.Errorf("removing stale output: %w", err)
		}
	}

	if merged {
		rep, err := merge.Run(merge.Options{
			Base:      opts.base,
			Patch:     opts.patch,
			Reference: opts.reference,
			Output:    opts.out,
			Config:    cfg,
		})
		if err != nil {
			return err
		}
		if opts.manifest != "" {
			if err := writeManifest(opts.manifest, rep); err != nil {
				return err
			}
		}
		if opts.reportTo != "" {
			if err := writeReport(opts.reportTo, rep, opts.context); err != nil {
				return err
			}
		}
	}

	if opts.mapFile != "" {
		n, err := mappings.Augment(opts.mapFile, cfg.Mappings)
		if err != nil {
			return err
		}
		commonlog.NewInfoMessage(0, fmt.Sprintf("appended %d bonus mapping row(s)", n))
	}
	return nil
}

func writeManifest(path string, rep *merge.Report) error {
	data, err := json.MarshalIndent(rep.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func writeReport(path string, rep *merge.Report, context int) error {
	var w io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating report: %w", err)
		}
		defer f.Close()
		w = f
	}
	return report.Write(w, rep, report.Options{Context: context, Listings: true})
}
