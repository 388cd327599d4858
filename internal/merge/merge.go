// Package merge drives a whole-archive merge: entry set algebra over the
// base and patch archives, per-entry dispatch, and an output that either
// completes fully or is removed.
//
// Goals:
//   - one synchronous pass over the archives, deterministic entry order
//   - base-only and patch-only entries copied verbatim with timestamps
//   - shared class entries rebuilt member by member, shared metadata kept
//     from the base, other shared resources taken from the patch
//   - no half-built output survives a failure
package merge

import (
	"archive/zip"
	"fmt"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"class-merger/internal/changes"
	"class-merger/internal/config"
	"class-merger/internal/reconstruct"
	"class-merger/internal/ziputil"
)

var log = commonlog.GetLogger("merge")

// Options names the inputs of one merge run. Reference is optional; Output
// must not exist yet.
type Options struct {
	Base      string
	Patch     string
	Reference string
	Output    string
	Config    config.Config
}

// ClassResult is the reconstruction outcome kept for one shared class.
type ClassResult struct {
	Entry   string
	Fields  *changes.MemberDiff
	Methods *changes.MemberDiff
}

// Report summarizes a completed merge.
type Report struct {
	Manifest    []*changes.ClassChanges
	Diagnostics []changes.Diagnostic
	Classes     []ClassResult

	BaseOnly  int
	PatchOnly int
	Resources int
}

// Run merges the patch archive into the base archive at Options.Output.
// On any failure the partial output is removed and an error returned; the
// report is only produced on success.
func Run(opts Options) (*Report, error) {
	baseR, err := zip.OpenReader(opts.Base)
	if err != nil {
		return nil, fmt.Errorf("opening base archive: %w", err)
	}
	defer baseR.Close()
	patchR, err := zip.OpenReader(opts.Patch)
	if err != nil {
		return nil, fmt.Errorf("opening patch archive: %w", err)
	}
	defer patchR.Close()

	var refEntries map[string]*zip.File
	if opts.Reference != "" {
		refR, err := zip.OpenReader(opts.Reference)
		if err != nil {
			return nil, fmt.Errorf("opening reference archive: %w", err)
		}
		defer refR.Close()
		refEntries = ziputil.Entries(&refR.Reader)
	}

	out, err := os.OpenFile(opts.Output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("creating output archive: %w", err)
	}
	ok := false
	defer func() {
		out.Close()
		if !ok {
			os.Remove(opts.Output)
		}
	}()

	report, err := write(zip.NewWriter(out), &baseR.Reader, &patchR.Reader, refEntries, opts.Config)
	if err != nil {
		return nil, err
	}
	if err := out.Close(); err != nil {
		return nil, fmt.Errorf("closing output archive: %w", err)
	}
	ok = true
	return report, nil
}

func write(zw *zip.Writer, base, patch *zip.Reader, refEntries map[string]*zip.File, cfg config.Config) (*Report, error) {
	baseEntries := ziputil.Entries(base)
	patchEntries := ziputil.Entries(patch, cfg.ScratchPrefixes...)

	report := &Report{}
	ann := changes.NewAnnotator()

	for _, name := range ziputil.Only(baseEntries, patchEntries) {
		if err := ziputil.CopyEntry(zw, baseEntries[name]); err != nil {
			return nil, err
		}
		report.BaseOnly++
	}
	for _, name := range ziputil.Only(patchEntries, baseEntries) {
		if err := ziputil.CopyEntry(zw, patchEntries[name]); err != nil {
			return nil, err
		}
		report.PatchOnly++
	}

	for _, name := range ziputil.Intersect(baseEntries, patchEntries) {
		switch {
		case strings.HasSuffix(name, ".class"):
			if err := reconstructEntry(zw, name, baseEntries[name], patchEntries[name], refEntries[name], ann, report); err != nil {
				return nil, err
			}
		case prefixed(name, cfg.MetadataPrefixes):
			if err := ziputil.CopyEntry(zw, baseEntries[name]); err != nil {
				return nil, err
			}
			report.Resources++
		default:
			if err := ziputil.CopyEntry(zw, patchEntries[name]); err != nil {
				return nil, err
			}
			report.Resources++
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing output archive: %w", err)
	}
	report.Manifest = ann.Manifest()
	return report, nil
}

func reconstructEntry(zw *zip.Writer, name string, base, patch, ref *zip.File, ann *changes.Annotator, report *Report) error {
	log.Infof("reconstructing %s", name)

	baseData, err := ziputil.ReadEntry(base)
	if err != nil {
		return err
	}
	patchData, err := ziputil.ReadEntry(patch)
	if err != nil {
		return err
	}
	var refData []byte
	if ref != nil {
		if refData, err = ziputil.ReadEntry(ref); err != nil {
			return err
		}
	}

	res, err := reconstruct.Reconstruct(baseData, patchData, refData, ann)
	if err != nil {
		return fmt.Errorf("reconstructing %s: %w", name, err)
	}
	for _, d := range res.Diagnostics {
		log.Noticef("%s", d)
	}
	report.Diagnostics = append(report.Diagnostics, res.Diagnostics...)
	report.Classes = append(report.Classes, ClassResult{Entry: name, Fields: res.Fields, Methods: res.Methods})

	return ziputil.WriteEntry(zw, base, res.Data)
}

func prefixed(name string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
