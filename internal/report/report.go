// Package report renders a merge outcome as text: the per-class change
// manifest, reconciliation diagnostics, and unified diffs of changed
// method bodies as instruction listings.
package report

import (
	"fmt"
	"io"

	difflib "github.com/pmezard/go-difflib/difflib"

	"class-merger/internal/changes"
	"class-merger/internal/classfile"
	"class-merger/internal/merge"
)

// Options controls report rendering.
type Options struct {
	// Context is the number of context lines in unified hunks. If 0,
	// default to 4.
	Context int

	// Listings enables the per-method bytecode diffs. Off, the report is
	// the manifest and diagnostics only.
	Listings bool
}

// Write renders the report.
func Write(w io.Writer, rep *merge.Report, opt Options) error {
	for _, c := range rep.Manifest {
		if _, err := fmt.Fprintf(w, "class %s\n", c.Name); err != nil {
			return err
		}
		sections := []struct {
			label string
			keys  []string
		}{
			{"dropped field", c.DroppedFields},
			{"added field", c.AddedFields},
			{"changed field", c.ChangedFields},
			{"dropped method", c.DroppedMethods},
			{"added method", c.AddedMethods},
			{"changed method", c.ChangedMethods},
		}
		for _, s := range sections {
			for _, key := range s.keys {
				if _, err := fmt.Fprintf(w, "  %s %s\n", s.label, key); err != nil {
					return err
				}
			}
		}
	}

	for _, d := range rep.Diagnostics {
		if _, err := fmt.Fprintf(w, "note: %s\n", d); err != nil {
			return err
		}
	}

	if !opt.Listings {
		return nil
	}
	for _, cr := range rep.Classes {
		if err := writeListings(w, cr, opt); err != nil {
			return err
		}
	}
	return nil
}

// writeListings emits one unified diff per code-changed method of a class.
func writeListings(w io.Writer, cr merge.ClassResult, opt Options) error {
	ctx := opt.Context
	if ctx <= 0 {
		ctx = 4
	}
	for _, p := range cr.Methods.Modified {
		if p.Change&changes.ChangeCode == 0 {
			continue
		}
		u := difflib.UnifiedDiff{
			A:        listingLines(p.Original),
			B:        listingLines(p.Patched),
			FromFile: fmt.Sprintf("base %s.%s", cr.Methods.Class, p.Original.Key()),
			ToFile:   fmt.Sprintf("patch %s.%s", cr.Methods.Class, p.Patched.Key()),
			Context:  ctx,
		}
		s, err := difflib.GetUnifiedDiffString(u)
		if err != nil {
			return fmt.Errorf("diffing %s.%s: %w", cr.Methods.Class, p.Original.Key(), err)
		}
		if _, err := io.WriteString(w, s); err != nil {
			return err
		}
	}
	return nil
}

func listingLines(m *classfile.Member) []string {
	code := m.Code()
	if code == nil {
		return []string{}
	}
	listing := code.Listing()
	lines := make([]string, len(listing))
	for i, l := range listing {
		lines[i] = l + "\n"
	}
	return lines
}
