// Package changes classifies the members of two compiled versions of one
// class into modified, lost and gained buckets, reconciles synthetic lambda
// holders the compiler renamed on unrelated recompilation, and accumulates
// a per-class change manifest.
//
// Goals:
//   - Deterministic buckets (sorted by position in the originating list,
//     never by map iteration order)
//   - Total coverage: every member key lands in exactly one bucket
//   - Structured diagnostics instead of console writes
package changes

import (
	"errors"
	"fmt"
	"sort"

	"class-merger/internal/classfile"
)

// ErrInconsistent marks the key-in-neither-version defect, which is
// unreachable on well-formed input and therefore fatal.
var ErrInconsistent = errors.New("member diff inconsistency")

// Diagnostic is a recoverable finding surfaced to the caller instead of a
// console stream.
type Diagnostic struct {
	Class  string
	Detail string
}

func (d Diagnostic) String() string { return d.Class + ": " + d.Detail }

// Pair is one member present in both versions.
type Pair struct {
	Original *classfile.Member
	Patched  *classfile.Member
	Changed  bool
	Change   ChangeSet
}

// RenameFix records that the patched member From is the same logical member
// as the original member To, under a compiler-assigned rename. Keys are
// "<class>#<name><desc>".
type RenameFix struct {
	From string
	To   string
}

// MemberDiff partitions one class's field or method lists.
type MemberDiff struct {
	Class    string
	Modified []Pair
	Lost     []*classfile.Member
	Gained   []*classfile.Member
}

// NewMemberDiff classifies every member key of the original and patched
// lists. Modified and Lost are ordered by original-list position, Gained by
// patched-list position. A key in neither list returns ErrInconsistent.
func NewMemberDiff(class string, original, patched []*classfile.Member) (*MemberDiff, error) {
	originalByKey := index(original)
	patchedByKey := index(patched)

	keys := make([]string, 0, len(original)+len(patched))
	seen := make(map[string]struct{}, len(original)+len(patched))
	for _, m := range original {
		if _, dup := seen[m.Key()]; !dup {
			seen[m.Key()] = struct{}{}
			keys = append(keys, m.Key())
		}
	}
	for _, m := range patched {
		if _, dup := seen[m.Key()]; !dup {
			seen[m.Key()] = struct{}{}
			keys = append(keys, m.Key())
		}
	}

	d := &MemberDiff{Class: class}
	for _, key := range keys {
		o, hasO := originalByKey[key]
		p, hasP := patchedByKey[key]
		switch {
		case hasO && hasP:
			changed, cs := Compare(o, p)
			d.Modified = append(d.Modified, Pair{Original: o, Patched: p, Changed: changed, Change: cs})
		case hasO:
			d.Lost = append(d.Lost, o)
		case hasP:
			d.Gained = append(d.Gained, p)
		default:
			return nil, fmt.Errorf("%w: unable to find %s in either version of %s", ErrInconsistent, key, class)
		}
	}

	originalPos := positions(original)
	patchedPos := positions(patched)
	sort.SliceStable(d.Modified, func(i, j int) bool {
		return originalPos[d.Modified[i].Original.Key()] < originalPos[d.Modified[j].Original.Key()]
	})
	sort.SliceStable(d.Lost, func(i, j int) bool {
		return originalPos[d.Lost[i].Key()] < originalPos[d.Lost[j].Key()]
	})
	sort.SliceStable(d.Gained, func(i, j int) bool {
		return patchedPos[d.Gained[i].Key()] < patchedPos[d.Gained[j].Key()]
	})
	return d, nil
}

func index(members []*classfile.Member) map[string]*classfile.Member {
	m := make(map[string]*classfile.Member, len(members))
	for _, mb := range members {
		m[mb.Key()] = mb
	}
	return m
}

func positions(members []*classfile.Member) map[string]int {
	m := make(map[string]int, len(members))
	for i, mb := range members {
		if _, dup := m[mb.Key()]; !dup {
			m[mb.Key()] = i
		}
	}
	return m
}

// Annotate feeds the diff into the manifest sink. field selects the
// field-flavored manifest buckets.
func (d *MemberDiff) Annotate(a *Annotator, field bool) {
	for _, m := range d.Lost {
		if field {
			a.DropField(d.Class, fieldKey(m))
		} else {
			a.DropMethod(d.Class, m.Key())
		}
	}
	for _, m := range d.Gained {
		if field {
			a.AddField(d.Class, fieldKey(m))
		} else {
			a.AddMethod(d.Class, m.Key())
		}
	}
	for _, p := range d.Modified {
		if !p.Changed {
			continue
		}
		if field {
			a.AddChangedField(d.Class, fieldKey(p.Original), p.Change)
		} else {
			a.AddChangedMethod(d.Class, p.Original.Key(), p.Change)
		}
	}
}

// fieldKey separates name and descriptor so plain field names stay readable
// in manifests ("y;;I" rather than "yI").
func fieldKey(m *classfile.Member) string { return m.Name + ";;" + m.Desc }
