package changes

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"

	"class-merger/internal/classfile"
)

// A compiler may renumber every synthetic lambda holder in a class after
// any edit inside it, even for lambdas whose behavior is untouched. A naive
// diff then reports every old holder as lost and every new one as gained.
// ReconcileLambdas undoes those spurious renames in two deterministic
// phases: an exact structural/count match, then a unique-descriptor
// fallback. No fuzzy string matching, so the outcome stays explainable.

var lambdaName = regexp.MustCompile(`^lambda\$(\w+)\$(\d+)$`)

// CouldNeedLambdaFixing reports whether reconciliation is worth running: at
// least one changed modified method references a lambda, and both lost and
// gained buckets are non-empty.
func (d *MemberDiff) CouldNeedLambdaFixing() bool {
	if len(d.Lost) == 0 || len(d.Gained) == 0 {
		return false
	}
	for _, p := range d.Modified {
		if p.Changed && len(p.Patched.HandleRefs(d.Class)) > 0 {
			return true
		}
	}
	return false
}

// ReconcileLambdas re-pairs spuriously renamed lambda holders from Lost and
// Gained back into Modified, appending a RenameFix per recovered pair to
// fixes. It reports whether every candidate lambda reference was accounted
// for; on a partial match the leftovers stay independently classified and a
// diagnostic describes them.
func (d *MemberDiff) ReconcileLambdas(fixes *[]RenameFix) (bool, []Diagnostic) {
	gainedLambdas := d.lambdaHolders()
	if len(gainedLambdas) == 0 {
		return true, nil // nothing looks like a lambda
	}

	// Only references into this candidate set matter; anything else the
	// modified methods mention is presumed fine.
	candidates := make(map[string]struct{}, len(gainedLambdas))
	for _, m := range gainedLambdas {
		candidates[d.key(m)] = struct{}{}
	}

	var diags []Diagnostic
	if len(gainedLambdas) == len(d.Lost) {
		demand := d.lambdaDemand(candidates)
		supply := lambdaSupply(gainedLambdas)
		if sequencesEqual(demand, supply) {
			// The gained lambdas line up with the lost methods one to one;
			// pair them positionally.
			rejected := 0
			consumed := make(map[*classfile.Member]struct{})
			for i, lost := range d.Lost {
				gained := gainedLambdas[i]
				if ok, diag := d.addFix(fixes, lost, gained); ok {
					consumed[lost] = struct{}{}
					consumed[gained] = struct{}{}
				} else {
					rejected++
					diags = append(diags, diag)
				}
			}
			d.Lost = drop(d.Lost, consumed)
			d.Gained = drop(d.Gained, consumed)
			return rejected == 0, diags
		}
	}

	// Fallback: descriptors that identify exactly one lost method and
	// exactly one gained lambda pair those two.
	uniqueGained := uniqueByDesc(gainedLambdas)
	uniqueLost := uniqueByDesc(d.Lost)
	fixed := make(map[string]struct{})
	consumed := make(map[*classfile.Member]struct{})
	descs := make([]string, 0, len(uniqueGained))
	for desc := range uniqueGained {
		if _, ok := uniqueLost[desc]; ok {
			descs = append(descs, desc)
		}
	}
	sort.Strings(descs)
	for _, desc := range descs {
		lost, gained := uniqueLost[desc], uniqueGained[desc]
		if ok, diag := d.addFix(fixes, lost, gained); ok {
			fixed[d.key(gained)] = struct{}{}
			consumed[lost] = struct{}{}
			consumed[gained] = struct{}{}
		} else {
			diags = append(diags, diag)
		}
	}
	d.Lost = drop(d.Lost, consumed)
	d.Gained = drop(d.Gained, consumed)

	// Complete only if every candidate reference from a modified method is
	// now covered by a recorded fix.
	var unmatched []string
	for _, p := range d.Modified {
		for _, ref := range p.Patched.HandleRefs(d.Class) {
			if _, cand := candidates[ref]; !cand {
				continue
			}
			if _, ok := fixed[ref]; !ok {
				unmatched = append(unmatched, ref)
			}
		}
	}
	if len(unmatched) > 0 {
		sort.Strings(unmatched)
		diags = append(diags, Diagnostic{
			Class:  d.Class,
			Detail: fmt.Sprintf("unable to reconcile %d lambda holder(s), left classified as lost/gained: %v", len(unmatched), unmatched),
		})
		return false, diags
	}
	return true, diags
}

// addFix pairs a lost method with a renamed gained lambda and folds them
// into Modified. A descriptor mismatch means an erasure-level signature
// change, which is genuine new behavior rather than a pure rename; the
// pairing is rejected and both members keep their classification.
func (d *MemberDiff) addFix(fixes *[]RenameFix, lost, gained *classfile.Member) (bool, Diagnostic) {
	if lost.Desc != gained.Desc {
		return false, Diagnostic{
			Class: d.Class,
			Detail: fmt.Sprintf("descriptor changed remapping lambda holder: %s => %s, keeping both",
				gained.Key(), lost.Key()),
		}
	}
	*fixes = append(*fixes, RenameFix{From: d.key(gained), To: d.key(lost)})

	// A fresh pair record from the lost member and a renamed copy; the
	// gained member itself stays untouched for any other consumer.
	renamed := gained.Renamed(lost.Name)
	changed, cs := Compare(lost, renamed)
	d.Modified = append(d.Modified, Pair{Original: lost, Patched: renamed, Changed: changed, Change: cs})
	return true, Diagnostic{}
}

// lambdaHolders filters Gained down to synthetic lambda$<method>$<n>
// members, preserving order.
func (d *MemberDiff) lambdaHolders() []*classfile.Member {
	var out []*classfile.Member
	for _, m := range d.Gained {
		if m.Synthetic() && lambdaName.MatchString(m.Name) {
			out = append(out, m)
		}
	}
	return out
}

// lambdaDemand counts, per modified method in order, how many of its
// lambda references fall inside the candidate set, skipping zeros.
func (d *MemberDiff) lambdaDemand(candidates map[string]struct{}) []int {
	var out []int
	for _, p := range d.Modified {
		n := 0
		for _, ref := range p.Patched.HandleRefs(d.Class) {
			if _, ok := candidates[ref]; ok {
				n++
			}
		}
		if n > 0 {
			out = append(out, n)
		}
	}
	return out
}

// lambdaSupply groups the gained lambdas by enclosing-method name in order
// of first appearance after sorting by ordinal, and returns each group's
// size.
func lambdaSupply(gained []*classfile.Member) []int {
	type parsed struct {
		enclosing string
		ordinal   int
	}
	ps := make([]parsed, 0, len(gained))
	for _, m := range gained {
		sub := lambdaName.FindStringSubmatch(m.Name)
		ord, _ := strconv.Atoi(sub[2])
		ps = append(ps, parsed{enclosing: sub[1], ordinal: ord})
	}
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].ordinal < ps[j].ordinal })

	counts := make(map[string]int)
	var order []string
	for _, p := range ps {
		if _, ok := counts[p.enclosing]; !ok {
			order = append(order, p.enclosing)
		}
		counts[p.enclosing]++
	}
	out := make([]int, 0, len(order))
	for _, enclosing := range order {
		out = append(out, counts[enclosing])
	}
	return out
}

func uniqueByDesc(members []*classfile.Member) map[string]*classfile.Member {
	byDesc := make(map[string][]*classfile.Member)
	for _, m := range members {
		byDesc[m.Desc] = append(byDesc[m.Desc], m)
	}
	out := make(map[string]*classfile.Member)
	for desc, group := range byDesc {
		if len(group) == 1 {
			out[desc] = group[0]
		}
	}
	return out
}

func (d *MemberDiff) key(m *classfile.Member) string { return d.Class + "#" + m.Key() }

func drop(members []*classfile.Member, consumed map[*classfile.Member]struct{}) []*classfile.Member {
	if len(consumed) == 0 {
		return members
	}
	out := members[:0]
	for _, m := range members {
		if _, ok := consumed[m]; !ok {
			out = append(out, m)
		}
	}
	return out
}

func sequencesEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
