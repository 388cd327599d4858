// Package reconstruct merges two compiled versions of one class into a
// single class file.
//
// Goals:
//   - keep unchanged members exactly as the base version declared them, so
//     downstream obfuscated-name linkage survives the merge
//   - take changed and new members from the patched version, with spurious
//     lambda-holder renames undone first
//   - verify every same-class reference in adopted code still resolves,
//     consulting an optional reference class for links the patch toolchain
//     renumbered
package reconstruct

import (
	"fmt"
	"strings"

	"class-merger/internal/changes"
	"class-merger/internal/classfile"
)

// Result is a reconstructed class plus everything the caller may want to
// report about how it was put together.
type Result struct {
	Name        string
	Data        []byte
	Fixes       []changes.RenameFix
	Diagnostics []changes.Diagnostic

	// Fields and Methods hold the realized diffs for reporting.
	Fields  *changes.MemberDiff
	Methods *changes.MemberDiff
}

// Reconstruct builds merged class bytes from the base version, the patched
// version and an optional reference version (nil when absent). Change
// events are recorded into ann when it is non-nil.
func Reconstruct(originalBytes, patchedBytes, referenceBytes []byte, ann *changes.Annotator) (*Result, error) {
	original, err := classfile.Parse(originalBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing base class: %w", err)
	}
	patched, err := classfile.Parse(patchedBytes)
	if err != nil {
		return nil, fmt.Errorf("parsing patched class %s: %w", original.Name, err)
	}
	var reference *classfile.Class
	if referenceBytes != nil {
		if reference, err = classfile.Parse(referenceBytes); err != nil {
			return nil, fmt.Errorf("parsing reference class %s: %w", original.Name, err)
		}
	}

	fields, err := changes.NewMemberDiff(original.Name, original.Fields, patched.Fields)
	if err != nil {
		return nil, err
	}
	methods, err := changes.NewMemberDiff(original.Name, original.Methods, patched.Methods)
	if err != nil {
		return nil, err
	}

	res := &Result{Name: original.Name, Fields: fields, Methods: methods}
	if methods.CouldNeedLambdaFixing() {
		_, diags := methods.ReconcileLambdas(&res.Fixes)
		res.Diagnostics = append(res.Diagnostics, diags...)
	}

	if ann != nil {
		fields.Annotate(ann, true)
		methods.Annotate(ann, false)
	}

	merged := envelope(original, patched)
	renames := renameTable(res.Fixes)
	var adopted []*classfile.Member
	merged.Fields, _ = mergeMembers(fields, original.Name, renames)
	merged.Methods, adopted = mergeMembers(methods, original.Name, renames)

	if err := checkLinks(merged, original, reference, adopted); err != nil {
		return nil, err
	}

	data, err := merged.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing %s: %w", merged.Name, err)
	}
	res.Data = data
	return res, nil
}

// envelope builds the merged class shell: identity and surface from the
// patched version, the higher of the two format versions, the base
// version's source-file name, and the union of both inner-class tables.
func envelope(original, patched *classfile.Class) *classfile.Class {
	c := &classfile.Class{
		Minor:      patched.Minor,
		Major:      patched.Major,
		Access:     patched.Access,
		Name:       patched.Name,
		Super:      patched.Super,
		Interfaces: patched.Interfaces,
	}
	if original.Major > c.Major || (original.Major == c.Major && original.Minor > c.Minor) {
		c.Major, c.Minor = original.Major, original.Minor
	}

	source, _ := sourceFile(original)
	inner := innerUnion(original, patched)
	for _, a := range patched.Attrs {
		switch a.(type) {
		case classfile.SourceFile:
			continue
		case classfile.InnerClasses:
			continue
		}
		c.Attrs = append(c.Attrs, a)
	}
	if source != "" {
		c.Attrs = append(c.Attrs, classfile.SourceFile(source))
	}
	if len(inner) > 0 {
		c.Attrs = append(c.Attrs, inner)
	}
	return c
}

func sourceFile(c *classfile.Class) (string, bool) {
	for _, a := range c.Attrs {
		if s, ok := a.(classfile.SourceFile); ok {
			return string(s), true
		}
	}
	return "", false
}

func innerUnion(original, patched *classfile.Class) classfile.InnerClasses {
	var out classfile.InnerClasses
	seen := make(map[string]struct{})
	for _, c := range []*classfile.Class{original, patched} {
		for _, a := range c.Attrs {
			ics, ok := a.(classfile.InnerClasses)
			if !ok {
				continue
			}
			for _, ic := range ics {
				if _, dup := seen[ic.Inner]; dup {
					continue
				}
				seen[ic.Inner] = struct{}{}
				out = append(out, ic)
			}
		}
	}
	return out
}

// mergeMembers realizes the diff: unchanged pairs keep the base member,
// changed pairs and gained members take the patched one with rename fixes
// applied, lost members are dropped. The second return value lists the
// members adopted from the patched side, after renaming, for link checking.
func mergeMembers(d *changes.MemberDiff, owner string, renames map[string]string) ([]*classfile.Member, []*classfile.Member) {
	out := make([]*classfile.Member, 0, len(d.Modified)+len(d.Gained))
	var adopted []*classfile.Member
	for _, p := range d.Modified {
		if p.Changed {
			m := applyRenames(p.Patched, owner, renames)
			out = append(out, m)
			adopted = append(adopted, m)
		} else {
			out = append(out, p.Original)
		}
	}
	for _, m := range d.Gained {
		m = applyRenames(m, owner, renames)
		out = append(out, m)
		adopted = append(adopted, m)
	}
	return out, adopted
}

// renameTable flattens the fix list into a lookup from the patched key
// ("<owner>#<name><desc>") to the reconciled method name.
func renameTable(fixes []changes.RenameFix) map[string]string {
	if len(fixes) == 0 {
		return nil
	}
	t := make(map[string]string, len(fixes))
	for _, f := range fixes {
		nameDesc := f.To[strings.IndexByte(f.To, '#')+1:]
		t[f.From] = nameDesc[:strings.IndexByte(nameDesc, '(')]
	}
	return t
}

// applyRenames rewrites same-class references inside a patched member so
// they target reconciled lambda names instead of the patch compiler's
// renumbered ones. The member and its code are copied on first rewrite;
// the input is never mutated.
func applyRenames(m *classfile.Member, owner string, renames map[string]string) *classfile.Member {
	if len(renames) == 0 {
		return m
	}
	code := m.Code()
	if code == nil {
		return m
	}
	return rewriteMember(m, code, owner, renames)
}

func rewriteMember(m *classfile.Member, code *classfile.Code, owner string, renames map[string]string) *classfile.Member {
	rewritten := false
	insns := code.Insns
	for i := range insns {
		in := insns[i]
		changedInsn := false

		if in.Ref.Owner == owner {
			if to, ok := renames[refKey(owner, in.Ref.Name, in.Ref.Desc)]; ok {
				in.Ref.Name = to
				changedInsn = true
			}
		}
		if h, ok := in.Val.(classfile.Handle); ok {
			if nh, ok := renameHandle(h, owner, renames); ok {
				in.Val = nh
				changedInsn = true
			}
		}
		if in.Indy != nil {
			args := in.Indy.Args
			argsChanged := false
			for j, a := range args {
				h, ok := a.(classfile.Handle)
				if !ok {
					continue
				}
				nh, ok := renameHandle(h, owner, renames)
				if !ok {
					continue
				}
				if !argsChanged {
					args = append([]classfile.Const(nil), in.Indy.Args...)
					argsChanged = true
				}
				args[j] = nh
			}
			if argsChanged {
				indy := *in.Indy
				indy.Args = args
				in.Indy = &indy
				changedInsn = true
			}
		}

		if changedInsn {
			if !rewritten {
				insns = append([]classfile.Insn(nil), code.Insns...)
				rewritten = true
			}
			insns[i] = in
		}
	}
	if !rewritten {
		return m
	}

	nc := *code
	nc.Insns = insns
	out := *m
	out.Attrs = make([]classfile.Attribute, len(m.Attrs))
	for i, a := range m.Attrs {
		if a == code {
			out.Attrs[i] = &nc
		} else {
			out.Attrs[i] = a
		}
	}
	return &out
}

func renameHandle(h classfile.Handle, owner string, renames map[string]string) (classfile.Handle, bool) {
	if h.IsField() || h.Owner != owner {
		return h, false
	}
	to, ok := renames[refKey(owner, h.Name, h.Desc)]
	if !ok {
		return h, false
	}
	h.Name = to
	return h, true
}

func refKey(owner, name, desc string) string { return owner + "#" + name + desc }

// checkLinks verifies that every same-class reference inside an adopted
// patched method body resolves against the merged class, the base class,
// or the reference class. A miss means the patch toolchain produced a link
// none of the available sources can supply.
func checkLinks(merged, original, reference *classfile.Class, adopted []*classfile.Member) error {
	known := make(map[string]struct{})
	collect := func(c *classfile.Class) {
		if c == nil {
			return
		}
		for _, m := range c.Fields {
			known[fieldRefKey(m.Name, m.Desc)] = struct{}{}
		}
		for _, m := range c.Methods {
			known[m.Key()] = struct{}{}
		}
	}
	collect(merged)
	collect(original)
	collect(reference)

	for _, m := range adopted {
		code := m.Code()
		if code == nil {
			continue
		}
		for _, in := range code.Insns {
			if ref := in.Ref; ref.Owner == merged.Name {
				key := ref.Name + ref.Desc
				if !strings.HasPrefix(ref.Desc, "(") {
					key = fieldRefKey(ref.Name, ref.Desc)
				}
				if _, ok := known[key]; !ok {
					return fmt.Errorf("%s: %s references %s#%s%s, not found in merged, base or reference class",
						merged.Name, m.Key(), ref.Owner, ref.Name, ref.Desc)
				}
			}
			if in.Indy == nil {
				continue
			}
			for _, a := range in.Indy.Args {
				h, ok := a.(classfile.Handle)
				if !ok || h.Owner != merged.Name {
					continue
				}
				key := h.Name + h.Desc
				if h.IsField() {
					key = fieldRefKey(h.Name, h.Desc)
				}
				if _, ok := known[key]; !ok {
					return fmt.Errorf("%s: %s captures %s#%s%s, not found in merged, base or reference class",
						merged.Name, m.Key(), h.Owner, h.Name, h.Desc)
				}
			}
		}
	}
	return nil
}

func fieldRefKey(name, desc string) string { return name + ";" + desc }
