package changes

import (
	"testing"

	"class-merger/internal/classfile"
)

func method(name, desc string, access uint16, ops ...byte) *classfile.Member {
	insns := make([]classfile.Insn, 0, len(ops))
	for _, op := range ops {
		insns = append(insns, classfile.Insn{Op: op})
	}
	return &classfile.Member{
		Access: access,
		Name:   name,
		Desc:   desc,
		Attrs:  []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1, Insns: insns}},
	}
}

func field(name, desc string, access uint16) *classfile.Member {
	return &classfile.Member{Access: access, Name: name, Desc: desc}
}

func TestPartitionCoversEveryKey(t *testing.T) {
	original := []*classfile.Member{
		method("a", "()V", classfile.AccPublic, 0xb1),
		method("b", "()V", classfile.AccPublic, 0xb1),
		method("c", "()I", classfile.AccPublic, 0x03, 0xac),
	}
	patched := []*classfile.Member{
		method("b", "()V", classfile.AccPublic, 0x00, 0xb1), // nop added
		method("c", "()I", classfile.AccPublic, 0x03, 0xac),
		method("d", "()V", classfile.AccPublic, 0xb1),
	}

	d, err := NewMemberDiff("test/Foo", original, patched)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	seen := make(map[string]int)
	for _, p := range d.Modified {
		seen[p.Original.Key()]++
	}
	for _, m := range d.Lost {
		seen[m.Key()]++
	}
	for _, m := range d.Gained {
		seen[m.Key()]++
	}
	for _, key := range []string{"a()V", "b()V", "c()I", "d()V"} {
		if seen[key] != 1 {
			t.Fatalf("key %s classified %d times: %v", key, seen[key], seen)
		}
	}

	if len(d.Lost) != 1 || d.Lost[0].Name != "a" {
		t.Fatalf("lost = %v", d.Lost)
	}
	if len(d.Gained) != 1 || d.Gained[0].Name != "d" {
		t.Fatalf("gained = %v", d.Gained)
	}
	if len(d.Modified) != 2 {
		t.Fatalf("modified = %v", d.Modified)
	}
	// Original-list order: b before c.
	if d.Modified[0].Original.Name != "b" || d.Modified[1].Original.Name != "c" {
		t.Fatalf("modified order: %s, %s", d.Modified[0].Original.Name, d.Modified[1].Original.Name)
	}
	if !d.Modified[0].Changed || d.Modified[0].Change&ChangeCode == 0 {
		t.Fatalf("b should register a code change: %v", d.Modified[0].Change)
	}
	if d.Modified[1].Changed {
		t.Fatalf("c should be unchanged: %v", d.Modified[1].Change)
	}
}

func TestSelfDiffIsEmpty(t *testing.T) {
	members := []*classfile.Member{
		method("a", "()V", classfile.AccPublic, 0xb1),
		field("x", "I", classfile.AccPrivate),
	}
	d, err := NewMemberDiff("test/Foo", members, members)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}
	if len(d.Lost) != 0 || len(d.Gained) != 0 {
		t.Fatalf("self diff not empty: lost=%v gained=%v", d.Lost, d.Gained)
	}
	for _, p := range d.Modified {
		if p.Changed {
			t.Fatalf("%s marked changed against itself (%v)", p.Original.Key(), p.Change)
		}
	}
}

func TestCompareIgnoresLineNumbers(t *testing.T) {
	a := method("f", "()V", classfile.AccPublic, 0xb1)
	b := method("f", "()V", classfile.AccPublic, 0xb1)
	code := b.Code()
	code.Attrs = append(code.Attrs, classfile.LineNumberTable{{PC: 0, Line: 55}})

	if changed, cs := Compare(a, b); changed {
		t.Fatalf("line-number-only difference registered as %v", cs)
	}
}

func TestCompareDetectsAccessAndValue(t *testing.T) {
	a := field("x", "I", classfile.AccPrivate)
	b := field("x", "I", classfile.AccPublic)
	b.Attrs = []classfile.Attribute{classfile.ConstantValue{Value: classfile.IntConst(3)}}

	changed, cs := Compare(a, b)
	if !changed || cs&ChangeAccess == 0 || cs&ChangeValue == 0 {
		t.Fatalf("change set = %v", cs)
	}
	if s := cs.String(); s != "access+value" {
		t.Fatalf("change set string = %q", s)
	}
}

func TestAnnotateFillsManifest(t *testing.T) {
	original := []*classfile.Member{
		method("bar", "()V", classfile.AccPublic, 0xb1),
		method("gone", "()V", classfile.AccPublic, 0xb1),
	}
	patched := []*classfile.Member{
		method("bar", "()V", classfile.AccPublic, 0x00, 0xb1),
		method("fresh", "()V", classfile.AccPublic, 0xb1),
	}
	d, err := NewMemberDiff("test/Foo", original, patched)
	if err != nil {
		t.Fatalf("diff: %v", err)
	}

	a := NewAnnotator()
	d.Annotate(a, false)
	d.Annotate(a, false) // repeated reporting stays idempotent

	manifest := a.Manifest()
	if len(manifest) != 1 {
		t.Fatalf("manifest = %v", manifest)
	}
	c := manifest[0]
	if c.Name != "test/Foo" {
		t.Fatalf("class name = %q", c.Name)
	}
	if len(c.DroppedMethods) != 1 || c.DroppedMethods[0] != "gone()V" {
		t.Fatalf("dropped = %v", c.DroppedMethods)
	}
	if len(c.AddedMethods) != 1 || c.AddedMethods[0] != "fresh()V" {
		t.Fatalf("added = %v", c.AddedMethods)
	}
	if len(c.ChangedMethods) != 1 || c.ChangedMethods[0] != "bar()V (code)" {
		t.Fatalf("changed = %v", c.ChangedMethods)
	}
}
