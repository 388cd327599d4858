package report

import (
	"bytes"
	"strings"
	"testing"

	"class-merger/internal/changes"
	"class-merger/internal/classfile"
	"class-merger/internal/merge"
)

func method(name string, ops ...byte) *classfile.Member {
	insns := make([]classfile.Insn, 0, len(ops))
	for _, op := range ops {
		insns = append(insns, classfile.Insn{Op: op})
	}
	return &classfile.Member{
		Access: classfile.AccPublic,
		Name:   name,
		Desc:   "()V",
		Attrs:  []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1, Insns: insns}},
	}
}

func sampleReport() *merge.Report {
	original := method("bar", 0xb1)
	patched := method("bar", 0x00, 0xb1)
	changed, cs := changes.Compare(original, patched)

	return &merge.Report{
		Manifest: []*changes.ClassChanges{{
			Name:           "test/Foo",
			AddedFields:    []string{"y;;I"},
			ChangedMethods: []string{"bar()V (code)"},
		}},
		Diagnostics: []changes.Diagnostic{{Class: "test/Foo", Detail: "partial reconciliation"}},
		Classes: []merge.ClassResult{{
			Entry: "test/Foo.class",
			Fields: &changes.MemberDiff{Class: "test/Foo"},
			Methods: &changes.MemberDiff{
				Class: "test/Foo",
				Modified: []changes.Pair{
					{Original: original, Patched: patched, Changed: changed, Change: cs},
				},
			},
		}},
	}
}

func TestWriteManifestAndDiagnostics(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), Options{}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{
		"class test/Foo",
		"added field y;;I",
		"changed method bar()V (code)",
		"note: test/Foo: partial reconciliation",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("report missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "@@") {
		t.Fatalf("listings rendered without being requested:\n%s", out)
	}
}

func TestWriteListings(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleReport(), Options{Listings: true}); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "base test/Foo.bar()V") || !strings.Contains(out, "patch test/Foo.bar()V") {
		t.Fatalf("diff headers missing:\n%s", out)
	}
	if !strings.Contains(out, "+   0: nop") {
		t.Fatalf("added instruction line missing:\n%s", out)
	}
}
