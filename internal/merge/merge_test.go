package merge

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"class-merger/internal/classfile"
	"class-merger/internal/config"
	"class-merger/internal/ziputil"
)

func fooBytes(t *testing.T, withNop bool, extraField string) []byte {
	t.Helper()
	insns := []classfile.Insn{{Op: 0xb1}}
	if withNop {
		insns = append([]classfile.Insn{{Op: 0x00}}, insns...)
	}
	c := &classfile.Class{
		Major:  52,
		Access: classfile.AccPublic | classfile.AccSuper,
		Name:   "test/Foo",
		Super:  "java/lang/Object",
		Methods: []*classfile.Member{{
			Access: classfile.AccPublic,
			Name:   "bar",
			Desc:   "()V",
			Attrs:  []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1, Insns: insns}},
		}},
	}
	if extraField != "" {
		c.Fields = append(c.Fields, &classfile.Member{Access: classfile.AccPrivate, Name: extraField, Desc: "I"})
	}
	data, err := c.Bytes()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return data
}

func writeArchive(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := w.Write(content); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close %s: %v", path, err)
	}
}

func readArchive(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer r.Close()
	out := make(map[string]string)
	for name, f := range ziputil.Entries(&r.Reader) {
		data, err := ziputil.ReadEntry(f)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		out[name] = string(data)
	}
	return out
}

func TestRunMergesArchives(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.jar")
	patch := filepath.Join(dir, "patch.jar")
	out := filepath.Join(dir, "merged.jar")

	writeArchive(t, base, map[string][]byte{
		"base-only.txt":        []byte("base"),
		"res.txt":              []byte("base resource"),
		"META-INF/MANIFEST.MF": []byte("base manifest"),
		"test/Foo.class":       fooBytes(t, false, ""),
	})
	writeArchive(t, patch, map[string][]byte{
		"patch-only.txt":       []byte("patch"),
		"res.txt":              []byte("patch resource"),
		"META-INF/MANIFEST.MF": []byte("patch manifest"),
		"srg/scratch.txt":      []byte("scratch"),
		"test/Foo.class":       fooBytes(t, true, "y"),
	})

	rep, err := Run(Options{Base: base, Patch: patch, Output: out, Config: config.Default()})
	if err != nil {
		t.Fatalf("merge: %v", err)
	}

	got := readArchive(t, out)
	if got["base-only.txt"] != "base" || got["patch-only.txt"] != "patch" {
		t.Fatalf("exclusive entries: %v", keys(got))
	}
	if _, ok := got["srg/scratch.txt"]; ok {
		t.Fatalf("scratch namespace leaked into output")
	}
	if got["META-INF/MANIFEST.MF"] != "base manifest" {
		t.Fatalf("metadata entry = %q", got["META-INF/MANIFEST.MF"])
	}
	if got["res.txt"] != "patch resource" {
		t.Fatalf("shared resource = %q", got["res.txt"])
	}

	merged, err := classfile.Parse([]byte(got["test/Foo.class"]))
	if err != nil {
		t.Fatalf("parse merged class: %v", err)
	}
	if len(merged.Fields) != 1 || merged.Fields[0].Name != "y" {
		t.Fatalf("merged class fields: %v", merged.Fields)
	}
	if n := len(merged.Methods[0].Code().Insns); n != 2 {
		t.Fatalf("merged bar has %d instructions", n)
	}

	if rep.BaseOnly != 1 || rep.PatchOnly != 1 || rep.Resources != 2 {
		t.Fatalf("counts: base=%d patch=%d resources=%d", rep.BaseOnly, rep.PatchOnly, rep.Resources)
	}
	if len(rep.Manifest) != 1 || rep.Manifest[0].Name != "test/Foo" {
		t.Fatalf("manifest = %v", rep.Manifest)
	}
}

func TestRunFailureRemovesOutput(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.jar")
	patch := filepath.Join(dir, "patch.jar")
	out := filepath.Join(dir, "merged.jar")

	writeArchive(t, base, map[string][]byte{"test/Foo.class": fooBytes(t, false, "")})
	writeArchive(t, patch, map[string][]byte{"test/Foo.class": []byte("not a class")})

	if _, err := Run(Options{Base: base, Patch: patch, Output: out, Config: config.Default()}); err == nil {
		t.Fatalf("merge of corrupt class succeeded")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("partial output left behind: %v", err)
	}
}

func TestRunRefusesExistingOutput(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.jar")
	patch := filepath.Join(dir, "patch.jar")
	out := filepath.Join(dir, "merged.jar")

	writeArchive(t, base, map[string][]byte{"a.txt": []byte("a")})
	writeArchive(t, patch, map[string][]byte{"b.txt": []byte("b")})
	if err := os.WriteFile(out, []byte("precious"), 0o644); err != nil {
		t.Fatalf("seed output: %v", err)
	}

	if _, err := Run(Options{Base: base, Patch: patch, Output: out, Config: config.Default()}); err == nil {
		t.Fatalf("existing output overwritten")
	}
	data, err := os.ReadFile(out)
	if err != nil || string(data) != "precious" {
		t.Fatalf("pre-existing output disturbed: %q %v", data, err)
	}
}

func TestRunResolvesViaReferenceArchive(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.jar")
	patch := filepath.Join(dir, "patch.jar")
	ref := filepath.Join(dir, "ref.jar")
	out := filepath.Join(dir, "merged.jar")

	helper := &classfile.Member{
		Access: classfile.AccPublic | classfile.AccStatic,
		Name:   "helper",
		Desc:   "()V",
		Attrs: []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1,
			Insns: []classfile.Insn{{Op: 0xb1}}}},
	}
	caller := &classfile.Member{
		Access: classfile.AccPublic,
		Name:   "go",
		Desc:   "()V",
		Attrs: []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1,
			Insns: []classfile.Insn{
				{Op: 0xb8, Ref: classfile.MemberRef{Owner: "test/Foo", Name: "helper", Desc: "()V"}},
				{Op: 0xb1},
			}}},
	}
	build := func(members ...*classfile.Member) []byte {
		c := &classfile.Class{Major: 52, Access: classfile.AccPublic | classfile.AccSuper,
			Name: "test/Foo", Super: "java/lang/Object", Methods: members}
		data, err := c.Bytes()
		if err != nil {
			t.Fatalf("serialize: %v", err)
		}
		return data
	}
	bar := func(nop bool) *classfile.Member {
		insns := []classfile.Insn{{Op: 0xb1}}
		if nop {
			insns = append([]classfile.Insn{{Op: 0x00}}, insns...)
		}
		return &classfile.Member{Access: classfile.AccPublic, Name: "bar", Desc: "()V",
			Attrs: []classfile.Attribute{&classfile.Code{MaxStack: 1, MaxLocals: 1, Insns: insns}}}
	}

	writeArchive(t, base, map[string][]byte{"test/Foo.class": build(bar(false))})
	writeArchive(t, patch, map[string][]byte{"test/Foo.class": build(bar(true), caller)})
	writeArchive(t, ref, map[string][]byte{"test/Foo.class": build(bar(false), helper)})

	// Without the reference the gained caller's link cannot be resolved.
	if _, err := Run(Options{Base: base, Patch: patch, Output: out, Config: config.Default()}); err == nil {
		t.Fatalf("unresolved link went unnoticed")
	}
	if _, err := Run(Options{Base: base, Patch: patch, Reference: ref, Output: out, Config: config.Default()}); err != nil {
		t.Fatalf("merge with reference: %v", err)
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
