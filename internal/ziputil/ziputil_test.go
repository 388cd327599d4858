package ziputil

import (
	"archive/zip"
	"bytes"
	"testing"
	"time"
)

func buildZip(t *testing.T, entries map[string]string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	r, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	return r
}

func TestSanitizePath(t *testing.T) {
	cases := map[string]string{
		"a/b.txt":        "a/b.txt",
		"/abs/path":      "abs/path",
		"a/./b/../c.txt": "a/c.txt",
		"../../x":        "x",
		"":               "entry",
	}
	for in, want := range cases {
		if got := SanitizePath(in); got != want {
			t.Fatalf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEntriesSkipsExcludedPrefixes(t *testing.T) {
	r := buildZip(t, map[string]string{
		"a.txt":     "a",
		"srg/x.srg": "scratch",
		"sub/b.txt": "b",
	})
	entries := Entries(r, "srg/")
	if len(entries) != 2 {
		t.Fatalf("entries = %v", entries)
	}
	if _, ok := entries["srg/x.srg"]; ok {
		t.Fatalf("excluded prefix leaked through")
	}
}

func TestIntersectIsOrderIndependent(t *testing.T) {
	a := Entries(buildZip(t, map[string]string{"x": "1", "y": "2", "z": "3", "w": "4"}))
	b := Entries(buildZip(t, map[string]string{"y": "5", "z": "6"}))

	ab := Intersect(a, b)
	ba := Intersect(b, a)
	if len(ab) != 2 || ab[0] != "y" || ab[1] != "z" {
		t.Fatalf("intersect = %v", ab)
	}
	if len(ab) != len(ba) {
		t.Fatalf("asymmetric intersection: %v vs %v", ab, ba)
	}
	for i := range ab {
		if ab[i] != ba[i] {
			t.Fatalf("asymmetric intersection: %v vs %v", ab, ba)
		}
	}
}

func TestOnly(t *testing.T) {
	a := Entries(buildZip(t, map[string]string{"x": "1", "y": "2"}))
	b := Entries(buildZip(t, map[string]string{"y": "2", "z": "3"}))
	if only := Only(a, b); len(only) != 1 || only[0] != "x" {
		t.Fatalf("a-only = %v", only)
	}
	if only := Only(b, a); len(only) != 1 || only[0] != "z" {
		t.Fatalf("b-only = %v", only)
	}
}

func TestCopyEntryPreservesTimestamp(t *testing.T) {
	stamp := time.Date(2013, 4, 25, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "stamped.txt", Method: zip.Deflate, Modified: stamp})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := w.Write([]byte("content")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	src, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	var out bytes.Buffer
	ow := zip.NewWriter(&out)
	if err := CopyEntry(ow, src.File[0]); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if err := ow.Close(); err != nil {
		t.Fatalf("close out: %v", err)
	}

	copied, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	if err != nil {
		t.Fatalf("reopen out: %v", err)
	}
	got := copied.File[0].Modified.UTC()
	if !got.Equal(stamp) {
		t.Fatalf("timestamp = %v, want %v", got, stamp)
	}
	data, err := ReadEntry(copied.File[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "content" {
		t.Fatalf("content = %q", data)
	}
}

func TestWriteEntryKeepsHeader(t *testing.T) {
	stamp := time.Date(2013, 4, 25, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.CreateHeader(&zip.FileHeader{Name: "f.class", Method: zip.Deflate, Modified: stamp})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := w.Write([]byte("old")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	src, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}

	var out bytes.Buffer
	ow := zip.NewWriter(&out)
	if err := WriteEntry(ow, src.File[0], []byte("rebuilt")); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := ow.Close(); err != nil {
		t.Fatalf("close out: %v", err)
	}

	res, err := zip.NewReader(bytes.NewReader(out.Bytes()), int64(out.Len()))
	if err != nil {
		t.Fatalf("reopen out: %v", err)
	}
	f := res.File[0]
	if f.Name != "f.class" || !f.Modified.UTC().Equal(stamp) {
		t.Fatalf("header drifted: %s %v", f.Name, f.Modified)
	}
	data, err := ReadEntry(f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "rebuilt" {
		t.Fatalf("content = %q", data)
	}
}
