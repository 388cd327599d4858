package ziputil

import (
	"archive/zip"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
)

// SanitizePath normalizes ZIP entry paths (forward slashes, no drive, no leading '/'),
// and removes '.' and '..' segments without escaping the root.
func SanitizePath(p string) string {
	s := filepath.ToSlash(p)
	if len(s) > 1 && s[1] == ':' {
		s = s[2:]
	}
	s = strings.TrimLeft(s, "/")
	parts := strings.Split(s, "/")
	stack := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		if part == ".." {
			if n := len(stack); n > 0 {
				stack = stack[:n-1]
			}
			continue
		}
		stack = append(stack, part)
	}
	s = strings.Join(stack, "/")
	if s == "" {
		return "entry"
	}
	return s
}

// Entries maps an archive's file entries by sanitized name. Directory
// entries and entries under any of the excluded prefixes are skipped.
func Entries(r *zip.Reader, exclude ...string) map[string]*zip.File {
	out := make(map[string]*zip.File, len(r.File))
next:
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := SanitizePath(f.Name)
		for _, prefix := range exclude {
			if strings.HasPrefix(name, prefix) {
				continue next
			}
		}
		out[name] = f
	}
	return out
}

// Intersect returns the sorted names present in both maps. The smaller map
// drives the scan; membership does not depend on which side that is.
func Intersect(a, b map[string]*zip.File) []string {
	if len(b) < len(a) {
		a, b = b, a
	}
	out := make([]string, 0, len(a))
	for name := range a {
		if _, ok := b[name]; ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Only returns the sorted names present in a but not in b.
func Only(a, b map[string]*zip.File) []string {
	out := make([]string, 0, len(a))
	for name := range a {
		if _, ok := b[name]; !ok {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// ReadEntry returns an entry's uncompressed content.
func ReadEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return data, nil
}

// CopyEntry transfers an entry verbatim, keeping its header (name,
// timestamps, mode, method) and its already-compressed content.
func CopyEntry(zw *zip.Writer, f *zip.File) error {
	if err := zw.Copy(f); err != nil {
		return fmt.Errorf("copy %s: %w", f.Name, err)
	}
	return nil
}

// WriteEntry writes fresh content under the header of an existing entry,
// preserving its name, timestamps and mode.
func WriteEntry(zw *zip.Writer, src *zip.File, data []byte) error {
	h := src.FileHeader
	h.Method = zip.Deflate
	h.CRC32 = 0
	h.CompressedSize64 = 0
	h.UncompressedSize64 = 0
	w, err := zw.CreateHeader(&h)
	if err != nil {
		return fmt.Errorf("create %s: %w", src.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", src.Name, err)
	}
	return nil
}
