// Package mappings reads tiny-format symbol tables and appends the bonus
// field rows the merged archive needs published under friendly names.
package mappings

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"class-merger/internal/config"
)

// MemberRow is one FIELD or METHOD line: the member's owner and descriptor
// under the table's first namespace, plus its name under every namespace in
// header order.
type MemberRow struct {
	Owner string
	Desc  string
	Names []string
}

// Table is a parsed tiny v1 mapping file.
type Table struct {
	Namespaces []string
	Fields     []MemberRow
	Methods    []MemberRow
}

// Parse decodes a tiny v1 payload. Class rows are skipped; only member rows
// matter here.
func Parse(data []byte) (*Table, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	if !sc.Scan() {
		return nil, fmt.Errorf("mappings: empty file")
	}
	header := strings.Split(sc.Text(), "\t")
	if len(header) < 3 || header[0] != "v1" {
		return nil, fmt.Errorf("mappings: unsupported header %q", sc.Text())
	}
	t := &Table{Namespaces: header[1:]}

	line := 1
	for sc.Scan() {
		line++
		text := sc.Text()
		if text == "" {
			continue
		}
		cols := strings.Split(text, "\t")
		switch cols[0] {
		case "CLASS":
			continue
		case "FIELD", "METHOD":
			if len(cols) != 3+len(t.Namespaces) {
				return nil, fmt.Errorf("mappings: line %d: %d columns, want %d", line, len(cols), 3+len(t.Namespaces))
			}
			row := MemberRow{Owner: cols[1], Desc: cols[2], Names: cols[3:]}
			if cols[0] == "FIELD" {
				t.Fields = append(t.Fields, row)
			} else {
				t.Methods = append(t.Methods, row)
			}
		default:
			return nil, fmt.Errorf("mappings: line %d: unknown row type %q", line, cols[0])
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("mappings: scan: %w", err)
	}
	return t, nil
}

// Load parses a tiny mapping file from disk.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mappings: read %s: %w", path, err)
	}
	return Parse(data)
}

// Namespace returns the column index of a namespace name.
func (t *Table) Namespace(name string) (int, bool) {
	for i, ns := range t.Namespaces {
		if ns == name {
			return i, true
		}
	}
	return 0, false
}

// FieldName returns a field's name under the given namespace, looked up by
// its name under another namespace.
func (t *Table) FieldName(haveNS, haveName, wantNS string) (string, bool) {
	hi, ok := t.Namespace(haveNS)
	if !ok {
		return "", false
	}
	wi, ok := t.Namespace(wantNS)
	if !ok {
		return "", false
	}
	for _, row := range t.Fields {
		if row.Names[hi] == haveName {
			return row.Names[wi], true
		}
	}
	return "", false
}

// Augment appends the configured bonus field rows to a tiny mapping file
// and returns how many rows it added. A table whose intermediary names
// already carry the suffix marker is left untouched, making repeated runs
// no-ops.
func Augment(path string, m config.Mappings) (int, error) {
	t, err := Load(path)
	if err != nil {
		return 0, err
	}
	interIdx, ok := t.Namespace("intermediary")
	if !ok {
		return 0, fmt.Errorf("mappings: %s: no intermediary namespace in %v", path, t.Namespaces)
	}
	officialIdx, ok := t.Namespace("official")
	if !ok {
		return 0, fmt.Errorf("mappings: %s: no official namespace in %v", path, t.Namespaces)
	}

	var extra []string
	for _, row := range t.Fields {
		if strings.HasSuffix(row.Names[interIdx], m.Suffix) {
			return 0, nil // already augmented
		}
		for _, b := range m.Bonus {
			if row.Names[interIdx] != b.Intermediate {
				continue
			}
			cols := []string{"FIELD", row.Owner, row.Desc}
			for i := range t.Namespaces {
				if i == officialIdx {
					cols = append(cols, b.Name)
				} else {
					cols = append(cols, b.Name+m.Suffix)
				}
			}
			extra = append(extra, strings.Join(cols, "\t"))
		}
	}
	if len(extra) == 0 {
		return 0, nil
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return 0, fmt.Errorf("mappings: append %s: %w", path, err)
	}
	defer f.Close()
	for _, row := range extra {
		if _, err := fmt.Fprintln(f, row); err != nil {
			return 0, fmt.Errorf("mappings: append %s: %w", path, err)
		}
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("mappings: append %s: %w", path, err)
	}
	return len(extra), nil
}
