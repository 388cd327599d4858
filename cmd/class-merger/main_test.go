package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"class-merger/internal/changes"
	"class-merger/internal/merge"
)

func sampleReport() *merge.Report {
	return &merge.Report{
		Manifest: []*changes.ClassChanges{{
			Name:         "test/Foo",
			AddedFields:  []string{"y;;I"},
			AddedMethods: []string{"fresh()V"},
		}},
	}
}

func TestWriteManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "manifest.json")
	if err := writeManifest(path, sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	var decoded []*changes.ClassChanges
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0].Name != "test/Foo" {
		t.Fatalf("decoded = %+v", decoded)
	}
	if len(decoded[0].AddedFields) != 1 || decoded[0].AddedFields[0] != "y;;I" {
		t.Fatalf("added fields = %v", decoded[0].AddedFields)
	}
}

func TestWriteReportToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	if err := writeReport(path, sampleReport(), 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !strings.Contains(string(data), "class test/Foo") {
		t.Fatalf("report content:\n%s", data)
	}
}
