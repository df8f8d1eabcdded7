package scraper

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

func TestBuildPackage(t *testing.T) {
	snap := exploredSnapshot()
	artifact := session.GeneratedArtifact{
		ID:            "a1",
		Version:       3,
		Code:          "import json\nprint(json.dumps({\"url\": \"x\"}))\n",
		Specification: "Build a scraper",
		TestResults:   []session.TestResult{{Status: session.TestPassed, AssertionsPassed: 2}},
	}

	descriptor, payload, err := BuildPackage(snap, artifact)
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}
	if descriptor.SessionID != snap.ID || descriptor.Version != 3 {
		t.Fatalf("descriptor = %+v", descriptor)
	}
	if len(descriptor.Files) != 3 {
		t.Fatalf("descriptor lists %d files, want 3", len(descriptor.Files))
	}

	zr, err := zip.NewReader(bytes.NewReader(payload), int64(len(payload)))
	if err != nil {
		t.Fatalf("open package: %v", err)
	}
	contents := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		contents[f.Name] = string(data)
	}

	if contents["scraper.py"] != artifact.Code {
		t.Fatal("scraper.py does not match artifact code")
	}
	if contents["SPECIFICATION.txt"] != artifact.Specification {
		t.Fatal("SPECIFICATION.txt does not match the specification")
	}
	if contents["test_report.json"] == "" {
		t.Fatal("test_report.json is empty")
	}
}

func TestBuildPackageReproducible(t *testing.T) {
	snap := exploredSnapshot()
	artifact := session.GeneratedArtifact{ID: "a1", Version: 1, Code: "print(1)", Specification: "spec"}

	first, _, err := BuildPackage(snap, artifact)
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}
	second, _, err := BuildPackage(snap, artifact)
	if err != nil {
		t.Fatalf("BuildPackage: %v", err)
	}
	for i := range first.Files {
		if first.Files[i].SHA256 != second.Files[i].SHA256 || first.Files[i].Name != second.Files[i].Name {
			t.Fatalf("file entries differ between builds: %+v vs %+v", first.Files[i], second.Files[i])
		}
	}
}
