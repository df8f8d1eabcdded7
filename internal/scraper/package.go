package scraper

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/webscout/internal/session"
)

// PackagedFile describes one file inside a deliverable package.
type PackagedFile struct {
	Name   string `json:"name"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// PackageDescriptor describes a deliverable scraper package.
type PackageDescriptor struct {
	FileName  string         `json:"file_name"`
	SessionID string         `json:"session_id"`
	Version   int            `json:"version"`
	Files     []PackagedFile `json:"files"`
	CreatedAt time.Time      `json:"created_at"`
}

// BuildPackage assembles the deliverable zip for an artifact: the scraper
// code, its specification and the test report.
func BuildPackage(snap session.Session, artifact session.GeneratedArtifact) (PackageDescriptor, []byte, error) {
	report, err := json.MarshalIndent(artifact.TestResults, "", "  ")
	if err != nil {
		return PackageDescriptor{}, nil, fmt.Errorf("marshal test report: %w", err)
	}
	files := map[string][]byte{
		"scraper.py":        []byte(artifact.Code),
		"SPECIFICATION.txt": []byte(artifact.Specification),
		"test_report.json":  report,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	descriptor := PackageDescriptor{
		FileName:  fmt.Sprintf("scraper_%s_v%d.zip", snap.ID, artifact.Version),
		SessionID: snap.ID,
		Version:   artifact.Version,
		CreatedAt: time.Now(),
	}
	// Stable order so the package bytes are reproducible.
	for _, name := range []string{"scraper.py", "SPECIFICATION.txt", "test_report.json"} {
		content := files[name]
		w, err := zw.Create(name)
		if err != nil {
			return PackageDescriptor{}, nil, fmt.Errorf("add %s to package: %w", name, err)
		}
		if _, err := w.Write(content); err != nil {
			return PackageDescriptor{}, nil, fmt.Errorf("write %s: %w", name, err)
		}
		sum := sha256.Sum256(content)
		descriptor.Files = append(descriptor.Files, PackagedFile{
			Name:   name,
			Size:   len(content),
			SHA256: hex.EncodeToString(sum[:]),
		})
	}
	if err := zw.Close(); err != nil {
		return PackageDescriptor{}, nil, fmt.Errorf("finalize package: %w", err)
	}
	return descriptor, buf.Bytes(), nil
}
