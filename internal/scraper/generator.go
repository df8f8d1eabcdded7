package scraper

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/webscout/internal/session"
	"github.com/mohammad-safakhou/webscout/provider"
)

// Generator produces scraper code from a specification. With a provider the
// code is LLM-generated; without one a deterministic template is emitted so
// the pipeline works end to end with no external dependency.
type Generator struct {
	provider provider.Provider
	logger   *log.Logger
}

// NewGenerator builds a generator. The provider may be nil.
func NewGenerator(prov provider.Provider, logger *log.Logger) *Generator {
	if logger == nil {
		logger = log.New(log.Writer(), "[GENERATOR] ", log.LstdFlags)
	}
	return &Generator{provider: prov, logger: logger}
}

// Generate produces the first artifact version for the specification.
func (g *Generator) Generate(ctx context.Context, snap session.Session, specification string) session.GeneratedArtifact {
	artifact := session.GeneratedArtifact{
		ID:             uuid.NewString(),
		SessionID:      snap.ID,
		Version:        1,
		Status:         session.ArtifactInProgress,
		Specification:  specification,
		LastTestStatus: session.TestNotRun,
	}
	code := g.generateCode(ctx, snap, specification)
	if strings.TrimSpace(code) == "" {
		artifact.Status = session.ArtifactFailed
		return artifact
	}
	artifact.Code = code
	return artifact
}

// Refine produces the next code version for a failing artifact. The artifact
// keeps its identity and test history; only the version moves forward.
func (g *Generator) Refine(ctx context.Context, artifact *session.GeneratedArtifact, snap session.Session, last session.TestResult) {
	failure := last.ErrorMessage
	if failure == "" {
		var failed []string
		for _, d := range last.AssertionDetails {
			if !d.Passed {
				failed = append(failed, d.Description+": "+d.Message)
			}
		}
		failure = strings.Join(failed, "; ")
	}
	if last.StackTrace != "" {
		failure += "\n" + last.StackTrace
	}

	code := ""
	if g.provider != nil {
		generated, err := g.provider.RefineCode(ctx, artifact.Specification, artifact.Code, failure)
		if err != nil {
			g.logger.Printf("code refinement failed: %v", err)
		} else {
			code = generated
		}
	}
	if strings.TrimSpace(code) == "" {
		// Deterministic fallback: re-emit the template. If that still fails
		// the budget check will end the loop.
		code = fallbackTemplate(snap.TargetURL)
	}
	artifact.Version++
	artifact.Code = code
	artifact.Status = session.ArtifactInProgress
}

func (g *Generator) generateCode(ctx context.Context, snap session.Session, specification string) string {
	if g.provider != nil {
		code, err := g.provider.GenerateCode(ctx, specification)
		if err != nil {
			g.logger.Printf("code generation failed, using template: %v", err)
		} else if strings.TrimSpace(code) != "" {
			return code
		}
	}
	return fallbackTemplate(snap.TargetURL)
}

// fallbackTemplate is a minimal standalone scraper printing one JSON object
// with the mandatory url field.
func fallbackTemplate(targetURL string) string {
	return fmt.Sprintf(`#!/usr/bin/env python3
import json
import urllib.request

URL = %q

def main():
    req = urllib.request.Request(URL, headers={"User-Agent": "Webscout/1.0"})
    with urllib.request.urlopen(req, timeout=20) as resp:
        body = resp.read().decode("utf-8", errors="replace")
    print(json.dumps({
        "url": URL,
        "status": resp.status,
        "length": len(body),
        "title": extract_title(body),
    }))

def extract_title(body):
    lower = body.lower()
    start = lower.find("<title>")
    if start < 0:
        return ""
    end = lower.find("</title>", start)
    if end < 0:
        return ""
    return body[start + 7:end].strip()

if __name__ == "__main__":
    main()
`, targetURL)
}
