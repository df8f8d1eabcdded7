package scraper

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// VersionDiff summarises how one artifact version differs from its
// predecessor, based on normalised content hashes.
type VersionDiff struct {
	Version      int       `json:"version"`
	CurrentHash  string    `json:"current_hash"`
	PreviousHash string    `json:"previous_hash,omitempty"`
	Changed      bool      `json:"changed"`
	Reasons      []string  `json:"reasons,omitempty"`
	LinesAdded   int       `json:"lines_added"`
	LinesRemoved int       `json:"lines_removed"`
	At           time.Time `json:"at"`
}

// NormalizeForDiff collapses whitespace to stabilise hash comparisons.
func NormalizeForDiff(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

// ContentHash computes a SHA-256 hash for the normalised content.
func ContentHash(content string) string {
	norm := NormalizeForDiff(content)
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// DiffVersions compares two code versions. Line deltas are a coarse count of
// lines present in one version and not the other.
func DiffVersions(version int, previous, current string, at time.Time) VersionDiff {
	diff := VersionDiff{
		Version:     version,
		CurrentHash: ContentHash(current),
		At:          at,
	}
	if previous == "" {
		diff.Changed = true
		diff.Reasons = append(diff.Reasons, "new_version")
		diff.LinesAdded = countLines(current)
		return diff
	}
	diff.PreviousHash = ContentHash(previous)
	if diff.PreviousHash != diff.CurrentHash {
		diff.Changed = true
		diff.Reasons = append(diff.Reasons, "hash_mismatch")
	}

	prevSet := lineSet(previous)
	currSet := lineSet(current)
	for line := range currSet {
		if !prevSet[line] {
			diff.LinesAdded++
		}
	}
	for line := range prevSet {
		if !currSet[line] {
			diff.LinesRemoved++
		}
	}
	return diff
}

func lineSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out[line] = true
		}
	}
	return out
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
