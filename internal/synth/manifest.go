package synth

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ancients-collective/cliprobe/internal/types"
)

// ManifestFile is written next to the suites.
const ManifestFile = "manifest.json"

// Manifest lists every suite and case written by a generation run. The
// runner uses it to classify failures and to account for cases a timed-out
// suite never reported.
type Manifest struct {
	BinaryName  string            `json:"binary_name"`
	BinaryPath  string            `json:"binary_path"`
	Fingerprint string            `json:"fingerprint,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
	Policy      map[string]string `json:"policy"`
	Suites      []ManifestSuite   `json:"suites"`
}

// ManifestSuite describes one written script.
type ManifestSuite struct {
	Category types.Category `json:"category"`
	File     string         `json:"file"`
	Cases    []ManifestCase `json:"cases"`
}

// ManifestCase describes one written @test block.
type ManifestCase struct {
	ID     string            `json:"id"`
	Title  string            `json:"title"`
	Tags   []string          `json:"tags"`
	Expect types.Expectation `json:"expect"`
}

// Informational reports whether failures of the case are informational.
func (c ManifestCase) Informational() bool {
	for _, t := range c.Tags {
		if t == types.TagInformational {
			return true
		}
	}
	return false
}

// Suite returns the manifest entry for a category.
func (m *Manifest) Suite(c types.Category) (*ManifestSuite, bool) {
	for i := range m.Suites {
		if m.Suites[i].Category == c {
			return &m.Suites[i], true
		}
	}
	return nil, false
}

func newManifest(res *Result, now time.Time) *Manifest {
	m := &Manifest{
		BinaryName:  res.BinaryName,
		BinaryPath:  res.BinaryPath,
		Fingerprint: res.Fingerprint,
		GeneratedAt: now.UTC(),
		Policy:      make(map[string]string, len(res.Policy)),
		Suites:      make([]ManifestSuite, 0, len(res.Suites)),
	}
	for c, tag := range res.Policy {
		m.Policy[string(c)] = tag
	}
	for _, s := range res.Suites {
		ms := ManifestSuite{Category: s.Category, File: s.File, Cases: make([]ManifestCase, 0, len(s.Cases))}
		for _, tc := range s.Cases {
			ms.Cases = append(ms.Cases, ManifestCase{ID: tc.ID, Title: tc.Title(), Tags: tc.Tags, Expect: tc.Expect})
		}
		m.Suites = append(m.Suites, ms)
	}
	return m
}

// LoadManifest reads the manifest from a suite directory.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
