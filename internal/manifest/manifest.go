// Package manifest reads the release manifest that tells the service what
// artifacts exist, where to fetch them, and what checksum they must carry.
package manifest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"
)

var sha256Hex = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

// Artifact describes one downloadable release of a named product.
type Artifact struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	URL     string `yaml:"url"`
	SHA256  string `yaml:"sha256"`
	Size    int64  `yaml:"size"`
}

// NeedsUpdate reports whether this artifact is newer than the currently
// installed version.
func (a *Artifact) NeedsUpdate(current string) (bool, error) {
	have, err := semver.NewVersion(current)
	if err != nil {
		return false, fmt.Errorf("invalid installed version %q: %w", current, err)
	}

	offered, err := semver.NewVersion(a.Version)
	if err != nil {
		return false, fmt.Errorf("invalid manifest version %q: %w", a.Version, err)
	}

	return offered.GreaterThan(have), nil
}

// Manifest is the parsed release document.
type Manifest struct {
	Artifacts []Artifact `yaml:"artifacts"`
}

// Latest returns the highest-versioned artifact with the given name.
func (m *Manifest) Latest(name string) (*Artifact, bool) {
	var (
		best    *Artifact
		bestVer *semver.Version
	)

	for i := range m.Artifacts {
		a := &m.Artifacts[i]
		if a.Name != name {
			continue
		}

		v, err := semver.NewVersion(a.Version)
		if err != nil {
			continue
		}

		if bestVer == nil || v.GreaterThan(bestVer) {
			best = a
			bestVer = v
		}
	}

	return best, best != nil
}

// Parse decodes and validates a manifest document.
func Parse(r io.Reader) (*Manifest, error) {
	var m Manifest

	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	for i := range m.Artifacts {
		a := &m.Artifacts[i]

		if a.Name == "" || a.URL == "" {
			return nil, fmt.Errorf("manifest entry %d is missing a name or url", i)
		}

		if !sha256Hex.MatchString(a.SHA256) {
			return nil, fmt.Errorf("manifest entry %q has an invalid sha256 checksum", a.Name)
		}

		if _, err := semver.NewVersion(a.Version); err != nil {
			return nil, fmt.Errorf("manifest entry %q has an invalid version: %w", a.Name, err)
		}
	}

	return &m, nil
}

// Load reads a manifest from disk.
func Load(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}

	defer f.Close()

	return Parse(f)
}

// Fetch retrieves a manifest over HTTP using the given client, typically
// the same authenticated client used for artifact transfers.
func Fetch(ctx context.Context, client *http.Client, url string) (*Manifest, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build manifest request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch manifest: %w", err)
	}

	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("manifest fetch returned HTTP %d", resp.StatusCode)
	}

	return Parse(resp.Body)
}
