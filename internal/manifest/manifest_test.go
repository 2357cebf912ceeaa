package manifest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const validManifest = `
artifacts:
  - name: app
    version: 1.2.3
    url: https://updates.example.com/app-1.2.3.pkg
    sha256: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
    size: 1048576
  - name: app
    version: 1.10.0
    url: https://updates.example.com/app-1.10.0.pkg
    sha256: BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB
    size: 2097152
  - name: agent
    version: 0.4.1
    url: https://updates.example.com/agent-0.4.1.pkg
    sha256: cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc
`

func TestParse(t *testing.T) {
	m, err := Parse(strings.NewReader(validManifest))
	require.NoError(t, err)
	require.Len(t, m.Artifacts, 3)
	require.Equal(t, int64(1048576), m.Artifacts[0].Size)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{
			name: "missing url",
			doc: `
artifacts:
  - name: app
    version: 1.0.0
    sha256: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
`,
		},
		{
			name: "short checksum",
			doc: `
artifacts:
  - name: app
    version: 1.0.0
    url: https://updates.example.com/app.pkg
    sha256: abc123
`,
		},
		{
			name: "checksum with non-hex characters",
			doc: `
artifacts:
  - name: app
    version: 1.0.0
    url: https://updates.example.com/app.pkg
    sha256: zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz
`,
		},
		{
			name: "unparseable version",
			doc: `
artifacts:
  - name: app
    version: not-a-version
    url: https://updates.example.com/app.pkg
    sha256: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
`,
		},
		{
			name: "not yaml",
			doc:  "{{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
		})
	}
}

func TestManifest_Latest(t *testing.T) {
	m, err := Parse(strings.NewReader(validManifest))
	require.NoError(t, err)

	// Semver ordering, not lexicographic: 1.10.0 > 1.2.3.
	art, ok := m.Latest("app")
	require.True(t, ok)
	require.Equal(t, "1.10.0", art.Version)

	art, ok = m.Latest("agent")
	require.True(t, ok)
	require.Equal(t, "0.4.1", art.Version)

	_, ok = m.Latest("unknown")
	require.False(t, ok)
}

func TestArtifact_NeedsUpdate(t *testing.T) {
	tests := []struct {
		name    string
		offered string
		current string
		want    bool
		wantErr bool
	}{
		{name: "newer version offered", offered: "1.10.0", current: "1.2.3", want: true},
		{name: "same version", offered: "1.2.3", current: "1.2.3", want: false},
		{name: "older version offered", offered: "1.2.3", current: "2.0.0", want: false},
		{name: "invalid installed version", offered: "1.2.3", current: "garbage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			art := &Artifact{Name: "app", Version: tt.offered}

			got, err := art.NeedsUpdate(tt.current)
			if tt.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(validManifest))
	}))
	defer srv.Close()

	m, err := Fetch(context.Background(), srv.Client(), srv.URL)
	require.NoError(t, err)
	require.Len(t, m.Artifacts, 3)
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := Fetch(context.Background(), srv.Client(), srv.URL)
	require.Error(t, err)
}
