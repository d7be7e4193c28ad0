package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitolarchive/crmirror/internal/config"
	"github.com/capitolarchive/crmirror/internal/manifest"
)

func hookMirror(t *testing.T, script string) *mirror {
	t.Helper()

	dataDir := t.TempDir()
	hookPath := filepath.Join(dataDir, "hook.sh")
	require.NoError(t, os.WriteFile(hookPath, []byte(script), 0o755))

	return &mirror{
		cfg: &config.Config{
			UpdateHook:    hookPath,
			ManifestKey:   "all_issues.json",
			FirstCongress: 115,
		},
		fs:      osfs.New("/"),
		logger:  slog.Default(),
		dataDir: dataDir,
		issues: []manifest.Issue{
			{Congress: 119, IssueDate: "2025-01-03T05:00:00Z", IssueNumber: "1", VolumeNumber: 171},
		},
	}
}

func TestRunUpdateHookManifestRoundTrip(t *testing.T) {
	// The hook must find the fetched manifest on disk, and whatever it
	// writes back must become the manifest the sync step publishes.
	m := hookMirror(t, `#!/bin/sh
cp "$CRMIRROR_MANIFEST" "$CRMIRROR_MANIFEST.orig"
cat > "$CRMIRROR_MANIFEST" <<'EOF'
[
  {"congress":119,"issueDate":"2025-01-06T05:00:00Z","issueNumber":"2","volumeNumber":171},
  {"congress":119,"issueDate":"2025-01-03T05:00:00Z","issueNumber":"1","volumeNumber":171}
]
EOF
`)

	require.NoError(t, m.runUpdateHook(context.Background()))

	orig, err := os.ReadFile(filepath.Join(m.dataDir, "all_issues.json.orig"))
	require.NoError(t, err, "the hook must see the fetched manifest")
	assert.Contains(t, string(orig), `"issueNumber": "1"`)
	assert.NotContains(t, string(orig), `"issueNumber": "2"`)

	require.Len(t, m.issues, 2, "the hook's manifest must be loaded back")
	assert.Equal(t, "2", m.issues[0].IssueNumber, "issues must come back newest first")
	assert.Equal(t, "1", m.issues[1].IssueNumber)
}

func TestRunUpdateHookRequiresManifestBack(t *testing.T) {
	m := hookMirror(t, `#!/bin/sh
rm -f "$CRMIRROR_MANIFEST"
`)

	err := m.runUpdateHook(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "left no readable manifest")
	require.Len(t, m.issues, 1, "the fetched manifest must survive a broken hook")
}

func TestRunUpdateHookBlankCommand(t *testing.T) {
	m := hookMirror(t, "#!/bin/sh\n")
	m.cfg.UpdateHook = "   "

	err := m.runUpdateHook(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blank")
}

func TestCongressStart(t *testing.T) {
	assert.Equal(t, 2017, congressStart(115).Year())
	assert.Equal(t, 2025, congressStart(119).Year())
	assert.Equal(t, 1789, congressStart(1).Year())
}
