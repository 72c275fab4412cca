package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultRules_Order(t *testing.T) {
	rules := DefaultRules()

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	require.Equal(t, []string{
		"iam-user-registered",
		"guides-challenge-linked",
		"execution-analytics",
		"community-user-registered",
		"community-profile-updated",
		"challenges-solution-completed",
	}, names)
}

func TestParseManifest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		errMsg   string
	}{
		{
			name:     "invalid yaml",
			manifest: "rules: [",
			errMsg:   "failed to parse rule manifest",
		},
		{
			name:     "no rules",
			manifest: "rules: []",
			errMsg:   "defines no rules",
		},
		{
			name: "unknown decoder",
			manifest: `
rules:
  - name: r
    requires: [ts]
    timestamp_field: ts
    decoder: unix-millis
    event_type: e
    source: s`,
			errMsg: `unknown decoder "unix-millis"`,
		},
		{
			name: "timestamp field not required",
			manifest: `
rules:
  - name: r
    requires: [id]
    timestamp_field: ts
    decoder: epoch
    event_type: e
    source: s`,
			errMsg: "must be one of the required keys",
		},
		{
			name: "duplicate names",
			manifest: `
rules:
  - name: r
    requires: [ts]
    timestamp_field: ts
    decoder: epoch
    event_type: e
    source: s
  - name: r
    requires: [ts]
    timestamp_field: ts
    decoder: iso
    event_type: e
    source: s`,
			errMsg: `duplicate rule name "r"`,
		},
		{
			name: "missing event type",
			manifest: `
rules:
  - name: r
    requires: [ts]
    timestamp_field: ts
    decoder: epoch
    source: s`,
			errMsg: "event_type must be",
		},
		{
			name: "when without field",
			manifest: `
rules:
  - name: r
    requires: [ts]
    when:
      present: true
    timestamp_field: ts
    decoder: epoch
    event_type: e
    source: s`,
			errMsg: "when.field is required",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseManifest([]byte(tc.manifest))
			require.Error(t, err)
			require.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestLoadManifestFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, defaultManifest, 0o600))

	rules, err := LoadManifestFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 6)

	_, err = LoadManifestFile(filepath.Join(dir, "missing.yaml"))
	require.ErrorContains(t, err, "failed to read rule manifest")
}

func TestRule_MatchesWhen(t *testing.T) {
	absent := Rule{Requires: []string{"a"}, When: &When{Field: "url", Present: false}}
	present := Rule{Requires: []string{"a"}, When: &When{Field: "url", Present: true}}

	require.True(t, absent.Matches(map[string]interface{}{"a": 1}))
	require.True(t, absent.Matches(map[string]interface{}{"a": 1, "url": nil}))
	require.False(t, absent.Matches(map[string]interface{}{"a": 1, "url": ""}))

	require.False(t, present.Matches(map[string]interface{}{"a": 1}))
	require.False(t, present.Matches(map[string]interface{}{"a": 1, "url": nil}))
	require.True(t, present.Matches(map[string]interface{}{"a": 1, "url": ""}))

	require.False(t, present.Matches(map[string]interface{}{"url": "x"}))
}
