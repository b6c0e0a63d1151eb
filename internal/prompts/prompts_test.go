package prompts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	defaults, err := Defaults()
	require.NoError(t, err)
	require.NotEmpty(t, defaults)

	seen := make(map[string]bool)
	for _, p := range defaults {
		assert.NotEmpty(t, p.ID)
		assert.NotEmpty(t, p.Content)
		assert.False(t, seen[p.ID], "duplicate id %s", p.ID)
		seen[p.ID] = true
	}
}

func TestLoad_NoUserFile(t *testing.T) {
	defaults, err := Defaults()
	require.NoError(t, err)

	got, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, defaults, got)

	got, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, defaults, got)
}

func TestLoad_UserPromptsAppended(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`prompts:
  - id: strict-reviewer
    content: Review with extreme prejudice.
`), 0o644))

	defaults, err := Defaults()
	require.NoError(t, err)

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, len(defaults)+1)
	assert.Equal(t, "strict-reviewer", got[len(got)-1].ID)
}

func TestLoad_UserOverridesDefault(t *testing.T) {
	defaults, err := Defaults()
	require.NoError(t, err)
	require.NotEmpty(t, defaults)
	overrideID := defaults[0].ID

	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`prompts:
  - id: `+overrideID+`
    content: Replaced content.
`), 0o644))

	got, err := Load(path)
	require.NoError(t, err)
	require.Len(t, got, len(defaults))
	assert.Equal(t, overrideID, got[0].ID)
	assert.Equal(t, "Replaced content.", got[0].Content)
}

func TestLoad_InvalidUserFile(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"empty id", "prompts:\n  - id: \"\"\n    content: x\n"},
		{"empty content", "prompts:\n  - id: p\n    content: \"\"\n"},
		{"duplicate ids", "prompts:\n  - id: p\n    content: a\n  - id: p\n    content: b\n"},
		{"not yaml", "{{{{"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "prompts.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tc.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}
