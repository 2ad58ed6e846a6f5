package storagepath

import (
	"strings"
	"testing"

	"github.com/scenehub/scenehub-backend/internal/upload/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	chain := Chain{
		ProjectName: "Acme Tower",
		ProjectID:   "p1",
		OptionID:    "o1",
		ScenarioID:  "s1",
	}

	tests := []struct {
		fileKind types.FileKind
		want     string
	}{
		{types.FileKindModel, "acme_tower_p1/options/o1/model_1700000000000.glb"},
		{types.FileKindProcessedRecording, "acme_tower_p1/records/records_glb/o1/s1/processed_recording_1700000000000.glb"},
		{types.FileKindRawRecording, "acme_tower_p1/records/records_raw/o1/s1/raw_recording_1700000000000.json"},
		{types.FileKindContext, "acme_tower_p1/context/context_1700000000000.json"},
		{types.FileKindHeatmap, "acme_tower_p1/heatmaps/heatmap_1700000000000.png"},
	}

	for _, tt := range tests {
		t.Run(tt.fileKind.String(), func(t *testing.T) {
			got, err := Resolve(chain, tt.fileKind, 1700000000000)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolve_Deterministic(t *testing.T) {
	chain := Chain{ProjectName: "Acme", ProjectID: "p1", OptionID: "o1"}

	a, err := Resolve(chain, types.FileKindModel, 42)
	require.NoError(t, err)
	b, err := Resolve(chain, types.FileKindModel, 42)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Resolve(chain, types.FileKindModel, 43)
	require.NoError(t, err)
	assert.NotEqual(t, a, c)
}

func TestResolve_MissingChainLinks(t *testing.T) {
	_, err := Resolve(Chain{}, types.FileKindContext, 1)
	assert.Error(t, err)

	// Model needs the option; recordings need option and scenario.
	_, err = Resolve(Chain{ProjectID: "p1"}, types.FileKindModel, 1)
	assert.Error(t, err)

	_, err = Resolve(Chain{ProjectID: "p1", OptionID: "o1"}, types.FileKindProcessedRecording, 1)
	assert.Error(t, err)

	_, err = Resolve(Chain{ProjectID: "p1", OptionID: "o1"}, types.FileKindRawRecording, 1)
	assert.Error(t, err)

	// Heatmaps live at the project level and need no option.
	got, err := Resolve(Chain{ProjectID: "p1"}, types.FileKindHeatmap, 1)
	require.NoError(t, err)
	assert.Equal(t, "p1/heatmaps/heatmap_1.png", got)
}

func TestEntityPrefixes(t *testing.T) {
	chain := Chain{ProjectName: "Acme", ProjectID: "p1", OptionID: "o1", ScenarioID: "s1"}

	prefixes, err := EntityPrefixes(chain, types.EntityKindProject)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_p1/context/", "acme_p1/heatmaps/"}, prefixes)

	prefixes, err = EntityPrefixes(chain, types.EntityKindOption)
	require.NoError(t, err)
	assert.Equal(t, []string{"acme_p1/options/o1/"}, prefixes)

	prefixes, err = EntityPrefixes(chain, types.EntityKindRecord)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"acme_p1/records/records_glb/o1/s1/",
		"acme_p1/records/records_raw/o1/s1/",
	}, prefixes)
}

// A project's own prefixes must not reach into its options' or records'
// subtrees, or a project reset would take completed child files with it.
func TestEntityPrefixes_ProjectExcludesChildSlots(t *testing.T) {
	chain := Chain{ProjectName: "Acme", ProjectID: "p1", OptionID: "o1", ScenarioID: "s1"}

	modelPath, err := Resolve(chain, types.FileKindModel, 99)
	require.NoError(t, err)
	recordingPath, err := Resolve(chain, types.FileKindProcessedRecording, 99)
	require.NoError(t, err)

	prefixes, err := EntityPrefixes(chain, types.EntityKindProject)
	require.NoError(t, err)
	for _, p := range prefixes {
		assert.False(t, strings.HasPrefix(modelPath, p), "prefix %q covers %q", p, modelPath)
		assert.False(t, strings.HasPrefix(recordingPath, p), "prefix %q covers %q", p, recordingPath)
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Acme Tower", "acme_tower"},
		{"  spaced   out  ", "spaced_out"},
		{"Ünïcode & Symbols!!", "n_code_symbols"},
		{"already_clean", "already_clean"},
		{"UPPER", "upper"},
		{"___", ""},
		{"", ""},
		{"42nd Street", "42nd_street"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Sanitize(tt.in), "input %q", tt.in)
	}
}
