package agent

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBuild_ConcatenatesSectionsInOrder(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	script, err := b.Build()
	require.NoError(t, err)

	s := string(script)
	markers := []string{
		"Generated by humanitz-core's AgentBuilder",
		"class BinaryReader",
		"class PropertyReader",
		"class SaveParser",
		"function main()",
	}

	lastIdx := -1
	for _, marker := range markers {
		idx := strings.Index(s, marker)
		require.Greater(t, idx, lastIdx, "marker %q must appear after the previous section", marker)
		lastIdx = idx
	}
}

func TestBuild_TemplatesFormatVersion(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	script, err := b.Build()
	require.NoError(t, err)

	require.Contains(t, string(script), "const FORMAT_VERSION = 1;")
}

func TestNew_ParsesEmbeddedTemplatesOnce(t *testing.T) {
	b1, err := New()
	require.NoError(t, err)
	b2, err := New()
	require.NoError(t, err)

	s1, err := b1.Build()
	require.NoError(t, err)
	s2, err := b2.Build()
	require.NoError(t, err)

	// Build ID is fresh per call, so strip it before comparing the rest of
	// the assembled script byte-for-byte.
	strip := func(s string) string {
		start := strings.Index(s, "const BUILD_ID")
		end := strings.Index(s[start:], "\n")
		return s[:start] + s[start+end:]
	}
	require.Equal(t, strip(string(s1)), strip(string(s2)))
}

func TestBuild_StampsFreshBuildIDPerCall(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	s1, err := b.Build()
	require.NoError(t, err)
	s2, err := b.Build()
	require.NoError(t, err)

	require.NotEqual(t, string(s1), string(s2), "each Build must stamp a distinct BUILD_ID")
}
