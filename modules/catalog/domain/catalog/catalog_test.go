package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cells map[string]string

func (c cells) String(column string) string { return c[column] }

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	assert.True(t, c.GameTypes().Contains(LiveCasino))
	assert.Equal(t, Enumeration{"Yes", "All"}, c.Truthy())
	assert.Equal(t, Enumeration{"n/a", "*"}, c.Invalid())
	require.Len(t, c.Rules(), 1)
}

func TestCatalog_AccessorsReturnCopies(t *testing.T) {
	t.Parallel()

	c := Default()
	v := c.Volatility()
	v[0] = "mutated"
	assert.Equal(t, "Low", c.Volatility()[0])
}

func TestParse(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(`
enumerations:
  volatility: [" Low ", "High", "High", ""]
rules:
  - code: STARBURST
    column: Brand
    contains: mr
    suffix: " (mr)"
`))
	require.NoError(t, err)
	assert.Equal(t, Enumeration{"Low", "High"}, c.Volatility())
	assert.Equal(t, Default().Themes(), c.Themes(), "absent lists keep the defaults")
	require.Len(t, c.Rules(), 1)
	assert.Equal(t, "STARBURST", c.Rules()[0].Code)
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown enumeration", "enumerations:\n  colours: [red]\n", "unknown enumeration"},
		{"empty enumeration", "enumerations:\n  themes: [\"\"]\n", "is empty"},
		{"rule without column", "rules:\n  - contains: vg\n    suffix: x\n", "column is required"},
		{"rule without suffix", "rules:\n  - column: Venture\n    contains: vg\n", "suffix is required"},
		{"broken yaml", "enumerations: [", "decode yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_EmptyRulesDisablesDefaults(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte("rules: []\n"))
	require.NoError(t, err)
	assert.Empty(t, c.Rules())
	assert.Equal(t, "G1", c.ResolveKey("G1", cells{"Venture": "vg"}, func(string) bool { return true }))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Features(), c.Features())

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("enumerations:\n  features: [Megaways]\n"), 0o644))
	c, err = Load(path)
	require.NoError(t, err)
	assert.Equal(t, Enumeration{"Megaways"}, c.Features())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestResolveKey(t *testing.T) {
	t.Parallel()

	c, err := Parse([]byte(`
rules:
  - code: SHARED
    column: Brand
    contains: MR
    suffix: " (mr)"
  - column: Venture
    contains: vg
    suffix: " (vg)"
`))
	require.NoError(t, err)

	known := func(key string) bool {
		switch key {
		case "G1 (vg)", "shared (mr)":
			return true
		}
		return false
	}

	tests := []struct {
		name string
		key  string
		row  cells
		want string
	}{
		{"no marker", "G1", cells{"Venture": "main"}, "G1"},
		{"venture suffix", "G1", cells{"Venture": "VG-UK"}, "G1 (vg)"},
		{"unshared code keeps plain key", "G2", cells{"Venture": "vg"}, "G2"},
		{"already suffixed", "G1 (vg)", cells{"Venture": "vg"}, "G1 (vg)"},
		{"code specific rule first", "shared", cells{"Brand": "mr", "Venture": "vg"}, "shared (mr)"},
		{"code specific rule skipped for other codes", "OTHER", cells{"Brand": "mr"}, "OTHER"},
		{"trimmed", "  G2 ", cells{}, "G2"},
		{"empty key", "", cells{"Venture": "vg"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, c.ResolveKey(tt.key, tt.row, known))
		})
	}
}

func TestResolveKey_WithoutKnownKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "G1", Default().ResolveKey("G1", cells{"Venture": "vg"}, nil))
}

func TestWithVentureColumn(t *testing.T) {
	t.Parallel()

	base := Default()
	c := base.WithVentureColumn("Brand")
	known := func(key string) bool { return key == "G1 (vg)" }

	assert.Equal(t, "G1 (vg)", c.ResolveKey("G1", cells{"Brand": "vg"}, known))
	assert.Equal(t, "G1", c.ResolveKey("G1", cells{"Venture": "vg"}, known))
	assert.Equal(t, VentureColumn, base.Rules()[0].Column, "the receiver is not modified")
	assert.Equal(t, base.Rules(), Default().WithVentureColumn("  ").Rules())
}
