package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/gamesync/modules/catalog/services"
	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/contentful/contentfultest"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"plain", errors.New("x"), 1},
		{"validation", withCode(exitValidation, errors.New("bad row")), exitValidation},
		{"wrapped", fmt.Errorf("outer: %w", withCode(exitRemote, errors.New("503"))), exitRemote},
		{"partial", withCode(exitPartial, errors.New("invalid")), exitPartial},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
	assert.NoError(t, withCode(exitUsage, nil))
}

func quietEnv(t *testing.T) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("UPDATE_PAUSE", "0s")
	t.Setenv("BULK_POLL_INTERVAL", "0s")
	t.Setenv("PROMETHEUS_METRICS_ENABLED", "false")
	t.Setenv("OTEL_ENABLED", "false")
	t.Setenv("CATALOG_PATH", "")
}

func writeFixtures(t *testing.T, csv string, entries ...*contentful.Entry) (string, string) {
	t.Helper()
	dir := t.TempDir()

	sheet := filepath.Join(dir, "games.csv")
	require.NoError(t, os.WriteFile(sheet, []byte(csv), 0o644))

	b, err := json.Marshal(map[string]any{"items": entries})
	require.NoError(t, err)
	snapshot := filepath.Join(dir, "entries.json")
	require.NoError(t, os.WriteFile(snapshot, b, 0o644))
	return sheet, snapshot
}

func TestRunSync_AgainstFakeRepository(t *testing.T) {
	quietEnv(t)

	entry := contentfultest.NewEntry("entry-g1", "siteGame", contentful.StateChanged,
		contentfultest.Localized("en-GB", map[string]any{"launchCode": "G1"}))
	sheet, snapshot := writeFixtures(t, "Game Code,Min Bet\nG1,5\nMISSING,\n", entry)
	reportPath := filepath.Join(t.TempDir(), "out", "report.json")

	var out bytes.Buffer
	err := runSync(context.Background(), &globalOptions{fakeEntries: snapshot},
		syncOptions{file: sheet, report: reportPath}, &out)
	require.NoError(t, err)

	var summary syncSummary
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, 2, summary.Rows)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, 1, summary.Eligible)
	assert.Equal(t, []string{"MISSING"}, summary.NotFound)
	assert.Equal(t, 1, summary.Chunks)
	assert.Empty(t, summary.InvalidEntryIDs)

	raw, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report services.Report
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, services.OutcomeSucceeded, report.Bulk.Chunks[0].Outcome)
}

func TestRunSync_Errors(t *testing.T) {
	quietEnv(t)

	entry := contentfultest.NewEntry("e1", "siteGame", contentful.StatePublished, nil)
	sheet, snapshot := writeFixtures(t, "Title\nx\n", entry)

	err := runSync(context.Background(), &globalOptions{fakeEntries: snapshot}, syncOptions{file: sheet}, &bytes.Buffer{})
	assert.Equal(t, exitValidation, exitCode(err), "missing key column")

	err = runSync(context.Background(), &globalOptions{fakeEntries: snapshot}, syncOptions{file: "missing.xlsx"}, &bytes.Buffer{})
	assert.Equal(t, exitUsage, exitCode(err))

	t.Setenv("CONTENTFUL_SPACE_ID", "")
	t.Setenv("CONTENTFUL_MANAGEMENT_TOKEN", "")
	err = runSync(context.Background(), &globalOptions{}, syncOptions{file: sheet}, &bytes.Buffer{})
	assert.Equal(t, exitUsage, exitCode(err), "credentials are required without a fake repository")
}

func TestRunPreview(t *testing.T) {
	quietEnv(t)

	entry := contentfultest.NewEntry("entry-g1", "siteGame", contentful.StatePublished,
		contentfultest.Localized("en-GB", map[string]any{"launchCode": "G1", "volatility": "Low"}))
	sheet, snapshot := writeFixtures(t, "Game Code,Volatility\nG1,high\nNOPE,low\n", entry)

	var out bytes.Buffer
	require.NoError(t, runPreview(context.Background(), &globalOptions{fakeEntries: snapshot},
		previewOptions{file: sheet}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"entryId":"entry-g1"`)
	assert.Contains(t, lines[0], `/volatility/en-GB`)
	assert.JSONEq(t, `{"key":"NOPE","status":"not_found"}`, lines[1])
}

func TestRunPreview_VentureColumnFromEnv(t *testing.T) {
	quietEnv(t)
	t.Setenv("SHEET_VENTURE_COLUMN", "Brand")

	plain := contentfultest.NewEntry("entry-plain", "siteGame", contentful.StatePublished,
		contentfultest.Localized("en-GB", map[string]any{"launchCode": "G1"}))
	shared := contentfultest.NewEntry("entry-vg", "siteGame", contentful.StatePublished,
		contentfultest.Localized("en-GB", map[string]any{"launchCode": "G1 (vg)"}))
	sheet, snapshot := writeFixtures(t, "Game Code,Brand,Volatility\nG1,vg,high\n", plain, shared)

	var out bytes.Buffer
	require.NoError(t, runPreview(context.Background(), &globalOptions{fakeEntries: snapshot},
		previewOptions{file: sheet}, &out))
	assert.Contains(t, out.String(), `"entryId":"entry-vg"`)
}

func TestRunValidateSheet(t *testing.T) {
	quietEnv(t)

	sheet, _ := writeFixtures(t, "Game Code,Volatility,Venture\nG1,hgh,vg\n,low,\nG3,,\n")

	var out bytes.Buffer
	require.NoError(t, runValidateSheet(context.Background(), &globalOptions{}, validateSheetOptions{file: sheet}, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.JSONEq(t, `{"line":2,"key":"G1","payload":{"volatility":"High"}}`, lines[0])
	assert.JSONEq(t, `{"line":3,"key":"","payload":{"volatility":"Low"},"warning":"missing key"}`, lines[1])
	assert.JSONEq(t, `{"line":4,"key":"G3","payload":{},"warning":"no recognized values"}`, lines[2])

	err := runValidateSheet(context.Background(), &globalOptions{}, validateSheetOptions{file: sheet, strict: true}, &bytes.Buffer{})
	assert.Equal(t, exitValidation, exitCode(err))
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	for _, name := range []string{"sync", "preview", "validate-sheet"} {
		found, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, found.Name())
	}
}
