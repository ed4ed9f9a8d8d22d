package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/contentful/contentfultest"
)

func newTestApplier(t *testing.T, repo contentful.Repository, dryRun bool) *UpdateApplier {
	t.Helper()
	a, err := NewUpdateApplier(UpdateApplierOptions{
		Repository: repo,
		Builder:    newTestBuilder(t),
		Locale:     testLocale,
		DryRun:     dryRun,
	})
	require.NoError(t, err)
	return a
}

func indexFor(entries ...*contentful.Entry) *LookupIndex {
	return NewMatcher(MatcherOptions{}).BuildIndex(context.Background(), entries, testLocale)
}

func TestUpdateApplier_EligibilityFollowsPreUpdateState(t *testing.T) {
	t.Parallel()

	entries := []*contentful.Entry{
		gameEntry("draft", contentful.StateUnpublished, map[string]any{"launchCode": "D1"}),
		gameEntry("live", contentful.StatePublished, map[string]any{"launchCode": "P1"}),
		gameEntry("pending", contentful.StateChanged, map[string]any{"launchCode": "C1"}),
		gameEntry("gone", contentful.StateArchived, map[string]any{"launchCode": "A1"}),
	}
	repo := contentfultest.New(entries...)
	rows := []gamerow.Row{
		{"Game Code": "D1", "Volatility": "High"},
		{"Game Code": "P1", "Volatility": "High"},
		{"Game Code": "C1", "Volatility": "High"},
		{"Game Code": "A1", "Volatility": "High"},
	}

	res := newTestApplier(t, repo, false).Apply(context.Background(), rows, indexFor(entries...))

	assert.Equal(t, []string{"draft", "live", "pending", "gone"}, entryIDs(res.Updated))
	assert.Equal(t, []string{"live", "pending"}, entryIDs(res.Eligible))
	assert.NotContains(t, entryIDs(res.Eligible), "draft")

	// The eligible set carries the versions returned by the update.
	assert.Equal(t, 4, res.Eligible[0].Sys.Version)
	assert.Equal(t, 6, res.Eligible[1].Sys.Version)
}

func TestUpdateApplier_MergesOntoCurrentFields(t *testing.T) {
	t.Parallel()

	e := gameEntry("G1", contentful.StateChanged, map[string]any{"launchCode": "G1", "title": "Game One"})
	e.Fields["volatility"] = map[string]any{testLocale: "Low", "de-DE": "Niedrig"}
	repo := contentfultest.New(e)

	res := newTestApplier(t, repo, false).Apply(context.Background(),
		[]gamerow.Row{{"Game Code": "G1", "Volatility": "high", "Min Bet": "5"}}, indexFor(e))
	require.Len(t, res.Updated, 1)

	stored, ok := repo.Entry("G1")
	require.True(t, ok)
	assert.Equal(t, "Game One", stored.Fields["title"][testLocale])
	assert.Equal(t, "G1", stored.Fields["launchCode"][testLocale])
	assert.Equal(t, "High", stored.Fields["volatility"][testLocale])
	assert.Equal(t, "Niedrig", stored.Fields["volatility"]["de-DE"])
	assert.Equal(t, "£5.00", stored.Fields["minBet"][testLocale])
	assert.Equal(t, "Low", e.Fields["volatility"][testLocale], "snapshot entry is not mutated")
}

func TestUpdateApplier_SkipsDuplicatesMissesAndFailures(t *testing.T) {
	t.Parallel()

	one := gameEntry("one", contentful.StatePublished, map[string]any{
		"launchCode":         "G1",
		"gamePlatformConfig": map[string]any{"mobileGameSkin": "G1-mobile"},
	})
	two := gameEntry("two", contentful.StatePublished, map[string]any{"launchCode": "G2"})
	three := gameEntry("three", contentful.StatePublished, map[string]any{"launchCode": "G3"})
	repo := contentfultest.New(one, two, three)
	repo.UpdateErrs["two"] = errors.New("boom")

	rows := []gamerow.Row{
		{"Game Code": "G1", "Volatility": "Low"},
		{"Game Code": "G1-mobile", "Volatility": "High"},
		{"Game Code": "MISSING", "Volatility": "High"},
		{"Game Code": "G2", "Volatility": "High"},
		{"Game Code": "", "Volatility": "High"},
		{"Game Code": "G3"},
		{"Game Code": "G3", "RTP": "96%"},
	}
	res := newTestApplier(t, repo, false).Apply(context.Background(), rows, indexFor(one, two, three))

	assert.Equal(t, []string{"one", "three"}, entryIDs(res.Updated))
	assert.Equal(t, []string{"G1-mobile"}, res.Duplicates)
	assert.Equal(t, []string{"MISSING"}, res.NotFound)
	assert.Equal(t, []string{"G3"}, res.Unchanged)
	assert.Equal(t, 1, res.Blank)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "two", res.Failed[0].EntryID)
	assert.Contains(t, res.Failed[0].Error, "boom")
	assert.Equal(t, []string{"one", "two", "three"}, repo.UpdateCalls)
}

func TestUpdateApplier_DryRun(t *testing.T) {
	t.Parallel()

	e := gameEntry("G1", contentful.StatePublished, map[string]any{"launchCode": "G1", "volatility": "Low"})
	repo := contentfultest.New(e)

	res := newTestApplier(t, repo, true).Apply(context.Background(),
		[]gamerow.Row{{"Game Code": "G1", "Volatility": "High"}}, indexFor(e))

	assert.Empty(t, repo.UpdateCalls)
	assert.Empty(t, res.Updated)
	require.Len(t, res.Diffs, 1)
	assert.Equal(t, contentful.StatePublished, res.Diffs[0].State)
	patch, err := json.Marshal(res.Diffs[0].Patch)
	require.NoError(t, err)
	assert.Contains(t, string(patch), `"path":"/volatility/en-GB"`)
	assert.Contains(t, string(patch), `"value":"High"`)
}

func TestUpdateApplier_ProgressAndPause(t *testing.T) {
	t.Parallel()

	rec, bus := newRecorder()
	e := gameEntry("G1", contentful.StatePublished, map[string]any{"launchCode": "G1"})
	repo := contentfultest.New(e)
	a, err := NewUpdateApplier(UpdateApplierOptions{
		Repository: repo,
		Builder:    newTestBuilder(t),
		Pause:      20 * time.Millisecond,
		Progress:   NewProgress(bus),
	})
	require.NoError(t, err)

	start := time.Now()
	a.Apply(context.Background(), []gamerow.Row{
		{"Game Code": "G1", "Volatility": "High"},
		{"Game Code": "MISSING"},
	}, indexFor(e))

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, []int{50, 100, 0}, rec.update)
}

func TestUpdateApplier_StopsOnCancel(t *testing.T) {
	t.Parallel()

	e := gameEntry("G1", contentful.StatePublished, map[string]any{"launchCode": "G1"})
	repo := contentfultest.New(e)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestApplier(t, repo, false).Apply(ctx, []gamerow.Row{{"Game Code": "G1", "Volatility": "High"}}, indexFor(e))
	assert.Empty(t, res.Updated)
	assert.Empty(t, repo.UpdateCalls)
}

func TestNewUpdateApplier_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewUpdateApplier(UpdateApplierOptions{Repository: contentfultest.New()})
	require.Error(t, err)

	_, err = NewUpdateApplier(UpdateApplierOptions{Builder: newTestBuilder(t)})
	require.Error(t, err)

	_, err = NewUpdateApplier(UpdateApplierOptions{Builder: newTestBuilder(t), DryRun: true})
	require.NoError(t, err)
}
