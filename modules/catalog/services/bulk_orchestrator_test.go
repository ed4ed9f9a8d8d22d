package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/contentful/contentfultest"
)

func newTestOrchestrator(t *testing.T, repo contentful.Repository, progress *Progress) *BulkOrchestrator {
	t.Helper()
	o, err := NewBulkOrchestrator(BulkOrchestratorOptions{
		Repository: repo,
		Progress:   progress,
	})
	require.NoError(t, err)
	return o
}

func TestPartition(t *testing.T) {
	t.Parallel()

	entries := numberedEntries(450, contentful.StatePublished)
	chunks := Partition(entries, 200)

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Refs, 200)
	assert.Len(t, chunks[1].Refs, 200)
	assert.Len(t, chunks[2].Refs, 50)

	var all []string
	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		all = append(all, ids(c.Refs)...)
	}
	assert.Equal(t, entryIDs(entries), all, "chunks cover every entry once, in order")

	assert.Empty(t, Partition(nil, 200))
	assert.Len(t, Partition(entries[:3], 0), 1, "non-positive size falls back to the default")
}

func TestBulkOrchestrator_ProgressReachesHundredAfterLastChunk(t *testing.T) {
	t.Parallel()

	rec, bus := newRecorder()
	entries := numberedEntries(450, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	repo.PendingPolls = 2

	res := newTestOrchestrator(t, repo, NewProgress(bus)).Run(context.Background(), entries)

	require.Len(t, res.Chunks, 3)
	for _, c := range res.Chunks {
		assert.Equal(t, OutcomeSucceeded, c.Outcome)
	}
	assert.Empty(t, res.InvalidEntryIDs)
	assert.Equal(t, []int{200, 200, 50}, []int{len(repo.ValidateCalls[0]), len(repo.ValidateCalls[1]), len(repo.ValidateCalls[2])})
	assert.Equal(t, []int{200, 200, 50}, []int{len(repo.PublishCalls[0]), len(repo.PublishCalls[1]), len(repo.PublishCalls[2])})
	assert.Equal(t, 6*3, repo.StatusCalls, "three polls per bulk action, two actions per chunk")

	assert.Equal(t, []string{
		"progress:33", "chunk:0",
		"progress:66", "chunk:1",
		"progress:100", "chunk:2",
		"progress:0",
	}, rec.log)

	published, ok := repo.Entry("e449")
	require.True(t, ok)
	assert.Equal(t, contentful.StatePublished, published.PublishState())
}

func TestBulkOrchestrator_IsolatesFailedMembers(t *testing.T) {
	t.Parallel()

	for name, shape := range map[string]contentfultest.DetailShape{
		"entity links": contentfultest.ShapeEntityLinks,
		"flat ids":     contentfultest.ShapeFlatIDs,
	} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			entries := numberedEntries(450, contentful.StatePublished)
			repo := contentfultest.New(entries...)
			repo.Shape = shape
			repo.InvalidIDs["e250"] = true
			repo.InvalidIDs["e310"] = true

			progress := NewProgress(nil)
			res := newTestOrchestrator(t, repo, progress).Run(context.Background(), entries)

			require.Len(t, repo.PublishCalls, 3)
			assert.Len(t, repo.PublishCalls[0], 200)
			assert.Len(t, repo.PublishCalls[1], 198)
			assert.Len(t, repo.PublishCalls[2], 50)
			assert.NotContains(t, ids(repo.PublishCalls[1]), "e250")
			assert.NotContains(t, ids(repo.PublishCalls[1]), "e310")
			assert.Equal(t, "e200", repo.PublishCalls[1][0].ID, "member order is preserved")

			assert.Equal(t, []string{"e250", "e310"}, res.InvalidEntryIDs)
			assert.Equal(t, []string{"e250", "e310"}, progress.Snapshot().InvalidEntryIDs)

			assert.Equal(t, OutcomeSucceeded, res.Chunks[0].Outcome)
			assert.Equal(t, OutcomePartiallyFailed, res.Chunks[1].Outcome)
			assert.Equal(t, OutcomeSucceeded, res.Chunks[2].Outcome)
			assert.Equal(t, 198, res.Chunks[1].Published)
			assert.Equal(t, []ChunkState{
				ChunkPending, ChunkSubmitted, ChunkPolling, ChunkRetrying,
				ChunkSubmitted, ChunkPolling, ChunkSucceeded,
			}, res.Chunks[1].States)
			assert.Len(t, repo.ValidateCalls, 3, "survivors are not validated again")
		})
	}
}

func TestBulkOrchestrator_UnattributedFailureDiscardsChunk(t *testing.T) {
	t.Parallel()

	rec, bus := newRecorder()
	entries := numberedEntries(3, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	repo.Shape = contentfultest.ShapeUnattributed
	repo.InvalidIDs["e001"] = true

	res := newTestOrchestrator(t, repo, NewProgress(bus)).Run(context.Background(), entries)

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, OutcomeSkipped, res.Chunks[0].Outcome)
	assert.Empty(t, repo.PublishCalls)
	assert.Empty(t, res.InvalidEntryIDs)
	assert.Equal(t, []string{"progress:100", "chunk:0", "progress:0"}, rec.log)
	require.NotEmpty(t, rec.notifications)
	assert.Equal(t, LevelWarning, rec.notifications[len(rec.notifications)-1].Level)
}

func TestBulkOrchestrator_AllMembersInvalid(t *testing.T) {
	t.Parallel()

	entries := numberedEntries(2, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	repo.InvalidIDs["e000"] = true
	repo.InvalidIDs["e001"] = true

	res := newTestOrchestrator(t, repo, nil).Run(context.Background(), entries)

	assert.Empty(t, repo.PublishCalls)
	assert.Equal(t, OutcomeFailed, res.Chunks[0].Outcome)
	assert.Equal(t, []string{"e000", "e001"}, res.InvalidEntryIDs)
}

func TestBulkOrchestrator_SubmitErrorMovesToNextChunk(t *testing.T) {
	t.Parallel()

	entries := numberedEntries(4, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	repo.SubmitErr = func(kind string, refs []contentful.EntityRef) error {
		if kind == "validate" && refs[0].ID == "e000" {
			return errors.New("connection reset")
		}
		return nil
	}

	o, err := NewBulkOrchestrator(BulkOrchestratorOptions{Repository: repo, ChunkSize: 2})
	require.NoError(t, err)
	res := o.Run(context.Background(), entries)

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, OutcomeFailed, res.Chunks[0].Outcome)
	assert.Contains(t, res.Chunks[0].Error, "connection reset")
	assert.Equal(t, OutcomeSucceeded, res.Chunks[1].Outcome)
	require.Len(t, repo.PublishCalls, 1)
	assert.Equal(t, []string{"e002", "e003"}, ids(repo.PublishCalls[0]))
	assert.Empty(t, res.InvalidEntryIDs)
}

func TestBulkOrchestrator_PublishFailureIsNotRetried(t *testing.T) {
	t.Parallel()

	entries := numberedEntries(3, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	repo.Shape = contentfultest.ShapeFlatIDs
	repo.PublishFailIDs["e002"] = true

	res := newTestOrchestrator(t, repo, nil).Run(context.Background(), entries)

	assert.Len(t, repo.PublishCalls, 1)
	assert.Equal(t, OutcomeFailed, res.Chunks[0].Outcome)
	assert.Equal(t, []string{"e002"}, res.InvalidEntryIDs)
}

func TestBulkOrchestrator_PollTimeout(t *testing.T) {
	t.Parallel()

	entries := numberedEntries(1, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	repo.PendingPolls = 1 << 20

	o, err := NewBulkOrchestrator(BulkOrchestratorOptions{
		Repository:   repo,
		PollInterval: time.Millisecond,
		PollTimeout:  10 * time.Millisecond,
	})
	require.NoError(t, err)
	res := o.Run(context.Background(), entries)

	assert.Equal(t, OutcomeFailed, res.Chunks[0].Outcome)
	assert.Contains(t, res.Chunks[0].Error, ErrPollTimeout.Error())
	assert.Empty(t, repo.PublishCalls)
}

func TestBulkOrchestrator_Cancelled(t *testing.T) {
	t.Parallel()

	entries := numberedEntries(3, contentful.StatePublished)
	repo := contentfultest.New(entries...)
	progress := NewProgress(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := newTestOrchestrator(t, repo, progress).Run(ctx, entries)
	assert.Empty(t, res.Chunks)
	assert.Empty(t, repo.ValidateCalls)
	assert.Zero(t, progress.Snapshot().Update)
}

func TestAttributable(t *testing.T) {
	t.Parallel()

	refs := []contentful.EntityRef{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	tests := []struct {
		name string
		raw  string
		want []string
	}{
		{"entity links", `{"error":{"details":{"errors":[{"entity":{"sys":{"id":"c"}}},{"entity":{"sys":{"id":"a"}}}]}}}`, []string{"a", "c"}},
		{"flat ids", `{"details":{"errors":[{"id":"b"},{"id":"b"}]}}`, []string{"b"}},
		{"foreign ids only", `{"details":{"errors":[{"id":"z"}]}}`, nil},
		{"no details", `{"error":{"message":"boom"}}`, nil},
		{"not json", `<html>`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, attributable([]byte(tt.raw), refs))
		})
	}
}

func TestIDSet(t *testing.T) {
	t.Parallel()

	var s idSet
	assert.Equal(t, []string{}, s.list())

	s.add("b", "a", "b")
	s.add("c", "a")
	assert.Equal(t, []string{"b", "a", "c"}, s.list())

	var large idSet
	for i := range 5000 {
		large.add(fmt.Sprintf("e%d", i%2500))
	}
	assert.Len(t, large.list(), 2500)
	assert.Equal(t, "e2499", large.list()[2499])
}
