package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gamesync/modules/catalog/domain/catalog"
	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/eventbus"
)

var ErrSnapshotFetch = errors.New("fetch entries snapshot")

type SyncServiceOptions struct {
	Repository  contentful.Repository
	Catalog     *catalog.Catalog
	ContentType string
	Locale      string
	PageSize    int
	KeyColumn   string
	Currency    string

	ChunkSize    int
	PollInterval time.Duration
	PollTimeout  time.Duration
	UpdatePause  time.Duration

	// DryRun computes diffs without writing or publishing anything.
	DryRun bool

	Bus    eventbus.EventBus
	Logger *logrus.Entry
}

func (o *SyncServiceOptions) setDefaults() {
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	}
	if o.ContentType == "" {
		o.ContentType = "siteGame"
	}
	if o.Locale == "" {
		o.Locale = "en-GB"
	}
	if o.Currency == "" {
		o.Currency = "GBP"
	}
}

// Report summarizes one ProcessMetadata run.
type Report struct {
	RunID      uuid.UUID `json:"runId"`
	DryRun     bool      `json:"dryRun"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`

	Rows       int `json:"rows"`
	Entries    int `json:"entries"`
	IndexKeys  int `json:"indexKeys"`
	Collisions int `json:"collisions"`

	Updated    int             `json:"updated"`
	Eligible   int             `json:"eligible"`
	NotFound   []string        `json:"notFound"`
	Duplicates []string        `json:"duplicates,omitempty"`
	Unchanged  []string        `json:"unchanged,omitempty"`
	Blank      int             `json:"blank,omitempty"`
	Failed     []UpdateFailure `json:"failed,omitempty"`
	Diffs      []EntryDiff     `json:"diffs,omitempty"`

	Bulk            BulkResult `json:"bulk"`
	InvalidEntryIDs []string   `json:"invalidEntryIds"`
}

// Partial reports whether any row or chunk did not make it all the way through.
func (r *Report) Partial() bool {
	if len(r.Failed) > 0 || len(r.InvalidEntryIDs) > 0 {
		return true
	}
	for _, c := range r.Bulk.Chunks {
		if c.Outcome != OutcomeSucceeded {
			return true
		}
	}
	return false
}

type SyncService struct {
	opts         SyncServiceOptions
	progress     *Progress
	matcher      *Matcher
	applier      *UpdateApplier
	orchestrator *BulkOrchestrator
}

func NewSyncService(opts SyncServiceOptions) (*SyncService, error) {
	opts.setDefaults()
	if opts.Repository == nil {
		return nil, errors.New("sync service: repository is required")
	}

	progress := NewProgress(opts.Bus)
	builder, err := NewMetadataBuilder(opts.Catalog, opts.Currency)
	if err != nil {
		return nil, err
	}
	applier, err := NewUpdateApplier(UpdateApplierOptions{
		Repository: opts.Repository,
		Builder:    builder,
		Locale:     opts.Locale,
		Pause:      opts.UpdatePause,
		DryRun:     opts.DryRun,
		Progress:   progress,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	orchestrator, err := NewBulkOrchestrator(BulkOrchestratorOptions{
		Repository:   opts.Repository,
		ChunkSize:    opts.ChunkSize,
		PollInterval: opts.PollInterval,
		PollTimeout:  opts.PollTimeout,
		Progress:     progress,
		Logger:       opts.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &SyncService{
		opts:     opts,
		progress: progress,
		matcher: NewMatcher(MatcherOptions{
			Catalog:   opts.Catalog,
			KeyColumn: opts.KeyColumn,
			Logger:    opts.Logger,
		}),
		applier:      applier,
		orchestrator: orchestrator,
	}, nil
}

func (s *SyncService) Progress() *Progress {
	return s.progress
}

// ProcessMetadata runs the whole pipeline for rows: snapshot, match, update,
// then bulk validate and publish. Only a failed snapshot fetch or a
// cancelled ctx is returned as an error; everything else is in the report.
func (s *SyncService) ProcessMetadata(ctx context.Context, rows []gamerow.Row) (*Report, error) {
	report := &Report{
		RunID:           uuid.New(),
		DryRun:          s.opts.DryRun,
		StartedAt:       time.Now(),
		Rows:            len(rows),
		NotFound:        []string{},
		InvalidEntryIDs: []string{},
	}
	s.progress.bind(report.RunID)
	log := pickLogger(ctx, s.opts.Logger).WithField("run_id", report.RunID.String())
	ctx = WithLogger(ctx, log)

	result := "ok"
	defer func() {
		report.FinishedAt = time.Now()
		syncRunDuration.WithLabelValues(result).Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	}()

	s.progress.SetLoading(0)
	entries, err := s.opts.Repository.FetchEntries(ctx, contentful.Query{
		ContentType: s.opts.ContentType,
		PageSize:    s.opts.PageSize,
	}, s.progress.SetLoading)
	s.progress.SetLoading(0)
	if err != nil {
		result = "fetch_error"
		log.WithError(err).Error("snapshot fetch failed")
		s.progress.notify(LevelError, "Failed to load entries: "+err.Error())
		return report, fmt.Errorf("%w: %w", ErrSnapshotFetch, err)
	}
	report.Entries = len(entries)
	s.progress.notify(LevelSuccess, fmt.Sprintf("Loaded %d entries", len(entries)))

	index := s.matcher.BuildIndex(ctx, entries, s.opts.Locale)
	report.IndexKeys = index.Len()
	report.Collisions = index.Collisions()
	log.WithFields(logrus.Fields{
		"entries":    len(entries),
		"keys":       index.Len(),
		"collisions": index.Collisions(),
		"rows":       len(rows),
	}).Info("lookup index built")

	applied := s.applier.Apply(ctx, rows, index)
	report.Updated = len(applied.Updated)
	report.Eligible = len(applied.Eligible)
	report.NotFound = append(report.NotFound, applied.NotFound...)
	report.Duplicates = applied.Duplicates
	report.Unchanged = applied.Unchanged
	report.Blank = applied.Blank
	report.Failed = applied.Failed
	report.Diffs = applied.Diffs
	if len(applied.NotFound) > 0 {
		s.progress.notify(LevelWarning, fmt.Sprintf("%d rows did not match any entry", len(applied.NotFound)))
	}
	if err := ctx.Err(); err != nil {
		result = "canceled"
		return report, err
	}

	if !s.opts.DryRun {
		report.Bulk = s.orchestrator.Run(ctx, applied.Eligible)
		report.InvalidEntryIDs = append(report.InvalidEntryIDs, report.Bulk.InvalidEntryIDs...)
		if err := ctx.Err(); err != nil {
			result = "canceled"
			return report, err
		}
	}

	level := LevelSuccess
	if report.Partial() {
		result = "partial"
		level = LevelWarning
	}
	s.progress.notify(level, fmt.Sprintf(
		"Sync finished: %d updated, %d queued for publish, %d not found, %d failed, %d invalid",
		report.Updated, report.Eligible, len(report.NotFound), len(report.Failed), len(report.InvalidEntryIDs),
	))
	log.WithFields(logrus.Fields{
		"updated":   report.Updated,
		"eligible":  report.Eligible,
		"not_found": len(report.NotFound),
		"failed":    len(report.Failed),
		"invalid":   len(report.InvalidEntryIDs),
	}).Info("sync finished")
	return report, nil
}
