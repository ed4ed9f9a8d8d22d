package services

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/wI2L/jsondiff"

	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
	"github.com/iota-uz/gamesync/pkg/contentful"
)

const defaultUpdatePause = 200 * time.Millisecond

type UpdateApplierOptions struct {
	Repository contentful.Repository
	Builder    *MetadataBuilder
	Locale     string
	// Pause is slept after every update call. Zero disables the pause;
	// a negative value selects the default.
	Pause    time.Duration
	DryRun   bool
	Progress *Progress
	Logger   *logrus.Entry
}

func (o *UpdateApplierOptions) setDefaults() {
	if o.Locale == "" {
		o.Locale = "en-GB"
	}
	if o.Pause < 0 {
		o.Pause = defaultUpdatePause
	}
	if o.Progress == nil {
		o.Progress = NewProgress(nil)
	}
}

type UpdateFailure struct {
	Key     string `json:"key"`
	EntryID string `json:"entryId"`
	Error   string `json:"error"`
}

type EntryDiff struct {
	Key     string                  `json:"key"`
	EntryID string                  `json:"entryId"`
	State   contentful.PublishState `json:"state"`
	Patch   jsondiff.Patch          `json:"patch"`
}

type ApplyResult struct {
	// Updated holds the entries returned by successful updates, in row order.
	Updated []*contentful.Entry
	// Eligible is the subset of Updated that was published or changed before the update.
	Eligible   []*contentful.Entry
	NotFound   []string
	Duplicates []string
	Unchanged  []string
	Blank      int
	Failed     []UpdateFailure
	Diffs      []EntryDiff
}

// UpdateApplier writes payloads to matched entries one row at a time.
type UpdateApplier struct {
	opts UpdateApplierOptions
}

func NewUpdateApplier(opts UpdateApplierOptions) (*UpdateApplier, error) {
	opts.setDefaults()
	if opts.Builder == nil {
		return nil, errors.New("update applier: builder is required")
	}
	if opts.Repository == nil && !opts.DryRun {
		return nil, errors.New("update applier: repository is required")
	}
	return &UpdateApplier{opts: opts}, nil
}

// Apply processes rows in order. A failed update is logged and skipped; only
// cancellation of ctx stops the loop early.
func (a *UpdateApplier) Apply(ctx context.Context, rows []gamerow.Row, index *LookupIndex) ApplyResult {
	log := pickLogger(ctx, a.opts.Logger)
	var res ApplyResult
	updated := make(map[string]struct{})

	a.opts.Progress.SetUpdate(0)
	for i, row := range rows {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).Warn("apply interrupted")
			break
		}
		a.applyRow(ctx, log, row, index, updated, &res)
		a.opts.Progress.SetUpdate((i + 1) * 100 / len(rows))
	}
	a.opts.Progress.SetUpdate(0)
	return res
}

func (a *UpdateApplier) applyRow(
	ctx context.Context,
	log *logrus.Entry,
	row gamerow.Row,
	index *LookupIndex,
	updated map[string]struct{},
	res *ApplyResult,
) {
	key, entry, ok := index.Resolve(row)
	if key == "" {
		res.Blank++
		recordUpdate("blank")
		return
	}
	if !ok {
		res.NotFound = append(res.NotFound, key)
		recordUpdate("not_found")
		return
	}
	fields := logrus.Fields{"key": key, "entry_id": entry.ID()}
	if _, done := updated[entry.ID()]; done {
		res.Duplicates = append(res.Duplicates, key)
		recordUpdate("duplicate")
		log.WithFields(fields).Debug("entry already updated in this run")
		return
	}

	payload := a.opts.Builder.Build(row)
	if payload.IsEmpty() {
		res.Unchanged = append(res.Unchanged, key)
		recordUpdate("empty")
		return
	}
	state := entry.PublishState()
	merged := payload.MergeInto(entry.Fields, a.opts.Locale)

	if a.opts.DryRun {
		patch, err := jsondiff.Compare(entry.Fields, merged)
		if err != nil {
			res.Failed = append(res.Failed, UpdateFailure{Key: key, EntryID: entry.ID(), Error: err.Error()})
			return
		}
		updated[entry.ID()] = struct{}{}
		res.Diffs = append(res.Diffs, EntryDiff{Key: key, EntryID: entry.ID(), State: state, Patch: patch})
		recordUpdate("dry_run")
		return
	}

	next, err := a.opts.Repository.UpdateEntry(ctx, entry.ID(), entry.Sys.Version, merged)
	if err != nil {
		log.WithFields(fields).WithError(err).Error("update failed")
		res.Failed = append(res.Failed, UpdateFailure{Key: key, EntryID: entry.ID(), Error: err.Error()})
		recordUpdate("failed")
	} else {
		updated[entry.ID()] = struct{}{}
		res.Updated = append(res.Updated, next)
		if state == contentful.StatePublished || state == contentful.StateChanged {
			res.Eligible = append(res.Eligible, next)
		}
		recordUpdate("updated")
		log.WithFields(fields).WithField("state", state).Debug("entry updated")
	}
	_ = sleep(ctx, a.opts.Pause)
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
