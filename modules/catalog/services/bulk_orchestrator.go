package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/iota-uz/gamesync/pkg/contentful"
)

const (
	DefaultChunkSize    = 200
	defaultPollInterval = time.Second
	defaultPollTimeout  = 10 * time.Minute
)

// failedIDPaths lists the places a failed bulk action reports member ids.
var failedIDPaths = []string{
	"error.details.errors.#.entity.sys.id",
	"details.errors.#.id",
}

var (
	ErrUnattributedFailure = errors.New("bulk action failed without attributable entries")
	ErrPollTimeout         = errors.New("bulk action did not finish in time")
)

type ChunkState string

const (
	ChunkPending   ChunkState = "pending"
	ChunkSubmitted ChunkState = "submitted"
	ChunkPolling   ChunkState = "polling"
	ChunkRetrying  ChunkState = "retrying"
	ChunkSucceeded ChunkState = "succeeded"
	ChunkFailed    ChunkState = "failed"
)

type ChunkOutcome string

const (
	OutcomeSucceeded       ChunkOutcome = "succeeded"
	OutcomePartiallyFailed ChunkOutcome = "partially-failed"
	OutcomeFailed          ChunkOutcome = "failed"
	// OutcomeSkipped marks a chunk discarded because its failure could not
	// be attributed to members.
	OutcomeSkipped ChunkOutcome = "skipped"
)

type Chunk struct {
	Index int
	Refs  []contentful.EntityRef
}

type ChunkResult struct {
	Index      int          `json:"index"`
	Size       int          `json:"size"`
	Outcome    ChunkOutcome `json:"outcome"`
	Published  int          `json:"published"`
	InvalidIDs []string     `json:"invalidIds,omitempty"`
	Error      string       `json:"error,omitempty"`
	// States is the sequence of states the chunk passed through.
	States []ChunkState `json:"states"`
}

func (r *ChunkResult) enter(s ChunkState) {
	r.States = append(r.States, s)
}

type BulkResult struct {
	Chunks          []ChunkResult `json:"chunks"`
	InvalidEntryIDs []string      `json:"invalidEntryIds"`
}

// Partition splits entries into consecutive chunks of at most size refs.
func Partition(entries []*contentful.Entry, size int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	chunks := make([]Chunk, 0, (len(entries)+size-1)/size)
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		refs := make([]contentful.EntityRef, 0, end-start)
		for _, e := range entries[start:end] {
			refs = append(refs, e.Ref())
		}
		chunks = append(chunks, Chunk{Index: len(chunks), Refs: refs})
	}
	return chunks
}

type BulkOrchestratorOptions struct {
	Repository   contentful.Repository
	ChunkSize    int
	PollInterval time.Duration
	// PollTimeout bounds how long one bulk action may stay pending.
	PollTimeout time.Duration
	Progress    *Progress
	Logger      *logrus.Entry
}

func (o *BulkOrchestratorOptions) setDefaults() {
	if o.ChunkSize <= 0 || o.ChunkSize > DefaultChunkSize {
		o.ChunkSize = DefaultChunkSize
	}
	if o.PollInterval < 0 {
		o.PollInterval = defaultPollInterval
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = defaultPollTimeout
	}
	if o.Progress == nil {
		o.Progress = NewProgress(nil)
	}
}

// BulkOrchestrator drives updated entries through bulk validate and publish,
// one chunk at a time.
type BulkOrchestrator struct {
	opts BulkOrchestratorOptions
}

func NewBulkOrchestrator(opts BulkOrchestratorOptions) (*BulkOrchestrator, error) {
	opts.setDefaults()
	if opts.Repository == nil {
		return nil, errors.New("bulk orchestrator: repository is required")
	}
	return &BulkOrchestrator{opts: opts}, nil
}

// Run never returns an error: chunk failures are recorded in the result and
// the run moves on. Cancelling ctx stops before the next chunk.
func (o *BulkOrchestrator) Run(ctx context.Context, entries []*contentful.Entry) BulkResult {
	log := pickLogger(ctx, o.opts.Logger)
	res := BulkResult{InvalidEntryIDs: []string{}}
	var invalid idSet
	chunks := Partition(entries, o.opts.ChunkSize)

	o.opts.Progress.SetUpdate(0)
	o.opts.Progress.SetInvalidEntryIDs(nil)
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			log.WithError(ctx.Err()).WithField("remaining", len(chunks)-i).Warn("bulk run interrupted")
			break
		}
		cr := o.runChunk(ctx, log, chunk)
		res.Chunks = append(res.Chunks, cr)
		invalid.add(cr.InvalidIDs...)
		res.InvalidEntryIDs = invalid.list()
		recordChunk(cr.Outcome, len(cr.InvalidIDs))

		o.opts.Progress.SetInvalidEntryIDs(res.InvalidEntryIDs)
		o.opts.Progress.SetUpdate((i + 1) * 100 / len(chunks))
		o.opts.Progress.chunkCompleted(len(chunks), cr)
		o.notifyChunk(cr, len(chunks))
	}
	o.opts.Progress.SetUpdate(0)
	return res
}

func (o *BulkOrchestrator) runChunk(ctx context.Context, log *logrus.Entry, chunk Chunk) ChunkResult {
	cr := ChunkResult{Index: chunk.Index, Size: len(chunk.Refs), States: []ChunkState{ChunkPending}}
	log = log.WithFields(logrus.Fields{"chunk": chunk.Index, "size": len(chunk.Refs)})

	fail := func(err error) ChunkResult {
		cr.enter(ChunkFailed)
		cr.Outcome = OutcomeFailed
		cr.Error = err.Error()
		log.WithError(err).Error("bulk chunk failed")
		return cr
	}

	// Validate the whole chunk.
	cr.enter(ChunkSubmitted)
	action, err := o.opts.Repository.SubmitBulkValidate(ctx, chunk.Refs)
	if err != nil {
		return fail(errors.Wrap(err, "submit validate"))
	}
	cr.enter(ChunkPolling)
	action, err = o.await(ctx, action)
	if err != nil {
		return fail(errors.Wrap(err, "poll validate"))
	}

	survivors := chunk.Refs
	switch action.Status {
	case contentful.BulkSucceeded:
	case contentful.BulkFailed:
		failed := attributable(action.Raw, chunk.Refs)
		if len(failed) == 0 {
			cr.enter(ChunkFailed)
			cr.Outcome = OutcomeSkipped
			cr.Error = ErrUnattributedFailure.Error()
			log.WithField("bulk_action", action.ID).Warn("validation failed without member ids, chunk discarded")
			return cr
		}
		cr.InvalidIDs = failed
		survivors = exclude(chunk.Refs, failed)
		log.WithField("invalid", failed).Warn("validation rejected entries")
		if len(survivors) == 0 {
			cr.enter(ChunkFailed)
			cr.Outcome = OutcomeFailed
			cr.Error = "every entry in the chunk failed validation"
			return cr
		}
		cr.enter(ChunkRetrying)
	default:
		return fail(errors.Errorf("validate ended with unexpected status %q", action.Status))
	}

	// Publish what survived validation, once.
	cr.enter(ChunkSubmitted)
	action, err = o.opts.Repository.SubmitBulkPublish(ctx, survivors)
	if err != nil {
		return fail(errors.Wrap(err, "submit publish"))
	}
	cr.enter(ChunkPolling)
	action, err = o.await(ctx, action)
	if err != nil {
		return fail(errors.Wrap(err, "poll publish"))
	}
	if action.Status != contentful.BulkSucceeded {
		var invalid idSet
		invalid.add(cr.InvalidIDs...)
		invalid.add(attributable(action.Raw, survivors)...)
		cr.InvalidIDs = invalid.ids
		return fail(errors.Errorf("publish ended with status %q", action.Status))
	}

	cr.enter(ChunkSucceeded)
	cr.Published = len(survivors)
	cr.Outcome = OutcomeSucceeded
	if len(cr.InvalidIDs) > 0 {
		cr.Outcome = OutcomePartiallyFailed
	}
	log.WithField("published", cr.Published).Info("bulk chunk published")
	return cr
}

// await polls until the action leaves created/inProgress.
func (o *BulkOrchestrator) await(ctx context.Context, action *contentful.BulkAction) (*contentful.BulkAction, error) {
	deadline := time.Now().Add(o.opts.PollTimeout)
	for action.Status.Pending() {
		if time.Now().After(deadline) {
			return nil, errors.Wrapf(ErrPollTimeout, "action %s", action.ID)
		}
		if err := sleep(ctx, o.opts.PollInterval); err != nil {
			return nil, err
		}
		next, err := o.opts.Repository.GetBulkAction(ctx, action.ID)
		if err != nil {
			return nil, err
		}
		action = next
	}
	return action, nil
}

// attributable extracts failed member ids from a bulk action body and keeps
// only those that belong to refs, in refs order.
func attributable(raw []byte, refs []contentful.EntityRef) []string {
	reported := make(map[string]struct{})
	for _, path := range failedIDPaths {
		gjson.GetBytes(raw, path).ForEach(func(_, id gjson.Result) bool {
			if s := id.String(); s != "" {
				reported[s] = struct{}{}
			}
			return true
		})
	}
	if len(reported) == 0 {
		return nil
	}
	var out idSet
	for _, ref := range refs {
		if _, ok := reported[ref.ID]; ok {
			out.add(ref.ID)
		}
	}
	return out.ids
}

func exclude(refs []contentful.EntityRef, ids []string) []contentful.EntityRef {
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	out := make([]contentful.EntityRef, 0, len(refs))
	for _, ref := range refs {
		if _, ok := drop[ref.ID]; !ok {
			out = append(out, ref)
		}
	}
	return out
}

// idSet is an insertion-ordered set of entry ids.
type idSet struct {
	ids  []string
	seen map[string]struct{}
}

func (s *idSet) add(ids ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		if _, dup := s.seen[id]; dup {
			continue
		}
		s.seen[id] = struct{}{}
		s.ids = append(s.ids, id)
	}
}

func (s *idSet) list() []string {
	if s.ids == nil {
		return []string{}
	}
	return s.ids
}

func (o *BulkOrchestrator) notifyChunk(cr ChunkResult, total int) {
	label := fmt.Sprintf("Chunk %d/%d", cr.Index+1, total)
	switch cr.Outcome {
	case OutcomeSucceeded:
		o.opts.Progress.notify(LevelSuccess, fmt.Sprintf("%s: published %d entries", label, cr.Published))
	case OutcomePartiallyFailed:
		o.opts.Progress.notify(LevelWarning, fmt.Sprintf("%s: published %d entries, %d invalid", label, cr.Published, len(cr.InvalidIDs)))
	case OutcomeSkipped:
		o.opts.Progress.notify(LevelWarning, fmt.Sprintf("%s: skipped, %s", label, cr.Error))
	default:
		o.opts.Progress.notify(LevelError, fmt.Sprintf("%s: failed, %s", label, cr.Error))
	}
}
