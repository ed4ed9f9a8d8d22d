// Package contentfultest provides an in-memory contentful.Repository for
// tests and offline dry runs.
package contentfultest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/iota-uz/gamesync/pkg/contentful"
)

// DetailShape selects which failure document layout a failed validation uses.
type DetailShape int

const (
	// ShapeEntityLinks reports error.details.errors[].entity.sys.id.
	ShapeEntityLinks DetailShape = iota
	// ShapeFlatIDs reports details.errors[].id.
	ShapeFlatIDs
	// ShapeUnattributed reports a failure without any member ids.
	ShapeUnattributed
)

type action struct {
	id      string
	kind    string
	refs    []contentful.EntityRef
	failed  []string
	polls   int
	shape   DetailShape
	applied bool
}

// Repository is a scripted, goroutine-safe fake of the management API.
type Repository struct {
	mu sync.Mutex

	entries []*contentful.Entry
	byID    map[string]*contentful.Entry
	actions map[string]*action
	seq     int

	// PageSize splits FetchEntries into pages so progress callbacks fire per page.
	PageSize int
	// PendingPolls is the number of status polls that still report inProgress.
	PendingPolls int

	FetchErr       error
	UpdateErrs     map[string]error
	InvalidIDs     map[string]bool
	Shape          DetailShape
	PublishFailIDs map[string]bool
	// SubmitErr, when set, is consulted before each bulk submission.
	SubmitErr func(kind string, refs []contentful.EntityRef) error

	UpdateCalls   []string
	ValidateCalls [][]contentful.EntityRef
	PublishCalls  [][]contentful.EntityRef
	StatusCalls   int
	ProgressCalls []int
}

var _ contentful.Repository = (*Repository)(nil)

func New(entries ...*contentful.Entry) *Repository {
	r := &Repository{
		byID:           map[string]*contentful.Entry{},
		actions:        map[string]*action{},
		UpdateErrs:     map[string]error{},
		InvalidIDs:     map[string]bool{},
		PublishFailIDs: map[string]bool{},
	}
	for _, e := range entries {
		r.Add(e)
	}
	return r
}

func (r *Repository) Add(e *contentful.Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := clone(e)
	r.entries = append(r.entries, cp)
	r.byID[cp.Sys.ID] = cp
}

// Entry returns a copy of the stored entry.
func (r *Repository) Entry(id string) (*contentful.Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return clone(e), true
}

func (r *Repository) FetchEntries(ctx context.Context, q contentful.Query, progress contentful.ProgressFunc) ([]*contentful.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FetchErr != nil {
		return nil, r.FetchErr
	}

	var matched []*contentful.Entry
	for _, e := range r.entries {
		if q.ContentType != "" && e.Sys.ContentType != nil && e.Sys.ContentType.Sys.ID != q.ContentType {
			continue
		}
		matched = append(matched, clone(e))
	}

	pageSize := r.PageSize
	if pageSize <= 0 {
		pageSize = len(matched)
	}
	if progress != nil {
		if len(matched) == 0 {
			r.report(progress, 100)
		}
		for done := pageSize; done < len(matched)+pageSize; done += pageSize {
			n := min(done, len(matched))
			r.report(progress, n*100/len(matched))
		}
	}
	return matched, nil
}

func (r *Repository) report(progress contentful.ProgressFunc, p int) {
	r.ProgressCalls = append(r.ProgressCalls, p)
	progress(p)
}

func (r *Repository) UpdateEntry(ctx context.Context, id string, version int, fields contentful.Fields) (*contentful.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UpdateCalls = append(r.UpdateCalls, id)

	if err := r.UpdateErrs[id]; err != nil {
		return nil, err
	}
	e, ok := r.byID[id]
	if !ok {
		return nil, &contentful.APIError{Status: 404, ID: "NotFound", Message: "entry not found"}
	}
	if e.Sys.Version != version {
		return nil, &contentful.APIError{Status: 409, ID: "VersionMismatch", Message: "version mismatch"}
	}
	e.Sys.Version++
	e.Fields = fields.Clone()
	return clone(e), nil
}

func (r *Repository) SubmitBulkValidate(ctx context.Context, refs []contentful.EntityRef) (*contentful.BulkAction, error) {
	return r.submit(ctx, "validate", refs)
}

func (r *Repository) SubmitBulkPublish(ctx context.Context, refs []contentful.EntityRef) (*contentful.BulkAction, error) {
	return r.submit(ctx, "publish", refs)
}

func (r *Repository) submit(ctx context.Context, kind string, refs []contentful.EntityRef) (*contentful.BulkAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := append([]contentful.EntityRef(nil), refs...)
	if kind == "validate" {
		r.ValidateCalls = append(r.ValidateCalls, cp)
	} else {
		r.PublishCalls = append(r.PublishCalls, cp)
	}
	if r.SubmitErr != nil {
		if err := r.SubmitErr(kind, cp); err != nil {
			return nil, err
		}
	}

	failing := r.InvalidIDs
	if kind == "publish" {
		failing = r.PublishFailIDs
	}
	var failed []string
	for _, ref := range cp {
		if failing[ref.ID] {
			failed = append(failed, ref.ID)
		}
	}

	r.seq++
	a := &action{
		id:     fmt.Sprintf("bulk-%d", r.seq),
		kind:   kind,
		refs:   cp,
		failed: failed,
		shape:  r.Shape,
	}
	r.actions[a.id] = a
	return r.render(a, contentful.BulkCreated), nil
}

func (r *Repository) GetBulkAction(ctx context.Context, id string) (*contentful.BulkAction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.StatusCalls++

	a, ok := r.actions[id]
	if !ok {
		return nil, &contentful.APIError{Status: 404, ID: "NotFound", Message: "bulk action not found"}
	}
	a.polls++
	if a.polls <= r.PendingPolls {
		return r.render(a, contentful.BulkInProgress), nil
	}
	if len(a.failed) > 0 {
		return r.render(a, contentful.BulkFailed), nil
	}
	if a.kind == "publish" && !a.applied {
		for _, ref := range a.refs {
			if e, ok := r.byID[ref.ID]; ok {
				e.Sys.PublishedVersion = e.Sys.Version
				e.Sys.Version++
			}
		}
		a.applied = true
	}
	return r.render(a, contentful.BulkSucceeded), nil
}

func (r *Repository) render(a *action, status contentful.BulkStatus) *contentful.BulkAction {
	doc := map[string]any{
		"sys":    map[string]any{"id": a.id, "type": "BulkAction", "status": string(status)},
		"action": a.kind,
	}
	if status == contentful.BulkFailed {
		switch a.shape {
		case ShapeEntityLinks:
			errs := make([]any, 0, len(a.failed))
			for _, id := range a.failed {
				errs = append(errs, map[string]any{
					"error":  map[string]any{"sys": map[string]any{"id": "InvalidEntry"}},
					"entity": map[string]any{"sys": map[string]any{"id": id, "type": "Link", "linkType": "Entry"}},
				})
			}
			doc["error"] = map[string]any{
				"sys":     map[string]any{"id": "BulkActionFailed"},
				"details": map[string]any{"errors": errs},
			}
		case ShapeFlatIDs:
			errs := make([]any, 0, len(a.failed))
			for _, id := range a.failed {
				errs = append(errs, map[string]any{"id": id, "name": "validation"})
			}
			doc["details"] = map[string]any{"errors": errs}
		case ShapeUnattributed:
			doc["error"] = map[string]any{
				"sys":     map[string]any{"id": "InternalServerError"},
				"message": "bulk action failed",
			}
		}
	}
	raw, _ := json.Marshal(doc)
	return &contentful.BulkAction{ID: a.id, Action: a.kind, Status: status, Raw: raw}
}

func clone(e *contentful.Entry) *contentful.Entry {
	cp := *e
	cp.Fields = e.Fields.Clone()
	if e.Sys.ContentType != nil {
		ct := *e.Sys.ContentType
		cp.Sys.ContentType = &ct
	}
	return &cp
}
