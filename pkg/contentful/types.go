package contentful

import (
	"context"
	"encoding/json"
	"time"
)

// Fields is the management API field document: field name -> locale -> value.
type Fields map[string]map[string]any

// Clone returns a deep copy of the field map and its locale maps. Values are
// copied by reference except nested maps and slices, which are cloned too.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for name, locales := range f {
		cp := make(map[string]any, len(locales))
		for locale, v := range locales {
			cp[locale] = cloneValue(v)
		}
		out[name] = cp
	}
	return out
}

func cloneValue(v any) any {
	switch typed := v.(type) {
	case map[string]any:
		cp := make(map[string]any, len(typed))
		for k, inner := range typed {
			cp[k] = cloneValue(inner)
		}
		return cp
	case []any:
		cp := make([]any, len(typed))
		for i, inner := range typed {
			cp[i] = cloneValue(inner)
		}
		return cp
	case []string:
		return append([]string(nil), typed...)
	default:
		return v
	}
}

// Localized returns the value of field for locale.
func (f Fields) Localized(field, locale string) (any, bool) {
	locales, ok := f[field]
	if !ok {
		return nil, false
	}
	v, ok := locales[locale]
	return v, ok
}

type Link struct {
	Sys LinkSys `json:"sys"`
}

type LinkSys struct {
	Type     string `json:"type"`
	LinkType string `json:"linkType,omitempty"`
	ID       string `json:"id"`
	Version  int    `json:"version,omitempty"`
}

type Sys struct {
	ID               string     `json:"id"`
	Type             string     `json:"type,omitempty"`
	Version          int        `json:"version"`
	PublishedVersion int        `json:"publishedVersion,omitempty"`
	ArchivedVersion  int        `json:"archivedVersion,omitempty"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	UpdatedAt        *time.Time `json:"updatedAt,omitempty"`
	ContentType      *Link      `json:"contentType,omitempty"`
}

// Entry is a snapshot of a versioned content entry. A successful update
// returns a new Entry that supersedes the old one.
type Entry struct {
	Sys    Sys    `json:"sys"`
	Fields Fields `json:"fields"`
}

func (e *Entry) ID() string {
	return e.Sys.ID
}

func (e *Entry) Ref() EntityRef {
	return EntityRef{ID: e.Sys.ID, Version: e.Sys.Version}
}

// PublishState is derived from the version counters and is never stored.
type PublishState string

const (
	StateUnpublished PublishState = "unpublished"
	StatePublished   PublishState = "published"
	StateChanged     PublishState = "changed"
	StateArchived    PublishState = "archived"
)

func (e *Entry) PublishState() PublishState {
	switch {
	case e.Sys.ArchivedVersion > 0:
		return StateArchived
	case e.Sys.PublishedVersion == 0:
		return StateUnpublished
	case e.Sys.Version == e.Sys.PublishedVersion+1:
		return StatePublished
	default:
		return StateChanged
	}
}

// EntityRef identifies one entry version inside a bulk action.
type EntityRef struct {
	ID      string
	Version int
}

type BulkStatus string

const (
	BulkCreated    BulkStatus = "created"
	BulkInProgress BulkStatus = "inProgress"
	BulkSucceeded  BulkStatus = "succeeded"
	BulkFailed     BulkStatus = "failed"
)

// Pending reports whether the action has not reached a terminal status yet.
func (s BulkStatus) Pending() bool {
	return s == BulkCreated || s == BulkInProgress
}

// BulkAction is a handle to an asynchronous bulk operation. Raw keeps the
// last response body so failure details can be inspected by the caller.
type BulkAction struct {
	ID     string
	Action string
	Status BulkStatus
	Raw    json.RawMessage
}

// Query filters the entries snapshot.
type Query struct {
	ContentType string
	Filters     map[string]string
	PageSize    int
}

// ProgressFunc receives a percentage in [0, 100] while a paginated fetch runs.
type ProgressFunc func(percent int)

// Repository is the remote content repository consumed by the sync engine.
type Repository interface {
	FetchEntries(ctx context.Context, q Query, progress ProgressFunc) ([]*Entry, error)
	UpdateEntry(ctx context.Context, id string, version int, fields Fields) (*Entry, error)
	SubmitBulkValidate(ctx context.Context, refs []EntityRef) (*BulkAction, error)
	SubmitBulkPublish(ctx context.Context, refs []EntityRef) (*BulkAction, error)
	GetBulkAction(ctx context.Context, id string) (*BulkAction, error)
}
