package contentful

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-faster/errors"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type entryCollection struct {
	Total int      `json:"total"`
	Skip  int      `json:"skip"`
	Limit int      `json:"limit"`
	Items []*Entry `json:"items"`
}

// FetchEntries pages through every entry matching q.
func (c *Client) FetchEntries(ctx context.Context, q Query, progress ProgressFunc) ([]*Entry, error) {
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	var all []*Entry
	skip := 0
	for {
		values := url.Values{}
		if q.ContentType != "" {
			values.Set("content_type", q.ContentType)
		}
		for k, v := range q.Filters {
			values.Set(k, v)
		}
		values.Set("order", "sys.createdAt")
		values.Set("skip", strconv.Itoa(skip))
		values.Set("limit", strconv.Itoa(pageSize))

		var page entryCollection
		if _, err := c.do(ctx, request{
			operation: "entries.list",
			method:    http.MethodGet,
			path:      c.envPath("entries"),
			query:     values,
		}, &page); err != nil {
			return nil, errors.Wrapf(err, "fetch entries skip=%d", skip)
		}

		all = append(all, page.Items...)
		skip += len(page.Items)

		if progress != nil {
			progress(percentOf(len(all), page.Total))
		}
		if len(page.Items) == 0 || skip >= page.Total {
			break
		}
	}
	return all, nil
}

// UpdateEntry replaces the entry fields. version must be the entry's current
// version; the API answers 409 otherwise.
func (c *Client) UpdateEntry(ctx context.Context, id string, version int, fields Fields) (*Entry, error) {
	if id == "" {
		return nil, errors.New("entry id is required")
	}
	var out Entry
	if _, err := c.do(ctx, request{
		operation: "entries.update",
		method:    http.MethodPut,
		path:      c.envPath("entries", id),
		headers:   map[string]string{"X-Contentful-Version": strconv.Itoa(version)},
		body:      map[string]any{"fields": fields},
	}, &out); err != nil {
		return nil, errors.Wrapf(err, "update entry %s", id)
	}
	return &out, nil
}

func percentOf(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := done * 100 / total
	if p > 100 {
		return 100
	}
	return p
}
