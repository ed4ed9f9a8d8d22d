package contentful

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
)

type bulkActionDoc struct {
	Sys struct {
		ID     string     `json:"id"`
		Status BulkStatus `json:"status"`
	} `json:"sys"`
	Action string `json:"action"`
}

type bulkCollection struct {
	Sys   LinkSys `json:"sys"`
	Items []Link  `json:"items"`
}

func entityCollection(refs []EntityRef, withVersion bool) bulkCollection {
	items := make([]Link, 0, len(refs))
	for _, ref := range refs {
		sys := LinkSys{Type: "Link", LinkType: "Entry", ID: ref.ID}
		if withVersion {
			sys.Version = ref.Version
		}
		items = append(items, Link{Sys: sys})
	}
	return bulkCollection{Sys: LinkSys{Type: "Array"}, Items: items}
}

// SubmitBulkValidate starts an asynchronous validation of the referenced entries.
func (c *Client) SubmitBulkValidate(ctx context.Context, refs []EntityRef) (*BulkAction, error) {
	return c.submitBulk(ctx, "validate", map[string]any{
		"action":   "publish",
		"entities": entityCollection(refs, false),
	})
}

// SubmitBulkPublish starts an asynchronous publish of the referenced entry versions.
func (c *Client) SubmitBulkPublish(ctx context.Context, refs []EntityRef) (*BulkAction, error) {
	return c.submitBulk(ctx, "publish", map[string]any{
		"entities": entityCollection(refs, true),
	})
}

func (c *Client) submitBulk(ctx context.Context, action string, body any) (*BulkAction, error) {
	var doc bulkActionDoc
	raw, err := c.do(ctx, request{
		operation: "bulk." + action,
		method:    http.MethodPost,
		path:      c.envPath("bulk_actions", action),
		body:      body,
	}, &doc)
	if err != nil {
		return nil, errors.Wrapf(err, "submit bulk %s", action)
	}
	return toBulkAction(doc, action, raw)
}

// GetBulkAction fetches the current status of a bulk action.
func (c *Client) GetBulkAction(ctx context.Context, id string) (*BulkAction, error) {
	if id == "" {
		return nil, errors.New("bulk action id is required")
	}
	var doc bulkActionDoc
	raw, err := c.do(ctx, request{
		operation: "bulk.status",
		method:    http.MethodGet,
		path:      c.envPath("bulk_actions", "actions", id),
	}, &doc)
	if err != nil {
		return nil, errors.Wrapf(err, "get bulk action %s", id)
	}
	return toBulkAction(doc, "", raw)
}

func toBulkAction(doc bulkActionDoc, action string, raw []byte) (*BulkAction, error) {
	if doc.Sys.ID == "" {
		return nil, errors.New("bulk action response has no id")
	}
	if doc.Action != "" {
		action = doc.Action
	}
	status := doc.Sys.Status
	if status == "" {
		status = BulkCreated
	}
	return &BulkAction{
		ID:     doc.Sys.ID,
		Action: action,
		Status: status,
		Raw:    json.RawMessage(raw),
	}, nil
}
