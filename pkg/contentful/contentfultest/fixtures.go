package contentfultest

import "github.com/iota-uz/gamesync/pkg/contentful"

// NewEntry builds an entry whose version counters derive the requested state.
func NewEntry(id, contentType string, state contentful.PublishState, fields contentful.Fields) *contentful.Entry {
	e := &contentful.Entry{
		Sys: contentful.Sys{
			ID:   id,
			Type: "Entry",
		},
		Fields: fields,
	}
	if contentType != "" {
		e.Sys.ContentType = &contentful.Link{Sys: contentful.LinkSys{Type: "Link", LinkType: "ContentType", ID: contentType}}
	}
	switch state {
	case contentful.StatePublished:
		e.Sys.Version, e.Sys.PublishedVersion = 3, 2
	case contentful.StateChanged:
		e.Sys.Version, e.Sys.PublishedVersion = 5, 2
	case contentful.StateArchived:
		e.Sys.Version, e.Sys.PublishedVersion, e.Sys.ArchivedVersion = 4, 2, 3
	default:
		e.Sys.Version = 1
	}
	if e.Fields == nil {
		e.Fields = contentful.Fields{}
	}
	return e
}

// Localized wraps scalar values into a single-locale field document.
func Localized(locale string, values map[string]any) contentful.Fields {
	out := contentful.Fields{}
	for name, v := range values {
		out[name] = map[string]any{locale: v}
	}
	return out
}
