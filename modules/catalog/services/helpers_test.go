package services

import (
	"fmt"

	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/contentful/contentfultest"
	"github.com/iota-uz/gamesync/pkg/eventbus"
)

const testLocale = "en-GB"

func gameEntry(id string, state contentful.PublishState, values map[string]any) *contentful.Entry {
	return contentfultest.NewEntry(id, "siteGame", state, contentfultest.Localized(testLocale, values))
}

func numberedEntries(n int, state contentful.PublishState) []*contentful.Entry {
	entries := make([]*contentful.Entry, n)
	for i := range entries {
		id := fmt.Sprintf("e%03d", i)
		entries[i] = gameEntry(id, state, map[string]any{"launchCode": "code-" + id})
	}
	return entries
}

func ids(refs []contentful.EntityRef) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.ID
	}
	return out
}

func entryIDs(entries []*contentful.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID()
	}
	return out
}

// recorder collects bus events in publication order.
type recorder struct {
	log           []string
	loading       []int
	update        []int
	notifications []*NotificationEvent
	chunks        []*ChunkCompletedEvent
}

func newRecorder() (*recorder, eventbus.EventBus) {
	r := &recorder{}
	bus := eventbus.New(nil)
	bus.Subscribe(func(e *ProgressChangedEvent) {
		switch e.Phase {
		case PhaseLoading:
			r.loading = append(r.loading, e.Percent)
		case PhaseUpdate:
			r.update = append(r.update, e.Percent)
			r.log = append(r.log, fmt.Sprintf("progress:%d", e.Percent))
		}
	})
	bus.Subscribe(func(e *ChunkCompletedEvent) {
		r.chunks = append(r.chunks, e)
		r.log = append(r.log, fmt.Sprintf("chunk:%d", e.Result.Index))
	})
	bus.Subscribe(func(e *NotificationEvent) {
		r.notifications = append(r.notifications, e)
	})
	return r, bus
}
