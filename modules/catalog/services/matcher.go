package services

import (
	"context"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/iota-uz/gamesync/modules/catalog/domain/catalog"
	"github.com/iota-uz/gamesync/modules/catalog/domain/gamerow"
	"github.com/iota-uz/gamesync/pkg/contentful"
	"github.com/iota-uz/gamesync/pkg/normalize"
)

const (
	fieldLaunchCode         = "launchCode"
	fieldTitle              = "title"
	fieldGamePlatformConfig = "gamePlatformConfig"
	platformGameSkin        = "gameSkin"
	platformMobileGameSkin  = "mobileGameSkin"
)

type MatcherOptions struct {
	Catalog   *catalog.Catalog
	KeyColumn string
	Logger    *logrus.Entry
}

func (o *MatcherOptions) setDefaults() {
	if o.Catalog == nil {
		o.Catalog = catalog.Default()
	}
	if strings.TrimSpace(o.KeyColumn) == "" {
		o.KeyColumn = ColumnGameCode
	}
}

// Matcher resolves spreadsheet rows to snapshot entries.
type Matcher struct {
	opts MatcherOptions
}

func NewMatcher(opts MatcherOptions) *Matcher {
	opts.setDefaults()
	return &Matcher{opts: opts}
}

// LookupIndex maps derived keys to entries. It is read-only once built.
type LookupIndex struct {
	entries    map[string]*contentful.Entry
	collisions int
	matcher    *Matcher
}

// BuildIndex derives up to three keys per entry: the launch code, the
// platform skin when it differs from the title, and the mobile skin. A key
// already claimed by an earlier entry is left with that entry.
func (m *Matcher) BuildIndex(ctx context.Context, entries []*contentful.Entry, locale string) *LookupIndex {
	log := pickLogger(ctx, m.opts.Logger)
	idx := &LookupIndex{
		entries: make(map[string]*contentful.Entry, len(entries)*2),
		matcher: m,
	}
	for _, e := range entries {
		if e == nil {
			continue
		}
		for _, key := range derivedKeys(e, locale) {
			if owner, taken := idx.entries[key]; taken {
				if owner.ID() != e.ID() {
					idx.collisions++
					syncIndexCollisions.Inc()
					log.WithFields(logrus.Fields{
						"key":      key,
						"kept":     owner.ID(),
						"ignored":  e.ID(),
						"locale":   locale,
						"category": "index",
					}).Debug("lookup key already claimed")
				}
				continue
			}
			idx.entries[key] = e
		}
	}
	return idx
}

func derivedKeys(e *contentful.Entry, locale string) []string {
	keys := make([]string, 0, 3)
	if code := localizedString(e.Fields, fieldLaunchCode, locale); code != "" {
		keys = append(keys, code)
	}
	title := localizedString(e.Fields, fieldTitle, locale)
	cfg, _ := e.Fields.Localized(fieldGamePlatformConfig, locale)
	if platform, ok := cfg.(map[string]any); ok {
		if skin := scalarString(platform[platformGameSkin]); skin != "" && skin != title {
			keys = append(keys, skin)
		}
		if mobile := scalarString(platform[platformMobileGameSkin]); mobile != "" {
			keys = append(keys, mobile)
		}
	}
	return keys
}

func localizedString(fields contentful.Fields, name, locale string) string {
	v, _ := fields.Localized(name, locale)
	return scalarString(v)
}

func scalarString(v any) string {
	s, ok := normalize.String(v)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func (i *LookupIndex) Lookup(key string) (*contentful.Entry, bool) {
	e, ok := i.entries[strings.TrimSpace(key)]
	return e, ok
}

func (i *LookupIndex) Len() int {
	return len(i.entries)
}

// Collisions counts keys that were ignored because an earlier entry owned them.
func (i *LookupIndex) Collisions() int {
	return i.collisions
}

func (i *LookupIndex) has(key string) bool {
	_, ok := i.entries[key]
	return ok
}

// Resolve reads the row key, applies the catalog rules and looks the result
// up. A rule suffix is used only when the snapshot holds the suffixed key.
// key is the resolved key, reported even on a miss.
func (i *LookupIndex) Resolve(row gamerow.Row) (key string, entry *contentful.Entry, ok bool) {
	raw := row.String(i.matcher.opts.KeyColumn)
	key = i.matcher.opts.Catalog.ResolveKey(raw, row, i.has)
	if key == "" {
		return "", nil, false
	}
	entry, ok = i.Lookup(key)
	return key, entry, ok
}
