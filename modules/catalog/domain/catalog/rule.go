package catalog

import (
	"strings"

	"github.com/go-faster/errors"
)

// Columns gives rules read access to the other cells of a row.
type Columns interface {
	String(column string) string
}

// Rule disambiguates a code shared by several ventures: when Column
// contains Contains, the key with Suffix appended is tried first.
// An empty Code applies the rule to every key.
type Rule struct {
	Code     string `yaml:"code"`
	Column   string `yaml:"column"`
	Contains string `yaml:"contains"`
	Suffix   string `yaml:"suffix"`
}

func (r Rule) validate() error {
	if strings.TrimSpace(r.Column) == "" {
		return errors.New("column is required")
	}
	if strings.TrimSpace(r.Contains) == "" {
		return errors.New("contains is required")
	}
	if r.Suffix == "" {
		return errors.New("suffix is required")
	}
	return nil
}

func (r Rule) matches(key string, row Columns) bool {
	if r.Code != "" && !strings.EqualFold(r.Code, key) {
		return false
	}
	cell := strings.ToLower(row.String(r.Column))
	return cell != "" && strings.Contains(cell, strings.ToLower(r.Contains))
}

// ResolveKey applies the first matching rule to key. The suffixed key is
// returned only when known reports it exists, so codes that are not shared
// resolve to themselves. A nil known never accepts a suffixed key. Keys that
// already carry the suffix are returned unchanged.
func (c *Catalog) ResolveKey(key string, row Columns, known func(string) bool) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	for _, r := range c.rules {
		if !r.matches(key, row) {
			continue
		}
		if strings.HasSuffix(key, r.Suffix) {
			return key
		}
		if known != nil && known(key+r.Suffix) {
			return key + r.Suffix
		}
		return key
	}
	return key
}
