package gamerow

import (
	"bytes"
	"encoding/json"

	"github.com/iota-uz/gamesync/pkg/contentful"
)

type Field struct {
	Name  string
	Value any
}

// Payload is the partial update built for one entry. Field order is the
// order the fields were added in; a later field with the same name replaces
// the earlier value in place.
type Payload struct {
	fields []Field
}

func NewPayload(fields ...Field) Payload {
	p := Payload{fields: make([]Field, 0, len(fields))}
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		f.Value = copyValue(f.Value)
		if i, ok := index[f.Name]; ok {
			p.fields[i] = f
			continue
		}
		index[f.Name] = len(p.fields)
		p.fields = append(p.fields, f)
	}
	return p
}

func copyValue(v any) any {
	if s, ok := v.([]string); ok {
		return append([]string{}, s...)
	}
	return v
}

func (p Payload) Len() int {
	return len(p.fields)
}

func (p Payload) IsEmpty() bool {
	return len(p.fields) == 0
}

func (p Payload) Names() []string {
	names := make([]string, len(p.fields))
	for i, f := range p.fields {
		names[i] = f.Name
	}
	return names
}

func (p Payload) Get(name string) (any, bool) {
	for _, f := range p.fields {
		if f.Name == name {
			return copyValue(f.Value), true
		}
	}
	return nil, false
}

func (p Payload) Fields() []Field {
	out := make([]Field, len(p.fields))
	for i, f := range p.fields {
		out[i] = Field{Name: f.Name, Value: copyValue(f.Value)}
	}
	return out
}

// MergeInto returns a copy of base with every payload field written to
// locale. Other locales and fields are carried over untouched.
func (p Payload) MergeInto(base contentful.Fields, locale string) contentful.Fields {
	merged := base.Clone()
	for _, f := range p.fields {
		locales, ok := merged[f.Name]
		if !ok {
			locales = make(map[string]any, 1)
			merged[f.Name] = locales
		}
		locales[locale] = copyValue(f.Value)
	}
	return merged
}

// MarshalJSON keeps field order so previews are stable.
func (p Payload) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range p.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
