// Package normalize maps noisy spreadsheet values onto canonical values.
//
// Every function in this package degrades to an empty or absent result
// instead of failing.
package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

const prefixBonus = 0.1

var (
	DefaultTruthy  = []string{"Yes", "All"}
	DefaultInvalid = []string{"n/a", "*"}
)

// String coerces a raw cell value to a string. Only scalars are coercible.
func String(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case int:
		return strconv.Itoa(v), true
	case int32:
		return strconv.FormatInt(int64(v), 10), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case uint:
		return strconv.FormatUint(uint64(v), 10), true
	case uint32:
		return strconv.FormatUint(uint64(v), 10), true
	case uint64:
		return strconv.FormatUint(v, 10), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(v), true
	case fmt.Stringer:
		return v.String(), true
	default:
		return "", false
	}
}

// Value returns the canonical candidate closest to raw, or "" when raw is
// empty or canonical has no candidates. Ties keep the earliest candidate.
func Value(raw any, canonical []string) string {
	if len(canonical) == 0 {
		return ""
	}
	s, ok := String(raw)
	if !ok || s == "" {
		return ""
	}
	input := strings.ToLower(s)

	best := ""
	bestScore := math.Inf(-1)
	for _, candidate := range canonical {
		score := Similarity(input, strings.ToLower(candidate))
		if score > bestScore {
			best = candidate
			bestScore = score
		}
	}
	return best
}

// Similarity scores two already lower-cased strings: one minus the
// normalized edit distance, plus a bonus when the first three characters agree.
func Similarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	score := 1.0
	if longest > 0 {
		score = 1 - float64(fuzzy.LevenshteinDistance(a, b))/float64(longest)
	}
	if prefix(a, 3) == prefix(b, 3) {
		score += prefixBonus
	}
	return score
}

func prefix(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// CSV splits a comma separated cell, drops empty and repeated tokens and
// normalizes each remaining token. The result is never nil.
func CSV(raw any, canonical []string) []string {
	out := []string{}
	s, ok := String(raw)
	if !ok || strings.TrimSpace(s) == "" {
		return out
	}

	seen := make(map[string]struct{})
	for _, part := range strings.Split(s, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		if v := Value(token, canonical); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// Bool is a tolerant yes/no parse: raw is matched against truthy and invalid
// together and is true only when the closest candidate is truthy.
func Bool(raw any, truthy, invalid []string) bool {
	s, ok := String(raw)
	if !ok {
		return false
	}
	s = strings.TrimSpace(s)
	if s == "" || len(truthy) == 0 {
		return false
	}

	candidates := make([]string, 0, len(truthy)+len(invalid))
	candidates = append(candidates, truthy...)
	candidates = append(candidates, invalid...)

	match := Value(s, candidates)
	for _, t := range truthy {
		if match == t {
			return true
		}
	}
	return false
}

// Float parses percentages ("96.47%") and multipliers ("5000x"). ok is false
// when the value is absent or unparsable; callers must then omit the field.
func Float(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, !math.IsNaN(v) && !math.IsInf(v, 0)
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}

	s, ok := String(raw)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "%xX \t")
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
