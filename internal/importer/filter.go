package importer

import (
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/samber/lo"

	"github.com/cuongbtq/recruitq/internal/candidates"
)

// Filter selects which scraped records of a listing are imported. Patterns
// are case-insensitive globs; an empty list matches everything.
type Filter struct {
	Status   []string `json:"status,omitempty"`
	Location []string `json:"location,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Limit    int      `json:"limit,omitempty" validate:"gte=0"`
}

// Validate rejects malformed glob patterns
func (f *Filter) Validate() error {
	if f.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	for _, p := range lo.Flatten([][]string{f.Status, f.Location, f.Tags}) {
		if !doublestar.ValidatePattern(strings.ToLower(p)) {
			return fmt.Errorf("invalid pattern %q", p)
		}
	}
	return nil
}

// Apply returns the records that pass the filter and how many were excluded
func (f *Filter) Apply(records []Record) ([]Record, int) {
	if f == nil {
		return records, 0
	}

	kept := make([]Record, 0, len(records))
	for _, rec := range records {
		if f.Limit > 0 && len(kept) >= f.Limit {
			break
		}
		if f.matches(rec) {
			kept = append(kept, rec)
		}
	}
	return kept, len(records) - len(kept)
}

func (f *Filter) matches(rec Record) bool {
	if len(f.Status) > 0 && !matchAny(f.Status, candidates.NormalizeForCreate(rec.label())) {
		return false
	}
	if len(f.Location) > 0 && !matchAny(f.Location, rec.Location) {
		return false
	}
	if len(f.Tags) > 0 && !lo.SomeBy(rec.Tags, func(tag string) bool { return matchAny(f.Tags, tag) }) {
		return false
	}
	return true
}

func matchAny(patterns []string, value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return lo.SomeBy(patterns, func(p string) bool {
		ok, err := doublestar.Match(strings.ToLower(p), value)
		return err == nil && ok
	})
}
