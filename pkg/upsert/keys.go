package upsert

import (
	"errors"
	"fmt"
	"regexp"
)

// KeyMatcher selects the fields of a node that act as deduplication keys.
type KeyMatcher interface {
	Match(field string) bool
}

type noKeys struct{}

func (noKeys) Match(string) bool { return false }

type fieldKeys map[string]struct{}

func (k fieldKeys) Match(field string) bool {
	_, ok := k[field]
	return ok
}

type patternKeys []*regexp.Regexp

func (k patternKeys) Match(field string) bool {
	for _, re := range k {
		if re.MatchString(field) {
			return true
		}
	}
	return false
}

// NewFieldKeyMatcher matches fields by exact name.
func NewFieldKeyMatcher(names []string) KeyMatcher {
	keys := make(fieldKeys, len(names))
	for _, name := range names {
		keys[name] = struct{}{}
	}
	return keys
}

// NewPatternKeyMatcher matches fields whose name contains a match of any of the
// regular expressions.
func NewPatternKeyMatcher(patterns []string) (KeyMatcher, error) {
	keys := make(patternKeys, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid upsert pattern %q: %w", pattern, err)
		}
		keys = append(keys, re)
	}
	return keys, nil
}

// NewKeyMatcher builds the matcher for one of the two selection modes. Names and
// patterns are mutually exclusive; when both are empty no field is a key.
func NewKeyMatcher(names, patterns []string) (KeyMatcher, error) {
	switch {
	case len(names) > 0 && len(patterns) > 0:
		return nil, errors.New("upsert keys and upsert patterns are mutually exclusive")
	case len(names) > 0:
		return NewFieldKeyMatcher(names), nil
	case len(patterns) > 0:
		return NewPatternKeyMatcher(patterns)
	default:
		return noKeys{}, nil
	}
}
