package codegen

import (
	"fmt"
	"strings"
)

// DefinitionKind says how a resource client is rooted.
type DefinitionKind string

const (
	// Main clients hang off the root of the API.
	Main DefinitionKind = "main"
	// Secondary clients are rooted beneath another client.
	Secondary DefinitionKind = "secondary"
)

// Definition describes one resource client. Key names the generated node;
// several definitions may share a key when the same client is reachable
// from more than one parent.
type Definition struct {
	Key  string
	Kind DefinitionKind
	// Segment is the URL segment and runtime resource identity.
	Segment string
	// StartFilter is, for secondaries, the path suffix the client is
	// rooted at, ending with Segment, e.g. "/users/{{id}}/messages".
	StartFilter string
	// Modifier is the Go name stem of the bound client, e.g. "Message".
	Modifier string
	// Implicit marks definitions the grouper added on its own.
	Implicit bool

	filter []string
}

func (d *Definition) score() int {
	if d.Kind == Main {
		return 1
	}
	return len(d.filter)
}

// NewMain returns a main definition for segment.
func NewMain(segment, modifier string) Definition {
	if modifier == "" {
		modifier = PascalCase(Singular(segment))
	}
	return Definition{Key: segment, Kind: Main, Segment: segment, Modifier: modifier}
}

// NewSecondary returns a secondary definition rooted at startFilter. The
// secondary name defaults to the last segment of the filter and doubles as
// the key.
func NewSecondary(startFilter, secondaryName, modifier string) (Definition, error) {
	filter := canonicalSegments(startFilter)
	if len(filter) == 0 {
		return Definition{}, fmt.Errorf("secondary %q: start filter is empty", secondaryName)
	}
	last := filter[len(filter)-1]
	if last == anyID {
		return Definition{}, fmt.Errorf("start filter %q must end with a resource segment", startFilter)
	}
	if secondaryName == "" {
		secondaryName = last
	}
	if modifier == "" {
		modifier = PascalCase(Singular(secondaryName))
	}
	return Definition{
		Key:         secondaryName,
		Kind:        Secondary,
		Segment:     last,
		StartFilter: startFilter,
		Modifier:    modifier,
		filter:      filter,
	}, nil
}

// PathFilter decides whether a path is ignored.
type PathFilter interface {
	Match(path string) bool
}

// PathContainsMulti matches a path containing any of its substrings.
// Placeholders in the substrings match any placeholder in the path.
type PathContainsMulti []string

// Match implements PathFilter.
func (f PathContainsMulti) Match(path string) bool {
	canon := canonicalPath(path)
	for _, s := range f {
		if s != "" && strings.Contains(canon, canonicalPath(s)) {
			return true
		}
	}
	return false
}

// Registry holds the resource definitions and per-resource ignore rules.
type Registry struct {
	defs    []Definition
	filters map[string][]PathFilter
	ignore  []PathFilter
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{filters: make(map[string][]PathFilter)}
}

// Add registers d.
func (r *Registry) Add(d Definition) {
	if d.Kind == Secondary && d.filter == nil {
		d.filter = canonicalSegments(d.StartFilter)
	}
	r.defs = append(r.defs, d)
}

// AddFilter adds an ignore rule for the operations a key owns. Paths are
// matched relative to the owning client.
func (r *Registry) AddFilter(key string, f PathFilter) {
	r.filters[key] = append(r.filters[key], f)
}

// AddIgnore adds a rule applied to full paths before grouping.
func (r *Registry) AddIgnore(f PathFilter) {
	r.ignore = append(r.ignore, f)
}

// Definitions returns the registered definitions.
func (r *Registry) Definitions() []Definition {
	return append([]Definition(nil), r.defs...)
}

// Ignored reports whether a full path is dropped before grouping.
func (r *Registry) Ignored(path string) bool {
	for _, f := range r.ignore {
		if f.Match(path) {
			return true
		}
	}
	return false
}

// Filtered reports whether key drops an operation at relPath.
func (r *Registry) Filtered(key, relPath string) bool {
	for _, f := range r.filters[key] {
		if f.Match(relPath) {
			return true
		}
	}
	return false
}

// HasKey reports whether any definition uses key.
func (r *Registry) HasKey(key string) bool {
	for _, d := range r.defs {
		if d.Key == key {
			return true
		}
	}
	return false
}

// Match returns the definition rooted at the last segment of prefix, a
// canonical segment list. Mains only match at the first segment. When
// several definitions accept the prefix, the one with the longest start
// filter wins; ties go to the one registered first.
func (r *Registry) Match(prefix []string) (*Definition, bool) {
	if len(prefix) == 0 {
		return nil, false
	}
	var best *Definition
	for i := range r.defs {
		d := &r.defs[i]
		if !d.matches(prefix) {
			continue
		}
		if best == nil || d.score() > best.score() {
			best = d
		}
	}
	return best, best != nil
}

func (d *Definition) matches(prefix []string) bool {
	last := prefix[len(prefix)-1]
	if last != d.Segment {
		return false
	}
	if d.Kind == Main {
		return len(prefix) == 1
	}
	if len(prefix) < 2 || len(d.filter) > len(prefix) {
		return false
	}
	tail := prefix[len(prefix)-len(d.filter):]
	for i, s := range d.filter {
		if tail[i] != s {
			return false
		}
	}
	return true
}

const anyID = "{}"

// canonicalSegments splits a path and replaces whole-segment placeholders,
// whatever their name, with anyID.
func canonicalSegments(path string) []string {
	segs := segments(path)
	for i, s := range segs {
		if isPlaceholder(s) || (strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}")) {
			segs[i] = anyID
		}
	}
	return segs
}

// canonicalPath rewrites every {{name}} placeholder to {}.
func canonicalPath(path string) string {
	return placeholderPattern.ReplaceAllString(path, anyID)
}
