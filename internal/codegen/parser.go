// Package codegen turns an OpenAPI description of Microsoft Graph into
// resource clients built on pkg/graph. It runs in three stages: the parser
// normalizes every operation, the grouper clusters them into a forest of
// resource nodes, and the emitter renders Go source from templates.
package codegen

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

// ErrMalformedPath marks a path template the parser cannot normalize.
var ErrMalformedPath = errors.New("malformed path template")

// Operation is one (path, method) pair of the description, normalized.
type Operation struct {
	OperationID string
	Method      string
	// RawPath is the path as written in the description.
	RawPath string
	// Path uses {{id}}, {{id1}}, ... for every inline id.
	Path string
	// ParamNames holds the original parameter spellings in snake_case,
	// index-aligned with the placeholders of Path.
	ParamNames   []string
	HasBody      bool
	ResponseKind graph.ResponseKind
	Doc          string
	// Name is the snake_case method name.
	Name string
	// Mapping is the grouping key, split on dots.
	Mapping []string
	Links   []Link
}

// Link joins two adjacent segments of an operation mapping.
type Link struct {
	From string
	To   string
}

// Placeholder returns the placeholder for the i-th id of a path: id, id1,
// id2...
func Placeholder(i int) string {
	if i == 0 {
		return "id"
	}
	return "id" + strconv.Itoa(i)
}

var (
	bracePattern       = regexp.MustCompile(`\{([^{}]*)\}`)
	placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)
	digitPattern       = regexp.MustCompile(`[0-9]`)
	numericSuffix      = regexp.MustCompile(`[-_]?[0-9]+$`)
)

const functionQualifier = "microsoft.graph."

// NormalizePath rewrites the inline id syntaxes of a Graph path into
// {{id}}, {{id1}}, ... and returns the original parameter names in order.
// It handles resource({param}), {anything-id}, key={val} and key='{val}',
// strips the microsoft.graph. qualifier and drops empty "()".
func NormalizePath(raw string) (string, []string, error) {
	if strings.Contains(raw, "{{") || strings.Contains(raw, "}}") {
		return "", nil, fmt.Errorf("%w: %q uses double braces", ErrMalformedPath, raw)
	}
	if strings.Count(raw, "{") != strings.Count(raw, "}") {
		return "", nil, fmt.Errorf("%w: %q has unbalanced braces", ErrMalformedPath, raw)
	}

	var names []string
	var bad error
	path := bracePattern.ReplaceAllStringFunc(raw, func(m string) string {
		name := strings.TrimSpace(m[1 : len(m)-1])
		if name == "" {
			bad = fmt.Errorf("%w: %q has an empty parameter", ErrMalformedPath, raw)
			return m
		}
		ph := "{{" + Placeholder(len(names)) + "}}"
		names = append(names, SnakeCase(name))
		return ph
	})
	if bad != nil {
		return "", nil, bad
	}
	if strings.ContainsAny(strings.NewReplacer("{{", "", "}}", "").Replace(path), "{}") {
		return "", nil, fmt.Errorf("%w: %q has a nested parameter", ErrMalformedPath, raw)
	}

	path = strings.ReplaceAll(path, functionQualifier, "")
	path = strings.ReplaceAll(path, "()", "")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path, names, nil
}

// MethodName derives the snake_case method name from an operationId: the
// last dot segment, or the one before it when the last carries digits.
func MethodName(operationID string) string {
	segs := strings.Split(operationID, ".")
	name := segs[len(segs)-1]
	if digitPattern.MatchString(name) && len(segs) > 1 {
		name = segs[len(segs)-2]
	}
	return SnakeCase(name)
}

// Mapping derives the grouping key of an operationId: every segment but
// the method name, trailing numeric suffixes dropped, and a segment
// followed by its own plural (or repeated) collapsed into one.
func Mapping(operationID string) []string {
	segs := strings.Split(operationID, ".")
	if len(segs) > 1 {
		segs = segs[:len(segs)-1]
	}
	var out []string
	for _, s := range segs {
		s = numericSuffix.ReplaceAllString(s, "")
		if s == "" {
			continue
		}
		if n := len(out); n > 0 && sameResource(out[n-1], s) {
			continue
		}
		out = append(out, s)
	}
	return out
}

func sameResource(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return a == b || a+"s" == b || b+"s" == a || Singular(a) == Singular(b)
}

// Links returns a link for every adjacent pair of mapping segments.
func Links(mapping []string) []Link {
	var links []Link
	for i := 1; i < len(mapping); i++ {
		links = append(links, Link{From: mapping[i-1], To: mapping[i]})
	}
	return links
}

// segments splits a normalized path, dropping empties.
func segments(path string) []string {
	var out []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// isPlaceholder reports whether a whole segment is one {{name}}.
func isPlaceholder(seg string) bool {
	return strings.HasPrefix(seg, "{{") && strings.HasSuffix(seg, "}}") && strings.Count(seg, "{{") == 1
}
