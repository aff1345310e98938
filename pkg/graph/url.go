package graph

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"sort"
	"strings"
)

// QueryPair is a single key/value of an ordered query string.
type QueryPair struct {
	Key   string
	Value string
}

// URL is a mutable endpoint composed of a base, ordered path segments and an
// ordered query multimap. Navigation clones it; handlers own their copy.
//
// A parsed URL renders its escaped path and raw query exactly as given
// until the path or the query is changed, so next links go out unmodified.
type URL struct {
	base     url.URL
	segments []string
	query    []QueryPair

	rawPath       string
	rawQuery      string
	verbatimPath  bool
	verbatimQuery bool
}

// ParseURL splits an absolute URL into base, segments and query pairs. The
// scheme and host become the base; the path becomes segments, split on the
// escaped path so an encoded slash stays inside its segment.
func ParseURL(raw string) (*URL, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing url %q: %w", ErrInvalidArgument, raw, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: url %q is not absolute", ErrInvalidArgument, raw)
	}
	u := &URL{base: url.URL{Scheme: parsed.Scheme, Host: parsed.Host, User: parsed.User}}
	escaped := parsed.EscapedPath()
	for _, piece := range strings.Split(escaped, "/") {
		if piece == "" {
			continue
		}
		segment, err := url.PathUnescape(piece)
		if err != nil {
			return nil, fmt.Errorf("%w: path segment %q: %w", ErrInvalidArgument, piece, err)
		}
		u.segments = append(u.segments, segment)
	}
	if err := u.SetQuery(parsed.RawQuery); err != nil {
		return nil, err
	}
	u.rawPath, u.verbatimPath = escaped, true
	u.rawQuery, u.verbatimQuery = parsed.RawQuery, true
	return u, nil
}

// MustParseURL is ParseURL for constants.
func MustParseURL(raw string) *URL {
	u, err := ParseURL(raw)
	if err != nil {
		panic(err)
	}
	return u
}

// Clone returns an independent copy.
func (u *URL) Clone() *URL {
	c := *u
	c.segments = append([]string(nil), u.segments...)
	c.query = append([]QueryPair(nil), u.query...)
	return &c
}

// ExtendPath appends segments. A segment may contain slashes; empty pieces
// are dropped so the result never contains "//".
func (u *URL) ExtendPath(segments ...string) *URL {
	for _, s := range segments {
		for _, piece := range strings.Split(s, "/") {
			if piece != "" {
				u.segments = append(u.segments, piece)
				u.verbatimPath = false
			}
		}
	}
	return u
}

// Segments returns a copy of the path segments.
func (u *URL) Segments() []string {
	return append([]string(nil), u.segments...)
}

// Path renders the path with a leading slash.
func (u *URL) Path() string {
	return "/" + strings.Join(u.segments, "/")
}

// AppendQueryPair adds a pair after the existing ones, keeping duplicates.
func (u *URL) AppendQueryPair(key, value string) *URL {
	u.verbatimQuery = false
	u.query = append(u.query, QueryPair{Key: key, Value: value})
	return u
}

// SetQueryPair replaces the first pair with key in place, dropping any later
// duplicates, or appends when the key is absent.
func (u *URL) SetQueryPair(key, value string) *URL {
	u.verbatimQuery = false
	out := u.query[:0]
	replaced := false
	for _, p := range u.query {
		if p.Key != key {
			out = append(out, p)
			continue
		}
		if !replaced {
			out = append(out, QueryPair{Key: key, Value: value})
			replaced = true
		}
	}
	u.query = out
	if !replaced {
		u.query = append(u.query, QueryPair{Key: key, Value: value})
	}
	return u
}

// RemoveQueryPair drops every pair with key.
func (u *URL) RemoveQueryPair(key string) *URL {
	u.verbatimQuery = false
	out := u.query[:0]
	for _, p := range u.query {
		if p.Key != key {
			out = append(out, p)
		}
	}
	u.query = out
	return u
}

// SetQuery replaces the whole query with an encoded query string. An empty
// string removes the query.
func (u *URL) SetQuery(raw string) error {
	u.query = nil
	u.verbatimQuery = false
	raw = strings.TrimPrefix(raw, "?")
	if raw == "" {
		return nil
	}
	for _, part := range strings.Split(raw, "&") {
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, "=")
		k, err := url.QueryUnescape(key)
		if err != nil {
			return fmt.Errorf("%w: query key %q: %w", ErrInvalidArgument, key, err)
		}
		v, err := url.QueryUnescape(value)
		if err != nil {
			return fmt.Errorf("%w: query value %q: %w", ErrInvalidArgument, value, err)
		}
		u.query = append(u.query, QueryPair{Key: k, Value: v})
	}
	return nil
}

// Query returns a copy of the ordered query pairs.
func (u *URL) Query() []QueryPair {
	return append([]QueryPair(nil), u.query...)
}

// QueryValue returns the first value for key.
func (u *URL) QueryValue(key string) (string, bool) {
	for _, p := range u.query {
		if p.Key == key {
			return p.Value, true
		}
	}
	return "", false
}

// SetFormat sets $format.
func (u *URL) SetFormat(ext string) *URL {
	return u.SetQueryPair("$format", ext)
}

// RawQuery encodes the query pairs in insertion order.
func (u *URL) RawQuery() string {
	if u.verbatimQuery {
		return u.rawQuery
	}
	if len(u.query) == 0 {
		return ""
	}
	parts := make([]string, 0, len(u.query))
	for _, p := range u.query {
		parts = append(parts, escapeQuery(p.Key)+"="+escapeQuery(p.Value))
	}
	return strings.Join(parts, "&")
}

// URL converts to a net/url value.
func (u *URL) URL() *url.URL {
	out := u.base
	out.RawPath = ""
	switch {
	case u.verbatimPath:
		out.Path, _ = url.PathUnescape(u.rawPath)
		out.RawPath = u.rawPath
	case len(u.segments) > 0:
		basePath := strings.TrimRight(out.Path, "/")
		out.Path = basePath + "/" + strings.Join(u.segments, "/")
		if slices.ContainsFunc(u.segments, func(s string) bool { return strings.Contains(s, "/") }) {
			escaped := make([]string, len(u.segments))
			for i, s := range u.segments {
				escaped[i] = url.PathEscape(s)
			}
			out.RawPath = basePath + "/" + strings.Join(escaped, "/")
		}
	}
	out.RawQuery = u.RawQuery()
	return &out
}

func (u *URL) String() string {
	return u.URL().String()
}

// queryUnescaper restores characters OData expressions use heavily and that
// are legal inside a query component.
var queryUnescaper = strings.NewReplacer(
	"%24", "$", "%2C", ",", "%28", "(", "%29", ")", "%27", "'",
	"%3A", ":", "%2F", "/", "%40", "@", "%2A", "*", "+", "%20",
)

func escapeQuery(s string) string {
	return queryUnescaper.Replace(url.QueryEscape(s))
}

// PathParams binds placeholder names (id, id1, ...) to values.
type PathParams map[string]string

var placeholderPattern = regexp.MustCompile(`\{\{([A-Za-z0-9_]+)\}\}`)

// RIDPlaceholder is the placeholder bound to the resource identity id.
const RIDPlaceholder = "RID"

// Placeholders lists the distinct placeholder names in a template, in order
// of first appearance.
func Placeholders(template string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

// RenderPath substitutes {{RID}} with rid and every other {{name}} with
// params[name]. A placeholder without a value is an error; so is any "{{"
// left over after substitution.
func RenderPath(template, rid string, params PathParams) (string, error) {
	var missing []string
	rendered := placeholderPattern.ReplaceAllStringFunc(template, func(m string) string {
		name := m[2 : len(m)-2]
		if name == RIDPlaceholder {
			if rid == "" {
				missing = append(missing, name)
				return m
			}
			return rid
		}
		value, ok := params[name]
		if !ok || value == "" {
			missing = append(missing, name)
			return m
		}
		return value
	})
	if len(missing) > 0 {
		sort.Strings(missing)
		return "", fmt.Errorf("%w: %q has no value for %s", ErrInvalidArgument, template, strings.Join(missing, ", "))
	}
	if strings.Contains(rendered, "{{") || strings.Contains(rendered, "}}") {
		return "", fmt.Errorf("%w: %q has an unrendered placeholder", ErrInvalidArgument, template)
	}
	return rendered, nil
}
