package graph

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// QueryEncoder is anything that can contribute ordered query pairs.
type QueryEncoder interface {
	QueryPairs() ([]QueryPair, error)
}

// ODataQuery collects the OData system query options. Zero fields are
// omitted.
type ODataQuery struct {
	Select     []string
	Expand     []string
	Filter     string
	OrderBy    []string
	Search     string
	Top        int
	Skip       int
	Count      bool
	SkipToken  string
	DeltaToken string
	Format     string
}

// QueryPairs implements QueryEncoder.
func (q ODataQuery) QueryPairs() ([]QueryPair, error) {
	if q.Top < 0 || q.Skip < 0 {
		return nil, fmt.Errorf("%w: $top and $skip must not be negative", ErrInvalidArgument)
	}
	var pairs []QueryPair
	add := func(k, v string) {
		if v != "" {
			pairs = append(pairs, QueryPair{Key: k, Value: v})
		}
	}
	add("$select", strings.Join(q.Select, ","))
	add("$expand", strings.Join(q.Expand, ","))
	add("$filter", q.Filter)
	add("$orderby", strings.Join(q.OrderBy, ","))
	add("$search", q.Search)
	if q.Top > 0 {
		add("$top", strconv.Itoa(q.Top))
	}
	if q.Skip > 0 {
		add("$skip", strconv.Itoa(q.Skip))
	}
	if q.Count {
		add("$count", "true")
	}
	add("$skiptoken", q.SkipToken)
	add("$deltatoken", q.DeltaToken)
	add("$format", q.Format)
	return pairs, nil
}

// Select merges fields into $select.
func (u *URL) Select(fields ...string) *URL { return u.mergeList("$select", fields) }

// Expand merges relationships into $expand.
func (u *URL) Expand(fields ...string) *URL { return u.mergeList("$expand", fields) }

// OrderBy merges clauses into $orderby.
func (u *URL) OrderBy(clauses ...string) *URL { return u.mergeList("$orderby", clauses) }

// Filter sets $filter.
func (u *URL) Filter(expr string) *URL { return u.SetQueryPair("$filter", expr) }

// Search sets $search.
func (u *URL) Search(expr string) *URL { return u.SetQueryPair("$search", expr) }

// Top sets $top.
func (u *URL) Top(n int) *URL { return u.SetQueryPair("$top", strconv.Itoa(n)) }

// Skip sets $skip.
func (u *URL) Skip(n int) *URL { return u.SetQueryPair("$skip", strconv.Itoa(n)) }

// Count sets $count=true.
func (u *URL) Count() *URL { return u.SetQueryPair("$count", "true") }

// SkipToken sets $skiptoken.
func (u *URL) SkipToken(token string) *URL { return u.SetQueryPair("$skiptoken", token) }

// DeltaToken sets $deltatoken.
func (u *URL) DeltaToken(token string) *URL { return u.SetQueryPair("$deltatoken", token) }

func (u *URL) mergeList(key string, items []string) *URL {
	var kept []string
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return u
	}
	if existing, ok := u.QueryValue(key); ok && existing != "" {
		kept = append(strings.Split(existing, ","), kept...)
	}
	return u.SetQueryPair(key, strings.Join(kept, ","))
}

// queryPairsOf turns the values accepted by RequestHandler.Query into pairs.
// Maps are emitted in sorted key order; other values go through JSON and
// must encode to an object of scalars.
func queryPairsOf(q any) ([]QueryPair, error) {
	switch v := q.(type) {
	case nil:
		return nil, nil
	case QueryEncoder:
		return v.QueryPairs()
	case []QueryPair:
		return v, nil
	case url.Values:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var pairs []QueryPair
		for _, k := range keys {
			for _, val := range v[k] {
				pairs = append(pairs, QueryPair{Key: k, Value: val})
			}
		}
		return pairs, nil
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		pairs := make([]QueryPair, 0, len(keys))
		for _, k := range keys {
			pairs = append(pairs, QueryPair{Key: k, Value: v[k]})
		}
		return pairs, nil
	}

	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("%w: serializing query: %w", ErrInvalidArgument, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: query must serialize to an object: %w", ErrInvalidArgument, err)
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var pairs []QueryPair
	for _, k := range keys {
		switch val := fields[k].(type) {
		case nil:
		case string:
			if val != "" {
				pairs = append(pairs, QueryPair{Key: k, Value: val})
			}
		case bool:
			pairs = append(pairs, QueryPair{Key: k, Value: strconv.FormatBool(val)})
		case float64:
			pairs = append(pairs, QueryPair{Key: k, Value: strconv.FormatFloat(val, 'f', -1, 64)})
		default:
			return nil, fmt.Errorf("%w: query field %q is not a scalar", ErrInvalidArgument, k)
		}
	}
	return pairs, nil
}
