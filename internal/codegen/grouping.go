package codegen

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/tonimelisma/msgraph-client/internal/logger"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

// Side says which generated client of a node owns an operation or link:
// the collection client or the client bound to an id.
type Side int

const (
	CollectionSide Side = iota
	ByIDSide
)

// NodeOperation is an operation rewritten relative to its owning node.
type NodeOperation struct {
	Source Operation
	// GoName is the exported method name, unique within the client.
	GoName string
	// RelPath starts with the node's segment; {{RID}} stands for the
	// bound id and the remaining ids are renumbered from {{id}}.
	RelPath string
	// Params are the snake_case names of the remaining ids, in order.
	Params []string
}

// NodeLink navigates from a client to a child node.
type NodeLink struct {
	Child *Node
	// CollectionName is the method returning the child's collection
	// client; ByIDName the one binding an id, empty when the child has no
	// bound client.
	CollectionName string
	ByIDName       string
}

// Node is one resource client of the forest.
type Node struct {
	Key      string
	Identity string
	Modifier string
	Main     bool

	CollectionType string
	IDType         string

	Collection      []NodeOperation
	ByID            []NodeOperation
	CollectionLinks []NodeLink
	ByIDLinks       []NodeLink

	linkKeys [2]map[string]bool
	seen     map[string]bool
}

// HasID reports whether the node has a client bound to an id.
func (n *Node) HasID() bool {
	return len(n.ByID) > 0 || len(n.ByIDLinks) > 0
}

// Operations returns the operations of one side.
func (n *Node) Operations(side Side) []NodeOperation {
	if side == ByIDSide {
		return n.ByID
	}
	return n.Collection
}

// Forest is the grouped client model.
type Forest struct {
	Nodes    []*Node
	Warnings []Warning
	Filtered int
	index    map[string]*Node
}

// Node returns the node for key.
func (f *Forest) Node(key string) *Node { return f.index[key] }

// Roots returns the main nodes.
func (f *Forest) Roots() []*Node {
	var roots []*Node
	for _, n := range f.Nodes {
		if n.Main {
			roots = append(roots, n)
		}
	}
	return roots
}

// OperationCount is the number of emitted operations.
func (f *Forest) OperationCount() int {
	total := 0
	for _, n := range f.Nodes {
		total += len(n.Collection) + len(n.ByID)
	}
	return total
}

// Grouper clusters operations into a forest.
type Grouper struct {
	registry         *Registry
	inferSecondaries bool
	logger           logger.Logger
}

// NewGrouper returns a grouper over registry.
func NewGrouper(registry *Registry, inferSecondaries bool, l logger.Logger) *Grouper {
	if l == nil {
		l = logger.NoopLogger{}
	}
	return &Grouper{registry: registry, inferSecondaries: inferSecondaries, logger: l}
}

var identifierSegment = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9]*$`)

type boundary struct {
	idx int
	def *Definition
}

// Group assigns every operation to the deepest client its path navigates
// to, records the links along the way and names the generated methods.
func (g *Grouper) Group(ops []Operation) *Forest {
	f := &Forest{index: make(map[string]*Node)}
	for _, op := range ops {
		if g.registry.Ignored(op.Path) {
			g.logger.Debugf("Ignoring %s %s", op.Method, op.Path)
			f.Filtered++
			continue
		}
		segs := segments(op.Path)
		canon := canonicalSegments(op.Path)
		if len(segs) == 0 {
			f.Warnings = append(f.Warnings, Warning{Method: op.Method, Path: op.RawPath, Reason: "empty path"})
			continue
		}
		g.ensureMain(segs[0], canon)
		if g.inferSecondaries {
			g.infer(op, segs, canon)
		}

		chain := g.chain(canon)
		if len(chain) == 0 {
			w := Warning{Method: op.Method, Path: op.RawPath, Reason: "no resource client matches the path"}
			g.logger.Warnf("Dropping operation %s", w)
			f.Warnings = append(f.Warnings, w)
			continue
		}

		for i := 1; i < len(chain); i++ {
			parent := f.node(chain[i-1].def)
			child := f.node(chain[i].def)
			side := CollectionSide
			if chain[i].idx-chain[i-1].idx == 2 {
				side = ByIDSide
			}
			parent.addLink(side, child)
		}

		owner := chain[len(chain)-1]
		node := f.node(owner.def)
		side, rel, params, err := relativize(segs[owner.idx:], op.ParamNames)
		if err != nil {
			f.Warnings = append(f.Warnings, Warning{Method: op.Method, Path: op.RawPath, Reason: err.Error()})
			continue
		}
		if g.registry.Filtered(node.Key, rel) {
			g.logger.Debugf("Filtered %s %s from %s", op.Method, rel, node.Key)
			f.Filtered++
			continue
		}
		node.addOperation(side, NodeOperation{Source: op, RelPath: rel, Params: params})
	}
	f.finish()
	return f
}

func (g *Grouper) ensureMain(first string, canon []string) {
	if canon[0] == anyID || !identifierSegment.MatchString(first) {
		return
	}
	if _, ok := g.registry.Match(canon[:1]); ok {
		return
	}
	d := NewMain(first, "")
	d.Implicit = true
	g.registry.Add(d)
	g.logger.Debugf("Added main client for %s", first)
}

// infer adds a secondary for "parent/{id}/child" when the operation's
// mapping links the two and no rule covers the child.
func (g *Grouper) infer(op Operation, segs, canon []string) {
	for i := 2; i < len(segs); i++ {
		if canon[i] == anyID || canon[i-1] != anyID || canon[i-2] == anyID {
			continue
		}
		if !identifierSegment.MatchString(segs[i]) {
			continue
		}
		if _, ok := g.registry.Match(canon[:i+1]); ok {
			continue
		}
		for _, l := range op.Links {
			if sameResource(l.From, segs[i-2]) && sameResource(l.To, segs[i]) {
				d, err := NewSecondary("/"+segs[i-2]+"/{}/"+segs[i], "", "")
				if err != nil {
					break
				}
				d.Implicit = true
				g.registry.Add(d)
				g.logger.Debugf("Inferred secondary client %s under %s", segs[i], segs[i-2])
				break
			}
		}
	}
}

// chain returns the navigable boundaries of a path: a main at the first
// segment, then every matching segment directly below the previous one or
// below its bound id.
func (g *Grouper) chain(canon []string) []boundary {
	if canon[0] == anyID {
		return nil
	}
	root, ok := g.registry.Match(canon[:1])
	if !ok || root.Kind != Main {
		return nil
	}
	chain := []boundary{{idx: 0, def: root}}
	for i := 1; i < len(canon); i++ {
		if canon[i] == anyID {
			continue
		}
		last := chain[len(chain)-1].idx
		adjacent := i == last+1 || (i == last+2 && canon[last+1] == anyID)
		if !adjacent {
			continue
		}
		if d, ok := g.registry.Match(canon[:i+1]); ok && d.Kind == Secondary {
			chain = append(chain, boundary{idx: i, def: d})
		}
	}
	return chain
}

// relativize rewrites the owned tail of a path. A placeholder right after
// the node segment becomes {{RID}}; the rest are renumbered.
func relativize(tail []string, names []string) (Side, string, []string, error) {
	side := CollectionSide
	parts := slices.Clone(tail)
	if len(parts) > 1 && isPlaceholder(parts[1]) {
		side = ByIDSide
		parts[1] = "{{" + graph.RIDPlaceholder + "}}"
	}
	var params []string
	var bad error
	rel := placeholderPattern.ReplaceAllStringFunc("/"+strings.Join(parts, "/"), func(m string) string {
		name := m[2 : len(m)-2]
		if name == graph.RIDPlaceholder {
			return m
		}
		idx, err := placeholderIndex(name)
		if err != nil || idx >= len(names) {
			bad = fmt.Errorf("placeholder %s has no parameter name", m)
			return m
		}
		ph := "{{" + Placeholder(len(params)) + "}}"
		params = append(params, names[idx])
		return ph
	})
	return side, rel, params, bad
}

func placeholderIndex(name string) (int, error) {
	rest, ok := strings.CutPrefix(name, "id")
	if !ok {
		return 0, fmt.Errorf("unexpected placeholder %q", name)
	}
	if rest == "" {
		return 0, nil
	}
	return strconv.Atoi(rest)
}

func (f *Forest) node(d *Definition) *Node {
	if n, ok := f.index[d.Key]; ok {
		if d.Kind == Main {
			n.Main = true
		}
		return n
	}
	n := &Node{
		Key:      d.Key,
		Identity: d.Segment,
		Modifier: d.Modifier,
		Main:     d.Kind == Main,
		seen:     make(map[string]bool),
	}
	n.linkKeys[CollectionSide] = make(map[string]bool)
	n.linkKeys[ByIDSide] = make(map[string]bool)
	f.index[d.Key] = n
	f.Nodes = append(f.Nodes, n)
	return n
}

func (n *Node) addLink(side Side, child *Node) {
	if n.linkKeys[side][child.Key] {
		return
	}
	n.linkKeys[side][child.Key] = true
	link := NodeLink{Child: child}
	if side == ByIDSide {
		n.ByIDLinks = append(n.ByIDLinks, link)
	} else {
		n.CollectionLinks = append(n.CollectionLinks, link)
	}
}

func (n *Node) addOperation(side Side, op NodeOperation) {
	key := fmt.Sprintf("%d %s %s", side, op.Source.Method, op.RelPath)
	if n.seen[key] {
		return
	}
	n.seen[key] = true
	if side == ByIDSide {
		n.ByID = append(n.ByID, op)
	} else {
		n.Collection = append(n.Collection, op)
	}
}

// finish sorts the forest and assigns Go names.
func (f *Forest) finish() {
	slices.SortFunc(f.Nodes, func(a, b *Node) int { return cmp.Compare(a.Key, b.Key) })

	types := make(map[string]bool)
	unique := func(name string) string {
		out := name
		for i := 2; types[out]; i++ {
			out = name + strconv.Itoa(i)
		}
		types[out] = true
		return out
	}
	for _, n := range f.Nodes {
		n.CollectionType = unique(PascalCase(n.Key) + "Client")
		n.IDType = unique(PascalCase(n.Modifier) + "IDClient")
	}

	for _, n := range f.Nodes {
		for _, links := range [][]NodeLink{n.CollectionLinks, n.ByIDLinks} {
			slices.SortFunc(links, func(a, b NodeLink) int { return cmp.Compare(a.Child.Key, b.Child.Key) })
		}
		for side, ops := range [][]NodeOperation{n.Collection, n.ByID} {
			slices.SortFunc(ops, func(a, b NodeOperation) int {
				return cmp.Or(cmp.Compare(a.RelPath, b.RelPath), cmp.Compare(a.Source.Method, b.Source.Method))
			})
			used := map[string]bool{"ResourceClient": true, "ID": true, "ByID": true}
			links := n.CollectionLinks
			if Side(side) == ByIDSide {
				links = n.ByIDLinks
			}
			for i := range links {
				nameLink(&links[i], used)
			}
			for i := range ops {
				ops[i].GoName = methodGoName(ops[i], used)
			}
		}
	}
}

func nameLink(l *NodeLink, used map[string]bool) {
	l.CollectionName = PascalCase(l.Child.Key)
	used[l.CollectionName] = true
	if !l.Child.HasID() {
		return
	}
	byID := PascalCase(Singular(l.Child.Key))
	if used[byID] {
		byID += "ByID"
	}
	l.ByIDName = byID
	used[byID] = true
}

func methodGoName(op NodeOperation, used map[string]bool) string {
	base := PascalCase(op.Source.Name)
	if base == "" {
		base = PascalCase(strings.ToLower(op.Source.Method))
	}
	name := base
	if used[name] {
		segs := segments(op.RelPath)
		for i := len(segs) - 1; i >= 0; i-- {
			if !strings.Contains(segs[i], "{{") {
				name = base + PascalCase(segs[i])
				break
			}
		}
	}
	for i := 2; used[name]; i++ {
		name = base + strconv.Itoa(i)
	}
	used[name] = true
	return name
}
