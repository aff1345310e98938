package codegen

import (
	"bytes"
	"embed"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/tonimelisma/msgraph-client/internal/logger"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
	"golang.org/x/tools/imports"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// RootFile is the name of the generated root client file.
const RootFile = "client_gen.go"

// Emitter renders a forest into Go source files.
type Emitter struct {
	pkg           string
	runtimeImport string
	tmpl          *template.Template
	logger        logger.Logger
}

// NewEmitter parses the embedded templates.
func NewEmitter(pkg, runtimeImport string, l logger.Logger) (*Emitter, error) {
	if l == nil {
		l = logger.NoopLogger{}
	}
	if runtimeImport == "" {
		runtimeImport = DefaultRuntimeImport
	}
	funcs := sprig.TxtFuncMap()
	for k, v := range emitterFuncs() {
		funcs[k] = v
	}
	tmpl, err := template.New("codegen").Funcs(funcs).ParseFS(templatesFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}
	return &Emitter{pkg: pkg, runtimeImport: runtimeImport, tmpl: tmpl, logger: l}, nil
}

type nodeData struct {
	Package       string
	RuntimeImport string
	Node          *Node
}

type rootEntry struct {
	Node           *Node
	CollectionName string
	ByIDName       string
}

type rootData struct {
	Package       string
	RuntimeImport string
	Roots         []rootEntry
}

// Emit returns formatted source per file name: one file per node and the
// root client.
func (e *Emitter) Emit(f *Forest) (map[string][]byte, error) {
	files := make(map[string][]byte, len(f.Nodes)+1)

	root := rootData{Package: e.pkg, RuntimeImport: e.runtimeImport}
	used := map[string]bool{"Graph": true}
	for _, n := range f.Roots() {
		entry := rootEntry{Node: n, CollectionName: PascalCase(n.Key)}
		used[entry.CollectionName] = true
		if n.HasID() {
			entry.ByIDName = PascalCase(Singular(n.Key))
			if used[entry.ByIDName] {
				entry.ByIDName += "ByID"
			}
			used[entry.ByIDName] = true
		}
		root.Roots = append(root.Roots, entry)
	}
	src, err := e.render("client.go.tmpl", RootFile, root)
	if err != nil {
		return nil, err
	}
	files[RootFile] = src

	for _, n := range f.Nodes {
		name := nodeFileName(n.Key)
		src, err := e.render("node.go.tmpl", name, nodeData{Package: e.pkg, RuntimeImport: e.runtimeImport, Node: n})
		if err != nil {
			return nil, err
		}
		files[name] = src
	}
	e.logger.Debug("emitted clients", "files", len(files), "operations", f.OperationCount())
	return files, nil
}

func (e *Emitter) render(tmplName, fileName string, data any) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.tmpl.ExecuteTemplate(&buf, tmplName, data); err != nil {
		return nil, fmt.Errorf("rendering %s: %w", fileName, err)
	}
	src, err := imports.Process(fileName, buf.Bytes(), nil)
	if err != nil {
		return nil, fmt.Errorf("formatting %s: %w\n%s", fileName, err, buf.Bytes())
	}
	return src, nil
}

func nodeFileName(key string) string {
	name := SnakeCase(key)
	if name == "" || name == "client" {
		name += "_resource"
	}
	return name + "_gen.go"
}

// WriteFiles writes files into dir, creating it, and removes stale
// generated files left from an earlier run.
func WriteFiles(dir string, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	stale, err := filepath.Glob(filepath.Join(dir, "*_gen.go"))
	if err != nil {
		return err
	}
	for _, path := range stale {
		if _, keep := files[filepath.Base(path)]; !keep {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing stale file: %w", err)
			}
		}
	}
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), files[name], 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}

var httpMethodConstants = map[string]string{
	http.MethodGet:     "http.MethodGet",
	http.MethodPost:    "http.MethodPost",
	http.MethodPut:     "http.MethodPut",
	http.MethodPatch:   "http.MethodPatch",
	http.MethodDelete:  "http.MethodDelete",
	http.MethodHead:    "http.MethodHead",
	http.MethodOptions: "http.MethodOptions",
}

// emitterFuncs are the template helpers. Together they cover the three
// axes an operation varies on: path parameter count, body, response kind.
func emitterFuncs() template.FuncMap {
	return template.FuncMap{
		"signature":    signature,
		"pathParams":   pathParams,
		"httpMethod":   httpMethod,
		"responseKind": responseKindExpr,
	}
}

// goParams returns unique Go parameter names for op's path parameters.
func goParams(op NodeOperation) []string {
	used := map[string]bool{"body": true, "c": true}
	out := make([]string, len(op.Params))
	for i, p := range op.Params {
		name := CamelCase(p)
		if name == "" {
			name = "p"
		}
		base := name
		for j := 2; used[name]; j++ {
			name = base + strconv.Itoa(j)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

func signature(op NodeOperation) string {
	var parts []string
	if params := goParams(op); len(params) > 0 {
		parts = append(parts, strings.Join(params, ", ")+" string")
	}
	if op.Source.HasBody {
		parts = append(parts, "body graph.Body")
	}
	return strings.Join(parts, ", ")
}

func pathParams(op NodeOperation) string {
	params := goParams(op)
	if len(params) == 0 {
		return "nil"
	}
	pairs := make([]string, len(params))
	for i, p := range params {
		pairs[i] = strconv.Quote(Placeholder(i)) + ": " + p
	}
	return "graph.PathParams{" + strings.Join(pairs, ", ") + "}"
}

func httpMethod(method string) string {
	if c, ok := httpMethodConstants[strings.ToUpper(method)]; ok {
		return c
	}
	return strconv.Quote(strings.ToUpper(method))
}

func responseKindExpr(kind graph.ResponseKind) string {
	switch kind {
	case graph.ResponseNoContent:
		return "graph.ResponseNoContent"
	case graph.ResponseBytes:
		return "graph.ResponseBytes"
	}
	return "graph.ResponseJSON"
}
