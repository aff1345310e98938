package codegen

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/tonimelisma/msgraph-client/internal/logger"
	"github.com/tonimelisma/msgraph-client/pkg/graph"
)

// LoadDocument loads an OpenAPI document from a file path or an HTTP(S)
// URL.
func LoadDocument(ctx context.Context, input string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = true

	var (
		doc *openapi3.T
		err error
	)
	if u, perr := url.Parse(input); perr == nil && (u.Scheme == "http" || u.Scheme == "https") {
		doc, err = loader.LoadFromURI(u)
	} else {
		doc, err = loader.LoadFromFile(input)
	}
	if err != nil {
		return nil, fmt.Errorf("loading API description %s: %w", input, err)
	}
	return doc, nil
}

// LoadDocumentData parses an in-memory description.
func LoadDocumentData(ctx context.Context, data []byte) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parsing API description: %w", err)
	}
	return doc, nil
}

// Warning records an operation the parser dropped.
type Warning struct {
	Method string
	Path   string
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s %s: %s", w.Method, w.Path, w.Reason)
}

// Parser turns a loaded document into normalized operations.
type Parser struct {
	logger logger.Logger
}

// NewParser returns a parser logging to l.
func NewParser(l logger.Logger) *Parser {
	if l == nil {
		l = logger.NoopLogger{}
	}
	return &Parser{logger: l}
}

// Parse walks every path and method of doc in a stable order. Operations
// with a malformed path are dropped and reported as warnings; they never
// fail the run.
func (p *Parser) Parse(doc *openapi3.T) ([]Operation, []Warning) {
	if doc == nil || doc.Paths == nil {
		return nil, nil
	}
	var ops []Operation
	var warnings []Warning

	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for k := range paths {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	for _, raw := range keys {
		item := paths[raw]
		byMethod := item.Operations()
		methods := make([]string, 0, len(byMethod))
		for m := range byMethod {
			methods = append(methods, m)
		}
		slices.Sort(methods)

		for _, method := range methods {
			op, err := p.parseOperation(raw, method, byMethod[method])
			if err != nil {
				w := Warning{Method: method, Path: raw, Reason: err.Error()}
				p.logger.Warnf("Dropping operation %s", w)
				warnings = append(warnings, w)
				continue
			}
			ops = append(ops, op)
		}
	}
	p.logger.Debug("parsed API description", "operations", len(ops), "dropped", len(warnings))
	return ops, warnings
}

func (p *Parser) parseOperation(raw, method string, o *openapi3.Operation) (Operation, error) {
	path, names, err := NormalizePath(raw)
	if err != nil {
		return Operation{}, err
	}
	opID := o.OperationID
	if opID == "" {
		opID = fallbackOperationID(method, path)
	}
	mapping := Mapping(opID)
	return Operation{
		OperationID:  opID,
		Method:       strings.ToUpper(method),
		RawPath:      raw,
		Path:         path,
		ParamNames:   names,
		HasBody:      o.RequestBody != nil,
		ResponseKind: responseKind(path, o),
		Doc:          docLine(o),
		Name:         MethodName(opID),
		Mapping:      mapping,
		Links:        Links(mapping),
	}, nil
}

// fallbackOperationID builds "seg.seg.method_last" for undocumented ids.
func fallbackOperationID(method, path string) string {
	var parts []string
	for _, s := range segments(path) {
		if !isPlaceholder(s) {
			parts = append(parts, s)
		}
	}
	last := "root"
	if len(parts) > 0 {
		last = parts[len(parts)-1]
	}
	return strings.Join(append(parts, strings.ToLower(method)+"_"+last), ".")
}

func docLine(o *openapi3.Operation) string {
	doc := o.Summary
	if doc == "" {
		doc = o.Description
	}
	doc, _, _ = strings.Cut(strings.TrimSpace(doc), "\n")
	return strings.TrimSpace(doc)
}

// responseKind reads the success responses: no content, a byte stream, or
// JSON.
func responseKind(path string, o *openapi3.Operation) graph.ResponseKind {
	if strings.HasSuffix(path, "/content") || strings.HasSuffix(path, "/$value") {
		return graph.ResponseBytes
	}
	if o.Responses == nil {
		return graph.ResponseJSON
	}
	responses := o.Responses.Map()
	codes := make([]string, 0, len(responses))
	for code := range responses {
		codes = append(codes, code)
	}
	slices.Sort(codes)

	sawSuccess := false
	for _, code := range codes {
		ref := responses[code]
		if !strings.HasPrefix(code, "2") || ref == nil || ref.Value == nil {
			continue
		}
		sawSuccess = true
		for media := range ref.Value.Content {
			if media == "application/octet-stream" {
				return graph.ResponseBytes
			}
		}
		if len(ref.Value.Content) > 0 {
			return graph.ResponseJSON
		}
	}
	if sawSuccess {
		return graph.ResponseNoContent
	}
	return graph.ResponseJSON
}
