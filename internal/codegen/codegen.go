package codegen

import (
	"context"
	"fmt"
	"slices"

	"github.com/tonimelisma/msgraph-client/internal/logger"
)

// Result summarizes a generation run.
type Result struct {
	Operations int
	Emitted    int
	Filtered   int
	Nodes      int
	Files      []string
	Warnings   []Warning
}

// Generate loads the OpenAPI document at input, groups its operations into
// resource clients as cfg describes and writes them to outDir. A nil cfg
// uses the embedded defaults. Operations that cannot be modelled are
// reported as warnings, not errors.
func Generate(ctx context.Context, input string, cfg *Config, outDir string, l logger.Logger) (*Result, error) {
	if l == nil {
		l = logger.NoopLogger{}
	}
	if cfg == nil {
		var err error
		if cfg, err = DefaultConfig(); err != nil {
			return nil, err
		}
	}
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	emitter, err := NewEmitter(cfg.Package, cfg.RuntimeImport, l)
	if err != nil {
		return nil, err
	}

	l.Infof("Loading OpenAPI document %s", input)
	doc, err := LoadDocument(ctx, input)
	if err != nil {
		return nil, err
	}
	ops, warnings := NewParser(l).Parse(doc)
	forest := NewGrouper(registry, cfg.InferSecondaries, l).Group(ops)

	files, err := emitter.Emit(forest)
	if err != nil {
		return nil, err
	}
	if err := WriteFiles(outDir, files); err != nil {
		return nil, err
	}

	res := &Result{
		Operations: len(ops),
		Emitted:    forest.OperationCount(),
		Filtered:   forest.Filtered,
		Nodes:      len(forest.Nodes),
		Warnings:   append(warnings, forest.Warnings...),
	}
	for name := range files {
		res.Files = append(res.Files, name)
	}
	slices.Sort(res.Files)
	l.Info("generation finished", "operations", res.Operations, "emitted", res.Emitted, "filtered", res.Filtered, "clients", res.Nodes, "warnings", len(res.Warnings))
	return res, nil
}

// String renders the run summary.
func (r *Result) String() string {
	return fmt.Sprintf("%d operations, %d emitted into %d clients, %d filtered, %d warnings",
		r.Operations, r.Emitted, r.Nodes, r.Filtered, len(r.Warnings))
}
