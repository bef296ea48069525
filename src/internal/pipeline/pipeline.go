// Package pipeline wires extraction, planning, route resolution, Merkle
// construction and validation into one run per source file.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/VectorBits/facetsplit/src/internal/extractor"
	"github.com/VectorBits/facetsplit/src/internal/logger"
	"github.com/VectorBits/facetsplit/src/internal/manifest"
	"github.com/VectorBits/facetsplit/src/internal/merkle"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/VectorBits/facetsplit/src/internal/validator"
	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	Extract    extractor.Options
	Plan       planner.Options
	Validate   validator.Options
	Identities manifest.Identities
	// Progress, when set, is called once per file by RunFiles. It may be
	// called from several goroutines at once.
	Progress func(path string, err error)
}

// Result is everything one run produced. It shares no state with other runs.
type Result struct {
	File       string
	Model      *model.ContractModel
	Graph      *planner.Graph
	Plan       *planner.Plan
	Facets     []manifest.Facet
	Routes     []model.Route
	Sorted     *merkle.Tree
	Ordered    *merkle.Tree
	Validation *validator.Report
}

// MerkleRoot is the sorted-pair route root, or the zero hash with no routes.
func (r *Result) MerkleRoot() common.Hash {
	if r.Sorted == nil {
		return common.Hash{}
	}
	return r.Sorted.Root()
}

func (r *Result) ManifestInput() manifest.Input {
	return manifest.Input{
		Model:   r.Model,
		Plan:    r.Plan,
		Facets:  r.Facets,
		Routes:  r.Routes,
		Sorted:  r.Sorted,
		Ordered: r.Ordered,
	}
}

type Pipeline struct {
	extractor *extractor.Extractor
	validator *validator.Validator
	opts      Options
}

func New(ex *extractor.Extractor, opts Options) (*Pipeline, error) {
	if _, err := planner.ParseStrategy(string(opts.Plan.Strategy)); err != nil {
		return nil, err
	}
	if opts.Validate.MaxSize == 0 {
		opts.Validate.MaxSize = opts.Plan.MaxSize
	}
	v, err := validator.New(opts.Validate)
	if err != nil {
		return nil, err
	}
	return &Pipeline{extractor: ex, validator: v, opts: opts}, nil
}

// Run analyses one source text. Extraction failures abort the run; validation
// findings never do.
func (p *Pipeline) Run(ctx context.Context, source string) (*Result, error) {
	m, err := p.extractor.Extract(ctx, source, p.opts.Extract)
	if err != nil {
		return nil, err
	}
	plan, err := planner.Build(m, p.opts.Plan)
	if err != nil {
		return nil, fmt.Errorf("planning %s: %w", m.Name, err)
	}
	for _, e := range plan.Errors {
		logger.Warn("%s: %v", m.Name, e)
	}
	facets, routes, err := manifest.ResolveRoutes(m, plan, p.opts.Identities)
	if err != nil {
		return nil, fmt.Errorf("resolving routes for %s: %w", m.Name, err)
	}
	sorted, ordered, err := manifest.Trees(routes)
	if err != nil {
		return nil, fmt.Errorf("building route tree for %s: %w", m.Name, err)
	}

	res := &Result{
		Model:   m,
		Graph:   planner.NewGraph(m),
		Plan:    plan,
		Facets:  facets,
		Routes:  routes,
		Sorted:  sorted,
		Ordered: ordered,
	}
	res.Validation = p.validator.Validate(m, plan, routes)
	logger.Debug("%s: %d functions, %d chunks, %d routes, %d validation errors",
		m.Name, len(m.Functions), len(plan.Chunks), len(routes), len(res.Validation.Errors))
	return res, nil
}

func (p *Pipeline) RunFile(ctx context.Context, path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	res, err := p.Run(ctx, string(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	res.File = path
	logger.InfoFileOnly("analysed %s (%s) root %s", path, res.Model.Name, res.MerkleRoot().Hex())
	return res, nil
}

// RunFiles runs one independent pipeline per path, at most concurrency at a
// time, and returns once all have finished. results[i] belongs to paths[i] and
// is nil when that file failed; the failures are joined into the error.
func (p *Pipeline) RunFiles(ctx context.Context, paths []string, concurrency int) ([]*Result, error) {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}
	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = fmt.Errorf("%s: %w", path, err)
			} else {
				results[i], errs[i] = p.RunFile(ctx, path)
			}
			if p.opts.Progress != nil {
				p.opts.Progress(path, errs[i])
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}
