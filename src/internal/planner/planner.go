package planner

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/model"
)

// DefaultMaxSize is the EIP-170 deployed code size limit.
const DefaultMaxSize = 24576

type Strategy string

const (
	StrategyDomain    Strategy = "domain"
	StrategyCallGraph Strategy = "callgraph"
	StrategySizeGas   Strategy = "sizegas"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyDomain, StrategyCallGraph, StrategySizeGas:
		return st, nil
	case "":
		return StrategyDomain, nil
	}
	return "", fmt.Errorf("unknown strategy %q (supported: domain, callgraph, sizegas)", s)
}

type Options struct {
	Strategy Strategy
	// MaxSize is the per-chunk byte ceiling; zero means DefaultMaxSize.
	MaxSize uint64
	// GasLimit caps the aggregate gas of a chunk; zero disables it.
	GasLimit uint64
}

// Chunk is one planned facet. Members index the model's functions in
// declaration order.
type Chunk struct {
	ID                     int                `json:"id"`
	Name                   string             `json:"name"`
	Domain                 string             `json:"domain,omitempty"`
	Members                []model.FunctionID `json:"members"`
	AggregateSize          uint64             `json:"aggregateSize"`
	AggregateGas           uint64             `json:"aggregateGas"`
	CrossChunkDependencies []string           `json:"crossChunkDependencies"`
	// Oversize marks a unit that alone exceeds the size or gas ceiling.
	Oversize bool `json:"oversize,omitempty"`
}

type Metrics struct {
	CrossChunkEdges int      `json:"crossChunkEdges"`
	CrossChunkScore float64  `json:"crossChunkScore"`
	SizeEfficiency  float64  `json:"sizeEfficiency"`
	Recommendations []string `json:"recommendations"`
}

type Plan struct {
	Strategy Strategy `json:"strategy"`
	MaxSize  uint64   `json:"maxSize"`
	GasLimit uint64   `json:"gasLimit,omitempty"`
	Chunks   []Chunk  `json:"chunks"`
	Metrics  Metrics  `json:"metrics"`
	// Errors holds units that could not be placed within the ceiling.
	Errors []*OversizeError `json:"-"`

	chunkOf map[model.FunctionID]int
}

// ChunkOf returns the index of the chunk holding id.
func (p *Plan) ChunkOf(id model.FunctionID) (int, bool) {
	c, ok := p.chunkOf[id]
	return c, ok
}

// OversizeError reports a packing unit larger than the size ceiling, or with
// more gas than the gas ceiling. The unit is still emitted, alone, in a chunk
// flagged Oversize.
type OversizeError struct {
	ChunkID   int
	Functions []string
	Size      uint64
	Limit     uint64
	Gas       uint64
	GasLimit  uint64
}

// OverGas is set when the unit fits the size ceiling but not the gas one.
func (e *OversizeError) OverGas() bool {
	return e.Size <= e.Limit && e.GasLimit > 0 && e.Gas > e.GasLimit
}

func (e *OversizeError) Error() string {
	if e.OverGas() {
		return fmt.Sprintf("chunk %d: %s needs %d gas, ceiling is %d", e.ChunkID, strings.Join(e.Functions, ", "), e.Gas, e.GasLimit)
	}
	return fmt.Sprintf("chunk %d: %s needs %d bytes, ceiling is %d", e.ChunkID, strings.Join(e.Functions, ", "), e.Size, e.Limit)
}

type planner struct {
	m     *model.ContractModel
	graph *Graph
	opts  Options
	plan  *Plan
}

// Build partitions the routable functions of m into chunks. The result depends
// only on m and opts.
func Build(m *model.ContractModel, opts Options) (*Plan, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyDomain
	}
	if opts.MaxSize == 0 {
		opts.MaxSize = DefaultMaxSize
	}
	p := &planner{
		m:     m,
		graph: NewGraph(m),
		opts:  opts,
		plan:  &Plan{Strategy: opts.Strategy, MaxSize: opts.MaxSize, GasLimit: opts.GasLimit},
	}

	switch opts.Strategy {
	case StrategyDomain:
		p.domain()
	case StrategyCallGraph:
		p.callGraph()
	case StrategySizeGas:
		p.sizeGas()
	default:
		return nil, fmt.Errorf("unknown strategy %q", opts.Strategy)
	}
	if opts.Strategy != StrategyDomain {
		for i := range p.plan.Chunks {
			c := &p.plan.Chunks[i]
			c.Name = "Facet" + strconv.Itoa(i+1)
			c.Domain = p.sharedDomain(c.Members)
		}
	}
	p.finish()
	return p.plan, nil
}

// sharedDomain is the domain of every member, or "" when they differ.
func (p *planner) sharedDomain(ids []model.FunctionID) string {
	domain := ""
	for i, id := range ids {
		d := Classify(p.m.Function(id))
		if i > 0 && d != domain {
			return ""
		}
		domain = d
	}
	return domain
}

func (p *planner) fits(c *Chunk, size, gas uint64) bool {
	if c.Oversize || c.AggregateSize+size > p.opts.MaxSize {
		return false
	}
	return p.opts.GasLimit == 0 || c.AggregateGas+gas <= p.opts.GasLimit
}

func (p *planner) newChunk() *Chunk {
	p.plan.Chunks = append(p.plan.Chunks, Chunk{ID: len(p.plan.Chunks)})
	return &p.plan.Chunks[len(p.plan.Chunks)-1]
}

func (p *planner) add(c *Chunk, ids ...model.FunctionID) {
	for _, id := range ids {
		f := p.m.Function(id)
		c.Members = append(c.Members, id)
		c.AggregateSize += f.EstimatedCodeSize
		c.AggregateGas += f.EstimatedGas
	}
}

// exceeds reports whether a unit of this size and gas breaks a ceiling on its own.
func (p *planner) exceeds(size, gas uint64) bool {
	return size > p.opts.MaxSize || (p.opts.GasLimit > 0 && gas > p.opts.GasLimit)
}

func (p *planner) oversize(ids []model.FunctionID) {
	c := p.newChunk()
	p.add(c, ids...)
	c.Oversize = true
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = p.m.Function(id).Name
	}
	p.plan.Errors = append(p.plan.Errors, &OversizeError{
		ChunkID:   c.ID,
		Functions: names,
		Size:      c.AggregateSize,
		Limit:     p.opts.MaxSize,
		Gas:       c.AggregateGas,
		GasLimit:  p.opts.GasLimit,
	})
}

// greedy appends ids in order to the current chunk, opening a new one when
// either ceiling would be exceeded.
func (p *planner) greedy(ids []model.FunctionID) {
	var cur *Chunk
	for _, id := range ids {
		f := p.m.Function(id)
		if p.exceeds(f.EstimatedCodeSize, f.EstimatedGas) {
			p.oversize([]model.FunctionID{id})
			cur = nil
			continue
		}
		if cur == nil || !p.fits(cur, f.EstimatedCodeSize, f.EstimatedGas) {
			cur = p.newChunk()
		}
		p.add(cur, id)
	}
}

func (p *planner) sizeGas() {
	ids := p.m.Routable()
	if p.opts.GasLimit > 0 {
		sort.SliceStable(ids, func(i, j int) bool {
			return p.m.Function(ids[i]).EstimatedGas < p.m.Function(ids[j]).EstimatedGas
		})
	}
	p.greedy(ids)
}

type unit struct {
	members []model.FunctionID
	size    uint64
	gas     uint64
}

// callGraph packs strongly connected components first-fit-decreasing. A
// component is never split, so mutually recursive functions share a chunk.
func (p *planner) callGraph() {
	var units []unit
	for _, comp := range p.graph.SCCs() {
		var u unit
		for _, id := range comp {
			f := p.m.Function(id)
			if !f.Routable() {
				continue
			}
			u.members = append(u.members, id)
			u.size += f.EstimatedCodeSize
			u.gas += f.EstimatedGas
		}
		if len(u.members) > 0 {
			units = append(units, u)
		}
	}
	sort.SliceStable(units, func(i, j int) bool {
		if units[i].size != units[j].size {
			return units[i].size > units[j].size
		}
		return units[i].members[0] < units[j].members[0]
	})

	for _, u := range units {
		if p.exceeds(u.size, u.gas) {
			p.oversize(u.members)
			continue
		}
		var target *Chunk
		for i := range p.plan.Chunks {
			if p.fits(&p.plan.Chunks[i], u.size, u.gas) {
				target = &p.plan.Chunks[i]
				break
			}
		}
		if target == nil {
			target = p.newChunk()
		}
		p.add(target, u.members...)
	}
	for i := range p.plan.Chunks {
		members := p.plan.Chunks[i].Members
		sort.Slice(members, func(a, b int) bool { return members[a] < members[b] })
	}
}

// finish fills the chunk index, cross-chunk dependencies and metrics.
func (p *planner) finish() {
	plan := p.plan
	plan.chunkOf = make(map[model.FunctionID]int)
	for i, c := range plan.Chunks {
		for _, id := range c.Members {
			plan.chunkOf[id] = i
		}
	}

	var totalSize uint64
	for i := range plan.Chunks {
		c := &plan.Chunks[i]
		totalSize += c.AggregateSize
		deps := make(map[string]bool)
		for _, id := range c.Members {
			for _, to := range p.graph.RoutableTargets(id) {
				if other, ok := plan.chunkOf[to]; ok && other != i {
					plan.Metrics.CrossChunkEdges++
					deps[p.m.Function(to).Name] = true
				}
			}
		}
		c.CrossChunkDependencies = make([]string, 0, len(deps))
		for name := range deps {
			c.CrossChunkDependencies = append(c.CrossChunkDependencies, name)
		}
		sort.Strings(c.CrossChunkDependencies)
	}

	n := len(plan.Chunks)
	plan.Metrics.CrossChunkScore = float64(plan.Metrics.CrossChunkEdges) / float64(max(n-1, 1))
	if n > 0 {
		plan.Metrics.SizeEfficiency = float64(totalSize) / float64(n) / float64(plan.MaxSize)
	}
	plan.Metrics.Recommendations = p.recommend()
}

func (p *planner) recommend() []string {
	plan := p.plan
	recs := []string{}
	if len(plan.Chunks) == 0 {
		return append(recs, "no routable functions to distribute")
	}
	for _, e := range plan.Errors {
		if e.OverGas() {
			recs = append(recs, fmt.Sprintf("%s exceeds the %d gas ceiling on its own; raise --gas-limit or simplify the function", strings.Join(e.Functions, ", "), e.GasLimit))
			continue
		}
		recs = append(recs, fmt.Sprintf("%s exceeds the %d-byte ceiling on its own; move logic into a library or split the function", strings.Join(e.Functions, ", "), e.Limit))
	}
	if plan.Metrics.CrossChunkScore > 1 {
		if plan.Strategy == StrategyCallGraph {
			recs = append(recs, fmt.Sprintf("cross-chunk coupling is high (%.2f); consider raising the size ceiling", plan.Metrics.CrossChunkScore))
		} else {
			recs = append(recs, fmt.Sprintf("cross-chunk coupling is high (%.2f); the callgraph strategy keeps callers next to callees", plan.Metrics.CrossChunkScore))
		}
	}
	if len(plan.Chunks) > 1 && plan.Metrics.SizeEfficiency < 0.25 {
		recs = append(recs, fmt.Sprintf("chunks use %.0f%% of the ceiling on average; the sizegas strategy would need fewer facets", plan.Metrics.SizeEfficiency*100))
	}
	return recs
}
