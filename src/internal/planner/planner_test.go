package planner

import (
	"testing"

	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fn struct {
	name       string
	size       uint64
	gas        uint64
	mutability string
	deps       []string
	visibility string
	kind       string
}

func buildModel(fns ...fn) *model.ContractModel {
	m := &model.ContractModel{Name: "Test"}
	for i, s := range fns {
		f := model.FunctionDescriptor{
			ID:                model.FunctionID(i),
			Name:              s.name,
			Kind:              model.KindFunction,
			Visibility:        "external",
			Mutability:        model.MutabilityNonPayable,
			Dependencies:      s.deps,
			EstimatedCodeSize: s.size,
			EstimatedGas:      s.gas,
		}
		if s.mutability != "" {
			f.Mutability = s.mutability
		}
		if s.visibility != "" {
			f.Visibility = s.visibility
		}
		if s.kind != "" {
			f.Kind = s.kind
		}
		m.Functions = append(m.Functions, f)
	}
	return m
}

// layout renders a plan as chunk name -> member names.
func layout(m *model.ContractModel, p *Plan) map[string][]string {
	out := make(map[string][]string)
	for _, c := range p.Chunks {
		names := []string{}
		for _, id := range c.Members {
			names = append(names, m.Function(id).Name)
		}
		out[c.Name] = names
	}
	return out
}

func TestDomainEndToEnd(t *testing.T) {
	m := buildModel(
		fn{name: "constructor", kind: model.KindConstructor, visibility: "public", size: 300},
		fn{name: "transfer", size: 400},
		fn{name: "balanceOf", size: 200, mutability: model.MutabilityView},
		fn{name: "pause", size: 150},
		fn{name: "unpause", size: 150},
	)
	plan, err := Build(m, Options{Strategy: StrategyDomain, MaxSize: 24576})
	require.NoError(t, err)

	want := map[string][]string{
		"Admin": {"pause", "unpause"},
		"View":  {"balanceOf"},
		"Core":  {"transfer"},
	}
	if diff := cmp.Diff(want, layout(m, plan)); diff != "" {
		t.Fatalf("layout mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{DomainAdmin, DomainView, DomainCore}, []string{plan.Chunks[0].Domain, plan.Chunks[1].Domain, plan.Chunks[2].Domain})
	assert.Empty(t, plan.Errors)

	_, ok := plan.ChunkOf(0)
	assert.False(t, ok, "constructors are never placed")
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		mutability string
		want       string
	}{
		{"pause", model.MutabilityNonPayable, DomainAdmin},
		{"setFee", model.MutabilityNonPayable, DomainAdmin},
		{"settle", model.MutabilityNonPayable, DomainCore},
		{"upgradeToAndCall", model.MutabilityPayable, DomainAdmin},
		{"transferOwnership", model.MutabilityNonPayable, DomainAdmin},
		{"propose", model.MutabilityNonPayable, DomainGovernance},
		{"castVoteWithReason", model.MutabilityNonPayable, DomainGovernance},
		{"proposalThreshold", model.MutabilityView, DomainGovernance},
		{"balanceOf", model.MutabilityView, DomainView},
		{"hash", model.MutabilityPure, DomainView},
		{"transfer", model.MutabilityNonPayable, DomainCore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &model.FunctionDescriptor{Name: tt.name, Mutability: tt.mutability}
			assert.Equal(t, tt.want, Classify(f))
		})
	}
}

func TestDomainSplitsOverCeiling(t *testing.T) {
	m := buildModel(
		fn{name: "pause", size: 10000},
		fn{name: "unpause", size: 10000},
		fn{name: "setFee", size: 10000},
		fn{name: "transfer", size: 100},
	)
	plan, err := Build(m, Options{Strategy: StrategyDomain})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"Admin":  {"pause", "unpause"},
		"Admin2": {"setFee"},
		"Core":   {"transfer"},
	}, layout(m, plan))
	assert.Equal(t, DomainAdmin, plan.Chunks[1].Domain)
}

func TestCallGraphKeepsCyclesTogether(t *testing.T) {
	m := buildModel(
		fn{name: "a", size: 9000, deps: []string{"b"}},
		fn{name: "filler1", size: 14000},
		fn{name: "b", size: 9000, deps: []string{"a"}},
		fn{name: "c", size: 6000, deps: []string{"_h"}},
		fn{name: "_h", size: 100, deps: []string{"d"}, visibility: "internal"},
		fn{name: "d", size: 6000, deps: []string{"c"}},
		fn{name: "filler2", size: 14000},
	)
	plan, err := Build(m, Options{Strategy: StrategyCallGraph, MaxSize: 24576})
	require.NoError(t, err)
	require.Empty(t, plan.Errors)

	chunkA, _ := plan.ChunkOf(0)
	chunkB, _ := plan.ChunkOf(2)
	assert.Equal(t, chunkA, chunkB, "a and b call each other")

	chunkC, _ := plan.ChunkOf(3)
	chunkD, _ := plan.ChunkOf(5)
	assert.Equal(t, chunkC, chunkD, "c and d form a cycle through an internal helper")

	_, placed := plan.ChunkOf(4)
	assert.False(t, placed, "internal helpers are not routed")

	for _, c := range plan.Chunks {
		assert.LessOrEqual(t, c.AggregateSize, plan.MaxSize)
	}
}

func TestCallGraphFirstFitDecreasing(t *testing.T) {
	m := buildModel(
		fn{name: "small", size: 5000},
		fn{name: "medium", size: 9000},
		fn{name: "large", size: 15000},
		fn{name: "big", size: 10000},
	)
	plan, err := Build(m, Options{Strategy: StrategyCallGraph, MaxSize: 24576})
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{
		"Facet1": {"medium", "large"},
		"Facet2": {"small", "big"},
	}, layout(m, plan))
	assert.Equal(t, uint64(24000), plan.Chunks[0].AggregateSize)
	assert.Equal(t, uint64(15000), plan.Chunks[1].AggregateSize)
}

func TestOversize(t *testing.T) {
	m := buildModel(
		fn{name: "huge", size: 30000},
		fn{name: "ping", size: 15000, deps: []string{"pong"}},
		fn{name: "pong", size: 15000, deps: []string{"ping"}},
		fn{name: "tiny", size: 10},
	)

	plan, err := Build(m, Options{Strategy: StrategyCallGraph, MaxSize: 24576})
	require.NoError(t, err)
	require.Len(t, plan.Errors, 2)
	assert.Equal(t, []string{"huge"}, plan.Errors[0].Functions)
	assert.Equal(t, []string{"ping", "pong"}, plan.Errors[1].Functions)
	assert.Equal(t, uint64(30000), plan.Errors[1].Size)
	assert.Contains(t, plan.Errors[0].Error(), "huge needs 30000 bytes, ceiling is 24576")

	for _, c := range plan.Chunks {
		if c.Oversize {
			continue
		}
		assert.LessOrEqual(t, c.AggregateSize, plan.MaxSize)
	}
	chunkTiny, _ := plan.ChunkOf(3)
	assert.False(t, plan.Chunks[chunkTiny].Oversize, "nothing joins an oversize chunk")

	plan, err = Build(m, Options{Strategy: StrategySizeGas, MaxSize: 24576})
	require.NoError(t, err)
	require.Len(t, plan.Errors, 1)
	assert.True(t, plan.Chunks[0].Oversize)
	assert.Len(t, plan.Chunks[0].Members, 1)
	assert.NotEmpty(t, plan.Metrics.Recommendations)
}

func TestSizeGas(t *testing.T) {
	m := buildModel(
		fn{name: "a", size: 100, gas: 90000},
		fn{name: "b", size: 100, gas: 30000},
		fn{name: "c", size: 100, gas: 50000},
		fn{name: "d", size: 100, gas: 40000},
	)

	plan, err := Build(m, Options{Strategy: StrategySizeGas, GasLimit: 100000})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"Facet1": {"b", "d"},
		"Facet2": {"c"},
		"Facet3": {"a"},
	}, layout(m, plan))

	plan, err = Build(m, Options{Strategy: StrategySizeGas, MaxSize: 250})
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"Facet1": {"a", "b"},
		"Facet2": {"c", "d"},
	}, layout(m, plan), "without a gas limit declaration order is kept")
}

func TestPackedChunksKeepSharedDomain(t *testing.T) {
	m := buildModel(
		fn{name: "pause", size: 15000},
		fn{name: "unpause", size: 15000},
		fn{name: "transfer", size: 8000},
	)
	plan, err := Build(m, Options{Strategy: StrategyCallGraph})
	require.NoError(t, err)
	require.Equal(t, map[string][]string{
		"Facet1": {"pause", "transfer"},
		"Facet2": {"unpause"},
	}, layout(m, plan))
	assert.Empty(t, plan.Chunks[0].Domain, "mixed members have no domain")
	assert.Equal(t, DomainAdmin, plan.Chunks[1].Domain)
}

func TestGasOversize(t *testing.T) {
	m := buildModel(
		fn{name: "settle", size: 500, gas: 40000, deps: []string{"net"}},
		fn{name: "net", size: 500, gas: 40000, deps: []string{"settle"}},
		fn{name: "quote", size: 500, gas: 20000},
	)
	plan, err := Build(m, Options{Strategy: StrategyCallGraph, GasLimit: 60000})
	require.NoError(t, err)
	require.Len(t, plan.Errors, 1)
	assert.True(t, plan.Errors[0].OverGas())
	assert.ErrorContains(t, plan.Errors[0], "80000 gas, ceiling is 60000")

	c := plan.Chunks[plan.Errors[0].ChunkID]
	assert.True(t, c.Oversize)
	assert.Len(t, c.Members, 2)
	assert.Contains(t, plan.Metrics.Recommendations[0], "gas ceiling")

	plan, err = Build(m, Options{Strategy: StrategySizeGas, GasLimit: 30000})
	require.NoError(t, err)
	require.Len(t, plan.Errors, 2, "settle and net each exceed the ceiling alone")
	for _, e := range plan.Errors {
		assert.True(t, plan.Chunks[e.ChunkID].Oversize)
	}
	chunkQuote, ok := plan.ChunkOf(2)
	require.True(t, ok)
	assert.False(t, plan.Chunks[chunkQuote].Oversize)
}

func TestMetrics(t *testing.T) {
	m := buildModel(
		fn{name: "pause", size: 1000, deps: []string{"balanceOf"}},
		fn{name: "balanceOf", size: 1000, mutability: model.MutabilityView},
		fn{name: "transfer", size: 2000, deps: []string{"balanceOf", "pause"}},
	)
	plan, err := Build(m, Options{Strategy: StrategyDomain, MaxSize: 10000})
	require.NoError(t, err)

	assert.Equal(t, 3, plan.Metrics.CrossChunkEdges)
	assert.InDelta(t, 1.5, plan.Metrics.CrossChunkScore, 1e-9)
	assert.InDelta(t, 4000.0/3/10000, plan.Metrics.SizeEfficiency, 1e-9)
	assert.Equal(t, []string{"balanceOf"}, plan.Chunks[0].CrossChunkDependencies)
	assert.Equal(t, []string{"balanceOf", "pause"}, plan.Chunks[2].CrossChunkDependencies)
	assert.Len(t, plan.Metrics.Recommendations, 2)
}

func TestBuildIsDeterministic(t *testing.T) {
	m := buildModel(
		fn{name: "a", size: 7000, deps: []string{"b", "c"}},
		fn{name: "b", size: 7000, deps: []string{"a"}},
		fn{name: "c", size: 7000},
		fn{name: "d", size: 7000, deps: []string{"c"}},
		fn{name: "e", size: 7000},
	)
	for _, st := range []Strategy{StrategyDomain, StrategyCallGraph, StrategySizeGas} {
		first, err := Build(m, Options{Strategy: st})
		require.NoError(t, err)
		second, err := Build(m, Options{Strategy: st})
		require.NoError(t, err)
		if diff := cmp.Diff(first, second, cmpopts.IgnoreUnexported(Plan{})); diff != "" {
			t.Errorf("%s plan differs between runs:\n%s", st, diff)
		}
	}
}

func TestParseStrategy(t *testing.T) {
	for in, want := range map[string]Strategy{"": StrategyDomain, "CallGraph": StrategyCallGraph, " sizegas ": StrategySizeGas} {
		got, err := ParseStrategy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseStrategy("random")
	assert.ErrorContains(t, err, "unknown strategy")

	_, err = Build(buildModel(), Options{Strategy: "random"})
	assert.Error(t, err)
}

func TestEmptyModel(t *testing.T) {
	plan, err := Build(buildModel(), Options{})
	require.NoError(t, err)
	assert.Empty(t, plan.Chunks)
	assert.Zero(t, plan.Metrics.SizeEfficiency)
	assert.Equal(t, []string{"no routable functions to distribute"}, plan.Metrics.Recommendations)
}
