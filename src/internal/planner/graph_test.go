package planner

import (
	"strconv"
	"testing"

	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphEdgesCoverOverloads(t *testing.T) {
	g := NewGraph(buildModel(
		fn{name: "run", deps: []string{"mint", "mint", "missing"}},
		fn{name: "mint"},
		fn{name: "mint"},
	))
	assert.Equal(t, []model.FunctionID{1, 2}, g.Callees(0))
	assert.Empty(t, g.Callees(1))
}

func TestSCCs(t *testing.T) {
	g := NewGraph(buildModel(
		fn{name: "a", deps: []string{"b"}},
		fn{name: "b", deps: []string{"c"}},
		fn{name: "c", deps: []string{"a", "d"}},
		fn{name: "d"},
		fn{name: "e", deps: []string{"e"}},
	))
	assert.Equal(t, [][]model.FunctionID{{3}, {0, 1, 2}, {4}}, g.SCCs())
}

func TestSCCsDeepChain(t *testing.T) {
	const n = 200000
	fns := make([]fn, n)
	for i := range fns {
		fns[i] = fn{name: "f" + strconv.Itoa(i), deps: []string{"f" + strconv.Itoa(i+1)}}
	}

	comps := NewGraph(buildModel(fns...)).SCCs()
	require.Len(t, comps, n)
	assert.Equal(t, model.FunctionID(n-1), comps[0][0], "callees close before callers")

	fns[n-1].deps = []string{"f0"}
	comps = NewGraph(buildModel(fns...)).SCCs()
	require.Len(t, comps, 1)
	assert.Len(t, comps[0], n)
}

func TestRoutableTargets(t *testing.T) {
	g := NewGraph(buildModel(
		fn{name: "a", deps: []string{"a", "_h"}},
		fn{name: "_h", deps: []string{"b", "_g"}, visibility: "private"},
		fn{name: "_g", deps: []string{"_h", "c"}, visibility: "internal"},
		fn{name: "b", deps: []string{"d"}},
		fn{name: "c"},
		fn{name: "d"},
	))
	assert.Equal(t, []model.FunctionID{3, 4}, g.RoutableTargets(0), "routable callees are not followed further")
	assert.Equal(t, []model.FunctionID{5}, g.RoutableTargets(3))
	assert.Empty(t, g.RoutableTargets(4))
}

func TestTree(t *testing.T) {
	g := NewGraph(buildModel(
		fn{name: "a", deps: []string{"b", "c"}},
		fn{name: "b", deps: []string{"a"}},
		fn{name: "c", deps: []string{"_h"}},
		fn{name: "_h", visibility: "internal"},
	))
	want := "a\n" +
		"├── b\n" +
		"│   └── a (cycle)\n" +
		"└── c\n" +
		"    └── _h\n" +
		"b\n" +
		"└── a\n" +
		"    ├── b (cycle)\n" +
		"    └── c\n" +
		"        └── _h\n" +
		"c\n" +
		"└── _h\n"
	assert.Equal(t, want, g.Tree())
}

func TestTreeMarksRepeatedSubtrees(t *testing.T) {
	g := NewGraph(buildModel(
		fn{name: "x", deps: []string{"y", "z"}},
		fn{name: "y", deps: []string{"w"}, visibility: "internal"},
		fn{name: "z", deps: []string{"y", "w"}, visibility: "internal"},
		fn{name: "w", visibility: "internal"},
	))
	want := "x\n" +
		"├── y\n" +
		"│   └── w\n" +
		"└── z\n" +
		"    ├── y (seen)\n" +
		"    └── w\n"
	assert.Equal(t, want, g.Tree())
}
