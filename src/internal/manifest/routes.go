package manifest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/merkle"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// Facet is a planned chunk with the identity it is deployed under.
type Facet struct {
	ChunkID  int
	Name     string
	Address  common.Address
	Codehash common.Hash
	// Predicted is set when Codehash is a placeholder rather than the hash of
	// compiled bytecode.
	Predicted bool
	Routes    []model.Route
}

// PlaceholderAddress is the facet identifier used until a deployed address is
// configured.
func PlaceholderAddress(name string) common.Address {
	return common.BytesToAddress(crypto.Keccak256([]byte("facetsplit.facet." + name))[12:])
}

// PredictedCodehash stands in for the codehash of a facet that has not been
// compiled. It changes whenever the facet's member set changes.
func PredictedCodehash(signatures []string) common.Hash {
	return crypto.Keccak256Hash([]byte("facetsplit.chunk\n" + strings.Join(signatures, "\n")))
}

// Identities maps facet names to deployed addresses and codehashes. Names
// missing from either map get placeholders.
type Identities struct {
	Addresses  map[string]string
	Codehashes map[string]string
}

// ResolveRoutes assigns every chunk member a route. Routes are ordered by
// chunk, then by declaration order within the chunk.
func ResolveRoutes(m *model.ContractModel, plan *planner.Plan, ids Identities) ([]Facet, []model.Route, error) {
	facets := make([]Facet, 0, len(plan.Chunks))
	var routes []model.Route
	for _, c := range plan.Chunks {
		members := append([]model.FunctionID(nil), c.Members...)
		sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })

		sigs := make([]string, len(members))
		for i, id := range members {
			sigs[i] = m.Function(id).CanonicalSignature
		}

		f := Facet{ChunkID: c.ID, Name: c.Name, Address: PlaceholderAddress(c.Name)}
		if raw, ok := ids.Addresses[c.Name]; ok {
			if !common.IsHexAddress(raw) {
				return nil, nil, fmt.Errorf("facet %s: invalid address %q", c.Name, raw)
			}
			f.Address = common.HexToAddress(raw)
		}
		if raw, ok := ids.Codehashes[c.Name]; ok {
			b, err := hexutil.Decode(raw)
			if err != nil || len(b) != common.HashLength {
				return nil, nil, fmt.Errorf("facet %s: invalid codehash %q", c.Name, raw)
			}
			f.Codehash = common.BytesToHash(b)
		} else {
			f.Codehash = PredictedCodehash(sigs)
			f.Predicted = true
		}

		for _, id := range members {
			fn := m.Function(id)
			f.Routes = append(f.Routes, model.Route{
				Selector:     fn.Selector,
				Facet:        c.Name,
				FacetAddress: f.Address,
				Codehash:     f.Codehash,
				Signature:    fn.CanonicalSignature,
				FunctionName: fn.Name,
				ChunkID:      c.ID,
			})
		}
		routes = append(routes, f.Routes...)
		facets = append(facets, f)
	}
	return facets, routes, nil
}

// Leaves hashes routes in order.
func Leaves(routes []model.Route) []common.Hash {
	out := make([]common.Hash, len(routes))
	for i, r := range routes {
		out[i] = merkle.RouteLeaf(r.Selector, r.FacetAddress, r.Codehash)
	}
	return out
}

// Trees builds both route trees. With no routes both are nil.
func Trees(routes []model.Route) (sorted, ordered *merkle.Tree, err error) {
	if len(routes) == 0 {
		return nil, nil, nil
	}
	leaves := Leaves(routes)
	if sorted, err = merkle.Build(merkle.SortedPair, leaves); err != nil {
		return nil, nil, err
	}
	if ordered, err = merkle.Build(merkle.Ordered, leaves); err != nil {
		return nil, nil, err
	}
	return sorted, ordered, nil
}
