// Package manifest serialises a finished plan into the facet-selector
// manifest, the deployment manifest and the proof bundle.
package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/VectorBits/facetsplit/src/internal/merkle"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/ethereum/go-ethereum/common"
)

const (
	FacetsFile     = "facets.json"
	DeploymentFile = "deployment.json"
	ProofsFile     = "proofs.json"
)

// Settings carries the deployment context. Empty addresses are written as the
// zero address.
type Settings struct {
	Version    string
	Network    string
	Creator    string
	Factory    string
	Dispatcher string
	Deployer   string
}

// Input is everything the serializers read. Facets and Routes come from
// ResolveRoutes, the trees from Trees.
type Input struct {
	Model   *model.ContractModel
	Plan    *planner.Plan
	Facets  []Facet
	Routes  []model.Route
	Sorted  *merkle.Tree
	Ordered *merkle.Tree
}

type FacetManifest struct {
	Version string                    `json:"version"`
	Facets  map[string]FacetSelectors `json:"facets"`
}

type FacetSelectors struct {
	Selectors []string `json:"selectors"`
}

// NewFacetManifest lists each facet's selectors in ascending order.
func NewFacetManifest(in Input, version string) *FacetManifest {
	fm := &FacetManifest{Version: version, Facets: make(map[string]FacetSelectors, len(in.Facets))}
	for _, f := range in.Facets {
		sels := make([]string, 0, len(f.Routes))
		for _, r := range f.Routes {
			sels = append(sels, r.Selector.Hex())
		}
		sort.Strings(sels)
		fm.Facets[f.Name] = FacetSelectors{Selectors: sels}
	}
	return fm
}

type Deployment struct {
	Metadata     Metadata     `json:"metadata"`
	Target       Target       `json:"target"`
	Chunks       []ChunkEntry `json:"chunks"`
	Routes       []RouteEntry `json:"routes"`
	Verification Verification `json:"verification"`
	Dependencies []string     `json:"dependencies"`
	Security     Security     `json:"security"`
}

type Metadata struct {
	Version   string `json:"version"`
	Timestamp string `json:"timestamp"`
	Network   string `json:"network"`
	Creator   string `json:"creator"`
}

type Target struct {
	Factory    string `json:"factory"`
	Dispatcher string `json:"dispatcher"`
	Deployer   string `json:"deployer"`
}

type ChunkEntry struct {
	ID                int      `json:"id"`
	Name              string   `json:"name"`
	Facet             string   `json:"facet"`
	Codehash          string   `json:"codehash"`
	CodehashPredicted bool     `json:"codehashPredicted"`
	Selectors         []string `json:"selectors"`
	Functions         []string `json:"functions"`
	Size              uint64   `json:"size"`
	Gas               uint64   `json:"gas"`
	Oversize          bool     `json:"oversize,omitempty"`
}

type RouteEntry struct {
	Selector     string `json:"selector"`
	Facet        string `json:"facet"`
	Codehash     string `json:"codehash"`
	FunctionName string `json:"functionName"`
	Signature    string `json:"signature"`
	ChunkID      int    `json:"chunkId"`
}

type Verification struct {
	MerkleRoot  string            `json:"merkleRoot"`
	ChunkHashes map[string]string `json:"chunkHashes"`
	RouteCount  int               `json:"routeCount"`
	TotalSize   uint64            `json:"totalSize"`
}

type Security struct {
	Pausable    bool `json:"pausable"`
	Upgradeable bool `json:"upgradeable"`
}

func address(raw string) string {
	return common.HexToAddress(raw).Hex()
}

// NewDeployment builds the deployment manifest. The sorted-pair root is the
// recorded merkleRoot; with no routes it is the zero hash.
func NewDeployment(in Input, s Settings, now time.Time) *Deployment {
	d := &Deployment{
		Metadata: Metadata{
			Version:   s.Version,
			Timestamp: now.UTC().Format(time.RFC3339),
			Network:   s.Network,
			Creator:   s.Creator,
		},
		Target: Target{
			Factory:    address(s.Factory),
			Dispatcher: address(s.Dispatcher),
			Deployer:   address(s.Deployer),
		},
		Chunks: make([]ChunkEntry, 0, len(in.Facets)),
		Routes: make([]RouteEntry, 0, len(in.Routes)),
		Verification: Verification{
			MerkleRoot:  common.Hash{}.Hex(),
			ChunkHashes: make(map[string]string, len(in.Facets)),
			RouteCount:  len(in.Routes),
		},
		Dependencies: dependencies(in.Model),
		Security:     security(in.Model),
	}
	if in.Sorted != nil {
		d.Verification.MerkleRoot = in.Sorted.Root().Hex()
	}

	for i, f := range in.Facets {
		c := in.Plan.Chunks[i]
		entry := ChunkEntry{
			ID:                f.ChunkID,
			Name:              f.Name,
			Facet:             f.Address.Hex(),
			Codehash:          f.Codehash.Hex(),
			CodehashPredicted: f.Predicted,
			Selectors:         make([]string, 0, len(f.Routes)),
			Functions:         make([]string, 0, len(f.Routes)),
			Size:              c.AggregateSize,
			Gas:               c.AggregateGas,
			Oversize:          c.Oversize,
		}
		for _, r := range f.Routes {
			entry.Selectors = append(entry.Selectors, r.Selector.Hex())
			entry.Functions = append(entry.Functions, r.Signature)
		}
		d.Chunks = append(d.Chunks, entry)
		d.Verification.ChunkHashes[strconv.Itoa(f.ChunkID)] = f.Codehash.Hex()
		d.Verification.TotalSize += c.AggregateSize
	}

	for _, r := range in.Routes {
		d.Routes = append(d.Routes, RouteEntry{
			Selector:     r.Selector.Hex(),
			Facet:        r.FacetAddress.Hex(),
			Codehash:     r.Codehash.Hex(),
			FunctionName: r.FunctionName,
			Signature:    r.Signature,
			ChunkID:      r.ChunkID,
		})
	}
	return d
}

// dependencies is the sorted union of imports and base contracts.
func dependencies(m *model.ContractModel) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, dep := range append(append([]string(nil), m.Imports...), m.Inheritance...) {
		if dep == "" || seen[dep] {
			continue
		}
		seen[dep] = true
		out = append(out, dep)
	}
	sort.Strings(out)
	return out
}

func security(m *model.ContractModel) Security {
	var s Security
	for _, f := range m.Functions {
		if f.Name == "pause" {
			s.Pausable = true
		}
		if strings.Contains(strings.ToLower(f.Name), "upgrade") {
			s.Upgradeable = true
		}
	}
	for _, base := range m.Inheritance {
		if strings.Contains(base, "Upgradeable") || strings.Contains(base, "UUPS") {
			s.Upgradeable = true
		}
	}
	return s
}

type ProofSet struct {
	Convention  merkle.Convention `json:"convention"`
	MerkleRoot  string            `json:"merkleRoot"`
	OrderedRoot string            `json:"orderedRoot"`
	Proofs      []ProofEntry      `json:"proofs"`
}

type ProofEntry struct {
	Selector   string            `json:"selector"`
	Leaf       string            `json:"leaf"`
	Convention merkle.Convention `json:"convention"`
	Siblings   []string          `json:"siblings"`
	Positions  *uint64           `json:"positions,omitempty"`
}

// NewProofSet writes a sorted-pair and an ordered proof for every route.
func NewProofSet(in Input) (*ProofSet, error) {
	ps := &ProofSet{
		Convention:  merkle.SortedPair,
		MerkleRoot:  common.Hash{}.Hex(),
		OrderedRoot: common.Hash{}.Hex(),
		Proofs:      make([]ProofEntry, 0, 2*len(in.Routes)),
	}
	if in.Sorted == nil || in.Ordered == nil {
		return ps, nil
	}
	ps.MerkleRoot = in.Sorted.Root().Hex()
	ps.OrderedRoot = in.Ordered.Root().Hex()

	for i, r := range in.Routes {
		for _, tree := range []*merkle.Tree{in.Sorted, in.Ordered} {
			p, err := tree.Proof(i)
			if err != nil {
				return nil, fmt.Errorf("proof for %s: %w", r.Signature, err)
			}
			entry := ProofEntry{
				Selector:   r.Selector.Hex(),
				Leaf:       tree.Leaf(i).Hex(),
				Convention: tree.Convention(),
				Siblings:   make([]string, len(p.Siblings)),
			}
			for j, s := range p.Siblings {
				entry.Siblings[j] = s.Hex()
			}
			if tree.Convention() == merkle.Ordered {
				bits := p.PositionBits()
				entry.Positions = &bits
			}
			ps.Proofs = append(ps.Proofs, entry)
		}
	}
	return ps, nil
}

// Encode renders v as indented JSON with a trailing newline.
func Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Files renders all three manifests keyed by file name.
func Files(in Input, s Settings, now time.Time) (map[string][]byte, error) {
	proofs, err := NewProofSet(in)
	if err != nil {
		return nil, err
	}
	docs := map[string]any{
		FacetsFile:     NewFacetManifest(in, s.Version),
		DeploymentFile: NewDeployment(in, s, now),
		ProofsFile:     proofs,
	}
	out := make(map[string][]byte, len(docs))
	for name, doc := range docs {
		b, err := Encode(doc)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", name, err)
		}
		out[name] = b
	}
	return out, nil
}
