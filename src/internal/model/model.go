package model

import (
	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/ethereum/go-ethereum/common"
)

// FunctionID indexes ContractModel.Functions. IDs are assigned in declaration
// order at extraction time and never reused within one model.
type FunctionID int

const (
	KindFunction    = "function"
	KindConstructor = "constructor"
	KindFallback    = "fallback"
	KindReceive     = "receive"
)

const (
	MutabilityPure       = "pure"
	MutabilityView       = "view"
	MutabilityNonPayable = "nonpayable"
	MutabilityPayable    = "payable"
)

type Param struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type"`
}

// SourceSpan is a byte range into the analysed source.
type SourceSpan struct {
	Offset int `json:"offset"`
	Length int `json:"length"`
}

type FunctionDescriptor struct {
	ID                 FunctionID   `json:"id"`
	Name               string       `json:"name"`
	Kind               string       `json:"kind"`
	CanonicalSignature string       `json:"signature"`
	Selector           abi.Selector `json:"selector"`
	Visibility         string       `json:"visibility"`
	Mutability         string       `json:"mutability"`
	Parameters         []Param      `json:"parameters"`
	Returns            []Param      `json:"returns"`
	Modifiers          []string     `json:"modifiers"`
	// Getter marks the accessor generated for a public state variable.
	Getter bool `json:"getter,omitempty"`
	// Dependencies are callee names found in the body, sorted and unique.
	Dependencies      []string   `json:"dependencies"`
	EstimatedCodeSize uint64     `json:"estimatedCodeSize"`
	EstimatedGas      uint64     `json:"estimatedGas"`
	SourceSpan        SourceSpan `json:"sourceSpan"`
}

// Routable reports whether calls to f go through the dispatcher: a regular
// public or external function. Constructors, fallbacks and receive handlers
// carry the sentinel selector and are never routed.
func (f *FunctionDescriptor) Routable() bool {
	return f.Kind == KindFunction && (f.Visibility == "public" || f.Visibility == "external")
}

// NoSlot marks variables that live in bytecode rather than storage.
const NoSlot = -1

type VariableDescriptor struct {
	Name          string `json:"name"`
	CanonicalType string `json:"type"`
	Visibility    string `json:"visibility"`
	Constant      bool   `json:"constant"`
	Immutable     bool   `json:"immutable"`
	Slot          int64  `json:"slot"`
	Offset        int    `json:"offset"`
	SizeBytes     uint64 `json:"sizeBytes"`
}

// InStorage is false for constants and immutables.
func (v *VariableDescriptor) InStorage() bool {
	return !v.Constant && !v.Immutable && v.Slot != NoSlot
}

type EventDescriptor struct {
	Name      string      `json:"name"`
	Signature string      `json:"signature"`
	Topic     common.Hash `json:"topic"`
}

type ModifierDescriptor struct {
	Name       string  `json:"name"`
	Parameters []Param `json:"parameters"`
}

// ContractModel is the typed result of extraction. It is not modified after
// Extract returns.
type ContractModel struct {
	Name              string               `json:"name"`
	Functions         []FunctionDescriptor `json:"functions"`
	Variables         []VariableDescriptor `json:"variables"`
	Events            []EventDescriptor    `json:"events"`
	Modifiers         []ModifierDescriptor `json:"modifiers"`
	Imports           []string             `json:"imports"`
	Inheritance       []string             `json:"inheritance"`
	TotalSizeEstimate uint64               `json:"totalSizeEstimate"`

	// Compiled is set when compiler output replaced the heuristics.
	Compiled        bool   `json:"compiled"`
	CompilerVersion string `json:"compilerVersion,omitempty"`
	// Scanned is set when the source was read by the fallback scanner.
	Scanned bool `json:"scanned"`
}

// Function returns the descriptor for id, or nil when id is out of range.
func (m *ContractModel) Function(id FunctionID) *FunctionDescriptor {
	if id < 0 || int(id) >= len(m.Functions) {
		return nil
	}
	return &m.Functions[id]
}

// Routable returns the IDs of routable functions in declaration order.
func (m *ContractModel) Routable() []FunctionID {
	var out []FunctionID
	for i := range m.Functions {
		if m.Functions[i].Routable() {
			out = append(out, m.Functions[i].ID)
		}
	}
	return out
}

// ByName groups function IDs by name; overloads share an entry.
func (m *ContractModel) ByName() map[string][]FunctionID {
	out := make(map[string][]FunctionID, len(m.Functions))
	for i := range m.Functions {
		f := &m.Functions[i]
		out[f.Name] = append(out[f.Name], f.ID)
	}
	return out
}

// Route says where calls for one selector are dispatched.
type Route struct {
	Selector     abi.Selector   `json:"selector"`
	Facet        string         `json:"facet"`
	FacetAddress common.Address `json:"facetAddress"`
	Codehash     common.Hash    `json:"codehash"`
	Signature    string         `json:"signature"`
	FunctionName string         `json:"functionName"`
	ChunkID      int            `json:"chunkId"`
}
