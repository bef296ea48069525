package report

import (
	"fmt"
	"time"

	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/pipeline"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/VectorBits/facetsplit/src/internal/validator"
	"github.com/ethereum/go-ethereum/common"
)

type Report struct {
	Strategy    string           `json:"strategy"`
	MaxSize     uint64           `json:"maxSize"`
	GeneratedAt time.Time        `json:"generatedAt"`
	Contracts   []ContractReport `json:"contracts"`
	Failures    []Failure        `json:"failures,omitempty"`
}

type ContractReport struct {
	File              string              `json:"file,omitempty"`
	Contract          string              `json:"contract"`
	Compiled          bool                `json:"compiled"`
	CompilerVersion   string              `json:"compilerVersion,omitempty"`
	Scanned           bool                `json:"scanned"`
	Functions         int                 `json:"functions"`
	Routable          int                 `json:"routable"`
	TotalSizeEstimate uint64              `json:"totalSizeEstimate"`
	Chunks            []ChunkSummary      `json:"chunks"`
	Metrics           planner.Metrics     `json:"metrics"`
	MerkleRoot        string              `json:"merkleRoot"`
	OrderedRoot       string              `json:"orderedRoot"`
	Routes            []RouteSummary      `json:"routes"`
	Variables         []VariableSummary   `json:"variables"`
	Errors            []validator.Finding `json:"errors"`
	Warnings          []validator.Finding `json:"warnings"`
}

type ChunkSummary struct {
	ID                     int      `json:"id"`
	Name                   string   `json:"name"`
	Domain                 string   `json:"domain,omitempty"`
	Functions              []string `json:"functions"`
	Size                   uint64   `json:"size"`
	Gas                    uint64   `json:"gas"`
	Oversize               bool     `json:"oversize,omitempty"`
	CrossChunkDependencies []string `json:"crossChunkDependencies"`
}

type RouteSummary struct {
	Selector  string `json:"selector"`
	Signature string `json:"signature"`
	Facet     string `json:"facet"`
}

type VariableSummary struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Slot   int64  `json:"slot"`
	Offset int    `json:"offset"`
}

// Failure records a file whose analysis aborted.
type Failure struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

type Reporter struct {
	generator Generator
	storage   Storage
}

func NewReporter(generator Generator, storage Storage) *Reporter {
	return &Reporter{
		generator: generator,
		storage:   storage,
	}
}

// GenerateAndSave renders report and stores it under name.
func (r *Reporter) GenerateAndSave(report *Report, name string) (string, error) {
	content, err := r.generator.Generate(report)
	if err != nil {
		return "", fmt.Errorf("failed to generate report: %w", err)
	}

	path, err := r.storage.Save(name, content)
	if err != nil {
		return "", fmt.Errorf("failed to save report: %w", err)
	}

	return path, nil
}

func NewReport(strategy string, maxSize uint64, now time.Time) *Report {
	return &Report{
		Strategy:    strategy,
		MaxSize:     maxSize,
		GeneratedAt: now,
		Contracts:   make([]ContractReport, 0),
	}
}

func (r *Report) AddFailure(file string, err error) {
	r.Failures = append(r.Failures, Failure{File: file, Error: err.Error()})
}

func (r *Report) AddResult(res *pipeline.Result) {
	m := res.Model
	c := ContractReport{
		File:              res.File,
		Contract:          m.Name,
		Compiled:          m.Compiled,
		CompilerVersion:   m.CompilerVersion,
		Scanned:           m.Scanned,
		Functions:         len(m.Functions),
		Routable:          len(m.Routable()),
		TotalSizeEstimate: m.TotalSizeEstimate,
		Chunks:            make([]ChunkSummary, 0, len(res.Plan.Chunks)),
		Metrics:           res.Plan.Metrics,
		MerkleRoot:        res.MerkleRoot().Hex(),
		OrderedRoot:       common.Hash{}.Hex(),
		Routes:            make([]RouteSummary, 0, len(res.Routes)),
		Variables:         make([]VariableSummary, 0, len(m.Variables)),
		Errors:            res.Validation.Errors,
		Warnings:          res.Validation.Warnings,
	}
	if res.Ordered != nil {
		c.OrderedRoot = res.Ordered.Root().Hex()
	}
	for _, ch := range res.Plan.Chunks {
		c.Chunks = append(c.Chunks, ChunkSummary{
			ID:                     ch.ID,
			Name:                   ch.Name,
			Domain:                 ch.Domain,
			Functions:              functionNames(m, ch.Members),
			Size:                   ch.AggregateSize,
			Gas:                    ch.AggregateGas,
			Oversize:               ch.Oversize,
			CrossChunkDependencies: ch.CrossChunkDependencies,
		})
	}
	for _, rt := range res.Routes {
		c.Routes = append(c.Routes, RouteSummary{Selector: rt.Selector.Hex(), Signature: rt.Signature, Facet: rt.Facet})
	}
	for _, v := range m.Variables {
		c.Variables = append(c.Variables, VariableSummary{Name: v.Name, Type: v.CanonicalType, Slot: v.Slot, Offset: v.Offset})
	}
	r.Contracts = append(r.Contracts, c)
}

func functionNames(m *model.ContractModel, ids []model.FunctionID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.Function(id).Name)
	}
	return out
}

func (r *Report) ValidContracts() int {
	n := 0
	for _, c := range r.Contracts {
		if len(c.Errors) == 0 {
			n++
		}
	}
	return n
}

func (r *Report) ErrorCount() int {
	n := len(r.Failures)
	for _, c := range r.Contracts {
		n += len(c.Errors)
	}
	return n
}

func (r *Report) WarningCount() int {
	n := 0
	for _, c := range r.Contracts {
		n += len(c.Warnings)
	}
	return n
}

// HasErrors is true when any contract failed or has error findings.
func (r *Report) HasErrors() bool {
	return r.ErrorCount() > 0
}

func (c ContractReport) analysisMode() string {
	switch {
	case c.Compiled && c.CompilerVersion != "":
		return "compiled with solc " + c.CompilerVersion
	case c.Compiled:
		return "compiled"
	case c.Scanned:
		return "source scan"
	}
	return "AST"
}
