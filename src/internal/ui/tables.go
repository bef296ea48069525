package ui

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/planner"
	"github.com/VectorBits/facetsplit/src/internal/validator"
	"github.com/olekukonko/tablewriter"
)

func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)
	return table
}

func FunctionTable(w io.Writer, m *model.ContractModel) {
	table := newTable(w, "Function", "Selector", "Kind", "Visibility", "Mutability", "Size", "Gas")
	for i := range m.Functions {
		f := &m.Functions[i]
		sig, sel := f.Name, "-"
		if f.Routable() {
			sig, sel = f.CanonicalSignature, f.Selector.Hex()
		}
		table.Append([]string{sig, sel, f.Kind, f.Visibility, f.Mutability,
			strconv.FormatUint(f.EstimatedCodeSize, 10), strconv.FormatUint(f.EstimatedGas, 10)})
	}
	table.SetFooter([]string{"Total", "", "", "", "", strconv.FormatUint(m.TotalSizeEstimate, 10), ""})
	table.Render()
}

func ChunkTable(w io.Writer, m *model.ContractModel, plan *planner.Plan) {
	table := newTable(w, "ID", "Facet", "Functions", "Size", "Gas", "Calls Into")
	var total uint64
	for _, c := range plan.Chunks {
		names := make([]string, 0, len(c.Members))
		for _, id := range c.Members {
			names = append(names, m.Function(id).Name)
		}
		name := c.Name
		if c.Oversize {
			name = Red + name + " (oversize)" + Reset
		}
		deps := "-"
		if len(c.CrossChunkDependencies) > 0 {
			deps = strings.Join(c.CrossChunkDependencies, ", ")
		}
		table.Append([]string{strconv.Itoa(c.ID), name, strings.Join(names, ", "),
			strconv.FormatUint(c.AggregateSize, 10), strconv.FormatUint(c.AggregateGas, 10), deps})
		total += c.AggregateSize
	}
	table.SetFooter([]string{"", fmt.Sprintf("%d chunks", len(plan.Chunks)), "", strconv.FormatUint(total, 10), "", ""})
	table.Render()
}

func RouteTable(w io.Writer, routes []model.Route) {
	table := newTable(w, "Selector", "Signature", "Facet", "Address")
	for _, r := range routes {
		table.Append([]string{r.Selector.Hex(), r.Signature, r.Facet, r.FacetAddress.Hex()})
	}
	table.Render()
}

func VariableTable(w io.Writer, vars []model.VariableDescriptor) {
	table := newTable(w, "Variable", "Type", "Slot", "Offset", "Bytes")
	for _, v := range vars {
		slot := strconv.FormatInt(v.Slot, 10)
		switch {
		case v.Constant:
			slot = "constant"
		case v.Immutable:
			slot = "immutable"
		}
		table.Append([]string{v.Name, v.CanonicalType, slot, strconv.Itoa(v.Offset), strconv.FormatUint(v.SizeBytes, 10)})
	}
	table.Render()
}

func FindingTable(w io.Writer, report *validator.Report) {
	table := newTable(w, "Severity", "Check", "Message")
	for _, f := range report.Errors {
		table.Append([]string{Red + string(f.Severity) + Reset, f.Check, f.Message})
	}
	for _, f := range report.Warnings {
		table.Append([]string{Yellow + string(f.Severity) + Reset, f.Check, f.Message})
	}
	table.Render()
}
