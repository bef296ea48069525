package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/report/renderers"
)

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

type Generator interface {
	Generate(report *Report) (string, error)
}

// NewGenerator returns the generator for format; empty means markdown.
func NewGenerator(format string) (Generator, error) {
	switch Format(strings.ToLower(strings.TrimSpace(format))) {
	case FormatMarkdown, "md", "":
		return NewMarkdownGenerator(), nil
	case FormatJSON:
		return NewJSONGenerator(), nil
	}
	return nil, fmt.Errorf("unsupported report format %q (supported: markdown, json)", format)
}

type JSONGenerator struct{}

func NewJSONGenerator() *JSONGenerator {
	return &JSONGenerator{}
}

func (g *JSONGenerator) Generate(report *Report) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return "", fmt.Errorf("failed to encode report: %w", err)
	}
	return buf.String(), nil
}

type MarkdownGenerator struct {
	renderer *renderers.MarkdownRenderer
}

func NewMarkdownGenerator() *MarkdownGenerator {
	return &MarkdownGenerator{renderer: renderers.NewMarkdownRenderer()}
}

func (g *MarkdownGenerator) Generate(report *Report) (string, error) {
	var b strings.Builder

	b.WriteString("# Facet Split Report\n\n")
	fmt.Fprintf(&b, "**Strategy**: %s\n", report.Strategy)
	fmt.Fprintf(&b, "**Size Ceiling**: %d bytes\n", report.MaxSize)
	fmt.Fprintf(&b, "**Generated**: %s\n\n", report.GeneratedAt.Format("2006-01-02 15:04:05"))

	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "- **Contracts**: %d\n", len(report.Contracts))
	fmt.Fprintf(&b, "- **Valid**: %d\n", report.ValidContracts())
	fmt.Fprintf(&b, "- **Errors**: %d\n", report.ErrorCount())
	fmt.Fprintf(&b, "- **Warnings**: %d\n\n", report.WarningCount())

	for i, c := range report.Contracts {
		fmt.Fprintf(&b, "# Contract: %s\n\n", c.Contract)
		if c.File != "" {
			fmt.Fprintf(&b, "**File**: `%s`\n", c.File)
		}
		fmt.Fprintf(&b, "**Analysis**: %s\n", c.analysisMode())
		fmt.Fprintf(&b, "**Functions**: %d (%d routable)\n", c.Functions, c.Routable)
		fmt.Fprintf(&b, "**Estimated Size**: %d bytes\n", c.TotalSizeEstimate)
		fmt.Fprintf(&b, "**Merkle Root**: `%s`\n", c.MerkleRoot)
		fmt.Fprintf(&b, "**Ordered Root**: `%s`\n\n", c.OrderedRoot)

		b.WriteString("## Chunks\n\n")
		rows := make([]renderers.ChunkRow, 0, len(c.Chunks))
		for _, ch := range c.Chunks {
			rows = append(rows, renderers.ChunkRow{
				Name:         ch.Name,
				Functions:    ch.Functions,
				Size:         ch.Size,
				Gas:          ch.Gas,
				Oversize:     ch.Oversize,
				Dependencies: ch.CrossChunkDependencies,
			})
		}
		b.WriteString(g.renderer.RenderChunks(rows))

		fmt.Fprintf(&b, "- **Cross-chunk edges**: %d (score %.2f)\n", c.Metrics.CrossChunkEdges, c.Metrics.CrossChunkScore)
		fmt.Fprintf(&b, "- **Size efficiency**: %.1f%%\n\n", c.Metrics.SizeEfficiency*100)
		if len(c.Metrics.Recommendations) > 0 {
			b.WriteString("### Recommendations\n\n")
			for _, r := range c.Metrics.Recommendations {
				fmt.Fprintf(&b, "- %s\n", r)
			}
			b.WriteString("\n")
		}

		if len(c.Routes) > 0 {
			b.WriteString("## Routes\n\n")
			b.WriteString("| Selector | Signature | Facet |\n|---|---|---|\n")
			for _, r := range c.Routes {
				fmt.Fprintf(&b, "| `%s` | `%s` | %s |\n", r.Selector, r.Signature, r.Facet)
			}
			b.WriteString("\n")
		}

		if len(c.Variables) > 0 {
			b.WriteString("## Storage Layout\n\n")
			b.WriteString("| Variable | Type | Slot | Offset |\n|---|---|---|---|\n")
			for _, v := range c.Variables {
				slot := fmt.Sprintf("%d", v.Slot)
				if v.Slot < 0 {
					slot = "-"
				}
				fmt.Fprintf(&b, "| %s | `%s` | %s | %d |\n", v.Name, v.Type, slot, v.Offset)
			}
			b.WriteString("\n")
		}

		b.WriteString("## Validation\n\n")
		if len(c.Errors) == 0 && len(c.Warnings) == 0 {
			b.WriteString("No findings.\n\n")
		}
		for _, f := range c.Errors {
			b.WriteString(g.renderer.RenderFinding(string(f.Severity), f.Check, f.Message))
		}
		for _, f := range c.Warnings {
			b.WriteString(g.renderer.RenderFinding(string(f.Severity), f.Check, f.Message))
		}

		if i < len(report.Contracts)-1 {
			b.WriteString("---\n\n")
		}
	}

	if len(report.Failures) > 0 {
		b.WriteString("## Failures\n\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "- `%s`: %s\n", f.File, f.Error)
		}
		b.WriteString("\n")
	}

	return b.String(), nil
}
