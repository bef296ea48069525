package renderers

import (
	"fmt"
	"strings"
)

type MarkdownRenderer struct{}

func NewMarkdownRenderer() *MarkdownRenderer {
	return &MarkdownRenderer{}
}

func (r *MarkdownRenderer) RenderFinding(severity, check, message string) string {
	return fmt.Sprintf("- %s **[%s]** `%s` %s\n", getSeverityIcon(severity), severity, check, message)
}

type ChunkRow struct {
	Name         string
	Functions    []string
	Size         uint64
	Gas          uint64
	Oversize     bool
	Dependencies []string
}

func (r *MarkdownRenderer) RenderChunks(rows []ChunkRow) string {
	if len(rows) == 0 {
		return "No routable functions.\n\n"
	}
	var b strings.Builder
	b.WriteString("| Facet | Functions | Size | Gas | Calls Into |\n|---|---|---|---|---|\n")
	for _, row := range rows {
		name := row.Name
		if row.Oversize {
			name += " " + getSeverityIcon("error") + " oversize"
		}
		deps := "-"
		if len(row.Dependencies) > 0 {
			deps = strings.Join(row.Dependencies, ", ")
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %d | %s |\n", name, strings.Join(row.Functions, ", "), row.Size, row.Gas, deps)
	}
	b.WriteString("\n")
	return b.String()
}

func getSeverityIcon(severity string) string {
	switch severity {
	case "error":
		return "🔴"
	case "warning":
		return "🟡"
	default:
		return "⚪"
	}
}
