package solc

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// StandardInputJSON is the solc standard-json input shape, also used for
// multi-file sources published by block explorers.
type StandardInputJSON struct {
	Language string                 `json:"language"`
	Sources  map[string]SourceFile  `json:"sources"`
	Settings map[string]interface{} `json:"settings,omitempty"`
}

type SourceFile struct {
	Content string `json:"content"`
}

// IsJSONSource reports whether source is a multi-file JSON bundle rather than Solidity text.
func IsJSONSource(source string) bool {
	trimmed := strings.TrimSpace(source)
	return strings.HasPrefix(trimmed, "{") && strings.Contains(trimmed, "\"content\"")
}

// ParseSources decodes either a standard-json input or a bare {"path": {"content": ...}} map.
func ParseSources(source string) (map[string]SourceFile, error) {
	normalized := normalizeJSONSource(source)

	var input StandardInputJSON
	if err := json.Unmarshal([]byte(normalized), &input); err == nil && len(input.Sources) > 0 {
		return input.Sources, nil
	}
	var direct map[string]SourceFile
	if err := json.Unmarshal([]byte(normalized), &direct); err != nil || len(direct) == 0 {
		return nil, fmt.Errorf("invalid multi-file JSON format")
	}
	return direct, nil
}

// FlattenJSONSource concatenates a multi-file bundle into one unit, in path order,
// with "// File:" headers. Import directives between bundled files are dropped,
// and the pragma and license lines are deduplicated.
// Non-JSON input is returned unchanged.
func FlattenJSONSource(source string) (string, error) {
	if !IsJSONSource(source) {
		return source, nil
	}
	sources, err := ParseSources(source)
	if err != nil {
		return "", err
	}

	paths := make([]string, 0, len(sources))
	for p := range sources {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var sb strings.Builder
	for _, p := range paths {
		content := strings.ReplaceAll(sources[p].Content, "\r\n", "\n")
		content = importRe.ReplaceAllString(content, "")
		sb.WriteString("// File: " + p + "\n")
		sb.WriteString(content)
		if !strings.HasSuffix(content, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	return cleanupPragmas(sb.String()), nil
}

var (
	importRe  = regexp.MustCompile(`(?m)^\s*import\s+[^;]+;[ \t]*\n?`)
	licenseRe = regexp.MustCompile(`(?m)^\s*//\s*SPDX-License-Identifier:[^\n]*\n?`)
)

func normalizeJSONSource(jsonStr string) string {
	trimmed := strings.TrimSpace(jsonStr)
	if strings.HasPrefix(trimmed, "{{") && strings.HasSuffix(trimmed, "}}") {
		return trimmed[1 : len(trimmed)-1]
	}
	return trimmed
}

// cleanupPragmas keeps a single pragma solidity line (the version picked by
// ExtractPragmaVersion) and a single SPDX line at the top.
func cleanupPragmas(source string) string {
	license := ""
	if m := licenseRe.FindString(source); m != "" {
		license = strings.TrimSpace(m)
	}
	version := ExtractPragmaVersion(source)

	cleaned := licenseRe.ReplaceAllString(source, "")
	if version != "" {
		cleaned = pragmaRe.ReplaceAllString(cleaned, "")
	}

	var sb strings.Builder
	if license != "" {
		sb.WriteString(license + "\n")
	}
	if version != "" {
		sb.WriteString(fmt.Sprintf("pragma solidity ^%s;\n", version))
	}
	sb.WriteString(cleaned)
	return sb.String()
}
