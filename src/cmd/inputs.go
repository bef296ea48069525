package cmd

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// readInputList reads source paths from a list file. YAML files hold either a
// plain list or a `sources:` key. Other files give one path per line, taken
// from the first comma or space separated field; blank lines and #, //
// comments are skipped. Relative entries resolve against the list file's
// directory.
func readInputList(path string) ([]string, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(path)))
	var entries []string
	if ext == ".yaml" || ext == ".yml" {
		bs, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var list []string
		if err := yaml.Unmarshal(bs, &list); err != nil || len(list) == 0 {
			var wrapper struct {
				Sources []string `yaml:"sources"`
			}
			if err := yaml.Unmarshal(bs, &wrapper); err != nil {
				return nil, err
			}
			list = wrapper.Sources
		}
		entries = list
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			fields := strings.FieldsFunc(scanner.Text(), func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
			if len(fields) > 0 {
				entries = append(entries, fields[0])
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	base := filepath.Dir(path)
	out := normalizeUniqueNonEmpty(entries)
	for i, p := range out {
		if !filepath.IsAbs(p) {
			out[i] = filepath.Join(base, p)
		}
	}
	return out, nil
}

func normalizeUniqueNonEmpty(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it)
		if v == "" || strings.HasPrefix(v, "#") || strings.HasPrefix(v, "//") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// inputs returns the positional files followed by those listed in --from.
func (c *CLIConfig) inputs(args []string) ([]string, error) {
	paths := append([]string(nil), args...)
	if c.From != "" {
		listed, err := readInputList(c.From)
		if err != nil {
			return nil, usageErrorf("reading --from list: %w", err)
		}
		paths = append(paths, listed...)
	}
	if len(paths) == 0 {
		return nil, usageErrorf("no source files given")
	}
	return paths, nil
}

func (c *CLIConfig) requireFiles(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && c.From == "" {
		return usageErrorf("%s needs at least one source file", cmd.Name())
	}
	return nil
}
