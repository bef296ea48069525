package astparser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/VectorBits/facetsplit/src/internal/solc"
)

// ErrNoAST is returned when the input holds no decodable SourceUnit.
var ErrNoAST = errors.New("no source unit in AST output")

// Parser turns source text into a typed syntax tree.
type Parser interface {
	Parse(ctx context.Context, source string) (*ParsedSource, error)
}

// SolcParser runs `solc --ast-compact-json`, picking the binary from the pragma.
type SolcParser struct {
	Manager *solc.Manager
	// SolcPath skips version resolution when set.
	SolcPath string
	Timeout  time.Duration
}

func NewSolcParser(manager *solc.Manager, solcPath string, timeout time.Duration) *SolcParser {
	if timeout <= 0 {
		timeout = solc.DefaultTimeout
	}
	return &SolcParser{Manager: manager, SolcPath: solcPath, Timeout: timeout}
}

func (p *SolcParser) Parse(ctx context.Context, source string) (*ParsedSource, error) {
	source, err := solc.FlattenJSONSource(source)
	if err != nil {
		return nil, fmt.Errorf("flatten multi-file source: %w", err)
	}

	solcPath := p.SolcPath
	if solcPath == "" {
		manager := p.Manager
		if manager == nil {
			manager = solc.NewManager("")
		}
		solcPath, err = manager.GetSolcPath(solc.ExtractPragmaVersion(source))
		if err != nil {
			return nil, err
		}
	}

	tmpFile, err := os.CreateTemp("", "facetsplit_*.sol")
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmpFile.Name())
	if _, err := tmpFile.WriteString(source); err != nil {
		tmpFile.Close()
		return nil, err
	}
	tmpFile.Close()

	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, solcPath, "--ast-compact-json", tmpFile.Name())
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("solc timed out after %s: %w", p.Timeout, ctx.Err())
		}
		return nil, fmt.Errorf("solc execution failed: %w, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}

	return ParseAST(stdout.Bytes(), source)
}

// JSONParser accepts input that already is a compact AST, e.g. a saved
// `solc --ast-compact-json` output. SourceCode, when set, backs GetSourceRange.
type JSONParser struct {
	SourceCode string
}

func (p JSONParser) Parse(_ context.Context, input string) (*ParsedSource, error) {
	return ParseAST([]byte(input), p.SourceCode)
}

// LooksLikeAST reports whether data is a compact AST rather than Solidity or a
// standard-json bundle.
func LooksLikeAST(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return bytes.Contains(trimmed, []byte(`"nodeType"`)) && bytes.Contains(trimmed, []byte(`"SourceUnit"`))
}

// ParseAST decodes compact-AST output. Banner lines printed by solc before the
// JSON are skipped.
func ParseAST(output []byte, sourceCode string) (*ParsedSource, error) {
	jsonStart := bytes.IndexByte(output, '{')
	if jsonStart == -1 {
		return nil, ErrNoAST
	}

	var unit Node
	dec := json.NewDecoder(bytes.NewReader(output[jsonStart:]))
	if err := dec.Decode(&unit); err != nil {
		return nil, fmt.Errorf("decode AST JSON: %w", err)
	}
	if unit.NodeType != SourceUnit {
		return nil, fmt.Errorf("%w: top-level node is %q", ErrNoAST, unit.NodeType)
	}
	return newParsedSource(&unit, sourceCode), nil
}
