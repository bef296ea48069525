package solc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"
)

//go:generate mockgen -destination=../../mocks/mock_compiler.go -package=mocks github.com/VectorBits/facetsplit/src/internal/solc Compiler

// Compiler is the narrow synchronous interface to the external toolchain.
type Compiler interface {
	Compile(ctx context.Context, source, contractName string) (*Output, error)
}

// ErrCompilerDisabled is returned by the no-op backend.
var ErrCompilerDisabled = errors.New("compiler disabled")

const DefaultTimeout = 60 * time.Second

type Diagnostic struct {
	Severity string `json:"severity"`
	Type     string `json:"type"`
	Message  string `json:"message"`
	// Formatted carries the location-annotated message when solc provides one.
	Formatted string `json:"formattedMessage,omitempty"`
}

func (d Diagnostic) String() string {
	if d.Formatted != "" {
		return strings.TrimSpace(d.Formatted)
	}
	return fmt.Sprintf("%s: %s", d.Type, d.Message)
}

// StorageSlot is one entry of solc's storageLayout.storage.
type StorageSlot struct {
	Label  string `json:"label"`
	Type   string `json:"type"`
	Slot   int64  `json:"slot"`
	Offset int    `json:"offset"`
}

type Output struct {
	ContractName     string
	Version          string
	DeployedBytecode []byte
	StorageLayout    []StorageSlot
	// GasEstimates is keyed by solc-form signature. Entries solc reports as
	// "infinite" are left out.
	GasEstimates      map[string]uint64
	MethodIdentifiers map[string]string
	Diagnostics       []Diagnostic
}

// CompilationError wraps a toolchain failure with the raw diagnostic list.
type CompilationError struct {
	Diagnostics []Diagnostic
	Err         error
}

func (e *CompilationError) Error() string {
	var msgs []string
	for _, d := range e.Diagnostics {
		if d.Severity == "error" {
			msgs = append(msgs, d.String())
		}
	}
	switch {
	case e.Err != nil && len(msgs) > 0:
		return fmt.Sprintf("compilation failed: %v: %s", e.Err, strings.Join(msgs, "; "))
	case e.Err != nil:
		return fmt.Sprintf("compilation failed: %v", e.Err)
	default:
		return "compilation failed: " + strings.Join(msgs, "; ")
	}
}

func (e *CompilationError) Unwrap() error {
	return e.Err
}

type BackendType string

const (
	BackendSolc BackendType = "solc"
	BackendNoOp BackendType = "noop"
)

type CompilerConfig struct {
	Backend BackendType
	// SolcPath overrides version resolution when set.
	SolcPath string
	Timeout  time.Duration
	Enabled  bool
}

// NewCompiler creates a compiler backend from cfg.
func NewCompiler(cfg CompilerConfig, manager *Manager) (Compiler, error) {
	if !cfg.Enabled {
		return NoOpCompiler{}, nil
	}
	switch cfg.Backend {
	case BackendSolc, "":
		if manager == nil {
			manager = NewManager(cfg.SolcPath)
		}
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		return &SolcCompiler{manager: manager, solcPath: cfg.SolcPath, timeout: timeout}, nil
	case BackendNoOp:
		return NoOpCompiler{}, nil
	default:
		return nil, fmt.Errorf("unsupported compiler backend: %s (supported: solc, noop)", cfg.Backend)
	}
}

type NoOpCompiler struct{}

func (NoOpCompiler) Compile(context.Context, string, string) (*Output, error) {
	return nil, ErrCompilerDisabled
}

// SolcCompiler runs `solc --standard-json` with a timeout, source on stdin.
type SolcCompiler struct {
	manager  *Manager
	solcPath string
	timeout  time.Duration
}

const sourceKey = "Contract.sol"

type standardOutput struct {
	Errors    []Diagnostic                                    `json:"errors"`
	Contracts map[string]map[string]standardContractArtifact `json:"contracts"`
}

type standardContractArtifact struct {
	EVM struct {
		DeployedBytecode struct {
			Object string `json:"object"`
		} `json:"deployedBytecode"`
		GasEstimates struct {
			External map[string]string `json:"external"`
		} `json:"gasEstimates"`
		MethodIdentifiers map[string]string `json:"methodIdentifiers"`
	} `json:"evm"`
	StorageLayout struct {
		Storage []struct {
			Label  string `json:"label"`
			Slot   string `json:"slot"`
			Offset int    `json:"offset"`
			Type   string `json:"type"`
		} `json:"storage"`
	} `json:"storageLayout"`
}

func (c *SolcCompiler) Compile(ctx context.Context, source, contractName string) (*Output, error) {
	source, err := FlattenJSONSource(source)
	if err != nil {
		return nil, &CompilationError{Err: err}
	}

	version := ExtractPragmaVersion(source)
	solcPath := c.solcPath
	if solcPath == "" {
		solcPath, err = c.manager.GetSolcPath(version)
		if err != nil {
			return nil, &CompilationError{Err: err}
		}
	}

	input := StandardInputJSON{
		Language: "Solidity",
		Sources:  map[string]SourceFile{sourceKey: {Content: source}},
		Settings: map[string]interface{}{
			"optimizer": map[string]interface{}{"enabled": true, "runs": 200},
			"outputSelection": map[string]interface{}{
				"*": map[string]interface{}{
					"*": []string{"evm.deployedBytecode.object", "evm.gasEstimates", "evm.methodIdentifiers", "storageLayout"},
				},
			},
		},
	}
	inputJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("marshal input failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, solcPath, "--standard-json")
	cmd.Stdin = bytes.NewReader(inputJSON)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &CompilationError{Err: fmt.Errorf("solc timed out after %s: %w", c.timeout, ctxErr)}
		}
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		if len(errMsg) > 4096 {
			errMsg = errMsg[:4096] + "...(truncated)"
		}
		return nil, &CompilationError{Err: fmt.Errorf("solc execution failed: %w, stderr: %s", err, errMsg)}
	}

	out, err := decodeStandardOutput(stdout.Bytes(), contractName)
	if err != nil {
		return nil, err
	}
	out.Version = version
	return out, nil
}

func decodeStandardOutput(data []byte, contractName string) (*Output, error) {
	var raw standardOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &CompilationError{Err: fmt.Errorf("decode solc output: %w", err)}
	}
	for _, d := range raw.Errors {
		if d.Severity == "error" {
			return nil, &CompilationError{Diagnostics: raw.Errors}
		}
	}

	contracts := raw.Contracts[sourceKey]
	if contractName == "" {
		if len(contracts) != 1 {
			names := make([]string, 0, len(contracts))
			for n := range contracts {
				names = append(names, n)
			}
			sort.Strings(names)
			return nil, &CompilationError{Diagnostics: raw.Errors, Err: fmt.Errorf("contract name required, candidates: %v", names)}
		}
		for n := range contracts {
			contractName = n
		}
	}
	artifact, ok := contracts[contractName]
	if !ok {
		return nil, &CompilationError{Diagnostics: raw.Errors, Err: fmt.Errorf("contract %s not in compiler output", contractName)}
	}

	bytecode, err := hex.DecodeString(strings.TrimPrefix(artifact.EVM.DeployedBytecode.Object, "0x"))
	if err != nil {
		// unlinked libraries leave __$...$__ placeholders in the object
		bytecode = nil
	}

	out := &Output{
		ContractName:      contractName,
		DeployedBytecode:  bytecode,
		GasEstimates:      make(map[string]uint64),
		MethodIdentifiers: artifact.EVM.MethodIdentifiers,
		Diagnostics:       raw.Errors,
	}
	for sig, gas := range artifact.EVM.GasEstimates.External {
		if n, err := strconv.ParseUint(gas, 10, 64); err == nil {
			out.GasEstimates[sig] = n
		}
	}
	for _, s := range artifact.StorageLayout.Storage {
		slot, err := strconv.ParseInt(s.Slot, 10, 64)
		if err != nil {
			return nil, &CompilationError{Err: fmt.Errorf("storage slot %q for %s: %w", s.Slot, s.Label, err)}
		}
		out.StorageLayout = append(out.StorageLayout, StorageSlot{Label: s.Label, Type: s.Type, Slot: slot, Offset: s.Offset})
	}
	return out, nil
}
