package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/VectorBits/facetsplit/src/internal/config"
	"github.com/VectorBits/facetsplit/src/internal/manifest"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tokenSource = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.20;

contract Token {
    address owner;
    bool paused;
    mapping(address => uint256) balances;

    constructor() { owner = msg.sender; }

    function transfer(address to, uint256 amount) external returns (bool) {
        require(!paused);
        balances[msg.sender] -= amount;
        balances[to] += amount;
        return true;
    }

    function balanceOf(address account) external view returns (uint256) {
        return balances[account];
    }

    function pause() external { paused = true; }

    function unpause() external { paused = false; }
}
`

const clashSource = `pragma solidity ^0.8.0;

contract Clash {
    function burn(uint256 amount) external {}
    function collate_propagate_storage(bytes16 x) external {}
}
`

// fixture writes the sources and a settings file that keeps solc out of the
// way, returning the settings path and the source paths by name.
func fixture(t *testing.T) (string, map[string]string) {
	t.Helper()
	dir := t.TempDir()
	settings := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(settings, []byte("analysis:\n  backend: noop\n  light: true\n"), 0o644))

	files := map[string]string{}
	for name, src := range map[string]string{"Token.sol": tokenSource, "Clash.sol": clashSource} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
		files[name] = path
	}
	return settings, files
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestAnalyze(t *testing.T) {
	settings, files := fixture(t)

	out, err := execute(t, "analyze", "-c", settings, files["Token.sol"])
	require.NoError(t, err)
	assert.Contains(t, out, "Token")
	assert.Contains(t, out, "transfer(address,uint256)")
	assert.Contains(t, out, "0xa9059cbb")
	assert.Contains(t, out, "source scan")
	assert.Contains(t, out, "balances")
	assert.NotContains(t, out, "Call tree")

	out, err = execute(t, "analyze", "-c", settings, "-v", files["Token.sol"])
	require.NoError(t, err)
	assert.Contains(t, out, "Call tree")

	out, err = execute(t, "analyze", "-c", settings, "--format", "json", files["Token.sol"])
	require.NoError(t, err)
	var m model.ContractModel
	require.NoError(t, json.Unmarshal([]byte(out), &m))
	assert.Equal(t, "Token", m.Name)
	assert.True(t, m.Scanned)
	assert.Len(t, m.Functions, 5)
}

func TestChunk(t *testing.T) {
	settings, files := fixture(t)

	out, err := execute(t, "chunk", "-c", settings, files["Token.sol"])
	require.NoError(t, err)
	assert.Contains(t, out, "Admin")
	assert.Contains(t, out, "pause, unpause")
	assert.Contains(t, out, "merkle root: 0x")

	out, err = execute(t, "chunk", "-c", settings, "-s", "sizegas", "-f", "json", files["Token.sol"])
	require.NoError(t, err)
	var decoded []struct {
		Contract   string `json:"contract"`
		MerkleRoot string `json:"merkleRoot"`
		Plan       struct {
			Strategy string `json:"strategy"`
			Chunks   []struct {
				Name string `json:"name"`
			} `json:"chunks"`
		} `json:"plan"`
		Routes []struct {
			Selector string `json:"selector"`
		} `json:"routes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	require.Len(t, decoded, 1)
	assert.Equal(t, "sizegas", decoded[0].Plan.Strategy)
	assert.Equal(t, "Facet1", decoded[0].Plan.Chunks[0].Name)
	assert.Len(t, decoded[0].Routes, 4)
	assert.Len(t, decoded[0].MerkleRoot, 66)
}

func TestChunkFindings(t *testing.T) {
	settings, files := fixture(t)

	out, err := execute(t, "chunk", "-c", settings, files["Token.sol"], files["Clash.sol"])
	require.ErrorIs(t, err, ErrFindings)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Contains(t, out, "selector-collision")
	assert.Contains(t, out, "Total: 2")

	_, err = execute(t, "chunk", "-c", settings, "--soft", files["Clash.sol"])
	assert.NoError(t, err, "soft mode downgrades collisions")
}

func TestChunkAnalysisFailure(t *testing.T) {
	settings, files := fixture(t)

	_, err := execute(t, "chunk", "-c", settings, "--contract-name", "Missing", files["Token.sol"])
	require.Error(t, err)
	var aerr *model.AnalysisError
	assert.ErrorAs(t, err, &aerr)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestManifest(t *testing.T) {
	settings, files := fixture(t)
	outDir := filepath.Join(t.TempDir(), "out")
	factory := "0x00000000000000000000000000000000000000f1"

	out, err := execute(t, "manifest", "-c", settings, "--network", "sepolia", "--factory", factory, "-o", outDir, files["Token.sol"])
	require.NoError(t, err)
	for _, name := range []string{manifest.DeploymentFile, manifest.FacetsFile, manifest.ProofsFile} {
		assert.Contains(t, out, filepath.Join(outDir, name))
		assert.FileExists(t, filepath.Join(outDir, name))
	}

	data, err := os.ReadFile(filepath.Join(outDir, manifest.DeploymentFile))
	require.NoError(t, err)
	var d struct {
		Metadata struct {
			Network string `json:"network"`
		} `json:"metadata"`
		Target struct {
			Factory string `json:"factory"`
		} `json:"target"`
		Routes []json.RawMessage `json:"routes"`
	}
	require.NoError(t, json.Unmarshal(data, &d))
	assert.Equal(t, "sepolia", d.Metadata.Network)
	assert.Equal(t, common.HexToAddress(factory).Hex(), d.Target.Factory)
	assert.Len(t, d.Routes, 4)
}

func TestManifestRefusesInvalidLayout(t *testing.T) {
	settings, files := fixture(t)
	outDir := filepath.Join(t.TempDir(), "out")

	_, err := execute(t, "manifest", "-c", settings, "-o", outDir, files["Clash.sol"])
	require.ErrorIs(t, err, ErrFindings)
	assert.NoDirExists(t, outDir)

	_, err = execute(t, "manifest", "-c", settings, "--soft", "-o", outDir, files["Clash.sol"])
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(outDir, manifest.DeploymentFile))
}

func TestReport(t *testing.T) {
	settings, files := fixture(t)

	out, err := execute(t, "report", "-c", settings, files["Token.sol"])
	require.NoError(t, err)
	assert.Contains(t, out, "# Facet Split Report")
	assert.Contains(t, out, "# Contract: Token")

	out, err = execute(t, "report", "-c", settings, "-f", "json", files["Token.sol"], files["Clash.sol"])
	require.ErrorIs(t, err, ErrFindings)
	var rep struct {
		Contracts []struct {
			Contract string `json:"contract"`
		} `json:"contracts"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Len(t, rep.Contracts, 2)

	dir := t.TempDir()
	out, err = execute(t, "report", "-c", settings, "-o", dir, files["Token.sol"])
	require.NoError(t, err)
	assert.Empty(t, out)
	matches, err := filepath.Glob(filepath.Join(dir, "facetsplit_Token_*.md"))
	require.NoError(t, err)
	assert.Len(t, matches, 1)

	target := filepath.Join(dir, "nested", "token.json")
	_, err = execute(t, "report", "-c", settings, "-f", "json", "-o", target, files["Token.sol"])
	require.NoError(t, err)
	assert.FileExists(t, target)
}

func TestUsageErrors(t *testing.T) {
	settings, files := fixture(t)
	missing := filepath.Join(t.TempDir(), "missing.sol")

	tests := []struct {
		name string
		args []string
	}{
		{"no files", []string{"analyze", "-c", settings}},
		{"missing file", []string{"chunk", "-c", settings, missing}},
		{"directory input", []string{"chunk", "-c", settings, filepath.Dir(missing)}},
		{"bad format", []string{"analyze", "-c", settings, "-f", "xml", files["Token.sol"]}},
		{"bad report format", []string{"report", "-c", settings, "-f", "html", files["Token.sol"]}},
		{"unknown flag", []string{"chunk", "--bogus", files["Token.sol"]}},
		{"unknown command", []string{"deploy", files["Token.sol"]}},
		{"bad strategy", []string{"chunk", "-c", settings, "-s", "random", files["Token.sol"]}},
		{"zero size ceiling", []string{"chunk", "-c", settings, "--max-size", "0", files["Token.sol"]}},
		{"bad factory", []string{"manifest", "-c", settings, "--factory", "0x12", files["Token.sol"]}},
		{"two manifest inputs", []string{"manifest", "-c", settings, files["Token.sol"], files["Clash.sol"]}},
		{"missing settings", []string{"analyze", "-c", missing + ".yaml", files["Token.sol"]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitUsage, ExitCode(err), err.Error())
		})
	}
}

func TestMergeConfigs(t *testing.T) {
	c := &CLIConfig{Strategy: "callgraph", MaxSize: 1000, Network: "sepolia", Soft: true}
	base := config.Default()
	base.Planner.GasLimit = 5

	merged := c.MergeConfigs(base, func(name string) bool {
		return name == "strategy" || name == "network"
	})
	assert.Equal(t, "callgraph", merged.Planner.Strategy)
	assert.Equal(t, "sepolia", merged.Manifest.Network)
	assert.Equal(t, uint64(24576), merged.Planner.MaxSize, "unchanged flags keep the settings value")
	assert.Equal(t, uint64(5), merged.Planner.GasLimit)
	assert.False(t, merged.Validation.Soft)
	assert.Equal(t, "domain", base.Planner.Strategy, "the loaded settings are not modified")

	merged = c.MergeConfigs(nil, func(string) bool { return false })
	assert.Equal(t, config.Default(), merged)
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "settings.yaml")

	out, err := execute(t, "init", "--path", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, config.ExampleSettings(), data)

	_, err = execute(t, "init", "--path", path)
	assert.Equal(t, ExitUsage, ExitCode(err))

	_, err = execute(t, "init", "--path", path, "--force")
	assert.NoError(t, err)
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitFailure, ExitCode(ErrFindings))
	assert.Equal(t, ExitUsage, ExitCode(usageErrorf("bad input")))
	assert.Equal(t, ExitUsage, ExitCode(errors.Join(errors.New("x"), &UsageError{Err: errors.New("y")})))
}

func TestInputList(t *testing.T) {
	settings, files := fixture(t)
	dir := filepath.Dir(files["Token.sol"])

	list := filepath.Join(dir, "sources.txt")
	require.NoError(t, os.WriteFile(list, []byte("# contracts\nToken.sol\n\n// skipped\nClash.sol, extra\nToken.sol\n"), 0o644))
	paths, err := readInputList(list)
	require.NoError(t, err)
	assert.Equal(t, []string{files["Token.sol"], files["Clash.sol"]}, paths)

	yamlList := filepath.Join(dir, "sources.yaml")
	require.NoError(t, os.WriteFile(yamlList, []byte("sources:\n  - Clash.sol\n  - "+files["Token.sol"]+"\n"), 0o644))
	paths, err = readInputList(yamlList)
	require.NoError(t, err)
	assert.Equal(t, []string{files["Clash.sol"], files["Token.sol"]}, paths)

	out, err := execute(t, "chunk", "-c", settings, "--soft", "--from", list)
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 2")

	_, err = execute(t, "manifest", "-c", settings, "--from", list, files["Token.sol"])
	assert.Equal(t, ExitUsage, ExitCode(err))
}
