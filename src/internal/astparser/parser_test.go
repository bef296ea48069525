package astparser_test

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/VectorBits/facetsplit/src/internal/astparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) (string, []byte) {
	t.Helper()
	src, err := os.ReadFile("testdata/token.sol")
	require.NoError(t, err)
	ast, err := os.ReadFile("testdata/token.ast.json")
	require.NoError(t, err)
	return string(src), ast
}

func functionsByName(contract *astparser.Node) map[string]*astparser.Node {
	out := make(map[string]*astparser.Node)
	for _, n := range contract.Nodes {
		if n.NodeType == astparser.FunctionDefinition {
			out[n.Name] = n
		}
	}
	return out
}

func signatures(t *testing.T, ps *astparser.ParsedSource) map[string]string {
	t.Helper()
	contract := ps.FindContract("Token")
	require.NotNil(t, contract)
	out := make(map[string]string)
	for name, fn := range functionsByName(contract) {
		params, err := ps.ParamTypes(fn.Parameters)
		require.NoError(t, err, name)
		sig, err := abi.Signature(name, params)
		require.NoError(t, err, name)
		out[name] = sig
	}
	return out
}

func TestParseAST(t *testing.T) {
	src, ast := loadFixture(t)
	ps, err := astparser.JSONParser{SourceCode: src}.Parse(context.Background(), string(ast))
	require.NoError(t, err)

	contract := ps.FindContract("")
	require.NotNil(t, contract)
	assert.Equal(t, "Token", contract.Name)
	assert.Equal(t, []string{"IERC20"}, astparser.BaseNames(contract))
	assert.Equal(t, []string{"./IERC20.sol"}, ps.Imports())
	assert.Nil(t, ps.FindContract("Missing"))

	fns := functionsByName(contract)
	require.Contains(t, fns, "transfer")
	assert.True(t, strings.HasPrefix(ps.GetSourceRange(fns["transfer"].Src), "function transfer(address to"))
	assert.Len(t, astparser.ParamList(fns["transfer"].ReturnParameters), 1)

	for _, n := range contract.Nodes {
		if n.NodeType == astparser.VariableDeclaration && n.Name == "SIZE" {
			require.NotNil(t, n.Initializer)
			assert.Equal(t, "3", n.Initializer.Value)
		}
	}

	assert.Equal(t, map[string]string{
		"transfer": "transfer(address,uint256)",
		"submit":   "submit(tuple(address,uint256),uint256[3])",
		"_check":   "_check(uint256)",
	}, signatures(t, ps))
}

func TestParseASTRejectsGarbage(t *testing.T) {
	_, err := astparser.ParseAST([]byte("Error: something"), "")
	require.ErrorIs(t, err, astparser.ErrNoAST)

	_, err = astparser.ParseAST([]byte(`{"nodeType":"ContractDefinition","id":1}`), "")
	require.ErrorIs(t, err, astparser.ErrNoAST)

	_, err = astparser.ParseAST([]byte(`{"nodeType":`), "")
	require.Error(t, err)
}

func TestLooksLikeAST(t *testing.T) {
	_, ast := loadFixture(t)
	idx := strings.IndexByte(string(ast), '{')
	assert.True(t, astparser.LooksLikeAST(ast[idx:]))
	assert.False(t, astparser.LooksLikeAST([]byte("pragma solidity ^0.8.0;")))
	assert.False(t, astparser.LooksLikeAST([]byte(`{"sources":{"a.sol":{"content":""}}}`)))
}

func TestScanMatchesCompilerSignatures(t *testing.T) {
	src, ast := loadFixture(t)
	parsed, err := astparser.ParseAST(ast, src)
	require.NoError(t, err)
	scanned, err := astparser.ScanSource(src)
	require.NoError(t, err)

	assert.Equal(t, signatures(t, parsed), signatures(t, scanned))
	assert.Equal(t, parsed.Imports(), scanned.Imports())
	assert.Equal(t, astparser.BaseNames(parsed.FindContract("")), astparser.BaseNames(scanned.FindContract("")))

	parsedFns := functionsByName(parsed.FindContract("Token"))
	scannedFns := functionsByName(scanned.FindContract("Token"))
	for name := range parsedFns {
		assert.Equal(t, astparser.Callees(parsedFns[name]), astparser.Callees(scannedFns[name]), name)
		assert.Equal(t, parsed.GetSourceRange(parsedFns[name].Src), scanned.GetSourceRange(scannedFns[name].Src), name)
	}
}

func TestCallees(t *testing.T) {
	src, ast := loadFixture(t)
	ps, err := astparser.ParseAST(ast, src)
	require.NoError(t, err)
	fns := functionsByName(ps.FindContract("Token"))

	assert.Empty(t, astparser.Callees(fns["transfer"]), "emit and builtins are not calls")
	assert.Equal(t, []string{"_check"}, astparser.Callees(fns["submit"]))
	assert.Empty(t, astparser.Callees(fns["_check"]))
	assert.Nil(t, astparser.Callees(nil))
}

func TestWalk(t *testing.T) {
	src, ast := loadFixture(t)
	ps, err := astparser.ParseAST(ast, src)
	require.NoError(t, err)

	var kinds []astparser.NodeType
	astparser.Walk(ps.Unit, func(n *astparser.Node) bool {
		kinds = append(kinds, n.NodeType)
		return n.NodeType != astparser.FunctionDefinition
	})
	assert.Equal(t, astparser.SourceUnit, kinds[0])
	assert.NotContains(t, kinds, astparser.Block, "function bodies were skipped")
	assert.Contains(t, kinds, astparser.StructDefinition)

	// a deep chain must not need a deep call stack
	root := &astparser.Node{NodeType: astparser.Block}
	cur := root
	for i := 0; i < 100000; i++ {
		next := &astparser.Node{NodeType: astparser.Block}
		cur.Statements = []*astparser.Node{next}
		cur = next
	}
	count := 0
	astparser.Walk(root, func(*astparser.Node) bool {
		count++
		return true
	})
	assert.Equal(t, 100001, count)
}

func TestSpan(t *testing.T) {
	off, length, ok := astparser.Span("12:34:0")
	assert.True(t, ok)
	assert.Equal(t, 12, off)
	assert.Equal(t, 34, length)

	for _, bad := range []string{"", "12", "a:b", "-1:3"} {
		_, _, ok := astparser.Span(bad)
		assert.False(t, ok, bad)
	}
}
