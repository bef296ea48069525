package astparser_test

import (
	"testing"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/VectorBits/facetsplit/src/internal/astparser"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const vaultSource = `
// SPDX-License-Identifier: MIT
pragma solidity ^0.8.20;

type Price is uint128;

enum Status { Open, Closed }

interface IOracle {
    function price(bytes32 id) returns (Price);
}

abstract contract Ownable {
    address internal _owner;
    modifier onlyOwner() { require(msg.sender == _owner, "owner"); _; }
}

contract Vault is Ownable, ERC20("Vault", "V") {
    /* struct Hidden { uint x; } */
    struct Position { address owner; Status status; Price[] marks; }

    bytes32 public constant ROLE = keccak256("ROLE");
    uint256 immutable cap;
    function(uint256) external view returns (uint256) hook;

    constructor(uint256 c) ERC20("Vault", "V") { cap = c; }

    receive() external payable {}
    fallback() external {}

    function open(Position memory p, address payable to) external onlyOwner returns (uint256 id) {
        for (uint256 i = 0; i < p.marks.length; i++) {
            if (Price.unwrap(p.marks[i]) == 0) {
                revert Empty(i);
            } else if (i > 10) {
                break;
            } else {
                _touch(i);
            }
        }
        try IOracle(to).price(bytes32(0)) returns (Price px) {
            emit Opened(px);
        } catch {
            _fail();
        }
        unchecked { id = total++; }
        (bool ok, ) = to.call{value: 1}("");
        uint256 x;
    }

    function _touch(uint256 i) internal { _fail(); }
    function _fail() private view {}
}
`

func scanVault(t *testing.T) (*astparser.ParsedSource, map[string]*astparser.Node) {
	t.Helper()
	ps, err := astparser.ScanSource(vaultSource)
	require.NoError(t, err)
	vault := ps.FindContract("")
	require.NotNil(t, vault)
	require.Equal(t, "Vault", vault.Name)

	fns := make(map[string]*astparser.Node)
	for _, n := range vault.Nodes {
		if n.NodeType == astparser.FunctionDefinition {
			key := n.Name
			if key == "" {
				key = n.Kind
			}
			fns[key] = n
		}
	}
	return ps, fns
}

func TestScanSourceDeclarations(t *testing.T) {
	ps, fns := scanVault(t)
	vault := ps.FindContract("Vault")

	assert.Equal(t, []string{"Ownable", "ERC20"}, astparser.BaseNames(vault))
	require.Len(t, ps.Contracts(), 3)
	assert.Equal(t, "interface", ps.Contracts()[0].ContractKind)
	assert.True(t, ps.Contracts()[1].Abstract)

	assert.ElementsMatch(t, []string{"constructor", "receive", "fallback", "open", "_touch", "_fail"}, keys(fns))
	assert.Equal(t, "external", fns["receive"].Visibility)
	assert.Equal(t, "payable", fns["receive"].StateMutability)
	assert.Equal(t, "public", fns["constructor"].Visibility)
	assert.Equal(t, "private", fns["_fail"].Visibility)
	assert.Equal(t, "view", fns["_fail"].StateMutability)

	iface := ps.FindContract("IOracle")
	require.Len(t, iface.Nodes, 1)
	assert.Equal(t, "external", iface.Nodes[0].Visibility)
	assert.False(t, iface.Nodes[0].Implemented)

	var vars []string
	for _, n := range vault.Nodes {
		if n.NodeType == astparser.VariableDeclaration {
			vars = append(vars, n.Name+":"+n.Mutability)
		}
	}
	assert.Equal(t, []string{"ROLE:constant", "cap:immutable", "hook:mutable"}, vars)

	mods := fns["open"].Modifiers
	require.Len(t, mods, 1)
	assert.Equal(t, "onlyOwner", mods[0].ModifierName.Name)
	require.Len(t, fns["constructor"].Modifiers, 1)
	assert.Equal(t, "baseConstructorSpecifier", fns["constructor"].Modifiers[0].Kind)
}

func TestScanSourceTypes(t *testing.T) {
	ps, fns := scanVault(t)

	params, err := ps.ParamTypes(fns["open"].Parameters)
	require.NoError(t, err)
	sig, err := abi.Signature("open", params)
	require.NoError(t, err)
	assert.Equal(t, "open(tuple(address,uint8,uint128[]),address)", sig)

	returns := astparser.ParamList(fns["open"].ReturnParameters)
	require.Len(t, returns, 1)
	assert.Equal(t, "id", returns[0].Name)
}

func TestScanSourceStatements(t *testing.T) {
	_, fns := scanVault(t)

	counts := make(map[astparser.NodeType]int)
	astparser.Walk(fns["open"].Body, func(n *astparser.Node) bool {
		counts[n.NodeType]++
		return true
	})
	assert.Equal(t, 1, counts[astparser.ForStatement])
	assert.Equal(t, 2, counts[astparser.IfStatement], "else-if chain hangs off the first if")
	assert.Equal(t, 1, counts[astparser.RevertStatement])
	assert.Equal(t, 1, counts[astparser.Break])
	assert.Equal(t, 1, counts[astparser.TryStatement])
	assert.Equal(t, 2, counts[astparser.TryCatchClause])
	assert.Equal(t, 1, counts[astparser.EmitStatement])
	assert.Equal(t, 1, counts[astparser.UncheckedBlock])
	assert.Equal(t, 3, counts[astparser.VariableDeclarationStatement])

	assert.Equal(t, []string{"_fail", "_touch", "call", "price", "unwrap"}, astparser.Callees(fns["open"]))
	assert.Equal(t, []string{"_fail"}, astparser.Callees(fns["_touch"]))
}

func TestScanSourceUnbalanced(t *testing.T) {
	_, err := astparser.ScanSource("contract A { function f() public { ")
	require.ErrorIs(t, err, astparser.ErrUnbalanced)

	_, err = astparser.ScanSource("contract A { } }")
	require.ErrorIs(t, err, astparser.ErrUnbalanced)
}

func TestABITypeErrors(t *testing.T) {
	ps, err := astparser.ScanSource(`
contract C {
    struct A { B b; }
    struct B { A a; }
    function f(A memory a) public {}
    function g(Unknown u) public {}
    function h(uint[N] memory xs) public {}
}`)
	require.NoError(t, err)
	for _, n := range ps.FindContract("C").Nodes {
		if n.NodeType != astparser.FunctionDefinition {
			continue
		}
		_, err := ps.ParamTypes(n.Parameters)
		assert.ErrorIs(t, err, abi.ErrMalformedType, n.Name)
	}

	_, err = ps.ABIType(nil)
	assert.ErrorIs(t, err, abi.ErrMalformedType)
}

func keys(m map[string]*astparser.Node) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
