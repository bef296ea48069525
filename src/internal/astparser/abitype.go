package astparser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/abi"
)

const maxTypeDepth = 32

// ABIType converts a type-name node into an abi.Type, resolving user-defined
// names through the declaration index: structs become tuples, enums uint8,
// contracts and interfaces address, and value types their underlying type.
func (ps *ParsedSource) ABIType(typeName *Node) (abi.Type, error) {
	return ps.abiType(typeName, 0, map[*Node]bool{})
}

func (ps *ParsedSource) abiType(n *Node, depth int, resolving map[*Node]bool) (abi.Type, error) {
	if n == nil {
		return abi.Type{}, fmt.Errorf("%w: missing type node", abi.ErrMalformedType)
	}
	if depth > maxTypeDepth {
		return abi.Type{}, fmt.Errorf("%w: type nesting deeper than %d", abi.ErrMalformedType, maxTypeDepth)
	}

	switch n.NodeType {
	case ElementaryTypeName:
		name := n.Name
		if name == "" {
			name = strings.TrimSuffix(n.TypeDescriptions.TypeString, " payable")
		}
		return abi.Elementary(name), nil

	case ArrayTypeName:
		elem, err := ps.abiType(n.BaseType, depth+1, resolving)
		if err != nil {
			return abi.Type{}, err
		}
		length, err := ps.arrayLength(n)
		if err != nil {
			return abi.Type{}, err
		}
		return abi.ArrayOf(elem, length), nil

	case Mapping:
		key, err := ps.abiType(n.KeyType, depth+1, resolving)
		if err != nil {
			return abi.Type{}, err
		}
		value, err := ps.abiType(n.ValueType, depth+1, resolving)
		if err != nil {
			return abi.Type{}, err
		}
		return abi.MappingOf(key, value), nil

	case FunctionTypeName:
		return abi.Type{Kind: abi.KindFunction}, nil

	case UserDefinedTypeName, IdentifierPath:
		decl := ps.resolveDeclaration(n)
		if decl == nil {
			return ps.typeFromDescription(n)
		}
		return ps.declarationType(decl, depth, resolving)
	}
	return abi.Type{}, fmt.Errorf("%w: %s is not a type name", abi.ErrMalformedType, n.NodeType)
}

func (ps *ParsedSource) declarationType(decl *Node, depth int, resolving map[*Node]bool) (abi.Type, error) {
	switch decl.NodeType {
	case StructDefinition:
		if resolving[decl] {
			return abi.Type{}, fmt.Errorf("%w: recursive struct %s", abi.ErrMalformedType, decl.Name)
		}
		resolving[decl] = true
		defer delete(resolving, decl)

		components := make([]abi.Type, 0, len(decl.Members))
		for _, m := range decl.Members {
			if m == nil {
				continue
			}
			t, err := ps.abiType(m.TypeName, depth+1, resolving)
			if err != nil {
				return abi.Type{}, fmt.Errorf("struct %s member %s: %w", decl.Name, m.Name, err)
			}
			components = append(components, t)
		}
		return abi.TupleOf(components...), nil
	case EnumDefinition:
		return abi.Elementary("uint8"), nil
	case ContractDefinition:
		return abi.Elementary("address"), nil
	case UserDefinedValueTypeDefinition:
		return ps.abiType(decl.UnderlyingType, depth+1, resolving)
	}
	return abi.Type{}, fmt.Errorf("%w: %s %s is not a type", abi.ErrMalformedType, decl.NodeType, decl.Name)
}

// resolveDeclaration follows referencedDeclaration, then falls back to the last
// path segment of the name.
func (ps *ParsedSource) resolveDeclaration(n *Node) *Node {
	ref := n.ReferencedDeclaration
	if ref == 0 && n.PathNode != nil {
		ref = n.PathNode.ReferencedDeclaration
	}
	if ref > 0 {
		if decl, ok := ps.NodesByID[ref]; ok {
			return decl
		}
	}

	name := n.Name
	if name == "" && n.PathNode != nil {
		name = n.PathNode.Name
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return ps.typeDecls[name]
}

// typeFromDescription covers declarations outside this unit (imports the AST
// does not include) whose kind is still known from the type string.
func (ps *ParsedSource) typeFromDescription(n *Node) (abi.Type, error) {
	ts := n.TypeDescriptions.TypeString
	switch {
	case strings.HasPrefix(ts, "contract "), strings.HasPrefix(ts, "type(contract "):
		return abi.Elementary("address"), nil
	case strings.HasPrefix(ts, "enum "):
		return abi.Elementary("uint8"), nil
	}
	name := n.Name
	if name == "" && n.PathNode != nil {
		name = n.PathNode.Name
	}
	return abi.Type{}, fmt.Errorf("%w: unresolved user-defined type %q", abi.ErrMalformedType, name)
}

var (
	numberRe        = regexp.MustCompile(`^[0-9]+$`)
	trailingArrayRe = regexp.MustCompile(`\[([0-9]*)\](?:\s+\w+)*$`)
)

// arrayLength returns "" for dynamic arrays and the decimal length otherwise.
// Constant-expression lengths are taken from the compiler's type string or, for
// scanned sources, from the referenced constant's literal initializer.
func (ps *ParsedSource) arrayLength(n *Node) (string, error) {
	if n.Length == nil {
		return "", nil
	}
	if n.Length.NodeType == Literal && numberRe.MatchString(n.Length.Value) {
		return n.Length.Value, nil
	}
	if m := trailingArrayRe.FindStringSubmatch(n.TypeDescriptions.TypeString); m != nil && m[1] != "" {
		return m[1], nil
	}
	if n.Length.NodeType == Identifier {
		var decl *Node
		if n.Length.ReferencedDeclaration > 0 {
			decl = ps.NodesByID[n.Length.ReferencedDeclaration]
		}
		if decl == nil {
			decl = ps.constants[n.Length.Name]
		}
		if decl != nil && decl.Initializer != nil && decl.Initializer.NodeType == Literal && numberRe.MatchString(decl.Initializer.Value) {
			return decl.Initializer.Value, nil
		}
	}
	return "", fmt.Errorf("%w: cannot evaluate array length", abi.ErrMalformedType)
}

// ParamTypes converts a parameter list into abi types in declaration order.
func (ps *ParsedSource) ParamTypes(list *Node) ([]abi.Type, error) {
	params := ParamList(list)
	out := make([]abi.Type, 0, len(params))
	for i, p := range params {
		if p == nil {
			return nil, fmt.Errorf("%w: parameter %d missing", abi.ErrMalformedType, i)
		}
		t, err := ps.ABIType(p.TypeName)
		if err != nil {
			return nil, fmt.Errorf("parameter %d (%s): %w", i, p.Name, err)
		}
		out = append(out, t)
	}
	return out, nil
}
