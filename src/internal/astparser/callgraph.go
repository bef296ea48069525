package astparser

import "sort"

// Callees returns the names called directly from fn's body, sorted and unique.
// Plain calls contribute the identifier, member calls the member name; overloads
// are not resolved. Builtins, type conversions, struct constructors, and the
// event or error of emit/revert are not calls to contract code and are skipped.
func Callees(fn *Node) []string {
	if fn == nil || fn.Body == nil {
		return nil
	}

	skip := make(map[*Node]bool)
	names := make(map[string]bool)

	Walk(fn.Body, func(n *Node) bool {
		switch n.NodeType {
		case EmitStatement:
			if n.EventCall != nil {
				skip[n.EventCall] = true
			}
		case RevertStatement:
			if n.ErrorCall != nil {
				skip[n.ErrorCall] = true
			}
		case FunctionCall:
			if skip[n] || n.Kind == "typeConversion" || n.Kind == "structConstructorCall" {
				return true
			}
			if name := calleeName(n.Expression); name != "" {
				names[name] = true
			}
		}
		return true
	})

	out := make([]string, 0, len(names))
	for name := range names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func calleeName(expr *Node) string {
	for expr != nil && expr.NodeType == FunctionCallOptions {
		expr = expr.Expression
	}
	if expr == nil {
		return ""
	}
	switch expr.NodeType {
	case Identifier:
		// negative ids are compiler builtins (require, keccak256, ...)
		if expr.ReferencedDeclaration < 0 || builtinCalls[expr.Name] {
			return ""
		}
		return expr.Name
	case MemberAccess:
		if base := expr.Expression; base != nil && base.NodeType == Identifier && builtinBases[base.Name] {
			return ""
		}
		return expr.MemberName
	}
	return ""
}

// builtinCalls catches builtins in scanned sources, which carry no declaration ids.
var builtinCalls = map[string]bool{
	"require": true, "assert": true, "revert": true,
	"keccak256": true, "sha256": true, "ripemd160": true, "ecrecover": true,
	"addmod": true, "mulmod": true, "selfdestruct": true, "blockhash": true,
	"gasleft": true, "type": true,
}

// builtinBases are globals whose members are never contract functions.
var builtinBases = map[string]bool{
	"abi": true, "msg": true, "block": true, "tx": true,
}
