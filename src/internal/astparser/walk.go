package astparser

// Children returns the direct child nodes of n in source order, skipping nils.
func Children(n *Node) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	add := func(nodes ...*Node) {
		for _, c := range nodes {
			if c != nil {
				out = append(out, c)
			}
		}
	}

	switch n.NodeType {
	case SourceUnit:
		add(n.Nodes...)
	case ContractDefinition:
		add(n.BaseContracts...)
		add(n.Nodes...)
	case InheritanceSpecifier:
		add(n.BaseName)
		add(n.Arguments...)
	case FunctionDefinition, ModifierDefinition:
		add(n.Parameters, n.ReturnParameters)
		add(n.Modifiers...)
		add(n.Body)
	case EventDefinition, ErrorDefinition:
		add(n.Parameters)
	case ModifierInvocation:
		add(n.ModifierName)
		add(n.Arguments...)
	case ParameterList:
		add(n.Params...)
	case VariableDeclaration:
		add(n.TypeName, n.Initializer)
	case StructDefinition, EnumDefinition:
		add(n.Members...)
	case UserDefinedValueTypeDefinition:
		add(n.UnderlyingType)
	case ArrayTypeName:
		add(n.BaseType, n.Length)
	case Mapping:
		add(n.KeyType, n.ValueType)
	case UserDefinedTypeName:
		add(n.PathNode)
	case FunctionTypeName:
		add(n.Parameters, n.ReturnParameters)
	case Block, UncheckedBlock:
		add(n.Statements...)
	case ExpressionStatement, Return:
		add(n.Expression)
	case VariableDeclarationStatement:
		add(n.Declarations...)
		add(n.InitialValue)
	case IfStatement:
		add(n.Condition, n.TrueBody, n.FalseBody)
	case ForStatement:
		add(n.InitializationExpression, n.Condition, n.LoopExpression, n.Body)
	case WhileStatement, DoWhileStatement:
		add(n.Condition, n.Body)
	case EmitStatement:
		add(n.EventCall)
	case RevertStatement:
		add(n.ErrorCall)
	case TryStatement:
		add(n.ExternalCall)
		add(n.Clauses...)
	case TryCatchClause:
		add(n.Parameters, n.Block)
	case Assignment:
		add(n.LeftHandSide, n.RightHandSide)
	case BinaryOperation:
		add(n.LeftExpression, n.RightExpression)
	case UnaryOperation:
		add(n.SubExpression)
	case Conditional:
		add(n.Condition, n.TrueExpression, n.FalseExpression)
	case FunctionCall:
		add(n.Expression)
		add(n.Arguments...)
	case FunctionCallOptions:
		add(n.Expression)
		add(n.Options...)
	case MemberAccess:
		add(n.Expression)
	case IndexAccess:
		add(n.BaseExpression, n.IndexExpression)
	case IndexRangeAccess:
		add(n.BaseExpression, n.StartExpression, n.EndExpression)
	case TupleExpression:
		add(n.Components...)
	case NewExpression, ElementaryTypeNameExpression:
		add(n.TypeName)
	case PragmaDirective, ImportDirective, UsingForDirective, EnumValue, ElementaryTypeName,
		IdentifierPath, Identifier, Literal, Continue, Break, Throw, InlineAssembly,
		PlaceholderStatement, StructuredDocumentation, OverrideSpecifier:
		// leaves
	default:
		// unknown kinds from newer compilers: descend through the generic slots
		add(n.Nodes...)
		add(n.Statements...)
		add(n.Body, n.Expression)
		add(n.Arguments...)
	}
	return out
}

// Walk visits root and its descendants depth-first in source order using an
// explicit stack, so pathological nesting cannot exhaust the goroutine stack.
// Returning false from fn skips the node's children.
func Walk(root *Node, fn func(*Node) bool) {
	if root == nil {
		return
	}
	stack := []*Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if !fn(n) {
			continue
		}
		children := Children(n)
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
}
