package astparser

import (
	"encoding/json"
	"strconv"
	"strings"
)

// NodeType is the solc compact-JSON nodeType tag.
type NodeType string

const (
	SourceUnit                     NodeType = "SourceUnit"
	PragmaDirective                NodeType = "PragmaDirective"
	ImportDirective                NodeType = "ImportDirective"
	ContractDefinition             NodeType = "ContractDefinition"
	InheritanceSpecifier           NodeType = "InheritanceSpecifier"
	UsingForDirective              NodeType = "UsingForDirective"
	StructDefinition               NodeType = "StructDefinition"
	EnumDefinition                 NodeType = "EnumDefinition"
	EnumValue                      NodeType = "EnumValue"
	UserDefinedValueTypeDefinition NodeType = "UserDefinedValueTypeDefinition"
	ErrorDefinition                NodeType = "ErrorDefinition"
	EventDefinition                NodeType = "EventDefinition"
	ModifierDefinition             NodeType = "ModifierDefinition"
	ModifierInvocation             NodeType = "ModifierInvocation"
	FunctionDefinition             NodeType = "FunctionDefinition"
	ParameterList                  NodeType = "ParameterList"
	VariableDeclaration            NodeType = "VariableDeclaration"
	ElementaryTypeName             NodeType = "ElementaryTypeName"
	ArrayTypeName                  NodeType = "ArrayTypeName"
	Mapping                        NodeType = "Mapping"
	UserDefinedTypeName            NodeType = "UserDefinedTypeName"
	FunctionTypeName               NodeType = "FunctionTypeName"
	IdentifierPath                 NodeType = "IdentifierPath"
	Block                          NodeType = "Block"
	UncheckedBlock                 NodeType = "UncheckedBlock"
	ExpressionStatement            NodeType = "ExpressionStatement"
	VariableDeclarationStatement   NodeType = "VariableDeclarationStatement"
	IfStatement                    NodeType = "IfStatement"
	ForStatement                   NodeType = "ForStatement"
	WhileStatement                 NodeType = "WhileStatement"
	DoWhileStatement               NodeType = "DoWhileStatement"
	Continue                       NodeType = "Continue"
	Break                          NodeType = "Break"
	Return                         NodeType = "Return"
	Throw                          NodeType = "Throw"
	EmitStatement                  NodeType = "EmitStatement"
	RevertStatement                NodeType = "RevertStatement"
	TryStatement                   NodeType = "TryStatement"
	TryCatchClause                 NodeType = "TryCatchClause"
	InlineAssembly                 NodeType = "InlineAssembly"
	PlaceholderStatement           NodeType = "PlaceholderStatement"
	Assignment                     NodeType = "Assignment"
	BinaryOperation                NodeType = "BinaryOperation"
	UnaryOperation                 NodeType = "UnaryOperation"
	Conditional                    NodeType = "Conditional"
	FunctionCall                   NodeType = "FunctionCall"
	FunctionCallOptions            NodeType = "FunctionCallOptions"
	MemberAccess                   NodeType = "MemberAccess"
	IndexAccess                    NodeType = "IndexAccess"
	IndexRangeAccess               NodeType = "IndexRangeAccess"
	Identifier                     NodeType = "Identifier"
	Literal                        NodeType = "Literal"
	TupleExpression                NodeType = "TupleExpression"
	NewExpression                  NodeType = "NewExpression"
	ElementaryTypeNameExpression   NodeType = "ElementaryTypeNameExpression"
	StructuredDocumentation        NodeType = "StructuredDocumentation"
	OverrideSpecifier              NodeType = "OverrideSpecifier"
)

// Node is a tagged variant over the solc compact AST. Only the fields the
// analysis reads are decoded; NodeType selects which of them are meaningful.
type Node struct {
	ID       int      `json:"id"`
	NodeType NodeType `json:"nodeType"`
	Src      string   `json:"src"`
	Name     string   `json:"name,omitempty"`
	Kind     string   `json:"kind,omitempty"`

	// SourceUnit / ContractDefinition
	Nodes         []*Node  `json:"nodes,omitempty"`
	ContractKind  string   `json:"contractKind,omitempty"`
	Abstract      bool     `json:"abstract,omitempty"`
	BaseContracts []*Node  `json:"baseContracts,omitempty"`
	BaseName      *Node    `json:"baseName,omitempty"`
	AbsolutePath  string   `json:"absolutePath,omitempty"`
	File          string   `json:"file,omitempty"`
	Literals      []string `json:"literals,omitempty"`

	// FunctionDefinition / ModifierDefinition / EventDefinition
	Visibility       string  `json:"visibility,omitempty"`
	StateMutability  string  `json:"stateMutability,omitempty"`
	Implemented      bool    `json:"implemented,omitempty"`
	Parameters       *Node   `json:"-"`
	Params           []*Node `json:"-"`
	ReturnParameters *Node   `json:"returnParameters,omitempty"`
	Modifiers        []*Node `json:"modifiers,omitempty"`
	ModifierName     *Node   `json:"modifierName,omitempty"`
	Body             *Node   `json:"body,omitempty"`

	// VariableDeclaration
	TypeName      *Node  `json:"-"`
	Constant      bool   `json:"constant,omitempty"`
	Mutability    string `json:"mutability,omitempty"`
	StateVariable bool   `json:"stateVariable,omitempty"`
	StorageLoc    string `json:"storageLocation,omitempty"`
	// Initializer is VariableDeclaration.value; Value is Literal.value.
	Initializer *Node  `json:"-"`
	Value       string `json:"-"`

	// Struct / Enum members, UDVT underlying type
	Members        []*Node `json:"members,omitempty"`
	UnderlyingType *Node   `json:"underlyingType,omitempty"`

	// Type names
	BaseType              *Node            `json:"baseType,omitempty"`
	Length                *Node            `json:"length,omitempty"`
	KeyType               *Node            `json:"keyType,omitempty"`
	ValueType             *Node            `json:"valueType,omitempty"`
	PathNode              *Node            `json:"pathNode,omitempty"`
	ReferencedDeclaration int              `json:"referencedDeclaration,omitempty"`
	TypeDescriptions      TypeDescriptions `json:"typeDescriptions,omitempty"`

	// Statements
	Statements               []*Node `json:"statements,omitempty"`
	Expression               *Node   `json:"expression,omitempty"`
	Condition                *Node   `json:"condition,omitempty"`
	TrueBody                 *Node   `json:"trueBody,omitempty"`
	FalseBody                *Node   `json:"falseBody,omitempty"`
	InitializationExpression *Node   `json:"initializationExpression,omitempty"`
	LoopExpression           *Node   `json:"loopExpression,omitempty"`
	Declarations             []*Node `json:"declarations,omitempty"`
	InitialValue             *Node   `json:"initialValue,omitempty"`
	EventCall                *Node   `json:"eventCall,omitempty"`
	ErrorCall                *Node   `json:"errorCall,omitempty"`
	ExternalCall             *Node   `json:"externalCall,omitempty"`
	Clauses                  []*Node `json:"clauses,omitempty"`
	Block                    *Node   `json:"block,omitempty"`

	// Expressions
	Arguments       []*Node `json:"arguments,omitempty"`
	Options         []*Node `json:"options,omitempty"`
	MemberName      string  `json:"memberName,omitempty"`
	LeftHandSide    *Node   `json:"leftHandSide,omitempty"`
	RightHandSide   *Node   `json:"rightHandSide,omitempty"`
	LeftExpression  *Node   `json:"leftExpression,omitempty"`
	RightExpression *Node   `json:"rightExpression,omitempty"`
	SubExpression   *Node   `json:"subExpression,omitempty"`
	TrueExpression  *Node   `json:"trueExpression,omitempty"`
	FalseExpression *Node   `json:"falseExpression,omitempty"`
	BaseExpression  *Node   `json:"baseExpression,omitempty"`
	IndexExpression *Node   `json:"indexExpression,omitempty"`
	StartExpression *Node   `json:"startExpression,omitempty"`
	EndExpression   *Node   `json:"endExpression,omitempty"`
	Components      []*Node `json:"components,omitempty"`
	Operator        string  `json:"operator,omitempty"`
}

type TypeDescriptions struct {
	TypeIdentifier string `json:"typeIdentifier,omitempty"`
	TypeString     string `json:"typeString,omitempty"`
}

// UnmarshalJSON handles the keys whose shape depends on the node type or compiler
// version: "parameters" (a ParameterList node, or the list itself inside
// ParameterList), "value" (an initializer expression, or the literal text) and
// "typeName" (a node, or a bare name in older compilers).
func (n *Node) UnmarshalJSON(data []byte) error {
	type plain Node
	aux := struct {
		*plain
		RawParameters json.RawMessage `json:"parameters"`
		RawValue      json.RawMessage `json:"value"`
		RawTypeName   json.RawMessage `json:"typeName"`
	}{plain: (*plain)(n)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if raw := trimRaw(aux.RawParameters); raw != "" && raw != "null" {
		if raw[0] == '[' {
			if err := json.Unmarshal(aux.RawParameters, &n.Params); err != nil {
				return err
			}
		} else if err := json.Unmarshal(aux.RawParameters, &n.Parameters); err != nil {
			return err
		}
	}

	if raw := trimRaw(aux.RawValue); raw != "" && raw != "null" {
		switch raw[0] {
		case '{':
			if err := json.Unmarshal(aux.RawValue, &n.Initializer); err != nil {
				return err
			}
		case '"':
			if err := json.Unmarshal(aux.RawValue, &n.Value); err != nil {
				return err
			}
		default:
			n.Value = raw
		}
	}

	if raw := trimRaw(aux.RawTypeName); raw != "" && raw != "null" {
		if raw[0] == '"' {
			var name string
			if err := json.Unmarshal(aux.RawTypeName, &name); err != nil {
				return err
			}
			n.TypeName = &Node{NodeType: ElementaryTypeName, Name: name, Src: n.Src}
		} else if err := json.Unmarshal(aux.RawTypeName, &n.TypeName); err != nil {
			return err
		}
	}
	return nil
}

func trimRaw(raw json.RawMessage) string {
	return strings.TrimSpace(string(raw))
}

// ParamList returns the declarations of a ParameterList-valued field.
func ParamList(list *Node) []*Node {
	if list == nil {
		return nil
	}
	return list.Params
}

// Span parses a "offset:length[:file]" source location.
func Span(src string) (offset, length int, ok bool) {
	parts := strings.Split(src, ":")
	if len(parts) < 2 {
		return 0, 0, false
	}
	offset, err1 := strconv.Atoi(parts[0])
	length, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || offset < 0 || length < 0 {
		return 0, 0, false
	}
	return offset, length, true
}

// ParsedSource is one parsed unit plus indexes over it.
type ParsedSource struct {
	Unit       *Node
	SourceCode string
	NodesByID  map[int]*Node

	// declarations by simple name, used when a reference carries no id
	typeDecls map[string]*Node
	constants map[string]*Node
}

func newParsedSource(unit *Node, source string) *ParsedSource {
	ps := &ParsedSource{
		Unit:       unit,
		SourceCode: source,
		NodesByID:  make(map[int]*Node),
		typeDecls:  make(map[string]*Node),
		constants:  make(map[string]*Node),
	}
	ps.indexNodes()
	return ps
}

func (ps *ParsedSource) indexNodes() {
	Walk(ps.Unit, func(n *Node) bool {
		if n.ID != 0 {
			ps.NodesByID[n.ID] = n
		}
		switch n.NodeType {
		case StructDefinition, EnumDefinition, UserDefinedValueTypeDefinition, ContractDefinition:
			if _, seen := ps.typeDecls[n.Name]; !seen {
				ps.typeDecls[n.Name] = n
			}
		case VariableDeclaration:
			if n.Constant || n.Mutability == "constant" {
				ps.constants[n.Name] = n
			}
		}
		return true
	})
}

// GetSourceRange returns the source text covered by src, or "" when the
// location is outside the known source.
func (ps *ParsedSource) GetSourceRange(src string) string {
	offset, length, ok := Span(src)
	if !ok || offset+length > len(ps.SourceCode) {
		return ""
	}
	return ps.SourceCode[offset : offset+length]
}

// Contracts returns the contract, interface and library definitions of the unit in order.
func (ps *ParsedSource) Contracts() []*Node {
	var out []*Node
	if ps.Unit == nil {
		return nil
	}
	for _, n := range ps.Unit.Nodes {
		if n != nil && n.NodeType == ContractDefinition {
			out = append(out, n)
		}
	}
	return out
}

// FindContract returns the named contract. With an empty name it picks the last
// concrete contract of the unit, falling back to the last definition of any kind.
func (ps *ParsedSource) FindContract(name string) *Node {
	contracts := ps.Contracts()
	if name != "" {
		for _, c := range contracts {
			if c.Name == name {
				return c
			}
		}
		return nil
	}
	for i := len(contracts) - 1; i >= 0; i-- {
		if contracts[i].ContractKind == "contract" && !contracts[i].Abstract {
			return contracts[i]
		}
	}
	if len(contracts) > 0 {
		return contracts[len(contracts)-1]
	}
	return nil
}

// Imports returns the import paths of the unit.
func (ps *ParsedSource) Imports() []string {
	var out []string
	if ps.Unit == nil {
		return nil
	}
	for _, n := range ps.Unit.Nodes {
		if n != nil && n.NodeType == ImportDirective {
			out = append(out, n.File)
		}
	}
	return out
}

// BaseNames returns the inheritance list of a contract in declaration order.
func BaseNames(contract *Node) []string {
	var out []string
	for _, spec := range contract.BaseContracts {
		if spec == nil || spec.BaseName == nil {
			continue
		}
		name := spec.BaseName.Name
		if name == "" && spec.BaseName.PathNode != nil {
			name = spec.BaseName.PathNode.Name
		}
		if name != "" {
			out = append(out, name)
		}
	}
	return out
}
