package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/VectorBits/facetsplit/src/internal/abi"
	"github.com/VectorBits/facetsplit/src/internal/astparser"
	"github.com/VectorBits/facetsplit/src/internal/logger"
	"github.com/VectorBits/facetsplit/src/internal/model"
	"github.com/VectorBits/facetsplit/src/internal/solc"
)

type Options struct {
	// ContractName picks the target when the unit declares more than one.
	ContractName string
	// Light skips the compiler and reads the AST only.
	Light bool
	// RequireCompiler turns compiler failures into errors instead of warnings.
	RequireCompiler bool
	// DisableScan stops the fallback to the source scanner when parsing fails.
	DisableScan bool
}

// Extractor turns source text into a ContractModel. Parser and Compiler may be
// nil: without a parser the source scanner is used, without a compiler full
// mode degrades to AST metadata.
type Extractor struct {
	Parser   astparser.Parser
	Compiler solc.Compiler
}

func New(parser astparser.Parser, compiler solc.Compiler) *Extractor {
	return &Extractor{Parser: parser, Compiler: compiler}
}

// Extract analyses one contract of source. Structural failures return a
// *model.AnalysisError; with RequireCompiler set, compiler failures return a
// *solc.CompilationError.
func (e *Extractor) Extract(ctx context.Context, source string, opts Options) (*model.ContractModel, error) {
	flat, err := solc.FlattenJSONSource(source)
	if err != nil {
		return nil, &model.AnalysisError{Contract: opts.ContractName, Err: fmt.Errorf("%w: %w", model.ErrUnparsable, err)}
	}

	ps, scanned, err := e.parse(ctx, flat, opts)
	if err != nil {
		return nil, err
	}

	contract := ps.FindContract(opts.ContractName)
	if contract == nil {
		return nil, &model.AnalysisError{Contract: opts.ContractName, Err: model.ErrContractNotFound}
	}

	b := &builder{
		ps:       ps,
		contract: contract,
		m: &model.ContractModel{
			Name:        contract.Name,
			Imports:     ps.Imports(),
			Inheritance: astparser.BaseNames(contract),
			Scanned:     scanned,
		},
	}
	if err := b.collect(); err != nil {
		return nil, err
	}
	m := b.m

	for i := range m.Functions {
		m.TotalSizeEstimate += m.Functions[i].EstimatedCodeSize
	}
	logger.Debug("extracted %s: %d functions, %d variables, %d events", m.Name, len(m.Functions), len(m.Variables), len(m.Events))

	if opts.Light || e.Compiler == nil || astparser.LooksLikeAST([]byte(flat)) {
		return m, nil
	}

	out, err := e.Compiler.Compile(ctx, flat, contract.Name)
	if err != nil {
		if opts.RequireCompiler {
			var cerr *solc.CompilationError
			if !errors.As(err, &cerr) {
				err = &solc.CompilationError{Err: err}
			}
			return nil, err
		}
		if errors.Is(err, solc.ErrCompilerDisabled) {
			logger.Debug("compiler disabled, keeping AST estimates for %s", m.Name)
		} else {
			logger.Warn("compiler failed for %s, keeping AST estimates: %v", m.Name, err)
		}
		return m, nil
	}
	if err := applyCompilerOutput(m, out); err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Extractor) parse(ctx context.Context, source string, opts Options) (*astparser.ParsedSource, bool, error) {
	if e.Parser != nil {
		ps, err := e.Parser.Parse(ctx, source)
		if err == nil {
			return ps, false, nil
		}
		if opts.RequireCompiler && !opts.Light {
			return nil, false, &solc.CompilationError{Err: err}
		}
		if opts.DisableScan {
			return nil, false, &model.AnalysisError{Contract: opts.ContractName, Err: fmt.Errorf("%w: %w", model.ErrUnparsable, err)}
		}
		logger.Warn("AST parse failed, falling back to source scan: %v", err)
	}

	ps, err := astparser.ScanSource(source)
	if err != nil {
		return nil, false, &model.AnalysisError{Contract: opts.ContractName, Err: fmt.Errorf("%w: %w", model.ErrUnparsable, err)}
	}
	return ps, true, nil
}

type builder struct {
	ps       *astparser.ParsedSource
	contract *astparser.Node
	m        *model.ContractModel
	varTypes []abi.Type
}

func (b *builder) collect() error {
	var err error
	astparser.Walk(b.contract, func(n *astparser.Node) bool {
		if err != nil {
			return false
		}
		switch n.NodeType {
		case astparser.ContractDefinition:
			return n == b.contract
		case astparser.FunctionDefinition:
			err = b.function(n)
		case astparser.VariableDeclaration:
			if n.StateVariable {
				err = b.variable(n)
			}
		case astparser.EventDefinition:
			b.event(n)
		case astparser.ModifierDefinition:
			b.modifier(n)
		case astparser.InheritanceSpecifier, astparser.StructDefinition, astparser.EnumDefinition,
			astparser.ErrorDefinition, astparser.UserDefinedValueTypeDefinition, astparser.UsingForDirective:
		default:
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if err := layoutStorage(b.m.Variables, b.varTypes); err != nil {
		return &model.AnalysisError{Contract: b.m.Name, Err: fmt.Errorf("%w: %w", model.ErrMalformed, err)}
	}
	return nil
}

func (b *builder) params(list *astparser.Node) ([]abi.Type, []model.Param, error) {
	types, err := b.ps.ParamTypes(list)
	if err != nil {
		return nil, nil, err
	}
	nodes := astparser.ParamList(list)
	params := make([]model.Param, len(types))
	for i, t := range types {
		canonical, err := abi.Canonical(t)
		if err != nil {
			return nil, nil, err
		}
		params[i] = model.Param{Name: nodes[i].Name, Type: canonical}
	}
	return types, params, nil
}

func (b *builder) function(n *astparser.Node) error {
	kind := n.Kind
	if kind == "" {
		kind = model.KindFunction
	}
	name := n.Name
	if kind != model.KindFunction {
		name = kind
	}
	fn := model.FunctionDescriptor{
		ID:         model.FunctionID(len(b.m.Functions)),
		Name:       name,
		Kind:       kind,
		Visibility: n.Visibility,
		Mutability: n.StateMutability,
	}
	if fn.Mutability == "" {
		fn.Mutability = model.MutabilityNonPayable
	}

	types, params, err := b.params(n.Parameters)
	if err == nil {
		_, fn.Returns, err = b.params(n.ReturnParameters)
	}
	if err == nil {
		fn.CanonicalSignature, fn.Selector, err = abi.FunctionSelector(name, types)
		if kind != model.KindFunction {
			fn.Selector = abi.SentinelSelector
		}
	}
	if err != nil {
		// a wrong selector on a routed function would misroute calls
		if fn.Routable() {
			return &model.AnalysisError{Contract: b.m.Name, Function: name, Err: fmt.Errorf("%w: %w", model.ErrMalformed, err)}
		}
		logger.Warn("skipping %s.%s: %v", b.m.Name, name, err)
		return nil
	}
	fn.Parameters = params

	for _, inv := range n.Modifiers {
		if inv == nil || inv.Kind == "baseConstructorSpecifier" || inv.ModifierName == nil {
			continue
		}
		fn.Modifiers = append(fn.Modifiers, inv.ModifierName.Name)
	}
	fn.Dependencies = astparser.Callees(n)

	offset, length, _ := astparser.Span(n.Src)
	fn.SourceSpan = model.SourceSpan{Offset: offset, Length: length}
	fn.EstimatedCodeSize = estimateSize(length, fn.Routable())
	fn.EstimatedGas = estimateGas(n, len(fn.Modifiers), fn.Mutability)

	b.m.Functions = append(b.m.Functions, fn)
	return nil
}

func (b *builder) variable(n *astparser.Node) error {
	v := model.VariableDescriptor{
		Name:       n.Name,
		Visibility: n.Visibility,
		Constant:   n.Constant || n.Mutability == "constant",
		Immutable:  n.Mutability == "immutable",
	}
	if v.Visibility == "" {
		v.Visibility = "internal"
	}
	t, err := b.ps.ABIType(n.TypeName)
	if err == nil {
		v.CanonicalType, err = abi.Canonical(t)
	}
	if err != nil {
		if v.Constant || v.Immutable {
			logger.Warn("skipping %s.%s: %v", b.m.Name, n.Name, err)
			return nil
		}
		// an unknown type would shift every later slot
		return &model.AnalysisError{Contract: b.m.Name, Function: n.Name, Err: fmt.Errorf("%w: %w", model.ErrMalformed, err)}
	}
	b.m.Variables = append(b.m.Variables, v)
	b.varTypes = append(b.varTypes, t)
	if v.Visibility == "public" {
		return b.getter(n, t)
	}
	return nil
}

// getter adds the external view accessor solc generates for a public state
// variable. Mapping keys and array indices become its parameters; a struct
// returns its members except mappings and arrays.
func (b *builder) getter(n *astparser.Node, t abi.Type) error {
	var params []abi.Type
	for t.Kind == abi.KindMapping || t.Kind == abi.KindArray {
		if t.Kind == abi.KindMapping {
			params = append(params, *t.Key)
			t = *t.Value
			continue
		}
		params = append(params, abi.Elementary("uint256"))
		t = *t.Elem
	}
	returns := []abi.Type{t}
	if t.Kind == abi.KindTuple {
		returns = returns[:0]
		for _, c := range t.Components {
			if c.Kind != abi.KindMapping && c.Kind != abi.KindArray {
				returns = append(returns, c)
			}
		}
	}

	fn := model.FunctionDescriptor{
		ID:         model.FunctionID(len(b.m.Functions)),
		Name:       n.Name,
		Kind:       model.KindFunction,
		Visibility: "external",
		Mutability: model.MutabilityView,
		Getter:     true,
	}
	var err error
	fn.CanonicalSignature, fn.Selector, err = abi.FunctionSelector(n.Name, params)
	if err != nil {
		return &model.AnalysisError{Contract: b.m.Name, Function: n.Name, Err: fmt.Errorf("%w: %w", model.ErrMalformed, err)}
	}
	for _, p := range params {
		canonical, _ := abi.Canonical(p)
		fn.Parameters = append(fn.Parameters, model.Param{Type: canonical})
	}
	for _, r := range returns {
		canonical, _ := abi.Canonical(r)
		fn.Returns = append(fn.Returns, model.Param{Type: canonical})
	}

	offset, length, _ := astparser.Span(n.Src)
	fn.SourceSpan = model.SourceSpan{Offset: offset, Length: length}
	fn.EstimatedCodeSize = estimateSize(length, true)
	fn.EstimatedGas = getterGas
	b.m.Functions = append(b.m.Functions, fn)
	return nil
}

func (b *builder) event(n *astparser.Node) {
	types, err := b.ps.ParamTypes(n.Parameters)
	var sig string
	if err == nil {
		sig, err = abi.Signature(n.Name, types)
	}
	if err != nil {
		logger.Warn("skipping event %s.%s: %v", b.m.Name, n.Name, err)
		return
	}
	b.m.Events = append(b.m.Events, model.EventDescriptor{Name: n.Name, Signature: sig, Topic: abi.EventTopic(sig)})
}

func (b *builder) modifier(n *astparser.Node) {
	_, params, err := b.params(n.Parameters)
	if err != nil {
		logger.Warn("modifier %s.%s: %v", b.m.Name, n.Name, err)
	}
	b.m.Modifiers = append(b.m.Modifiers, model.ModifierDescriptor{Name: n.Name, Parameters: params})
}

// applyCompilerOutput replaces heuristics with compiler values. A selector the
// compiler disagrees with is an error: the canonicalization would be wrong.
func applyCompilerOutput(m *model.ContractModel, out *solc.Output) error {
	for i := range m.Functions {
		fn := &m.Functions[i]
		if fn.Kind != model.KindFunction {
			continue
		}
		key := abi.SolcForm(fn.CanonicalSignature)
		if id, ok := out.MethodIdentifiers[key]; ok && !strings.EqualFold("0x"+id, fn.Selector.Hex()) {
			return &model.AnalysisError{
				Contract: m.Name,
				Function: fn.Name,
				Err:      fmt.Errorf("%w: selector %s for %s, compiler reports 0x%s", model.ErrMalformed, fn.Selector, fn.CanonicalSignature, id),
			}
		}
		if gas, ok := out.GasEstimates[key]; ok {
			fn.EstimatedGas = gas
		}
	}

	if len(out.StorageLayout) > 0 {
		byLabel := make(map[string]solc.StorageSlot, len(out.StorageLayout))
		for _, s := range out.StorageLayout {
			// inherited variables come first; the contract's own declaration wins
			byLabel[s.Label] = s
		}
		for i := range m.Variables {
			v := &m.Variables[i]
			if s, ok := byLabel[v.Name]; ok && v.InStorage() {
				v.Slot, v.Offset = s.Slot, s.Offset
			}
		}
	}

	if len(out.DeployedBytecode) > 0 {
		m.TotalSizeEstimate = uint64(len(out.DeployedBytecode))
	}
	for _, d := range out.Diagnostics {
		logger.Debug("solc %s: %s", d.Severity, d.String())
	}
	m.Compiled = true
	m.CompilerVersion = out.Version
	return nil
}
