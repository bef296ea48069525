package extractor

import (
	"github.com/VectorBits/facetsplit/src/internal/astparser"
	"github.com/VectorBits/facetsplit/src/internal/model"
)

// Heuristic weights. They rank functions against each other for packing and
// say nothing about real execution cost.
const (
	baseGas        = 21000
	assignmentGas  = 5000
	callGas        = 2600
	branchGas      = 200
	loopGas        = 2000
	loopIterations = 10
	emitGas        = 1500
	returnGas      = 50
	statementGas   = 100
	modifierGas    = 2400
	readOnlyGasCap = 100000
	payableGas     = 2300

	// a getter is a storage read and a return
	getterGas = baseGas + returnGas

	// bytecode bytes per source byte, in percent
	sizeRatioPercent = 45
	dispatchOverhead = 64
)

func estimateGas(fn *astparser.Node, modifiers int, mutability string) uint64 {
	gas := uint64(baseGas)
	skip := make(map[*astparser.Node]bool)

	astparser.Walk(fn.Body, func(n *astparser.Node) bool {
		switch n.NodeType {
		case astparser.Assignment:
			gas += assignmentGas
		case astparser.FunctionCall:
			if !skip[n] && n.Kind != "typeConversion" && n.Kind != "structConstructorCall" {
				gas += callGas
			}
		case astparser.IfStatement, astparser.Conditional:
			gas += branchGas
		case astparser.ForStatement, astparser.WhileStatement, astparser.DoWhileStatement:
			gas += loopGas * loopIterations
		case astparser.EmitStatement:
			gas += emitGas
			if n.EventCall != nil {
				skip[n.EventCall] = true
			}
		case astparser.RevertStatement:
			gas += statementGas
			if n.ErrorCall != nil {
				skip[n.ErrorCall] = true
			}
		case astparser.Return:
			gas += returnGas
		case astparser.ExpressionStatement:
			// assignments and calls are weighted on their own node
			if e := n.Expression; e == nil || (e.NodeType != astparser.Assignment && e.NodeType != astparser.FunctionCall) {
				gas += statementGas
			}
		case astparser.VariableDeclarationStatement, astparser.Break, astparser.Continue,
			astparser.Throw, astparser.InlineAssembly, astparser.TryStatement, astparser.PlaceholderStatement:
			gas += statementGas
		}
		return true
	})

	gas += uint64(modifiers) * modifierGas
	switch mutability {
	case model.MutabilityView, model.MutabilityPure:
		if gas > readOnlyGasCap {
			gas = readOnlyGasCap
		}
	case model.MutabilityPayable:
		gas += payableGas
	}
	return gas
}

func estimateSize(spanBytes int, routable bool) uint64 {
	if spanBytes < 0 {
		spanBytes = 0
	}
	size := (uint64(spanBytes)*sizeRatioPercent + 99) / 100
	if routable {
		size += dispatchOverhead
	}
	return size
}
