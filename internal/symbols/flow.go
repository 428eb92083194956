package symbols

import "github.com/funvibe/sable/internal/ast"

// FlowID indexes Results.Flows. Index 0 is the shared unreachable node.
type FlowID int32

const FlowUnreachable FlowID = 0

type FlowKind int

const (
	FlowKindUnreachable FlowKind = iota
	FlowKindStart                // entry of a module, function, class body or comprehension
	FlowKindAssign               // a name in Scope receives a value
	FlowKindLabel                // branch join
	FlowKindLoopLabel            // loop head; has back edges
	FlowKindTrue                 // Cond evaluated truthy
	FlowKindFalse                // Cond evaluated falsy
)

func (k FlowKind) String() string {
	switch k {
	case FlowKindUnreachable:
		return "unreachable"
	case FlowKindStart:
		return "start"
	case FlowKindAssign:
		return "assign"
	case FlowKindLabel:
		return "label"
	case FlowKindLoopLabel:
		return "loop"
	case FlowKindTrue:
		return "true"
	case FlowKindFalse:
		return "false"
	}
	return "unknown"
}

// FlowNode is one node of the control-flow graph. Edges point backwards:
// Antecedents are the nodes control may come from.
type FlowNode struct {
	Kind        FlowKind
	Scope       ScopeID
	Name        string     // FlowKindAssign
	Node        ast.NodeID // FlowKindAssign: Declaration.Node
	Cond        ast.NodeID // FlowKindTrue, FlowKindFalse
	Antecedents []FlowID
}
