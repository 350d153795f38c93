package planner

import "fmt"

// OpType is the kind of a planned operation.
type OpType string

// Operation type constants
const (
	OpCopy   OpType = "copy"
	OpMove   OpType = "move"
	OpDelete OpType = "delete"
	OpPatch  OpType = "patch"
)

// Plan represents the ordered operations of one preparation run.
type Plan struct {
	// Operations is the ordered list of operations to execute
	Operations []Operation `json:"operations"`

	// Conflicts is a list of detected conflicts (empty if no conflicts)
	Conflicts []Conflict `json:"conflicts"`
}

// Operation represents a single filesystem operation to execute.
type Operation struct {
	// Type is the operation type: "copy", "move", "delete", "patch"
	Type OpType `json:"type"`

	// Kind names what produced the operation: package, assembly, asset or patch.
	Kind string `json:"kind"`

	// Source is the absolute source path (empty for delete and patch)
	Source string `json:"source,omitempty"`

	// Target is the absolute path the operation writes or removes
	Target string `json:"target"`

	// RelTarget is Target relative to the repository root
	RelTarget string `json:"relTarget"`

	// Overwrite allows replacing an existing target
	Overwrite bool `json:"overwrite"`

	// Optional marks a patch whose missing file is skipped
	Optional bool `json:"optional,omitempty"`

	// Index is the position of the item within its config list
	Index int `json:"index"`
}

func (op Operation) String() string {
	switch op.Type {
	case OpDelete, OpPatch:
		return fmt.Sprintf("%s %s", op.Type, op.RelTarget)
	default:
		return fmt.Sprintf("%s %s -> %s", op.Type, op.Source, op.RelTarget)
	}
}

// Conflict represents a conflict detected during planning.
type Conflict struct {
	// Path is the path where the conflict was detected
	Path string `json:"path"`

	// Reason is a human-readable explanation of the conflict
	Reason string `json:"reason"`
}

// NewPlan creates a new empty Plan.
func NewPlan() *Plan {
	return &Plan{
		Operations: []Operation{},
		Conflicts:  []Conflict{},
	}
}

// HasConflicts returns true if the plan has any conflicts.
func (p *Plan) HasConflicts() bool {
	return len(p.Conflicts) > 0
}

// AddOperation adds an operation to the plan.
func (p *Plan) AddOperation(op Operation) {
	p.Operations = append(p.Operations, op)
}

// AddConflict adds a conflict to the plan.
func (p *Plan) AddConflict(conflict Conflict) {
	p.Conflicts = append(p.Conflicts, conflict)
}

// Count returns the number of operations of type t.
func (p *Plan) Count(t OpType) int {
	n := 0
	for _, op := range p.Operations {
		if op.Type == t {
			n++
		}
	}
	return n
}
