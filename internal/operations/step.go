package operations

import "context"

// Step is a single unit of work in an operation. Steps declare dependencies
// by ID and are executed in dependency order; Execute reads its inputs from
// the operation config and hands results to later steps through the
// operation context.
type Step interface {
	// ID returns the unique step identifier.
	ID() string

	// Name returns the human-readable step name.
	Name() string

	// GetDependencies returns the IDs of steps that must complete first.
	GetDependencies() []string

	// Validate checks the operation state carries what the step needs.
	Validate(state *OperationState) error

	// Execute runs the step.
	Execute(ctx context.Context, state *OperationState) error
}

// BaseStep supplies the identity plumbing steps share. Embedders provide
// Execute and may override Validate.
type BaseStep struct {
	id           string
	name         string
	dependencies []string
}

// NewBaseStep creates the common step base.
func NewBaseStep(id, name string, dependencies []string) BaseStep {
	if dependencies == nil {
		dependencies = []string{}
	}
	return BaseStep{id: id, name: name, dependencies: dependencies}
}

// ID returns the step identifier.
func (b BaseStep) ID() string { return b.id }

// Name returns the step name.
func (b BaseStep) Name() string { return b.name }

// GetDependencies returns the step dependency IDs.
func (b BaseStep) GetDependencies() []string { return b.dependencies }

// Validate accepts any state by default.
func (b BaseStep) Validate(state *OperationState) error { return nil }
