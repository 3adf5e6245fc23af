package patch

import (
	"github.com/oremus-labs/genui-bridge/internal/jsonval"
)

// Applier owns the current snapshot of a tree and applies operations to it
// strictly in the order they are submitted. It is not safe for concurrent
// use; a stream owns exactly one.
type Applier struct {
	tree    jsonval.Value
	version int
	applied int
	failed  int
}

// NewApplier starts from initial.
func NewApplier(initial jsonval.Value) *Applier {
	return &Applier{tree: initial}
}

// Apply applies op. On success the new snapshot is returned and becomes
// current; on failure the current snapshot is returned unchanged.
func (a *Applier) Apply(op Op) (jsonval.Value, error) {
	next, err := Apply(a.tree, op)
	if err != nil {
		a.failed++
		return a.tree, err
	}
	a.tree = next
	a.version++
	a.applied++
	return next, nil
}

// Tree returns the current snapshot. Callers must treat it as read-only.
func (a *Applier) Tree() jsonval.Value { return a.tree }

// Version increments once per successful operation.
func (a *Applier) Version() int { return a.version }

// Applied returns the number of successful operations.
func (a *Applier) Applied() int { return a.applied }

// Failed returns the number of rejected operations.
func (a *Applier) Failed() int { return a.failed }
