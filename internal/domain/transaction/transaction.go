// Package transaction declares the unit-of-work boundary used by domain
// services. Implementations carry the active transaction on the context so
// repositories called with that context join it.
package transaction

import "context"

// Manager runs fn inside a single unit of work. If ctx already carries a
// transaction, fn joins it instead of opening a new one.
type Manager interface {
	Do(ctx context.Context, fn func(ctx context.Context) error) error
}

// ManagerFunc adapts a function to Manager.
type ManagerFunc func(ctx context.Context, fn func(ctx context.Context) error) error

// Do implements Manager.
func (f ManagerFunc) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	return f(ctx, fn)
}
