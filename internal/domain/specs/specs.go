package specs

import "context"

// Specification gates a domain object. Keep the leaves small and build the
// real rules by composition; a cancelled context fails every evaluation
// closed, so a timed-out publish pass never lets a venue through.
type Specification[T any] interface {
	IsSatisfiedBy(ctx context.Context, v T) bool
	And(other Specification[T]) Specification[T]
	Or(other Specification[T]) Specification[T]
	Not() Specification[T]
}

// New lifts a predicate into a composable Specification.
func New[T any](fn func(ctx context.Context, v T) bool) Specification[T] {
	return predicate[T]{eval: fn}
}

type predicate[T any] struct {
	eval func(ctx context.Context, v T) bool
}

func (p predicate[T]) IsSatisfiedBy(ctx context.Context, v T) bool {
	if ctx.Err() != nil {
		return false
	}
	return p.eval(ctx, v)
}

func (p predicate[T]) And(other Specification[T]) Specification[T] {
	return New(func(ctx context.Context, v T) bool {
		return p.IsSatisfiedBy(ctx, v) && other.IsSatisfiedBy(ctx, v)
	})
}

func (p predicate[T]) Or(other Specification[T]) Specification[T] {
	return New(func(ctx context.Context, v T) bool {
		return p.IsSatisfiedBy(ctx, v) || other.IsSatisfiedBy(ctx, v)
	})
}

func (p predicate[T]) Not() Specification[T] {
	return New(func(ctx context.Context, v T) bool {
		return ctx.Err() == nil && !p.eval(ctx, v)
	})
}
