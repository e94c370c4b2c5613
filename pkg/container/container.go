// Package container wires the service graph at startup. Constructors are
// registered by their return type and resolved reflectively, so main stays a
// list of Provide calls instead of a hand-ordered build sequence.
package container

import (
	"fmt"
	"reflect"
	"sync"
)

var errType = reflect.TypeOf((*error)(nil)).Elem()

// binding is one registered constructor. shared bindings are built once and
// the instance is reused for every later request.
type binding struct {
	ctor   reflect.Value
	shared bool
}

type Container struct {
	mu       sync.Mutex
	bindings map[reflect.Type]*binding
	built    map[*binding]reflect.Value
}

func New() *Container {
	return &Container{
		bindings: make(map[reflect.Type]*binding),
		built:    make(map[*binding]reflect.Value),
	}
}

// Provide registers a constructor keyed by its first return type. The
// constructor's parameters are resolved from the container when it runs, and
// it may return (T) or (T, error). Registering a second constructor for the
// same type is an error.
func (c *Container) Provide(constructor interface{}, singleton bool) error {
	fn := reflect.ValueOf(constructor)
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("container: constructor must be a function")
	}
	ft := fn.Type()
	switch ft.NumOut() {
	case 1:
	case 2:
		if ft.Out(1) != errType {
			return fmt.Errorf("container: second return value must be error")
		}
	default:
		return fmt.Errorf("container: constructor must return (T) or (T, error)")
	}
	key := ft.Out(0)

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.bindings[key]; dup {
		return fmt.Errorf("container: provider already exists for %v", key)
	}
	c.bindings[key] = &binding{ctor: fn, shared: singleton}
	return nil
}

// Resolve fills the pointed-to variable with an instance of its type:
//
//	var repo domain.Repository
//	err := c.Resolve(&repo)
func (c *Container) Resolve(target interface{}) error {
	ptr := reflect.ValueOf(target)
	if ptr.Kind() != reflect.Ptr || ptr.IsNil() {
		return fmt.Errorf("container: target must be a non-nil pointer")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	val, err := c.build(ptr.Elem().Type(), nil)
	if err != nil {
		return err
	}
	ptr.Elem().Set(val)
	return nil
}

// Invoke calls fn with every parameter resolved from the container. When the
// function's last return value is an error, Invoke returns it.
func (c *Container) Invoke(fn interface{}) error {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return fmt.Errorf("container: Invoke requires a function")
	}
	ft := v.Type()
	args := make([]reflect.Value, ft.NumIn())

	c.mu.Lock()
	for i := range args {
		val, err := c.build(ft.In(i), nil)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		args[i] = val
	}
	c.mu.Unlock()

	outs := v.Call(args)
	if n := len(outs); n > 0 && outs[n-1].Type() == errType && !outs[n-1].IsNil() {
		return outs[n-1].Interface().(error)
	}
	return nil
}

// build constructs a value for t, recursing into the constructor's
// parameters. stack carries the path from the root request so a cycle is
// reported with the chain that closed it. Callers hold c.mu.
func (c *Container) build(t reflect.Type, stack []reflect.Type) (reflect.Value, error) {
	b := c.lookup(t)
	if b == nil {
		return reflect.Value{}, fmt.Errorf("container: no provider for %v", t)
	}
	if v, ok := c.built[b]; ok {
		return v, nil
	}
	for _, prev := range stack {
		if prev == t {
			return reflect.Value{}, fmt.Errorf("container: cyclic dependency %v -> %v", stack, t)
		}
	}
	stack = append(stack, t)

	ft := b.ctor.Type()
	args := make([]reflect.Value, ft.NumIn())
	for i := range args {
		dep, err := c.build(ft.In(i), stack)
		if err != nil {
			return reflect.Value{}, err
		}
		args[i] = dep
	}

	outs := b.ctor.Call(args)
	if len(outs) == 2 && !outs[1].IsNil() {
		return reflect.Value{}, outs[1].Interface().(error)
	}
	if b.shared {
		c.built[b] = outs[0]
	}
	return outs[0], nil
}

// lookup finds the binding for t. An interface with no direct binding
// matches the first registered constructor whose return type implements it.
func (c *Container) lookup(t reflect.Type) *binding {
	if b, ok := c.bindings[t]; ok {
		return b
	}
	if t.Kind() != reflect.Interface {
		return nil
	}
	for key, b := range c.bindings {
		if key.Implements(t) {
			return b
		}
	}
	return nil
}
