// Package jsop builds per-item operations from JavaScript. A script is
// compiled once and executed against a pool of sandboxed runtimes, so a
// single Program can serve every worker of a concurrent iteration run
// without two invocations ever sharing a runtime.
//
// The script sees two globals per invocation, item and index, and its final
// expression is the invocation's result:
//
//	prog, _ := jsop.Compile("upper", `utils.titleCase(item) + "#" + index`)
//	results, _ := iterate.Map(ctx, src, prog.MapFunc(), iterate.WithMaxConcurrent(4))
package jsop

import (
	"context"
	"fmt"

	"github.com/dop251/goja"

	apperrors "github.com/wehubfusion/Daedalus/pkg/errors"
	"github.com/wehubfusion/Daedalus/pkg/iterate"
)

// Program is a compiled, pool-backed JavaScript operation. Safe for
// concurrent use.
type Program struct {
	name string
	prog *goja.Program
	pool *vmPool
}

// Compile compiles src into a reusable Program. name appears in script
// stack traces and error messages.
func Compile(name, src string) (*Program, error) {
	if src == "" {
		return nil, apperrors.NewError("JSOP_EMPTY", "script source is empty", nil)
	}
	prog, err := goja.Compile(name, src, true)
	if err != nil {
		return nil, apperrors.NewError("JSOP_COMPILE", fmt.Sprintf("failed to compile %q", name), err)
	}
	return &Program{
		name: name,
		prog: prog,
		pool: newVMPool(defaultPoolSize),
	}, nil
}

// invoke runs the program against one item on a pooled runtime.
func (p *Program) invoke(ctx context.Context, item any, index int) (any, error) {
	vm, err := p.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.pool.release(vm)

	if err := vm.Set("item", item); err != nil {
		return nil, apperrors.NewError("JSOP_BIND", "failed to bind item", err)
	}
	if err := vm.Set("index", index); err != nil {
		return nil, apperrors.NewError("JSOP_BIND", "failed to bind index", err)
	}

	val, err := vm.RunProgram(p.prog)
	if err != nil {
		return nil, apperrors.NewError("JSOP_RUN", fmt.Sprintf("script %q failed", p.name), err)
	}
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, nil
	}
	return val.Export(), nil
}

// MapFunc adapts the program to the engine's value-producing operation shape.
func (p *Program) MapFunc() iterate.MapFunc[any, any] {
	return func(ctx context.Context, item any, index int) (any, error) {
		return p.invoke(ctx, item, index)
	}
}

// Func adapts the program to the engine's side-effecting operation shape;
// the script's result value is discarded.
func (p *Program) Func() iterate.Func[any] {
	return func(ctx context.Context, item any, index int) error {
		_, err := p.invoke(ctx, item, index)
		return err
	}
}
