package jsop

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/dop251/goja"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// defaultPoolSize caps how many runtimes a Program will create. One runtime
// serves one invocation at a time, so this also caps the script's effective
// concurrency.
const defaultPoolSize = 16

// vmPool hands out sandboxed goja runtimes. Runtimes are created lazily up
// to the cap and reused across invocations.
type vmPool struct {
	idle    chan *goja.Runtime
	created atomic.Int32
	cap     int32
}

func newVMPool(size int) *vmPool {
	return &vmPool{
		idle: make(chan *goja.Runtime, size),
		cap:  int32(size),
	}
}

// acquire returns an idle runtime, creating one while under the cap,
// otherwise waiting until a runtime is released or ctx is cancelled.
func (p *vmPool) acquire(ctx context.Context) (*goja.Runtime, error) {
	select {
	case vm := <-p.idle:
		return vm, nil
	default:
	}

	if n := p.created.Add(1); n <= p.cap {
		return newSandboxedVM(), nil
	}
	p.created.Add(-1)

	select {
	case vm := <-p.idle:
		return vm, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *vmPool) release(vm *goja.Runtime) {
	// Drop per-invocation globals before the runtime is reused.
	_ = vm.Set("item", goja.Undefined())
	_ = vm.Set("index", goja.Undefined())
	p.idle <- vm
}

// newSandboxedVM creates a runtime with dangerous globals removed and the
// utils helper object registered.
func newSandboxedVM() *goja.Runtime {
	vm := goja.New()

	for _, name := range []string{"eval", "Function"} {
		_ = vm.Set(name, goja.Undefined())
	}

	registerUtils(vm)
	return vm
}

// registerUtils installs the utils global: small string helpers available to
// every script.
func registerUtils(vm *goja.Runtime) {
	titleCaser := cases.Title(language.Und)

	utils := vm.NewObject()
	_ = utils.Set("titleCase", func(s string) string {
		return titleCaser.String(s)
	})
	_ = utils.Set("upper", strings.ToUpper)
	_ = utils.Set("lower", strings.ToLower)
	_ = utils.Set("trim", strings.TrimSpace)
	_ = vm.Set("utils", utils)
}
