// Package jit is the driver tying pkg/parser, pkg/compiler, pkg/codegen
// and pkg/unwind together: spec.md §5's compile/create_data/register/
// call_and_catch_unwind{0,1,2} operations, grounded on
// original_source/src/bin/toy.rs's JIT struct and its three fresh
// jit::JIT::new(...)-per-strategy run loop in run_tests.
package jit

import (
	"unsafe"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"exlang/pkg/codegen"
	"exlang/pkg/compiler"
	"exlang/pkg/ir"
	"exlang/pkg/parser"
	"exlang/pkg/unwind"
)

// jitPageSize is a fixed, generously-sized code arena allocated once per
// JIT: cranelift-jit's real JITModule grows its code region as functions
// are added across repeated compile() calls (do_throw compiled, then
// try_catch compiled referencing it, as toy.rs's run_try_catch does);
// this module reserves one region up front instead of implementing a
// growable executable-memory allocator, which is out of spec.md's scope.
const jitPageSize = 4 << 20

// JIT compiles and runs one program against exactly one unwinder
// strategy. Running the same source under a different strategy means
// constructing a fresh JIT: original_source never reuses a JITModule
// across strategies either, since a strategy's personality/LSDA choices
// are baked into each function's unwind tables at compile time.
type JIT struct {
	strategy unwind.Strategy
	gen      *codegen.CodeGen
	page     *codegen.ExecPage
	funcs    map[string]uintptr
}

// New creates a JIT bound to one strategy (spec.md §5's "create a fresh
// JIT instance per strategy") and reserves its code arena.
func New(strategy unwind.Strategy) *JIT {
	page, err := codegen.AllocWritable(jitPageSize)
	if err != nil {
		// A failure here means the host is out of virtual memory; every
		// caller treats a JIT as always constructible, matching
		// cranelift_jit::JITModule::new's own infallible signature.
		panic(errors.Wrap(err, "jit: reserve code arena"))
	}
	return &JIT{
		strategy: strategy,
		gen:      codegen.New(),
		page:     page,
		funcs:    map[string]uintptr{},
	}
}

// CompileSource parses src, lowers every function to IR, and compiles
// the whole program, mirroring toy.rs's `jit.compile(code)`.
func (j *JIT) CompileSource(src string) error {
	p, err := parser.New(src)
	if err != nil {
		return errors.Wrap(err, "jit: parse")
	}
	funcs, err := p.ParseAll()
	if err != nil {
		return errors.Wrap(err, "jit: parse")
	}

	prog := ir.Program{Data: map[string][]byte{}}
	for _, fn := range funcs {
		out, err := compiler.Compile(fn)
		if err != nil {
			return errors.Wrapf(err, "jit: compile %q", fn.Name)
		}
		prog.Funcs = append(prog.Funcs, out)
	}
	return j.Compile(prog)
}

// CreateData registers a read-only data blob before compiling, mirroring
// toy.rs's `jit.create_data("hello_string", ...)` used by the hello
// scenario (spec.md §8).
func (j *JIT) CreateData(name string, bytes []byte) {
	j.gen.DefineData(name, bytes)
}

// Compile lowers an already-built ir.Program to machine code under this
// JIT's strategy, re-finalizes the whole accumulated code arena into
// executable memory (so a later Compile can still call an earlier one's
// functions, as run_try_catch's two jit.compile calls do), and registers
// this call's functions' unwind metadata with the strategy.
func (j *JIT) Compile(prog ir.Program) error {
	j.gen.SetExceptionMode(j.strategy.NeedsDeref(), j.strategy.DerefOffset())

	for name, bytes := range prog.Data {
		j.gen.DefineData(name, bytes)
	}

	results := make([]codegen.CompileResult, 0, len(prog.Funcs))
	for _, fn := range prog.Funcs {
		res, err := j.gen.CompileFunc(fn)
		if err != nil {
			return errors.Wrapf(err, "jit: codegen %q", fn.Name)
		}
		results = append(results, res)
	}

	if len(j.gen.Code()) > jitPageSize {
		return errors.Errorf("jit: code arena exhausted (%d bytes compiled, %d reserved)", len(j.gen.Code()), jitPageSize)
	}

	var dataBase uint64
	if data := j.gen.Data(); len(data) > 0 {
		dataBase = uint64(uintptr(unsafe.Pointer(&data[0])))
	}

	externs := map[string]uint64{
		compiler.ThrowCallee:  j.strategy.ThrowAddr(),
		compiler.ResumeCallee: j.strategy.ResumeAddr(),
		"puts":                putsAddr(),
	}

	// Re-finalizing against the whole accumulated buffer every call is
	// idempotent for call sites resolved in earlier calls; only the
	// newly emitted ones actually change.
	if err := j.gen.Finalize(uint64(j.page.Base), dataBase, externs); err != nil {
		return errors.Wrap(err, "jit: finalize relocations")
	}

	j.page.CopyIn(j.gen.Code())
	if err := j.page.MakeExecutable(); err != nil {
		return errors.Wrap(err, "jit: mprotect code page")
	}

	for _, res := range results {
		addr := j.page.Base + uintptr(res.Offset)
		j.funcs[res.Name] = addr

		infos := make([]unwind.CallSiteInfo, 0, len(res.CallSites))
		for _, cs := range res.CallSites {
			infos = append(infos, unwind.CallSiteInfo{
				RetAddr:       cs.RetAddr,
				LandingPad:    cs.LandingPad,
				HasLandingPad: cs.HasLandingPad,
				IsCatch:       cs.Kind == ir.ExcCatch,
			})
		}
		if err := j.strategy.Register(unwind.FuncInfo{
			Name:      res.Name,
			Addr:      addr,
			Size:      res.Size,
			CallSites: infos,
		}); err != nil {
			return errors.Wrapf(err, "jit: register unwind info for %q", res.Name)
		}
	}

	log.Debug().Str("strategy", j.strategy.Name()).Int("funcs", len(results)).Msg("jit: compiled program")
	return nil
}

// FuncAddr returns a compiled function's finalized entry address, for
// callers that need to go through the native-call trampolines directly.
func (j *JIT) FuncAddr(name string) (uintptr, bool) {
	addr, ok := j.funcs[name]
	return addr, ok
}

// Call0/Call1/Call2 invoke a compiled function of the matching arity
// through the active strategy's call_and_catch_unwind trampoline,
// spec.md §5's operation of the same name.
func (j *JIT) Call0(name string) (result uint64, payload uint64, threw bool, err error) {
	addr, ok := j.funcs[name]
	if !ok {
		return 0, 0, false, errors.Errorf("jit: unknown function %q", name)
	}
	r, p, t := j.strategy.CallAndCatch0(addr)
	return r, p, t, nil
}

func (j *JIT) Call1(name string, a0 uint64) (result uint64, payload uint64, threw bool, err error) {
	addr, ok := j.funcs[name]
	if !ok {
		return 0, 0, false, errors.Errorf("jit: unknown function %q", name)
	}
	r, p, t := j.strategy.CallAndCatch1(addr, a0)
	return r, p, t, nil
}

func (j *JIT) Call2(name string, a0, a1 uint64) (result uint64, payload uint64, threw bool, err error) {
	addr, ok := j.funcs[name]
	if !ok {
		return 0, 0, false, errors.Errorf("jit: unknown function %q", name)
	}
	r, p, t := j.strategy.CallAndCatch2(addr, a0, a1)
	return r, p, t, nil
}

// Close releases the compiled code page. The JIT must not be used
// afterward.
func (j *JIT) Close() error {
	if j.page == nil {
		return nil
	}
	return j.page.Close()
}
