// Package unwind implements the three interchangeable unwinder strategies
// spec.md §4 describes: a toolchain-compatible eh_frame strategy that
// delegates to the platform's own personality routine (GCC-compatible), a
// fast eh_frame strategy with a bespoke personality and compact LSDA, and a
// fully custom, table-free strategy driven by hand-written aarch64 assembly.
// All three are grounded on original_source/src/unwind/{unwind_gcc,
// unwind_fast,unwind_custom}.rs; register_frame/eh_frame plumbing is
// grounded on original_source/src/unwind/unwind.rs.
package unwind

import "unsafe"

// ExceptionHeader is the fixed header every strategy prepends to a thrown
// payload before handing it to the unwinder: the _Unwind_Exception ABI
// struct (exception class, cleanup function pointer, two private words)
// that libgcc's _Unwind_RaiseException/_Unwind_Resume expect, mirroring
// original_source/src/unwind/mod.rs's JitException { base: _Unwind_Exception,
// data: usize }.
//
// The payload word itself is appended immediately after this header, so
// its offset is sizeof(ExceptionHeader) -- not a hard-coded 32, resolving
// the Open Question spec.md §9 raises about the original's hard-coded
// get_exception_data offset (which happened to equal 32 only because
// _Unwind_Exception is 8+8+16 bytes on every ABI the original ever ran on).
type ExceptionHeader struct {
	ExceptionClass   uint64
	ExceptionCleanup uintptr
	Private0         uintptr
	Private1         uintptr
}

// ExceptionHeaderSize is the payload's byte offset within a thrown
// exception block for every table-driven strategy (GCC-compatible, Fast).
var ExceptionHeaderSize = int(unsafe.Sizeof(ExceptionHeader{}))

// CallSiteInfo is the per-call-site record a Strategy's Register needs;
// it is ir.CallSite reduced to what unwind cares about, so this package
// doesn't need to import pkg/compiler's region-tagging machinery.
type CallSiteInfo struct {
	RetAddr       uint32
	LandingPad    uint32
	HasLandingPad bool
	IsCatch       bool // false means Cleanup
}

// FuncInfo describes one finalized function's machine code bounds and call
// sites, in the executable page's address space, for Strategy.Register.
type FuncInfo struct {
	Name      string
	Addr      uintptr
	Size      int
	CallSites []CallSiteInfo
}

// Strategy is the Go-native counterpart of original_source's Unwinder
// trait: the three implementations (GCCCompatible, Fast, Custom) satisfy
// the same contract so pkg/jit can swap one in without changing driver
// code, per spec.md Property P5 (the three strategies are drop-in
// interchangeable for a given program).
type Strategy interface {
	// Name identifies the strategy for logging and the CLI's --strategy flag.
	Name() string

	// NeedsDeref/DerefOffset configure pkg/codegen's Catch landing pad:
	// true+ExceptionHeaderSize for table-driven strategies (X0 holds a
	// pointer to ExceptionHeader; the payload follows it), false+0 for
	// Custom (X0 already holds the payload word).
	NeedsDeref() bool
	DerefOffset() int

	// Register installs one finalized function's unwind metadata (an
	// eh_frame FDE+LSDA registered with __register_frame, or a custom
	// in-process call-site table) so a later throw from inside it, or a
	// resume continuing past it, finds the right landing pad.
	Register(fn FuncInfo) error

	// ThrowAddr/ResumeAddr are the addresses pkg/codegen.Finalize binds
	// to the reserved "__throw"/"__resume" callees (spec.md §3's
	// ThrowCallee/ResumeCallee).
	ThrowAddr() uint64
	ResumeAddr() uint64

	// CallAndCatch{0,1,2} invoke a compiled function of the matching
	// arity as the outermost native-call trampoline (spec.md §5's
	// call_and_catch_unwind{0,1,2}), returning the normal result or,
	// if an exception propagated all the way out uncaught, the payload
	// word -- the trampoline-as-catch-frame mechanism of SPEC_FULL.md
	// §5.8 that resolves original_source's `todo!("get exception data")`.
	CallAndCatch0(fn uintptr) (result uint64, payload uint64, threw bool)
	CallAndCatch1(fn uintptr, a0 uint64) (result uint64, payload uint64, threw bool)
	CallAndCatch2(fn uintptr, a0, a1 uint64) (result uint64, payload uint64, threw bool)
}
