// Package ir defines a small three-address intermediate form used between
// the frontend (pkg/compiler) and the machine emitter (pkg/codegen). It is
// deliberately not SSA — constructing SSA form is out of scope for this
// module, exactly as spec.md §1 states for the IR builder collaborator.
package ir

// Op enumerates the instructions a Block can contain.
type Op int

const (
	OpConst Op = iota
	OpMove
	OpBinary
	OpCall          // call a user function; may carry exception metadata
	OpCallExt       // call a host/extern function (e.g. puts); never throws
	OpDataAddr      // load the address of a named data symbol
	OpLandingEntry  // first pseudo-instruction of a Catch landing pad: binds Dst to the delivered exception payload
	OpResume        // call resume_unwind_func; never returns normally, continues the unwind search
)

// BinOp mirrors ast.BinOp; kept separate so pkg/ir has no dependency on
// pkg/ast (the emitter only needs to know about IR, not surface syntax).
type BinOp int

const (
	Eq BinOp = iota
	Ne
	Lt
	Le
	Gt
	Ge
	Add
	Sub
	Mul
	Div
)

// ExcKind tags a call instruction the way spec.md §3's CallSite.Kind does:
// None (no exception handling needed at this call site), Cleanup (a
// try/finally block must run before the exception continues), or Catch
// (a try/catch handler consumes the exception here).
type ExcKind int

const (
	ExcNone ExcKind = iota
	ExcCleanup
	ExcCatch
)

// Instr is one instruction in a Block.
type Instr struct {
	Op Op

	Dst string // SSA-free: a named local variable, not a temp register

	// OpConst
	Const int64

	// OpMove
	Src string

	// OpBinary
	BinOp BinOp
	Lhs   string
	Rhs   string

	// OpCall, OpCallExt
	Callee string
	Args   []string

	// OpDataAddr
	Symbol string

	// Exception metadata for OpCall (spec.md §3's CallSite, carried on
	// the IR instruction until codegen resolves it to a machine address).
	Kind       ExcKind
	LandingPad string // block label; empty when Kind == ExcNone
}

// Terminator ends a Block.
type Terminator struct {
	IsRet    bool
	RetVal   string
	IsJump   bool
	Target   string
	IsCondBr bool
	Cond     string
	TrueTgt  string
	FalseTgt string
}

// Block is a labeled straight-line sequence of instructions ending in one
// Terminator. A block that is itself a landing pad (the target of some
// other instruction's Kind/LandingPad tag) sets IsLandingPad and PadKind.
// Codegen does not read them: a Catch pad's payload binding is its
// leading OpLandingEntry instruction.
type Block struct {
	Label       string
	Instr       []Instr
	Term        Terminator
	IsLandingPad bool
	PadKind      ExcKind
}

// Func is one compiled function: parameters, locals, and blocks in
// layout order (the order blocks appear here is the order codegen emits
// machine code in, which is also the order used to resolve landing-pad
// labels to byte offsets).
type Func struct {
	Name    string
	Params  []string
	Ret     string
	Locals  []string // every local variable name assigned anywhere in the body
	Blocks  []Block
	IsThrow bool // not set by pkg/compiler: false for every compiled function, do_throw included
}

// Program is every function and every named data symbol (e.g. the
// "hello_string" byte blob scenario 4 of spec.md §8 registers).
type Program struct {
	Funcs []Func
	Data  map[string][]byte
}

// CallSite is spec.md §3's CallSite record: one entry per call
// instruction the machine emitter produced, index-aligned with the
// order calls were emitted in. RetAddr and LandingPad are byte offsets
// from the owning function's start, resolved to absolute addresses once
// the function is finalized into executable memory.
type CallSite struct {
	RetAddr       uint32
	Kind          ExcKind
	LandingPad    uint32
	HasLandingPad bool
}
