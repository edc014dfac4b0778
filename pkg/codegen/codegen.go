package codegen

import (
	"github.com/pkg/errors"

	"exlang/pkg/ir"
)

// CallFixup records a location in code that needs a relative BL target
// (or, for a data-address load, an absolute value) patched once every
// function and data symbol's final address is known, mirroring
// tinyrange-rtg/std/compiler/backend.go's CallFixup.
type CallFixup struct {
	CodeOffset int
	Target     string // function name, or "$data$name" for a data symbol
	IsLoadImm  bool   // true: patch a 4-insn MOVZ/MOVK load; false: patch a BL
}

// branchFixup records a location that needs an intra-function branch
// target patched once label offsets are known.
type branchFixup struct {
	codeOffset int
	label      string
	cond       bool // true: B.cond (19-bit imm); false: B (26-bit imm)
}

type pendingPad struct {
	idx   int
	label string
}

// CodeGen assembles one arm64 function at a time into a shared code
// buffer, recording call sites and a data section, the way
// tinyrange-rtg's CodeGen accumulates .text/.rodata/.data across an
// entire module compile.
type CodeGen struct {
	code []byte
	data []byte

	funcOffsets map[string]int
	dataSymbols map[string]int
	callFixups  []CallFixup

	curFuncStart int
	labelOffsets map[string]int
	branchFixups []branchFixup
	pendingPads  []pendingPad

	localSlot map[string]int
	frameSize int

	// excNeedsDeref/excDerefOffset: how a Catch landing pad turns the
	// value the unwinder delivers in X0 into the payload word bound to
	// the catch variable. Table-driven strategies deliver a pointer to
	// an unwind.ExceptionHeader and the payload sits after it; the
	// custom strategy delivers the payload word directly
	// (unwind_custom.rs's get_exception_data returns exception_val
	// unchanged). Set via SetExceptionMode before compiling a program
	// for a given strategy.
	excNeedsDeref  bool
	excDerefOffset int

	callSites []ir.CallSite
}

// New creates an empty module-wide code generator.
func New() *CodeGen {
	return &CodeGen{
		funcOffsets: map[string]int{},
		dataSymbols: map[string]int{},
	}
}

// SetExceptionMode configures how a Catch landing pad extracts the
// payload word from whatever the active unwinder strategy delivers in
// X0. needsDeref=false means X0 already holds the payload (the custom
// strategy); needsDeref=true means X0 holds a pointer and the payload is
// at *(X0+derefOffset) (the table-driven strategies, derefOffset =
// unsafe.Sizeof(unwind.ExceptionHeader{}), resolving the Open Question
// spec.md §9 flags about the hard-coded offset in the original source).
func (g *CodeGen) SetExceptionMode(needsDeref bool, derefOffset int) {
	g.excNeedsDeref = needsDeref
	g.excDerefOffset = derefOffset
}

// DefineData appends a named, read-only byte blob (e.g. the
// "hello_string" scenario of spec.md §8) and records its data-section
// offset for later GlobalDataAddr resolution.
func (g *CodeGen) DefineData(name string, bytes []byte) {
	g.dataSymbols[name] = len(g.data)
	g.data = append(g.data, bytes...)
}

// Code returns the accumulated machine code buffer (valid after all
// functions are compiled and Finalize has patched every fixup).
func (g *CodeGen) Code() []byte { return g.code }

// Data returns the accumulated data section.
func (g *CodeGen) Data() []byte { return g.data }

// FuncOffset returns a compiled function's offset within Code().
func (g *CodeGen) FuncOffset(name string) (int, bool) {
	off, ok := g.funcOffsets[name]
	return off, ok
}

// DataOffset returns a defined data symbol's offset within Data().
func (g *CodeGen) DataOffset(name string) (int, bool) {
	off, ok := g.dataSymbols[name]
	return off, ok
}

// CompileResult is one function's machine code bounds and call sites
// within the shared buffer, in the layout order spec.md §3 requires
// (index-aligned with emission order).
type CompileResult struct {
	Name      string
	Offset    int
	Size      int
	CallSites []ir.CallSite
}

// CompileFunc lowers one ir.Func into the shared code buffer.
func (g *CodeGen) CompileFunc(fn ir.Func) (CompileResult, error) {
	start := len(g.code)
	g.curFuncStart = start
	g.funcOffsets[fn.Name] = start
	g.labelOffsets = map[string]int{}
	g.branchFixups = nil
	g.pendingPads = nil
	g.callSites = nil

	g.layoutFrame(fn)
	g.emitPrologue(fn)

	for bi, b := range fn.Blocks {
		g.labelOffsets[b.Label] = len(g.code) - start
		for _, in := range b.Instr {
			if err := g.compileInstr(in); err != nil {
				return CompileResult{}, errors.Wrapf(err, "function %q block %d", fn.Name, bi)
			}
		}
		g.compileTerm(b.Term)
	}

	for _, f := range g.branchFixups {
		target, ok := g.labelOffsets[f.label]
		if !ok {
			return CompileResult{}, errors.Errorf("function %q: undefined label %q", fn.Name, f.label)
		}
		delta := (start + target) - f.codeOffset
		if f.cond {
			g.patchBCond19(f.codeOffset, delta)
		} else {
			g.patchBranch26(f.codeOffset, delta)
		}
	}

	for _, p := range g.pendingPads {
		target, ok := g.labelOffsets[p.label]
		if !ok {
			return CompileResult{}, errors.Errorf("function %q: undefined landing pad label %q", fn.Name, p.label)
		}
		g.callSites[p.idx].LandingPad = uint32(target)
	}

	size := len(g.code) - start
	return CompileResult{Name: fn.Name, Offset: start, Size: size, CallSites: g.callSites}, nil
}

func (g *CodeGen) layoutFrame(fn ir.Func) {
	g.localSlot = map[string]int{}
	// Offsets 0 and 8 are reserved for saved FP/LR at the bottom of the
	// frame, matching the custom strategy's `ldp fp, lr, [sp], #16`
	// frame-pop convention (SPEC_FULL.md §5.8, DESIGN.md).
	offset := 16
	for _, l := range fn.Locals {
		g.localSlot[l] = offset
		offset += 8
	}
	g.frameSize = (offset + 15) &^ 15
}

func (g *CodeGen) emitPrologue(fn ir.Func) {
	g.emitSubImm(RegSP, RegSP, uint16(g.frameSize))
	g.emitStrImm(RegFP, RegSP, 0)
	g.emitStrImm(RegLR, RegSP, 8)
	argRegs := []int{RegX0, RegX1, RegX2}
	for i, p := range fn.Params {
		if i < len(argRegs) {
			g.emitStrImm(argRegs[i], RegSP, uint16(g.localSlot[p]))
		}
	}
}

func (g *CodeGen) emitEpilogue() {
	g.emitLdrImm(RegFP, RegSP, 0)
	g.emitLdrImm(RegLR, RegSP, 8)
	g.emitAddImm(RegSP, RegSP, uint16(g.frameSize))
	g.emitRet()
}

func (g *CodeGen) compileInstr(in ir.Instr) error {
	switch in.Op {
	case ir.OpConst:
		g.emitLoadImm64(RegX9, uint64(in.Const))
		g.emitStrImm(RegX9, RegSP, uint16(g.slot(in.Dst)))
	case ir.OpMove:
		g.emitLdrImm(RegX9, RegSP, uint16(g.slot(in.Src)))
		g.emitStrImm(RegX9, RegSP, uint16(g.slot(in.Dst)))
	case ir.OpBinary:
		g.emitLdrImm(RegX9, RegSP, uint16(g.slot(in.Lhs)))
		g.emitLdrImm(RegX10, RegSP, uint16(g.slot(in.Rhs)))
		if err := g.compileBinOp(in.BinOp); err != nil {
			return err
		}
		g.emitStrImm(RegX9, RegSP, uint16(g.slot(in.Dst)))
	case ir.OpDataAddr:
		if _, ok := g.dataSymbols[in.Symbol]; !ok {
			return errors.Errorf("codegen: undefined data symbol %q", in.Symbol)
		}
		g.callFixups = append(g.callFixups, CallFixup{CodeOffset: len(g.code), Target: "$data$" + in.Symbol, IsLoadImm: true})
		g.emitLoadImm64(RegX9, 0)
		g.emitStrImm(RegX9, RegSP, uint16(g.slot(in.Dst)))
	case ir.OpCall, ir.OpResume:
		for i, a := range in.Args {
			if i < 2 {
				g.emitLdrImm([]int{RegX0, RegX1}[i], RegSP, uint16(g.slot(a)))
			}
		}
		callee := in.Callee
		g.callFixups = append(g.callFixups, CallFixup{CodeOffset: len(g.code), Target: callee})
		g.emitBLPlaceholder()
		retOff := len(g.code) - g.curFuncStart
		g.emitStrImm(RegX0, RegSP, uint16(g.slot(in.Dst)))

		cs := ir.CallSite{RetAddr: uint32(retOff), Kind: in.Kind}
		if in.LandingPad != "" {
			cs.HasLandingPad = true
			g.pendingPads = append(g.pendingPads, pendingPad{idx: len(g.callSites), label: in.LandingPad})
		}
		g.callSites = append(g.callSites, cs)
	case ir.OpLandingEntry:
		if g.excNeedsDeref {
			g.emitLdrImm(RegX9, RegX0, uint16(g.excDerefOffset))
			g.emitStrImm(RegX9, RegSP, uint16(g.slot(in.Dst)))
		} else {
			g.emitStrImm(RegX0, RegSP, uint16(g.slot(in.Dst)))
		}
	default:
		return errors.Errorf("codegen: unknown op %v", in.Op)
	}
	return nil
}

func (g *CodeGen) compileBinOp(op ir.BinOp) error {
	switch op {
	case ir.Add:
		g.emitAddReg(RegX9, RegX9, RegX10)
	case ir.Sub:
		g.emitSubReg(RegX9, RegX9, RegX10)
	case ir.Mul:
		g.emitMulReg(RegX9, RegX9, RegX10)
	case ir.Div:
		g.emitSDivReg(RegX9, RegX9, RegX10)
	case ir.Eq:
		g.emitCmpReg(RegX9, RegX10)
		g.emitCSet(RegX9, CondEQ)
	case ir.Ne:
		g.emitCmpReg(RegX9, RegX10)
		g.emitCSet(RegX9, CondNE)
	case ir.Lt:
		g.emitCmpReg(RegX9, RegX10)
		g.emitCSet(RegX9, CondLT)
	case ir.Le:
		g.emitCmpReg(RegX9, RegX10)
		g.emitCSet(RegX9, CondLE)
	case ir.Gt:
		g.emitCmpReg(RegX9, RegX10)
		g.emitCSet(RegX9, CondGT)
	case ir.Ge:
		g.emitCmpReg(RegX9, RegX10)
		g.emitCSet(RegX9, CondGE)
	default:
		return errors.Errorf("codegen: unknown binop %v", op)
	}
	return nil
}

func (g *CodeGen) compileTerm(t ir.Terminator) {
	switch {
	case t.IsCondBr:
		g.emitLdrImm(RegX9, RegSP, uint16(g.slot(t.Cond)))
		g.emit32(0xF100013F | uint32(RegX9&0x1f)<<5) // CMP X9, #0
		g.branchFixups = append(g.branchFixups, branchFixup{codeOffset: len(g.code), label: t.FalseTgt, cond: true})
		g.emitBCondPlaceholder(CondEQ)
		g.branchFixups = append(g.branchFixups, branchFixup{codeOffset: len(g.code), label: t.TrueTgt})
		g.emitBPlaceholder()
	case t.IsJump:
		g.branchFixups = append(g.branchFixups, branchFixup{codeOffset: len(g.code), label: t.Target})
		g.emitBPlaceholder()
	case t.IsRet:
		g.emitLdrImm(RegX0, RegSP, uint16(g.slot(t.RetVal)))
		g.emitEpilogue()
	}
}

func (g *CodeGen) slot(name string) int {
	return g.localSlot[name]
}
