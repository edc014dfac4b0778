// Package compiler lowers pkg/ast function declarations into pkg/ir
// programs, implementing the frontend lowering rules of this module's
// exception design: throw/try-catch/try-finally become tagged calls and
// landing-pad blocks (spec.md §4.1), rather than a generic exception
// type hierarchy. This mirrors the teacher's pkg/compiler/compiler.go
// (AST -> lower-level form) but the lowering target is pkg/ir instead of
// C source text, and the "ownership/region/purity" passes the teacher
// threaded through lowering do not apply to this language and are gone.
package compiler

import (
	"fmt"

	"github.com/pkg/errors"

	"exlang/pkg/ast"
	"exlang/pkg/ir"
)

type region struct {
	kind       ir.ExcKind
	landingPad string
}

// Compiler lowers one function at a time. A fresh Compiler is used per
// function (matching the teacher's per-function Compiler lifecycle in
// pkg/compiler/compiler.go).
type Compiler struct {
	blocks  []ir.Block
	cur     int
	locals  map[string]bool
	order   []string
	tmp     int
	label   int
	regions []region
}

// ThrowCallee and ResumeCallee are the reserved callee names the
// compiler emits for `throw` and for a try/finally landing pad's
// continuation; pkg/jit binds them to the active strategy's throw_func
// and resume_unwind_func (spec.md §4.2).
const ThrowCallee = "__throw"
const ResumeCallee = "__resume"

// Compile lowers a single function declaration.
func Compile(fn ast.Func) (ir.Func, error) {
	c := &Compiler{locals: map[string]bool{}}
	for _, p := range fn.Params {
		c.addLocal(p)
	}
	c.addLocal(fn.Ret)

	c.cur = c.newBlock("entry")
	if err := c.compileStmts(fn.Body); err != nil {
		return ir.Func{}, errors.Wrapf(err, "compiling function %q", fn.Name)
	}
	c.block().Term = ir.Terminator{IsRet: true, RetVal: fn.Ret}

	return ir.Func{
		Name:   fn.Name,
		Params: fn.Params,
		Ret:    fn.Ret,
		Locals: c.order,
		Blocks: c.blocks,
	}, nil
}

func (c *Compiler) newBlock(label string) int {
	c.blocks = append(c.blocks, ir.Block{Label: label})
	return len(c.blocks) - 1
}

func (c *Compiler) block() *ir.Block { return &c.blocks[c.cur] }

func (c *Compiler) newLabel(prefix string) string {
	c.label++
	return fmt.Sprintf("%s_%d", prefix, c.label)
}

func (c *Compiler) newTemp() string {
	c.tmp++
	name := fmt.Sprintf("%%t%d", c.tmp)
	c.addLocal(name)
	return name
}

func (c *Compiler) addLocal(name string) {
	if !c.locals[name] {
		c.locals[name] = true
		c.order = append(c.order, name)
	}
}

func (c *Compiler) pushRegion(kind ir.ExcKind, landingPad string) {
	c.regions = append(c.regions, region{kind, landingPad})
}

func (c *Compiler) popRegion() { c.regions = c.regions[:len(c.regions)-1] }

func (c *Compiler) topRegion() (ir.ExcKind, string) {
	if len(c.regions) == 0 {
		return ir.ExcNone, ""
	}
	r := c.regions[len(c.regions)-1]
	return r.kind, r.landingPad
}

func (c *Compiler) emit(i ir.Instr) {
	c.block().Instr = append(c.block().Instr, i)
}

func isBareExpr(e ast.Expr) bool {
	switch e.Tag {
	case ast.TLiteral, ast.TIdentifier, ast.TGlobalDataAddr, ast.TBinary, ast.TCall, ast.TIfElse:
		return true
	default:
		return false
	}
}

func (c *Compiler) compileStmts(stmts []ast.Expr) error {
	for _, s := range stmts {
		if err := c.compileStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) compileStmt(e ast.Expr) error {
	switch e.Tag {
	case ast.TAssign:
		val, err := c.compileExpr(*e.Rhs)
		if err != nil {
			return err
		}
		c.addLocal(e.Name)
		c.emit(ir.Instr{Op: ir.OpMove, Dst: e.Name, Src: val})
		return nil
	case ast.TWhileLoop:
		return c.compileWhile(e)
	case ast.TTryCatch:
		return c.compileTryCatch(e)
	case ast.TTryFinally:
		return c.compileTryFinally(e)
	case ast.TThrow:
		return c.compileThrow(e)
	default:
		_, err := c.compileExpr(e)
		return err
	}
}

// compileExpr lowers an expression-position node and returns the name of
// the local/temp holding its value.
func (c *Compiler) compileExpr(e ast.Expr) (string, error) {
	switch e.Tag {
	case ast.TLiteral:
		t := c.newTemp()
		c.emit(ir.Instr{Op: ir.OpConst, Dst: t, Const: e.Int})
		return t, nil
	case ast.TIdentifier:
		c.addLocal(e.Name)
		return e.Name, nil
	case ast.TGlobalDataAddr:
		t := c.newTemp()
		c.emit(ir.Instr{Op: ir.OpDataAddr, Dst: t, Symbol: e.Name})
		return t, nil
	case ast.TBinary:
		l, err := c.compileExpr(*e.Left)
		if err != nil {
			return "", err
		}
		r, err := c.compileExpr(*e.Right)
		if err != nil {
			return "", err
		}
		t := c.newTemp()
		c.emit(ir.Instr{Op: ir.OpBinary, Dst: t, BinOp: ir.BinOp(e.Op), Lhs: l, Rhs: r})
		return t, nil
	case ast.TCall:
		if e.Name == ThrowCallee || e.Name == ResumeCallee {
			return "", errors.Errorf("compiler: %q is a reserved function name", e.Name)
		}
		args := make([]string, 0, len(e.Args))
		for _, a := range e.Args {
			v, err := c.compileExpr(a)
			if err != nil {
				return "", err
			}
			args = append(args, v)
		}
		t := c.newTemp()
		kind, pad := c.topRegion()
		c.emit(ir.Instr{Op: ir.OpCall, Dst: t, Callee: e.Name, Args: args, Kind: kind, LandingPad: pad})
		return t, nil
	case ast.TIfElse:
		return c.compileIfElse(e)
	default:
		return "", errors.Errorf("compiler: tag %v cannot appear in expression position", e.Tag)
	}
}

// compileExprBlock lowers a statement list used in expression position
// (an if/else branch): every statement but the last runs for effect, and
// the last, if itself an expression, supplies the block's value.
func (c *Compiler) compileExprBlock(stmts []ast.Expr) (string, error) {
	if len(stmts) == 0 {
		t := c.newTemp()
		c.emit(ir.Instr{Op: ir.OpConst, Dst: t, Const: 0})
		return t, nil
	}
	for _, s := range stmts[:len(stmts)-1] {
		if err := c.compileStmt(s); err != nil {
			return "", err
		}
	}
	last := stmts[len(stmts)-1]
	if isBareExpr(last) {
		return c.compileExpr(last)
	}
	if err := c.compileStmt(last); err != nil {
		return "", err
	}
	if last.Tag == ast.TAssign {
		return last.Name, nil
	}
	t := c.newTemp()
	c.emit(ir.Instr{Op: ir.OpConst, Dst: t, Const: 0})
	return t, nil
}

func (c *Compiler) compileIfElse(e ast.Expr) (string, error) {
	thenL := c.newLabel("then")
	elseL := c.newLabel("else")
	joinL := c.newLabel("endif")

	cond, err := c.compileExpr(*e.Cond)
	if err != nil {
		return "", err
	}
	c.block().Term = ir.Terminator{IsCondBr: true, Cond: cond, TrueTgt: thenL, FalseTgt: elseL}
	result := c.newTemp()

	c.cur = c.newBlock(thenL)
	thenVal, err := c.compileExprBlock(e.Then)
	if err != nil {
		return "", err
	}
	c.emit(ir.Instr{Op: ir.OpMove, Dst: result, Src: thenVal})
	c.block().Term = ir.Terminator{IsJump: true, Target: joinL}

	c.cur = c.newBlock(elseL)
	elseVal, err := c.compileExprBlock(e.Else)
	if err != nil {
		return "", err
	}
	c.emit(ir.Instr{Op: ir.OpMove, Dst: result, Src: elseVal})
	c.block().Term = ir.Terminator{IsJump: true, Target: joinL}

	c.cur = c.newBlock(joinL)
	return result, nil
}

func (c *Compiler) compileWhile(e ast.Expr) error {
	headL := c.newLabel("while_head")
	bodyL := c.newLabel("while_body")
	exitL := c.newLabel("while_exit")

	c.block().Term = ir.Terminator{IsJump: true, Target: headL}
	c.cur = c.newBlock(headL)
	cond, err := c.compileExpr(*e.Cond)
	if err != nil {
		return err
	}
	c.block().Term = ir.Terminator{IsCondBr: true, Cond: cond, TrueTgt: bodyL, FalseTgt: exitL}

	c.cur = c.newBlock(bodyL)
	if err := c.compileStmts(e.Body); err != nil {
		return err
	}
	c.block().Term = ir.Terminator{IsJump: true, Target: headL}

	c.cur = c.newBlock(exitL)
	return nil
}

func (c *Compiler) compileTryCatch(e ast.Expr) error {
	catchL := c.newLabel("catch")
	contL := c.newLabel("after_try")

	c.pushRegion(ir.ExcCatch, catchL)
	if err := c.compileStmts(e.Block); err != nil {
		return err
	}
	c.popRegion()
	c.block().Term = ir.Terminator{IsJump: true, Target: contL}

	c.cur = c.newBlock(catchL)
	c.block().IsLandingPad = true
	c.block().PadKind = ir.ExcCatch
	c.addLocal(e.CatchVar)
	c.emit(ir.Instr{Op: ir.OpLandingEntry, Dst: e.CatchVar})
	if err := c.compileStmts(e.Handler); err != nil {
		return err
	}
	c.block().Term = ir.Terminator{IsJump: true, Target: contL}

	c.cur = c.newBlock(contL)
	return nil
}

func (c *Compiler) compileTryFinally(e ast.Expr) error {
	finL := c.newLabel("finally")
	contL := c.newLabel("after_try")

	c.pushRegion(ir.ExcCleanup, finL)
	if err := c.compileStmts(e.Block); err != nil {
		return err
	}
	c.popRegion()

	// Normal (non-exceptional) path: the finally body runs inline.
	if err := c.compileStmts(e.Handler); err != nil {
		return err
	}
	c.block().Term = ir.Terminator{IsJump: true, Target: contL}

	// Exceptional path: the same finally body runs again as a landing
	// pad, then the search continues toward whichever region was active
	// outside this try/finally (SPEC_FULL.md §5.8).
	c.cur = c.newBlock(finL)
	c.block().IsLandingPad = true
	c.block().PadKind = ir.ExcCleanup
	if err := c.compileStmts(e.Handler); err != nil {
		return err
	}
	outerKind, outerPad := c.topRegion()
	t := c.newTemp()
	c.emit(ir.Instr{Op: ir.OpResume, Dst: t, Callee: ResumeCallee, Kind: outerKind, LandingPad: outerPad})
	c.block().Term = ir.Terminator{IsRet: true, RetVal: t}

	c.cur = c.newBlock(contL)
	return nil
}

func (c *Compiler) compileThrow(e ast.Expr) error {
	val, err := c.compileExpr(*e.Value)
	if err != nil {
		return err
	}
	t := c.newTemp()
	kind, pad := c.topRegion()
	c.emit(ir.Instr{Op: ir.OpCall, Dst: t, Callee: ThrowCallee, Args: []string{val}, Kind: kind, LandingPad: pad})
	c.block().Term = ir.Terminator{IsRet: true, RetVal: t}
	c.cur = c.newBlock(c.newLabel("unreachable"))
	return nil
}
