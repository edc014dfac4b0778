package compiler

import (
	"testing"

	"exlang/pkg/ast"
	"exlang/pkg/ir"
	"exlang/pkg/parser"
)

func parseOne(t *testing.T, src string) ast.Func {
	t.Helper()
	p, err := parser.New(src)
	if err != nil {
		t.Fatalf("parser.New: %v", err)
	}
	funcs, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	if len(funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(funcs))
	}
	return funcs[0]
}

func countCallSites(fn ir.Func) []ir.Instr {
	var calls []ir.Instr
	for _, b := range fn.Blocks {
		for _, in := range b.Instr {
			if in.Op == ir.OpCall || in.Op == ir.OpResume {
				calls = append(calls, in)
			}
		}
	}
	return calls
}

func TestCompileFoo(t *testing.T) {
	fn := parseOne(t, `
	fn foo(a, b) -> (c) {
		c = if a {
			if b {
				30
			} else {
				40
			}
		} else {
			50
		}
		c = c + 2
	}
	`)
	ir_, err := Compile(fn)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if len(ir_.Blocks) == 0 {
		t.Fatalf("expected at least one block")
	}
	last := ir_.Blocks[len(ir_.Blocks)-1]
	if !last.Term.IsRet || last.Term.RetVal != "c" {
		t.Fatalf("expected final block to return 'c', got %+v", last.Term)
	}
}

func TestCompileTryCatchTagsCallSites(t *testing.T) {
	fn := parseOne(t, `
	fn try_catch(n) -> (r) {
		c = 0
		try {
			try {
				do_throw()
			} finally {
				c = 1
			}
		} catch e {
			r = e + c
		}
	}
	`)
	out, err := Compile(fn)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	calls := countCallSites(out)
	var throwCall, resumeCall *ir.Instr
	for i := range calls {
		switch calls[i].Op {
		case ir.OpCall:
			if calls[i].Callee == "do_throw" {
				throwCall = &calls[i]
			}
		case ir.OpResume:
			resumeCall = &calls[i]
		}
	}
	if throwCall == nil {
		t.Fatalf("expected a call to do_throw")
	}
	if throwCall.Kind != ir.ExcCleanup {
		t.Fatalf("expected do_throw() call site tagged Cleanup, got %v", throwCall.Kind)
	}
	if resumeCall == nil {
		t.Fatalf("expected a resume call site in the finally landing pad")
	}
	if resumeCall.Kind != ir.ExcCatch {
		t.Fatalf("expected __resume call site tagged Catch (outer try), got %v", resumeCall.Kind)
	}

	var catchBlocks, cleanupBlocks int
	for _, b := range out.Blocks {
		if b.IsLandingPad {
			switch b.PadKind {
			case ir.ExcCatch:
				catchBlocks++
			case ir.ExcCleanup:
				cleanupBlocks++
			}
		}
	}
	if catchBlocks != 1 || cleanupBlocks != 1 {
		t.Fatalf("expected exactly one catch and one cleanup landing pad, got catch=%d cleanup=%d", catchBlocks, cleanupBlocks)
	}
}

func TestCompileThrowReservedName(t *testing.T) {
	fn := parseOne(t, `
	fn bad() -> (r) {
		__throw(1)
	}
	`)
	if _, err := Compile(fn); err == nil {
		t.Fatalf("expected error calling reserved name __throw directly")
	}
}

func TestCompileIterativeFib(t *testing.T) {
	fn := parseOne(t, `
	fn iterative_fib(n) -> (r) {
		if n == 0 {
			r = 0
		} else {
			n = n - 1
			a = 0
			r = 1
			while n != 0 {
				t = r
				r = r + a
				a = t
				n = n - 1
			}
		}
	}
	`)
	out, err := Compile(fn)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	var hasLoop bool
	for _, b := range out.Blocks {
		if b.Term.IsCondBr && b.Term.TrueTgt != "" {
			for _, target := range []string{b.Term.TrueTgt, b.Term.FalseTgt} {
				for _, b2 := range out.Blocks {
					if b2.Label == target && b2.Term.IsJump && b2.Term.Target == b.Label {
						hasLoop = true
					}
				}
			}
		}
	}
	if !hasLoop {
		t.Fatalf("expected a loop back-edge in compiled iterative_fib")
	}
}
