package parser

import (
	"testing"

	"exlang/pkg/ast"
)

func mustParse(t *testing.T, src string) []ast.Func {
	t.Helper()
	p, err := New(src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	funcs, err := p.ParseAll()
	if err != nil {
		t.Fatalf("ParseAll: %v", err)
	}
	return funcs
}

func TestParseFoo(t *testing.T) {
	const src = `
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
	`
	funcs := mustParse(t, src)
	if len(funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(funcs))
	}
	fn := funcs[0]
	if fn.Name != "foo" || fn.Ret != "c" {
		t.Fatalf("unexpected decl: %+v", fn)
	}
	if len(fn.Params) != 2 || fn.Params[0] != "a" || fn.Params[1] != "b" {
		t.Fatalf("unexpected params: %+v", fn.Params)
	}
	if len(fn.Body) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(fn.Body))
	}
}

func TestParseTryCatchFinally(t *testing.T) {
	const src = `
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
	`
	funcs := mustParse(t, src)
	fn := funcs[0]
	if len(fn.Body) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(fn.Body))
	}
	outer := fn.Body[1]
	if outer.Tag != ast.TTryCatch {
		t.Fatalf("expected outer try/catch, got %v", outer.Tag)
	}
	if outer.CatchVar != "e" {
		t.Fatalf("expected catch variable 'e', got %q", outer.CatchVar)
	}
	if len(outer.Block) != 1 || outer.Block[0].Tag != ast.TTryFinally {
		t.Fatalf("expected inner try/finally, got %+v", outer.Block)
	}
}

func TestParseWhileAndRelational(t *testing.T) {
	const src = `
	fn iterative_fib(n) -> (r) {
		if n == 0 {
			r = 0
		} else {
			n = n - 1
			while n != 0 {
				n = n - 1
			}
		}
	}
	`
	funcs := mustParse(t, src)
	fn := funcs[0]
	ifElse := fn.Body[0]
	if ifElse.Tag != ast.TIfElse {
		t.Fatalf("expected if/else, got %v", ifElse.Tag)
	}
	if ifElse.Cond.Tag != ast.TBinary || ifElse.Cond.Op != ast.OpEq {
		t.Fatalf("expected == comparison, got %+v", ifElse.Cond)
	}
	loop := ifElse.Else[1]
	if loop.Tag != ast.TWhileLoop {
		t.Fatalf("expected while loop, got %v", loop.Tag)
	}
	if loop.Cond.Op != ast.OpNe {
		t.Fatalf("expected != condition, got %v", loop.Cond.Op)
	}
}

func TestParseGlobalDataAddrAndCall(t *testing.T) {
	const src = `
	fn hello() -> (r) {
		puts(&hello_string)
	}
	`
	funcs := mustParse(t, src)
	fn := funcs[0]
	call := fn.Body[0]
	if call.Tag != ast.TCall || call.Name != "puts" {
		t.Fatalf("expected call to puts, got %+v", call)
	}
	if len(call.Args) != 1 || call.Args[0].Tag != ast.TGlobalDataAddr || call.Args[0].Name != "hello_string" {
		t.Fatalf("expected &hello_string argument, got %+v", call.Args)
	}
}

func TestParseRejectsMissingCatchOrFinally(t *testing.T) {
	const src = `
	fn bad() -> (r) {
		try {
			r = 1
		}
	}
	`
	p, err := New(src)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.ParseAll(); err == nil {
		t.Fatalf("expected parse error for try without catch/finally")
	}
}
