package codegen

import (
	"testing"

	"exlang/pkg/compiler"
	"exlang/pkg/ir"
	"exlang/pkg/parser"
)

func compileSource(t *testing.T, src string) ir.Func {
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
	out, err := compiler.Compile(funcs[0])
	if err != nil {
		t.Fatalf("compiler.Compile: %v", err)
	}
	return out
}

func TestCompileFuncFoo(t *testing.T) {
	fn := compileSource(t, `
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
	g := New()
	res, err := g.CompileFunc(fn)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	if res.Size == 0 {
		t.Fatalf("expected non-empty machine code")
	}
	if res.Size%4 != 0 {
		t.Fatalf("arm64 code size must be a multiple of 4, got %d", res.Size)
	}
	if off, ok := g.FuncOffset("foo"); !ok || off != res.Offset {
		t.Fatalf("function offset not recorded correctly: %d vs %d", off, res.Offset)
	}
}

func TestCompileFuncTryCatchCallSites(t *testing.T) {
	fn := compileSource(t, `
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
	g := New()
	res, err := g.CompileFunc(fn)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	if len(res.CallSites) != 2 {
		t.Fatalf("expected 2 call sites (do_throw, __resume), got %d", len(res.CallSites))
	}
	for _, cs := range res.CallSites {
		if cs.Kind == ir.ExcNone {
			continue
		}
		if !cs.HasLandingPad {
			t.Fatalf("call site with Kind=%v must carry a landing pad", cs.Kind)
		}
		if int(cs.LandingPad) >= res.Size {
			t.Fatalf("landing pad offset %d out of bounds (function size %d)", cs.LandingPad, res.Size)
		}
	}
}

func TestDataSymbolFixup(t *testing.T) {
	fn := compileSource(t, `
	fn hello() -> (r) {
		puts(&hello_string)
	}
	`)
	g := New()
	g.DefineData("hello_string", []byte("hello world!\x00"))
	res, err := g.CompileFunc(fn)
	if err != nil {
		t.Fatalf("CompileFunc: %v", err)
	}
	if err := g.Finalize(0x1000, 0x2000, map[string]uint64{"puts": 0x3000}); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.Size == 0 {
		t.Fatalf("expected machine code")
	}
}
