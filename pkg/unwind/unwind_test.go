package unwind

import (
	"testing"

	"exlang/pkg/ir"
	"exlang/pkg/unwind/sysunwind"
)

func TestExceptionHeaderSizeMatchesStruct(t *testing.T) {
	// Resolves the Open Question spec.md §9 raises about the original's
	// hard-coded offset 32: it must equal sizeof(ExceptionHeader), not a
	// literal constant, so a change to the header layout can't silently
	// desync codegen's landing-pad dereference.
	if ExceptionHeaderSize != 32 {
		t.Fatalf("expected ExceptionHeaderSize to be 32 on a 64-bit ABI (4 pointer-sized fields), got %d", ExceptionHeaderSize)
	}
}

func TestStrategiesAgreeWithExceptionHeaderSize(t *testing.T) {
	for _, s := range []Strategy{NewGCCCompatible(), NewFast()} {
		if !s.NeedsDeref() {
			t.Fatalf("%s: table-driven strategy must need a deref", s.Name())
		}
		if s.DerefOffset() != ExceptionHeaderSize {
			t.Fatalf("%s: deref offset %d != ExceptionHeaderSize %d", s.Name(), s.DerefOffset(), ExceptionHeaderSize)
		}
	}
	c := NewCustom()
	if c.NeedsDeref() {
		t.Fatalf("custom strategy must not need a deref")
	}
}

func TestGCCAndFastAreDistinctStrategies(t *testing.T) {
	// Open Question #1: toy.rs's EhFrameUnwinder::new_gcc and ::new_fast
	// both built a GccLandingpadStrategy -- a labeling bug. Here the two
	// constructors must produce strategies with different personality
	// addresses and names.
	g := NewGCCCompatible()
	f := NewFast()
	if g.Name() == f.Name() {
		t.Fatalf("GCC and Fast strategies must be distinguishable: both named %q", g.Name())
	}
	if f.personality == sysunwind.GCCPersonalityAddr() {
		t.Fatalf("Fast strategy must not use the GCC-compatible strategy's personality routine")
	}
}

func sampleCallSites() []CallSiteInfo {
	return []CallSiteInfo{
		{RetAddr: 8, HasLandingPad: false},
		{RetAddr: 20, HasLandingPad: true, LandingPad: 40, IsCatch: false},
		{RetAddr: 52, HasLandingPad: true, LandingPad: 80, IsCatch: true},
	}
}

func TestKindOf(t *testing.T) {
	cs := sampleCallSites()
	if kindOf(cs[0]) != entryNoCleanup {
		t.Fatalf("expected entryNoCleanup")
	}
	if kindOf(cs[1]) != entryCleanup {
		t.Fatalf("expected entryCleanup")
	}
	if kindOf(cs[2]) != entryCatch {
		t.Fatalf("expected entryCatch")
	}
}

func TestBuildFastLSDARoundTripsCallSiteCount(t *testing.T) {
	fn := FuncInfo{Name: "f", Addr: 0x1000, Size: 64, CallSites: sampleCallSites()}
	lsda := buildFastLSDA(fn)

	// 8 (func addr) + 3 * (4+1+4) + 4 (terminator)
	want := 8 + 3*9 + 4
	if len(lsda) != want {
		t.Fatalf("expected lsda length %d, got %d", want, len(lsda))
	}
}

func TestBuildGccExceptTableNonEmpty(t *testing.T) {
	fn := FuncInfo{Name: "f", Addr: 0x2000, Size: 64, CallSites: sampleCallSites()}
	table := buildGccExceptTable(fn)
	if len(table) == 0 {
		t.Fatalf("expected a non-empty except-table")
	}
}

func TestBuildCIEAndFDEAreFourByteAligned(t *testing.T) {
	cie := buildCIE(0xdeadbeef)
	if len(cie)%4 != 0 {
		t.Fatalf("CIE length must be 4-byte aligned, got %d", len(cie))
	}
	fde := buildFDE(uint32(len(cie)), 0x1000, 64, 0x3000)
	if len(fde)%4 != 0 {
		t.Fatalf("FDE length must be 4-byte aligned, got %d", len(fde))
	}
}

func TestCallSiteInfoFromIRCallSite(t *testing.T) {
	cs := ir.CallSite{RetAddr: 4, Kind: ir.ExcCatch, LandingPad: 12, HasLandingPad: true}
	info := CallSiteInfo{RetAddr: cs.RetAddr, LandingPad: cs.LandingPad, HasLandingPad: cs.HasLandingPad, IsCatch: cs.Kind == ir.ExcCatch}
	if !info.IsCatch {
		t.Fatalf("expected IsCatch true for ir.ExcCatch")
	}
}
