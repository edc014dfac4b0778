package unwind

import "sync"

// unwindEntryKind mirrors unwind_custom.rs's UnwindEntryKind.
type unwindEntryKind int

const (
	kindNoCleanup unwindEntryKind = iota
	kindCleanup
	kindCatch
)

type unwindEntry struct {
	landingPad uintptr
	kind       unwindEntryKind
}

// currentCallAndUnwindRetAddr/exceptionHappened/exceptionData are the
// process-wide globals original_source/src/unwind/unwind_custom.rs
// declares as `#[no_mangle] static mut`; pkg/unwind/custom_arm64.s reads
// and writes them directly by symbol name from hand-written assembly,
// the same trick the Rust naked functions use.
var (
	currentCallAndUnwindRetAddr uintptr
	exceptionHappened           uint64 // 0/1, not bool: asm stores a full word
	exceptionData               uint64 // payload word; read/written directly by custom_arm64.s

	unwindInfoMu sync.RWMutex
	unwindInfo   = map[uintptr]unwindEntry{}
)

// CustomStrategy is the fully custom, table-free strategy: it keeps its
// own flat map from return address to landing pad in process memory
// instead of emitting any DWARF unwind tables, and throws/resumes via
// hand-written aarch64 assembly that walks the frame chain itself
// (ldp fp, lr, [sp], #16), mirroring unwind_custom.rs's CustomUnwinder.
// "Very fragile" in the original's own words: it assumes every frame on
// the stack between the throw site and the catch was compiled by this
// module's codegen with its fixed prologue, so it cannot unwind through
// arbitrary host frames the way the table-driven strategies can.
type CustomStrategy struct{}

func NewCustom() *CustomStrategy {
	return &CustomStrategy{}
}

func (c *CustomStrategy) Name() string       { return "custom" }
func (c *CustomStrategy) NeedsDeref() bool   { return false }
func (c *CustomStrategy) DerefOffset() int   { return 0 }
func (c *CustomStrategy) ThrowAddr() uint64  { return uint64(customThrowAddr()) }
func (c *CustomStrategy) ResumeAddr() uint64 { return uint64(customResumeAddr()) }

// Register inserts one map entry per call site, keyed by its finalized
// return address, mirroring CustomUnwinder::register_function's
// UNWIND_INFO.insert loop.
func (c *CustomStrategy) Register(fn FuncInfo) error {
	unwindInfoMu.Lock()
	defer unwindInfoMu.Unlock()
	for _, cs := range fn.CallSites {
		retAddr := fn.Addr + uintptr(cs.RetAddr)
		entry := unwindEntry{}
		switch kindOf(cs) {
		case entryNoCleanup:
			entry.kind = kindNoCleanup
		case entryCleanup:
			entry.kind = kindCleanup
			entry.landingPad = fn.Addr + uintptr(cs.LandingPad)
		case entryCatch:
			entry.kind = kindCatch
			entry.landingPad = fn.Addr + uintptr(cs.LandingPad)
		}
		unwindInfo[retAddr] = entry
	}
	return nil
}

// findLandingPad is called directly from custom_arm64.s (do_throw's and
// do_resume_unwind's naked assembly), mirroring
// unwind_custom_find_landing_pad. It returns ip itself both for the
// call-and-catch trampoline's sentinel return address and for a
// NoCleanup call site, the landing pad for a Cleanup or Catch call site
// (clearing exceptionHappened for Catch), and 0 only for an entry of
// unknown kind.
func findLandingPad(ip uintptr) uintptr {
	if ip == currentCallAndUnwindRetAddr {
		return ip
	}

	unwindInfoMu.RLock()
	entry, ok := unwindInfo[ip]
	unwindInfoMu.RUnlock()
	if !ok {
		panic("unwind: no unwind entry for return address")
	}

	switch entry.kind {
	case kindNoCleanup:
		return ip
	case kindCleanup:
		return entry.landingPad
	case kindCatch:
		exceptionHappened = 0
		return entry.landingPad
	default:
		return 0
	}
}

func (c *CustomStrategy) CallAndCatch0(fn uintptr) (uint64, uint64, bool) {
	res, threw := customCallAndCatch0(fn)
	return res, res, threw
}
func (c *CustomStrategy) CallAndCatch1(fn uintptr, a0 uint64) (uint64, uint64, bool) {
	res, threw := customCallAndCatch1(fn, a0)
	return res, res, threw
}
func (c *CustomStrategy) CallAndCatch2(fn uintptr, a0, a1 uint64) (uint64, uint64, bool) {
	res, threw := customCallAndCatch2(fn, a0, a1)
	return res, res, threw
}
