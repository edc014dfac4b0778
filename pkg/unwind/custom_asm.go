package unwind

// customDoThrow/customDoResumeUnwind are implemented in custom_arm64.s;
// neither is ever called from Go -- only their addresses (via
// customThrowAddr/customResumeAddr) are handed to pkg/codegen.Finalize
// as the "__throw"/"__resume" extern targets JIT-generated code calls
// directly.
func customDoThrow(exception uint64)
func customDoResumeUnwind(exception uintptr)

func customThrowAddr() uintptr
func customResumeAddr() uintptr

// customCallAndCatch{0,1,2} are the Custom strategy's native-call
// trampolines, implemented in custom_arm64.s, mirroring
// unwind_custom.rs's call_and_catch_unwind{0,1,2}.
func customCallAndCatch0(fn uintptr) (res uint64, threw bool)
func customCallAndCatch1(fn uintptr, a0 uint64) (res uint64, threw bool)
func customCallAndCatch2(fn uintptr, a0, a1 uint64) (res uint64, threw bool)
