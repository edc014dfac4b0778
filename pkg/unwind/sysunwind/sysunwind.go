// Package sysunwind binds the platform's libgcc_s unwinder ABI via cgo,
// the same surface original_source/src/unwind/mod.rs declares in its two
// `extern "C"` blocks (one `#[link(name = "gcc_s")]`, one implicit). The
// table-driven strategies (GCC-compatible, Fast) use it to register their
// frames, to find the GCC personality routine, and, in the Fast
// personality, to read and set the unwind context; raising and resuming
// go through pkg/unwind's table_native.go instead. The Custom strategy
// uses none of it.
package sysunwind

/*
#cgo LDFLAGS: -lgcc_s
#include <stdint.h>
#include <stdlib.h>

typedef uint64_t _uw_word;
typedef uintptr_t _uw_ptr;

struct unwind_exception {
	uint64_t exception_class;
	void (*exception_cleanup)(int64_t, struct unwind_exception *);
	_uw_word private_1;
	_uw_word private_2;
};

extern unsigned char _Unwind_RaiseException(struct unwind_exception *);
extern void _Unwind_Resume(struct unwind_exception *) __attribute__((noreturn));
extern void _Unwind_DeleteException(struct unwind_exception *);

extern void *_Unwind_GetLanguageSpecificData(void *ctx);
extern _uw_ptr _Unwind_GetRegionStart(void *ctx);
extern _uw_ptr _Unwind_GetTextRelBase(void *ctx);
extern _uw_ptr _Unwind_GetDataRelBase(void *ctx);
extern _uw_word _Unwind_GetGR(void *ctx, int reg_index);
extern void _Unwind_SetGR(void *ctx, int reg_index, _uw_word value);
extern _uw_word _Unwind_GetIP(void *ctx);
extern void _Unwind_SetIP(void *ctx, _uw_word value);
extern _uw_word _Unwind_GetIPInfo(void *ctx, int *ip_before_insn);
extern void *_Unwind_FindEnclosingFunction(void *pc);

extern void __register_frame(const void *fde);
extern void __deregister_frame(const void *fde);

extern int __gcc_personality_v0(int version, int actions, uint64_t exception_class,
                                 struct unwind_exception *exc, void *ctx);
*/
import "C"
import "unsafe"

// Reason codes, mirroring original_source's _Unwind_Reason_Code.
const (
	URCNoReason               = 0
	URCForeignExceptionCaught = 1
	URCFatalPhase2Error       = 2
	URCFatalPhase1Error       = 3
	URCNormalStop             = 4
	URCEndOfStack             = 5
	URCHandlerFound           = 6
	URCInstallContext         = 7
	URCContinueUnwind         = 8
	URCFailure                = 9
)

// Action bits, mirroring _Unwind_Action.
const (
	UASearchPhase  = 1
	UACleanupPhase = 2
	UAHandlerFrame = 4
	UAForceUnwind  = 8
	UAEndOfStack   = 16
)

// GCCPersonalityAddr returns the address of the real libgcc
// __gcc_personality_v0, the personality routine the GCC-compatible
// strategy installs into every CIE it emits (original_source delegated to
// rustc's own `rust_eh_personality`; in a Go host process the equivalent
// "use the toolchain's real personality" is libgcc's own C++ personality,
// which correctly walks any GCC-ABI-conformant .eh_frame regardless of
// source language).
func GCCPersonalityAddr() uintptr {
	return uintptr(unsafe.Pointer(C.__gcc_personality_v0))
}

// RegisterFrame registers one .eh_frame FDE (or, on ELF hosts, the whole
// table) so the unwinder can find it, mirroring unwind.rs's
// `__register_frame(eh_frame.as_ptr())` call.
func RegisterFrame(fde unsafe.Pointer) {
	C.__register_frame(fde)
}

// GetIP/GetLanguageSpecificData/SetGR/SetIP give a custom personality
// function (pkg/unwind's Fast strategy) the same context accessors
// original_source's unwind_fast.rs uses.
func GetIP(ctx unsafe.Pointer) uint64 {
	return uint64(C._Unwind_GetIP(ctx))
}

func GetLanguageSpecificData(ctx unsafe.Pointer) unsafe.Pointer {
	return C._Unwind_GetLanguageSpecificData(ctx)
}

func SetGR(ctx unsafe.Pointer, reg int, value uint64) {
	C._Unwind_SetGR(ctx, C.int(reg), C._uw_word(value))
}

func SetIP(ctx unsafe.Pointer, value uint64) {
	C._Unwind_SetIP(ctx, C._uw_word(value))
}
