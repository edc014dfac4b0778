package unwind

/*
#include <stdint.h>

extern int goFastPersonality(int version, int actions, uint64_t exception_class,
                              void *exception_object, void *context);

static void *fast_personality_addr(void) { return (void *)goFastPersonality; }
*/
import "C"
import (
	"encoding/binary"
	"unsafe"

	"exlang/pkg/unwind/sysunwind"
)

// fastPersonalityAddr returns a C-callable function pointer to
// goFastPersonality, the same trick cgo's own documentation uses for
// handing Go-exported functions to C callback APIs: declare the exported
// symbol extern in the preamble, then take its address from a tiny C
// helper, since cgo forbids `&C.goFastPersonality` directly.
func fastPersonalityAddr() uintptr {
	return uintptr(C.fast_personality_addr())
}

const (
	entryKindNoCleanupByte = 1
	entryKindCleanupByte   = 2
	entryKindCatchByte     = 3
)

//export goFastPersonality
func goFastPersonality(version C.int, actions C.int, exceptionClass C.uint64_t, exceptionObject unsafe.Pointer, ctx unsafe.Pointer) C.int {
	ip := sysunwind.GetIP(ctx)
	lsda := sysunwind.GetLanguageSpecificData(ctx)
	if lsda == nil {
		return sysunwind.URCContinueUnwind
	}

	funcStart := binary.LittleEndian.Uint64(unsafe.Slice((*byte)(lsda), 8))
	funcOffset := uint32(ip - funcStart)

	entry := unsafe.Add(lsda, 8)
	for {
		entryOffset := binary.LittleEndian.Uint32(unsafe.Slice((*byte)(entry), 4))
		if entryOffset == 0 {
			return sysunwind.URCContinueUnwind
		}
		if entryOffset != funcOffset {
			entry = unsafe.Add(entry, 4+1+4)
			continue
		}
		kind := *(*byte)(unsafe.Add(entry, 4))
		landingPad := binary.LittleEndian.Uint32(unsafe.Slice((*byte)(unsafe.Add(entry, 5)), 4))

		if int(actions)&sysunwind.UASearchPhase != 0 {
			switch kind {
			case entryKindCatchByte:
				return sysunwind.URCHandlerFound
			default:
				return sysunwind.URCContinueUnwind
			}
		}

		switch kind {
		case entryKindCleanupByte, entryKindCatchByte:
			sysunwind.SetGR(ctx, 0, uint64(uintptr(exceptionObject)))
			sysunwind.SetGR(ctx, 1, 0)
			sysunwind.SetIP(ctx, funcStart+uint64(landingPad))
			return sysunwind.URCInstallContext
		default:
			return sysunwind.URCContinueUnwind
		}
	}
}
