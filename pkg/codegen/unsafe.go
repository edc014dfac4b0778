package codegen

import "unsafe"

// pointerOf and sliceFromPointer convert between the []byte mmap returns
// and the raw address the JIT trampoline needs to call into. Kept in
// their own tiny file since every other file in this package is pure
// arithmetic on byte slices.
func pointerOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func sliceFromPointer(p uintptr, size int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), size)
}
