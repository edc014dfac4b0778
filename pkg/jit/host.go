package jit

/*
#include <stdio.h>
static void *puts_addr(void) { return (void *)puts; }
*/
import "C"

// putsAddr resolves the host libc's puts, the one extern host symbol
// the hello scenario needs (spec.md §8), mirroring how toy.rs declares
// `fn puts(s: *const u8) -> i32` as an imported symbol.
func putsAddr() uint64 {
	return uint64(uintptr(C.puts_addr()))
}
