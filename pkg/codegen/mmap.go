package codegen

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ExecPage is a code buffer finalized into executable memory: mmap'd
// RW, written, then mprotected RX, the standard two-step sequence for
// running JIT-generated code without cgo (this module uses cgo only for
// the platform unwinder ABI in pkg/unwind and for resolving the host's
// puts in pkg/jit).
type ExecPage struct {
	Base uintptr
	Size int
	mem  []byte
}

// MapExecutable copies code into a fresh mmap'd page and switches it to
// PROT_READ|PROT_EXEC, mirroring how JIT engines in the Go ecosystem
// (e.g. the wazero compiler engine referenced in this pack's
// other_examples dump) hand generated code to the CPU without a dynamic
// loader.
func MapExecutable(code []byte) (*ExecPage, error) {
	size := len(code)
	if size == 0 {
		return &ExecPage{}, nil
	}
	pageSize := unix.Getpagesize()
	mapSize := ((size + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "codegen: mmap executable page")
	}
	copy(mem, code)

	if err := unix.Mprotect(mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		_ = unix.Munmap(mem)
		return nil, errors.Wrap(err, "codegen: mprotect executable page")
	}

	return &ExecPage{Base: uintptr(pointerOf(mem)), Size: mapSize}, nil
}

// AllocWritable reserves a fresh RW page sized for code without copying
// anything into it yet, so its final Base address is known before the
// PC-relative relocations in Finalize are computed -- Finalize must run
// before the page ever becomes executable, since it patches BL targets
// in place.
func AllocWritable(size int) (*ExecPage, error) {
	if size == 0 {
		return &ExecPage{}, nil
	}
	pageSize := unix.Getpagesize()
	mapSize := ((size + pageSize - 1) / pageSize) * pageSize

	mem, err := unix.Mmap(-1, 0, mapSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, errors.Wrap(err, "codegen: mmap writable page")
	}
	return &ExecPage{Base: uintptr(pointerOf(mem)), Size: mapSize, mem: mem}, nil
}

// CopyIn writes code into the page reserved by AllocWritable. Call after
// Finalize has patched every relocation against this page's Base. A page
// already made executable is switched back to RW first, so the arena can
// be refilled by a later Compile.
func (p *ExecPage) CopyIn(code []byte) {
	if p.Size == 0 {
		return
	}
	if err := unix.Mprotect(p.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		panic(errors.Wrap(err, "codegen: mprotect writable page"))
	}
	copy(p.mem, code)
}

// MakeExecutable flips the page from RW to RX, after CopyIn.
func (p *ExecPage) MakeExecutable() error {
	if p.Size == 0 {
		return nil
	}
	if err := unix.Mprotect(p.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return errors.Wrap(err, "codegen: mprotect executable page")
	}
	return nil
}

// Close unmaps the page. JIT-compiled code must not be invoked again
// afterward (spec.md's resource model has no notion of safely tearing
// down individual functions, only the whole driver).
func (p *ExecPage) Close() error {
	if p.Size == 0 {
		return nil
	}
	mem := sliceFromPointer(p.Base, p.Size)
	return unix.Munmap(mem)
}
