package unwind

/*
#include <setjmp.h>
#include <stdint.h>
#include <stdlib.h>

typedef uint64_t _uw_word;

struct unwind_exception {
	uint64_t exception_class;
	void (*exception_cleanup)(int64_t, struct unwind_exception *);
	_uw_word private_1;
	_uw_word private_2;
};

extern unsigned char _Unwind_RaiseException(struct unwind_exception *);

struct jit_exception {
	struct unwind_exception base;
	uint64_t data;
};

static void jit_exception_cleanup(int64_t code, struct unwind_exception *exc) {
	free(exc);
}

// jit_trampoline_* are thread-local: each OS thread driving a
// call_and_catch_unwind gets its own boundary, matching how the original
// demo is single-threaded per call but without baking in that
// assumption.
static __thread jmp_buf jit_trampoline_jmpbuf;
static __thread uint64_t jit_trampoline_payload;
static __thread int jit_trampoline_active;

// jit_do_throw is the reserved "__throw" extern every compiled function
// calls (spec.md's ThrowCallee). It mirrors original_source's do_throw:
// box the payload behind the _Unwind_Exception ABI header and raise it.
// Unlike the original, a failed raise (no frame's personality claimed
// it) does not abort -- if this throw happened inside an active
// call_and_catch_unwind trampoline, it instead longjmps back to the
// trampoline with the raw payload, realizing the "uncaught throw reaches
// the native-call boundary" behavior SPEC_FULL.md §5.8 specifies (the
// original left this path as `todo!("get exception data")`).
static void jit_do_throw(uint64_t exception) {
	struct jit_exception *e = (struct jit_exception *)malloc(sizeof(struct jit_exception));
	e->base.exception_class = 0;
	e->base.exception_cleanup = jit_exception_cleanup;
	e->base.private_1 = 0;
	e->base.private_2 = 0;
	e->data = exception;

	_Unwind_RaiseException(&e->base);

	// Only reached if nothing along the stack claimed the exception.
	if (jit_trampoline_active) {
		jit_trampoline_payload = exception;
		free(e);
		longjmp(jit_trampoline_jmpbuf, 1);
	}
	abort();
}

extern void _Unwind_Resume(struct unwind_exception *) __attribute__((noreturn));

static void jit_do_resume_unwind(struct unwind_exception *exc) {
	_Unwind_Resume(exc);
}

static void *jit_do_throw_addr(void) { return (void *)jit_do_throw; }
static void *jit_do_resume_unwind_addr(void) { return (void *)jit_do_resume_unwind; }

typedef uint64_t (*jit_fn0)(void);
typedef uint64_t (*jit_fn1)(uint64_t);
typedef uint64_t (*jit_fn2)(uint64_t, uint64_t);

static uint64_t jit_table_call0(jit_fn0 fn, uint64_t *payload, int *threw) {
	jit_trampoline_active = 1;
	if (setjmp(jit_trampoline_jmpbuf)) {
		*threw = 1;
		*payload = jit_trampoline_payload;
		jit_trampoline_active = 0;
		return 0;
	}
	uint64_t r = fn();
	jit_trampoline_active = 0;
	*threw = 0;
	return r;
}

static uint64_t jit_table_call1(jit_fn1 fn, uint64_t a0, uint64_t *payload, int *threw) {
	jit_trampoline_active = 1;
	if (setjmp(jit_trampoline_jmpbuf)) {
		*threw = 1;
		*payload = jit_trampoline_payload;
		jit_trampoline_active = 0;
		return 0;
	}
	uint64_t r = fn(a0);
	jit_trampoline_active = 0;
	*threw = 0;
	return r;
}

static uint64_t jit_table_call2(jit_fn2 fn, uint64_t a0, uint64_t a1, uint64_t *payload, int *threw) {
	jit_trampoline_active = 1;
	if (setjmp(jit_trampoline_jmpbuf)) {
		*threw = 1;
		*payload = jit_trampoline_payload;
		jit_trampoline_active = 0;
		return 0;
	}
	uint64_t r = fn(a0, a1);
	jit_trampoline_active = 0;
	*threw = 0;
	return r;
}
*/
import "C"
import "unsafe"

func tableThrowAddr() uintptr  { return uintptr(C.jit_do_throw_addr()) }
func tableResumeAddr() uintptr { return uintptr(C.jit_do_resume_unwind_addr()) }

func tableCallAndCatch0(fn uintptr) (uint64, uint64, bool) {
	var payload C.uint64_t
	var threw C.int
	res := C.jit_table_call0(C.jit_fn0(unsafe.Pointer(fn)), &payload, &threw)
	return uint64(res), uint64(payload), threw != 0
}

func tableCallAndCatch1(fn uintptr, a0 uint64) (uint64, uint64, bool) {
	var payload C.uint64_t
	var threw C.int
	res := C.jit_table_call1(C.jit_fn1(unsafe.Pointer(fn)), C.uint64_t(a0), &payload, &threw)
	return uint64(res), uint64(payload), threw != 0
}

func tableCallAndCatch2(fn uintptr, a0, a1 uint64) (uint64, uint64, bool) {
	var payload C.uint64_t
	var threw C.int
	res := C.jit_table_call2(C.jit_fn2(unsafe.Pointer(fn)), C.uint64_t(a0), C.uint64_t(a1), &payload, &threw)
	return uint64(res), uint64(payload), threw != 0
}
