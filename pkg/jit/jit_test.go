package jit

import (
	"testing"

	"exlang/pkg/unwind"
)

func TestNewBindsStrategy(t *testing.T) {
	j := New(unwind.NewCustom())
	if j.strategy == nil {
		t.Fatalf("expected a bound strategy")
	}
	if _, ok := j.FuncAddr("missing"); ok {
		t.Fatalf("expected no function registered yet")
	}
}

func TestCall0UnknownFunctionErrors(t *testing.T) {
	j := New(unwind.NewFast())
	if _, _, _, err := j.Call0("nope"); err == nil {
		t.Fatalf("expected an error calling an unregistered function")
	}
}
