// Command exlang is the JIT driver CLI: it compiles the fixed scenario
// suite spec.md §8 describes under one or all three unwinder strategies
// and reports each scenario's result, mirroring original_source/src/bin/
// toy.rs's run_tests/main. Unlike the original, GCC-compatible and Fast
// are genuinely distinct strategies here (Open Question spec.md §9).
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"exlang/pkg/jit"
	"exlang/pkg/unwind"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	var strategyFlag string
	var scenarioFlag string
	var bench bool

	cmd := &cobra.Command{
		Use:   "exlang",
		Short: "JIT compiler and runner for the exlang exception-handling scenario suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			configureLogging(verbose)
			return runScenarios(strategyFlag, scenarioFlag, bench)
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().StringVar(&strategyFlag, "strategy", "all", "unwinder strategy: gcc-compatible, fast, custom, or all")
	cmd.Flags().StringVar(&scenarioFlag, "scenario", "all", "scenario to run: foo, recursive_fib, iterative_fib, try_catch, hello, or all")
	cmd.Flags().BoolVar(&bench, "bench", false, "also run the call/throw benchmarks")
	return cmd
}

func configureLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level)
}

func allStrategies() []unwind.Strategy {
	return []unwind.Strategy{
		unwind.NewGCCCompatible(),
		unwind.NewFast(),
		unwind.NewCustom(),
	}
}

func runScenarios(strategyName, scenarioName string, bench bool) error {
	var strategies []unwind.Strategy
	if strategyName == "all" {
		strategies = allStrategies()
	} else {
		s, err := selectStrategy(strategyName)
		if err != nil {
			return err
		}
		strategies = []unwind.Strategy{s}
	}

	for _, s := range strategies {
		fmt.Printf("With %s:\n", s.Name())
		if err := runScenariosFor(s, scenarioName, bench); err != nil {
			return err
		}
		fmt.Println()
	}
	return nil
}

func selectStrategy(name string) (unwind.Strategy, error) {
	switch name {
	case "gcc-compatible", "gcc":
		return unwind.NewGCCCompatible(), nil
	case "fast":
		return unwind.NewFast(), nil
	case "custom":
		return unwind.NewCustom(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}

func runScenariosFor(s unwind.Strategy, scenario string, bench bool) error {
	run := func(name string, fn func() error) error {
		if scenario != "all" && scenario != name {
			return nil
		}
		return fn()
	}

	if err := run("foo", func() error { return scenarioFoo(s) }); err != nil {
		return err
	}
	if err := run("recursive_fib", func() error { return scenarioRecursiveFib(s) }); err != nil {
		return err
	}
	if err := run("iterative_fib", func() error { return scenarioIterativeFib(s) }); err != nil {
		return err
	}
	if err := run("try_catch", func() error { return scenarioTryCatch(s) }); err != nil {
		return err
	}
	if err := run("hello", func() error { return scenarioHello(s) }); err != nil {
		return err
	}

	if bench {
		if err := benchCall(s); err != nil {
			return err
		}
		if err := benchThrowSingleUnwind(s); err != nil {
			return err
		}
	}
	return nil
}

func scenarioFoo(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	if err := j.CompileSource(fooCode); err != nil {
		return err
	}
	res, _, _, err := j.Call2("foo", 1, 0)
	if err != nil {
		return err
	}
	fmt.Printf("the answer is: %d\n", res)
	return nil
}

func scenarioRecursiveFib(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	if err := j.CompileSource(recursiveFibCode); err != nil {
		return err
	}
	res, _, _, err := j.Call1("recursive_fib", 10)
	if err != nil {
		return err
	}
	fmt.Printf("recursive_fib(10) = %d\n", res)
	return nil
}

func scenarioIterativeFib(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	if err := j.CompileSource(iterativeFibCode); err != nil {
		return err
	}
	res, _, _, err := j.Call1("iterative_fib", 10)
	if err != nil {
		return err
	}
	fmt.Printf("iterative_fib(10) = %d\n", res)
	return nil
}

func scenarioTryCatch(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	if err := j.CompileSource(doThrowCode); err != nil {
		return err
	}
	if err := j.CompileSource(tryCatchCode); err != nil {
		return err
	}
	res, _, _, err := j.Call1("try_catch", 1)
	if err != nil {
		return err
	}
	fmt.Printf("try_catch(1) = %d\n", res)
	return nil
}

func scenarioHello(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	j.CreateData("hello_string", append([]byte("hello world!"), 0))
	if err := j.CompileSource(helloCode); err != nil {
		return err
	}
	_, _, _, err := j.Call0("hello")
	return err
}

func benchCall(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	if err := j.CompileSource(nopFuncCode); err != nil {
		return err
	}
	if err := j.CompileSource(benchCallCode); err != nil {
		return err
	}
	start := time.Now()
	if _, _, _, err := j.Call0("bench_call"); err != nil {
		return err
	}
	fmt.Printf("100_000_000 calls took %s\n", time.Since(start))
	return nil
}

func benchThrowSingleUnwind(s unwind.Strategy) error {
	j := jit.New(s)
	defer j.Close()
	if err := j.CompileSource(doThrowCode); err != nil {
		return err
	}
	if err := j.CompileSource(benchThrowSingleUnwindCode); err != nil {
		return err
	}
	start := time.Now()
	if _, _, _, err := j.Call0("bench_throw_single_unwind"); err != nil {
		return err
	}
	fmt.Printf("100_000 throws unwinding a single frame took %s\n", time.Since(start))
	return nil
}
