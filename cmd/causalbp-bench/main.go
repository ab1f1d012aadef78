// Command causalbp-bench — BP sweep throughput benchmark.
//
// Builds synthetic noisy-OR binary trees of increasing depth and measures
// how many PARALL sweeps per second the engine sustains as the graph grows.
// A depth-d tree has 2^(d+1)-1 variables: one root, each internal node a
// DefiniteOr factor over two children, each leaf a Singleton.
//
// Output CSV columns:
//
//	depth, nvars, sweeps, elapsed_us, sweeps_per_sec
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/variable"
)

func main() {
	maxDepth := flag.Int("max-depth", 12, "Deepest synthetic tree to benchmark")
	outputFile := flag.String("output", "bp_throughput.csv", "Output CSV file path")
	sweepsPerDepth := flag.Int("sweeps", 200, "Fixed sweep count measured at each depth")
	minSweepsPerSec := flag.Float64("min-sweeps-per-sec", 0, "Fail if any depth falls below this rate (0 disables the check)")
	flag.Parse()

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	f, err := os.Create(*outputFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	_ = w.Write([]string{"depth", "nvars", "sweeps", "elapsed_us", "sweeps_per_sec"})

	belowTarget := false

	for depth := 1; depth <= *maxDepth; depth++ {
		factors, nvars := buildTree(depth)
		g := causalgraph.New(factors, nil)
		opts := causalbp.DefaultOptions()
		opts.MaxIter = *sweepsPerDepth
		opts.Tol = -1 // never converge early; we want exactly sweepsPerDepth sweeps
		e := causalbp.New(g, opts, nil)
		e.Init()

		start := time.Now()
		if _, err := e.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "depth %d: Run: %v\n", depth, err)
			os.Exit(1)
		}
		elapsed := time.Since(start)

		sweeps := e.Iterations()
		elapsedUs := elapsed.Microseconds()
		sweepsPerSec := float64(sweeps) / elapsed.Seconds()

		_ = w.Write([]string{
			strconv.Itoa(depth),
			strconv.Itoa(nvars),
			strconv.Itoa(sweeps),
			strconv.FormatInt(elapsedUs, 10),
			strconv.FormatFloat(sweepsPerSec, 'f', 1, 64),
		})

		fmt.Printf("depth %2d  nvars %6d  sweeps %4d  elapsed %8dus  %10.1f sweeps/sec\n",
			depth, nvars, sweeps, elapsedUs, sweepsPerSec)

		if *minSweepsPerSec > 0 && sweepsPerSec < *minSweepsPerSec {
			belowTarget = true
		}
	}

	fmt.Printf("Output: %s\n", *outputFile)

	if belowTarget {
		fmt.Fprintf(os.Stderr, "FAIL: some depth fell below %.1f sweeps/sec target\n", *minSweepsPerSec)
		os.Exit(1)
	}
}

// buildTree constructs a complete binary tree of DefiniteOr factors, depth
// levels deep, with Singleton priors on every leaf and the root assigned
// the highest label (labels are handed out post-order as nodes close).
// Returns the factor list and the total variable count.
func buildTree(depth int) ([]causalfactor.Factor, int) {
	var factors []causalfactor.Factor
	next := variable.Label(1)

	var build func(level int) variable.Label
	build = func(level int) variable.Label {
		if level == depth {
			leaf := next
			next++
			factors = append(factors, causalfactor.NewSingleton(leaf, 0.2))
			return leaf
		}
		left := build(level + 1)
		right := build(level + 1)
		head := next
		next++
		body := variable.NewSet(left, right)
		factors = append(factors, causalfactor.NewOr(head, body, 0.9, 0.01))
		return head
	}
	build(0)

	return factors, int(next) - 1
}
