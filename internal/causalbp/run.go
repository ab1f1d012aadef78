package causalbp

import (
	"math"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/causalprob"
)

func linfDist(a, b [2]float64) float64 {
	d0 := math.Abs(a[0] - b[0])
	d1 := math.Abs(a[1] - b[1])
	if d1 > d0 {
		return d1
	}
	return d0
}

// parallelOverVars runs fn(i) for every variable index, using a bounded
// worker pool rather than one goroutine per variable.
func (e *Engine) parallelOverVars(fn func(i int)) {
	n := e.graph.NrVars()
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	jobs := make(chan int, n)
	for i := 0; i < n; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				fn(i)
			}
		}()
	}
	wg.Wait()
}

func (e *Engine) sweepParall() error {
	var firstErr error
	var mu sync.Mutex
	e.parallelOverVars(func(i int) {
		for pos := range e.edges[i] {
			if err := e.calcNewMessage(i, pos); err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}
	})
	if firstErr != nil {
		return firstErr
	}
	e.parallelOverVars(func(i int) {
		for pos := range e.edges[i] {
			e.updateMessage(i, pos)
		}
	})
	e.parallelOverVars(func(i int) {
		e.rebuildAccumulator(i)
	})
	return nil
}

func (e *Engine) sweepSequential() error {
	if e.opts.Updates == SeqRnd {
		e.rng.Shuffle(len(e.updateSeq), func(i, j int) {
			e.updateSeq[i], e.updateSeq[j] = e.updateSeq[j], e.updateSeq[i]
		})
	}
	for _, se := range e.updateSeq {
		if err := e.calcNewMessage(se.varIdx, se.pos); err != nil {
			return err
		}
		e.updateMessage(se.varIdx, se.pos)
	}
	return nil
}

func (e *Engine) sweep() error {
	if e.opts.Updates == Parall {
		return e.sweepParall()
	}
	return e.sweepSequential()
}

// snapshotDiff compares current beliefs against e.oldBeliefsV/F, updates
// them in place, and returns the largest distance observed plus the
// fraction of elements still above tolerance (used by RunExtended). When
// diffs is non-nil it is filled with one entry per variable followed by
// one entry per factor, in index order, for diffHistogramBuckets.
func (e *Engine) snapshotDiff(tol float64, diffs []float64) (maxDiff float64, yetToConverge float64) {
	maxDiff = math.Inf(-1)
	var nonConverged int
	total := e.graph.NrVars() + e.graph.NrFactors()
	idx := 0

	for i := 0; i < e.graph.NrVars(); i++ {
		p0, p1, err := e.Belief(i)
		b := [2]float64{p0, p1}
		if err != nil {
			b = [2]float64{0, 0}
		}
		d := linfDist(b, e.oldBeliefsV[i])
		if d > maxDiff {
			maxDiff = d
		}
		if d > tol {
			nonConverged++
		}
		if diffs != nil {
			diffs[idx] = d
		}
		idx++
		e.oldBeliefsV[i] = b
	}
	for I := 0; I < e.graph.NrFactors(); I++ {
		b := e.BeliefFactor(I)
		d, err := causalprob.L1Dist(b, e.oldBeliefsF[I])
		if err != nil {
			d = 0
		}
		if d > maxDiff {
			maxDiff = d
		}
		if d > tol {
			nonConverged++
		}
		if diffs != nil {
			diffs[idx] = d
		}
		idx++
		e.oldBeliefsF[I] = b
	}

	if total > 0 {
		yetToConverge = float64(nonConverged) / float64(total)
	}
	return maxDiff, yetToConverge
}

// diffHistogramBuckets buckets each diff_i/tol into an integer
// floor(log2(.)) bin and counts how many elements fall into each bin,
// mirroring causal_bp.cpp's per-sweep "diffHistogram: " trace line.
// Elements with diff <= 0 (no change this sweep) carry no signal and are
// excluded — log2 of a non-positive ratio is undefined; elements with a
// positive diff at or below tol are counted in bins below 0.
func diffHistogramBuckets(diffs []float64, tol float64) map[int]int {
	hist := make(map[int]int)
	for _, d := range diffs {
		if d <= 0 {
			continue
		}
		bucket := int(math.Floor(math.Log2(d / tol)))
		hist[bucket]++
	}
	return hist
}

// Run executes sweeps until the classic termination condition — max belief
// diff below Tol, iteration budget exhausted, or wall-clock budget
// exhausted — and returns the final max diff.
func (e *Engine) Run() (float64, error) {
	start := time.Now()
	maxDiff := math.Inf(1)

	for ; e.iters < e.opts.MaxIter && maxDiff > e.opts.Tol; e.iters++ {
		if e.opts.MaxTime > 0 && time.Since(start) > e.opts.MaxTime {
			break
		}
		if err := e.sweep(); err != nil {
			return maxDiff, err
		}
		var frac float64
		maxDiff, frac = e.snapshotDiff(e.opts.Tol, nil)
		if e.rec != nil {
			e.rec.ObserveSweep(maxDiff, frac)
		}
		if e.opts.Verbose >= 3 {
			e.log.Debug("bp sweep", zap.Int("iter", e.iters+1), zap.Float64("maxdiff", maxDiff))
		}
	}

	if maxDiff > e.maxDiff {
		e.maxDiff = maxDiff
	}
	if e.opts.Verbose >= 1 {
		if maxDiff > e.opts.Tol {
			e.log.Warn("bp did not converge", zap.Int("iters", e.iters), zap.Float64("maxdiff", maxDiff))
		} else {
			e.log.Info("bp converged", zap.Int("iters", e.iters), zap.Float64("maxdiff", maxDiff))
		}
	}
	return maxDiff, nil
}

// RunExtended is the extended run loop: it additionally tracks, for
// numIters beyond minIters, a linearly-interpolated tolerance floor on the
// fraction of not-yet-converged elements, and maintains a bounded
// belief-history queue per variable for lowPassBeliefs when the run
// doesn't fully converge.
func (e *Engine) RunExtended(tol float64, minIters, maxIters, histLength int) (TermReason, float64, error) {
	if !(0 < histLength && histLength < minIters && minIters < maxIters) {
		return Diverged, 0, errArgumentInvalid("RunExtended: require 0 < histLength < minIters < maxIters")
	}

	start := time.Now()
	numIters := 0
	maxDiff := math.Inf(1)
	yetToConverge := 1.0

	beliefHist := make([][]float64, e.graph.NrVars())

	var reason TermReason
	for {
		var nodeFracTol float64
		if numIters >= minIters {
			nodeFracTol = float64(numIters-minIters) / float64(maxIters-minIters)
		}

		if maxDiff <= tol {
			reason = AllConverged
			break
		} else if numIters > minIters && yetToConverge < nodeFracTol {
			reason = BigFracConverged
			break
		} else if numIters > maxIters {
			reason = Diverged
			break
		} else if e.opts.MaxTime > 0 && time.Since(start) > e.opts.MaxTime {
			reason = Diverged
			break
		}

		if err := e.sweep(); err != nil {
			return Diverged, maxDiff, err
		}

		var diffs []float64
		if e.opts.Verbose >= 2 {
			diffs = make([]float64, e.graph.NrVars()+e.graph.NrFactors())
		}
		maxDiff, yetToConverge = e.snapshotDiff(tol, diffs)
		if e.rec != nil {
			e.rec.ObserveSweep(maxDiff, yetToConverge)
		}
		for i := 0; i < e.graph.NrVars(); i++ {
			_, p1, err := e.Belief(i)
			if err != nil {
				continue
			}
			beliefHist[i] = append(beliefHist[i], p1)
			if len(beliefHist[i]) > histLength {
				beliefHist[i] = beliefHist[i][1:]
			}
		}

		if e.opts.Verbose >= 2 {
			e.log.Debug("diffHistogram",
				zap.Int("iter", numIters),
				zap.Any("buckets", diffHistogramBuckets(diffs, tol)))
		}
		if e.opts.Verbose >= 2 || numIters%50 == 0 {
			e.log.Debug("bp extended sweep",
				zap.Int("iter", numIters),
				zap.Float64("maxdiff", maxDiff),
				zap.Float64("yetToConverge", yetToConverge))
		}

		numIters++
		e.iters++
	}

	if maxDiff > e.maxDiff {
		e.maxDiff = maxDiff
	}

	e.lowPassBeliefs = make([]float64, e.graph.NrVars())
	switch reason {
	case AllConverged:
		for i := 0; i < e.graph.NrVars(); i++ {
			_, p1, err := e.Belief(i)
			if err == nil {
				e.lowPassBeliefs[i] = p1
			}
		}
	default:
		for i := 0; i < e.graph.NrVars(); i++ {
			h := beliefHist[i]
			if len(h) == 0 {
				continue
			}
			var sum float64
			for _, v := range h {
				sum += v
			}
			e.lowPassBeliefs[i] = sum / float64(len(h))
		}
	}

	switch reason {
	case AllConverged:
		e.log.Info("bp converged", zap.Int("iters", numIters), zap.Float64("maxdiff", maxDiff))
	case BigFracConverged:
		e.log.Info("bp stopped: sufficient fraction converged",
			zap.Int("iters", numIters), zap.Float64("yetToConverge", yetToConverge), zap.Float64("maxdiff", maxDiff))
	case Diverged:
		e.log.Warn("bp did not converge", zap.Int("iters", numIters), zap.Float64("maxdiff", maxDiff))
	}

	return reason, yetToConverge, nil
}

// LowPassBeliefs returns the belief-history average computed by the most
// recent RunExtended call (after an ALL_CONVERGED run it holds the exact
// beliefs). Run does not change it; it is nil until RunExtended has been
// called.
func (e *Engine) LowPassBeliefs() []float64 { return e.lowPassBeliefs }

func errArgumentInvalid(msg string) error { return &argumentInvalidError{msg} }

type argumentInvalidError struct{ msg string }

func (e *argumentInvalidError) Error() string { return "causalbp: " + e.msg }
