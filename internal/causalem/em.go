package causalem

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/evidence"
)

// Options controls the EM driver's iteration budget and E-step
// concurrency, separately from the per-sample BP engine's own options.
type Options struct {
	MaxIters int
	LogZTol  float64
	MaxJobs  int
	BP       causalbp.Options
}

// DefaultOptions returns the baseline EM configuration.
func DefaultOptions() Options {
	return Options{
		MaxIters: 30,
		LogZTol:  0.01,
		MaxJobs:  runtime.NumCPU(),
		BP:       causalbp.DefaultOptions(),
	}
}

// EM drives expectation-maximization over a shared causal graph: each
// round builds one BP engine per evidence sample over a clamped clone of
// the graph, runs it to
// convergence, folds its beliefs into the round's MaximizationSteps, then
// re-estimates every tied parameter.
type EM struct {
	graph    *causalgraph.Graph
	evidence evidence.Table
	msteps   []*MaximizationStep
	opts     Options
	log      *zap.Logger

	iters    int
	lastLogZ []float64
}

// New builds an EM driver over graph (which must already contain the
// tied Singleton factors named by msteps), the given evidence table, and
// the ordered list of maximization steps applied each round.
func New(graph *causalgraph.Graph, ev evidence.Table, msteps []*MaximizationStep, opts Options, log *zap.Logger) *EM {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.MaxJobs < 1 {
		opts.MaxJobs = 1
	}
	return &EM{graph: graph, evidence: ev, msteps: msteps, opts: opts, log: log}
}

// Graph exposes the shared (unclamped) graph being fit.
func (em *EM) Graph() *causalgraph.Graph { return em.graph }

// Iterations returns the number of completed EM rounds.
func (em *EM) Iterations() int { return em.iters }

// LogZ returns the most recent round's log-likelihood-ratio value, or 0
// before the first round.
func (em *EM) LogZ() float64 {
	if len(em.lastLogZ) == 0 {
		return 0
	}
	return em.lastLogZ[len(em.lastLogZ)-1]
}

// HasSatisfiedTermConditions reports whether EM should stop: the
// iteration budget is exhausted, the log-likelihood regressed (an EMRegression, logged and treated as
// terminal rather than propagated as an error), or the relative
// improvement has dropped below LogZTol. With fewer than three recorded
// rounds only the iteration budget can stop it.
func (em *EM) HasSatisfiedTermConditions() bool {
	if em.iters >= em.opts.MaxIters {
		return true
	}
	n := len(em.lastLogZ)
	if n < 3 {
		return false
	}
	diff := em.lastLogZ[n-1] - em.lastLogZ[n-2]
	if diff < 0 {
		em.log.Error("em: log-likelihood regressed, stopping",
			zap.Float64("previous", em.lastLogZ[n-2]), zap.Float64("current", em.lastLogZ[n-1]))
		return true
	}
	return (diff / math.Abs(em.lastLogZ[n-2])) <= em.opts.LogZTol
}

// eStepBaseline runs the shared (unclamped) graph once and returns its
// logZ, used as the zero point each sample's clamped logZ is measured
// against.
func (em *EM) eStepBaseline() (float64, error) {
	e := causalbp.New(em.graph, em.opts.BP, em.log)
	e.Init()
	if _, err := e.Run(); err != nil {
		return 0, err
	}
	return e.LogZ(), nil
}

type sampleResult struct {
	engine *causalbp.Engine
	logZ   float64
	err    error
}

func (em *EM) runSample(s evidence.Sample) sampleResult {
	eng := causalbp.New(em.graph.Clone(), em.opts.BP, em.log)
	g := eng.Graph()
	for _, obs := range s {
		vi, err := g.FindVar(obs.Var)
		if err != nil {
			return sampleResult{err: err}
		}
		if err := g.Clamp(vi, obs.Value, false); err != nil {
			return sampleResult{err: err}
		}
	}
	eng.Init()
	if _, err := eng.Run(); err != nil {
		return sampleResult{err: err}
	}
	return sampleResult{engine: eng, logZ: eng.LogZ()}
}

// iterateStep runs one maximization step's full E-step/M-step round:
// group the samples into batches of at most MaxJobs, run each batch's
// samples concurrently (the last of each batch synchronously, the rest in
// goroutines), join, fold likelihoods and expectations, then re-estimate.
func (em *EM) iterateStep(mstep *MaximizationStep) (float64, error) {
	mstep.Clear()

	logZ0, err := em.eStepBaseline()
	if err != nil {
		return 0, err
	}

	samples := em.evidence.Samples
	var likelihood float64

	for start := 0; start < len(samples); start += em.opts.MaxJobs {
		end := start + em.opts.MaxJobs
		if end > len(samples) {
			end = len(samples)
		}
		group := samples[start:end]
		results := make([]sampleResult, len(group))

		var wg sync.WaitGroup
		for gi := 0; gi < len(group)-1; gi++ {
			gi := gi
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[gi] = em.runSample(group[gi])
			}()
		}
		results[len(group)-1] = em.runSample(group[len(group)-1])
		wg.Wait()

		for gi, r := range results {
			if r.err != nil {
				return 0, fmt.Errorf("causalem: sample %d: %w", start+gi, r.err)
			}
		}
		for _, r := range results {
			likelihood += r.logZ - logZ0
		}
		for gi, r := range results {
			if err := mstep.AddExpectations(r.engine.Graph(), r.engine); err != nil {
				return 0, fmt.Errorf("causalem: sample %d: %w", start+gi, err)
			}
		}
	}

	if err := mstep.Maximize(em.graph); err != nil {
		return 0, err
	}
	return likelihood, nil
}

// Iterate runs every maximization step once, in order, and records the
// round's log-likelihood as the last step's value (steps within a round
// overwrite rather than accumulate).
func (em *EM) Iterate() (float64, error) {
	var likelihood float64
	for _, mstep := range em.msteps {
		l, err := em.iterateStep(mstep)
		if err != nil {
			return 0, err
		}
		likelihood = l
	}
	em.iters++
	em.lastLogZ = append(em.lastLogZ, likelihood)
	return likelihood, nil
}

// Run repeats Iterate until HasSatisfiedTermConditions reports true.
func (em *EM) Run() error {
	for !em.HasSatisfiedTermConditions() {
		if _, err := em.Iterate(); err != nil {
			return err
		}
	}
	return nil
}
