package causalbp

import (
	"errors"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/accummsg"
	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/causalprob"
	"github.com/causalbp/causalbp/internal/variable"
)

var errNumericDegeneracy = errors.New("causalbp: normalization of a non-positive mass (conflicting or degenerate evidence)")

// seqEdge is one entry of the fixed (or shuffled) update sequence used by
// SeqFix/SeqRnd: the variable index and its position in that variable's
// neighbour-factor list.
type seqEdge struct {
	varIdx int
	pos    int
}

// Engine runs loopy belief propagation over a causal factor graph. It owns
// the per-edge message store and the per-variable accumulators; the
// underlying graph is referenced, not copied, except by Clone.
type Engine struct {
	graph *causalgraph.Graph
	opts  Options

	edges  [][]edge                  // edges[varIdx][pos]
	varMsg [][2]*accummsg.Accumulator // varMsg[varIdx][state]

	updateSeq []seqEdge

	oldBeliefsV [][2]float64
	oldBeliefsF [][]float64

	iters  int
	maxDiff float64

	lowPassBeliefs []float64

	log *zap.Logger
	rng *rand.Rand
	rec Recorder
}

// Recorder receives per-sweep diagnostics. *observability.Metrics
// implements this interface; Engine depends only on the interface to
// avoid an import cycle with internal/observability.
type Recorder interface {
	ObserveSweep(maxDiff float64, yetToConverge float64)
}

// SetRecorder attaches a metrics recorder; nil disables reporting.
func (e *Engine) SetRecorder(r Recorder) { e.rec = r }

// New builds an Engine over g with the given options. Call Init before the
// first Run.
func New(g *causalgraph.Graph, opts Options, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{
		graph: g,
		opts:  opts,
		log:   log,
		rng:   rand.New(rand.NewSource(1)),
	}
	e.construct()
	return e
}

func (e *Engine) construct() {
	n := e.graph.NrVars()
	e.edges = make([][]edge, n)
	e.varMsg = make([][2]*accummsg.Accumulator, n)
	for i := 0; i < n; i++ {
		nb := e.graph.NbV(i)
		e.edges[i] = make([]edge, len(nb))
		a0 := accummsg.NewAccumulator(e.opts.LogDomain)
		a1 := accummsg.NewAccumulator(e.opts.LogDomain)
		e.varMsg[i] = [2]*accummsg.Accumulator{&a0, &a1}
	}

	e.oldBeliefsV = make([][2]float64, n)
	e.oldBeliefsF = make([][]float64, e.graph.NrFactors())
	for I := 0; I < e.graph.NrFactors(); I++ {
		e.oldBeliefsF[I] = make([]float64, len(e.graph.NbF(I)))
	}

	e.updateSeq = e.updateSeq[:0]
	for I := 0; I < e.graph.NrFactors(); I++ {
		for _, i := range e.graph.NbF(I) {
			e.updateSeq = append(e.updateSeq, seqEdge{varIdx: i.Index, pos: i.Dual})
		}
	}
}

// Init resets every message and accumulator to the multiplicative
// identity and zeroes the sweep counter.
func (e *Engine) Init() {
	c := 1.0
	if e.opts.LogDomain {
		c = 0.0
	}
	for i := 0; i < e.graph.NrVars(); i++ {
		e.varMsg[i][0].Reset(e.opts.LogDomain)
		e.varMsg[i][1].Reset(e.opts.LogDomain)
		for pos := range e.edges[i] {
			e.edges[i][pos].message = [2]float64{c, c}
			e.edges[i][pos].newMessage = [2]float64{c, c}
		}
	}
	e.iters = 0
}

// InitVars resets only the variables in vs, leaving the other variables'
// messages untouched, and zeroes the sweep counter as Init does. Used to
// re-arm a subset of the graph after a targeted clamp.
func (e *Engine) InitVars(vs variable.Set) {
	c := 1.0
	if e.opts.LogDomain {
		c = 0.0
	}
	for _, l := range vs.Labels() {
		vi, err := e.graph.FindVar(l)
		if err != nil {
			continue
		}
		e.varMsg[vi][0].Reset(e.opts.LogDomain)
		e.varMsg[vi][1].Reset(e.opts.LogDomain)
		for pos := range e.edges[vi] {
			e.edges[vi][pos].message = [2]float64{c, c}
			e.edges[vi][pos].newMessage = [2]float64{c, c}
		}
	}
	e.iters = 0
}

// Graph exposes the underlying factor graph for inspection and clamping.
func (e *Engine) Graph() *causalgraph.Graph { return e.graph }

// Iterations returns the number of completed sweeps.
func (e *Engine) Iterations() int { return e.iters }

// MaxDiff returns the largest final belief change (the value of the last
// sweep) of any Run call made so far.
func (e *Engine) MaxDiff() float64 { return e.maxDiff }

// Clone returns a deep copy: an independent graph (via causalgraph.Graph.
// Clone), independent message store and accumulators, same options.
// Intended for EM's per-sample E-step clamping, where every sample needs
// its own clamped copy of the shared graph and engine.
func (e *Engine) Clone() *Engine {
	c := &Engine{
		graph: e.graph.Clone(),
		opts:  e.opts,
		log:   e.log,
		rng:   rand.New(rand.NewSource(e.rng.Int63())),
	}
	c.construct()
	for i := range e.edges {
		copy(c.edges[i], e.edges[i])
		c.rebuildAccumulator(i)
	}
	copy(c.oldBeliefsV, e.oldBeliefsV)
	for I := range e.oldBeliefsF {
		copy(c.oldBeliefsF[I], e.oldBeliefsF[I])
	}
	c.iters = e.iters
	c.maxDiff = e.maxDiff
	return c
}

// Belief returns (P(i=0), P(i=1)) for variable index i.
func (e *Engine) Belief(i int) (float64, float64, error) {
	p0 := e.varMsg[i][0].Total(e.opts.LogDomain)
	p1 := e.varMsg[i][1].Total(e.opts.LogDomain)
	if e.opts.LogDomain {
		m := p0
		if p1 > m {
			m = p1
		}
		p0 = expOrZero(p0 - m)
		p1 = expOrZero(p1 - m)
	}
	return normalizeOrErr(p0, p1)
}

// Beliefs returns Belief(i) for every variable, in index order. A
// degenerate variable's pair is (0, 0); callers that need to distinguish
// that from a genuine 50/50 belief should call Belief directly.
func (e *Engine) Beliefs() [][2]float64 {
	out := make([][2]float64, e.graph.NrVars())
	for i := range out {
		p0, p1, err := e.Belief(i)
		if err == nil {
			out[i] = [2]float64{p0, p1}
		}
	}
	return out
}

// BeliefFactor returns a factor's belief, defined differently per type:
// for a Singleton it is the head's full marginal (P(head=0), P(head=1))
// — a Singleton's only neighbour is its own head (see
// causalfactor.Factor.Vars), so a leave-one-out computation over that
// single neighbour is uninformative by construction and always degenerates
// to (0.5, 0.5). For an And/Or factor it is the per-neighbour P(var=1)
// marginal, head and body variables alike in neighbour order, used to
// display the factor's incoming evidence —
// the independent marginal of every variable it touches, not a joint
// distribution over the factor's full state space, which for a k-ary gate
// would be exponential in k.
func (e *Engine) BeliefFactor(I int) []float64 {
	f := e.graph.Factor(I)
	if f.Type == causalfactor.Singleton {
		vi, err := e.graph.FindVar(f.Head)
		if err != nil {
			return nil
		}
		p0, p1, err := e.Belief(vi)
		if err != nil {
			return nil
		}
		return []float64{p0, p1}
	}

	nb := e.graph.NbF(I)
	out := make([]float64, len(nb))
	for idx, j := range nb {
		orig := e.edges[j.Index][j.Dual].message
		p0 := e.varMsg[j.Index][0].LeaveOneOut(I, orig[0], e.opts.LogDomain)
		p1 := e.varMsg[j.Index][1].LeaveOneOut(I, orig[1], e.opts.LogDomain)
		if e.opts.LogDomain {
			p0 = expOrZero(p0)
			p1 = expOrZero(p1)
		}
		_, p1n := normalizeSilent(p0, p1)
		out[idx] = p1n
	}
	return out
}

// LogZ returns the Bethe approximation to the log partition function,
// here reduced (since every factor's contribution collapses identically
// for deterministic And/Or gates) to a sum over variables of
// (1 - degree(i)) * entropy(belief(i)).
func (e *Engine) LogZ() float64 {
	var sum float64
	for i := 0; i < e.graph.NrVars(); i++ {
		_, p1, err := e.Belief(i)
		if err != nil {
			continue
		}
		h := causalprob.Entropy(p1)
		deg := len(e.graph.NbV(i))
		sum += (1.0 - float64(deg)) * h
	}
	return sum
}

func expOrZero(x float64) float64 {
	if x > 700 {
		return 1e300
	}
	return math.Exp(x)
}
