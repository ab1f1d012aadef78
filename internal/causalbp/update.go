package causalbp

import (
	"math"

	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/causalprob"
)

// leaveOneOut returns the normalised (P(j=0), P(j=1)) marginal implied by
// every message incident on variable j except the one from factor I,
// given j's current position in I's neighbour list.
func (e *Engine) leaveOneOut(j causalgraph.Neighbor, I int) (float64, float64) {
	orig := e.edges[j.Index][j.Dual].message
	p0 := e.varMsg[j.Index][0].LeaveOneOut(I, orig[0], e.opts.LogDomain)
	p1 := e.varMsg[j.Index][1].LeaveOneOut(I, orig[1], e.opts.LogDomain)
	if e.opts.LogDomain {
		p0 = expOrZero(p0)
		p1 = expOrZero(p1)
	}
	if !e.opts.FastCausal {
		p0, p1 = normalizeSilent(p0, p1)
	}
	return p0, p1
}

// calcNewMessage computes the factor-to-variable message along the edge at
// (varIdx, pos) — i.e. from factor nbV(varIdx)[pos] to variable varIdx —
// and stores it into that edge's newMessage slot. The closed form below
// exploits the determinism of the And/Or gates to avoid ever materialising
// the factor's full state table.
func (e *Engine) calcNewMessage(varIdx, pos int) error {
	nbv := e.graph.NbV(varIdx)
	I := nbv[pos].Index
	f := e.graph.Factor(I)

	var marg0, marg1 float64

	switch f.Type {
	case causalfactor.Singleton:
		marg1 = f.P
		marg0 = 1.0 - marg1

	case causalfactor.DefiniteAnd, causalfactor.DefiniteOr:
		mask0, mask1 := 1.0, 1.0
		if f.HeadClamped {
			mask0, mask1 = f.HeadMask[0], f.HeadMask[1]
		}
		p1 := f.P
		p0 := f.PDefault
		headIsVar := f.Head == e.graph.Var(varIdx)
		isAnd := f.Type == causalfactor.DefiniteAnd

		if headIsVar {
			t0, t1, eq := 1.0, 1.0, 0.0
			for _, j := range e.graph.NbF(I) {
				if j.Index == varIdx {
					continue
				}
				pj0, pj1 := e.leaveOneOut(j, I)
				var a0, a1, delta float64
				if isAnd {
					a0 = pj0 + pj1
					a1 = pj1
					delta = pj0
				} else {
					a0 = pj0 + pj1
					a1 = pj0
					delta = pj1
				}
				t0 *= a0
				t1 *= a1
				t0, t1 = causalprob.Scale2(t0, t1)
				if !e.opts.FastCausal && a1 != 0 && a0 == a1 && delta != 0 {
					eq += delta / a1
				}
			}
			e1t0 := eq*t0 + (t0 - t1)
			if isAnd {
				marg0 = ((1-p1)*t1 + (1-p0)*e1t0) * mask0
				marg1 = (p1*t1 + p0*e1t0) * mask1
			} else {
				marg0 = (p1*t1 + p0*e1t0) * mask0
				marg1 = ((1-p1)*t1 + (1-p0)*e1t0) * mask1
			}
		} else {
			t0, t1 := 1.0, 1.0
			for _, j := range e.graph.NbF(I) {
				if j.Index == varIdx {
					continue
				}
				pj0, pj1 := e.leaveOneOut(j, I)
				if f.Head == e.graph.Var(j.Index) {
					if isAnd {
						t1 *= (p1 - p0) * (pj1*mask1 - pj0*mask0)
						t0 *= p0*pj1*mask1 + (1-p0)*pj0*mask0
					} else {
						t1 *= (p1 - p0) * (pj0*mask0 - pj1*mask1)
						t0 *= p0*pj0*mask0 + (1-p0)*pj1*mask1
					}
				} else {
					if isAnd {
						t1 *= pj1
					} else {
						t1 *= pj0
					}
					t0 *= pj0 + pj1
				}
				t0, t1 = causalprob.Scale2(t0, t1)
			}
			if isAnd {
				marg0 = t0
				marg1 = t1 + t0
			} else {
				marg0 = t1 + t0
				marg1 = t0
			}
		}
	}

	marg0, marg1, err := normalizeOrErr(marg0, marg1)
	if err != nil {
		return err
	}

	ne := &e.edges[varIdx][pos]
	if e.opts.LogDomain {
		ne.newMessage = [2]float64{math.Log(marg0), math.Log(marg1)}
	} else {
		ne.newMessage = [2]float64{marg0, marg1}
	}
	return nil
}

// updateMessage applies damping (if configured) and commits newMessage
// into message. Outside PARALL scheduling it also incrementally folds the
// change into the destination variable's accumulator, since under
// SeqFix/SeqRnd there is no separate "rebuild sigma" phase.
func (e *Engine) updateMessage(varIdx, pos int) {
	ed := &e.edges[varIdx][pos]
	newMsg := ed.newMessage
	origMsg := ed.message

	if e.opts.Damping != 0 {
		d := e.opts.Damping
		if e.opts.LogDomain {
			newMsg[0] = origMsg[0]*d + newMsg[0]*(1-d)
			newMsg[1] = origMsg[1]*d + newMsg[1]*(1-d)
		} else {
			newMsg[0] = math.Pow(origMsg[0], d) * math.Pow(newMsg[0], 1-d)
			newMsg[1] = math.Pow(origMsg[1], d) * math.Pow(newMsg[1], 1-d)
		}
	}

	if e.opts.Updates != Parall {
		I := e.graph.NbV(varIdx)[pos].Index
		vm0, vm1 := e.varMsg[varIdx][0], e.varMsg[varIdx][1]
		vm0.ResetEdge(I, origMsg[0], e.opts.LogDomain)
		vm1.ResetEdge(I, origMsg[1], e.opts.LogDomain)
		vm0.Accumulate(I, newMsg[0], e.opts.LogDomain)
		vm1.Accumulate(I, newMsg[1], e.opts.LogDomain)
		if e.opts.LogDomain {
			m0, m1 := causalprob.Scale2Log(vm0.Msg(), vm1.Msg())
			vm0.SetMsg(m0)
			vm1.SetMsg(m1)
		} else {
			m0, m1 := causalprob.Scale2(vm0.Msg(), vm1.Msg())
			vm0.SetMsg(m0)
			vm1.SetMsg(m1)
		}
	}

	ed.message = newMsg
}

// rebuildAccumulator recomputes varMsg[varIdx] from scratch out of the
// current edge messages. Used by PARALL's third phase, after every edge
// in the sweep has already been committed.
func (e *Engine) rebuildAccumulator(varIdx int) {
	vm0, vm1 := e.varMsg[varIdx][0], e.varMsg[varIdx][1]
	vm0.Reset(e.opts.LogDomain)
	vm1.Reset(e.opts.LogDomain)
	for pos, nb := range e.graph.NbV(varIdx) {
		I := nb.Index
		m := e.edges[varIdx][pos].message
		vm0.Accumulate(I, m[0], e.opts.LogDomain)
		vm1.Accumulate(I, m[1], e.opts.LogDomain)
		if e.opts.LogDomain {
			a, b := causalprob.Scale2Log(vm0.Msg(), vm1.Msg())
			vm0.SetMsg(a)
			vm1.SetMsg(b)
		} else {
			a, b := causalprob.Scale2(vm0.Msg(), vm1.Msg())
			vm0.SetMsg(a)
			vm1.SetMsg(b)
		}
	}
}
