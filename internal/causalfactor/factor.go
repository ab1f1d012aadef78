// Package causalfactor implements the three causal factor variants —
// Singleton, DefiniteAnd, DefiniteOr — and the clamp rewrite rule
// (gen_clamped) that hard evidence applies to them.
package causalfactor

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/variable"
)

// Type discriminates the three causal factor variants. The rune values
// match the type characters used by the text graph format.
type Type rune

const (
	Singleton   Type = 'I'
	DefiniteAnd Type = '*'
	DefiniteOr  Type = '+'
)

func (t Type) String() string {
	switch t {
	case Singleton:
		return "Singleton"
	case DefiniteAnd:
		return "DefiniteAnd"
	case DefiniteOr:
		return "DefiniteOr"
	default:
		return fmt.Sprintf("Type(%q)", rune(t))
	}
}

// Factor is a tagged causal factor. Singleton factors have Head only, with
// P giving P(head=1). And/Or factors additionally have Body, P (leak/"on"
// probability) and PDefault (the "off" activation).
type Factor struct {
	Type Type

	Head Label
	Body variable.Set

	P        float64
	PDefault float64

	HeadClamped bool
	HeadMask    [2]float64 // [mass on state 0, mass on state 1]
}

// Label is a local alias kept for readability in this package's signatures.
type Label = variable.Label

// NewSingleton builds a Singleton factor with P(head=1) = p.
func NewSingleton(head Label, p float64) Factor {
	return Factor{
		Type:     Singleton,
		Head:     head,
		P:        p,
		HeadMask: [2]float64{1, 1},
	}
}

// NewAnd builds a DefiniteAnd factor. p is the leak/activation probability,
// pDefault the off-probability (defaults to 0 when omitted by callers).
func NewAnd(head Label, body variable.Set, p, pDefault float64) Factor {
	return Factor{
		Type:     DefiniteAnd,
		Head:     head,
		Body:     body,
		P:        p,
		PDefault: pDefault,
		HeadMask: [2]float64{1, 1},
	}
}

// NewOr builds a DefiniteOr factor, mirroring NewAnd.
func NewOr(head Label, body variable.Set, p, pDefault float64) Factor {
	return Factor{
		Type:     DefiniteOr,
		Head:     head,
		Body:     body,
		P:        p,
		PDefault: pDefault,
		HeadMask: [2]float64{1, 1},
	}
}

// Vars returns the set of all variables this factor depends on (head plus
// body).
func (f Factor) Vars() variable.Set {
	vs := variable.NewSet(f.Head)
	for _, l := range f.Body.Labels() {
		vs.Add(l)
	}
	return vs
}

// GenClamped returns a copy of f rewritten to reflect variable v being
// clamped to state x (0 or 1), per the clamp-rewrite rule:
//
//   - Singleton: if v is the head, the new P is the real value of x; if v is
//     unrelated, a warning is logged and an unchanged copy is returned.
//   - And/Or: if v is the head, HeadClamped is set and HeadMask becomes the
//     indicator e_x; if the head was already clamped, the new mask is
//     multiplied elementwise into the existing one (a conflicting pair of
//     clamps collapses the mask to all-zero, which BP observes as an
//     impossible configuration rather than an error). If v is in the body,
//     it is removed from the body; an empty body is a well-defined factor
//     whose message depends only on the leak probabilities.
func (f Factor) GenClamped(log *zap.Logger, v Label, x int) Factor {
	out := f
	out.Body = f.Body.Clone()

	switch f.Type {
	case Singleton:
		if v == f.Head {
			out.P = float64(x)
		} else if log != nil {
			log.Warn("clamp of unrelated variable in singleton factor",
				zap.Int("var", int(v)), zap.Int("head", int(f.Head)))
		}
	case DefiniteAnd, DefiniteOr:
		if v == f.Head {
			var mask [2]float64
			mask[x] = 1
			if f.HeadClamped {
				if log != nil {
					log.Warn("duplicate clamp of factor head",
						zap.Int("head", int(f.Head)), zap.Int("value", x))
				}
				mask[0] *= f.HeadMask[0]
				mask[1] *= f.HeadMask[1]
			}
			out.HeadClamped = true
			out.HeadMask = mask
		} else if f.Body.Contains(v) {
			out.Body.Remove(v)
		}
	}
	return out
}

// String renders a compact debug form: (head type [p] body...).
func (f Factor) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "(%d %c", int(f.Head), rune(f.Type))
	if f.Type == Singleton {
		fmt.Fprintf(&b, " %g", f.P)
	} else {
		for _, l := range f.Body.Labels() {
			fmt.Fprintf(&b, " %d", int(l))
		}
	}
	b.WriteByte(')')
	return b.String()
}
