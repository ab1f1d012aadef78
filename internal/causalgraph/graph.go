// Package causalgraph implements the causal factor graph: the bipartite
// adjacency over variables and factors, clamping, factor backup/restore,
// Markov-blanket queries, and the text I/O format.
package causalgraph

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/variable"
)

// Neighbor records one endpoint of a bipartite edge together with its
// "dual": the position of the reverse endpoint in the opposite adjacency
// list. Neighbours are indices into Graph's variable/factor slices, never
// pointers, so that a Graph clone is a plain per-field copy.
type Neighbor struct {
	Index int
	Dual  int
}

// Graph is a causal factor graph: a fixed list of variables, a fixed list
// of factors, and the bipartite adjacency between them. It is built once
// and mutated afterwards only through SetFactor/Clamp/backup-restore;
// neighbour lists never change after construction.
type Graph struct {
	vars    []variable.Label
	factors []causalfactor.Factor

	varIndex map[variable.Label]int

	varNeighbors [][]Neighbor // per variable, ordered list of incident factors
	facNeighbors [][]Neighbor // per factor, ordered list of incident variables

	backup map[int]causalfactor.Factor

	log *zap.Logger
}

// New builds a Graph from a list of factors, deriving the variable list
// from the union of every factor's Vars(). log may be nil (defaults to a
// no-op logger).
func New(factors []causalfactor.Factor, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Graph{
		factors: append([]causalfactor.Factor(nil), factors...),
		backup:  make(map[int]causalfactor.Factor),
		log:     log,
	}
	varSet := variable.Set{}
	for _, f := range g.factors {
		varSet = varSet.Union(f.Vars())
	}
	g.vars = append([]variable.Label(nil), varSet.Labels()...)
	g.varIndex = make(map[variable.Label]int, len(g.vars))
	for i, l := range g.vars {
		g.varIndex[l] = i
	}
	g.constructAdjacency()
	return g
}

func (g *Graph) constructAdjacency() {
	g.varNeighbors = make([][]Neighbor, len(g.vars))
	g.facNeighbors = make([][]Neighbor, len(g.factors))
	for fi, f := range g.factors {
		for _, label := range f.Vars().Labels() {
			vi := g.varIndex[label]
			dualInFac := len(g.facNeighbors[fi])
			dualInVar := len(g.varNeighbors[vi])
			g.varNeighbors[vi] = append(g.varNeighbors[vi], Neighbor{Index: fi, Dual: dualInFac})
			g.facNeighbors[fi] = append(g.facNeighbors[fi], Neighbor{Index: vi, Dual: dualInVar})
		}
	}
}

// NrVars returns the number of variables.
func (g *Graph) NrVars() int { return len(g.vars) }

// NrFactors returns the number of factors.
func (g *Graph) NrFactors() int { return len(g.factors) }

// Var returns the label of variable index i.
func (g *Graph) Var(i int) variable.Label { return g.vars[i] }

// Vars returns every variable label, in index order. Callers must not
// mutate the returned slice.
func (g *Graph) Vars() []variable.Label { return g.vars }

// Factor returns factor index I.
func (g *Graph) Factor(I int) causalfactor.Factor { return g.factors[I] }

// NbV returns the neighbour factors of variable index i, in construction
// order (this order is the edge index used by the BP engine's edge store).
func (g *Graph) NbV(i int) []Neighbor { return g.varNeighbors[i] }

// NbF returns the neighbour variables of factor index I.
func (g *Graph) NbF(I int) []Neighbor { return g.facNeighbors[I] }

// FindVar returns the index of the variable with the given label.
func (g *Graph) FindVar(l variable.Label) (int, error) {
	i, ok := g.varIndex[l]
	if !ok {
		return 0, fmt.Errorf("causalgraph: variable %d not found", int(l))
	}
	return i, nil
}

// SetFactor replaces factor I. If backup is true, the previous value is
// saved so that RestoreFactor(I) can undo this change.
func (g *Graph) SetFactor(I int, f causalfactor.Factor, backup bool) error {
	if !f.Vars().Equal(g.factors[I].Vars()) {
		if !isSubsetVars(f, g.factors[I]) {
			return fmt.Errorf("causalgraph: SetFactor(%d): new factor's variables are not a subset of the original", I)
		}
	}
	if backup {
		if err := g.BackupFactor(I); err != nil {
			return err
		}
	}
	g.factors[I] = f
	return nil
}

// isSubsetVars allows clamp rewrites that shrink the body (removing a
// clamped cause) but rejects anything that would touch unrelated edges.
func isSubsetVars(newF, oldF causalfactor.Factor) bool {
	nv := newF.Vars()
	ov := oldF.Vars()
	for _, l := range nv.Labels() {
		if !ov.Contains(l) {
			return false
		}
	}
	return true
}

// setFactors applies a batch of replacements, each individually backed up
// when backup is true.
func (g *Graph) setFactors(facs map[int]causalfactor.Factor, backup bool) error {
	for i, f := range facs {
		if err := g.SetFactor(i, f, backup); err != nil {
			return err
		}
	}
	return nil
}

// Clamp rewrites every factor incident on variable index i to reflect i
// being observed in state x, via causalfactor.Factor.GenClamped. When
// backup is true every rewritten factor is individually backed up first.
func (g *Graph) Clamp(i, x int, backup bool) error {
	newFacs := make(map[int]causalfactor.Factor)
	v := g.vars[i]
	for _, I := range g.varNeighbors[i] {
		newFacs[I.Index] = g.factors[I.Index].GenClamped(g.log, v, x)
	}
	return g.setFactors(newFacs, backup)
}

// BackupFactor saves factor I's current value so RestoreFactor(I) can
// undo a subsequent change. Returns an error if I already has a pending
// backup (matching the "no nested undo" invariant of the original).
func (g *Graph) BackupFactor(I int) error {
	if _, exists := g.backup[I]; exists {
		return fmt.Errorf("causalgraph: BackupFactor(%d): already backed up (multiple undo)", I)
	}
	g.backup[I] = g.factors[I]
	return nil
}

// RestoreFactor restores factor I from its backup and removes the backup
// entry. Returns an error if no backup exists for I.
func (g *Graph) RestoreFactor(I int) error {
	f, ok := g.backup[I]
	if !ok {
		return fmt.Errorf("causalgraph: RestoreFactor(%d): no backup found", I)
	}
	g.factors[I] = f
	delete(g.backup, I)
	return nil
}

// BackupFactors backs up every factor whose variables intersect ns.
func (g *Graph) BackupFactors(ns variable.Set) error {
	for I, f := range g.factors {
		if f.Vars().Intersects(ns) {
			if err := g.BackupFactor(I); err != nil {
				return err
			}
		}
	}
	return nil
}

// RestoreFactors restores and clears every backed-up factor whose
// variables intersect ns, leaving other pending backups untouched.
func (g *Graph) RestoreFactors(ns variable.Set) error {
	toRestore := make(map[int]causalfactor.Factor)
	for I, f := range g.backup {
		if g.factors[I].Vars().Intersects(ns) {
			toRestore[I] = f
		}
	}
	for I, f := range toRestore {
		g.factors[I] = f
		delete(g.backup, I)
	}
	return nil
}

// RestoreAllFactors restores every backed-up factor and clears the backup
// map entirely.
func (g *Graph) RestoreAllFactors() {
	for I, f := range g.backup {
		g.factors[I] = f
	}
	g.backup = make(map[int]causalfactor.Factor)
}

// Delta returns variable index i's Markov blanket: every variable sharing
// a factor with i (including i itself, per the original's definition).
func (g *Graph) Delta(i int) variable.Set {
	var del variable.Set
	for _, I := range g.varNeighbors[i] {
		for _, j := range g.facNeighbors[I.Index] {
			del.Add(g.vars[j.Index])
		}
	}
	return del
}

// DeltaIndices is Delta expressed as variable indices rather than labels.
func (g *Graph) DeltaIndices(i int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, I := range g.varNeighbors[i] {
		for _, j := range g.facNeighbors[I.Index] {
			if !seen[j.Index] {
				seen[j.Index] = true
				out = append(out, j.Index)
			}
		}
	}
	return out
}

// Clone returns a deep copy: independent factor slice, independent backup
// map, and freshly-shared (immutable) adjacency slices. The adjacency
// itself never mutates after construction so it is safe to alias.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		vars:         g.vars, // immutable after construction, safe to alias
		factors:      append([]causalfactor.Factor(nil), g.factors...),
		varIndex:     g.varIndex, // immutable, safe to alias
		varNeighbors: g.varNeighbors,
		facNeighbors: g.facNeighbors,
		backup:       make(map[int]causalfactor.Factor, len(g.backup)),
		log:          g.log,
	}
	for k, v := range g.backup {
		c.backup[k] = v
	}
	return c
}
