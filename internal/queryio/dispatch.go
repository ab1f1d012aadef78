// Package queryio — dispatch.go
//
// Line-oriented query command surface.
//
// Protocol: whitespace-tokenized commands on standard input, one reply per
// command on standard output.
//
// Commands:
//
//	Q var_index                              -> belief(1)
//	FQ factor_index value_index               -> belief(factor)[value]
//	BP tolerance minIters maxIters histLength -> yet-to-converge fraction
//	O var_index true|false                    -> echo; enqueue a clamp
//	UC var_index                              -> echo; remove a clamp
//	NL                                        -> empty line
//
// Clamps enqueued by O/UC are applied to the graph at the next BP command,
// not immediately — this lets a caller batch several observations before
// paying for a sweep.
//
// Exit code 0 on clean EOF, 1 on argument errors (propagated as an error
// from Run; the caller maps it to the process exit code).

package queryio

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/causalbp"
	"github.com/causalbp/causalbp/internal/causalgraph"
	"github.com/causalbp/causalbp/internal/ratelimit"
	"github.com/causalbp/causalbp/internal/variable"
)

type pendingOp struct {
	varIdx int
	clamp  bool // true = clamp to value, false = unclamp (restore)
	value  int
}

// Dispatcher holds the BP engine a query session operates on, plus any
// observations enqueued since the last BP command.
type Dispatcher struct {
	engine  *causalbp.Engine
	graph   *causalgraph.Graph
	pending []pendingOp
	log     *zap.Logger

	// bpBudget throttles BP commands: each caller gets a bounded number of
	// sweep-triggering requests per refill window, independent of how many
	// Q/FQ/O/UC commands it issues.
	bpBudget *ratelimit.Bucket
}

// New builds a Dispatcher over an already-initialised engine. BP commands
// are not capped until WithBPBudget attaches a budget.
func New(engine *causalbp.Engine, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		engine: engine,
		graph:  engine.Graph(),
		log:    log,
	}
}

// WithBPBudget enables rate limiting of BP commands: at most capacity
// sweep requests per refillPeriod, refilling to full capacity each period.
func (d *Dispatcher) WithBPBudget(capacity int, refillPeriod time.Duration) *Dispatcher {
	d.bpBudget = ratelimit.New(capacity, refillPeriod)
	return d
}

// Run reads commands from r and writes replies to w until EOF or a
// malformed command. Returns nil on clean EOF, a non-nil error on the
// first argument error (ArgumentInvalid) encountered.
func (d *Dispatcher) Run(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		if err := d.dispatch(fields[0], fields[1:], bw); err != nil {
			bw.Flush()
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *Dispatcher) dispatch(cmd string, args []string, w *bufio.Writer) error {
	switch cmd {
	case "Q":
		return d.cmdQ(args, w)
	case "FQ":
		return d.cmdFQ(args, w)
	case "BP":
		return d.cmdBP(args, w)
	case "O":
		return d.cmdO(args, w)
	case "UC":
		return d.cmdUC(args, w)
	case "NL":
		return d.cmdNL(args, w)
	default:
		return argErrorf("unknown command %q", cmd)
	}
}

func (d *Dispatcher) cmdQ(args []string, w *bufio.Writer) error {
	if len(args) != 1 {
		return argErrorf("Q: expected 1 argument, got %d", len(args))
	}
	label, err := parseInt(args[0], "var_index")
	if err != nil {
		return err
	}
	vi, ferr := d.graph.FindVar(variable.Label(label))
	if ferr != nil {
		return argErrorf("Q: %v", ferr)
	}
	_, p1, berr := d.engine.Belief(vi)
	if berr != nil {
		return fmt.Errorf("Q: %w", berr)
	}
	fmt.Fprintf(w, "%.17g\n", p1)
	return nil
}

func (d *Dispatcher) cmdFQ(args []string, w *bufio.Writer) error {
	if len(args) != 2 {
		return argErrorf("FQ: expected 2 arguments, got %d", len(args))
	}
	factorIdx, err := parseInt(args[0], "factor_index")
	if err != nil {
		return err
	}
	valueIdx, err := parseInt(args[1], "value_index")
	if err != nil {
		return err
	}
	if factorIdx < 0 || factorIdx >= d.graph.NrFactors() {
		return argErrorf("FQ: factor_index %d out of range", factorIdx)
	}
	belief := d.engine.BeliefFactor(factorIdx)
	if valueIdx < 0 || valueIdx >= len(belief) {
		return argErrorf("FQ: value_index %d out of range", valueIdx)
	}
	fmt.Fprintf(w, "%.17g\n", belief[valueIdx])
	return nil
}

func (d *Dispatcher) cmdBP(args []string, w *bufio.Writer) error {
	if len(args) != 4 {
		return argErrorf("BP: expected 4 arguments, got %d", len(args))
	}
	tol, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return argErrorf("BP: invalid tolerance %q", args[0])
	}
	minIters, err := parseInt(args[1], "minIters")
	if err != nil {
		return err
	}
	maxIters, err := parseInt(args[2], "maxIters")
	if err != nil {
		return err
	}
	histLength, err := parseInt(args[3], "histLength")
	if err != nil {
		return err
	}

	if d.bpBudget != nil && !d.bpBudget.Consume(1) {
		return argErrorf("BP: rate limit exceeded, %d/%d tokens remaining", d.bpBudget.Remaining(), d.bpBudget.Capacity())
	}

	if err := d.applyPending(); err != nil {
		return err
	}

	d.engine.Init()
	_, yetToConverge, rerr := d.engine.RunExtended(tol, minIters, maxIters, histLength)
	if rerr != nil {
		return fmt.Errorf("BP: %w", rerr)
	}
	fmt.Fprintf(w, "%.17g\n", yetToConverge)
	return nil
}

func (d *Dispatcher) cmdO(args []string, w *bufio.Writer) error {
	if len(args) != 2 {
		return argErrorf("O: expected 2 arguments, got %d", len(args))
	}
	label, err := parseInt(args[0], "var_index")
	if err != nil {
		return err
	}
	value, err := parseBool01(args[1])
	if err != nil {
		return err
	}
	vi, ferr := d.graph.FindVar(variable.Label(label))
	if ferr != nil {
		return argErrorf("O: %v", ferr)
	}
	d.pending = append(d.pending, pendingOp{varIdx: vi, clamp: true, value: value})
	fmt.Fprintf(w, "O %s %s\n", args[0], args[1])
	return nil
}

func (d *Dispatcher) cmdUC(args []string, w *bufio.Writer) error {
	if len(args) != 1 {
		return argErrorf("UC: expected 1 argument, got %d", len(args))
	}
	label, err := parseInt(args[0], "var_index")
	if err != nil {
		return err
	}
	vi, ferr := d.graph.FindVar(variable.Label(label))
	if ferr != nil {
		return argErrorf("UC: %v", ferr)
	}
	d.pending = append(d.pending, pendingOp{varIdx: vi, clamp: false})
	fmt.Fprintf(w, "UC %s\n", args[0])
	return nil
}

func (d *Dispatcher) cmdNL(args []string, w *bufio.Writer) error {
	if len(args) != 0 {
		return argErrorf("NL: expected 0 arguments, got %d", len(args))
	}
	fmt.Fprintln(w)
	return nil
}

// applyPending flushes enqueued O/UC operations into the graph: each clamp
// backs up the factor it touches first so a later UC can restore it.
func (d *Dispatcher) applyPending() error {
	for _, op := range d.pending {
		if op.clamp {
			if err := d.graph.Clamp(op.varIdx, op.value, true); err != nil {
				return fmt.Errorf("BP: applying clamp: %w", err)
			}
		} else {
			// Restore every factor incident to this variable, mirroring the
			// scope Clamp touched when it was applied.
			for _, nb := range d.graph.NbV(op.varIdx) {
				if err := d.graph.RestoreFactor(nb.Index); err != nil {
					d.log.Debug("queryio: restore skipped (no backup)", zap.Int("factor", nb.Index))
				}
			}
		}
	}
	d.pending = d.pending[:0]
	return nil
}

func parseInt(s, name string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, argErrorf("invalid %s %q", name, s)
	}
	return v, nil
}

func parseBool01(s string) (int, error) {
	switch s {
	case "true":
		return 1, nil
	case "false":
		return 0, nil
	default:
		return 0, argErrorf("expected true|false, got %q", s)
	}
}

type argumentInvalidError struct{ msg string }

func (e *argumentInvalidError) Error() string { return "queryio: " + e.msg }

func argErrorf(format string, args ...interface{}) error {
	return &argumentInvalidError{msg: fmt.Sprintf(format, args...)}
}
