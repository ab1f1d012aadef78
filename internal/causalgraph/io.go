package causalgraph

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/causalbp/causalbp/internal/causalfactor"
	"github.com/causalbp/causalbp/internal/variable"
)

// ReadFrom parses the text causal factor graph format:
//
//	<numFactors>
//	            (blank line, repeated before every factor block)
//	<head>
//	<type><prob>    ('I0.3', '*', '*0.9', '+0.05' — prob omitted on And/Or
//	                 means leak=1, default=0, i.e. a deterministic gate)
//	<bodyLen>
//	<bodyLabels>    (omitted entirely when bodyLen is 0)
//
// Lines whose first non-blank character is '#' are comments and are
// skipped wherever a line is expected.
func ReadFrom(r io.Reader, log *zap.Logger) (*Graph, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	nextLine := func() (string, bool) {
		for sc.Scan() {
			line := sc.Text()
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "#") {
				continue
			}
			return line, true
		}
		return "", false
	}

	header, ok := nextLine()
	if !ok {
		return nil, fmt.Errorf("causalgraph: empty input, expected factor count")
	}
	numFactors, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("causalgraph: invalid factor count %q: %w", header, err)
	}

	factors := make([]causalfactor.Factor, 0, numFactors)
	for i := 0; i < numFactors; i++ {
		sep, ok := nextLine()
		if !ok || strings.TrimSpace(sep) != "" {
			return nil, fmt.Errorf("causalgraph: factor %d: expected blank separator line", i)
		}

		headLine, ok := nextLine()
		if !ok {
			return nil, fmt.Errorf("causalgraph: factor %d: missing head line", i)
		}
		headVal, err := strconv.Atoi(strings.TrimSpace(headLine))
		if err != nil {
			return nil, fmt.Errorf("causalgraph: factor %d: invalid head %q: %w", i, headLine, err)
		}
		head := variable.Label(headVal)

		typeLine, ok := nextLine()
		if !ok || len(strings.TrimSpace(typeLine)) == 0 {
			return nil, fmt.Errorf("causalgraph: factor %d: missing type line", i)
		}
		typeLine = strings.TrimSpace(typeLine)
		typeChar := causalfactor.Type(typeLine[0])

		var prob float64
		hasProb := false
		if len(typeLine) > 1 {
			prob, err = strconv.ParseFloat(typeLine[1:], 64)
			if err != nil {
				return nil, fmt.Errorf("causalgraph: factor %d: invalid probability %q: %w", i, typeLine[1:], err)
			}
			hasProb = true
		}

		bodyLenLine, ok := nextLine()
		if !ok {
			return nil, fmt.Errorf("causalgraph: factor %d: missing body length line", i)
		}
		bodyLen, err := strconv.Atoi(strings.TrimSpace(bodyLenLine))
		if err != nil {
			return nil, fmt.Errorf("causalgraph: factor %d: invalid body length %q: %w", i, bodyLenLine, err)
		}

		var body variable.Set
		if bodyLen > 0 {
			bodyLine, ok := nextLine()
			if !ok {
				return nil, fmt.Errorf("causalgraph: factor %d: missing body line", i)
			}
			fields := strings.Fields(bodyLine)
			if len(fields) != bodyLen {
				return nil, fmt.Errorf("causalgraph: factor %d: expected %d body labels, got %d", i, bodyLen, len(fields))
			}
			for _, tok := range fields {
				v, err := strconv.Atoi(tok)
				if err != nil {
					return nil, fmt.Errorf("causalgraph: factor %d: invalid body label %q: %w", i, tok, err)
				}
				body.Add(variable.Label(v))
			}
		}

		switch typeChar {
		case causalfactor.Singleton:
			if !hasProb {
				return nil, fmt.Errorf("causalgraph: factor %d: Singleton factor requires a probability", i)
			}
			factors = append(factors, causalfactor.NewSingleton(head, prob))
		case causalfactor.DefiniteAnd:
			p := 1.0
			if hasProb {
				p = prob
			}
			factors = append(factors, causalfactor.NewAnd(head, body, p, 0))
		case causalfactor.DefiniteOr:
			p := 1.0
			if hasProb {
				p = prob
			}
			factors = append(factors, causalfactor.NewOr(head, body, p, 0))
		default:
			return nil, fmt.Errorf("causalgraph: factor %d: unknown type character %q", i, string(rune(typeChar)))
		}
	}

	return New(factors, log), nil
}

// WriteTo renders g in the same text format read by ReadFrom.
func (g *Graph) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, g.NrFactors())
	for _, f := range g.factors {
		fmt.Fprintln(bw)
		fmt.Fprintln(bw, int(f.Head))
		switch f.Type {
		case causalfactor.Singleton:
			fmt.Fprintf(bw, "%c%g\n", rune(f.Type), f.P)
			fmt.Fprintln(bw, 0)
		default:
			if f.P == 1 {
				fmt.Fprintf(bw, "%c\n", rune(f.Type))
			} else {
				fmt.Fprintf(bw, "%c%g\n", rune(f.Type), f.P)
			}
			labels := f.Body.Labels()
			fmt.Fprintln(bw, len(labels))
			if len(labels) > 0 {
				strs := make([]string, len(labels))
				for i, l := range labels {
					strs[i] = strconv.Itoa(int(l))
				}
				fmt.Fprintln(bw, strings.Join(strs, " "))
			}
		}
	}
	return bw.Flush()
}

// Read opens path and parses it as a causal factor graph.
func Read(path string, log *zap.Logger) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadFrom(f, log)
}

// Write renders g to path, truncating any existing file.
func (g *Graph) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return g.WriteTo(f)
}
