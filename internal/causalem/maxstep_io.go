package causalem

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// ReadMaxSteps parses the maximization-step text format:
//
//	<numSteps>
//	            (blank line, repeated before every step block)
//	<numGroups>
//	<estimatorName>
//	<numFactors>
//	<factorIndices>
//	...          (numGroups repetitions of the three lines above)
//
// Each group becomes one SharedParameter tying the listed factor indices
// together under the named registered ParameterEstimation strategy.
func ReadMaxSteps(r io.Reader) ([]*MaximizationStep, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	nextLine := func() (string, bool) {
		for sc.Scan() {
			line := sc.Text()
			if strings.HasPrefix(strings.TrimSpace(line), "#") {
				continue
			}
			return line, true
		}
		return "", false
	}

	header, ok := nextLine()
	if !ok {
		return nil, fmt.Errorf("causalem: empty input, expected step count")
	}
	numSteps, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		return nil, fmt.Errorf("causalem: invalid step count %q: %w", header, err)
	}

	steps := make([]*MaximizationStep, 0, numSteps)
	for s := 0; s < numSteps; s++ {
		sep, ok := nextLine()
		if !ok || strings.TrimSpace(sep) != "" {
			return nil, fmt.Errorf("causalem: step %d: expected blank separator line", s)
		}

		numGroupsLine, ok := nextLine()
		if !ok {
			return nil, fmt.Errorf("causalem: step %d: missing group count", s)
		}
		numGroups, err := strconv.Atoi(strings.TrimSpace(numGroupsLine))
		if err != nil {
			return nil, fmt.Errorf("causalem: step %d: invalid group count %q: %w", s, numGroupsLine, err)
		}

		step := &MaximizationStep{}
		for grp := 0; grp < numGroups; grp++ {
			estName, ok := nextLine()
			if !ok {
				return nil, fmt.Errorf("causalem: step %d group %d: missing estimator name", s, grp)
			}
			est, err := GetEstimation(strings.TrimSpace(estName))
			if err != nil {
				return nil, fmt.Errorf("causalem: step %d group %d: %w", s, grp, err)
			}

			numFactorsLine, ok := nextLine()
			if !ok {
				return nil, fmt.Errorf("causalem: step %d group %d: missing factor count", s, grp)
			}
			numFactors, err := strconv.Atoi(strings.TrimSpace(numFactorsLine))
			if err != nil {
				return nil, fmt.Errorf("causalem: step %d group %d: invalid factor count %q: %w", s, grp, numFactorsLine, err)
			}

			factorLine, ok := nextLine()
			if !ok {
				return nil, fmt.Errorf("causalem: step %d group %d: missing factor indices", s, grp)
			}
			fields := strings.Fields(factorLine)
			if len(fields) != numFactors {
				return nil, fmt.Errorf("causalem: step %d group %d: expected %d factor indices, got %d", s, grp, numFactors, len(fields))
			}
			ids := make([]int, numFactors)
			for i, tok := range fields {
				v, err := strconv.Atoi(tok)
				if err != nil {
					return nil, fmt.Errorf("causalem: step %d group %d: invalid factor index %q: %w", s, grp, tok, err)
				}
				ids[i] = v
			}
			step.Params = append(step.Params, NewSharedParameter(ids, est))
		}
		steps = append(steps, step)
	}
	return steps, nil
}
