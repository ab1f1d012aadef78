// Package evidence implements the tab-separated evidence table format: one
// row per sample, one column per observed variable, used to drive the EM
// driver's E-step.
package evidence

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/causalbp/causalbp/internal/variable"
)

// Observation is one clamped (variable, value) pair within a sample.
type Observation struct {
	Var   variable.Label
	Value int
}

// Sample is one row of the evidence table: every variable observed for
// that row, in column order.
type Sample []Observation

// Table is a full evidence set: a fixed column header (the observed
// variables, in file order) plus one Sample per row.
type Table struct {
	Vars    []variable.Label
	Samples []Sample
}

// NrSamples returns the number of rows.
func (t Table) NrSamples() int { return len(t.Samples) }

// ReadFrom parses the tab-separated evidence format:
//
//	head_0	head_1	...	head_k
//	v_00	v_01	...	v_0k
//	v_10	v_11	...	v_1k
//	...
//
// The header row gives the variable label observed in each column; every
// following row gives that sample's 0/1 value for each column. Blank
// lines and lines starting with '#' are skipped.
func ReadFrom(r io.Reader) (Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)

	var header []string
	haveHeader := false
	var rows [][]string

	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if !haveHeader {
			header = fields
			haveHeader = true
			continue
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return Table{}, err
	}
	if !haveHeader {
		return Table{}, fmt.Errorf("evidence: empty input, expected a header row")
	}

	vars := make([]variable.Label, len(header))
	for i, h := range header {
		v, err := strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return Table{}, fmt.Errorf("evidence: invalid header variable %q: %w", h, err)
		}
		vars[i] = variable.Label(v)
	}

	samples := make([]Sample, 0, len(rows))
	for ri, row := range rows {
		if len(row) != len(vars) {
			return Table{}, fmt.Errorf("evidence: row %d has %d columns, want %d", ri, len(row), len(vars))
		}
		s := make(Sample, len(vars))
		for ci, cell := range row {
			cell = strings.TrimSpace(cell)
			val, err := strconv.Atoi(cell)
			if err != nil {
				return Table{}, fmt.Errorf("evidence: row %d col %d: invalid value %q: %w", ri, ci, cell, err)
			}
			if val != 0 && val != 1 {
				return Table{}, fmt.Errorf("evidence: row %d col %d: value %d is not binary", ri, ci, val)
			}
			s[ci] = Observation{Var: vars[ci], Value: val}
		}
		samples = append(samples, s)
	}

	return Table{Vars: vars, Samples: samples}, nil
}

// WriteTo renders t in the same tab-separated format read by ReadFrom.
func (t Table) WriteTo(w io.Writer) error {
	bw := bufio.NewWriter(w)
	strs := make([]string, len(t.Vars))
	for i, v := range t.Vars {
		strs[i] = strconv.Itoa(int(v))
	}
	if _, err := fmt.Fprintln(bw, strings.Join(strs, "\t")); err != nil {
		return err
	}
	for _, s := range t.Samples {
		cells := make([]string, len(s))
		for i, obs := range s {
			cells[i] = strconv.Itoa(obs.Value)
		}
		if _, err := fmt.Fprintln(bw, strings.Join(cells, "\t")); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Read opens path and parses it as an evidence table.
func Read(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, err
	}
	defer f.Close()
	return ReadFrom(f)
}

// Write renders t to path, truncating any existing file.
func (t Table) Write(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return t.WriteTo(f)
}
