package lhapdf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// block is one Q subgrid of a member file. values are stored x-major:
// values[(ix*len(logQ2)+iq)*len(pids)+ipid].
type block struct {
	logX   []float64
	logQ2  []float64
	pids   []int
	values []float64
}

func (b *block) pidIndex(pid int) int {
	for i, p := range b.pids {
		if p == pid {
			return i
		}
	}
	return -1
}

const separator = "---"

// parseMember reads the YAML header and every data block of an lhagrid1
// member file.
func parseMember(r io.Reader) ([]*block, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	format := ""
	headerDone := false
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == separator {
			headerDone = true
			break
		}
		if v, ok := strings.CutPrefix(line, "Format:"); ok {
			format = strings.TrimSpace(v)
		}
	}
	if !headerDone {
		return nil, errors.New("missing header separator")
	}
	if format != "" && format != "lhagrid1" {
		return nil, fmt.Errorf("unsupported member format %q", format)
	}

	var blocks []*block
	for {
		b, err := parseBlock(sc)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("block %d: %w", len(blocks), err)
		}
		blocks = append(blocks, b)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(blocks) == 0 {
		return nil, errors.New("no data blocks")
	}
	return blocks, nil
}

func nextLine(sc *bufio.Scanner) (string, bool) {
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line, true
		}
	}
	return "", false
}

func parseBlock(sc *bufio.Scanner) (*block, error) {
	xLine, ok := nextLine(sc)
	if !ok {
		return nil, io.EOF
	}
	qLine, ok := nextLine(sc)
	if !ok {
		return nil, errors.New("missing Q knots")
	}
	pidLine, ok := nextLine(sc)
	if !ok {
		return nil, errors.New("missing flavour list")
	}

	xs, err := parseFloats(xLine)
	if err != nil {
		return nil, fmt.Errorf("x knots: %w", err)
	}
	qs, err := parseFloats(qLine)
	if err != nil {
		return nil, fmt.Errorf("Q knots: %w", err)
	}
	var pids []int
	for _, f := range strings.Fields(pidLine) {
		pid, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("flavour list: %w", err)
		}
		pids = append(pids, pid)
	}
	if len(xs) < 2 || len(qs) < 2 {
		return nil, fmt.Errorf("need at least two x and Q knots, got %d and %d", len(xs), len(qs))
	}

	b := &block{
		logX:   make([]float64, len(xs)),
		logQ2:  make([]float64, len(qs)),
		pids:   pids,
		values: make([]float64, 0, len(xs)*len(qs)*len(pids)),
	}
	for i, x := range xs {
		b.logX[i] = logOf(x)
	}
	for i, q := range qs {
		b.logQ2[i] = logOf(q * q)
	}

	rows := len(xs) * len(qs)
	for row := 0; row < rows; row++ {
		line, ok := nextLine(sc)
		if !ok || line == separator {
			return nil, fmt.Errorf("expected %d rows, got %d", rows, row)
		}
		vals, err := parseFloats(line)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		if len(vals) != len(pids) {
			return nil, fmt.Errorf("row %d: %d values for %d flavours", row, len(vals), len(pids))
		}
		b.values = append(b.values, vals...)
	}
	if line, ok := nextLine(sc); !ok || line != separator {
		return nil, errors.New("missing block separator")
	}
	return b, nil
}

func parseFloats(line string) ([]float64, error) {
	fields := strings.Fields(line)
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
