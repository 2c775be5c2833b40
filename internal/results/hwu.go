package results

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ParseHwU reads the histogram file written by MG5_aMC (MADatNLO.HwU).
//
// Data lines start with two spaces and a sign. The columns used are the
// central value, its error and the scale variation envelope (columns 3, 4,
// 6 and 7, counting from one). Histograms follow one another, so the rows of
// every histogram in the file are concatenated.
func ParseHwU(r io.Reader) (*Table, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	t := &Table{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if !isDataLine(line) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 7 {
			return nil, fmt.Errorf("line %d: %d columns, want at least 7", lineNo, len(fields))
		}
		var vals [4]float64
		for i, col := range [4]int{2, 3, 5, 6} {
			v, err := strconv.ParseFloat(fields[col], 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", lineNo, col+1, err)
			}
			vals[i] = v
		}
		t.Rows = append(t.Rows, Row{Result: vals[0], Error: vals[1], SVMin: vals[2], SVMax: vals[3]})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func isDataLine(line string) bool {
	return len(line) > 2 && line[0] == ' ' && line[1] == ' ' && (line[2] == '+' || line[2] == '-')
}

// ParseHwUFile is ParseHwU on a file.
func ParseHwUFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ParseHwU(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
