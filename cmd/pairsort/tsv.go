package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/nobletooth/pairs/pkg/pair"
	"github.com/nobletooth/pairs/pkg/shuffle"
)

const (
	formatTSV    = "tsv"
	formatBinary = "binary"
)

// maxLineSize fits the longest left element plus its right element.
const maxLineSize = 1 << 20

// parseLine parses a `left<TAB>right` line. The left element may contain tabs itself; the last tab splits them.
func parseLine(line string) (pair.StringFloat, error) {
	tab := strings.LastIndexByte(line, '\t')
	if tab < 0 {
		return pair.StringFloat{}, errors.New("expected a tab between left and right elements")
	}
	right, err := strconv.ParseFloat(strings.TrimSpace(line[tab+1:]), 32)
	if err != nil {
		return pair.StringFloat{}, fmt.Errorf("invalid right element: %w", err)
	}
	return pair.NewStringFloat(line[:tab], float32(right)), nil
}

// formatLine renders a pair the way parseLine reads it.
func formatLine(p pair.StringFloat) string {
	return p.Left() + "\t" + strconv.FormatFloat(float64(p.Right()), 'g', -1, 32)
}

// pairAdder is where parsed pairs go; both sorters and shufflers are.
type pairAdder interface {
	AddPair(p pair.StringFloat) error
}

// readTSV adds every pair of the TSV stream `r` to `adder`. Empty lines are skipped.
func readTSV(r io.Reader, adder pairAdder) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineSize)
	added := 0
	for lineNumber := 1; scanner.Scan(); lineNumber++ {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		p, err := parseLine(line)
		if err != nil {
			return added, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		if err := adder.AddPair(p); err != nil {
			return added, fmt.Errorf("line %d: %w", lineNumber, err)
		}
		added++
	}
	if err := scanner.Err(); err != nil {
		return added, fmt.Errorf("failed to read input: %w", err)
	}
	return added, nil
}

// writeSorted writes every record of `sorter` to `w` in sorted order, either as TSV lines or as raw records.
func writeSorted(ctx context.Context, sorter *shuffle.Sorter, w io.Writer, format string) (int, error) {
	if format != formatTSV && format != formatBinary {
		return 0, fmt.Errorf("unsupported output format %q, expected %s or %s", format, formatTSV, formatBinary)
	}
	writer := bufio.NewWriter(w)
	written := 0
	for record, err := range sorter.Sorted(ctx) {
		if err != nil {
			return written, err
		}
		if format == formatBinary {
			if _, err := writer.Write(record); err != nil {
				return written, fmt.Errorf("failed to write output: %w", err)
			}
		} else {
			var p pair.StringFloat
			if err := p.UnmarshalBinary(record); err != nil {
				return written, err
			}
			if _, err := writer.WriteString(formatLine(p) + "\n"); err != nil {
				return written, fmt.Errorf("failed to write output: %w", err)
			}
		}
		written++
	}
	if err := writer.Flush(); err != nil {
		return written, fmt.Errorf("failed to flush output: %w", err)
	}
	return written, nil
}
