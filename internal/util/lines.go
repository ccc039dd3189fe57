package util

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// LineFunc is called for each line read, without its terminator
type LineFunc func(line string) error

const ctxCheckInterval = 4096

// ReadLines streams r line by line. Lines of any length are supported and
// nothing is retained between calls to fn. It returns the number of lines read.
func ReadLines(ctx context.Context, r io.Reader, fn LineFunc) (int64, error) {
	reader := bufio.NewReaderSize(r, 64*1024)
	var count int64
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 {
			if count%ctxCheckInterval == 0 {
				if cerr := ctx.Err(); cerr != nil {
					return count, cerr
				}
			}
			count++
			if ferr := fn(strings.TrimRight(line, "\r\n")); ferr != nil {
				return count, ferr
			}
		}
		if err == io.EOF {
			return count, nil
		}
		if err != nil {
			return count, err
		}
	}
}
