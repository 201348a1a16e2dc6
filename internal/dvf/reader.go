package dvf

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/carrefour/dvf-engine/internal/common"
)

// Reader streams raw rows out of a DVF source file in bounded chunks so
// that multi-gigabyte vintages never have to fit in memory.
type Reader struct {
	scanner *bufio.Scanner
	schema  *Schema
	line    int
}

// NewReader consumes the header row and prepares chunked reading.
func NewReader(r io.Reader) (*Reader, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("%w: reading header: %v", common.ErrMalformedChunk, err)
		}
		return nil, fmt.Errorf("%w: empty file", common.ErrMalformedChunk)
	}

	schema, err := ParseHeader(scanner.Text())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedChunk, err)
	}

	return &Reader{scanner: scanner, schema: schema, line: 1}, nil
}

// Schema returns the resolved column layout of the file being read.
func (r *Reader) Schema() *Schema {
	return r.schema
}

// ReadChunk returns up to max raw rows, already split into fields.
// A short (or empty) result with nil error means end of file.
func (r *Reader) ReadChunk(max int) ([][]string, error) {
	rows := make([][]string, 0, max)
	for len(rows) < max && r.scanner.Scan() {
		r.line++
		text := r.scanner.Text()
		if text == "" {
			continue
		}
		rows = append(rows, strings.Split(text, "|"))
	}

	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: line %d: %v", common.ErrMalformedChunk, r.line, err)
	}

	return rows, nil
}

// Line reports the last source line consumed, header included.
func (r *Reader) Line() int {
	return r.line
}
