package bench

import (
	"bytes"
	"encoding/json"
	"os"
	"strconv"
	"strings"

	lderrors "github.com/arkilian/tripload/internal/errors"
	"github.com/arkilian/tripload/internal/stats"
)

// Result maps each batch size to the statistics of its repetitions and
// keeps the batch sizes in the order they were measured.
type Result struct {
	order   []int
	entries map[int]stats.Summary
}

// NewResult creates an empty result.
func NewResult() *Result {
	return &Result{entries: make(map[int]stats.Summary)}
}

// Set records the summary for a batch size.
func (r *Result) Set(batchSize int, s stats.Summary) {
	if _, ok := r.entries[batchSize]; !ok {
		r.order = append(r.order, batchSize)
	}
	r.entries[batchSize] = s
}

// Get returns the summary for a batch size.
func (r *Result) Get(batchSize int) (stats.Summary, bool) {
	s, ok := r.entries[batchSize]
	return s, ok
}

// BatchSizes returns the recorded batch sizes in measurement order.
func (r *Result) BatchSizes() []int {
	return append([]int(nil), r.order...)
}

// Len returns the number of recorded batch sizes.
func (r *Result) Len() int { return len(r.order) }

// MarshalJSON encodes the result as an object keyed by the decimal batch
// size, in measurement order.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, size := range r.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(size)))
		buf.WriteByte(':')
		b, err := json.Marshal(r.entries[size])
		if err != nil {
			return nil, err
		}
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// String renders the result on one line for logging.
func (r *Result) String() string {
	b, err := r.MarshalJSON()
	if err != nil {
		return "{}"
	}
	return string(b)
}

// WriteResult writes the result to path as JSON indented by indent spaces.
func WriteResult(path string, r *Result, indent int) error {
	data, err := json.MarshalIndent(r, "", strings.Repeat(" ", indent))
	if err != nil {
		return lderrors.NewOutputError(lderrors.CodeWriteResultFailed, "encode result", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return lderrors.NewOutputError(lderrors.CodeWriteResultFailed, "write "+path, err)
	}
	return nil
}
