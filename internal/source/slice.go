package source

import (
	"context"

	"github.com/syntrixbase/indexsync/pkg/model"
)

// Slice is an OrderedSource over records already in memory. It yields the
// records in the order given and does not sort them.
type Slice struct {
	records []model.Record
	pos     int
	cur     model.Record
	err     error
}

// NewSlice creates a Slice source.
func NewSlice(records ...model.Record) *Slice {
	return &Slice{records: records}
}

// Next implements OrderedSource.
func (s *Slice) Next(ctx context.Context) bool {
	if s.err != nil || s.pos >= len(s.records) {
		return false
	}
	if err := ctx.Err(); err != nil {
		s.err = err
		return false
	}
	s.cur = s.records[s.pos]
	s.pos++
	return true
}

// Record implements OrderedSource.
func (s *Slice) Record() model.Record {
	return s.cur
}

// Err implements OrderedSource.
func (s *Slice) Err() error {
	return s.err
}

// Close implements OrderedSource.
func (s *Slice) Close() error {
	s.pos = len(s.records)
	return nil
}

// Drain reads src to the end and returns every record.
func Drain(ctx context.Context, src OrderedSource) ([]model.Record, error) {
	var out []model.Record
	for src.Next(ctx) {
		out = append(out, src.Record())
	}
	return out, src.Err()
}
