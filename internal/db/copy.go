package db

import (
	"github.com/jackc/pgx/v5"
)

// Row is anything that can produce a COPY row.
type Row interface {
	CopyValues() []any
}

// ChannelSource implements pgx.CopyFromSource by reading rows from a channel.
// This provides natural backpressure between the record producer and the
// COPY writer. Prefix values (such as a run id) are prepended to every row.
type ChannelSource[T Row] struct {
	ch      <-chan T
	prefix  []any
	current T
	err     error
}

// NewChannelSource creates a CopyFromSource backed by a channel.
func NewChannelSource[T Row](ch <-chan T, prefix ...any) *ChannelSource[T] {
	return &ChannelSource[T]{ch: ch, prefix: prefix}
}

// Next advances to the next row. Returns false when the channel is closed.
func (s *ChannelSource[T]) Next() bool {
	row, ok := <-s.ch
	if !ok {
		return false
	}
	s.current = row
	return true
}

// Values returns the current row's values in COPY column order.
func (s *ChannelSource[T]) Values() ([]any, error) {
	v := s.current.CopyValues()
	if len(s.prefix) == 0 {
		return v, nil
	}
	out := make([]any, 0, len(s.prefix)+len(v))
	out = append(out, s.prefix...)
	return append(out, v...), nil
}

// Err returns any error encountered during iteration.
func (s *ChannelSource[T]) Err() error {
	return s.err
}

// Compile-time check that ChannelSource satisfies the interface.
var _ pgx.CopyFromSource = (*ChannelSource[Row])(nil)
