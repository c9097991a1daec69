package eventstore

import (
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/lkarlslund/redflag/pkg/event"
)

// ExportJSONL streams the window as zstd-compressed JSON lines, one event
// per line, and returns how many were written.
func (s *Store) ExportJSONL(ctx context.Context, q event.Query, w io.Writer) (int, error) {
	events, err := s.Range(ctx, q)
	if err != nil {
		return 0, err
	}
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return 0, fmt.Errorf("zstd writer: %w", err)
	}
	for i, e := range events {
		line, err := s.codec.Encode(e)
		if err != nil {
			zw.Close()
			return i, err
		}
		if _, err := zw.Write(append(line, '\n')); err != nil {
			zw.Close()
			return i, fmt.Errorf("write export line: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close export stream: %w", err)
	}
	return len(events), nil
}
