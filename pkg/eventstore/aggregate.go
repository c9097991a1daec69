package eventstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lkarlslund/redflag/pkg/event"
)

// Attribute selects which event field hit counts group by.
type Attribute string

const (
	ByName   Attribute = "name"
	ByHost   Attribute = "host"
	BySource Attribute = "source"
	ByUser   Attribute = "user"
)

// NA is the bucket for events whose grouping attribute is absent. Every
// event in the window must be attributable, so nothing is dropped.
const NA = "NA"

// maxSeriesPoints bounds TimeSeries output so a fine slice over a wide
// window cannot blow up memory. No chart needs more.
const maxSeriesPoints = 10_000

func ParseAttribute(s string) (Attribute, bool) {
	switch Attribute(strings.ToLower(strings.TrimSpace(s))) {
	case ByName:
		return ByName, true
	case ByHost:
		return ByHost, true
	case BySource:
		return BySource, true
	case ByUser:
		return ByUser, true
	}
	return "", false
}

func extractor(attr Attribute) (func(event.Event) string, bool) {
	switch attr {
	case ByName:
		return func(e event.Event) string { return e.Name }, true
	case ByHost:
		return func(e event.Event) string { return e.Host }, true
	case BySource:
		return func(e event.Event) string { return e.Source }, true
	case ByUser:
		return func(e event.Event) string { return e.User }, true
	}
	return nil, false
}

// HitCounts fetches the window once and folds it into per-value tallies for
// the requested attribute.
func (s *Store) HitCounts(ctx context.Context, attr Attribute, q event.Query) (map[string]int, error) {
	get, ok := extractor(attr)
	if !ok {
		return nil, fmt.Errorf("%w: unknown attribute %q", event.ErrInvalidQuery, attr)
	}
	events, err := s.Range(ctx, q)
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, e := range events {
		v := get(e)
		if v == "" {
			v = NA
		}
		counts[v]++
	}
	return counts, nil
}

type SeriesPoint struct {
	Start int64 `json:"start"`
	Count int   `json:"count"`
}

// TimeSeries regroups the fetched window into epoch-aligned slices of the
// caller's width. Reporting granularity is independent of the one-hour
// storage buckets. Points are ascending and gap-free across the window.
func (s *Store) TimeSeries(ctx context.Context, q event.Query, slice time.Duration) ([]SeriesPoint, error) {
	width := slice.Milliseconds()
	if width <= 0 {
		return nil, fmt.Errorf("%w: slice must be at least 1ms, got %v", event.ErrInvalidQuery, slice)
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	first := q.From / width
	last := q.To / width
	n := last - first + 1
	if n > maxSeriesPoints {
		return nil, fmt.Errorf("%w: slice %v yields %d points over the window, max %d", event.ErrInvalidQuery, slice, n, maxSeriesPoints)
	}
	events, err := s.Range(ctx, q)
	if err != nil {
		return nil, err
	}
	counts := make([]int, n)
	for _, e := range events {
		counts[e.Timestamp/width-first]++
	}
	out := make([]SeriesPoint, n)
	for i := range out {
		out[i] = SeriesPoint{Start: (first + int64(i)) * width, Count: counts[i]}
	}
	return out, nil
}
