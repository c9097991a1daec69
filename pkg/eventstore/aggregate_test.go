package eventstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lkarlslund/redflag/pkg/event"
	"github.com/lkarlslund/redflag/pkg/keys"
)

func TestHitCountsByUserWithNA(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	users := []string{"alice", "alice", "alice", "bob", "bob", ""}
	for i, u := range users {
		e := event.Event{Timestamp: int64(1_000 + i), Name: "checkout", User: u}
		if err := s.Write(ctx, e); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	counts, err := s.HitCounts(ctx, ByUser, event.Query{From: 0, To: 10_000})
	if err != nil {
		t.Fatalf("hit counts: %v", err)
	}
	want := map[string]int{"alice": 3, "bob": 2, NA: 1}
	if len(counts) != len(want) {
		t.Fatalf("expected %d distinct values, got %v", len(want), counts)
	}
	for k, v := range want {
		if counts[k] != v {
			t.Fatalf("counts[%q] = %d, want %d", k, counts[k], v)
		}
	}
}

func TestHitCountsByNameAcrossBuckets(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	names := map[int64]string{
		100:                     "checkout",
		keys.BucketSize + 100:   "checkout",
		2*keys.BucketSize + 100: "dark-mode",
	}
	for ts, name := range names {
		if err := s.Write(ctx, event.Event{Timestamp: ts, Name: name}); err != nil {
			t.Fatalf("write %d: %v", ts, err)
		}
	}
	counts, err := s.HitCounts(ctx, ByName, event.Query{From: 0, To: 3 * keys.BucketSize})
	if err != nil {
		t.Fatalf("hit counts: %v", err)
	}
	if counts["checkout"] != 2 || counts["dark-mode"] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestHitCountsUnknownAttribute(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.HitCounts(context.Background(), Attribute("color"), event.Query{From: 0, To: 1}); !errors.Is(err, event.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery, got %v", err)
	}
}

func TestParseAttribute(t *testing.T) {
	for in, want := range map[string]Attribute{
		"name":   ByName,
		" Host ": ByHost,
		"SOURCE": BySource,
		"user":   ByUser,
	} {
		got, ok := ParseAttribute(in)
		if !ok || got != want {
			t.Fatalf("ParseAttribute(%q) = %q, %v; want %q", in, got, ok, want)
		}
	}
	if _, ok := ParseAttribute("uuid"); ok {
		t.Fatal("uuid must not parse as a grouping attribute")
	}
}

func TestTimeSeriesRegrouping(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, ts := range []int64{500, 1_500, 1_700, 3_500} {
		if err := s.Write(ctx, event.Event{Timestamp: ts}); err != nil {
			t.Fatalf("write %d: %v", ts, err)
		}
	}
	points, err := s.TimeSeries(ctx, event.Query{From: 0, To: 3_999}, time.Second)
	if err != nil {
		t.Fatalf("time series: %v", err)
	}
	if len(points) != 4 {
		t.Fatalf("expected 4 one-second slices, got %d", len(points))
	}
	wantCounts := []int{1, 2, 0, 1}
	for i, want := range wantCounts {
		if points[i].Start != int64(i)*1000 {
			t.Fatalf("point %d start = %d, want %d", i, points[i].Start, int64(i)*1000)
		}
		if points[i].Count != want {
			t.Fatalf("point %d count = %d, want %d", i, points[i].Count, want)
		}
	}
}

func TestTimeSeriesIndependentOfStorageBuckets(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	// Events spread over three storage buckets, charted at a two-hour slice.
	for _, ts := range []int64{100, 3_700_000, 7_300_100} {
		if err := s.Write(ctx, event.Event{Timestamp: ts}); err != nil {
			t.Fatalf("write %d: %v", ts, err)
		}
	}
	points, err := s.TimeSeries(ctx, event.Query{From: 0, To: 7_300_100}, 2*time.Hour)
	if err != nil {
		t.Fatalf("time series: %v", err)
	}
	if len(points) != 2 {
		t.Fatalf("expected 2 two-hour slices, got %d", len(points))
	}
	if points[0].Count != 2 || points[1].Count != 1 {
		t.Fatalf("unexpected regrouping: %+v", points)
	}
}

func TestTimeSeriesRejectsTooFineSlice(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.TimeSeries(context.Background(), event.Query{From: 0, To: 20_000_000}, time.Millisecond)
	if !errors.Is(err, event.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for oversized series, got %v", err)
	}
	if _, err := s.TimeSeries(context.Background(), event.Query{From: 0, To: 10}, 0); !errors.Is(err, event.ErrInvalidQuery) {
		t.Fatalf("expected ErrInvalidQuery for zero slice, got %v", err)
	}
}
