package daemon

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/feed"
	"github.com/username/timetable/internal/store/sqlite"
)

type countingSink struct {
	loader *countingLoader
	rows   int
}

func (s *countingSink) Write([]any) error {
	s.rows++
	return nil
}

func (s *countingSink) Close() error {
	s.loader.rows = append(s.loader.rows, s.rows)
	return nil
}

type countingLoader struct {
	runs []uuid.UUID
	rows []int
}

func (l *countingLoader) Sink(_ context.Context, _ feed.Schema, runID uuid.UUID, _ int) (feed.Sink, error) {
	l.runs = append(l.runs, runID)
	return &countingSink{loader: l}, nil
}

func newTestDaemon(loader Loader, now time.Time) *Daemon {
	d := New(loader, Options{DailyHour: 2, DailyMinute: 30, WindowDays: 5, BatchSize: 4}, zap.NewNop())
	d.now = func() time.Time { return now }
	return d
}

func TestCalculateNextRun(t *testing.T) {
	d := newTestDaemon(&countingLoader{}, time.Time{})
	loc := time.UTC

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"before schedule", time.Date(2024, 3, 10, 1, 0, 0, 0, loc), time.Date(2024, 3, 10, 2, 30, 0, 0, loc)},
		{"exactly at schedule", time.Date(2024, 3, 10, 2, 30, 0, 0, loc), time.Date(2024, 3, 11, 2, 30, 0, 0, loc)},
		{"after schedule", time.Date(2024, 3, 10, 18, 0, 0, 0, loc), time.Date(2024, 3, 11, 2, 30, 0, 0, loc)},
		{"year end", time.Date(2024, 12, 31, 23, 59, 0, 0, loc), time.Date(2025, 1, 1, 2, 30, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := d.calculateNextRun(tt.now); !got.Equal(tt.want) {
				t.Errorf("calculateNextRun(%v) = %v, want %v", tt.now, got, tt.want)
			}
		})
	}
}

func TestShouldRunAt(t *testing.T) {
	d := newTestDaemon(&countingLoader{}, time.Time{})
	tests := []struct {
		hour, minute int
		want         bool
	}{
		{2, 30, true},
		{2, 31, false},
		{14, 30, false},
	}
	for _, tt := range tests {
		now := time.Date(2024, 1, 1, tt.hour, tt.minute, 45, 0, time.Local)
		if got := d.shouldRunAt(now); got != tt.want {
			t.Errorf("shouldRunAt(%02d:%02d) = %v, want %v", tt.hour, tt.minute, got, tt.want)
		}
	}
}

func TestRefreshOncePerDay(t *testing.T) {
	loader := &countingLoader{}
	d := newTestDaemon(loader, time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC))

	summary, err := d.refresh()
	if err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	if summary.Rows != 11 {
		t.Errorf("refresh() rows = %d, want 11", summary.Rows)
	}

	again, err := d.refresh()
	if err != nil {
		t.Fatalf("second refresh() error = %v", err)
	}
	if again != summary || len(loader.runs) != 1 {
		t.Errorf("second refresh ran again: %d runs", len(loader.runs))
	}

	if _, err := d.RefreshNow(); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}
	if len(loader.runs) != 2 {
		t.Errorf("RefreshNow() did not run: %d runs", len(loader.runs))
	}
	if d.LastSummary().RunID != loader.runs[1] {
		t.Errorf("LastSummary() run id = %v, want %v", d.LastSummary().RunID, loader.runs[1])
	}
}

func TestRefreshRejectsConcurrentRun(t *testing.T) {
	d := newTestDaemon(&countingLoader{}, time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC))
	d.refreshing = true
	if _, err := d.refresh(); err == nil {
		t.Error("refresh() during another refresh should fail")
	}
}

func TestTickOnlyAtScheduledMinute(t *testing.T) {
	loader := &countingLoader{}
	d := newTestDaemon(loader, time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC))

	d.tick(time.Date(2024, 3, 10, 2, 29, 0, 0, time.UTC))
	if len(loader.runs) != 0 {
		t.Fatalf("tick before schedule ran %d refreshes", len(loader.runs))
	}
	d.tick(time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC))
	d.tick(time.Date(2024, 3, 10, 2, 30, 30, 0, time.UTC))
	if len(loader.runs) != 1 {
		t.Errorf("ticks at schedule ran %d refreshes, want 1", len(loader.runs))
	}
}

func TestRefreshIntoStore(t *testing.T) {
	store, err := sqlite.Open(":memory:", zap.NewNop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	d := newTestDaemon(store, time.Date(2024, 3, 10, 2, 30, 0, 0, time.UTC))
	if _, err := d.refresh(); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}

	// The next day's window overlaps all but one day of the first.
	d.now = func() time.Time { return time.Date(2024, 3, 11, 2, 30, 0, 0, time.UTC) }
	if _, err := d.refresh(); err != nil {
		t.Fatalf("refresh() next day error = %v", err)
	}

	n, err := store.Count(context.Background(), feed.DailySchema)
	if err != nil {
		t.Fatalf("Count() error = %v", err)
	}
	if n != 12 {
		t.Errorf("Count() = %d, want 12", n)
	}

	_, rows, ok, err := store.LastRun(context.Background(), feed.DailySchema)
	if err != nil || !ok || rows != 11 {
		t.Errorf("LastRun() = %d, %v, %v", rows, ok, err)
	}
}

func TestStartReturnsAfterStop(t *testing.T) {
	loader := &countingLoader{}
	d := newTestDaemon(loader, time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))

	done := make(chan error, 1)
	go func() { done <- d.Start() }()
	d.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after Stop()")
	}
}

func TestWindowAroundToday(t *testing.T) {
	loader := &countingLoader{}
	now := time.Date(2024, 1, 2, 2, 30, 0, 0, time.UTC)
	d := newTestDaemon(loader, now)
	if _, err := d.refresh(); err != nil {
		t.Fatalf("refresh() error = %v", err)
	}
	seq, _ := calendar.OpenDailyWindow(nil, nil, calendar.FixedClock(calendar.DateFromTime(now)), 5)
	start, end := seq.Bounds()
	if start != calendar.NewDate(2023, 12, 28) || end != calendar.NewDate(2024, 1, 7) {
		t.Errorf("window = %s..%s", start, end)
	}
	if loader.rows[0] != 11 {
		t.Errorf("loaded %d rows, want 11", loader.rows[0])
	}
}
