package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/config"
	"github.com/username/timetable/internal/feed"
)

type fakeStore struct {
	id   uuid.UUID
	rows int
}

func (f *fakeStore) LastRun(_ context.Context, schema feed.Schema) (uuid.UUID, int, bool, error) {
	if schema.Name != feed.DailySchema.Name || f.id == uuid.Nil {
		return uuid.Nil, 0, false, nil
	}
	return f.id, f.rows, true, nil
}

func (f *fakeStore) Count(context.Context, feed.Schema) (int, error) {
	return f.rows, nil
}

func newTestServer(store RunStore) *Server {
	cfg := config.Default()
	cfg.Daily.WindowDays = 3
	return New(cfg, calendar.FixedClock(calendar.NewDate(2021, 1, 4)), store, zap.NewNop())
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["error"]
}

func TestHealth(t *testing.T) {
	rec := get(t, newTestServer(nil), "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMonthlyCSV(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/timetable/monthly?start_year=2020&end_year=2021")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "24", rec.Header().Get("X-Row-Count"))
	_, err := uuid.Parse(rec.Header().Get("X-Run-Id"))
	assert.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 25)
	assert.Equal(t, "20840,2020,1,1,31,1", lines[1])
	assert.Equal(t, "20863,2021,4,12,31,24", lines[24])
}

func TestMonthlyDefaultsToCurrentYear(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/timetable/monthly?format=jsonl")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 12)
	var row calendar.MonthRow
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &row))
	assert.Equal(t, calendar.MonthRow{UID: 20853, Year: 2021, Quarter: 1, Month: 2, DaysInMonth: 28, Ordinal: 2}, row)
}

func TestDailyDefaultWindow(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/timetable/daily?format=jsonl")
	require.Equal(t, http.StatusOK, rec.Code)

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 7)
	var first, last calendar.DayRow
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[6]), &last))
	assert.Equal(t, calendar.NewDate(2021, 1, 1), first.Date)
	assert.Equal(t, calendar.NewDate(2021, 1, 7), last.Date)
	assert.Equal(t, 7, last.Ordinal)
}

func TestDailyParquet(t *testing.T) {
	rec := get(t, newTestServer(nil), "/api/timetable/daily?start=2021-01-01&end=2021-01-31&format=parquet")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.apache.parquet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "dim_day.parquet")
	body := rec.Body.Bytes()
	require.Greater(t, len(body), 8)
	assert.Equal(t, "PAR1", string(body[:4]))
	assert.Equal(t, "PAR1", string(body[len(body)-4:]))
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		target string
		status int
		msg    string
	}{
		{"inverted years", "/api/timetable/monthly?start_year=2021&end_year=2020", http.StatusBadRequest, "invalid range"},
		{"bad year", "/api/timetable/monthly?start_year=abc", http.StatusBadRequest, "start_year"},
		{"year too large", "/api/timetable/monthly?start_year=9999&end_year=10000", http.StatusUnprocessableEntity, "date out of range"},
		{"bad format", "/api/timetable/monthly?format=xml", http.StatusBadRequest, "unknown format"},
		{"inverted dates", "/api/timetable/daily?start=2021-02-01&end=2021-01-01", http.StatusBadRequest, "invalid range"},
		{"bad date", "/api/timetable/daily?start=yesterday", http.StatusBadRequest, "start"},
		{"no store", "/api/timetable/runs/daily", http.StatusServiceUnavailable, "no store"},
	}
	s := newTestServer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, s, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, errorBody(t, rec), tt.msg)
		})
	}
}

func TestDailyWindowPastMaxDate(t *testing.T) {
	cfg := config.Default()
	s := New(cfg, calendar.FixedClock(calendar.MaxDate), nil, zap.NewNop())
	rec := get(t, s, "/api/timetable/daily")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, errorBody(t, rec), "date out of range")
}

func TestLastRun(t *testing.T) {
	id := uuid.New()
	s := newTestServer(&fakeStore{id: id, rows: 201})

	rec := get(t, s, "/api/timetable/runs/daily")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		RunID  string `json:"run_id"`
		Feed   string `json:"feed"`
		Rows   int    `json:"rows"`
		Stored int    `json:"stored"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, id.String(), body.RunID)
	assert.Equal(t, "dim_day", body.Feed)
	assert.Equal(t, 201, body.Rows)

	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/timetable/runs/monthly").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/api/timetable/runs/weekly").Code)
}
