package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/username/timetable/internal/calendar"
	"github.com/username/timetable/internal/feed"
	"github.com/username/timetable/internal/store/sqlite"
)

// rangeFlags are shared by the file and load commands.
type rangeFlags struct {
	startYear, endYear yearFlag
	start, end         string
	window             int
}

// yearFlag records whether it was given, since every int is a valid year.
type yearFlag struct {
	year int
	set  bool
}

func (y *yearFlag) String() string {
	if !y.set {
		return ""
	}
	return strconv.Itoa(y.year)
}

func (y *yearFlag) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("expected a year, got %q", s)
	}
	y.year, y.set = v, true
	return nil
}

func (y *yearFlag) Type() string {
	return "year"
}

func (y yearFlag) or(def int) int {
	if y.set {
		return y.year
	}
	return def
}

func (f *rangeFlags) addYears(cmd *cobra.Command) {
	cmd.Flags().Var(&f.startYear, "start-year", "First year (default: current year)")
	cmd.Flags().Var(&f.endYear, "end-year", "Last year (default: current year)")
}

func (f *rangeFlags) addDates(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.start, "start", "", "First date, YYYY-MM-DD (default: today minus the window)")
	cmd.Flags().StringVar(&f.end, "end", "", "Last date, YYYY-MM-DD (default: today plus the window)")
	cmd.Flags().IntVar(&f.window, "window", -1, "Days around today for omitted bounds (default: daily.window_days)")
}

func (f *rangeFlags) monthly(clock calendar.Clock) (feed.Source, error) {
	year, _, _, err := clock.Today().YMD()
	if err != nil {
		return nil, err
	}
	seq, err := calendar.OpenMonthly(f.startYear.or(year), f.endYear.or(year))
	if err != nil {
		return nil, err
	}
	return feed.MonthlySource(seq), nil
}

func (f *rangeFlags) daily(clock calendar.Clock, defaultWindow int) (feed.Source, error) {
	start, err := optionalDate("start", f.start)
	if err != nil {
		return nil, err
	}
	end, err := optionalDate("end", f.end)
	if err != nil {
		return nil, err
	}
	window := f.window
	if window < 0 {
		window = defaultWindow
	}
	seq, err := calendar.OpenDailyWindow(start, end, clock, window)
	if err != nil {
		return nil, err
	}
	return feed.DailySource(seq), nil
}

func optionalDate(name, raw string) (*calendar.Date, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := calendar.ParseDate(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s date: %w", name, err)
	}
	return &d, nil
}

func monthlyCmd() *cobra.Command {
	var r rangeFlags
	var format, output string

	cmd := &cobra.Command{
		Use:   "monthly",
		Short: "Write the monthly timetable",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := r.monthly(calendar.SystemClock{})
			if err != nil {
				return err
			}
			return writeFeed(cmd.Context(), src, format, output)
		},
	}

	r.addYears(cmd)
	addOutputFlags(cmd, &format, &output)

	return cmd
}

func dailyCmd() *cobra.Command {
	var r rangeFlags
	var format, output string

	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Write the daily timetable",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := r.daily(calendar.SystemClock{}, cfg.Daily.WindowDays)
			if err != nil {
				return err
			}
			return writeFeed(cmd.Context(), src, format, output)
		},
	}

	r.addDates(cmd)
	addOutputFlags(cmd, &format, &output)

	return cmd
}

func loadCmd() *cobra.Command {
	var storePath string

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load a timetable into the SQLite store",
	}
	cmd.PersistentFlags().StringVar(&storePath, "store", "", "Database path (overrides store.path)")

	var monthly rangeFlags
	monthlyLoad := &cobra.Command{
		Use:   "monthly",
		Short: "Upsert monthly rows into dim_month",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := monthly.monthly(calendar.SystemClock{})
			if err != nil {
				return err
			}
			return loadFeed(cmd.Context(), src, storePath)
		},
	}
	monthly.addYears(monthlyLoad)

	var daily rangeFlags
	dailyLoad := &cobra.Command{
		Use:   "daily",
		Short: "Upsert daily rows into dim_day",
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := daily.daily(calendar.SystemClock{}, cfg.Daily.WindowDays)
			if err != nil {
				return err
			}
			return loadFeed(cmd.Context(), src, storePath)
		},
	}
	daily.addDates(dailyLoad)

	cmd.AddCommand(monthlyLoad, dailyLoad)
	return cmd
}

func addOutputFlags(cmd *cobra.Command, format, output *string) {
	cmd.Flags().StringVarP(format, "format", "f", "", "Output format: csv, jsonl or parquet (default: output.format)")
	cmd.Flags().StringVarP(output, "output", "o", "", "Output file (default: output.path, empty for stdout)")
}

func writeFeed(ctx context.Context, src feed.Source, formatName, output string) error {
	if formatName == "" {
		formatName = cfg.Output.Format
	}
	if output == "" {
		output = cfg.Output.Path
	}
	format, err := feed.ParseFormat(formatName)
	if err != nil {
		return err
	}

	w, err := openOutput(output)
	if err != nil {
		return err
	}
	sink, err := feed.NewSink(format, w, src.Schema(), cfg.Export.BatchSize)
	if err != nil {
		w.Close()
		removePartial(output)
		return err
	}

	ctx, stop := signalContext(ctx)
	defer stop()

	summary, err := feed.Run(ctx, uuid.Nil, src, sink, logger)
	closeErr := w.Close()
	if err != nil {
		removePartial(output)
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", output, closeErr)
	}
	if output != "" && output != "-" {
		printSummary(summary)
	}
	return nil
}

func loadFeed(ctx context.Context, src feed.Source, storePath string) error {
	if storePath == "" {
		storePath = cfg.Store.Path
	}
	store, err := sqlite.Open(storePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx, stop := signalContext(ctx)
	defer stop()

	runID := uuid.New()
	sink, err := store.Sink(ctx, src.Schema(), runID, cfg.Export.BatchSize)
	if err != nil {
		return err
	}
	summary, err := feed.Run(ctx, runID, src, sink, logger)
	if err != nil {
		return err
	}
	total, err := store.Count(ctx, src.Schema())
	if err != nil {
		logger.Warn("Failed to count stored rows", zap.Error(err))
	}
	printSummary(summary)
	fmt.Fprintf(os.Stderr, "   • %s now holds %d row(s) in %s\n", summary.Feed, total, storePath)
	return nil
}

func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}

// removePartial deletes an output file left by a failed run.
func removePartial(output string) {
	if output != "" && output != "-" {
		_ = os.Remove(output)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func openOutput(path string) (io.WriteCloser, error) {
	if path == "" || path == "-" {
		return nopWriteCloser{os.Stdout}, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output file: %w", err)
	}
	return f, nil
}

func printSummary(s *feed.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "✅ %s: %d row(s) in %s (run %s)\n", s.Feed, s.Rows, s.Duration, s.RunID)
}
